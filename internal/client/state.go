package client

// State is the connection lifecycle state.
type State int32

const (
	// StateDisconnected means no connection exists and none is pending.
	StateDisconnected State = iota

	// StateConnecting means a dial or login write is in progress.
	StateConnecting

	// StateStreaming means the receive loop is running.
	StateStreaming

	// StateReconnectWaiting means a reconnect is scheduled after the fixed delay.
	StateReconnectWaiting

	// StateStopped means the client was stopped and will not reconnect.
	StateStopped
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnectWaiting:
		return "reconnect_waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the client.
type Status struct {
	State   string `json:"state"`
	Running bool   `json:"running"`
	Address string `json:"address"`
	Account string `json:"account"`
	Channel string `json:"channel"`
	Users   int    `json:"users"`
	Session string `json:"session,omitempty"`
}
