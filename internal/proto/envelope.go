package proto

import "encoding/json"

// Envelope types for the JSON event stream served to control clients.
const (
	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventLog    = "log"
	EventRoster = "roster"
	EventStatus = "status"
)

// Outbound is the envelope for messages sent to stream subscribers.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// LogData carries one line of human-readable log text.
type LogData struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// RosterUser is a user entry as rendered on the stream.
type RosterUser struct {
	Name  string `json:"name"`
	Flags string `json:"flags"`
	Ping  string `json:"ping"`
	Stats string `json:"stats"`
}

// RosterData carries a full roster snapshot, never a diff.
type RosterData struct {
	Channel string       `json:"channel,omitempty"`
	Users   []RosterUser `json:"users"`
	TS      int64        `json:"ts"`
}

// Error describes a stream-level error.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Inbound is the envelope for messages coming from stream subscribers.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// InboundTypeSend asks the client to send a raw command line.
const InboundTypeSend = "send"

// SendData is the payload of an InboundTypeSend message.
type SendData struct {
	Command string `json:"command"`
}
