package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/vovakirdan/pchat/internal/core"
	"github.com/vovakirdan/pchat/internal/proto"
	"github.com/vovakirdan/pchat/internal/store"
)

// Error codes used on the stream and in API responses.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotRunning = "not_running"
	ErrCodeSendFailed = "send_failed"
)

// inboundToCommand extracts the command text from a stream message. A non-nil
// *proto.Error means the message was understood but rejected.
func inboundToCommand(inbound proto.Inbound) (string, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return "", nil, err
		}
		cmd := strings.TrimSpace(data.Command)
		if cmd == "" {
			return "", &proto.Error{Code: ErrCodeBadRequest, Msg: "command is required"}, nil
		}
		return cmd, nil, nil
	default:
		return "", &proto.Error{Code: ErrCodeBadRequest, Msg: "unknown message type: " + inbound.Type}, nil
	}
}

func usersToResponse(users []core.User) []proto.RosterUser {
	out := make([]proto.RosterUser, 0, len(users))
	for _, u := range users {
		out = append(out, proto.RosterUser{
			Name:  u.Name,
			Flags: u.Flags,
			Ping:  u.Ping,
			Stats: u.Stats,
		})
	}
	return out
}

// SightingResponse is a presence directory entry in API responses.
type SightingResponse struct {
	Name      string `json:"name"`
	Flags     string `json:"flags"`
	Ping      string `json:"ping"`
	Stats     string `json:"stats"`
	Channel   string `json:"channel"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
}

func sightingToResponse(sg *store.Sighting) SightingResponse {
	return SightingResponse{
		Name:      sg.Name,
		Flags:     sg.Flags,
		Ping:      sg.Ping,
		Stats:     sg.Stats,
		Channel:   sg.Channel,
		FirstSeen: sg.FirstSeen.UTC().Format(time.RFC3339),
		LastSeen:  sg.LastSeen.UTC().Format(time.RFC3339),
	}
}
