package http

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/client"
	"github.com/vovakirdan/pchat/internal/hub"
	"github.com/vovakirdan/pchat/internal/proto"
)

// WSHandler streams log lines and roster snapshots to operators and accepts
// raw commands back.
type WSHandler struct {
	chat   Chat
	events *hub.Hub
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(chat Chat, events *hub.Hub, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{chat: chat, events: events, log: logger}
}

// Serve upgrades the request and runs the stream until either side closes.
// GET /ws
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventStatus,
		Data:  h.chat.Status(),
	}); err != nil {
		h.log.Warn().Err(err).Msg("write initial status")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sub.ID)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sub)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, id string) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("subscriber", id).Msg("failed to map inbound")
			protoErr = &proto.Error{Code: ErrCodeBadRequest, Msg: "malformed message"}
		}
		if protoErr == nil {
			if sendErr := h.chat.Send(cmd); sendErr != nil {
				code := ErrCodeSendFailed
				if errors.Is(sendErr, client.ErrNotRunning) || errors.Is(sendErr, client.ErrNotConnected) {
					code = ErrCodeNotRunning
				}
				protoErr = &proto.Error{Code: code, Msg: sendErr.Error()}
			}
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *hub.Subscriber) error {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.log.Error().Err(err).Str("subscriber", sub.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
