package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pchat/internal/proto"
)

func newAttachCmd() *cobra.Command {
	var (
		addr  string
		token string
	)

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Follow a running client's event stream and send commands to it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv("PCHAT_TOKEN")
			}
			if token == "" {
				return errors.New("token is required (--token or PCHAT_TOKEN)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return attach(ctx, addr, token, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080/ws", "stream address")
	cmd.Flags().StringVar(&token, "token", "", "control API token")
	return cmd
}

func attach(ctx context.Context, addr, token string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	readErr := make(chan error, 1)
	go func() {
		defer cancel()
		readErr <- readStream(ctx, conn, out)
	}()

	writeStream(ctx, conn, in)

	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return <-readErr
}

func readStream(ctx context.Context, conn *websocket.Conn, out io.Writer) error {
	for {
		var ev struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if ev.Type == proto.OutboundTypeError && ev.Error != nil {
			fmt.Fprintf(out, "! %s: %s\n", ev.Error.Code, ev.Error.Msg)
			continue
		}

		switch ev.Event {
		case proto.EventLog:
			var data proto.LogData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				continue
			}
			fmt.Fprintln(out, data.Text)
		case proto.EventRoster:
			var data proto.RosterData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				continue
			}
			names := make([]string, 0, len(data.Users))
			for _, u := range data.Users {
				names = append(names, u.Name)
			}
			fmt.Fprintf(out, "[%s] %d users: %s\n", data.Channel, len(names), strings.Join(names, ", "))
		case proto.EventStatus:
			fmt.Fprintf(out, "status: %s\n", ev.Data)
		default:
			fmt.Fprintf(out, "event=%s data=%s\n", ev.Event, ev.Data)
		}
	}
}

func writeStream(ctx context.Context, conn *websocket.Conn, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			payload, err := json.Marshal(proto.SendData{Command: line})
			if err != nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSend, Data: payload}); err != nil {
				return
			}
		}
	}
}
