// Package client manages the chat server connection: dialing, login,
// the receive loop, keepalive replies, and fixed-delay reconnects.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/config"
	"github.com/vovakirdan/pchat/internal/core"
	"github.com/vovakirdan/pchat/internal/proto"
)

var (
	// ErrNotRunning is returned by Send after Stop or before Start.
	ErrNotRunning = errors.New("client not running")
	// ErrNotConnected is returned when no stream is established.
	ErrNotConnected = errors.New("not connected")
)

// Client is the connection manager. One Client drives one connection and at
// most one receive loop at a time.
type Client struct {
	cfg    config.Config
	sched  core.Scheduler
	engine *core.Engine
	log    *zerolog.Logger

	running atomic.Bool
	state   atomic.Int32

	connMu    sync.Mutex
	conn      net.Conn
	session   string
	reconnect core.Timer

	// writeMu serializes every outbound write on the stream.
	writeMu sync.Mutex
}

// New builds a client. The scheduler is owned by the caller.
func New(cfg config.Config, sched core.Scheduler, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 1024
	}

	c := &Client{cfg: cfg, sched: sched, log: logger}
	c.engine = core.NewEngine(sched, c, core.Options{
		BatchDelay:       cfg.BatchDelay,
		ThrottleInterval: cfg.ThrottleInterval,
	}, logger)
	return c
}

// SetLogSink binds the log sink; may be changed at any time.
func (c *Client) SetLogSink(sink core.LogSink) {
	c.engine.SetLogSink(sink)
}

// SetRosterSink binds the roster sink; may be changed at any time.
func (c *Client) SetRosterSink(sink core.RosterSink) {
	c.engine.SetRosterSink(sink)
}

// Engine returns the dispatch engine.
func (c *Client) Engine() *core.Engine {
	return c.engine
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Running reports whether the client wants to stay connected.
func (c *Client) Running() bool {
	return c.running.Load()
}

// Roster returns the current roster snapshot.
func (c *Client) Roster() []core.User {
	return c.engine.Roster()
}

// Status returns a point-in-time view for operators.
func (c *Client) Status() Status {
	c.connMu.Lock()
	session := c.session
	c.connMu.Unlock()

	return Status{
		State:   c.State().String(),
		Running: c.Running(),
		Address: c.cfg.Address(),
		Account: c.cfg.Account,
		Channel: c.engine.Channel(),
		Users:   len(c.engine.Roster()),
		Session: session,
	}
}

// Start marks the client as running and connects in the background. Calling
// Start twice without Stop is not supported.
func (c *Client) Start() {
	c.running.Store(true)
	c.log.Info().Str("addr", c.cfg.Address()).Msg("scheduling connect")
	c.sched.Go(c.connect)
}

// Stop clears the running flag. An in-flight read is not interrupted; the
// receive loop exits at its next read return and does not reconnect.
func (c *Client) Stop() {
	c.running.Store(false)
	c.log.Info().Msg("stopping")

	c.connMu.Lock()
	if c.reconnect != nil && c.reconnect.Stop() {
		c.reconnect = nil
		c.setState(StateStopped)
	}
	c.connMu.Unlock()
}

// Close stops the client and closes the active stream so a blocked read
// returns. Use it for process shutdown.
func (c *Client) Close() error {
	c.Stop()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Send writes one command line on the active stream.
func (c *Client) Send(command string) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	if err := c.write(proto.Command(command)); err != nil {
		c.log.Warn().Err(err).Msg("send failed")
		return err
	}
	return nil
}

// Pong replies to a keepalive ping with the same identifier.
func (c *Client) Pong(id string) error {
	return c.write(proto.Pong(id))
}

func (c *Client) write(data []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state change")
	}
}

func (c *Client) connect() {
	if !c.running.Load() {
		c.setState(StateStopped)
		return
	}
	c.setState(StateConnecting)

	session := uuid.NewString()
	logger := c.log.With().Str("session", session).Logger()
	addr := c.cfg.Address()

	logger.Info().Str("addr", addr).Dur("timeout", c.cfg.ConnectTimeout).Msg("connecting")
	conn, err := net.DialTimeout("tcp", addr, c.cfg.ConnectTimeout)
	if err != nil {
		logger.Warn().Err(err).Msg("connect failed")
		c.engine.Log(describeDialError(err))
		c.cleanup(&logger)
		return
	}

	c.connMu.Lock()
	c.conn = conn
	c.session = session
	c.connMu.Unlock()

	c.engine.Log("Connected to " + addr)
	if err := c.write(proto.Login(c.cfg.Account, c.cfg.Password, c.cfg.HomeChannel)); err != nil {
		logger.Warn().Err(err).Msg("login write failed")
		c.engine.Log(fmt.Sprintf("Connection error: %v", err))
		c.cleanup(&logger)
		return
	}
	logger.Info().Msg("login sequence sent")

	c.setState(StateStreaming)
	c.receive(conn, &logger)
	c.cleanup(&logger)
}

// receive reads until the peer closes, a read fails, a handler faults, or
// the running flag is cleared.
func (c *Client) receive(conn net.Conn, logger *zerolog.Logger) {
	framer := proto.NewFramer()
	buf := make([]byte, c.cfg.ReadBuffer)

	for c.running.Load() {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				if herr := c.engine.HandleLine(line); herr != nil {
					logger.Error().Err(herr).Str("line", line).Msg("receive error")
					return
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("peer closed connection")
			} else if !errors.Is(err, net.ErrClosed) {
				logger.Error().Err(err).Msg("receive error")
			}
			return
		}
	}
}

// cleanup releases the stream, clears channel state, and reconnects if the
// client is still running.
func (c *Client) cleanup(logger *zerolog.Logger) {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.session = ""
	c.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug().Err(err).Msg("close stream")
		}
	}

	c.engine.Log("Connection closed")
	c.engine.Reset()

	if c.running.Load() {
		c.scheduleReconnect(logger)
		return
	}
	c.setState(StateStopped)
}

func (c *Client) scheduleReconnect(logger *zerolog.Logger) {
	delay := c.cfg.ReconnectDelay
	c.engine.Log(fmt.Sprintf("Attempting to reconnect in %s seconds...", formatSeconds(delay)))
	logger.Info().Dur("delay", delay).Msg("reconnect scheduled")

	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.setState(StateReconnectWaiting)
	c.reconnect = c.sched.AfterFunc(delay, func() {
		c.connMu.Lock()
		c.reconnect = nil
		c.connMu.Unlock()

		if !c.running.Load() {
			c.setState(StateStopped)
			return
		}
		c.connect()
	})
}

func describeDialError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Sprintf("Connection refused: %v", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Sprintf("Connection timed out: %v", err)
	default:
		return fmt.Sprintf("Connection error: %v", err)
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
