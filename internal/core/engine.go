package core

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/proto"
)

// Log line prefixes for events the surrounding UI may special-case.
const (
	ChannelJoinPrefix  = "CHANNEL_JOIN "
	ChannelTopicPrefix = "CHANNEL_TOPIC "
)

const topicMarker = "Topic:"

// Replier writes keepalive replies on the active connection.
type Replier interface {
	Pong(id string) error
}

// Options tunes the engine.
type Options struct {
	BatchDelay       time.Duration
	ThrottleInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchDelay <= 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	if o.ThrottleInterval <= 0 {
		o.ThrottleInterval = DefaultThrottleInterval
	}
	return o
}

// Engine routes protocol lines to handlers. Immediate messages go straight to
// the log sink; presence messages go through the Batcher.
type Engine struct {
	sinks   sinks
	batcher *Batcher
	replier atomic.Pointer[Replier]
	log     *zerolog.Logger
}

// NewEngine builds an engine. replier may be nil and set later with SetReplier.
func NewEngine(sched Scheduler, replier Replier, opts Options, logger *zerolog.Logger) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts = opts.withDefaults()

	e := &Engine{log: logger}
	e.SetReplier(replier)
	e.batcher = newBatcher(sched, &e.sinks, logger, opts.BatchDelay, opts.ThrottleInterval)
	return e
}

// SetLogSink binds the log sink. It may be called at any time; every
// emission uses whichever sink is bound at that moment.
func (e *Engine) SetLogSink(sink LogSink) {
	e.sinks.setLog(sink)
}

// SetRosterSink binds the roster sink, with the same late-binding rule as SetLogSink.
func (e *Engine) SetRosterSink(sink RosterSink) {
	e.sinks.setRoster(sink)
}

// SetReplier binds the keepalive replier. It may be called at any time.
func (e *Engine) SetReplier(r Replier) {
	if r == nil {
		e.replier.Store(nil)
		return
	}
	e.replier.Store(&r)
}

// Log emits a line to the current log sink.
func (e *Engine) Log(text string) {
	e.sinks.emitLog(text)
}

// Roster returns a snapshot of the current roster.
func (e *Engine) Roster() []User {
	return e.batcher.Roster()
}

// Channel returns the channel we are in, or "".
func (e *Engine) Channel() string {
	return e.batcher.Channel()
}

// Batcher exposes the presence batcher.
func (e *Engine) Batcher() *Batcher {
	return e.batcher
}

// Reset clears channel and roster state and publishes the empty roster. The
// empty roster is always the last snapshot the sink sees for the old state.
func (e *Engine) Reset() {
	e.batcher.reset("", true)
}

// HandleLine tokenizes and dispatches one framed line. Unknown keywords are
// reported to the log sink and are not errors. A handler fault is reported to
// the log sink and returned wrapped in ErrHandler.
func (e *Engine) HandleLine(line string) (err error) {
	tokens := proto.Tokenize(line)
	if len(tokens) == 0 {
		return nil
	}

	kind, err := proto.Classify(tokens)
	if err != nil {
		var unknown *proto.UnknownKeywordError
		if errors.As(err, &unknown) {
			e.Log(unknown.Error())
			return nil
		}
		return err
	}
	if kind == proto.KindAck {
		return nil
	}
	if kind != proto.KindPing {
		e.log.Debug().Str("kind", kind.String()).Msg(line)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			e.Log(fmt.Sprintf("Error in message handler: %v", err))
			err = fmt.Errorf("%w: %s: %w", ErrHandler, kind, err)
		}
	}()
	return e.dispatch(kind, tokens)
}

func (e *Engine) dispatch(kind proto.Kind, tokens []string) error {
	switch kind {
	case proto.KindPing:
		return e.handlePing(tokens)
	case proto.KindServerInfo:
		e.handleServerInfo(tokens)
	case proto.KindServerTopic, proto.KindServerUpdate, proto.KindServerError, proto.KindServerBroadcast:
		e.Log(proto.JoinFrom(tokens, 2))
	case proto.KindChannelJoin:
		e.handleChannelJoin(tokens)
	case proto.KindUserTalk, proto.KindUserWhisper:
		e.handleChat(tokens)
	case proto.KindUserIn, proto.KindUserUpdate, proto.KindUserJoin, proto.KindUserLeave:
		e.batcher.Enqueue(kind, tokens)
	}
	return nil
}

func (e *Engine) handlePing(tokens []string) error {
	if len(tokens) < 2 {
		return nil
	}
	r := e.replier.Load()
	if r == nil {
		return ErrNoReplier
	}
	if err := (*r).Pong(tokens[1]); err != nil {
		return fmt.Errorf("send pong: %w", err)
	}
	return nil
}

// handleServerInfo treats token 5 == "Topic:" as a channel topic announcement.
func (e *Engine) handleServerInfo(tokens []string) {
	if len(tokens) > 6 && tokens[5] == topicMarker {
		e.Log(ChannelTopicPrefix + proto.JoinFrom(tokens, 6))
		return
	}
	e.Log(proto.JoinFrom(tokens, 2))
}

func (e *Engine) handleChannelJoin(tokens []string) {
	channel := proto.JoinFrom(tokens, 2)
	e.batcher.Reset(channel)
	e.Log(ChannelJoinPrefix + channel)
}

func (e *Engine) handleChat(tokens []string) {
	if len(tokens) < 7 {
		return
	}
	e.Log(tokens[6] + ": " + proto.JoinFrom(tokens, 7))
}
