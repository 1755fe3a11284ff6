package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/proto"
)

// Defaults for the presence batcher.
const (
	DefaultBatchDelay       = 500 * time.Millisecond
	DefaultThrottleInterval = 3 * time.Second
)

// Minimum token counts for presence messages.
const (
	minPresenceTokens = 8
	minLeaveTokens    = 7
)

// Token positions inside a USER presence line.
const (
	idxFlags = 4
	idxPing  = 5
	idxName  = 6
	idxStats = 7
)

type windowState int

const (
	windowIdle windowState = iota
	windowScheduled
	windowDraining
)

func (s windowState) String() string {
	switch s {
	case windowIdle:
		return "idle"
	case windowScheduled:
		return "scheduled"
	case windowDraining:
		return "draining"
	default:
		return "unknown"
	}
}

type presenceMessage struct {
	kind   proto.Kind
	tokens []string
}

// Batcher coalesces bursts of presence messages into a single roster mutation
// and a single roster notification. It owns the roster: nothing else writes it.
type Batcher struct {
	sched Scheduler
	sinks *sinks
	log   *zerolog.Logger
	delay time.Duration

	// pubMu orders roster publication: a drain's apply and emit, and a
	// reset, never interleave.
	pubMu sync.Mutex

	mu      sync.Mutex
	queue   []presenceMessage
	window  windowState
	roster  roster
	channel string
	gen     uint64

	joinClock  *throttle
	leaveClock *throttle
}

func newBatcher(sched Scheduler, s *sinks, logger *zerolog.Logger, delay, interval time.Duration) *Batcher {
	now := sched.Now()
	return &Batcher{
		sched:      sched,
		sinks:      s,
		log:        logger,
		delay:      delay,
		joinClock:  newThrottle(interval, now),
		leaveClock: newThrottle(interval, now),
	}
}

// Enqueue appends a presence message in arrival order and opens a debounce
// window if none is pending. Messages arriving while a window is scheduled
// ride along with it; messages arriving mid-drain open the next window once
// the drain completes.
func (b *Batcher) Enqueue(kind proto.Kind, tokens []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue = append(b.queue, presenceMessage{kind: kind, tokens: tokens})
	if b.window == windowIdle {
		b.window = windowScheduled
		b.sched.AfterFunc(b.delay, b.drain)
	}
}

// Reset empties the roster and records the current channel. A drain that
// started before the reset discards its batch.
func (b *Batcher) Reset(channel string) {
	b.reset(channel, false)
}

func (b *Batcher) reset(channel string, publish bool) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	b.gen++
	b.roster = nil
	b.channel = channel
	b.mu.Unlock()

	if publish {
		b.sinks.emitRoster([]User{})
	}
}

// Roster returns a snapshot of the current roster.
func (b *Batcher) Roster() []User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roster.snapshot()
}

// Channel returns the current channel name, or "" outside a channel.
func (b *Batcher) Channel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel
}

// Pending reports how many messages are waiting for the next drain.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

type batch struct {
	additions []User
	updates   []User
	removals  map[string]struct{}
	handled   map[string]struct{}
}

func (bt *batch) empty() bool {
	return len(bt.additions) == 0 && len(bt.updates) == 0 && len(bt.removals) == 0
}

func (bt *batch) dropAddition(name string) {
	kept := bt.additions[:0]
	for _, u := range bt.additions {
		if u.Name != name {
			kept = append(kept, u)
		}
	}
	bt.additions = kept
}

func (b *Batcher) drain() {
	b.mu.Lock()
	msgs := b.queue
	b.queue = nil
	b.window = windowDraining
	gen := b.gen
	b.mu.Unlock()

	bt := b.classify(msgs)

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	stale := b.gen != gen
	changed := !stale && !bt.empty()
	if changed {
		b.apply(bt)
	}
	snapshot := b.roster.snapshot()
	if len(b.queue) > 0 {
		b.window = windowScheduled
		b.sched.AfterFunc(b.delay, b.drain)
	} else {
		b.window = windowIdle
	}
	b.mu.Unlock()

	b.log.Debug().
		Int("messages", len(msgs)).
		Int("added", len(bt.additions)).
		Int("updated", len(bt.updates)).
		Int("removed", len(bt.removals)).
		Int("roster", len(snapshot)).
		Bool("stale", stale).
		Msg("presence batch drained")

	if changed {
		b.sinks.emitRoster(snapshot)
	}
}

// classify turns queued messages into the batch sets, emitting throttled
// join and leave log lines in arrival order.
func (b *Batcher) classify(msgs []presenceMessage) *batch {
	bt := &batch{
		removals: make(map[string]struct{}),
		handled:  make(map[string]struct{}),
	}

	for _, m := range msgs {
		switch m.kind {
		case proto.KindUserIn, proto.KindUserUpdate, proto.KindUserJoin:
			if len(m.tokens) < minPresenceTokens {
				continue
			}
			user := User{
				Name:  m.tokens[idxName],
				Flags: m.tokens[idxFlags],
				Ping:  m.tokens[idxPing],
				Stats: m.tokens[idxStats],
			}
			_, seen := bt.handled[user.Name]

			switch m.kind {
			case proto.KindUserUpdate:
				bt.updates = append(bt.updates, user)
				bt.handled[user.Name] = struct{}{}
			case proto.KindUserJoin:
				if !seen {
					bt.additions = append(bt.additions, user)
					if b.joinClock.allow(b.sched.Now()) {
						b.sinks.emitLog("User join " + user.Name)
					}
				}
				bt.handled[user.Name] = struct{}{}
			case proto.KindUserIn:
				if !seen {
					bt.additions = append(bt.additions, user)
				}
			}

		case proto.KindUserLeave:
			if len(m.tokens) < minLeaveTokens {
				continue
			}
			name := m.tokens[idxName]
			bt.removals[name] = struct{}{}
			// A join earlier in this batch is cancelled by the leave. The
			// handled mark stays, so a later Join or In is still suppressed.
			bt.dropAddition(name)
			if b.leaveClock.allow(b.sched.Now()) {
				b.sinks.emitLog("User leave " + name)
			}
		}
	}
	return bt
}

// apply mutates the roster: removals, then in-place updates, then appends.
// Callers hold b.mu.
func (b *Batcher) apply(bt *batch) {
	if len(bt.removals) > 0 {
		kept := b.roster[:0]
		for _, u := range b.roster {
			if _, gone := bt.removals[u.Name]; !gone {
				kept = append(kept, u)
			}
		}
		b.roster = kept
	}

	for _, u := range bt.updates {
		if i := b.roster.indexOf(u.Name); i >= 0 {
			b.roster[i] = u
		}
	}

	for _, u := range bt.additions {
		if !b.roster.contains(u.Name) {
			b.roster = append(b.roster, u)
		}
	}
}

func (b *Batcher) windowState() windowState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window
}
