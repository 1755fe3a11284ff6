package core

import (
	"sort"
	"sync"
	"time"
)

// manualScheduler is a virtual clock: timers fire only from advance.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *manualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, at: s.now.Add(d), seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Go(f func()) { f() }

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// advance moves the clock forward, running due timers in order.
func (s *manualScheduler) advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due []*manualTimer
		for _, t := range s.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		s.now = next.at
		s.mu.Unlock()

		next.f()
	}
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) Log(text string) {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.mu.Unlock()
}

func (r *logRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *logRecorder) count(text string) int {
	n := 0
	for _, l := range r.all() {
		if l == text {
			n++
		}
	}
	return n
}

type rosterRecorder struct {
	mu        sync.Mutex
	snapshots [][]User
}

func (r *rosterRecorder) UpdateRoster(users []User) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, users)
	r.mu.Unlock()
}

func (r *rosterRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *rosterRecorder) last() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

type pongRecorder struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *pongRecorder) Pong(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type testEngine struct {
	*Engine
	sched  *manualScheduler
	logs   *logRecorder
	roster *rosterRecorder
	pongs  *pongRecorder
}

func newTestEngine() *testEngine {
	sched := newManualScheduler()
	pongs := &pongRecorder{}
	e := NewEngine(sched, pongs, Options{}, nil)
	logs := &logRecorder{}
	rs := &rosterRecorder{}
	e.SetLogSink(logs)
	e.SetRosterSink(rs)
	return &testEngine{Engine: e, sched: sched, logs: logs, roster: rs, pongs: pongs}
}

func (te *testEngine) feed(lines ...string) error {
	for _, l := range lines {
		if err := te.HandleLine(l); err != nil {
			return err
		}
	}
	return nil
}

func names(users []User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}
