package core

import "sync/atomic"

// LogSink receives human-readable log lines in processing order.
type LogSink interface {
	Log(text string)
}

// RosterSink receives full roster snapshots.
type RosterSink interface {
	UpdateRoster(users []User)
}

// LogSinkFunc adapts a function to LogSink.
type LogSinkFunc func(text string)

func (f LogSinkFunc) Log(text string) { f(text) }

// RosterSinkFunc adapts a function to RosterSink.
type RosterSinkFunc func(users []User)

func (f RosterSinkFunc) UpdateRoster(users []User) { f(users) }

// LogSinks fans one log line out to several sinks.
type LogSinks []LogSink

func (s LogSinks) Log(text string) {
	for _, sink := range s {
		if sink != nil {
			sink.Log(text)
		}
	}
}

// RosterSinks fans one snapshot out to several sinks. Each sink gets its own copy.
type RosterSinks []RosterSink

func (s RosterSinks) UpdateRoster(users []User) {
	for _, sink := range s {
		if sink != nil {
			sink.UpdateRoster(roster(users).snapshot())
		}
	}
}

// sinks holds the currently bound collaborators. Either may be replaced at
// any time; every emission reads the current value.
type sinks struct {
	log    atomic.Pointer[LogSink]
	roster atomic.Pointer[RosterSink]
}

func (s *sinks) setLog(sink LogSink) {
	if sink == nil {
		s.log.Store(nil)
		return
	}
	s.log.Store(&sink)
}

func (s *sinks) setRoster(sink RosterSink) {
	if sink == nil {
		s.roster.Store(nil)
		return
	}
	s.roster.Store(&sink)
}

func (s *sinks) emitLog(text string) {
	if p := s.log.Load(); p != nil {
		(*p).Log(text)
	}
}

func (s *sinks) emitRoster(users []User) {
	if p := s.roster.Load(); p != nil {
		(*p).UpdateRoster(users)
	}
}
