package core

import (
	"sync"
	"time"
)

// Timer is a pending scheduled call.
type Timer interface {
	// Stop cancels the call. It reports false if the call already started.
	Stop() bool
}

// Scheduler runs deferred and background work. It is owned by the top-level
// application and passed to every component that needs to defer work.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Go(f func())
}

// TimerScheduler is the production Scheduler backed by time.AfterFunc.
// Wait blocks until all started work has returned.
type TimerScheduler struct {
	wg sync.WaitGroup
}

// NewScheduler creates a scheduler backed by the system clock.
func NewScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

// Now returns the current wall-clock time.
func (s *TimerScheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc calls f in its own goroutine once d has elapsed.
func (s *TimerScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.wg.Add(1)
	t := &schedTimer{done: s.wg.Done}
	t.timer = time.AfterFunc(d, func() {
		defer s.wg.Done()
		f()
	})
	return t
}

// Go runs f in a new goroutine.
func (s *TimerScheduler) Go(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// Wait blocks until every scheduled call has either run or been stopped.
func (s *TimerScheduler) Wait() {
	s.wg.Wait()
}

type schedTimer struct {
	timer *time.Timer
	done  func()
}

func (t *schedTimer) Stop() bool {
	if t.timer.Stop() {
		t.done()
		return true
	}
	return false
}
