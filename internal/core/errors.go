package core

import "errors"

var (
	// ErrHandler marks a fault raised while handling a single protocol line.
	ErrHandler = errors.New("message handler failed")
	// ErrNoReplier is returned when a ping arrives before a replier is wired.
	ErrNoReplier = errors.New("no keepalive replier configured")
)
