package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup has no match.
var ErrNotFound = errors.New("not found")

// SeenUser is a roster entry as recorded by the presence directory.
type SeenUser struct {
	Name  string
	Flags string
	Ping  string
	Stats string
}

// Sighting is the last known presence of a user.
type Sighting struct {
	Name      string
	Flags     string
	Ping      string
	Stats     string
	Channel   string
	FirstSeen time.Time
	LastSeen  time.Time
}

// PresenceStore keeps a directory of users seen in roster snapshots.
// It is not a chat log: only the latest presence per user is kept.
type PresenceStore interface {
	// RecordRoster upserts every user of a roster snapshot.
	RecordRoster(ctx context.Context, channel string, users []SeenUser, at time.Time) error

	// GetSighting returns the last sighting of a user, or ErrNotFound.
	GetSighting(ctx context.Context, name string) (*Sighting, error)

	// ListRecent returns sightings ordered by most recently seen.
	ListRecent(ctx context.Context, limit int) ([]*Sighting, error)

	// Close releases the underlying database.
	Close() error
}
