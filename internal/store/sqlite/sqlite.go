package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/pchat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sightings (
	name       TEXT PRIMARY KEY,
	flags      TEXT NOT NULL DEFAULT '',
	ping       TEXT NOT NULL DEFAULT '',
	stats      TEXT NOT NULL DEFAULT '',
	channel    TEXT NOT NULL DEFAULT '',
	first_seen DATETIME NOT NULL,
	last_seen  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sightings_last_seen ON sightings(last_seen);
`

// SQLiteStore implements store.PresenceStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRoster upserts each user in one transaction.
func (s *SQLiteStore) RecordRoster(ctx context.Context, channel string, users []store.SeenUser, at time.Time) error {
	if len(users) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sightings (name, flags, ping, stats, channel, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			flags     = excluded.flags,
			ping      = excluded.ping,
			stats     = excluded.stats,
			channel   = excluded.channel,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	at = at.UTC()
	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.Name, u.Flags, u.Ping, u.Stats, channel, at, at); err != nil {
			return fmt.Errorf("upsert sighting %s: %w", u.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetSighting retrieves the last sighting of a user.
func (s *SQLiteStore) GetSighting(ctx context.Context, name string) (*store.Sighting, error) {
	query := `
		SELECT name, flags, ping, stats, channel, first_seen, last_seen
		FROM sightings
		WHERE name = ?
	`
	var sg store.Sighting
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&sg.Name,
		&sg.Flags,
		&sg.Ping,
		&sg.Stats,
		&sg.Channel,
		&sg.FirstSeen,
		&sg.LastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sighting %s: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query sighting: %w", err)
	}
	return &sg, nil
}

// ListRecent returns up to limit sightings, most recent first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*store.Sighting, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT name, flags, ping, stats, channel, first_seen, last_seen
		FROM sightings
		ORDER BY last_seen DESC, name ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var out []*store.Sighting
	for rows.Next() {
		var sg store.Sighting
		if err := rows.Scan(&sg.Name, &sg.Flags, &sg.Ping, &sg.Stats, &sg.Channel, &sg.FirstSeen, &sg.LastSeen); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		out = append(out, &sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return out, nil
}
