// Package database persists observed manifest events in SQLite so drives
// can be restored to their last-seen state without touching the network.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store is the local manifest event cache.
type Store struct {
	db   *sql.DB
	path string
}

// DriveRef identifies one cached drive: the newest event per
// (kind, pubkey, identifier).
type DriveRef struct {
	Kind       int
	Pubkey     string
	Identifier string
	UpdatedAt  time.Time
}

// Open opens (or creates) the event cache at path and migrates its schema.
// path can be a file path or ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating event cache: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. This is exported for use in tools and tests that
// need a properly configured SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEvent records a manifest event. Saving the same event id twice is a
// no-op. Events without an identifier tag are stored under an empty
// identifier; drives never produce those but relays can deliver anything.
func (s *Store) SaveEvent(ev *nostr.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	identifier := ""
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			identifier = tag[1]
			break
		}
	}

	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO events (id, kind, pubkey, identifier, created_at, raw)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Kind, ev.PubKey, identifier, int64(ev.CreatedAt), string(raw),
	)
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}
	return nil
}

// LatestEvent returns the newest cached event for a drive, or nil if none
// is cached.
func (s *Store) LatestEvent(kind int, pubkey, identifier string) (*nostr.Event, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT raw FROM events
		WHERE kind = ? AND pubkey = ? AND identifier = ?
		ORDER BY created_at DESC
		LIMIT 1`,
		kind, pubkey, identifier,
	)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading latest event: %w", err)
	}

	var ev nostr.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("decoding cached event: %w", err)
	}
	return &ev, nil
}

// ListDrives returns every cached drive, newest first.
func (s *Store) ListDrives() ([]DriveRef, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT kind, pubkey, identifier, MAX(created_at)
		FROM events
		WHERE identifier != ''
		GROUP BY kind, pubkey, identifier
		ORDER BY MAX(created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	defer rows.Close()

	var refs []DriveRef
	for rows.Next() {
		var ref DriveRef
		var createdAt int64
		if err := rows.Scan(&ref.Kind, &ref.Pubkey, &ref.Identifier, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning drive row: %w", err)
		}
		ref.UpdatedAt = time.Unix(createdAt, 0)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	return refs, nil
}
