// Package localdb is orca's own SQLite store: prompts typed when a session
// was created, Web Push subscriptions, and small settings such as the VAPID
// keypair.
package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrInvalidSubscription is returned for subscriptions missing a field.
var ErrInvalidSubscription = errors.New("localdb: invalid push subscription")

// LocalDB wraps orca.db.
type LocalDB struct {
	db *sql.DB
}

// Subscription is a browser Web Push subscription.
type Subscription struct {
	Endpoint  string    `json:"endpoint"`
	P256DH    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize trims whitespace from every field.
func (s Subscription) Normalize() Subscription {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.P256DH = strings.TrimSpace(s.P256DH)
	s.Auth = strings.TrimSpace(s.Auth)
	return s
}

// Validate reports the first missing field.
func (s Subscription) Validate() error {
	s = s.Normalize()
	switch {
	case s.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	case s.P256DH == "":
		return fmt.Errorf("%w: keys.p256dh is required", ErrInvalidSubscription)
	case s.Auth == "":
		return fmt.Errorf("%w: keys.auth is required", ErrInvalidSubscription)
	}
	return nil
}

// Open opens (creating if needed) the database and applies the schema.
func Open(dbPath string) (*LocalDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("localdb: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("localdb: open: %w", err)
	}
	// One connection keeps writers serialized inside this process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("localdb: %s: %w", pragma, err)
		}
	}

	l := &LocalDB{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close checkpoints the WAL and closes.
func (l *LocalDB) Close() error {
	_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return l.db.Close()
}

func (l *LocalDB) migrate() error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("localdb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_prompts (
			session_id TEXT PRIMARY KEY,
			prompt     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			endpoint   TEXT PRIMARY KEY,
			p256dh     TEXT NOT NULL,
			auth       TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("localdb: migrate: %w", err)
		}
	}
	return tx.Commit()
}

// SetPrompt stores the prompt for a session, replacing any previous one.
func (l *LocalDB) SetPrompt(ctx context.Context, sessionID, prompt string) error {
	if sessionID == "" {
		return fmt.Errorf("localdb: session id is required")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO session_prompts (session_id, prompt, created_at) VALUES (?, ?, ?)`,
		sessionID, prompt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("localdb: set prompt: %w", err)
	}
	return nil
}

// Prompt returns the stored prompt. ok is false when none exists.
func (l *LocalDB) Prompt(ctx context.Context, sessionID string) (prompt string, ok bool, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT prompt FROM session_prompts WHERE session_id = ?`, sessionID).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localdb: get prompt: %w", err)
	}
	return prompt, true, nil
}

// DeletePrompt removes a stored prompt; missing rows are not an error.
func (l *LocalDB) DeletePrompt(ctx context.Context, sessionID string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM session_prompts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("localdb: delete prompt: %w", err)
	}
	return nil
}

// UpsertSubscription validates and stores a subscription keyed by endpoint.
// The original creation time is kept on update.
func (l *LocalDB) UpsertSubscription(ctx context.Context, sub Subscription) error {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET p256dh = excluded.p256dh, auth = excluded.auth`,
		sub.Endpoint, sub.P256DH, sub.Auth, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("localdb: upsert subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns subscriptions oldest first.
func (l *LocalDB) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT endpoint, p256dh, auth, created_at FROM push_subscriptions ORDER BY created_at, endpoint`)
	if err != nil {
		return nil, fmt.Errorf("localdb: list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		var created int64
		if err := rows.Scan(&s.Endpoint, &s.P256DH, &s.Auth, &created); err != nil {
			return nil, fmt.Errorf("localdb: scan subscription: %w", err)
		}
		s.CreatedAt = time.Unix(created, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// RemoveSubscription deletes by endpoint; missing rows are not an error.
func (l *LocalDB) RemoveSubscription(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("localdb: remove subscription: %w", err)
	}
	return nil
}

// CountSubscriptions returns the number of stored subscriptions.
func (l *LocalDB) CountSubscriptions(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("localdb: count subscriptions: %w", err)
	}
	return n, nil
}

// Setting returns a stored value. ok is false when unset.
func (l *LocalDB) Setting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = l.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localdb: get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores a value.
func (l *LocalDB) SetSetting(ctx context.Context, key, value string) error {
	if _, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("localdb: set setting %s: %w", key, err)
	}
	return nil
}
