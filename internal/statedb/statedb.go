// Package statedb reads agent-deck's per-profile SQLite store, which holds
// the sessions orca classifies and their coarse lifecycle status.
package statedb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the agent-deck schema orca understands.
const SchemaVersion = 1

// ErrNotFound is returned by OpenReadOnly when the database file is missing,
// and by LoadInstance for an unknown id.
var ErrNotFound = errors.New("statedb: not found")

// StateDB wraps the agent-deck SQLite database.
type StateDB struct {
	db       *sql.DB
	readOnly bool
}

// InstanceRow is one session.
type InstanceRow struct {
	ID              string
	Title           string
	ProjectPath     string
	GroupPath       string
	Order           int
	Command         string
	Wrapper         string
	Tool            string
	Status          string
	TmuxSession     string
	CreatedAt       time.Time
	LastAccessed    time.Time
	ParentSessionID string
	WorktreePath    string
	WorktreeRepo    string
	WorktreeBranch  string
	ToolData        json.RawMessage
}

// GroupRow is one session group.
type GroupRow struct {
	Path        string
	Name        string
	Expanded    bool
	Order       int
	DefaultPath string
}

type toolData struct {
	ClaudeSessionID string `json:"claude_session_id"`
}

// ClaudeSessionID returns the Claude conversation id kept in tool_data, or
// "" when absent or unreadable.
func (r *InstanceRow) ClaudeSessionID() string {
	if len(r.ToolData) == 0 {
		return ""
	}
	var td toolData
	if err := json.Unmarshal(r.ToolData, &td); err != nil {
		return ""
	}
	return td.ClaudeSessionID
}

// Open creates or opens a writable database with WAL and a busy timeout.
// orca itself only reads agent-deck's store; Open exists for fixtures and
// tooling.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}
	return &StateDB{db: db}, nil
}

// OpenReadOnly opens an existing database without write access, so agent-deck
// keeps sole ownership of its file.
func OpenReadOnly(dbPath string) (*StateDB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dbPath)
		}
		return nil, fmt.Errorf("statedb: stat: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: open %s: %w", dbPath, err)
	}
	return &StateDB{db: db, readOnly: true}, nil
}

// Close checkpoints the WAL (writable handles only) and closes.
func (s *StateDB) Close() error {
	if !s.readOnly {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates agent-deck's tables if missing.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			project_path    TEXT NOT NULL,
			group_path      TEXT NOT NULL DEFAULT 'my-sessions',
			sort_order      INTEGER NOT NULL DEFAULT 0,
			command         TEXT NOT NULL DEFAULT '',
			wrapper         TEXT NOT NULL DEFAULT '',
			tool            TEXT NOT NULL DEFAULT 'shell',
			status          TEXT NOT NULL DEFAULT 'error',
			tmux_session    TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL,
			last_accessed   INTEGER NOT NULL DEFAULT 0,
			parent_session_id TEXT NOT NULL DEFAULT '',
			worktree_path     TEXT NOT NULL DEFAULT '',
			worktree_repo     TEXT NOT NULL DEFAULT '',
			worktree_branch   TEXT NOT NULL DEFAULT '',
			tool_data       TEXT NOT NULL DEFAULT '{}',
			acknowledged    INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create instances: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS groups (
			path         TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			expanded     INTEGER NOT NULL DEFAULT 1,
			sort_order   INTEGER NOT NULL DEFAULT 0,
			default_path TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("statedb: create groups: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// SaveInstance inserts or replaces one instance.
func (s *StateDB) SaveInstance(inst *InstanceRow) error {
	td := inst.ToolData
	if len(td) == 0 {
		td = json.RawMessage("{}")
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO instances (
			id, title, project_path, group_path, sort_order,
			command, wrapper, tool, status, tmux_session,
			created_at, last_accessed,
			parent_session_id, worktree_path, worktree_repo, worktree_branch,
			tool_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inst.ID, inst.Title, inst.ProjectPath, inst.GroupPath, inst.Order,
		inst.Command, inst.Wrapper, inst.Tool, inst.Status, inst.TmuxSession,
		inst.CreatedAt.Unix(), unixOrZero(inst.LastAccessed),
		inst.ParentSessionID, inst.WorktreePath, inst.WorktreeRepo, inst.WorktreeBranch,
		string(td),
	)
	if err != nil {
		return fmt.Errorf("statedb: save instance %s: %w", inst.ID, err)
	}
	return nil
}

// SaveGroups replaces all groups.
func (s *StateDB) SaveGroups(groups []*GroupRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM groups"); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO groups (path, name, expanded, sort_order, default_path)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range groups {
		expanded := 0
		if g.Expanded {
			expanded = 1
		}
		if _, err := stmt.Exec(g.Path, g.Name, expanded, g.Order, g.DefaultPath); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const instanceColumns = `
	id, title, project_path, group_path, sort_order,
	command, wrapper, tool, status, tmux_session,
	created_at, last_accessed,
	parent_session_id, worktree_path, worktree_repo, worktree_branch,
	tool_data`

// LoadInstances returns every session ordered by group then sort order.
func (s *StateDB) LoadInstances() ([]*InstanceRow, error) {
	return s.queryInstances(`SELECT` + instanceColumns + ` FROM instances ORDER BY group_path, sort_order`)
}

// LoadCandidates returns the sessions agent-deck reports as waiting or
// errored, which are the only ones that can need attention in bulk scans.
func (s *StateDB) LoadCandidates() ([]*InstanceRow, error) {
	return s.queryInstances(`SELECT` + instanceColumns +
		` FROM instances WHERE status IN ('waiting', 'error') ORDER BY group_path, sort_order`)
}

// LoadInstance returns one session or ErrNotFound.
func (s *StateDB) LoadInstance(id string) (*InstanceRow, error) {
	rows, err := s.queryInstances(`SELECT`+instanceColumns+` FROM instances WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return rows[0], nil
}

func (s *StateDB) queryInstances(query string, args ...any) ([]*InstanceRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: query instances: %w", err)
	}
	defer rows.Close()

	var result []*InstanceRow
	for rows.Next() {
		r := &InstanceRow{}
		var createdUnix, accessedUnix int64
		var td string
		if err := rows.Scan(
			&r.ID, &r.Title, &r.ProjectPath, &r.GroupPath, &r.Order,
			&r.Command, &r.Wrapper, &r.Tool, &r.Status, &r.TmuxSession,
			&createdUnix, &accessedUnix,
			&r.ParentSessionID, &r.WorktreePath, &r.WorktreeRepo, &r.WorktreeBranch,
			&td,
		); err != nil {
			return nil, fmt.Errorf("statedb: scan instance: %w", err)
		}
		r.CreatedAt = time.Unix(createdUnix, 0)
		if accessedUnix > 0 {
			r.LastAccessed = time.Unix(accessedUnix, 0)
		}
		r.ToolData = json.RawMessage(td)
		result = append(result, r)
	}
	return result, rows.Err()
}

// LoadGroups returns all groups ordered by sort order.
func (s *StateDB) LoadGroups() ([]*GroupRow, error) {
	rows, err := s.db.Query(`
		SELECT path, name, expanded, sort_order, default_path
		FROM groups ORDER BY sort_order
	`)
	if err != nil {
		return nil, fmt.Errorf("statedb: query groups: %w", err)
	}
	defer rows.Close()

	var result []*GroupRow
	for rows.Next() {
		g := &GroupRow{}
		var expanded int
		if err := rows.Scan(&g.Path, &g.Name, &expanded, &g.Order, &g.DefaultPath); err != nil {
			return nil, fmt.Errorf("statedb: scan group: %w", err)
		}
		g.Expanded = expanded != 0
		result = append(result, g)
	}
	return result, rows.Err()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
