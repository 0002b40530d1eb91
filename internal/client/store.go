package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

// Persisted is what survives a restart of the dashboard.
type Persisted struct {
	Token   string
	Profile auth.Profile
	SavedAt time.Time
}

// Store keeps the signed-in token and profile. Load returns nil, nil when
// nothing is stored.
type Store interface {
	Load(ctx context.Context) (*Persisted, error)
	Save(ctx context.Context, p *Persisted) error
	Clear(ctx context.Context) error
}

// MemoryStore forgets everything when the process exits.
type MemoryStore struct {
	mu sync.Mutex
	p  *Persisted
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p == nil {
		return nil, nil
	}
	cp := *m.p
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, p *Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.p = &cp
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = nil
	return nil
}

const sessionSchemaVersion = 1

// SQLiteStore keeps the session in a single-row table of a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the session database at path.
// ":memory:" is accepted for tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// one connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	if err := migrateSessionDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSessionDB(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= sessionSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			profile TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("migrate: create session table: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, sessionSchemaVersion); err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Persisted, error) {
	var token, profile, savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT token, profile, saved_at FROM session WHERE id = 1`).
		Scan(&token, &profile, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	p := &Persisted{Token: token}
	if err := json.Unmarshal([]byte(profile), &p.Profile); err != nil {
		return nil, fmt.Errorf("load session: decode profile: %w", err)
	}
	if p.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("load session: saved_at: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Save(ctx context.Context, p *Persisted) error {
	profile, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("save session: encode profile: %w", err)
	}
	savedAt := p.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, token, profile, saved_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET token = excluded.token, profile = excluded.profile, saved_at = excluded.saved_at`,
		p.Token, string(profile), savedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
