package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrMigrationDrift is returned when an applied migration file was edited
// after it ran against a schema.
var ErrMigrationDrift = errors.New("applied migration has changed on disk")

// Migration is one NNN_name.sql file.
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// MigrationStatus is a Migration as seen from one hospital schema.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Drifted   bool
}

type appliedMigration struct {
	checksum  string
	appliedAt time.Time
}

// Migrator brings a hospital schema up to the latest ER schema. Pending files
// are applied in one transaction under a per-schema advisory lock, so two
// processes provisioning the same hospital cannot interleave.
type Migrator struct {
	pool   *pgxpool.Pool
	files  fs.FS
	logger zerolog.Logger
}

func NewMigrator(pool *pgxpool.Pool, files fs.FS) *Migrator {
	return &Migrator{pool: pool, files: files, logger: zerolog.Nop()}
}

// SetLogger reports each applied file.
func (m *Migrator) SetLogger(l zerolog.Logger) { m.logger = l }

// parseMigrationName splits "007_add_beds.sql" into 7. ok is false for
// anything that is not a versioned SQL file.
func parseMigrationName(name string) (version int, ok bool) {
	if path.Ext(name) != ".sql" {
		return 0, false
	}
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}

// LoadMigrations reads the top level of the file set and returns the
// versioned files in ascending order. Two files sharing a version is an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := parseMigrationName(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, entry.Name(), version)
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(m.files, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{
			Version:  version,
			Name:     entry.Name(),
			SQL:      string(body),
			Checksum: checksum(string(body)),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// pending returns the files not yet recorded in applied. A recorded file
// whose checksum no longer matches stops the plan with ErrMigrationDrift.
func pending(files []Migration, applied map[int]appliedMigration) ([]Migration, error) {
	var todo []Migration
	for _, mig := range files {
		rec, ok := applied[mig.Version]
		if !ok {
			todo = append(todo, mig)
			continue
		}
		if rec.checksum != "" && rec.checksum != mig.Checksum {
			return nil, fmt.Errorf("%s: %w", mig.Name, ErrMigrationDrift)
		}
	}
	return todo, nil
}

func ensureLedger(ctx context.Context, q Querier, schema string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, schema))
	if err != nil {
		return fmt.Errorf("create schema_migrations in %s: %w", schema, err)
	}
	return nil
}

func readLedger(ctx context.Context, q Querier, schema string) (map[int]appliedMigration, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT version, checksum, applied_at FROM %s.schema_migrations`, schema))
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]appliedMigration)
	for rows.Next() {
		var v int
		var rec appliedMigration
		if err := rows.Scan(&v, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = rec
	}
	return applied, rows.Err()
}

// Up applies every pending migration to schema and returns how many ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	files, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	ident := pgx.Identifier{schema}.Sanitize()

	applied := 0
	err = pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "migrate:"+schema); err != nil {
			return fmt.Errorf("lock %s: %w", schema, err)
		}
		if err := ensureLedger(ctx, tx, ident); err != nil {
			return err
		}
		recorded, err := readLedger(ctx, tx, ident)
		if err != nil {
			return err
		}
		todo, err := pending(files, recorded)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", ident)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		for _, mig := range todo {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("apply %s: %w", mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				mig.Version, mig.Name, mig.Checksum,
			); err != nil {
				return fmt.Errorf("record %s: %w", mig.Name, err)
			}
			m.logger.Info().Str("schema", schema).Int("version", mig.Version).Str("file", mig.Name).Msg("migration applied")
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// Status lists every known file against schema, flagging edited ones.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	files, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	ident := pgx.Identifier{schema}.Sanitize()
	if err := ensureLedger(ctx, m.pool, ident); err != nil {
		return nil, err
	}
	recorded, err := readLedger(ctx, m.pool, ident)
	if err != nil {
		return nil, err
	}
	return statusOf(files, recorded), nil
}

func statusOf(files []Migration, recorded map[int]appliedMigration) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(files))
	for _, mig := range files {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if rec, ok := recorded[mig.Version]; ok {
			at := rec.appliedAt
			st.Applied = true
			st.AppliedAt = &at
			st.Drifted = rec.checksum != mig.Checksum
		}
		out = append(out, st)
	}
	return out
}
