//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/db"
	"github.com/learnlegits-ceo/er-command-center-sub001/migrations"
)

// globalPool is shared by every test; each test works in its own tenant
// schema.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

func uniqueTenantID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
}

// newTenant creates a migrated tenant schema and drops it when t ends.
func newTenant(t *testing.T, prefix string) string {
	t.Helper()
	ctx := context.Background()
	tenantID := uniqueTenantID(prefix)
	if err := db.CreateTenantSchema(ctx, globalPool, tenantID, migrations.FS); err != nil {
		t.Fatalf("create tenant schema %s: %v", tenantID, err)
	}
	t.Cleanup(func() {
		if _, err := globalPool.Exec(ctx, "DROP SCHEMA IF EXISTS "+db.SchemaName(tenantID)+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", tenantID, err)
		}
	})
	return tenantID
}

// withTenantConn pins one connection to the tenant schema for fn, the way
// the tenant middleware does for a request.
func withTenantConn(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	conn, err := globalPool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", db.SchemaName(tenantID))); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	defer conn.Exec(context.Background(), "RESET search_path") //nolint:errcheck
	return fn(context.WithValue(ctx, db.DBConnKey, conn))
}

// insertPatient adds a pending-triage patient directly.
func insertPatient(t *testing.T, tenantID, name, complaint string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := withTenantConn(context.Background(), tenantID, func(ctx context.Context) error {
		return db.ConnFromContext(ctx).QueryRow(ctx,
			`INSERT INTO patients (name, age, complaint) VALUES ($1, 54, $2) RETURNING id`,
			name, complaint).Scan(&id)
	})
	if err != nil {
		t.Fatalf("insert patient: %v", err)
	}
	return id
}

func ptrInt(i int) *int { return &i }

func ptrStr(s string) *string { return &s }

func ptrFloat(f float64) *float64 { return &f }
