package db

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	TenantIDKey contextKey = "tenant_id"
	DBConnKey   contextKey = "db_conn"
	DBTxKey     contextKey = "db_tx"
)

// TenantHeader selects a hospital on requests whose token does not name one.
const TenantHeader = "X-Tenant-ID"

// tenantIDPattern leaves room for the tenant_ prefix inside Postgres's
// 63 byte identifier limit.
var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,56}$`)

// SchemaName returns the Postgres schema holding a hospital's data. Ids are
// case-insensitive.
func SchemaName(tenantID string) string {
	return "tenant_" + strings.ToLower(tenantID)
}

// TenantMiddleware pins one pooled connection to the request with its
// search_path on the caller's hospital schema. The path is reset before the
// connection goes back to the pool.
func TenantMiddleware(pool *pgxpool.Pool, defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, err := resolveTenant(c, defaultTenant)
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer func() {
				_, _ = conn.Exec(context.WithoutCancel(ctx), "RESET search_path")
				conn.Release()
			}()

			schema := pgx.Identifier{SchemaName(tenantID)}.Sanitize()
			if _, err := conn.Exec(ctx, "SET search_path TO "+schema+", public"); err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant resolution failed")
			}

			ctx = context.WithValue(ctx, TenantIDKey, tenantID)
			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

// resolveTenant picks the hospital for a request. The token's hospital wins;
// a header naming a different one is refused rather than ignored.
func resolveTenant(c echo.Context, defaultTenant string) (string, error) {
	fromToken, _ := c.Get("jwt_tenant_id").(string)
	fromHeader := c.Request().Header.Get(TenantHeader)

	tenantID := defaultTenant
	switch {
	case fromToken != "":
		if fromHeader != "" && !strings.EqualFold(fromHeader, fromToken) {
			return "", echo.NewHTTPError(http.StatusForbidden, "token is not valid for this hospital")
		}
		tenantID = fromToken
	case fromHeader != "":
		tenantID = fromHeader
	}

	if !tenantIDPattern.MatchString(tenantID) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
	}
	return strings.ToLower(tenantID), nil
}

// ConnFromContext retrieves the tenant-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TxFromContext retrieves an open transaction started by InTx.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// TenantFromContext retrieves the tenant ID from context.
func TenantFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(TenantIDKey).(string)
	return tid
}

// CreateTenantSchema creates the schema for a hospital and applies every
// migration in migrations to it. A nil migrations skips the second step.
func CreateTenantSchema(ctx context.Context, pool *pgxpool.Pool, tenantID string, migrations fs.FS) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %s", tenantID)
	}

	schema := SchemaName(tenantID)
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	if migrations != nil {
		if _, err := NewMigrator(pool, migrations).Up(ctx, schema); err != nil {
			return fmt.Errorf("run migrations for %s: %w", schema, err)
		}
	}

	return nil
}
