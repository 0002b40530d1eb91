package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

func newTenantContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestResolveTenant(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		token  string
		want   string
	}{
		{"header", "/", "st_marys", "", "st_marys"},
		{"query ignored", "/?tenant_id=other_hospital", "", "", "default"},
		{"token wins", "/", "", "general", "general"},
		{"token matches header", "/", "GENERAL", "general", "general"},
		{"empty token falls through", "/", "header_tenant", "", "header_tenant"},
		{"lowercased", "/", "St_Marys", "", "st_marys"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTenantContext(tt.target)
			if tt.header != "" {
				c.Request().Header.Set(TenantHeader, tt.header)
			}
			c.Set("jwt_tenant_id", tt.token)

			got, err := resolveTenant(c, "default")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolveTenant_HeaderConflictsWithToken(t *testing.T) {
	c := newTenantContext("/")
	c.Request().Header.Set(TenantHeader, "other_hospital")
	c.Set("jwt_tenant_id", "general")

	_, err := resolveTenant(c, "default")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestResolveTenant_InvalidHeader(t *testing.T) {
	c := newTenantContext("/")
	c.Request().Header.Set(TenantHeader, "a-b")

	_, err := resolveTenant(c, "default")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestTenantIDPattern(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"ABC", true},
		{"general_hospital_2", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"", false},
		{"'; DROP TABLE", false},
		{strings.Repeat("a", 57), false},
	}

	for _, tt := range tests {
		if got := tenantIDPattern.MatchString(tt.input); got != tt.valid {
			t.Errorf("tenantIDPattern.MatchString(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("default"); got != "tenant_default" {
		t.Errorf("expected tenant_default, got %s", got)
	}
	if got := SchemaName("St_Marys"); got != "tenant_st_marys" {
		t.Errorf("expected tenant_st_marys, got %s", got)
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn from empty context")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx from empty context")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant from empty context")
	}
}

func TestContextAccessors_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	ctx = context.WithValue(ctx, DBTxKey, "not-a-tx")
	ctx = context.WithValue(ctx, TenantIDKey, 12345)

	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn for wrong type")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx for wrong type")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant for wrong type")
	}
}

func TestInTx_NoConnection(t *testing.T) {
	err := InTx(context.Background(), nil, func(context.Context, pgx.Tx) error {
		t.Fatal("callback must not run without a connection")
		return nil
	})
	if err == nil || err.Error() != "no database connection in context" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"invalid-id!", "tenant.with.dot", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, fstest.MapFS{}); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}
