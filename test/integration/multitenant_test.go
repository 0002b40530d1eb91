//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/db"
	"github.com/learnlegits-ceo/er-command-center-sub001/migrations"
)

func TestMultiTenantIsolation(t *testing.T) {
	tenantA := newTenant(t, "hospa")
	tenantB := newTenant(t, "hospb")
	svc, _ := newTriageService()
	ctx := context.Background()

	patientA := insertPatient(t, tenantA, "Tenant A Patient", "fever")
	insertPatient(t, tenantA, "Tenant A Second", "cough")
	insertPatient(t, tenantB, "Tenant B Patient", "sprain")

	count := func(tenantID string) int {
		var n int
		err := withTenantConn(ctx, tenantID, func(ctx context.Context) error {
			return db.ConnFromContext(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM patients").Scan(&n)
		})
		if err != nil {
			t.Fatalf("count patients in %s: %v", tenantID, err)
		}
		return n
	}
	if n := count(tenantA); n != 2 {
		t.Errorf("expected 2 patients in tenant A, got %d", n)
	}
	if n := count(tenantB); n != 1 {
		t.Errorf("expected 1 patient in tenant B, got %d", n)
	}

	err := withTenantConn(ctx, tenantB, func(ctx context.Context) error {
		_, err := svc.ShiftTriage(ctx, patientA, triage.ShiftInput{Priority: 2}, nurse)
		if !errors.Is(err, triage.ErrNotFound) {
			t.Errorf("tenant B shifted a tenant A patient: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMigrator_StatusAfterTenantCreate(t *testing.T) {
	tenantID := newTenant(t, "migr")
	ctx := context.Background()

	err := withTenantConn(ctx, tenantID, func(ctx context.Context) error {
		var tables int
		err := db.ConnFromContext(ctx).QueryRow(ctx, `
			SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = $1
			  AND table_name IN ('beds', 'patients', 'triage_transitions', 'patient_vitals', 'patient_notes', 'alerts')`,
			db.SchemaName(tenantID)).Scan(&tables)
		if err != nil {
			return err
		}
		if tables != 6 {
			t.Errorf("expected 6 tables in tenant schema, got %d", tables)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Re-running tenant creation is a no-op.
	if err := db.CreateTenantSchema(ctx, globalPool, tenantID, migrations.FS); err != nil {
		t.Fatalf("second create: %v", err)
	}
}
