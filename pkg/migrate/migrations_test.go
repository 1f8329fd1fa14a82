package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/incentives-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSettlementRunsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_settlement_runs")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS settlement_runs",
		"lock_version integer NOT NULL DEFAULT 0",
		"CHECK (status IN ('PENDING', 'PROCESSING', 'FINISHED'))",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_settlement_runs_key",
		"COALESCE(user_type_id, '00000000-0000-0000-0000-000000000000'::uuid)",
		"settlement_run_id uuid NOT NULL UNIQUE",
		"DROP TABLE IF EXISTS settlement_runs",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestIncentiveRulesMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_incentive_rules")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS incentive_rules",
		"CHECK (base_total = profit_margin + base_allowance)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_incentive_rules_scope",
		"WHERE is_active",
		"CREATE TABLE IF NOT EXISTS incentive_histories",
		"DROP TABLE IF EXISTS incentive_rules",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Run Notes!", now)
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if filepath.Base(path) != "20260502103000_add_run_notes.sql" {
		t.Fatalf("unexpected filename %q", path)
	}
	if err := migrate.Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add run notes", now); err == nil {
		t.Fatal("expected existing migration to be rejected")
	}
	if _, err := migrate.CreateSQLMigration(dir, "  !!  ", now); err == nil {
		t.Fatal("expected empty sanitized name to fail")
	}
}

func TestValidateRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.Validate(os.DirFS(dir)); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateRejectsUnbalancedStatements(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_broken.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.Validate(os.DirFS(dir)); err == nil {
		t.Fatal("expected unbalanced statement blocks to fail")
	}
}

func TestSourceDefaultsToEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrate.Source(""), ".")
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	if len(entries) < 4 {
		t.Fatalf("expected embedded migrations, got %d entries", len(entries))
	}
}
