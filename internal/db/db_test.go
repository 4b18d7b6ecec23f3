package db

import (
	"testing"

	"github.com/registryhub/registryd/internal/models"
	internalsettings "github.com/registryhub/registryd/internal/settings"
)

func TestOpenSQLiteAndDialectHelpers(t *testing.T) {
	conn, err := Open("file:db_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if !IsSQLite(conn) {
		t.Fatalf("dialect = %q, want sqlite", DialectName(conn))
	}
	if got := LeastFunc(conn); got != "MIN" {
		t.Fatalf("least = %q, want MIN", got)
	}
	if got := GreatestFunc(conn); got != "MAX" {
		t.Fatalf("greatest = %q, want MAX", got)
	}
}

func TestOpenEmptyDSN(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestDialectNameNil(t *testing.T) {
	if got := DialectName(nil); got != "" {
		t.Fatalf("dialect for nil conn = %q", got)
	}
}

func TestMigrateCreatesSchemaAndSeedsGateSettings(t *testing.T) {
	conn, err := Open("file:migrate_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{
		"users", "admins", "api_keys", "crates", "crate_versions",
		"publish_limit_buckets", "publish_rate_overrides", "settings",
	} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}

	var count int64
	if errCount := conn.Model(&models.Setting{}).
		Where("key = ?", internalsettings.GateLimitKey).
		Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("gate limit setting rows = %d, want 1", count)
	}

	// Migrate is idempotent and keeps existing settings rows.
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
}

func TestSeededScalarSettingsSurviveTheSQLiteRoundTrip(t *testing.T) {
	conn, err := Open("file:seed_roundtrip_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	t.Cleanup(internalsettings.ResetForTest)

	// Scalar JSON values like 0 and false must come back as the JSON text
	// they were written as; a column with numeric affinity would coerce
	// them to integers and break the scan.
	if errReload := internalsettings.Reload(conn); errReload != nil {
		t.Fatalf("reload: %v", errReload)
	}
	raw, ok := internalsettings.DBConfigValue(internalsettings.GateLimitKey)
	if !ok {
		t.Fatal("seeded gate limit missing from snapshot")
	}
	if string(raw) != "0" {
		t.Fatalf("gate limit raw = %s, want 0", raw)
	}
	raw, ok = internalsettings.DBConfigValue(internalsettings.GateRedisEnabledKey)
	if !ok {
		t.Fatal("seeded redis flag missing from snapshot")
	}
	if string(raw) != "false" {
		t.Fatalf("redis flag raw = %s, want false", raw)
	}
}
