package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/timecard-works/timecard/internal/models"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func TestMigrateCreatesTables(t *testing.T) {
	conn := openMemory(t)

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	for _, table := range []string{"instances", "attendance", "attendance_locks", "shift_plan", "settings", "admin_sessions", "portal_users", "portal_reset_tokens"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	if !conn.Migrator().HasIndex("attendance", "uq_attendance_instance_date") {
		t.Fatalf("attendance unique index missing")
	}
}

func TestMigrationStepsCreateOnlyTheirOwnTables(t *testing.T) {
	conn := openMemory(t)

	if errApply := migrations[0].apply(conn); errApply != nil {
		t.Fatalf("apply first step: %v", errApply)
	}
	if !conn.Migrator().HasTable("instances") || !conn.Migrator().HasColumn("instances", "profile_instance_id") {
		t.Fatalf("first step must create the instances table")
	}
	for _, table := range []string{"settings", "admin_sessions", "portal_users", "portal_reset_tokens"} {
		if conn.Migrator().HasTable(table) {
			t.Fatalf("first step must not create %s", table)
		}
	}
}

func TestMigratedSchemaCoversModels(t *testing.T) {
	conn := openMemory(t)
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	all := []any{
		&models.Instance{}, &models.Attendance{}, &models.AttendanceLock{}, &models.ShiftPlan{},
		&models.Setting{}, &models.AdminSession{}, &models.PortalUser{}, &models.PortalResetToken{},
	}
	for _, model := range all {
		stmt := &gorm.Statement{DB: conn}
		if errParse := stmt.Parse(model); errParse != nil {
			t.Fatalf("parse %T: %v", model, errParse)
		}
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			if !conn.Migrator().HasColumn(stmt.Schema.Table, field.DBName) {
				t.Fatalf("%s.%s is used by %T but no migration creates it", stmt.Schema.Table, field.DBName, model)
			}
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openMemory(t)

	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("first migrate: %v", errMigrate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
	var count int64
	if errCount := conn.Table("schema_migrations").Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if int(count) != len(migrations) {
		t.Fatalf("expected %d rows, got %d", len(migrations), count)
	}
}

func TestEnsureSchemaFailsFastBeforeMigrate(t *testing.T) {
	conn := openMemory(t)

	errEnsure := EnsureSchema(conn)
	if !errors.Is(errEnsure, ErrSchemaOutdated) {
		t.Fatalf("expected ErrSchemaOutdated, got %v", errEnsure)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errEnsure = EnsureSchema(conn); errEnsure != nil {
		t.Fatalf("expected schema ok, got %v", errEnsure)
	}
}

func TestDetectDialectFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/timecard": DialectPostgres,
		"host=localhost user=u dbname=x":    DialectPostgres,
		"file:data/timecard.db":             DialectSQLite,
		"sqlite://data/timecard.db":         DialectSQLite,
		"timecard.db":                       DialectSQLite,
	}
	for dsn, want := range cases {
		got, err := detectDialectFromDSN(dsn)
		if err != nil || got != want {
			t.Fatalf("detectDialectFromDSN(%q) = %q, %v; want %q", dsn, got, err, want)
		}
	}
	if _, err := detectDialectFromDSN("mysql://x"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

func TestEnsureSQLitePragmas(t *testing.T) {
	got := ensureSQLitePragmas("file:data/x.db")
	want := "file:data/x.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	if got != want {
		t.Fatalf("unexpected dsn %q", got)
	}
	custom := "file:x.db?_pragma=busy_timeout(100)"
	if ensureSQLitePragmas(custom) != custom {
		t.Fatalf("custom pragmas must be kept")
	}
	if sqlitePathFromDSN("file:x?mode=memory&cache=shared") != "" {
		t.Fatalf("memory dsn must not map to a path")
	}
	if sqlitePathFromDSN("file:data/x.db?_pragma=foreign_keys(1)") != "data/x.db" {
		t.Fatalf("unexpected path")
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	dsn := "file:" + t.TempDir() + "/nested/timecard.db"
	conn, errOpen := Open(dsn)
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	t.Cleanup(func() { _ = Close(conn) })
	if DialectName(conn) != DialectSQLite {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
}
