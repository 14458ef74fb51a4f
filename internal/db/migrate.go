package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/models"
	"gorm.io/gorm"
)

// ErrSchemaOutdated is returned by EnsureSchema when migrations are pending.
var ErrSchemaOutdated = errors.New("db: schema is not up to date, run `timecard migrate`")

// migration is one forward-only schema step.
type migration struct {
	version string
	apply   func(tx *gorm.DB) error
}

// migrations lists every schema step in apply order. Versions are never reused
// and each step migrates its own frozen table shapes from schema_versions.go.
var migrations = []migration{
	{
		version: "20260105_0001_instances_attendance",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&v0001Instance{},
				&v0001Attendance{},
				&v0001AttendanceLock{},
				&v0001ShiftPlan{},
			)
		},
	},
	{
		version: "20260105_0002_settings",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&v0002Setting{})
		},
	},
	{
		version: "20260112_0003_admin_sessions",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&v0003AdminSession{})
		},
	},
	{
		version: "20260205_0004_portal_users",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&v0004PortalUser{}, &v0004PortalResetToken{})
		},
	},
}

// Migrate applies every pending migration. Each step commits together with its version row.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	if errCreate := conn.AutoMigrate(&models.SchemaMigration{}); errCreate != nil {
		return fmt.Errorf("db: create schema_migrations: %w", errCreate)
	}
	applied, errApplied := appliedVersions(conn)
	if errApplied != nil {
		return errApplied
	}
	for _, step := range migrations {
		if _, ok := applied[step.version]; ok {
			continue
		}
		errTx := conn.Transaction(func(tx *gorm.DB) error {
			if errApply := step.apply(tx); errApply != nil {
				return errApply
			}
			return tx.Create(&models.SchemaMigration{Version: step.version, AppliedAt: time.Now().UTC()}).Error
		})
		if errTx != nil {
			return fmt.Errorf("db: migration %s: %w", step.version, errTx)
		}
		log.Infof("applied migration %s", step.version)
	}
	return nil
}

// Pending returns the versions not yet applied.
func Pending(conn *gorm.DB) ([]string, error) {
	if conn == nil {
		return nil, errors.New("db: nil connection")
	}
	if !conn.Migrator().HasTable(&models.SchemaMigration{}) {
		all := make([]string, 0, len(migrations))
		for _, step := range migrations {
			all = append(all, step.version)
		}
		return all, nil
	}
	applied, errApplied := appliedVersions(conn)
	if errApplied != nil {
		return nil, errApplied
	}
	var pending []string
	for _, step := range migrations {
		if _, ok := applied[step.version]; !ok {
			pending = append(pending, step.version)
		}
	}
	return pending, nil
}

// EnsureSchema fails fast when the database has not been migrated.
func EnsureSchema(conn *gorm.DB) error {
	pending, err := Pending(conn)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w (pending: %s)", ErrSchemaOutdated, strings.Join(pending, ", "))
	}
	return nil
}

func appliedVersions(conn *gorm.DB) (map[string]struct{}, error) {
	var rows []models.SchemaMigration
	if errFind := conn.Order("version ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("db: load schema_migrations: %w", errFind)
	}
	out := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		out[row.Version] = struct{}{}
	}
	return out, nil
}

func init() {
	if !sort.SliceIsSorted(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	}) {
		panic("db: migrations must be listed in version order")
	}
}
