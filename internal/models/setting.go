package models

import (
	"encoding/json"
	"time"
)

// Setting stores a runtime-tunable key/value entry.
type Setting struct {
	Key       string          `gorm:"type:varchar(255);primaryKey"`                      // Setting key.
	Value     json.RawMessage `gorm:"type:jsonb"`                                        // JSON-encoded value.
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime;default:CURRENT_TIMESTAMP"` // Last update timestamp.
}

// TableName pins the table name.
func (Setting) TableName() string { return "settings" }

// SchemaMigration records an applied schema version.
type SchemaMigration struct {
	Version   string    `gorm:"type:varchar(64);primaryKey"` // Migration identifier.
	AppliedAt time.Time `gorm:"not null"`                    // When it was applied.
}

// TableName pins the table name.
func (SchemaMigration) TableName() string { return "schema_migrations" }
