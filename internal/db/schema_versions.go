package db

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Frozen table shapes, one set per migration version. A migration creates
// exactly the columns listed here; later schema changes add a new version with
// its own structs instead of editing these.

type v0001Instance struct {
	ID                     string         `gorm:"type:varchar(36);primaryKey"`
	ClientType             string         `gorm:"type:varchar(16);not null"`
	DeviceFingerprint      string         `gorm:"type:varchar(128);not null"`
	DeviceInfo             datatypes.JSON `gorm:"type:jsonb"`
	Status                 string         `gorm:"type:varchar(16);not null;index:idx_instances_status"`
	DisplayName            *string        `gorm:"type:varchar(128)"`
	ProfileInstanceID      *string        `gorm:"type:varchar(36);index:idx_instances_profile_instance_id"`
	EmploymentTemplate     string         `gorm:"type:varchar(16);not null;default:'DPP_DPC'"`
	AfternoonCutoffMinutes *int
	TokenHash              *string `gorm:"type:varchar(128);uniqueIndex:idx_instances_token_hash"`
	TokenIssuedAt          *time.Time
	CreatedAt              time.Time `gorm:"not null"`
	ActivatedAt            *time.Time
	RevokedAt              *time.Time
	DeactivatedAt          *time.Time
	LastSeenAt             *time.Time `gorm:"index:idx_instances_last_seen_at"`
}

func (v0001Instance) TableName() string { return "instances" }

type v0001Attendance struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	InstanceID    string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_attendance_instance_date,priority:1"`
	WorkDate      string    `gorm:"type:varchar(10);not null;uniqueIndex:uq_attendance_instance_date,priority:2"`
	ArrivalTime   *string   `gorm:"type:varchar(5)"`
	DepartureTime *string   `gorm:"type:varchar(5)"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (v0001Attendance) TableName() string { return "attendance" }

type v0001AttendanceLock struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	InstanceID string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_attendance_lock_instance_month,priority:1"`
	Year       int       `gorm:"not null;uniqueIndex:uq_attendance_lock_instance_month,priority:2"`
	Month      int       `gorm:"not null;uniqueIndex:uq_attendance_lock_instance_month,priority:3"`
	LockedAt   time.Time `gorm:"not null"`
	LockedBy   *string   `gorm:"type:varchar(64)"`
}

func (v0001AttendanceLock) TableName() string { return "attendance_locks" }

type v0001ShiftPlan struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	InstanceID    string    `gorm:"type:varchar(36);not null;uniqueIndex:uq_shift_plan_instance_date,priority:1"`
	WorkDate      string    `gorm:"type:varchar(10);not null;uniqueIndex:uq_shift_plan_instance_date,priority:2"`
	ArrivalTime   *string   `gorm:"type:varchar(5)"`
	DepartureTime *string   `gorm:"type:varchar(5)"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (v0001ShiftPlan) TableName() string { return "shift_plan" }

type v0002Setting struct {
	Key       string          `gorm:"type:varchar(255);primaryKey"`
	Value     json.RawMessage `gorm:"type:jsonb"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (v0002Setting) TableName() string { return "settings" }

type v0003AdminSession struct {
	IDHash    string    `gorm:"type:varchar(128);primaryKey"`
	Username  string    `gorm:"type:varchar(128);not null"`
	CSRFHash  string    `gorm:"type:varchar(128);not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index:idx_admin_sessions_expires_at"`
}

func (v0003AdminSession) TableName() string { return "admin_sessions" }

type v0004PortalUser struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"type:varchar(160);not null;uniqueIndex:idx_portal_users_email"`
	Name         string    `gorm:"type:varchar(160);not null"`
	Phone        *string   `gorm:"type:varchar(32)"`
	PasswordHash *string   `gorm:"type:varchar(255)"`
	Active       bool      `gorm:"not null;default:true"`
	InstanceID   *string   `gorm:"type:varchar(36);index:idx_portal_users_instance_id"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (v0004PortalUser) TableName() string { return "portal_users" }

type v0004PortalResetToken struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;index:idx_portal_reset_tokens_user_id"`
	TokenHash string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_portal_reset_tokens_token_hash"`
	ExpiresAt time.Time `gorm:"not null;index:idx_portal_reset_tokens_expires_at"`
	UsedAt    *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

func (v0004PortalResetToken) TableName() string { return "portal_reset_tokens" }
