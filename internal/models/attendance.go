package models

import "time"

// Attendance is one (instance, date) attendance record.
type Attendance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InstanceID string `gorm:"type:varchar(36);not null;uniqueIndex:uq_attendance_instance_date,priority:1"` // Owning instance.
	WorkDate   string `gorm:"type:varchar(10);not null;uniqueIndex:uq_attendance_instance_date,priority:2"` // YYYY-MM-DD.

	ArrivalTime   *string `gorm:"type:varchar(5)"` // HH:MM or NULL.
	DepartureTime *string `gorm:"type:varchar(5)"` // HH:MM or NULL.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the table name.
func (Attendance) TableName() string { return "attendance" }

// AttendanceLock freezes one instance's attendance for a calendar month.
type AttendanceLock struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InstanceID string `gorm:"type:varchar(36);not null;uniqueIndex:uq_attendance_lock_instance_month,priority:1"` // Locked instance.
	Year       int    `gorm:"not null;uniqueIndex:uq_attendance_lock_instance_month,priority:2"`                  // Calendar year.
	Month      int    `gorm:"not null;uniqueIndex:uq_attendance_lock_instance_month,priority:3"`                  // Calendar month 1-12.

	LockedAt time.Time `gorm:"not null;autoCreateTime"` // When the lock was set.
	LockedBy *string   `gorm:"type:varchar(64)"`        // Admin username.
}

// TableName pins the table name.
func (AttendanceLock) TableName() string { return "attendance_locks" }

// ShiftPlan holds planned arrival/departure for a day. Attendance reads it, never writes it.
type ShiftPlan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	InstanceID string `gorm:"type:varchar(36);not null;uniqueIndex:uq_shift_plan_instance_date,priority:1"` // Planned instance.
	WorkDate   string `gorm:"type:varchar(10);not null;uniqueIndex:uq_shift_plan_instance_date,priority:2"` // YYYY-MM-DD.

	ArrivalTime   *string `gorm:"type:varchar(5)"` // Planned HH:MM.
	DepartureTime *string `gorm:"type:varchar(5)"` // Planned HH:MM.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the table name.
func (ShiftPlan) TableName() string { return "shift_plan" }
