package models

import "time"

// AdminSession is the server-side half of an admin login.
type AdminSession struct {
	IDHash string `gorm:"type:varchar(128);primaryKey"` // Keyed hash of the session id.

	Username string `gorm:"type:varchar(128);not null"` // Admin principal.
	CSRFHash string `gorm:"type:varchar(128);not null"` // Keyed hash of the current CSRF token.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Login time.
	ExpiresAt time.Time `gorm:"not null;index"`          // Hard expiry.
}

// TableName pins the table name.
func (AdminSession) TableName() string { return "admin_sessions" }
