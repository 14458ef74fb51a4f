package models

import "time"

// PortalUser is an employee account that signs in through the web portal.
type PortalUser struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email        string  `gorm:"type:varchar(160);not null;uniqueIndex"` // Lowercased login email.
	Name         string  `gorm:"type:varchar(160);not null"`             // Full name.
	Phone        *string `gorm:"type:varchar(32)"`                       // Optional phone number.
	PasswordHash *string `gorm:"type:varchar(255)"`                      // Bcrypt hash, NULL until set.

	Active bool `gorm:"not null;default:true"` // Whether login is allowed.

	InstanceID *string   `gorm:"type:varchar(36);index"` // Linked PORTAL instance.
	Instance   *Instance `gorm:"foreignKey:InstanceID"`  // Linked instance record.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the table name.
func (PortalUser) TableName() string { return "portal_users" }

// PortalResetToken is a single-use password set/reset token.
type PortalResetToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64 `gorm:"not null;index"`                         // Owning portal user.
	TokenHash string `gorm:"type:varchar(128);not null;uniqueIndex"` // Keyed hash of the token.

	ExpiresAt time.Time  `gorm:"not null;index"` // Expiry.
	UsedAt    *time.Time // Set once consumed.
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName pins the table name.
func (PortalResetToken) TableName() string { return "portal_reset_tokens" }
