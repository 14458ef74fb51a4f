package models

import (
	"time"

	"gorm.io/datatypes"
)

// InstanceStatus is the lifecycle state of an instance.
type InstanceStatus string

// Instance lifecycle states.
const (
	InstanceStatusPending     InstanceStatus = "PENDING"
	InstanceStatusActive      InstanceStatus = "ACTIVE"
	InstanceStatusRevoked     InstanceStatus = "REVOKED"
	InstanceStatusDeactivated InstanceStatus = "DEACTIVATED"
)

// ClientType identifies what kind of client owns an instance.
type ClientType string

// Known client types.
const (
	ClientTypeWeb     ClientType = "WEB"
	ClientTypeAndroid ClientType = "ANDROID"
	ClientTypePortal  ClientType = "PORTAL"
)

// EmploymentTemplate selects how attendance is presented and exported.
type EmploymentTemplate string

// Employment templates.
const (
	EmploymentTemplateDPPDPC EmploymentTemplate = "DPP_DPC"
	EmploymentTemplateHPP    EmploymentTemplate = "HPP"
)

// Instance represents one authorized client identity (device or portal account).
type Instance struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // UUID string.

	ClientType        ClientType     `gorm:"type:varchar(16);not null"`  // WEB, ANDROID or PORTAL.
	DeviceFingerprint string         `gorm:"type:varchar(128);not null"` // Client supplied fingerprint.
	DeviceInfo        datatypes.JSON `gorm:"type:jsonb"`                 // Free-form device metadata.

	Status      InstanceStatus `gorm:"type:varchar(16);not null;index"` // Lifecycle state.
	DisplayName *string        `gorm:"type:varchar(128)"`               // Name shown to admins and clients.

	ProfileInstanceID *string `gorm:"type:varchar(36);index"` // Merge target whose records this instance uses.

	EmploymentTemplate     EmploymentTemplate `gorm:"type:varchar(16);not null;default:'DPP_DPC'"` // Template tag.
	AfternoonCutoffMinutes *int               // Per-instance cutoff override in minutes after midnight.

	TokenHash     *string    `gorm:"type:varchar(128);uniqueIndex"` // Keyed hash of the claimed bearer token.
	TokenIssuedAt *time.Time // When the current token was claimed.

	CreatedAt     time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	ActivatedAt   *time.Time // Last activation.
	RevokedAt     *time.Time // Revocation timestamp.
	DeactivatedAt *time.Time // Last deactivation.
	LastSeenAt    *time.Time `gorm:"index"` // Last status poll or authenticated request.
}

// TableName pins the table name.
func (Instance) TableName() string { return "instances" }

// IsTerminal reports whether no further transition is possible.
func (i *Instance) IsTerminal() bool {
	return i.Status == InstanceStatusRevoked
}

// HasToken reports whether a bearer token is currently claimed.
func (i *Instance) HasToken() bool {
	return i.TokenHash != nil && *i.TokenHash != ""
}

// Label returns the display name or a stable fallback derived from the id.
func (i *Instance) Label() string {
	if i.DisplayName != nil && *i.DisplayName != "" {
		return *i.DisplayName
	}
	short := i.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Device " + short
}

// ValidClientType reports whether ct is a known client type.
func ValidClientType(ct ClientType) bool {
	switch ct {
	case ClientTypeWeb, ClientTypeAndroid, ClientTypePortal:
		return true
	default:
		return false
	}
}

// ValidEmploymentTemplate reports whether t is a known template.
func ValidEmploymentTemplate(t EmploymentTemplate) bool {
	return t == EmploymentTemplateDPPDPC || t == EmploymentTemplateHPP
}
