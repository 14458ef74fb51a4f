// Package portal manages employee accounts that sign in with email and
// password instead of registering a device.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/security"
	"github.com/timecard-works/timecard/internal/settings"
	"github.com/timecard-works/timecard/internal/timeparse"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxNameLength  = 160
	maxEmailLength = 160
	maxPhoneLength = 32
	resetBytes     = 32
)

// Service implements portal login, password resets and account administration.
type Service struct {
	db       *gorm.DB
	hasher   *security.SecretHasher
	settings *settings.Store
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB, hasher *security.SecretHasher, store *settings.Store) *Service {
	return &Service{
		db:       db,
		hasher:   hasher,
		settings: store,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LoginInput holds portal credentials.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult carries a freshly rotated bearer token for the linked instance.
type LoginResult struct {
	InstanceID         string
	Token              string
	DisplayName        string
	EmploymentTemplate models.EmploymentTemplate
	AfternoonCutoff    string
}

// Login verifies the password first, then requires an ACTIVE linked instance
// and rotates its bearer token. The previous token stops working.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := normalizeEmail(in.Email)
	var user models.PortalUser
	errFind := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errFind == nil:
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		security.BurnPasswordCheck(in.Password)
		return LoginResult{}, errInvalidCredentials()
	default:
		return LoginResult{}, fmt.Errorf("portal: load user: %w", errFind)
	}
	if !user.Active || user.PasswordHash == nil {
		security.BurnPasswordCheck(in.Password)
		return LoginResult{}, errInvalidCredentials()
	}
	if !security.CheckPassword(*user.PasswordHash, in.Password) {
		return LoginResult{}, errInvalidCredentials()
	}
	if user.InstanceID == nil {
		return LoginResult{}, apierr.Conflict("no_instance", "account has no linked instance")
	}

	token, errToken := security.GenerateInstanceToken()
	if errToken != nil {
		return LoginResult{}, errToken
	}
	var result LoginResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inst models.Instance
		if errLoad := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", *user.InstanceID).First(&inst).Error; errLoad != nil {
			if errors.Is(errLoad, gorm.ErrRecordNotFound) {
				return errInstanceNotActive()
			}
			return errLoad
		}
		if inst.Status != models.InstanceStatusActive {
			return errInstanceNotActive()
		}
		now := s.now()
		if errUpdate := tx.Model(&models.Instance{}).Where("id = ?", inst.ID).Updates(map[string]any{
			"token_hash":      s.hasher.Hash(security.DomainInstanceToken, token),
			"token_issued_at": now,
			"last_seen_at":    now,
		}).Error; errUpdate != nil {
			return errUpdate
		}
		cutoff := s.settings.AfternoonCutoffMinutes()
		if inst.AfternoonCutoffMinutes != nil {
			cutoff = *inst.AfternoonCutoffMinutes
		}
		result = LoginResult{
			InstanceID:         inst.ID,
			Token:              token,
			DisplayName:        inst.Label(),
			EmploymentTemplate: inst.EmploymentTemplate,
			AfternoonCutoff:    timeparse.MinutesToHHMM(cutoff),
		}
		return nil
	})
	if errTx != nil {
		return LoginResult{}, errTx
	}
	log.WithField("user_id", user.ID).Info("portal login")
	return result, nil
}

// ResetPassword consumes a reset token once and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errInvalidResetToken()
	}
	if utf8.RuneCountInString(password) < security.MinPasswordLength {
		return apierr.Validation("weak_password", fmt.Sprintf("password must be at least %d characters", security.MinPasswordLength))
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("portal: hash password: %w", errHash)
	}
	tokenHash := s.hasher.Hash(security.DomainResetToken, token)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		var row models.PortalResetToken
		if errFind := tx.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
			First(&row).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errInvalidResetToken()
			}
			return errFind
		}
		res := tx.Model(&models.PortalResetToken{}).
			Where("id = ? AND used_at IS NULL", row.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInvalidResetToken()
		}
		userRes := tx.Model(&models.PortalUser{}).
			Where("id = ?", row.UserID).
			Update("password_hash", hash)
		if userRes.Error != nil {
			return userRes.Error
		}
		if userRes.RowsAffected == 0 {
			return errInvalidResetToken()
		}
		return nil
	})
}

// ListUsers returns every portal user ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]models.PortalUser, error) {
	var users []models.PortalUser
	if errFind := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&users).Error; errFind != nil {
		return nil, fmt.Errorf("portal: list users: %w", errFind)
	}
	return users, nil
}

// CreateUserInput describes a new employee account.
type CreateUserInput struct {
	Name  string
	Email string
	Phone *string
}

// CreateUser creates the account together with its ACTIVE PORTAL instance.
// The account has no password until a reset token is consumed.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*models.PortalUser, error) {
	name, errName := normalizeName(in.Name)
	if errName != nil {
		return nil, errName
	}
	email, errEmail := validateEmail(in.Email)
	if errEmail != nil {
		return nil, errEmail
	}
	phone, errPhone := normalizePhone(in.Phone)
	if errPhone != nil {
		return nil, errPhone
	}

	var user models.PortalUser
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errTaken := ensureEmailFree(tx, email, 0); errTaken != nil {
			return errTaken
		}
		now := s.now()
		instanceID := uuid.NewString()
		inst := models.Instance{
			ID:                 instanceID,
			ClientType:         models.ClientTypePortal,
			DeviceFingerprint:  "user:" + instanceID,
			Status:             models.InstanceStatusActive,
			DisplayName:        &name,
			EmploymentTemplate: models.EmploymentTemplateDPPDPC,
			CreatedAt:          now,
			ActivatedAt:        &now,
		}
		if errCreate := tx.Create(&inst).Error; errCreate != nil {
			return errCreate
		}
		user = models.PortalUser{
			Email:      email,
			Name:       name,
			Phone:      phone,
			Active:     true,
			InstanceID: &instanceID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return tx.Create(&user).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &user, nil
}

// UpdateUserInput carries optional field changes. Nil fields are left as they are.
type UpdateUserInput struct {
	Name       *string
	Email      *string
	Phone      *string
	InstanceID *string
	Active     *bool
}

// UpdateUser applies in to user id.
func (s *Service) UpdateUser(ctx context.Context, id uint64, in UpdateUserInput) (*models.PortalUser, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name, errName := normalizeName(*in.Name)
		if errName != nil {
			return nil, errName
		}
		updates["name"] = name
	}
	var email string
	if in.Email != nil {
		normalized, errEmail := validateEmail(*in.Email)
		if errEmail != nil {
			return nil, errEmail
		}
		email = normalized
		updates["email"] = email
	}
	if in.Phone != nil {
		phone, errPhone := normalizePhone(in.Phone)
		if errPhone != nil {
			return nil, errPhone
		}
		updates["phone"] = phone
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}

	var user models.PortalUser
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("id = ?", id).First(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return errUserNotFound()
			}
			return errFind
		}
		if email != "" && email != user.Email {
			if errTaken := ensureEmailFree(tx, email, user.ID); errTaken != nil {
				return errTaken
			}
		}
		if in.InstanceID != nil {
			instanceID := strings.TrimSpace(*in.InstanceID)
			if instanceID == "" {
				updates["instance_id"] = nil
			} else {
				var count int64
				if errCount := tx.Model(&models.Instance{}).Where("id = ?", instanceID).Count(&count).Error; errCount != nil {
					return errCount
				}
				if count == 0 {
					return apierr.Validation("unknown_instance", "instance_id does not exist")
				}
				updates["instance_id"] = instanceID
			}
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = s.now()
		if errUpdate := tx.Model(&models.PortalUser{}).Where("id = ?", user.ID).Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Where("id = ?", user.ID).First(&user).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &user, nil
}

// IssueResetToken creates a single-use reset token for an active user and
// returns the plaintext once.
func (s *Service) IssueResetToken(ctx context.Context, id uint64) (string, time.Time, error) {
	var user models.PortalUser
	if errFind := s.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", time.Time{}, errUserNotFound()
		}
		return "", time.Time{}, fmt.Errorf("portal: load user: %w", errFind)
	}
	token, errToken := security.GenerateOpaqueSecret(resetBytes)
	if errToken != nil {
		return "", time.Time{}, errToken
	}
	now := s.now()
	row := models.PortalResetToken{
		UserID:    user.ID,
		TokenHash: s.hasher.Hash(security.DomainResetToken, token),
		ExpiresAt: now.Add(s.settings.ResetTokenTTL()),
		CreatedAt: now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return "", time.Time{}, fmt.Errorf("portal: create reset token: %w", errCreate)
	}
	return token, row.ExpiresAt, nil
}

func ensureEmailFree(tx *gorm.DB, email string, exceptID uint64) error {
	var count int64
	if errCount := tx.Model(&models.PortalUser{}).
		Where("email = ? AND id <> ?", email, exceptID).
		Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return apierr.Conflict("email_taken", "a user with this email already exists")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" || len(email) > maxEmailLength {
		return "", errInvalidEmail()
	}
	addr, errParse := mail.ParseAddress(email)
	if errParse != nil || addr.Address != email {
		return "", errInvalidEmail()
	}
	return email, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", apierr.Validation("invalid_name", fmt.Sprintf("name must be 1-%d characters", maxNameLength))
	}
	return name, nil
}

func normalizePhone(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	phone := strings.TrimSpace(*raw)
	if phone == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(phone) > maxPhoneLength {
		return nil, apierr.Validation("invalid_phone", fmt.Sprintf("phone must be at most %d characters", maxPhoneLength))
	}
	return &phone, nil
}

func errInvalidCredentials() *apierr.Error {
	return apierr.Unauthorized("invalid_credentials", "invalid credentials")
}

func errInstanceNotActive() *apierr.Error {
	return apierr.Forbidden("instance_not_active", "linked instance is not active")
}

func errInvalidResetToken() *apierr.Error {
	return apierr.Validation("invalid_reset_token", "reset link is invalid or expired")
}

func errInvalidEmail() *apierr.Error {
	return apierr.Validation("invalid_email", "email is not a valid address")
}

func errUserNotFound() *apierr.Error {
	return apierr.NotFound("user_not_found", "user not found")
}
