package instance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/db"
	"github.com/timecard-works/timecard/internal/metrics"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/security"
	"github.com/timecard-works/timecard/internal/settings"
	"github.com/timecard-works/timecard/internal/timeparse"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Field limits.
const (
	maxFingerprintLength = 128
	maxDisplayNameLength = 128
	maxDeviceInfoBytes   = 4096
)

// Service owns the instance state machine and token issuance.
type Service struct {
	db       *gorm.DB
	hasher   *security.SecretHasher
	settings *settings.Store
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService constructs a Service. metrics may be nil.
func NewService(db *gorm.DB, hasher *security.SecretHasher, store *settings.Store, m *metrics.Metrics) *Service {
	return &Service{
		db:       db,
		hasher:   hasher,
		settings: store,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput is a self-registration request.
type RegisterInput struct {
	ClientType  models.ClientType
	Fingerprint string
	DeviceInfo  json.RawMessage
	DisplayName *string
}

// Registration is the result of Register.
type Registration struct {
	ID     string
	Status models.InstanceStatus
}

// StatusView is what a polling client learns about its instance.
// DisplayName, EmploymentTemplate and AfternoonCutoff are set only when ACTIVE.
type StatusView struct {
	Status             models.InstanceStatus
	DisplayName        string
	EmploymentTemplate models.EmploymentTemplate
	AfternoonCutoff    string
}

// Claim carries a freshly issued bearer token. Token is never retrievable again.
type Claim struct {
	Token       string
	DisplayName string
}

// Register creates a new PENDING instance. No token is issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	clientType := models.ClientType(strings.ToUpper(strings.TrimSpace(string(in.ClientType))))
	switch clientType {
	case models.ClientTypeWeb, models.ClientTypeAndroid:
	case models.ClientTypePortal:
		return Registration{}, apierr.Validation("client_type_not_registrable", "portal instances are provisioned with portal users")
	default:
		return Registration{}, apierr.Validation("invalid_client_type", "client_type must be WEB or ANDROID")
	}

	fingerprint := strings.TrimSpace(in.Fingerprint)
	if fingerprint == "" || utf8.RuneCountInString(fingerprint) > maxFingerprintLength {
		return Registration{}, apierr.Validation("invalid_fingerprint", fmt.Sprintf("device_fingerprint must be 1-%d characters", maxFingerprintLength))
	}

	displayName, errName := normalizeOptionalName(in.DisplayName)
	if errName != nil {
		return Registration{}, errName
	}

	var deviceInfo datatypes.JSON
	if trimmed := bytes.TrimSpace(in.DeviceInfo); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if len(trimmed) > maxDeviceInfoBytes || !isJSONObject(trimmed) {
			return Registration{}, apierr.Validation("invalid_device_info", "device_info must be a JSON object up to 4 KiB")
		}
		deviceInfo = datatypes.JSON(trimmed)
	}

	now := s.now()
	inst := models.Instance{
		ID:                 uuid.NewString(),
		ClientType:         clientType,
		DeviceFingerprint:  fingerprint,
		DeviceInfo:         deviceInfo,
		Status:             models.InstanceStatusPending,
		DisplayName:        displayName,
		EmploymentTemplate: models.EmploymentTemplateDPPDPC,
		CreatedAt:          now,
		LastSeenAt:         &now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&inst).Error; errCreate != nil {
		return Registration{}, fmt.Errorf("instance: register: %w", errCreate)
	}
	return Registration{ID: inst.ID, Status: inst.Status}, nil
}

// Status reports the lifecycle status of an instance and records the poll.
func (s *Service) Status(ctx context.Context, id string) (StatusView, error) {
	if !validID(id) {
		return StatusView{}, errInstanceNotFound()
	}
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Instance{}).
		Where("id = ?", id).
		UpdateColumn("last_seen_at", now)
	if res.Error != nil {
		return StatusView{}, fmt.Errorf("instance: touch: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return StatusView{}, errInstanceNotFound()
	}

	inst, errLoad := s.load(s.db.WithContext(ctx), id)
	if errLoad != nil {
		return StatusView{}, errLoad
	}
	view := StatusView{Status: inst.Status}
	if inst.Status == models.InstanceStatusActive {
		view.DisplayName = inst.Label()
		view.EmploymentTemplate = inst.EmploymentTemplate
		view.AfternoonCutoff = timeparse.MinutesToHHMM(s.cutoffMinutes(inst))
	}
	return view, nil
}

// ClaimToken issues the one-shot bearer token for an ACTIVE instance.
// The claim is a conditional update on token_hash IS NULL, so of two racing
// callers exactly one wins and the other sees a conflict. PORTAL instances
// receive tokens only through portal login.
func (s *Service) ClaimToken(ctx context.Context, id string) (Claim, error) {
	if !validID(id) {
		return Claim{}, errInstanceNotFound()
	}
	token, errToken := security.GenerateInstanceToken()
	if errToken != nil {
		return Claim{}, errToken
	}
	hash := s.hasher.Hash(security.DomainInstanceToken, token)
	now := s.now()

	var claim Claim
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Instance{}).
			Where("id = ? AND status = ? AND token_hash IS NULL AND client_type <> ?", id, models.InstanceStatusActive, models.ClientTypePortal).
			Updates(map[string]any{
				"token_hash":      hash,
				"token_issued_at": now,
				"last_seen_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		inst, errLoad := s.load(tx, id)
		if errLoad != nil {
			return errLoad
		}
		if res.RowsAffected == 0 {
			if inst.ClientType == models.ClientTypePortal {
				return errPortalNotClaimable()
			}
			if inst.Status != models.InstanceStatusActive {
				return apierr.Conflict("instance_not_active", "instance is not active")
			}
			return apierr.Conflict("token_already_claimed", "token already claimed")
		}
		claim = Claim{Token: token, DisplayName: inst.Label()}
		return nil
	})
	if errTx != nil {
		if apierr.IsKind(errTx, apierr.KindConflict) {
			s.metrics.TokenClaim("rejected")
		}
		return Claim{}, errTx
	}
	s.metrics.TokenClaim("issued")
	return claim, nil
}

// ActivateInput carries admin choices made at activation.
type ActivateInput struct {
	DisplayName *string
	Template    *models.EmploymentTemplate
}

// Activate moves a PENDING or DEACTIVATED instance to ACTIVE. Any previous
// token is discarded so the client must claim a fresh one.
func (s *Service) Activate(ctx context.Context, id string, in ActivateInput) (*models.Instance, error) {
	name, errName := normalizeOptionalName(in.DisplayName)
	if errName != nil {
		return nil, errName
	}
	if in.Template != nil && !models.ValidEmploymentTemplate(*in.Template) {
		return nil, errInvalidTemplate()
	}
	allowed := []models.InstanceStatus{models.InstanceStatusPending, models.InstanceStatusDeactivated}
	return s.transition(ctx, id, allowed, func(inst *models.Instance) (map[string]any, error) {
		if name == nil {
			name = inst.DisplayName
		}
		if name == nil || *name == "" {
			return nil, apierr.Validation("display_name_required", "display_name is required to activate")
		}
		now := s.now()
		updates := map[string]any{
			"status":          models.InstanceStatusActive,
			"display_name":    *name,
			"activated_at":    now,
			"deactivated_at":  nil,
			"token_hash":      nil,
			"token_issued_at": nil,
		}
		if in.Template != nil {
			updates["employment_template"] = *in.Template
		}
		return updates, nil
	})
}

// Deactivate suspends an ACTIVE instance. Its token stops working immediately.
func (s *Service) Deactivate(ctx context.Context, id string) (*models.Instance, error) {
	allowed := []models.InstanceStatus{models.InstanceStatusActive}
	return s.transition(ctx, id, allowed, func(*models.Instance) (map[string]any, error) {
		return map[string]any{
			"status":          models.InstanceStatusDeactivated,
			"deactivated_at":  s.now(),
			"token_hash":      nil,
			"token_issued_at": nil,
		}, nil
	})
}

// Revoke permanently disables an instance. History is retained.
func (s *Service) Revoke(ctx context.Context, id string) (*models.Instance, error) {
	allowed := []models.InstanceStatus{models.InstanceStatusPending, models.InstanceStatusActive, models.InstanceStatusDeactivated}
	return s.transition(ctx, id, allowed, func(*models.Instance) (map[string]any, error) {
		return map[string]any{
			"status":          models.InstanceStatusRevoked,
			"revoked_at":      s.now(),
			"token_hash":      nil,
			"token_issued_at": nil,
		}, nil
	})
}

// Rename changes the display name of an ACTIVE instance.
func (s *Service) Rename(ctx context.Context, id, displayName string) (*models.Instance, error) {
	name, errName := normalizeOptionalName(&displayName)
	if errName != nil {
		return nil, errName
	}
	if name == nil {
		return nil, apierr.Validation("display_name_required", "display_name is required")
	}
	allowed := []models.InstanceStatus{models.InstanceStatusActive}
	return s.transition(ctx, id, allowed, func(*models.Instance) (map[string]any, error) {
		return map[string]any{"display_name": *name}, nil
	})
}

// SetTemplate changes the employment template and optionally the afternoon cutoff.
// A nil cutoff leaves the override untouched; an empty one clears it.
func (s *Service) SetTemplate(ctx context.Context, id string, template models.EmploymentTemplate, cutoff *string) (*models.Instance, error) {
	if !models.ValidEmploymentTemplate(template) {
		return nil, errInvalidTemplate()
	}
	updates := map[string]any{"employment_template": template}
	if cutoff != nil {
		if strings.TrimSpace(*cutoff) == "" {
			updates["afternoon_cutoff_minutes"] = nil
		} else {
			minutes, errParse := timeparse.HHMMToMinutes(*cutoff)
			if errParse != nil {
				return nil, apierr.Validation("invalid_time", errParse.Error())
			}
			updates["afternoon_cutoff_minutes"] = minutes
		}
	}
	allowed := []models.InstanceStatus{models.InstanceStatusPending, models.InstanceStatusActive, models.InstanceStatusDeactivated}
	return s.transition(ctx, id, allowed, func(*models.Instance) (map[string]any, error) {
		return updates, nil
	})
}

// ResetToken clears the claimed token of an ACTIVE instance, opening a new claim window.
// PORTAL instances are refused; their users get a password reset instead.
func (s *Service) ResetToken(ctx context.Context, id string) (*models.Instance, error) {
	allowed := []models.InstanceStatus{models.InstanceStatusActive}
	return s.transition(ctx, id, allowed, func(inst *models.Instance) (map[string]any, error) {
		if inst.ClientType == models.ClientTypePortal {
			return nil, errPortalNotClaimable()
		}
		return map[string]any{"token_hash": nil, "token_issued_at": nil}, nil
	})
}

// Get loads one instance.
func (s *Service) Get(ctx context.Context, id string) (*models.Instance, error) {
	if !validID(id) {
		return nil, errInstanceNotFound()
	}
	return s.load(s.db.WithContext(ctx), id)
}

// ListFilter narrows List.
type ListFilter struct {
	Status models.InstanceStatus
	Query  string
}

// List returns instances newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Instance, error) {
	q := s.db.WithContext(ctx).Model(&models.Instance{}).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if needle := strings.TrimSpace(filter.Query); needle != "" {
		cond, arg := db.ContainsFilter(s.db, "display_name", needle)
		q = q.Where(cond, arg)
	}
	var out []models.Instance
	if errFind := q.Find(&out).Error; errFind != nil {
		return nil, fmt.Errorf("instance: list: %w", errFind)
	}
	return out, nil
}

// CutoffFor returns the effective afternoon cutoff of inst as HH:MM.
func (s *Service) CutoffFor(inst *models.Instance) string {
	return timeparse.MinutesToHHMM(s.cutoffMinutes(inst))
}

func (s *Service) cutoffMinutes(inst *models.Instance) int {
	if inst.AfternoonCutoffMinutes != nil {
		return *inst.AfternoonCutoffMinutes
	}
	return s.settings.AfternoonCutoffMinutes()
}

// transition locks the row, checks the current status against allowed and applies mutate.
func (s *Service) transition(ctx context.Context, id string, allowed []models.InstanceStatus, mutate func(inst *models.Instance) (map[string]any, error)) (*models.Instance, error) {
	if !validID(id) {
		return nil, errInstanceNotFound()
	}
	var out *models.Instance
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, errLoad := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if errLoad != nil {
			return errLoad
		}
		if !statusIn(inst.Status, allowed) {
			return apierr.Conflict("invalid_transition", fmt.Sprintf("operation not allowed while instance is %s", inst.Status))
		}
		updates, errMutate := mutate(inst)
		if errMutate != nil {
			return errMutate
		}
		if errUpdate := tx.Model(&models.Instance{}).Where("id = ?", id).Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}
		reloaded, errReload := s.load(tx, id)
		if errReload != nil {
			return errReload
		}
		out = reloaded
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return out, nil
}

func (s *Service) load(tx *gorm.DB, id string) (*models.Instance, error) {
	var inst models.Instance
	if errFind := tx.Where("id = ?", id).First(&inst).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errInstanceNotFound()
		}
		return nil, fmt.Errorf("instance: load: %w", errFind)
	}
	return &inst, nil
}

func statusIn(status models.InstanceStatus, allowed []models.InstanceStatus) bool {
	for _, candidate := range allowed {
		if status == candidate {
			return true
		}
	}
	return false
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

func normalizeOptionalName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxDisplayNameLength {
		return nil, apierr.Validation("invalid_display_name", fmt.Sprintf("display_name must be at most %d characters", maxDisplayNameLength))
	}
	return &trimmed, nil
}

func isJSONObject(raw []byte) bool {
	var obj map[string]any
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

func errInstanceNotFound() *apierr.Error {
	return apierr.NotFound("instance_not_found", "instance not found")
}

func errInvalidTemplate() *apierr.Error {
	return apierr.Validation("invalid_employment_template", "employment_template must be DPP_DPC or HPP")
}

func errPortalNotClaimable() *apierr.Error {
	return apierr.Conflict("portal_instance_not_claimable", "portal instances receive tokens through portal login")
}
