// Package access authenticates instance bearer tokens.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/security"
	"gorm.io/gorm"
)

// Principal is the authenticated caller of an instance-scoped request.
type Principal struct {
	// InstanceID is the instance that owns the presented token.
	InstanceID string
	// ProfileID is the instance whose attendance the caller acts on. It differs
	// from InstanceID once the instance has been merged into another.
	ProfileID   string
	DisplayName string
	ClientType  models.ClientType
}

// BearerGuard resolves Authorization: Bearer tokens to ACTIVE instances.
type BearerGuard struct {
	db     *gorm.DB
	hasher *security.SecretHasher
	header string
	scheme string
	now    func() time.Time
}

// NewBearerGuard constructs a BearerGuard.
func NewBearerGuard(db *gorm.DB, hasher *security.SecretHasher) *BearerGuard {
	return &BearerGuard{
		db:     db,
		hasher: hasher,
		header: "Authorization",
		scheme: "Bearer",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate validates the request token. Status is read from the store on
// every call, so a revoked instance is rejected on its next request.
func (g *BearerGuard) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	if g == nil || g.db == nil || r == nil {
		return nil, errInvalidToken()
	}
	token := extractToken(r, g.header, g.scheme)
	if token == "" {
		return nil, errInvalidToken()
	}

	conn := g.db.WithContext(ctx)
	var inst models.Instance
	errFind := conn.Where("token_hash = ?", g.hasher.Hash(security.DomainInstanceToken, token)).First(&inst).Error
	switch {
	case errFind == nil:
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		return nil, errInvalidToken()
	default:
		return nil, fmt.Errorf("bearer guard: query failed: %w", errFind)
	}
	if inst.Status != models.InstanceStatusActive {
		return nil, errInvalidToken()
	}

	profile := &inst
	if inst.ProfileInstanceID != nil && *inst.ProfileInstanceID != inst.ID {
		var target models.Instance
		errTarget := conn.Where("id = ?", *inst.ProfileInstanceID).First(&target).Error
		switch {
		case errTarget == nil:
			if target.Status != models.InstanceStatusActive {
				return nil, errInvalidToken()
			}
			profile = &target
		case errors.Is(errTarget, gorm.ErrRecordNotFound):
		default:
			return nil, fmt.Errorf("bearer guard: profile query failed: %w", errTarget)
		}
	}

	if errTouch := conn.Model(&models.Instance{}).
		Where("id = ?", inst.ID).
		UpdateColumn("last_seen_at", g.now()).Error; errTouch != nil {
		log.WithError(errTouch).Warn("bearer guard: update last_seen_at failed")
	}

	return &Principal{
		InstanceID:  inst.ID,
		ProfileID:   profile.ID,
		DisplayName: profile.Label(),
		ClientType:  inst.ClientType,
	}, nil
}

func extractToken(r *http.Request, header string, scheme string) string {
	val := strings.TrimSpace(r.Header.Get(header))
	if val == "" {
		return ""
	}
	parts := strings.SplitN(val, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], scheme) {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func errInvalidToken() *apierr.Error {
	return apierr.Unauthorized("invalid_token", "invalid or missing bearer token")
}
