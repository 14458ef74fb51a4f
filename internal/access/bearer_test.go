package access

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/db"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/security"
	"gorm.io/gorm"
)

func newTestGuard(t *testing.T) (*BearerGuard, *gorm.DB, *security.SecretHasher) {
	t.Helper()
	dsn := fmt.Sprintf("file:access_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, _ := conn.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	hasher, errHasher := security.NewSecretHasher("0123456789abcdef0123456789abcdef")
	if errHasher != nil {
		t.Fatalf("hasher: %v", errHasher)
	}
	return NewBearerGuard(conn, hasher), conn, hasher
}

func seedWithToken(t *testing.T, conn *gorm.DB, hasher *security.SecretHasher, status models.InstanceStatus, name string) (string, string) {
	t.Helper()
	token, errToken := security.GenerateInstanceToken()
	if errToken != nil {
		t.Fatalf("token: %v", errToken)
	}
	hash := hasher.Hash(security.DomainInstanceToken, token)
	inst := models.Instance{
		ID:                 uuid.NewString(),
		ClientType:         models.ClientTypeAndroid,
		DeviceFingerprint:  "fp-" + name,
		Status:             status,
		DisplayName:        &name,
		EmploymentTemplate: models.EmploymentTemplateDPPDPC,
		TokenHash:          &hash,
		CreatedAt:          time.Now().UTC(),
	}
	if errCreate := conn.Create(&inst).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}
	return inst.ID, token
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthenticateActiveToken(t *testing.T) {
	guard, conn, hasher := newTestGuard(t)
	id, token := seedWithToken(t, conn, hasher, models.InstanceStatusActive, "Phone")

	principal, errAuth := guard.Authenticate(context.Background(), bearerRequest(token))
	if errAuth != nil {
		t.Fatalf("authenticate: %v", errAuth)
	}
	if principal.InstanceID != id || principal.ProfileID != id || principal.DisplayName != "Phone" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	var inst models.Instance
	conn.Where("id = ?", id).First(&inst)
	if inst.LastSeenAt == nil {
		t.Fatalf("expected last_seen_at to be recorded")
	}
}

func TestAuthenticateFailuresShareOneError(t *testing.T) {
	guard, conn, hasher := newTestGuard(t)
	_, revokedToken := seedWithToken(t, conn, hasher, models.InstanceStatusRevoked, "Old")
	_, pendingToken := seedWithToken(t, conn, hasher, models.InstanceStatusPending, "New")

	requests := map[string]*http.Request{
		"missing": bearerRequest(""),
		"unknown": bearerRequest("tc_not-a-real-token"),
		"revoked": bearerRequest(revokedToken),
		"pending": bearerRequest(pendingToken),
	}
	basic := httptest.NewRequest(http.MethodGet, "/", nil)
	basic.Header.Set("Authorization", "Basic "+revokedToken)
	requests["wrong scheme"] = basic

	for name, req := range requests {
		_, err := guard.Authenticate(context.Background(), req)
		apiErr, ok := apierr.As(err)
		if !ok || apiErr.Kind != apierr.KindUnauthorized || apiErr.Code != "invalid_token" {
			t.Fatalf("%s: expected invalid_token, got %v", name, err)
		}
	}
}

func TestRevocationTakesEffectImmediately(t *testing.T) {
	guard, conn, hasher := newTestGuard(t)
	id, token := seedWithToken(t, conn, hasher, models.InstanceStatusActive, "Tablet")

	if _, errAuth := guard.Authenticate(context.Background(), bearerRequest(token)); errAuth != nil {
		t.Fatalf("authenticate before revoke: %v", errAuth)
	}
	conn.Model(&models.Instance{}).Where("id = ?", id).Update("status", models.InstanceStatusRevoked)
	if _, errAuth := guard.Authenticate(context.Background(), bearerRequest(token)); !apierr.IsKind(errAuth, apierr.KindUnauthorized) {
		t.Fatalf("expected revoked token to fail, got %v", errAuth)
	}
}

func TestMergedInstanceActsOnProfile(t *testing.T) {
	guard, conn, hasher := newTestGuard(t)
	targetID, _ := seedWithToken(t, conn, hasher, models.InstanceStatusActive, "Main")
	sourceID, token := seedWithToken(t, conn, hasher, models.InstanceStatusActive, "Second phone")
	conn.Model(&models.Instance{}).Where("id = ?", sourceID).Update("profile_instance_id", targetID)

	principal, errAuth := guard.Authenticate(context.Background(), bearerRequest(token))
	if errAuth != nil {
		t.Fatalf("authenticate: %v", errAuth)
	}
	if principal.InstanceID != sourceID || principal.ProfileID != targetID || principal.DisplayName != "Main" {
		t.Fatalf("expected profile resolution, got %+v", principal)
	}

	conn.Model(&models.Instance{}).Where("id = ?", targetID).Update("status", models.InstanceStatusDeactivated)
	if _, errAuth := guard.Authenticate(context.Background(), bearerRequest(token)); !apierr.IsKind(errAuth, apierr.KindUnauthorized) {
		t.Fatalf("inactive profile must reject merged token, got %v", errAuth)
	}
}
