package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pquerna/otp/totp"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/config"
	"github.com/timecard-works/timecard/internal/db"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/security"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct horse battery"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:session_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	return conn
}

func newTestGuard(t *testing.T, totpSecret string) (*Guard, *gorm.DB) {
	t.Helper()
	conn := openTestDB(t)
	hash, errHash := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	hasher, errHasher := security.NewSecretHasher(testSecret)
	if errHasher != nil {
		t.Fatalf("hasher: %v", errHasher)
	}
	cfg := config.Default().Session
	cfg.Secret = testSecret
	admin := config.AdminConfig{Username: "Admin", PasswordHash: string(hash), TOTPSecret: totpSecret}
	return NewGuard(conn, admin, cfg, hasher, nil), conn
}

func requireCode(t *testing.T, err error, kind apierr.Kind, code string) {
	t.Helper()
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != kind || apiErr.Code != code {
		t.Fatalf("expected %s/%s, got %v", kind, code, err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	guard, conn := newTestGuard(t, "")
	ctx := context.Background()

	_, errWrongPassword := guard.Login(ctx, LoginInput{Username: "admin", Password: "nope"})
	_, errWrongUser := guard.Login(ctx, LoginInput{Username: "mallory", Password: testPassword})
	requireCode(t, errWrongPassword, apierr.KindUnauthorized, "invalid_credentials")
	requireCode(t, errWrongUser, apierr.KindUnauthorized, "invalid_credentials")
	if errWrongPassword.Error() != errWrongUser.Error() {
		t.Fatalf("failure messages differ: %q vs %q", errWrongPassword, errWrongUser)
	}

	var count int64
	conn.Model(&models.AdminSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed logins must not create sessions, got %d", count)
	}
}

func TestLoginAuthenticateAndLogout(t *testing.T) {
	guard, conn := newTestGuard(t, "")
	ctx := context.Background()

	issued, errLogin := guard.Login(ctx, LoginInput{Username: " ADMIN ", Password: testPassword})
	if errLogin != nil {
		t.Fatalf("login: %v", errLogin)
	}
	if issued.Cookie == "" || issued.CSRFToken == "" || issued.Username != "admin" {
		t.Fatalf("unexpected issued session %+v", issued)
	}

	sess, errAuth := guard.Authenticate(ctx, issued.Cookie)
	if errAuth != nil {
		t.Fatalf("authenticate: %v", errAuth)
	}
	if sess.CSRFHash == issued.CSRFToken {
		t.Fatalf("csrf token must be stored hashed")
	}
	if errVerify := guard.VerifyCSRF(sess, issued.CSRFToken); errVerify != nil {
		t.Fatalf("verify csrf: %v", errVerify)
	}

	if errLogout := guard.Logout(ctx, issued.Cookie); errLogout != nil {
		t.Fatalf("logout: %v", errLogout)
	}
	_, errAuth = guard.Authenticate(ctx, issued.Cookie)
	requireCode(t, errAuth, apierr.KindUnauthorized, "not_authenticated")

	var count int64
	conn.Model(&models.AdminSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("logout must delete the session row, found %d", count)
	}
}

func TestAuthenticateRejectsBadCookies(t *testing.T) {
	guard, _ := newTestGuard(t, "")
	ctx := context.Background()

	for _, cookie := range []string{"", "garbage", "a.b.c"} {
		_, err := guard.Authenticate(ctx, cookie)
		requireCode(t, err, apierr.KindUnauthorized, "not_authenticated")
	}

	forged, errSign := security.GenerateSessionToken("another-secret-another-secret-xx", "sid", "admin", time.Now(), time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	_, err := guard.Authenticate(ctx, forged)
	requireCode(t, err, apierr.KindUnauthorized, "not_authenticated")

	unknown, _ := security.GenerateSessionToken(testSecret, "no-such-session", "admin", time.Now(), time.Hour)
	_, err = guard.Authenticate(ctx, unknown)
	requireCode(t, err, apierr.KindUnauthorized, "not_authenticated")
}

func TestAuthenticateRejectsExpiredRow(t *testing.T) {
	guard, conn := newTestGuard(t, "")
	ctx := context.Background()

	issued, errLogin := guard.Login(ctx, LoginInput{Username: "admin", Password: testPassword})
	if errLogin != nil {
		t.Fatalf("login: %v", errLogin)
	}
	conn.Model(&models.AdminSession{}).Where("1 = 1").Update("expires_at", time.Now().UTC().Add(-time.Minute))

	_, err := guard.Authenticate(ctx, issued.Cookie)
	requireCode(t, err, apierr.KindUnauthorized, "not_authenticated")
}

func TestCSRFRotationAndMismatch(t *testing.T) {
	guard, _ := newTestGuard(t, "")
	ctx := context.Background()

	issued, _ := guard.Login(ctx, LoginInput{Username: "admin", Password: testPassword})
	sess, errAuth := guard.Authenticate(ctx, issued.Cookie)
	if errAuth != nil {
		t.Fatalf("authenticate: %v", errAuth)
	}

	requireCode(t, guard.VerifyCSRF(sess, ""), apierr.KindForbidden, "csrf_failed")
	requireCode(t, guard.VerifyCSRF(sess, "wrong"), apierr.KindForbidden, "csrf_failed")

	rotated, errRotate := guard.RotateCSRF(ctx, sess)
	if errRotate != nil {
		t.Fatalf("rotate: %v", errRotate)
	}
	reloaded, _ := guard.Authenticate(ctx, issued.Cookie)
	requireCode(t, guard.VerifyCSRF(reloaded, issued.CSRFToken), apierr.KindForbidden, "csrf_failed")
	if errVerify := guard.VerifyCSRF(reloaded, rotated); errVerify != nil {
		t.Fatalf("rotated token must verify: %v", errVerify)
	}
}

func TestLoginRequiresTOTPWhenConfigured(t *testing.T) {
	secret, _, errSecret := security.GenerateTOTPSecret("admin")
	if errSecret != nil {
		t.Fatalf("totp secret: %v", errSecret)
	}
	guard, _ := newTestGuard(t, secret)
	ctx := context.Background()

	_, err := guard.Login(ctx, LoginInput{Username: "admin", Password: testPassword})
	requireCode(t, err, apierr.KindUnauthorized, "invalid_credentials")

	code, errCode := totp.GenerateCode(secret, time.Now())
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	if _, errLogin := guard.Login(ctx, LoginInput{Username: "admin", Password: testPassword, OTP: code}); errLogin != nil {
		t.Fatalf("login with otp: %v", errLogin)
	}
}

func TestPrunerRemovesExpiredRows(t *testing.T) {
	guard, conn := newTestGuard(t, "")
	ctx := context.Background()
	now := time.Now().UTC()

	if _, errLogin := guard.Login(ctx, LoginInput{Username: "admin", Password: testPassword}); errLogin != nil {
		t.Fatalf("login: %v", errLogin)
	}
	expired := models.AdminSession{IDHash: "expired", Username: "admin", CSRFHash: "x", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	if errSeed := conn.Create(&expired).Error; errSeed != nil {
		t.Fatalf("seed session: %v", errSeed)
	}
	used := now.Add(-time.Minute)
	tokens := []models.PortalResetToken{
		{UserID: 1, TokenHash: "live", ExpiresAt: now.Add(time.Hour)},
		{UserID: 1, TokenHash: "old", ExpiresAt: now.Add(-time.Hour)},
		{UserID: 1, TokenHash: "spent", ExpiresAt: now.Add(time.Hour), UsedAt: &used},
	}
	if errSeed := conn.Create(&tokens).Error; errSeed != nil {
		t.Fatalf("seed tokens: %v", errSeed)
	}

	removed := NewPruner(conn, time.Minute).PruneOnce(ctx)
	if removed != 3 {
		t.Fatalf("expected 3 rows pruned, got %d", removed)
	}
	var sessions, live int64
	conn.Model(&models.AdminSession{}).Count(&sessions)
	conn.Model(&models.PortalResetToken{}).Count(&live)
	if sessions != 1 || live != 1 {
		t.Fatalf("expected 1 session and 1 token left, got %d and %d", sessions, live)
	}
}
