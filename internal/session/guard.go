// Package session implements the admin login session and its CSRF pairing.
//
// The cookie is a signed JWT that only names a server-side row; the row holds
// keyed hashes of the session id and of the current CSRF token. Deleting the
// row ends the session even if the cookie is replayed.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/config"
	"github.com/timecard-works/timecard/internal/metrics"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/security"
	"gorm.io/gorm"
)

// secretBytes is the entropy of session ids and CSRF tokens.
const secretBytes = 32

// HeaderCSRF carries the CSRF token on mutating admin requests.
const HeaderCSRF = "X-CSRF-Token"

// Guard issues and validates admin sessions.
type Guard struct {
	db      *gorm.DB
	admin   config.AdminConfig
	cfg     config.SessionConfig
	hasher  *security.SecretHasher
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewGuard constructs a Guard for the configured admin principal. metrics may be nil.
func NewGuard(db *gorm.DB, admin config.AdminConfig, cfg config.SessionConfig, hasher *security.SecretHasher, m *metrics.Metrics) *Guard {
	admin.Username = strings.ToLower(strings.TrimSpace(admin.Username))
	return &Guard{
		db:      db,
		admin:   admin,
		cfg:     cfg,
		hasher:  hasher,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LoginInput holds submitted admin credentials.
type LoginInput struct {
	Username string
	Password string
	OTP      string
}

// Issued is a fresh session. Cookie and CSRFToken are shown to the client once.
type Issued struct {
	Cookie    string
	CSRFToken string
	Username  string
	ExpiresAt time.Time
}

// Config returns the cookie settings.
func (g *Guard) Config() config.SessionConfig { return g.cfg }

// Login verifies credentials and opens a session. Every failure yields the
// same error so callers cannot tell which factor was wrong.
func (g *Guard) Login(ctx context.Context, in LoginInput) (Issued, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.admin.Username)) == 1
	passwordOK := security.CheckPassword(g.admin.PasswordHash, in.Password)
	if !usernameOK || !passwordOK {
		g.metrics.AdminLogin("failure")
		return Issued{}, errInvalidCredentials()
	}
	if secret := strings.TrimSpace(g.admin.TOTPSecret); secret != "" {
		if !security.ValidateTOTP(in.OTP, secret) {
			g.metrics.AdminLogin("failure")
			return Issued{}, errInvalidCredentials()
		}
	}

	sessionID, errID := security.GenerateOpaqueSecret(secretBytes)
	if errID != nil {
		return Issued{}, errID
	}
	csrfToken, errCSRF := security.GenerateOpaqueSecret(secretBytes)
	if errCSRF != nil {
		return Issued{}, errCSRF
	}
	now := g.now()
	row := models.AdminSession{
		IDHash:    g.hasher.Hash(security.DomainSessionID, sessionID),
		Username:  g.admin.Username,
		CSRFHash:  g.hasher.Hash(security.DomainCSRF, csrfToken),
		CreatedAt: now,
		ExpiresAt: now.Add(g.cfg.MaxAge),
	}
	if errCreate := g.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return Issued{}, fmt.Errorf("session: create: %w", errCreate)
	}
	cookie, errSign := security.GenerateSessionToken(g.cfg.Secret, sessionID, g.admin.Username, now, g.cfg.MaxAge)
	if errSign != nil {
		return Issued{}, fmt.Errorf("session: sign: %w", errSign)
	}
	g.metrics.AdminLogin("success")
	log.WithField("username", g.admin.Username).Info("admin login")
	return Issued{Cookie: cookie, CSRFToken: csrfToken, Username: g.admin.Username, ExpiresAt: row.ExpiresAt}, nil
}

// Authenticate resolves a cookie value to its live session row.
func (g *Guard) Authenticate(ctx context.Context, cookie string) (*models.AdminSession, error) {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return nil, ErrNotAuthenticated()
	}
	claims, errParse := security.ParseSessionToken(g.cfg.Secret, cookie)
	if errParse != nil {
		return nil, ErrNotAuthenticated()
	}
	var row models.AdminSession
	errFind := g.db.WithContext(ctx).
		Where("id_hash = ? AND expires_at > ?", g.hasher.Hash(security.DomainSessionID, claims.SessionID), g.now()).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotAuthenticated()
		}
		return nil, fmt.Errorf("session: load: %w", errFind)
	}
	if row.Username != claims.Subject || row.Username != g.admin.Username {
		return nil, ErrNotAuthenticated()
	}
	return &row, nil
}

// RotateCSRF replaces the CSRF token bound to sess and returns the new plaintext.
func (g *Guard) RotateCSRF(ctx context.Context, sess *models.AdminSession) (string, error) {
	token, errToken := security.GenerateOpaqueSecret(secretBytes)
	if errToken != nil {
		return "", errToken
	}
	hash := g.hasher.Hash(security.DomainCSRF, token)
	res := g.db.WithContext(ctx).Model(&models.AdminSession{}).
		Where("id_hash = ?", sess.IDHash).
		Update("csrf_hash", hash)
	if res.Error != nil {
		return "", fmt.Errorf("session: rotate csrf: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrNotAuthenticated()
	}
	sess.CSRFHash = hash
	return token, nil
}

// VerifyCSRF checks a submitted header value against the token bound to sess.
func (g *Guard) VerifyCSRF(sess *models.AdminSession, header string) error {
	header = strings.TrimSpace(header)
	if sess == nil || header == "" {
		return errCSRFFailed()
	}
	presented := g.hasher.Hash(security.DomainCSRF, header)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(sess.CSRFHash)) != 1 {
		return errCSRFFailed()
	}
	return nil
}

// Logout deletes the session row named by cookie. Unknown or invalid cookies are a no-op.
func (g *Guard) Logout(ctx context.Context, cookie string) error {
	claims, errParse := security.ParseSessionToken(g.cfg.Secret, strings.TrimSpace(cookie))
	if errParse != nil {
		return nil
	}
	if errDelete := g.db.WithContext(ctx).
		Where("id_hash = ?", g.hasher.Hash(security.DomainSessionID, claims.SessionID)).
		Delete(&models.AdminSession{}).Error; errDelete != nil {
		return fmt.Errorf("session: logout: %w", errDelete)
	}
	return nil
}

func errInvalidCredentials() *apierr.Error {
	return apierr.Unauthorized("invalid_credentials", "invalid credentials")
}

// ErrNotAuthenticated is the single Unauthorized shape for every missing,
// invalid or expired admin session.
func ErrNotAuthenticated() *apierr.Error {
	return apierr.Unauthorized("not_authenticated", "authentication required")
}

func errCSRFFailed() *apierr.Error {
	return apierr.Forbidden("csrf_failed", "missing or invalid CSRF token")
}
