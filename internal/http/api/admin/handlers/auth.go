package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timecard-works/timecard/internal/apierr"
	apihttp "github.com/timecard-works/timecard/internal/http"
	"github.com/timecard-works/timecard/internal/session"
)

// AuthHandler handles admin login, CSRF issuance and logout.
type AuthHandler struct {
	guard *session.Guard
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(guard *session.Guard) *AuthHandler {
	return &AuthHandler{guard: guard}
}

// loginRequest holds admin credentials.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	OTP      string `json:"otp"`
}

// Login verifies credentials and sets the session and CSRF cookies.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := apihttp.BindJSON(c, &body); errBind != nil {
		apierr.Respond(c, errBind)
		return
	}

	issued, errLogin := h.guard.Login(c.Request.Context(), session.LoginInput{
		Username: body.Username,
		Password: body.Password,
		OTP:      body.OTP,
	})
	if errLogin != nil {
		apierr.Respond(c, errLogin)
		return
	}

	cfg := h.guard.Config()
	h.setCookie(c, cfg.CookieName, issued.Cookie, issued.ExpiresAt, true)
	h.setCookie(c, cfg.CSRFCookieName, issued.CSRFToken, issued.ExpiresAt, false)
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"username":   issued.Username,
		"csrf_token": issued.CSRFToken,
		"expires_at": issued.ExpiresAt,
	})
}

// CSRF rotates the CSRF token bound to the current session.
func (h *AuthHandler) CSRF(c *gin.Context) {
	sess, errSession := adminSession(c)
	if errSession != nil {
		apierr.Respond(c, errSession)
		return
	}
	token, errRotate := h.guard.RotateCSRF(c.Request.Context(), sess)
	if errRotate != nil {
		apierr.Respond(c, errRotate)
		return
	}
	h.setCookie(c, h.guard.Config().CSRFCookieName, token, sess.ExpiresAt, false)
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrf_token": token})
}

// Me describes the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	sess, errSession := adminSession(c)
	if errSession != nil {
		apierr.Respond(c, errSession)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"username":      sess.Username,
		"expires_at":    sess.ExpiresAt,
	})
}

// Logout deletes the server-side session and clears both cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	cfg := h.guard.Config()
	cookie, _ := c.Cookie(cfg.CookieName)
	if errLogout := h.guard.Logout(c.Request.Context(), cookie); errLogout != nil {
		apierr.Respond(c, errLogout)
		return
	}
	h.clearCookie(c, cfg.CookieName, true)
	h.clearCookie(c, cfg.CSRFCookieName, false)
	c.JSON(http.StatusOK, okResponse)
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, expiresAt time.Time, httpOnly bool) {
	cfg := h.guard.Config()
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		Secure:   cfg.CookieSecure,
		HttpOnly: httpOnly,
		SameSite: sameSite(cfg.CookieSameSite),
	})
}

func (h *AuthHandler) clearCookie(c *gin.Context, name string, httpOnly bool) {
	cfg := h.guard.Config()
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   cfg.CookieSecure,
		HttpOnly: httpOnly,
		SameSite: sameSite(cfg.CookieSameSite),
	})
}

func sameSite(value string) http.SameSite {
	if strings.EqualFold(value, "strict") {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}
