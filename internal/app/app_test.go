package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/timecard-works/timecard/internal/config"
	"github.com/timecard-works/timecard/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testSecret        = "0123456789abcdef0123456789abcdef"
	testAdminUser     = "admin"
	testAdminPassword = "correct horse battery"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:app_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	hash, errHash := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	cfg := config.Default()
	cfg.Server.Debug = true
	cfg.Database.DSN = dsn
	cfg.Admin.Username = testAdminUser
	cfg.Admin.PasswordHash = string(hash)
	cfg.Session.Secret = testSecret
	cfg.Security.TokenHashKey = testSecret
	if mutate != nil {
		mutate(&cfg)
	}

	srv, errServer := NewServer(context.Background(), cfg, conn)
	if errServer != nil {
		t.Fatalf("new server: %v", errServer)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// adminClient carries the cookies and CSRF token of one admin login.
type adminClient struct {
	cookies []*http.Cookie
	csrf    string
}

func do(t *testing.T, srv *Server, method, path, body string, prepare func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	srv.Engine.ServeHTTP(rec, req)
	return rec
}

func (a *adminClient) withSession(csrf bool) func(r *http.Request) {
	return func(r *http.Request) {
		for _, cookie := range a.cookies {
			r.AddCookie(cookie)
		}
		if csrf {
			r.Header.Set("X-CSRF-Token", a.csrf)
		}
	}
}

func bearer(token string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), errDecode)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	envelope, _ := body["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := errorCode(t, rec); got != code {
		t.Fatalf("expected code %q, got %q", code, got)
	}
}

func loginAdmin(t *testing.T, srv *Server) *adminClient {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/v1/admin/login",
		fmt.Sprintf(`{"username":%q,"password":%q}`, testAdminUser, testAdminPassword), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: %d %s", rec.Code, rec.Body.String())
	}
	client := &adminClient{cookies: rec.Result().Cookies()}
	client.csrf, _ = decode(t, rec)["csrf_token"].(string)
	if client.csrf == "" || len(client.cookies) != 2 {
		t.Fatalf("expected csrf token and two cookies, got %q / %d", client.csrf, len(client.cookies))
	}
	for _, cookie := range client.cookies {
		if cookie.Name == "timecard_admin_session" && !cookie.HttpOnly {
			t.Fatalf("session cookie must be HttpOnly")
		}
		if cookie.Name == "csrf_token" && cookie.HttpOnly {
			t.Fatalf("csrf cookie must be readable by scripts")
		}
	}
	return client
}

func registerDevice(t *testing.T, srv *Server, fingerprint string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/v1/instances/register",
		fmt.Sprintf(`{"client_type":"ANDROID","device_fingerprint":%q}`, fingerprint), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	id, _ := decode(t, rec)["instance_id"].(string)
	return id
}

func activateAndClaim(t *testing.T, srv *Server, admin *adminClient, name string) (string, string) {
	t.Helper()
	id := registerDevice(t, srv, "fp-"+name)
	rec := do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/activate",
		fmt.Sprintf(`{"display_name":%q}`, name), admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPost, "/api/v1/instances/"+id+"/claim-token", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: %d %s", rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["instance_token"].(string)
	return id, token
}

func TestDeviceLifecycleEndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)

	id := registerDevice(t, srv, "pixel-7")

	rec := do(t, srv, http.MethodGet, "/api/v1/instances/"+id+"/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "PENDING" {
		t.Fatalf("expected PENDING, got %v", body)
	}
	if _, leaked := body["display_name"]; leaked {
		t.Fatalf("pending status must not expose details: %v", body)
	}

	expectError(t, do(t, srv, http.MethodPost, "/api/v1/instances/"+id+"/claim-token", "", nil),
		http.StatusConflict, "instance_not_active")

	admin := loginAdmin(t, srv)
	rec = do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/activate",
		`{"display_name":"Reception","employment_template":"HPP"}`, admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/instances/"+id+"/status", "", nil)
	body = decode(t, rec)
	if body["status"] != "ACTIVE" || body["display_name"] != "Reception" || body["employment_template"] != "HPP" || body["afternoon_cutoff"] != "17:00" {
		t.Fatalf("unexpected active status %v", body)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/instances/"+id+"/claim-token", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("token responses must not be cached")
	}
	token, _ := decode(t, rec)["instance_token"].(string)
	if !strings.HasPrefix(token, "tc_") {
		t.Fatalf("unexpected token %q", token)
	}
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/instances/"+id+"/claim-token", "", nil),
		http.StatusConflict, "token_already_claimed")

	rec = do(t, srv, http.MethodPut, "/api/v1/attendance",
		`{"date":"2026-03-02","arrival_time":"07:55","departure_time":"16:05"}`, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/attendance?year=2026&month=3", "", bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("month: %d %s", rec.Code, rec.Body.String())
	}
	body = decode(t, rec)
	days, _ := body["days"].([]any)
	if len(days) != 31 || body["locked"] != false || body["instance_display_name"] != "Reception" {
		t.Fatalf("unexpected month view: %d days, %v", len(days), body["locked"])
	}
	second, _ := days[1].(map[string]any)
	if second["date"] != "2026-03-02" || second["arrival_time"] != "07:55" || second["departure_time"] != "16:05" {
		t.Fatalf("unexpected day %v", second)
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/revoke", "", admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/attendance?year=2026&month=3", "", bearer(token)),
		http.StatusUnauthorized, "invalid_token")
}

func TestAdminRoutesRequireSessionAndCSRF(t *testing.T) {
	srv := newTestServer(t, nil)
	id := registerDevice(t, srv, "kiosk")

	missing := do(t, srv, http.MethodGet, "/api/v1/admin/instances", "", nil)
	expectError(t, missing, http.StatusUnauthorized, "not_authenticated")
	forged := do(t, srv, http.MethodGet, "/api/v1/admin/instances", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "timecard_admin_session", Value: "forged"})
	})
	expectError(t, forged, http.StatusUnauthorized, "not_authenticated")
	if missing.Body.String() != forged.Body.String() {
		t.Fatalf("missing and invalid sessions must look alike: %s vs %s", missing.Body.String(), forged.Body.String())
	}

	admin := loginAdmin(t, srv)
	rec := do(t, srv, http.MethodGet, "/api/v1/admin/instances", "", admin.withSession(false))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "token_hash") {
		t.Fatalf("instance list must not expose token material: %s", rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/api/v1/admin/version", "", admin.withSession(false))
	if rec.Code != http.StatusOK || decode(t, rec)["version"] != "dev" {
		t.Fatalf("version: %d %s", rec.Code, rec.Body.String())
	}

	expectError(t, do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/activate", `{"display_name":"Kiosk"}`, admin.withSession(false)),
		http.StatusForbidden, "csrf_failed")
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/activate", `{"display_name":"Kiosk"}`, func(r *http.Request) {
		admin.withSession(false)(r)
		r.Header.Set("X-CSRF-Token", "wrong")
	}), http.StatusForbidden, "csrf_failed")

	rec = do(t, srv, http.MethodGet, "/api/v1/admin/csrf", "", admin.withSession(false))
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf: %d", rec.Code)
	}
	stale := admin.csrf
	admin.csrf, _ = decode(t, rec)["csrf_token"].(string)
	if admin.csrf == stale {
		t.Fatalf("csrf token should rotate")
	}
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/activate", `{"display_name":"Kiosk"}`, func(r *http.Request) {
		admin.withSession(false)(r)
		r.Header.Set("X-CSRF-Token", stale)
	}), http.StatusForbidden, "csrf_failed")

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+id+"/activate", `{"display_name":"Kiosk"}`, admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/logout", "", admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}
	loggedOut := do(t, srv, http.MethodGet, "/api/v1/admin/me", "", admin.withSession(false))
	expectError(t, loggedOut, http.StatusUnauthorized, "not_authenticated")
	if loggedOut.Body.String() != missing.Body.String() {
		t.Fatalf("ended sessions must look like missing ones: %s", loggedOut.Body.String())
	}
}

func TestAdminLoginFailuresLookAlike(t *testing.T) {
	srv := newTestServer(t, nil)

	wrongUser := do(t, srv, http.MethodPost, "/api/v1/admin/login", `{"username":"root","password":"whatever"}`, nil)
	wrongPassword := do(t, srv, http.MethodPost, "/api/v1/admin/login", `{"username":"admin","password":"whatever"}`, nil)

	expectError(t, wrongUser, http.StatusUnauthorized, "invalid_credentials")
	if wrongUser.Body.String() != wrongPassword.Body.String() || wrongUser.Code != wrongPassword.Code {
		t.Fatalf("login failures differ: %s vs %s", wrongUser.Body.String(), wrongPassword.Body.String())
	}
}

func TestRateLimitedStatusPolling(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.InstanceStatus = config.LimitRule{Limit: 2, Window: time.Minute}
	})
	id := registerDevice(t, srv, "poller")

	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodGet, "/api/v1/instances/"+id+"/status", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("poll %d: %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/api/v1/instances/"+id+"/status", "", nil)
	expectError(t, rec, http.StatusTooManyRequests, "rate_limited")
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	other := do(t, srv, http.MethodGet, "/api/v1/instances/"+id+"/status", "", func(r *http.Request) {
		r.RemoteAddr = "198.51.100.9:4000"
	})
	if other.Code != http.StatusOK {
		t.Fatalf("other clients must not share the window, got %d", other.Code)
	}
}

func TestLockedMonthRejectsDeviceAndAdminWrites(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := loginAdmin(t, srv)
	id, token := activateAndClaim(t, srv, admin, "Warehouse")

	rec := do(t, srv, http.MethodPost, "/api/v1/admin/attendance/lock",
		fmt.Sprintf(`{"instance_id":%q,"year":2026,"month":4}`, id), admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("lock: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPost, "/api/v1/admin/attendance/lock",
		fmt.Sprintf(`{"instance_id":%q,"year":2026,"month":4}`, id), admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("second lock should be a no-op, got %d", rec.Code)
	}

	expectError(t, do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-04-10","arrival_time":"08:00"}`, bearer(token)),
		http.StatusForbidden, "month_locked")
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/admin/attendance",
		fmt.Sprintf(`{"instance_id":%q,"date":"2026-04-10","arrival_time":"08:00"}`, id), admin.withSession(true)),
		http.StatusForbidden, "month_locked")

	rec = do(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/admin/attendance?instance_id=%s&year=2026&month=4", id), "", admin.withSession(false))
	if rec.Code != http.StatusOK || decode(t, rec)["locked"] != true {
		t.Fatalf("expected locked month view, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/attendance/unlock",
		fmt.Sprintf(`{"instance_id":%q,"year":2026,"month":4}`, id), admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-04-10","arrival_time":"08:00"}`, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert after unlock: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := loginAdmin(t, srv)
	_, token := activateAndClaim(t, srv, admin, "Validator")

	expectError(t, do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-02-30"}`, bearer(token)),
		http.StatusBadRequest, "invalid_date")
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-02-03","arrival_time":"24:00"}`, bearer(token)),
		http.StatusBadRequest, "invalid_time")
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-02-03","note":"x"}`, bearer(token)),
		http.StatusBadRequest, "invalid_json")
	expectError(t, do(t, srv, http.MethodPut, "/api/v1/attendance", `{"arrival_time":"08:00"}`, bearer(token)),
		http.StatusBadRequest, "missing_field")
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/attendance?year=2026&month=13", "", bearer(token)),
		http.StatusBadRequest, "invalid_month")
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/instances/register", `{"client_type":"PORTAL","device_fingerprint":"x"}`, nil),
		http.StatusBadRequest, "client_type_not_registrable")
}

func TestExportAndSettings(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := loginAdmin(t, srv)
	id, token := activateAndClaim(t, srv, admin, "Jana Nováková")

	rec := do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-05-04","arrival_time":"06:00","departure_time":"14:30"}`, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/admin/export?month=2026-05&instance_id="+id, "", admin.withSession(false))
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="jana_novakova_2026-05.csv"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !strings.Contains(rec.Body.String(), "2026-05-04,06:00,14:30") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/admin/export?month=2026-05&bulk=true", "", admin.withSession(false))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("bulk export: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/admin/export?month=2026-05", "", admin.withSession(false)),
		http.StatusBadRequest, "invalid_export")
	expectError(t, do(t, srv, http.MethodGet, "/api/v1/admin/export?month=26-05&bulk=true", "", admin.withSession(false)),
		http.StatusBadRequest, "invalid_month")

	rec = do(t, srv, http.MethodPut, "/api/v1/admin/settings", `{"afternoon_cutoff":"16:30"}`, admin.withSession(true))
	if rec.Code != http.StatusOK || decode(t, rec)["afternoon_cutoff"] != "16:30" {
		t.Fatalf("settings put: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, srv, http.MethodGet, "/api/v1/instances/"+id+"/status", "", nil)
	if decode(t, rec)["afternoon_cutoff"] != "16:30" {
		t.Fatalf("status should follow the global cutoff: %s", rec.Body.String())
	}
}

func TestPortalUserFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := loginAdmin(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/v1/admin/users", `{"name":"Petr Svoboda","email":"Petr@Example.com"}`, admin.withSession(true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}
	created := decode(t, rec)
	userID := int(created["id"].(float64))
	if created["email"] != "petr@example.com" || created["has_password"] != false {
		t.Fatalf("unexpected user %v", created)
	}
	instanceID, _ := created["instance_id"].(string)
	if instanceID == "" {
		t.Fatalf("expected provisioned instance id, got %v", created)
	}
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/instances/"+instanceID+"/claim-token", "", nil),
		http.StatusConflict, "portal_instance_not_claimable")
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/admin/instances/"+instanceID+"/reset-token", "", admin.withSession(true)),
		http.StatusConflict, "portal_instance_not_claimable")

	rec = do(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/reset-token", userID), "", admin.withSession(true))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset token: %d %s", rec.Code, rec.Body.String())
	}
	resetToken, _ := decode(t, rec)["token"].(string)

	rec = do(t, srv, http.MethodPost, "/api/v1/portal/reset", fmt.Sprintf(`{"token":%q,"password":"s3cret-pass"}`, resetToken), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portal reset: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, srv, http.MethodPost, "/api/v1/portal/reset", fmt.Sprintf(`{"token":%q,"password":"another-pass"}`, resetToken), nil),
		http.StatusBadRequest, "invalid_reset_token")

	expectError(t, do(t, srv, http.MethodPost, "/api/v1/portal/login", `{"email":"petr@example.com","password":"wrong-pass"}`, nil),
		http.StatusUnauthorized, "invalid_credentials")
	rec = do(t, srv, http.MethodPost, "/api/v1/portal/login", `{"email":"petr@example.com","password":"s3cret-pass"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portal login: %d %s", rec.Code, rec.Body.String())
	}
	token, _ := decode(t, rec)["instance_token"].(string)

	rec = do(t, srv, http.MethodPut, "/api/v1/attendance", `{"date":"2026-06-01","arrival_time":"09:00"}`, bearer(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("portal attendance: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["ok"] != true {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}

	do(t, srv, http.MethodPost, "/api/v1/admin/login", `{"username":"nobody","password":"x"}`, nil)
	rec = do(t, srv, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	for _, want := range []string{
		`timecard_admin_logins_total{outcome="failure"} 1`,
		`timecard_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}

	expectError(t, do(t, srv, http.MethodGet, "/api/v1/nope", "", nil), http.StatusNotFound, "route_not_found")
}
