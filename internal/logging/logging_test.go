package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/config"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, errSetup := Setup(config.LoggingConfig{Level: "chatty"}); errSetup == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetupWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "timecard.log")
	closer, errSetup := Setup(config.LoggingConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	if errSetup != nil {
		t.Fatalf("setup: %v", errSetup)
	}
	t.Cleanup(func() {
		_ = closer.Close()
		log.SetOutput(bytes.NewBuffer(nil))
	})
	log.Info("hello")
}

func TestGinLoggerMasksTokens(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetLevel(log.InfoLevel)
	t.Cleanup(func() { log.SetOutput(bytes.NewBuffer(nil)) })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinLogger())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x?reset_token=supersecretvalue", nil))

	out := buf.String()
	if strings.Contains(out, "supersecretvalue") {
		t.Fatalf("token leaked into log: %s", out)
	}
	if !strings.Contains(out, "status=204") {
		t.Fatalf("expected status field in log: %s", out)
	}
}
