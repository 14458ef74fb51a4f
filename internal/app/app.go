package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/access"
	"github.com/timecard-works/timecard/internal/attendance"
	"github.com/timecard-works/timecard/internal/buildinfo"
	"github.com/timecard-works/timecard/internal/config"
	"github.com/timecard-works/timecard/internal/db"
	"github.com/timecard-works/timecard/internal/export"
	"github.com/timecard-works/timecard/internal/http/api/admin"
	adminhandlers "github.com/timecard-works/timecard/internal/http/api/admin/handlers"
	"github.com/timecard-works/timecard/internal/http/api/front"
	"github.com/timecard-works/timecard/internal/instance"
	"github.com/timecard-works/timecard/internal/logging"
	"github.com/timecard-works/timecard/internal/metrics"
	"github.com/timecard-works/timecard/internal/portal"
	"github.com/timecard-works/timecard/internal/ratelimit"
	"github.com/timecard-works/timecard/internal/security"
	"github.com/timecard-works/timecard/internal/session"
	"github.com/timecard-works/timecard/internal/settings"
	"gorm.io/gorm"
)

// apiPrefix is where every versioned route lives.
const apiPrefix = "/api/v1"

// Migrate opens the database and applies pending migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()

	pending, errPending := db.Pending(conn.WithContext(ctx))
	if errPending != nil {
		return errPending
	}
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	log.WithField("applied", len(pending)).Info("migrations complete")
	return nil
}

// Server bundles the wired services behind the HTTP engine.
type Server struct {
	Engine  *gin.Engine
	DB      *gorm.DB
	Metrics *metrics.Metrics
	Pruner  *session.Pruner
	limiter ratelimit.Limiter
}

// Close releases the limiter backend.
func (s *Server) Close() error {
	if closer, ok := s.limiter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewServer wires every service onto conn. The schema must already be current.
func NewServer(ctx context.Context, cfg config.Config, conn *gorm.DB) (*Server, error) {
	store := settings.NewStore()
	if errRefresh := store.Refresh(ctx, conn); errRefresh != nil {
		return nil, fmt.Errorf("load settings: %w", errRefresh)
	}

	hasher, errHasher := security.NewSecretHasher(cfg.Security.TokenHashKey)
	if errHasher != nil {
		return nil, errHasher
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	limiter, errLimiter := ratelimit.New(ctx, cfg.RateLimit)
	if errLimiter != nil {
		return nil, errLimiter
	}

	guard := session.NewGuard(conn, cfg.Admin, cfg.Session, hasher, m)
	instances := instance.NewService(conn, hasher, store, m)
	ledger := attendance.NewLedger(conn, m)
	portalSvc := portal.NewService(conn, hasher, store)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.GinLogger())
	if m != nil {
		engine.Use(m.Middleware())
	}
	if errProxies := engine.SetTrustedProxies(cfg.Server.TrustedProxies); errProxies != nil {
		return nil, fmt.Errorf("trusted proxies: %w", errProxies)
	}

	healthHandler := adminhandlers.NewHealthHandler(conn)
	engine.GET("/healthz", healthHandler.Healthz)
	if m != nil {
		engine.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	api := engine.Group(apiPrefix)
	front.RegisterFrontRoutes(api, front.Deps{
		Instances: instances,
		Ledger:    ledger,
		Portal:    portalSvc,
		Bearer:    access.NewBearerGuard(conn, hasher),
		Limiter:   limiter,
		Limits:    cfg.RateLimit,
		Metrics:   m,
	})
	admin.RegisterAdminRoutes(api, admin.Deps{
		DB:        conn,
		Guard:     guard,
		Instances: instances,
		Ledger:    ledger,
		Exporter:  export.NewExporter(conn, ledger),
		Portal:    portalSvc,
		Settings:  store,
		Limiter:   limiter,
		Limits:    cfg.RateLimit,
		Metrics:   m,
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"kind": "not_found", "code": "route_not_found", "message": "route not found"}})
	})

	return &Server{
		Engine:  engine,
		DB:      conn,
		Metrics: m,
		Pruner:  session.NewPruner(conn, cfg.Session.PruneInterval),
		limiter: limiter,
	}, nil
}

// RunServer boots the attendance API and blocks until ctx is cancelled.
func RunServer(ctx context.Context, appCfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	if errSchema := db.EnsureSchema(conn.WithContext(ctx)); errSchema != nil {
		return errSchema
	}

	server, err := NewServer(ctx, cfg, conn)
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()
	server.Pruner.Start(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"addr":    cfg.Server.ListenAddr,
			"version": buildinfo.Version,
			"config":  configPath,
		}).Info("starting timecard server")
		if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down timecard server")
	if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}
