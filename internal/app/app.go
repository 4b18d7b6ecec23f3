package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/registryhub/registryd/internal/config"
	"github.com/registryhub/registryd/internal/db"
	"github.com/registryhub/registryd/internal/gate"
	adminapi "github.com/registryhub/registryd/internal/http/api/admin"
	frontapi "github.com/registryhub/registryd/internal/http/api/front"
	"github.com/registryhub/registryd/internal/models"
	"github.com/registryhub/registryd/internal/ratelimit"
	"github.com/registryhub/registryd/internal/security"
	internalsettings "github.com/registryhub/registryd/internal/settings"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// Environment variables seeding the bootstrap admin account.
const (
	EnvAdminUsername = "ADMIN_USERNAME"
	EnvAdminPassword = "ADMIN_PASSWORD"
)

// ConfigExists reports whether the config file is present.
func ConfigExists(configPath string) bool {
	info, err := os.Stat(configPath)
	return err == nil && !info.IsDir()
}

// Migrate opens the database and runs migrations.
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
	return db.Migrate(conn)
}

// RunServer boots the registry API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errReload := internalsettings.Reload(conn); errReload != nil {
		return errReload
	}
	if errAdmin := ensureBootstrapAdmin(conn); errAdmin != nil {
		return errAdmin
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return fmt.Errorf("app: missing jwt secret (set `jwt.secret` in config file or %s)", config.EnvJWTSecret)
	}

	limiterCfg, errLimiterCfg := config.LoadRateLimiterConfig()
	if errLimiterCfg != nil {
		return errLimiterCfg
	}
	limiter := ratelimit.New(conn, limiterCfg)
	gateManager := gate.NewManager(nil, nil, nil)

	engine := buildEngine(conn, limiter, gateManager, jwtCfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", port).Info("registry server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", errServe)
	}
}

// buildEngine assembles the gin engine with all routes registered.
func buildEngine(conn *gorm.DB, limiter *ratelimit.Limiter, gateManager *gate.Manager, jwtCfg config.JWTConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogMiddleware())

	adminapi.RegisterAdminRoutes(engine, conn, jwtCfg)
	frontapi.RegisterFrontRoutes(engine, conn, limiter, gateManager)
	return engine
}

// requestLogMiddleware logs one line per request through logrus.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("request")
	}
}

// ensureBootstrapAdmin seeds the first admin account from the environment
// when the admin table is empty.
func ensureBootstrapAdmin(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("app: count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	username := strings.TrimSpace(os.Getenv(EnvAdminUsername))
	password := os.Getenv(EnvAdminPassword)
	if username == "" || password == "" {
		log.Warn("no admin account exists; set ADMIN_USERNAME and ADMIN_PASSWORD to seed one")
		return nil
	}

	hashed, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash admin password: %w", errHash)
	}
	if errCreate := conn.Create(&models.Admin{Username: username, Password: hashed}).Error; errCreate != nil {
		return fmt.Errorf("app: seed admin: %w", errCreate)
	}
	log.WithField("username", username).Info("seeded bootstrap admin account")
	return nil
}
