// Package app assembles the server from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linecrm/linecrm/internal/config"
	"github.com/linecrm/linecrm/internal/db"
	"github.com/linecrm/linecrm/internal/http/api"
	"github.com/linecrm/linecrm/internal/lineapi"
	"github.com/linecrm/linecrm/internal/lineauth"
	"github.com/linecrm/linecrm/internal/logging"
	"github.com/linecrm/linecrm/internal/session"
	"github.com/linecrm/linecrm/internal/settings"
	"github.com/linecrm/linecrm/internal/stats"
	"github.com/linecrm/linecrm/internal/webui"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

// Migrate opens the database and runs the schema bootstrap.
func Migrate(ctx context.Context, cfg config.Config) (db.Report, error) {
	conn, err := openDatabase(cfg)
	if err != nil {
		return db.Report{}, err
	}
	defer closeDatabase(conn)
	return db.Bootstrap(ctx, conn)
}

// CheckDatabase opens the database and reports its state without changing it.
func CheckDatabase(ctx context.Context, cfg config.Config) (db.ConnectionInfo, error) {
	conn, err := openDatabase(cfg)
	if err != nil {
		return db.ConnectionInfo{}, err
	}
	defer closeDatabase(conn)
	return db.Check(ctx, conn)
}

// RunServer boots the admin API and blocks until ctx is cancelled or the
// listener fails. In-flight requests get a grace period on shutdown.
func RunServer(ctx context.Context, cfg config.Config) error {
	if errLog := logging.Setup(cfg.Log); errLog != nil {
		return errLog
	}
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	webBundle, errLoad := webui.Load(cfg.Server.WebDir)
	if errLoad != nil {
		return errLoad
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(conn)

	report, errBootstrap := db.Bootstrap(ctx, conn)
	if errBootstrap != nil {
		return errBootstrap
	}
	log.WithFields(log.Fields{
		"dialect":     db.DialectName(conn),
		"initialized": report.Initialized,
		"settings":    report.SettingsCount,
	}).Info("database ready")

	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	store, redisClient, errStore := buildSessionStore(ctx, cfg, conn)
	if errStore != nil {
		return errStore
	}
	if redisClient != nil {
		defer func() {
			if errClose := redisClient.Close(); errClose != nil {
				log.WithError(errClose).Warn("close redis client")
			}
		}()
	}
	sessions := session.NewManager(store, cfg.Session.TTL, cfg.Session.LoginStateTTL)

	statsService, errStats := stats.New(conn)
	if errStats != nil {
		return errStats
	}

	var lineLogin *lineauth.Client
	if cfg.LINELoginEnabled() {
		lineLogin = lineauth.NewClient(lineauth.Config{
			ChannelID:     cfg.LINE.ChannelID,
			ChannelSecret: cfg.LINE.ChannelSecret,
			RedirectURL:   cfg.LINE.RedirectURL,
			AuthURL:       cfg.LINE.AuthURL,
			TokenURL:      cfg.LINE.TokenURL,
			JWKSURL:       cfg.LINE.JWKSURL,
			Issuer:        cfg.LINE.Issuer,
		})
		log.WithField("redirect_url", cfg.LINE.RedirectURL).Info("LINE Login enabled")
	} else {
		log.Warn("LINE Login is not configured; sign-in is disabled")
	}
	lineAPI := lineapi.NewClient(cfg.LINE.APIBaseURL, func() string {
		return settings.String(settings.ChannelAccessTokenKey, "")
	}, nil)

	engine := api.NewEngine(api.Deps{
		Config:    cfg,
		DB:        conn,
		Sessions:  sessions,
		Stats:     statsService,
		LineLogin: lineLogin,
		LineAPI:   lineAPI,
		WebhookSecret: func() string {
			return settings.String(settings.ChannelSecretKey, "")
		},
		Web: webBundle,
	})

	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	NewSessionJanitor(store, cfg.Jobs.SessionPurgeInterval).Start(jobCtx)
	NewSnapshotJob(statsService, cfg.Jobs.SnapshotInterval).Start(jobCtx)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("server listening on %s (mode=%s)", server.Addr, cfg.Server.Mode)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case errServe := <-serveErr:
		if errServe != nil {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("server stopped")
	return nil
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	return db.Open(cfg.DatabaseDSN(), db.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		PingTimeout:     cfg.Database.ConnectTimeout,
	})
}

func closeDatabase(conn *gorm.DB) {
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.WithError(errClose).Warn("close database")
	}
}

// buildSessionStore picks Redis when configured and the database otherwise.
func buildSessionStore(ctx context.Context, cfg config.Config, conn *gorm.DB) (session.Store, *redis.Client, error) {
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		log.Info("session store: database")
		return session.NewGormStore(conn), nil, nil
	}
	client, errDial := session.DialRedis(ctx, cfg.Redis.URL)
	if errDial != nil {
		return nil, nil, errDial
	}
	log.WithField("prefix", cfg.Redis.Prefix).Info("session store: redis")
	return session.NewRedisStore(client, cfg.Redis.Prefix), client, nil
}
