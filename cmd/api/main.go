package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Systemsaholic/call-helm-bridge/internal/auth"
	"github.com/Systemsaholic/call-helm-bridge/internal/bridge"
	"github.com/Systemsaholic/call-helm-bridge/internal/callapi"
	"github.com/Systemsaholic/call-helm-bridge/internal/callstore"
	"github.com/Systemsaholic/call-helm-bridge/internal/config"
	"github.com/Systemsaholic/call-helm-bridge/internal/notify"
	"github.com/Systemsaholic/call-helm-bridge/internal/telephony"
	"github.com/Systemsaholic/call-helm-bridge/pkg/logger"
	"github.com/Systemsaholic/call-helm-bridge/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	calls := callstore.NewPostgresStore(db)
	recordings := callstore.NewPostgresRecordingStore(db)

	commander := telephony.NewRestCommander(telephony.RestConfig{
		BaseURL:      cfg.Provider.BaseURL,
		APIKey:       cfg.Provider.APIKey,
		ConnectionID: cfg.Provider.ConnectionID,
		Timeout:      cfg.Provider.Timeout,
	}, log)

	machine := &bridge.Machine{
		Calls:      calls,
		Recordings: recordings,
		Commander:  commander,
		Notifier:   notify.NewRedisNotifier(rdb, log),
		Opts: bridge.Options{
			ConnectingAnnouncement:   cfg.Bridge.ConnectingAnnouncement,
			RecordingAnnouncementURL: cfg.Bridge.RecordingAnnouncementURL,
			DialTimeoutSeconds:       cfg.Bridge.DialTimeoutSeconds,
			DetectMachine:            cfg.Bridge.DetectMachine,
			HangupOnMachine:          cfg.Bridge.HangupOnMachine,
			RecordingFormat:          cfg.Bridge.RecordingFormat,
			RecordingChannels:        cfg.Bridge.RecordingChannels,
			TranscribeRecordings:     cfg.Bridge.TranscribeRecordings,
		},
		Log: log,
	}
	if cfg.Bridge.MaxConcurrentCalls > 0 {
		machine.OnTerminal = func(ctx context.Context, c *bridge.Call) {
			if err := utils.ReleaseCallSlot(ctx, rdb, callapi.SlotKey(c.WorkspaceID)); err != nil {
				log.Warn("call slot release failed", "workspace_id", c.WorkspaceID, "err", err)
			}
		}
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:     cfg,
		auth:    authManager,
		machine: machine,
		calls:   calls,
		rdb:     rdb,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
