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

	"dialer-platform/internal/admission"
	"dialer-platform/internal/analytics"
	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/config"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/outcome"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/retry"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
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

	if cfg.App.Env == "production" {
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

	// Persistence
	jobRepo := queue.NewPostgresRepo(db)
	campaignRepo := campaign.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)
	leases := admission.NewRedisLeases(rdb)

	// Services
	jobs := queue.NewService(jobRepo)
	campaigns := campaign.NewService(campaignRepo, jobs)
	controller := admission.NewController(jobRepo, campaignRepo, leases, admission.Caps{
		SystemMax: cfg.Dialer.SystemMaxConcurrent,
		TenantMax: cfg.Dialer.TenantMaxConcurrent,
	}, cfg.Dialer.ClaimBatchSize, cfg.Dialer.ClaimLeaseTTL, log)
	retries := retry.NewScheduler(jobs)
	recorder := outcome.NewRecorder(jobRepo, campaignRepo, retries, leases, log)
	stats := analytics.NewService(campaignRepo, callRepo, jobRepo)
	auditLog := audit.NewService(audit.NewMemoryRepo())

	// Background lease reaper puts stuck processing jobs back in the queue.
	reaper := admission.NewReaper(jobRepo, leases, cfg.Dialer.ClaimBatchSize, log)
	go reaper.Run(rootCtx, cfg.Dialer.ReapInterval)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireAccessToken(authManager), httpapi.Handlers{
		Auth:      authManager,
		Queue:     jobs,
		Campaigns: campaigns,
		Admission: controller,
		Analytics: stats,
		Outcomes:  recorder,
		Audit:     auditLog,
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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
