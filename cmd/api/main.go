package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"adminhub.org/internal/audit"
	"adminhub.org/internal/auth"
	"adminhub.org/internal/config"
	"adminhub.org/internal/httpapi"
	"adminhub.org/internal/obs"
	"adminhub.org/internal/rbac"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()

	if cfg.PostgresDSN == "" {
		logger.Fatal("ADMINHUB_PG_DSN is required")
	}
	store, err := rbac.OpenStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	issuer, err := auth.NewTokenIssuer(cfg.Auth.SigningSecret, cfg.Auth.SigningAlgorithm,
		auth.WithAccessTTL(cfg.Auth.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}

	limiter := auth.NewFixedWindowLimiter(cfg.Auth.RateLimitEnabled,
		cfg.Auth.RateLimitMax, cfg.Auth.RateLimitWindow)
	guard := auth.NewGuard(issuer, store.Users(), limiter, logger,
		auth.WithIPWhitelist(cfg.Auth.IPWhitelist),
		auth.WithDebugBypass(cfg.Debug),
	)

	resolver := rbac.NewResolver(store, cfg.Auth.PermCacheTTL, cfg.Auth.PermCacheMaxEntries, logger)
	provisioner := rbac.NewProvisioner(store.Permissions(), cfg.Menu, logger)

	auditLogs := audit.NewLogStore(store.DB())
	sink := audit.NewSink(auditLogs, cfg.Audit.QueueSize, logger)

	api := httpapi.New(httpapi.Deps{
		DB:          store.DB(),
		Store:       store,
		Guard:       guard,
		Resolver:    resolver,
		Provisioner: provisioner,
		AuditLogs:   auditLogs,
		Sink:        sink,
		Logger:      logger,
		Config:      cfg,
		Version:     version,
	})

	syncCtx, cancelSync := context.WithTimeout(context.Background(), 30*time.Second)
	if err := api.SyncRoutes(syncCtx); err != nil {
		cancelSync()
		logger.Fatal("route sync", zap.Error(err))
	}
	cancelSync()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logger.Info("starting adminhub-api",
		zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if err := sink.Close(ctx); err != nil {
		logger.Warn("audit sink drain interrupted", zap.Error(err))
	}
	logger.Info("stopped")
}
