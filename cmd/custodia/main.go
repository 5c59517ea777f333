package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-app/custodia/internal/app"
	"github.com/custodia-app/custodia/internal/audit"
	"github.com/custodia-app/custodia/internal/auth"
	"github.com/custodia-app/custodia/internal/gateway"
	"github.com/custodia-app/custodia/internal/observability"
	"github.com/custodia-app/custodia/internal/platform/db"
	"github.com/custodia-app/custodia/internal/rbac"
	"github.com/custodia-app/custodia/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager(redisClient, cfg.TokenTTL)
	recorder := audit.NewPGRecorder(pool)

	rbacRepo := rbac.NewRepository(pool)
	var resolverOpts []rbac.ResolverOption
	if cfg.IncludeInactiveGrants {
		resolverOpts = append(resolverOpts, rbac.WithInactiveGrants())
	}
	resolver := rbac.NewResolver(rbacRepo, resolverOpts...)
	gw := gateway.New(resolver, recorder, logger, metrics)

	rbacService := rbac.NewService(rbacRepo)
	rbacHandler := rbac.NewHandler(logger, rbacService, gw, resolver)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	roleName := func(ctx context.Context, userID int64) string {
		roles, err := rbacService.RolesForUser(ctx, userID)
		if err != nil || len(roles) == 0 {
			return ""
		}
		return roles[0].Name
	}
	usersHandler := users.NewHandler(logger, usersService, gw, recorder, tokens, roleName)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, resolver)

	authMiddleware := &auth.Middleware{Tokens: tokens, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Auth:         authMiddleware,
		UsersHandler: usersHandler,
		RBACHandler:  rbacHandler,
		AuditHandler: auditHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
