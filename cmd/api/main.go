package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kalitka1293/instagram-scan/internal/di"
	"github.com/kalitka1293/instagram-scan/internal/handlers"
	"github.com/kalitka1293/instagram-scan/internal/platform/config"
	"github.com/kalitka1293/instagram-scan/internal/platform/idempotency"
	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		logger.Warn("metrics: instrument registration failed", zap.Error(err))
	}

	gateways, err := di.OpenGateways(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Fatal("failed to open gateways", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, gateways,
		di.WithLogger(logger),
		di.WithMetrics(metrics),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		_ = gateways.Engagement.Close()
		logger.Fatal("failed to initialise container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	var sweepWG sync.WaitGroup
	sweepWG.Add(1)
	go func() {
		defer sweepWG.Done()
		container.RunSweeper(sweepCtx)
	}()

	analysisHandlers := handlers.NewAnalysisHandlers(container.Workspace,
		handlers.WithSubmitRateLimit(cfg.Console.SubmitPerMinute, cfg.Console.SubmitBurst, nil),
	)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Workspace,
		handlers.WithPayMiddleware(idempotency.Middleware(container.Idempotency)),
	)
	subscriptionHandlers := handlers.NewSubscriptionHandlers(container.Workspace.Subscriptions())
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.System),
	)

	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware(),
		observability.InjectLoggerMiddleware(httpLogger),
		observability.RecoveryMiddleware(httpLogger),
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithViewerMiddlewares(
		handlers.RequireViewer(cfg.Console.ViewerHeader),
		observability.RequestLoggerMiddleware(metrics),
	))
	opts = append(opts, handlers.WithAnalysisRoutes(analysisHandlers.Routes))
	opts = append(opts, handlers.WithCheckoutRoutes(checkoutHandlers.Routes))
	opts = append(opts, handlers.WithSubscriptionRoutes(subscriptionHandlers.Routes))
	opts = append(opts, handlers.WithPlanRoutes(handlers.PlanRoutes))

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("analysis console api listening",
			zap.String("environment", cfg.Environment),
			zap.String("backend", cfg.Backend.BaseURL),
			zap.String("engagementDriver", cfg.Engagement.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	sweepCancel()
	sweepWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("ANALYZER_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("ANALYZER_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
