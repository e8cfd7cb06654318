// Command server starts the comment engine's HTTP management API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rediscache "github.com/fairyhunter13/commentflow/internal/adapter/cache/redis"
	httpserver "github.com/fairyhunter13/commentflow/internal/adapter/httpserver"
	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/adapter/platform"
	asynqadp "github.com/fairyhunter13/commentflow/internal/adapter/queue/asynq"
	"github.com/fairyhunter13/commentflow/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/commentflow/internal/adapter/viewer"
	"github.com/fairyhunter13/commentflow/internal/app"
	"github.com/fairyhunter13/commentflow/internal/config"
	"github.com/fairyhunter13/commentflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	cache, err := rediscache.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = cache.Close() }()

	queue, err := asynqadp.New(cfg.RedisURL)
	if err != nil {
		slog.Error("queue connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	scheduleRepo := postgres.NewScheduleRepo(pool)
	accountRepo := postgres.NewAccountRepo(pool)
	proxyRepo := postgres.NewProxyRepo(pool)
	profileRepo := postgres.NewProfileRepo(pool)
	commentRepo := postgres.NewCommentRepo(pool)
	viewRepo := postgres.NewViewScheduleRepo(pool)

	// Upstream adapters
	transport := platform.NewTransportBuilder(cfg.ProxyProbeURL, cfg.ProxyProbeTimeout)
	broker := platform.NewBroker(cfg.OAuthTokenURL)
	platformAPI := platform.New(cfg.PlatformBaseURL, transport.UserAgent)
	viewerClient := viewer.New(cfg.ViewerURL, cfg.ViewerTimeout)

	// Usecases. The server registers schedule jobs on create/resume; the
	// cron loop for recurring schedules runs in the worker process.
	driver := usecase.NewScheduleDriver(scheduleRepo, queue)
	viewSvc := usecase.NewViewService(viewRepo, accountRepo, profileRepo, proxyRepo, queue, viewerClient, broker, transport, platformAPI)
	scheduleSvc := usecase.NewScheduleService(scheduleRepo, commentRepo, cache, queue, driver)
	accountSvc := usecase.NewAccountService(accountRepo, profileRepo, proxyRepo, broker, transport, platformAPI)
	proxySvc := usecase.NewProxyService(proxyRepo, transport)
	viewPlanSvc := usecase.NewViewPlanService(viewRepo, viewSvc)

	dbCheck, redisCheck, viewerCheck := app.BuildReadinessChecks(cfg, pool, cache)

	srv := &httpserver.Server{
		Cfg:         cfg,
		Schedules:   scheduleSvc,
		Accounts:    accountSvc,
		Proxies:     proxySvc,
		ViewPlans:   viewPlanSvc,
		AccountRepo: accountRepo,
		ProxyRepo:   proxyRepo,
		ProfileRepo: profileRepo,
		CommentRepo: commentRepo,
		ViewRepo:    viewRepo,
		DBCheck:     dbCheck,
		RedisCheck:  redisCheck,
		ViewerCheck: viewerCheck,
	}

	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
