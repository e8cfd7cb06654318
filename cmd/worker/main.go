// Command worker runs the queue consumers and the maintenance loops.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/commentflow/internal/adapter/ai"
	rediscache "github.com/fairyhunter13/commentflow/internal/adapter/cache/redis"
	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/adapter/platform"
	asynqadp "github.com/fairyhunter13/commentflow/internal/adapter/queue/asynq"
	"github.com/fairyhunter13/commentflow/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/commentflow/internal/adapter/viewer"
	"github.com/fairyhunter13/commentflow/internal/config"
	"github.com/fairyhunter13/commentflow/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// The worker exposes its own /metrics endpoint so Prometheus can scrape
	// job-queue instrumentation.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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
	aiClient := ai.New(cfg)

	// Usecases
	driver := usecase.NewScheduleDriver(scheduleRepo, queue)
	selector := usecase.NewSelector(accountRepo, profileRepo)
	textGen := usecase.NewTextGenerator(aiClient, platformAPI, cfg.LLMAPIKey, scheduleRepo)
	processSvc := usecase.NewProcessService(scheduleRepo, commentRepo, cache, queue, driver, selector, textGen, cfg.BetweenAccountsMS, cfg.DispatchCeiling)
	postSvc := usecase.NewPostService(commentRepo, scheduleRepo, accountRepo, profileRepo, proxyRepo, broker, transport, platformAPI)
	viewSvc := usecase.NewViewService(viewRepo, accountRepo, profileRepo, proxyRepo, queue, viewerClient, broker, transport, platformAPI)
	maint := usecase.NewMaintenance(scheduleRepo, viewRepo, accountRepo, profileRepo, driver, viewSvc, cfg.MaintenanceInterval, cfg.ReconcileInterval, cfg.QuotaResetTimezone)

	worker, err := asynqadp.NewWorker(cfg.RedisURL, asynqadp.WorkerConfig{
		ScheduleConcurrency: cfg.ScheduleConcurrency,
		PostConcurrency:     cfg.PostConcurrency,
		ViewConcurrency:     cfg.ViewConcurrency,
		PostRatePerSecond:   cfg.PostRatePerSecond,
	}, asynqadp.Handlers{
		ProcessSchedule: processSvc.HandleProcessSchedule,
		PostComment:     postSvc.HandlePostComment,
		SimulateView:    viewSvc.HandleSimulateView,
	})
	if err != nil {
		slog.Error("worker init failed", slog.Any("error", err))
		os.Exit(1)
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Re-register every active schedule and view plan so jobs lost to a
	// restart come back.
	driver.Start()
	defer driver.Stop()
	if err := driver.Reload(runCtx); err != nil {
		slog.Error("schedule reload failed", slog.Any("error", err))
	}
	if err := viewSvc.Reload(runCtx); err != nil {
		slog.Error("view plan reload failed", slog.Any("error", err))
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { maint.Run(gctx); return nil })

	if err := g.Wait(); err != nil {
		slog.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
