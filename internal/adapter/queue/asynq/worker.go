package asynqadp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Handlers are the engine entry points the worker dispatches to.
type Handlers struct {
	ProcessSchedule func(ctx context.Context, p domain.ProcessSchedulePayload) error
	PostComment     func(ctx context.Context, p domain.PostCommentPayload) error
	SimulateView    func(ctx context.Context, p domain.SimulateViewPayload) error
}

// WorkerConfig sizes the three pools.
type WorkerConfig struct {
	ScheduleConcurrency int
	PostConcurrency     int
	ViewConcurrency     int
	// PostRatePerSecond bounds aggregate post attempts so a large pool does
	// not produce an upstream throttling storm.
	PostRatePerSecond int
}

// Worker runs one asynq server per queue so each pool gets its own
// concurrency budget.
type Worker struct {
	servers []*asynq.Server
	muxes   []*asynq.ServeMux
}

// retryDelay backs off transient failures at 3s, 6s, 12s, ...
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	d := 3 * time.Second
	for i := 0; i < n; i++ {
		d *= 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

func newServer(opt asynq.RedisConnOpt, queue string, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{queue: 1},
		RetryDelayFunc: retryDelay,
	})
}

// NewWorker wires the three queues to their handlers.
func NewWorker(redisURL string, wc WorkerConfig, h Handlers) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=worker.new redis: %w", err)
	}

	w := &Worker{}

	schedSrv := newServer(opt, QueueSchedules, wc.ScheduleConcurrency)
	schedMux := asynq.NewServeMux()
	schedMux.HandleFunc(TaskProcessSchedule, handle(QueueSchedules, "ProcessSchedule", h.ProcessSchedule))

	postSrv := newServer(opt, QueuePosts, wc.PostConcurrency)
	postMux := asynq.NewServeMux()
	postHandler := h.PostComment
	if wc.PostRatePerSecond > 0 {
		lim := rate.NewLimiter(rate.Limit(wc.PostRatePerSecond), wc.PostRatePerSecond)
		inner := postHandler
		postHandler = func(ctx context.Context, p domain.PostCommentPayload) error {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
			return inner(ctx, p)
		}
	}
	postMux.HandleFunc(TaskPostComment, handle(QueuePosts, "PostComment", postHandler))

	viewSrv := newServer(opt, QueueViews, wc.ViewConcurrency)
	viewMux := asynq.NewServeMux()
	viewMux.HandleFunc(TaskSimulateView, handle(QueueViews, "SimulateView", h.SimulateView))

	w.servers = []*asynq.Server{schedSrv, postSrv, viewSrv}
	w.muxes = []*asynq.ServeMux{schedMux, postMux, viewMux}
	return w, nil
}

// handle decodes the payload and wraps the handler with metrics and a span.
func handle[P any](queue, name string, fn func(ctx context.Context, p P) error) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if fn == nil {
			return fmt.Errorf("op=worker.handle task=%s: %w: no handler", t.Type(), domain.ErrInternal)
		}
		var p P
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// Malformed payloads never succeed on retry.
			return fmt.Errorf("op=worker.decode task=%s: %w", t.Type(), asynq.SkipRetry)
		}
		tracer := otel.Tracer("queue.worker")
		ctx, span := tracer.Start(ctx, name)
		defer span.End()
		observability.StartProcessingJob(queue)
		if err := fn(ctx, p); err != nil {
			observability.FailJob(queue)
			span.RecordError(err)
			return err
		}
		observability.CompleteJob(queue)
		return nil
	}
}

// Run starts all pools and blocks until ctx is cancelled, then drains
// in-flight handlers.
func (w *Worker) Run(ctx context.Context) error {
	for i := range w.servers {
		if err := w.servers[i].Start(w.muxes[i]); err != nil {
			return fmt.Errorf("op=worker.start: %w", err)
		}
	}
	<-ctx.Done()
	slog.Info("worker shutting down")
	for _, s := range w.servers {
		s.Stop()
		s.Shutdown()
	}
	return nil
}
