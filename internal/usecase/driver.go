// Package usecase contains the engine's orchestration services.
package usecase

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Queue names mirrored here so the driver can target RemoveTask without
// importing the adapter.
const (
	queueSchedules = "schedules"
	queueViews     = "views"
)

// ScheduleDriver turns a schedule definition into queued batch jobs. One
// driver instance runs inside the worker process; the in-process cron
// registry only serves recurring (cron expression) schedules, everything
// else rides the queue's delayed delivery.
type ScheduleDriver struct {
	Schedules domain.ScheduleRepository
	Queue     domain.Queue

	cronMu  sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// NewScheduleDriver constructs a driver with an idle cron runner.
func NewScheduleDriver(s domain.ScheduleRepository, q domain.Queue) *ScheduleDriver {
	return &ScheduleDriver{
		Schedules: s,
		Queue:     q,
		cron:      cron.New(),
		entries:   make(map[string]cron.EntryID),
	}
}

// taskID builds the dedup identity for a schedule's next batch job.
// Interval runs carry the firing epoch so consecutive batches coexist while
// double-enqueues of the same batch collapse.
func taskID(s domain.Schedule, fireAt time.Time) string {
	switch s.Type {
	case domain.ScheduleImmediate:
		return "immediate-" + s.ID
	case domain.ScheduleOnce:
		return "once-" + s.ID
	default:
		return fmt.Sprintf("interval-%s-%d", s.ID, fireAt.Unix())
	}
}

// firstDelay decides when the first batch of a schedule fires. Persisted
// next_run_at wins so restarts resume mid-interval; otherwise the start
// date, then one full interval for interval schedules that have never
// posted. A schedule with posting history fires right away, so a resume
// after a pause or a cleared next_run_at does not wait an extra interval.
func firstDelay(s domain.Schedule, now time.Time) time.Duration {
	if s.NextRunAt != nil && s.NextRunAt.After(now) {
		return s.NextRunAt.Sub(now)
	}
	if s.StartDate != nil && s.StartDate.After(now) {
		return s.StartDate.Sub(now)
	}
	if s.Type == domain.ScheduleInterval && s.PostedComments == 0 {
		return s.Interval.Duration()
	}
	return 0
}

// SetupScheduleJob registers the schedule with its timing strategy and
// enqueues (or cron-registers) its next batch.
func (d *ScheduleDriver) SetupScheduleJob(ctx domain.Context, s domain.Schedule) error {
	if s.Status != domain.ScheduleActive {
		return fmt.Errorf("op=driver.setup id=%s: %w: schedule not active", s.ID, domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()

	if s.Type == domain.ScheduleRecurring {
		return d.registerCron(ctx, s)
	}

	delay := firstDelay(s, now)
	fireAt := now.Add(delay)
	err := d.Queue.EnqueueProcessSchedule(ctx, domain.ProcessSchedulePayload{ScheduleID: s.ID}, domain.EnqueueOptions{
		Delay:    delay,
		TaskID:   taskID(s, fireAt),
		MaxRetry: -1,
	})
	if err != nil {
		return fmt.Errorf("op=driver.setup id=%s: %w", s.ID, err)
	}
	if err := d.Schedules.SetNextRunAt(ctx, s.ID, &fireAt); err != nil {
		return fmt.Errorf("op=driver.setup id=%s: %w", s.ID, err)
	}
	slog.Info("schedule job set up", slog.String("schedule_id", s.ID), slog.String("type", string(s.Type)), slog.Duration("delay", delay))
	return nil
}

// EnqueueFollowUp queues the next interval batch, anchored to the delay the
// batch handler computed.
func (d *ScheduleDriver) EnqueueFollowUp(ctx domain.Context, s domain.Schedule, delay time.Duration) error {
	fireAt := time.Now().UTC().Add(delay)
	err := d.Queue.EnqueueProcessSchedule(ctx, domain.ProcessSchedulePayload{ScheduleID: s.ID}, domain.EnqueueOptions{
		Delay:    delay,
		TaskID:   taskID(s, fireAt),
		MaxRetry: -1,
	})
	if err != nil {
		return fmt.Errorf("op=driver.followup id=%s: %w", s.ID, err)
	}
	if err := d.Schedules.SetNextRunAt(ctx, s.ID, &fireAt); err != nil {
		return fmt.Errorf("op=driver.followup id=%s: %w", s.ID, err)
	}
	return nil
}

func (d *ScheduleDriver) registerCron(ctx domain.Context, s domain.Schedule) error {
	d.cronMu.Lock()
	defer d.cronMu.Unlock()
	if old, ok := d.entries[s.ID]; ok {
		d.cron.Remove(old)
		delete(d.entries, s.ID)
	}
	scheduleID := s.ID
	id, err := d.cron.AddFunc(s.CronExpression, func() {
		e := d.Queue.EnqueueProcessSchedule(ctx, domain.ProcessSchedulePayload{ScheduleID: scheduleID}, domain.EnqueueOptions{
			TaskID:   fmt.Sprintf("cron-%s-%d", scheduleID, time.Now().Unix()),
			MaxRetry: -1,
		})
		if e != nil {
			slog.Error("cron enqueue failed", slog.String("schedule_id", scheduleID), slog.Any("error", e))
		}
	})
	if err != nil {
		return fmt.Errorf("op=driver.cron id=%s expr=%q: %w", s.ID, s.CronExpression, err)
	}
	d.entries[s.ID] = id
	return nil
}

// DropSchedule cancels pending delivery for a paused or deleted schedule.
func (d *ScheduleDriver) DropSchedule(ctx domain.Context, s domain.Schedule) {
	d.cronMu.Lock()
	if id, ok := d.entries[s.ID]; ok {
		d.cron.Remove(id)
		delete(d.entries, s.ID)
	}
	d.cronMu.Unlock()

	// Best effort: the batch handler re-checks status anyway.
	now := time.Now().UTC()
	_ = d.Queue.RemoveTask(ctx, queueSchedules, taskID(s, now))
	if s.NextRunAt != nil {
		_ = d.Queue.RemoveTask(ctx, queueSchedules, taskID(s, *s.NextRunAt))
	}
	_ = d.Schedules.SetNextRunAt(ctx, s.ID, nil)
}

// Reload walks every active schedule and re-registers it. Called at worker
// boot so the queue reflects the store after a restart; task-ID dedup makes
// the walk idempotent.
func (d *ScheduleDriver) Reload(ctx domain.Context) error {
	active, err := d.Schedules.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("op=driver.reload: %w", err)
	}
	for _, s := range active {
		if err := d.SetupScheduleJob(ctx, s); err != nil {
			slog.Error("schedule reload failed", slog.String("schedule_id", s.ID), slog.Any("error", err))
		}
	}
	slog.Info("schedules reloaded", slog.Int("count", len(active)))
	return nil
}

// Start runs the cron loop; Stop drains it.
func (d *ScheduleDriver) Start() { d.cron.Start() }

// Stop halts cron firing and waits for running jobs.
func (d *ScheduleDriver) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
}

// drawInterval redraws a random interval value in [Min, Max] when enabled.
func drawInterval(iv domain.Interval) int {
	if !iv.IsRandom || iv.Max <= iv.Min {
		return iv.Value
	}
	return iv.Min + rand.Intn(iv.Max-iv.Min+1)
}

// drawLimit redraws a random sleep threshold in [Min, Max] when enabled.
func drawLimit(cl domain.CommentLimit) int {
	if !cl.IsRandom || cl.Max <= cl.Min {
		return cl.Value
	}
	return cl.Min + rand.Intn(cl.Max-cl.Min+1)
}

// lockTTL sizes the per-schedule processing lock off the interval so a
// crashed handler never blocks more than one cycle. Clamped to [10s, 1h].
// A zero interval takes the floor directly instead of the one-minute
// default Duration applies for scheduling.
func lockTTL(iv domain.Interval) time.Duration {
	if iv.Value <= 0 {
		return 10 * time.Second
	}
	ttl := time.Duration(float64(iv.Duration()) * 0.9)
	if ttl < 10*time.Second {
		ttl = 10 * time.Second
	}
	if ttl > time.Hour {
		ttl = time.Hour
	}
	return ttl
}
