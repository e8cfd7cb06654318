package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Maintenance runs the background loops: the sweep that re-registers
// dropped jobs, the counter reconciler and the daily reset at the quota
// timezone's midnight.
type Maintenance struct {
	Schedules domain.ScheduleRepository
	Views     domain.ViewScheduleRepository
	Accounts  domain.AccountRepository
	Profiles  domain.ProfileRepository
	Driver    *ScheduleDriver
	ViewSvc   *ViewService

	SweepInterval     time.Duration
	ReconcileInterval time.Duration
	ResetLocation     *time.Location
}

// NewMaintenance constructs the maintenance runner. tz names the timezone
// whose midnight triggers the daily reset; an unknown name falls back to UTC.
func NewMaintenance(sr domain.ScheduleRepository, vr domain.ViewScheduleRepository, ar domain.AccountRepository, pr domain.ProfileRepository, d *ScheduleDriver, vs *ViewService, sweep, reconcile time.Duration, tz string) *Maintenance {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Warn("unknown quota reset timezone, using UTC", slog.String("tz", tz))
		loc = time.UTC
	}
	return &Maintenance{
		Schedules:         sr,
		Views:             vr,
		Accounts:          ar,
		Profiles:          pr,
		Driver:            d,
		ViewSvc:           vs,
		SweepInterval:     sweep,
		ReconcileInterval: reconcile,
		ResetLocation:     loc,
	}
}

// Run blocks until ctx is cancelled, driving the three loops.
func (m *Maintenance) Run(ctx domain.Context) {
	sweep := time.NewTicker(m.SweepInterval)
	reconcile := time.NewTicker(m.ReconcileInterval)
	defer sweep.Stop()
	defer reconcile.Stop()

	resetTimer := time.NewTimer(m.untilNextReset(time.Now()))
	defer resetTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			m.Sweep(ctx)
		case <-reconcile.C:
			m.Reconcile(ctx)
		case <-resetTimer.C:
			m.DailyReset(ctx)
			resetTimer.Reset(m.untilNextReset(time.Now()))
		}
	}
}

// untilNextReset computes how long until the next midnight in the reset
// timezone.
func (m *Maintenance) untilNextReset(now time.Time) time.Duration {
	local := now.In(m.ResetLocation)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, m.ResetLocation)
	return next.Sub(local)
}

// Sweep re-registers every active schedule and view plan. Task-ID dedup
// makes this idempotent, so a job lost to a Redis flush or a crashed
// enqueue comes back within one sweep interval.
func (m *Maintenance) Sweep(ctx domain.Context) {
	if err := m.Driver.Reload(ctx); err != nil {
		slog.Error("sweep: schedule reload failed", slog.Any("error", err))
	}
	if err := m.ViewSvc.Reload(ctx); err != nil {
		slog.Error("sweep: view reload failed", slog.Any("error", err))
	}
}

// Reconcile rewrites drifted schedule counters from the comment rows.
func (m *Maintenance) Reconcile(ctx domain.Context) {
	active, err := m.Schedules.ListActive(ctx)
	if err != nil {
		slog.Error("reconcile: list failed", slog.Any("error", err))
		return
	}
	fixed := 0
	for _, s := range active {
		changed, err := m.Schedules.ReconcileCounters(ctx, s.ID)
		if err != nil {
			slog.Error("reconcile failed", slog.String("schedule_id", s.ID), slog.Any("error", err))
			continue
		}
		if changed {
			fixed++
			slog.Info("counters reconciled", slog.String("schedule_id", s.ID))
		}
	}
	if fixed > 0 {
		slog.Info("reconcile pass done", slog.Int("fixed", fixed))
	}
}

// DailyReset clears quota usage, reactivates parked accounts and errored
// schedules, then re-registers everything so revived schedules fire again.
func (m *Maintenance) DailyReset(ctx domain.Context) {
	profiles, err := m.Profiles.ResetAll(ctx)
	if err != nil {
		slog.Error("daily reset: profiles failed", slog.Any("error", err))
	}
	accounts, err := m.Accounts.ReactivateAll(ctx)
	if err != nil {
		slog.Error("daily reset: accounts failed", slog.Any("error", err))
	}
	schedules, err := m.Schedules.ReactivateErrored(ctx)
	if err != nil {
		slog.Error("daily reset: schedules failed", slog.Any("error", err))
	}
	slog.Info("daily reset done",
		slog.Int64("profiles", profiles),
		slog.Int64("accounts", accounts),
		slog.Int64("schedules", schedules))
	m.Sweep(ctx)
}

// String describes the reset boundary for readiness reporting.
func (m *Maintenance) String() string {
	return fmt.Sprintf("daily reset at midnight %s", m.ResetLocation)
}
