package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"

	rediscache "github.com/fairyhunter13/commentflow/internal/adapter/cache/redis"
	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// DefaultErrorThreshold parks a schedule for review after this many
// consecutive handler errors.
const DefaultErrorThreshold = 50

// ProcessService handles one batch of a schedule: sleep and rotation
// bookkeeping, account selection, comment creation and staggered dispatch.
type ProcessService struct {
	Schedules domain.ScheduleRepository
	Comments  domain.CommentRepository
	Cache     domain.Cache
	Queue     domain.Queue
	Driver    *ScheduleDriver
	Selector  *Selector
	TextGen   *TextGenerator

	// DefaultBetweenMS staggers dispatch when the schedule does not set its
	// own spacing.
	DefaultBetweenMS int
	// DispatchCeiling caps how far into the batch the last post job may be
	// scheduled, so huge pools do not smear into the next interval.
	DispatchCeiling time.Duration
	ErrorThreshold  int
}

// NewProcessService constructs a ProcessService.
func NewProcessService(sr domain.ScheduleRepository, cr domain.CommentRepository, cache domain.Cache, q domain.Queue, d *ScheduleDriver, sel *Selector, tg *TextGenerator, betweenMS int, ceiling time.Duration) *ProcessService {
	return &ProcessService{
		Schedules:        sr,
		Comments:         cr,
		Cache:            cache,
		Queue:            q,
		Driver:           d,
		Selector:         sel,
		TextGen:          tg,
		DefaultBetweenMS: betweenMS,
		DispatchCeiling:  ceiling,
		ErrorThreshold:   DefaultErrorThreshold,
	}
}

// HandleProcessSchedule is the schedules-queue entry point.
func (p *ProcessService) HandleProcessSchedule(ctx domain.Context, payload domain.ProcessSchedulePayload) error {
	tracer := otel.Tracer("usecase.process")
	ctx, span := tracer.Start(ctx, "ProcessSchedule")
	defer span.End()

	s, err := p.Schedules.Get(ctx, payload.ScheduleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted since enqueue; nothing to do.
			return nil
		}
		return p.recordFailure(ctx, payload.ScheduleID, err)
	}
	if s.Status != domain.ScheduleActive {
		return nil
	}

	// One handler per schedule at a time. The TTL is sized off the interval
	// so a crashed handler frees itself before the next cycle.
	got, err := p.Cache.AcquireLock(ctx, rediscache.ScheduleProcessingLock(s.ID), lockTTL(s.Interval))
	if err != nil {
		return p.recordFailure(ctx, s.ID, err)
	}
	if !got {
		slog.Debug("batch already in flight", slog.String("schedule_id", s.ID))
		return nil
	}
	defer func() { _ = p.Cache.ReleaseLock(ctx, rediscache.ScheduleProcessingLock(s.ID)) }()

	batchStart := time.Now().UTC()

	if s.Expired(batchStart) {
		if err := p.Schedules.UpdateStatus(ctx, s.ID, domain.ScheduleCompleted, nil); err != nil {
			return p.recordFailure(ctx, s.ID, err)
		}
		p.Driver.DropSchedule(ctx, s)
		slog.Info("schedule completed at end date", slog.String("schedule_id", s.ID))
		return nil
	}

	if s.Sleeping(batchStart) {
		remaining := s.SleepRemaining(batchStart)
		slog.Info("schedule sleeping", slog.String("schedule_id", s.ID), slog.Duration("remaining", remaining))
		return p.Driver.EnqueueFollowUp(ctx, s, remaining)
	}

	// A stored window that is no longer sleeping has just elapsed: clear it
	// and run the wake bookkeeping before dispatching.
	if s.SleepDelayMinutes > 0 && s.SleepDelayStartTime != nil {
		if err := p.endSleep(ctx, &s, batchStart); err != nil {
			return p.recordFailure(ctx, s.ID, err)
		}
	}

	if slept, err := p.maybeStartSleep(ctx, &s, batchStart); err != nil {
		return p.recordFailure(ctx, s.ID, err)
	} else if slept {
		return nil
	}

	created, err := p.dispatchBatch(ctx, s, batchStart)
	if err != nil {
		return p.recordFailure(ctx, s.ID, err)
	}

	if err := p.Schedules.SetLastProcessedAt(ctx, s.ID, batchStart); err != nil {
		return p.recordFailure(ctx, s.ID, err)
	}
	slog.Info("batch dispatched",
		slog.String("schedule_id", s.ID),
		slog.Int("comments", created))

	return p.scheduleNext(ctx, s, batchStart)
}

// maybeStartSleep enters a sleep window when the posted counter crossed a
// limit multiple. last_sleep_trigger_count makes the trigger fire once per
// multiple even when batches race.
func (p *ProcessService) maybeStartSleep(ctx domain.Context, s *domain.Schedule, now time.Time) (bool, error) {
	limit := s.LimitComments.Value
	if limit <= 0 || s.PostedComments == 0 {
		return false, nil
	}
	if s.PostedComments%limit != 0 || s.PostedComments == s.LastSleepTriggerCount {
		return false, nil
	}

	minutes := s.MinDelay
	if s.MaxDelay > s.MinDelay {
		minutes = s.MinDelay + rand.Intn(s.MaxDelay-s.MinDelay+1)
	}
	if minutes <= 0 {
		// No sleep window configured; still advance the guard so the same
		// multiple does not re-trigger.
		return false, p.Schedules.SaveSleepState(ctx, s.ID, 0, nil, s.PostedComments)
	}

	if err := p.Schedules.SaveSleepState(ctx, s.ID, minutes, &now, s.PostedComments); err != nil {
		return false, err
	}
	observability.SleepCyclesTotal.Inc()
	slog.Info("sleep window started",
		slog.String("schedule_id", s.ID),
		slog.Int("minutes", minutes),
		slog.Int("posted", s.PostedComments))

	return true, p.Driver.EnqueueFollowUp(ctx, *s, time.Duration(minutes)*time.Minute)
}

// endSleep runs the wake bookkeeping once the window has elapsed: clear
// the stored window, redraw a random limit and rotate the account pools,
// preferring members the previous rotation did not move.
func (p *ProcessService) endSleep(ctx domain.Context, s *domain.Schedule, now time.Time) error {
	if err := p.Schedules.SaveSleepState(ctx, s.ID, 0, nil, s.LastSleepTriggerCount); err != nil {
		return err
	}
	s.SleepDelayMinutes = 0
	s.SleepDelayStartTime = nil
	slog.Info("sleep window ended", slog.String("schedule_id", s.ID))

	if s.LimitComments.IsRandom {
		v := drawLimit(s.LimitComments)
		if err := p.Schedules.SaveCommentLimitValue(ctx, s.ID, v); err != nil {
			return err
		}
		s.LimitComments.Value = v
	}
	if s.RotationEnabled {
		avoid := append(movedAccounts(s.PrincipalAccounts, s.CurrentPrincipal()),
			movedAccounts(s.SecondaryAccounts, s.CurrentSecondary())...)
		res := rotatePools(s.CurrentPrincipal(), s.CurrentSecondary(), s.CurrentlyActive, avoid)
		if err := p.Schedules.SaveRotationState(ctx, s.ID, s.SelectedAccounts, res.Principal, res.Secondary, res.Active, now); err != nil {
			return err
		}
		s.RotatedPrincipal = res.Principal
		s.RotatedSecondary = res.Secondary
		s.CurrentlyActive = res.Active
		s.LastRotatedAt = &now
		slog.Info("pools rotated",
			slog.String("schedule_id", s.ID),
			slog.Int("swapped", res.Swapped),
			slog.String("active", string(res.Active)))
	}
	return nil
}

// dispatchBatch pairs each eligible account with a target video, creates a
// pending comment per pair and queues its post job at a staggered offset
// anchored to batchStart. Pairs inside their micro-cooldown are skipped.
func (p *ProcessService) dispatchBatch(ctx domain.Context, s domain.Schedule, batchStart time.Time) (int, error) {
	if len(s.TargetVideos) == 0 {
		return 0, fmt.Errorf("op=process.dispatch schedule=%s: %w: no target videos", s.ID, domain.ErrInvalidArgument)
	}
	accounts, err := p.Selector.Pick(ctx, s, 0)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		slog.Warn("no dispatchable accounts", slog.String("schedule_id", s.ID))
		return 0, nil
	}

	between := time.Duration(s.BetweenAccountsMS) * time.Millisecond
	if between <= 0 {
		between = time.Duration(p.DefaultBetweenMS) * time.Millisecond
	}

	created := 0
	lastAccountID := s.LastUsedAccountID
	remaining := accounts
	for len(remaining) > 0 {
		offset := time.Duration(created) * between
		if p.DispatchCeiling > 0 && offset > p.DispatchCeiling {
			// Past the ceiling the batch stops creating rows; the pool's
			// tail waits for the next interval.
			slog.Warn("dispatch ceiling reached",
				slog.String("schedule_id", s.ID),
				slog.Int("undispatched", len(remaining)))
			break
		}

		video := s.TargetVideos[rand.Intn(len(s.TargetVideos))]
		prev, _, _ := p.Cache.Get(ctx, rediscache.LastAccountForVideo(s.ID, video.VideoID))

		a, ok := p.Selector.Choose(remaining, lastAccountID, prev)
		if !ok {
			break
		}
		remaining = excludeAccount(remaining, a.ID)

		if _, held, _ := p.Cache.Get(ctx, rediscache.AccountVideoCooldown(a.ID, video.VideoID)); held {
			slog.Debug("account-video pair cooling down",
				slog.String("schedule_id", s.ID),
				slog.String("account_id", a.ID),
				slog.String("video_id", video.VideoID))
			continue
		}

		text, err := p.TextGen.Generate(ctx, s, video)
		if err != nil {
			return created, err
		}

		scheduledFor := batchStart.Add(offset)
		commentID, err := p.Comments.Create(ctx, domain.Comment{
			UserID:                s.UserID,
			ScheduleID:            s.ID,
			AccountID:             a.ID,
			VideoID:               video.VideoID,
			Content:               text,
			Status:                domain.CommentPending,
			ScheduledFor:          &scheduledFor,
			LastPreviousAccountID: prev,
		})
		if err != nil {
			return created, err
		}

		// Anchor to batchStart so creation time inside the loop does not
		// stretch the stagger.
		delay := time.Until(scheduledFor)
		if delay < 0 {
			delay = 0
		}
		err = p.Queue.EnqueuePostComment(ctx, domain.PostCommentPayload{CommentID: commentID, ScheduleID: s.ID}, domain.EnqueueOptions{
			Delay:    delay,
			TaskID:   "post-" + commentID,
			MaxRetry: -1,
		})
		if err != nil {
			return created, err
		}

		_ = p.Cache.Set(ctx, rediscache.LastAccountForVideo(s.ID, video.VideoID), a.ID, 24*time.Hour)
		// Micro-cooldown sized to the stagger, so a racing dispatcher does
		// not double up on the same account-video pair.
		_ = p.Cache.Set(ctx, rediscache.AccountVideoCooldown(a.ID, video.VideoID), "1", between)
		p.Selector.Record(a.ID)
		lastAccountID = a.ID
		created++
	}

	if created > 0 {
		if err := p.Schedules.IncrementCounters(ctx, s.ID, created, 0, 0); err != nil {
			return created, err
		}
		if err := p.Schedules.SetLastUsedAccount(ctx, s.ID, lastAccountID); err != nil {
			return created, err
		}
	}
	return created, nil
}

// scheduleNext queues the follow-up batch for interval schedules and
// finishes one-shot ones. Recurring schedules fire from the cron registry.
func (p *ProcessService) scheduleNext(ctx domain.Context, s domain.Schedule, batchStart time.Time) error {
	switch s.Type {
	case domain.ScheduleInterval:
		iv := s.Interval
		if iv.IsRandom {
			iv.Value = drawInterval(iv)
			if err := p.Schedules.SaveIntervalValue(ctx, s.ID, iv.Value); err != nil {
				return p.recordFailure(ctx, s.ID, err)
			}
		}
		// The next batch fires one interval after the batch started, never
		// sooner than a second from now.
		delay := iv.Duration() - time.Since(batchStart)
		if delay < time.Second {
			delay = time.Second
		}
		if err := p.Driver.EnqueueFollowUp(ctx, s, delay); err != nil {
			return p.recordFailure(ctx, s.ID, err)
		}
	case domain.ScheduleImmediate, domain.ScheduleOnce:
		if err := p.Schedules.UpdateStatus(ctx, s.ID, domain.ScheduleCompleted, nil); err != nil {
			return p.recordFailure(ctx, s.ID, err)
		}
	}
	return nil
}

// recordFailure bumps the schedule's error counter; past the threshold the
// schedule is parked for review and the task is not retried.
func (p *ProcessService) recordFailure(ctx domain.Context, scheduleID string, cause error) error {
	threshold := p.ErrorThreshold
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	n, ierr := p.Schedules.IncrementErrorCount(ctx, scheduleID, cause.Error())
	if ierr != nil {
		slog.Error("error count update failed", slog.String("schedule_id", scheduleID), slog.Any("error", ierr))
		return cause
	}
	if n >= threshold {
		msg := fmt.Sprintf("parked after %d consecutive errors: %v", n, cause)
		if uerr := p.Schedules.UpdateStatus(ctx, scheduleID, domain.ScheduleRequiresReview, &msg); uerr != nil {
			slog.Error("park failed", slog.String("schedule_id", scheduleID), slog.Any("error", uerr))
		}
		slog.Error("schedule parked for review", slog.String("schedule_id", scheduleID), slog.Int("errors", n))
		return nil
	}
	return fmt.Errorf("op=process.schedule id=%s: %w", scheduleID, cause)
}
