package usecase

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	rediscache "github.com/fairyhunter13/commentflow/internal/adapter/cache/redis"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// ScheduleService is the management surface for schedules: CRUD, lifecycle
// transitions and failed-comment re-dispatch.
type ScheduleService struct {
	Schedules domain.ScheduleRepository
	Comments  domain.CommentRepository
	Cache     domain.Cache
	Queue     domain.Queue
	Driver    *ScheduleDriver
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(sr domain.ScheduleRepository, cr domain.CommentRepository, cache domain.Cache, q domain.Queue, d *ScheduleDriver) *ScheduleService {
	return &ScheduleService{Schedules: sr, Comments: cr, Cache: cache, Queue: q, Driver: d}
}

// validateSchedule checks the semantic invariants the wire-level validator
// cannot express.
func validateSchedule(s domain.Schedule) error {
	if len(s.TargetVideos) == 0 {
		return fmt.Errorf("%w: at least one target video required", domain.ErrInvalidArgument)
	}
	if !s.UseAI && len(s.CommentTemplates) == 0 {
		return fmt.Errorf("%w: comment templates required unless AI generation is enabled", domain.ErrInvalidArgument)
	}
	switch s.Type {
	case domain.ScheduleInterval:
		if s.Interval.IsRandom {
			if s.Interval.Min <= 0 || s.Interval.Max < s.Interval.Min {
				return fmt.Errorf("%w: random interval needs 0 < min <= max", domain.ErrInvalidArgument)
			}
		} else if s.Interval.Value <= 0 {
			return fmt.Errorf("%w: interval value must be positive", domain.ErrInvalidArgument)
		}
	case domain.ScheduleRecurring:
		if s.CronExpression == "" {
			return fmt.Errorf("%w: recurring schedule needs a cron expression", domain.ErrInvalidArgument)
		}
	case domain.ScheduleImmediate, domain.ScheduleOnce:
	default:
		return fmt.Errorf("%w: unknown schedule type %q", domain.ErrInvalidArgument, s.Type)
	}
	if s.RotationEnabled {
		if len(s.PrincipalAccounts) == 0 {
			return fmt.Errorf("%w: rotation needs a principal pool", domain.ErrInvalidArgument)
		}
		need := int(math.Ceil(0.3 * float64(len(s.PrincipalAccounts))))
		if len(s.SecondaryAccounts) < need {
			return fmt.Errorf("%w: rotation needs at least %d secondary accounts", domain.ErrInvalidArgument, need)
		}
	} else if len(s.SelectedAccounts) == 0 {
		return fmt.Errorf("%w: at least one account required", domain.ErrInvalidArgument)
	}
	if s.MaxDelay < s.MinDelay {
		return fmt.Errorf("%w: max delay below min delay", domain.ErrInvalidArgument)
	}
	return nil
}

// Create validates, persists and activates a schedule.
func (svc *ScheduleService) Create(ctx domain.Context, s domain.Schedule) (domain.Schedule, error) {
	if err := validateSchedule(s); err != nil {
		return domain.Schedule{}, err
	}
	if s.Status == "" {
		s.Status = domain.ScheduleActive
	}
	if s.Interval.IsRandom && s.Interval.Value == 0 {
		s.Interval.Value = drawInterval(s.Interval)
	}
	if s.LimitComments.IsRandom && s.LimitComments.Value == 0 {
		s.LimitComments.Value = drawLimit(s.LimitComments)
	}
	if s.RotationEnabled && s.CurrentlyActive == "" {
		s.CurrentlyActive = domain.PoolPrincipal
	}

	id, err := svc.Schedules.Create(ctx, s)
	if err != nil {
		return domain.Schedule{}, err
	}
	created, err := svc.Schedules.Get(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if created.Status == domain.ScheduleActive {
		if err := svc.Driver.SetupScheduleJob(ctx, created); err != nil {
			return domain.Schedule{}, err
		}
	}
	svc.invalidate(ctx, created)
	return created, nil
}

// Get returns one schedule.
func (svc *ScheduleService) Get(ctx domain.Context, id string) (domain.Schedule, error) {
	return svc.Schedules.Get(ctx, id)
}

// List pages a user's schedules.
func (svc *ScheduleService) List(ctx domain.Context, userID string, offset, limit int) ([]domain.Schedule, error) {
	return svc.Schedules.ListByUser(ctx, userID, offset, limit)
}

// Update rewrites a schedule's definition and re-registers its job.
func (svc *ScheduleService) Update(ctx domain.Context, s domain.Schedule) (domain.Schedule, error) {
	current, err := svc.Schedules.Get(ctx, s.ID)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := validateSchedule(s); err != nil {
		return domain.Schedule{}, err
	}
	s.UserID = current.UserID
	s.Status = current.Status
	if err := svc.Schedules.Update(ctx, s); err != nil {
		return domain.Schedule{}, err
	}
	updated, err := svc.Schedules.Get(ctx, s.ID)
	if err != nil {
		return domain.Schedule{}, err
	}
	// Timing may have changed; drop and re-register.
	svc.Driver.DropSchedule(ctx, current)
	if updated.Status == domain.ScheduleActive {
		if err := svc.Driver.SetupScheduleJob(ctx, updated); err != nil {
			return domain.Schedule{}, err
		}
	}
	svc.invalidate(ctx, updated)
	return updated, nil
}

// Delete removes a schedule and cancels its pending job.
func (svc *ScheduleService) Delete(ctx domain.Context, id string) error {
	s, err := svc.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	svc.Driver.DropSchedule(ctx, s)
	if err := svc.Schedules.Delete(ctx, id); err != nil {
		return err
	}
	svc.invalidate(ctx, s)
	return nil
}

// Pause stops firing without losing state.
func (svc *ScheduleService) Pause(ctx domain.Context, id string) error {
	return svc.transition(ctx, id, domain.SchedulePaused, domain.ScheduleActive)
}

// Resume re-registers a paused or parked schedule.
func (svc *ScheduleService) Resume(ctx domain.Context, id string) error {
	s, err := svc.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Status != domain.SchedulePaused && s.Status != domain.ScheduleRequiresReview && s.Status != domain.ScheduleError {
		return fmt.Errorf("%w: cannot resume a %s schedule", domain.ErrConflict, s.Status)
	}
	if err := svc.Schedules.UpdateStatus(ctx, id, domain.ScheduleActive, nil); err != nil {
		return err
	}
	s.Status = domain.ScheduleActive
	s.ErrorCount = 0
	if err := svc.Driver.SetupScheduleJob(ctx, s); err != nil {
		return err
	}
	svc.invalidate(ctx, s)
	return nil
}

// Complete ends a schedule early.
func (svc *ScheduleService) Complete(ctx domain.Context, id string) error {
	s, err := svc.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	svc.Driver.DropSchedule(ctx, s)
	if err := svc.Schedules.UpdateStatus(ctx, id, domain.ScheduleCompleted, nil); err != nil {
		return err
	}
	svc.invalidate(ctx, s)
	return nil
}

func (svc *ScheduleService) transition(ctx domain.Context, id string, to, from domain.ScheduleStatus) error {
	s, err := svc.Schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Status != from {
		return fmt.Errorf("%w: schedule is %s", domain.ErrConflict, s.Status)
	}
	if to == domain.SchedulePaused {
		svc.Driver.DropSchedule(ctx, s)
	}
	if err := svc.Schedules.UpdateStatus(ctx, id, to, nil); err != nil {
		return err
	}
	svc.invalidate(ctx, s)
	return nil
}

// RetryFailed flips a schedule's failed comments back to pending and
// re-queues their post jobs immediately. Returns how many were re-queued.
func (svc *ScheduleService) RetryFailed(ctx domain.Context, id string) (int, error) {
	s, err := svc.Schedules.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	comments, err := svc.Comments.ResetFailed(ctx, id)
	if err != nil {
		return 0, err
	}
	for i, c := range comments {
		err := svc.Queue.EnqueuePostComment(ctx, domain.PostCommentPayload{CommentID: c.ID, ScheduleID: id}, domain.EnqueueOptions{
			Delay:    time.Duration(i) * time.Second,
			TaskID:   fmt.Sprintf("retry-%s-%d", c.ID, c.RetryCount),
			MaxRetry: -1,
		})
		if err != nil {
			return i, err
		}
	}
	if len(comments) > 0 {
		if _, err := svc.Schedules.ReconcileCounters(ctx, id); err != nil {
			slog.Warn("reconcile after retry failed", slog.String("schedule_id", id), slog.Any("error", err))
		}
	}
	svc.invalidate(ctx, s)
	return len(comments), nil
}

func (svc *ScheduleService) invalidate(ctx domain.Context, s domain.Schedule) {
	_ = svc.Cache.Delete(ctx, rediscache.ScheduleDetail(s.ID))
	_ = svc.Cache.DeletePattern(ctx, rediscache.UserSchedulesPattern(s.UserID))
}

// ProxyProber measures a proxy's liveness; the transport builder provides it.
type ProxyProber interface {
	Probe(ctx domain.Context, p domain.Proxy) (int64, error)
}

// ProxyService is the management surface for proxies.
type ProxyService struct {
	Proxies domain.ProxyRepository
	Prober  ProxyProber
}

// NewProxyService constructs a ProxyService.
func NewProxyService(pr domain.ProxyRepository, prober ProxyProber) *ProxyService {
	return &ProxyService{Proxies: pr, Prober: prober}
}

// Check probes the proxy and persists the verdict. Returns the updated row.
func (svc *ProxyService) Check(ctx domain.Context, id string) (domain.Proxy, error) {
	p, err := svc.Proxies.Get(ctx, id)
	if err != nil {
		return domain.Proxy{}, err
	}
	now := time.Now().UTC()
	ms, probeErr := svc.Prober.Probe(ctx, p)
	status := domain.ProxyActive
	if probeErr != nil {
		status = domain.ProxyInactive
		ms = p.ConnectionSpeed
		slog.Info("proxy check failed", slog.String("proxy_id", id), slog.Any("error", probeErr))
	}
	if err := svc.Proxies.SetStatus(ctx, id, status, now, ms); err != nil {
		return domain.Proxy{}, err
	}
	return svc.Proxies.Get(ctx, id)
}

// AccountService is the management surface for accounts.
type AccountService struct {
	Accounts  domain.AccountRepository
	Profiles  domain.ProfileRepository
	Proxies   domain.ProxyRepository
	Tokens    domain.TokenBroker
	Transport domain.TransportBuilder
	Platform  domain.PlatformAPI
}

// NewAccountService constructs an AccountService.
func NewAccountService(ar domain.AccountRepository, pr domain.ProfileRepository, xr domain.ProxyRepository, tb domain.TokenBroker, tr domain.TransportBuilder, api domain.PlatformAPI) *AccountService {
	return &AccountService{Accounts: ar, Profiles: pr, Proxies: xr, Tokens: tb, Transport: tr, Platform: api}
}

// Verify refreshes the account's token, resolves its channel upstream and
// persists the identity. Returns the channel info.
func (svc *AccountService) Verify(ctx domain.Context, id string) (domain.ChannelInfo, error) {
	a, err := svc.Accounts.Get(ctx, id)
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	profile, err := svc.Profiles.Get(ctx, a.ProfileID)
	if err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("op=account.verify id=%s: %w", id, err)
	}

	material, err := svc.Tokens.Refresh(ctx, a, profile)
	if err != nil {
		_ = svc.Accounts.SetStatus(ctx, id, domain.AccountInactive, "verification refresh failed")
		return domain.ChannelInfo{}, err
	}
	if err := svc.Accounts.SaveTokens(ctx, id, material.AccessToken, material.Expiry); err != nil {
		return domain.ChannelInfo{}, err
	}

	var proxy *domain.Proxy
	if a.ProxyID != nil {
		if px, perr := svc.Proxies.Get(ctx, *a.ProxyID); perr == nil {
			proxy = &px
		}
	}
	transport, err := svc.Transport.Build(ctx, proxy)
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	info, err := svc.Platform.VerifyAccount(ctx, transport.Client, material.AccessToken)
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	if err := svc.Accounts.SetChannel(ctx, id, info.ChannelID, info.Title); err != nil {
		return domain.ChannelInfo{}, err
	}
	if err := svc.Accounts.SetStatus(ctx, id, domain.AccountActive, "verified"); err != nil {
		return domain.ChannelInfo{}, err
	}
	return info, nil
}

// ViewPlanService is the management surface for view plans.
type ViewPlanService struct {
	Views   domain.ViewScheduleRepository
	ViewSvc *ViewService
}

// NewViewPlanService constructs a ViewPlanService.
func NewViewPlanService(vr domain.ViewScheduleRepository, vs *ViewService) *ViewPlanService {
	return &ViewPlanService{Views: vr, ViewSvc: vs}
}

// Create validates and activates a view plan.
func (svc *ViewPlanService) Create(ctx domain.Context, v domain.ViewSchedule) (domain.ViewSchedule, error) {
	if len(v.TargetVideos) == 0 {
		return domain.ViewSchedule{}, fmt.Errorf("%w: at least one target video required", domain.ErrInvalidArgument)
	}
	if v.Probability < 0 || v.Probability > 100 {
		return domain.ViewSchedule{}, fmt.Errorf("%w: probability must be 0..100", domain.ErrInvalidArgument)
	}
	if v.MaxWatchTime < v.MinWatchTime {
		return domain.ViewSchedule{}, fmt.Errorf("%w: max watch time below min", domain.ErrInvalidArgument)
	}
	id, err := svc.Views.Create(ctx, v)
	if err != nil {
		return domain.ViewSchedule{}, err
	}
	created, err := svc.Views.Get(ctx, id)
	if err != nil {
		return domain.ViewSchedule{}, err
	}
	if created.Status == domain.ScheduleActive {
		if err := svc.ViewSvc.SetupViewJob(ctx, created); err != nil {
			return domain.ViewSchedule{}, err
		}
	}
	return created, nil
}

// Pause stops a view plan's firing.
func (svc *ViewPlanService) Pause(ctx domain.Context, id string) error {
	v, err := svc.Views.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != domain.ScheduleActive {
		return fmt.Errorf("%w: view plan is %s", domain.ErrConflict, v.Status)
	}
	svc.ViewSvc.DropViewJob(ctx, v)
	return svc.Views.UpdateStatus(ctx, id, domain.SchedulePaused)
}

// Resume re-registers a paused view plan.
func (svc *ViewPlanService) Resume(ctx domain.Context, id string) error {
	v, err := svc.Views.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != domain.SchedulePaused {
		return fmt.Errorf("%w: view plan is %s", domain.ErrConflict, v.Status)
	}
	if err := svc.Views.UpdateStatus(ctx, id, domain.ScheduleActive); err != nil {
		return err
	}
	v.Status = domain.ScheduleActive
	return svc.ViewSvc.SetupViewJob(ctx, v)
}

// Delete removes a view plan and cancels its pending session.
func (svc *ViewPlanService) Delete(ctx domain.Context, id string) error {
	v, err := svc.Views.Get(ctx, id)
	if err != nil {
		return err
	}
	svc.ViewSvc.DropViewJob(ctx, v)
	return svc.Views.Delete(ctx, id)
}
