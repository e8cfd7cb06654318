package domain

import "time"

// ScheduleStatus enumerates plan lifecycle states.
type ScheduleStatus string

const (
	ScheduleActive         ScheduleStatus = "active"
	SchedulePaused         ScheduleStatus = "paused"
	ScheduleCompleted      ScheduleStatus = "completed"
	ScheduleError          ScheduleStatus = "error"
	ScheduleRequiresReview ScheduleStatus = "requires_review"
)

// ScheduleType enumerates timing strategies.
type ScheduleType string

const (
	ScheduleImmediate ScheduleType = "immediate"
	ScheduleOnce      ScheduleType = "once"
	ScheduleRecurring ScheduleType = "recurring"
	ScheduleInterval  ScheduleType = "interval"
)

// AccountSelection enumerates how eligible accounts are chosen.
type AccountSelection string

const (
	SelectionSpecific   AccountSelection = "specific"
	SelectionRandom     AccountSelection = "random"
	SelectionRoundRobin AccountSelection = "round_robin"
)

// ActivePool names which account pool is currently dispatching when
// rotation is enabled.
type ActivePool string

const (
	PoolPrincipal ActivePool = "principal"
	PoolSecondary ActivePool = "secondary"
)

// IntervalUnit enumerates interval units.
type IntervalUnit string

const (
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
)

// Interval is the normalised interval configuration.
// When IsRandom, each batch draws Value from [Min, Max].
type Interval struct {
	Value    int
	Unit     IntervalUnit
	IsRandom bool
	Min      int
	Max      int
}

// Duration converts the current Value into a wall-clock duration.
func (iv Interval) Duration() time.Duration {
	v := iv.Value
	if v <= 0 {
		v = 1
	}
	switch iv.Unit {
	case UnitHours:
		return time.Duration(v) * time.Hour
	case UnitDays:
		return time.Duration(v) * 24 * time.Hour
	default:
		return time.Duration(v) * time.Minute
	}
}

// CommentLimit drives the sleep cycle: every Value successful posts the
// schedule sleeps. When IsRandom, Value is redrawn from [Min, Max] on wake.
type CommentLimit struct {
	Value    int
	IsRandom bool
	Min      int
	Max      int
}

// TargetVideo identifies one video a schedule posts against.
type TargetVideo struct {
	VideoID string `json:"videoId"`
	Title   string `json:"title,omitempty"`
}

// Schedule is a user's declarative posting plan.
// Invariants: rotation requires a non-empty principal pool and
// |secondary| >= ceil(0.3*|principal|); LastSleepTriggerCount is monotonic;
// SleepDelayStartTime is set iff SleepDelayMinutes > 0.
type Schedule struct {
	ID               string
	UserID           string
	Name             string
	Status           ScheduleStatus
	Type             ScheduleType
	StartDate        *time.Time
	EndDate          *time.Time
	CronExpression   string
	Interval         Interval
	CommentTemplates []string
	TargetVideos     []TargetVideo
	TargetChannels   []string

	AccountSelection  AccountSelection
	SelectedAccounts  []string
	PrincipalAccounts []string
	SecondaryAccounts []string
	RotationEnabled   bool
	CurrentlyActive   ActivePool
	RotatedPrincipal  []string
	RotatedSecondary  []string
	LastRotatedAt     *time.Time

	UseAI             bool
	IncludeEmojis     bool
	MinDelay          int // minutes, sleep window lower bound
	MaxDelay          int // minutes, sleep window upper bound
	BetweenAccountsMS int // dispatch stagger inside one batch
	LimitComments     CommentLimit

	SleepDelayMinutes     int
	SleepDelayStartTime   *time.Time
	LastSleepTriggerCount int
	LastUsedAccountID     string

	NextRunAt       *time.Time
	LastProcessedAt *time.Time

	TotalComments  int
	PostedComments int
	FailedComments int
	ErrorCount     int
	ErrorMessage   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sleeping reports whether the schedule is inside an active sleep window.
func (s Schedule) Sleeping(now time.Time) bool {
	if s.SleepDelayMinutes <= 0 || s.SleepDelayStartTime == nil {
		return false
	}
	end := s.SleepDelayStartTime.Add(time.Duration(s.SleepDelayMinutes) * time.Minute)
	return now.Before(end)
}

// SleepRemaining returns how long until the current sleep window ends.
func (s Schedule) SleepRemaining(now time.Time) time.Duration {
	if s.SleepDelayMinutes <= 0 || s.SleepDelayStartTime == nil {
		return 0
	}
	end := s.SleepDelayStartTime.Add(time.Duration(s.SleepDelayMinutes) * time.Minute)
	if end.Before(now) {
		return 0
	}
	return end.Sub(now)
}

// Expired reports whether the schedule's end date has passed.
func (s Schedule) Expired(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}

// CurrentPrincipal returns the working principal pool: the rotated copy
// once a rotation has happened, the configured pool before that.
func (s Schedule) CurrentPrincipal() []string {
	if len(s.RotatedPrincipal) > 0 {
		return s.RotatedPrincipal
	}
	return s.PrincipalAccounts
}

// CurrentSecondary mirrors CurrentPrincipal for the secondary pool.
func (s Schedule) CurrentSecondary() []string {
	if len(s.RotatedSecondary) > 0 {
		return s.RotatedSecondary
	}
	return s.SecondaryAccounts
}

// EligibleAccounts returns the account IDs allowed to dispatch right now,
// honouring the rotation pools when enabled.
func (s Schedule) EligibleAccounts() []string {
	if !s.RotationEnabled {
		return s.SelectedAccounts
	}
	if s.CurrentlyActive == PoolSecondary {
		return s.CurrentSecondary()
	}
	return s.CurrentPrincipal()
}

// ViewSchedule is the simpler plan driving the external viewer service.
type ViewSchedule struct {
	ID           string
	UserID       string
	Name         string
	Status       ScheduleStatus
	TargetVideos []TargetVideo
	Interval     Interval
	Probability  int // 0..100, rolled at handler time
	MinWatchTime int // seconds
	MaxWatchTime int // seconds
	AutoLike     bool
	NextRunAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
