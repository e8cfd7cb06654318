package domain

import (
	"net/http"
	"time"
)

// Repositories (ports)

// ScheduleRepository persists schedules and their counters.
type ScheduleRepository interface {
	Create(ctx Context, s Schedule) (string, error)
	Get(ctx Context, id string) (Schedule, error)
	ListByUser(ctx Context, userID string, offset, limit int) ([]Schedule, error)
	ListActive(ctx Context) ([]Schedule, error)
	Update(ctx Context, s Schedule) error
	Delete(ctx Context, id string) error

	UpdateStatus(ctx Context, id string, status ScheduleStatus, errMsg *string) error
	SetNextRunAt(ctx Context, id string, at *time.Time) error
	SetLastProcessedAt(ctx Context, id string, at time.Time) error
	SetLastUsedAccount(ctx Context, id, accountID string) error
	SaveIntervalValue(ctx Context, id string, value int) error
	SaveCommentLimitValue(ctx Context, id string, value int) error
	// AppendCommentTemplate adds generated text to the template pool unless
	// it is already present.
	AppendCommentTemplate(ctx Context, id, text string) error
	SaveSleepState(ctx Context, id string, minutes int, startedAt *time.Time, triggerCount int) error
	SaveRotationState(ctx Context, id string, selected, rotatedPrincipal, rotatedSecondary []string, active ActivePool, at time.Time) error
	IncrementCounters(ctx Context, id string, total, posted, failed int) error
	IncrementErrorCount(ctx Context, id string, errMsg string) (int, error)
	// ReconcileCounters rewrites the progress counters from the comment rows
	// and reports whether anything changed.
	ReconcileCounters(ctx Context, id string) (changed bool, err error)
	// ReactivateErrored flips error/requires_review schedules back to active.
	ReactivateErrored(ctx Context) (int64, error)
}

// AccountRepository persists posting identities.
type AccountRepository interface {
	Create(ctx Context, a Account) (string, error)
	Get(ctx Context, id string) (Account, error)
	ListByIDs(ctx Context, ids []string) ([]Account, error)
	ListActiveByUser(ctx Context, userID string) ([]Account, error)
	Update(ctx Context, a Account) error
	Delete(ctx Context, id string) error

	SetStatus(ctx Context, id string, status AccountStatus, lastMessage string) error
	SaveTokens(ctx Context, id, accessToken string, expiry time.Time) error
	SetChannel(ctx Context, id, channelID, channelTitle string) error
	AssignProxy(ctx Context, id string, proxyID *string) error
	RecordUsage(ctx Context, id string, at time.Time) error
	// IncrementProxyError bumps the counter and returns the new value.
	IncrementProxyError(ctx Context, id string) (int, error)
	ResetProxyError(ctx Context, id string) error
	IncrementDuplication(ctx Context, id string) error
	// IncrementDailyComment resets the per-day counters first when the stored
	// usage date is older than day.
	IncrementDailyComment(ctx Context, id string, day time.Time) error
	IncrementDailyLike(ctx Context, id string, day time.Time) error
	// ReactivateAll returns inactive accounts to active with a clean proxy
	// error count (daily reset).
	ReactivateAll(ctx Context) (int64, error)
}

// ProxyRepository persists egress endpoints.
type ProxyRepository interface {
	Create(ctx Context, p Proxy) (string, error)
	Get(ctx Context, id string) (Proxy, error)
	ListByUser(ctx Context, userID string) ([]Proxy, error)
	ListActiveByUser(ctx Context, userID string) ([]Proxy, error)
	Update(ctx Context, p Proxy) error
	Delete(ctx Context, id string) error
	SetStatus(ctx Context, id string, status ProxyStatus, checkedAt time.Time, speedMS int64) error
}

// ProfileRepository persists upstream API credentials and quota state.
type ProfileRepository interface {
	Create(ctx Context, p APIProfile) (string, error)
	Get(ctx Context, id string) (APIProfile, error)
	ListByUser(ctx Context, userID string) ([]APIProfile, error)
	Update(ctx Context, p APIProfile) error
	Delete(ctx Context, id string) error
	// Activate makes one profile active and deactivates all others atomically.
	Activate(ctx Context, id string) error
	AddUsedQuota(ctx Context, id string, units int64) error
	MarkExceeded(ctx Context, id string, at time.Time) error
	// ResetAll clears quota usage and exceeded state (daily reset).
	ResetAll(ctx Context) (int64, error)
}

// CommentRepository persists attempt records.
type CommentRepository interface {
	Create(ctx Context, c Comment) (string, error)
	Get(ctx Context, id string) (Comment, error)
	ListBySchedule(ctx Context, scheduleID string, offset, limit int) ([]Comment, error)
	MarkPosted(ctx Context, id, externalID string, at time.Time) error
	MarkFailed(ctx Context, id, errMsg string) error
	IncrementRetry(ctx Context, id string) error
	CountByStatus(ctx Context, scheduleID string) (map[CommentStatus]int, error)
	// ResetFailed flips a schedule's failed comments back to pending and
	// returns them for re-dispatch.
	ResetFailed(ctx Context, scheduleID string) ([]Comment, error)
}

// ViewScheduleRepository persists view plans.
type ViewScheduleRepository interface {
	Create(ctx Context, v ViewSchedule) (string, error)
	Get(ctx Context, id string) (ViewSchedule, error)
	ListByUser(ctx Context, userID string) ([]ViewSchedule, error)
	ListActive(ctx Context) ([]ViewSchedule, error)
	Update(ctx Context, v ViewSchedule) error
	Delete(ctx Context, id string) error
	SetNextRunAt(ctx Context, id string, at *time.Time) error
	UpdateStatus(ctx Context, id string, status ScheduleStatus) error
}

// Cache covers short-TTL reads and short-lived coordination primitives.
type Cache interface {
	Get(ctx Context, key string) (string, bool, error)
	Set(ctx Context, key, value string, ttl time.Duration) error
	Delete(ctx Context, keys ...string) error
	DeletePattern(ctx Context, pattern string) error
	// AcquireLock is SET-NX with a TTL; every lock has one.
	AcquireLock(ctx Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx Context, key string) error
}

// Task payloads

// ProcessSchedulePayload drives one batch of a schedule.
type ProcessSchedulePayload struct {
	ScheduleID string `json:"schedule_id"`
}

// PostCommentPayload drives one posting attempt.
type PostCommentPayload struct {
	CommentID  string `json:"comment_id"`
	ScheduleID string `json:"schedule_id"`
}

// SimulateViewPayload drives one simulated watch session. Slot is the
// video's position within its tick; the slot-zero handler schedules the
// next tick for the whole plan.
type SimulateViewPayload struct {
	ViewScheduleID string `json:"view_schedule_id"`
	VideoID        string `json:"video_id"`
	Slot           int    `json:"slot"`
}

// EnqueueOptions tune a single enqueue.
type EnqueueOptions struct {
	// Delay defers delivery; zero means deliver now.
	Delay time.Duration
	// TaskID deduplicates: a second enqueue with the same ID is a no-op.
	TaskID string
	// MaxRetry overrides the queue default when >= 0.
	MaxRetry int
}

// Queue provides durable delayed jobs with dedup and at-least-once delivery.
type Queue interface {
	EnqueueProcessSchedule(ctx Context, p ProcessSchedulePayload, opts EnqueueOptions) error
	EnqueuePostComment(ctx Context, p PostCommentPayload, opts EnqueueOptions) error
	EnqueueSimulateView(ctx Context, p SimulateViewPayload, opts EnqueueOptions) error
	// RemoveTask best-effort deletes a pending or delayed task by ID.
	RemoveTask(ctx Context, queue, taskID string) error
}

// TokenMaterial is the result of an OAuth refresh. The caller persists it;
// refresh never writes to the store itself.
type TokenMaterial struct {
	AccessToken string
	Expiry      time.Time
}

// TokenBroker refreshes OAuth access tokens.
type TokenBroker interface {
	Refresh(ctx Context, account Account, profile APIProfile) (TokenMaterial, error)
}

// Transport is a proxy-bound HTTP client plus what the probe learned.
type Transport struct {
	Client *http.Client
	// Reactivated is set when an inactive proxy passed the liveness probe;
	// the caller persists the status flip (self-healing).
	Reactivated bool
	ProbeMS     int64
}

// TransportBuilder builds proxy-bound HTTP transports.
type TransportBuilder interface {
	// Build returns a transport for the proxy, probing inactive proxies
	// first. A nil proxy yields a direct transport.
	Build(ctx Context, p *Proxy) (Transport, error)
	UserAgent() string
}

// ChannelInfo is the upstream identity of an account's channel.
type ChannelInfo struct {
	ChannelID   string
	Title       string
	Subscribers int64
	VideoCount  int64
}

// PlatformAPI is the upstream video-platform surface the engine consumes.
type PlatformAPI interface {
	// InsertComment posts a top-level comment, or a reply when parentID is
	// set, and returns the upstream comment ID.
	InsertComment(ctx Context, hc *http.Client, accessToken, videoID, parentID, text string) (string, error)
	// RateVideo issues a server-side like.
	RateVideo(ctx Context, hc *http.Client, accessToken, videoID string) error
	// VideoTitle fetches a video's title for AI comment generation.
	VideoTitle(ctx Context, apiKey, videoID string) (string, error)
	// VerifyAccount resolves the channel bound to the token.
	VerifyAccount(ctx Context, hc *http.Client, accessToken string) (ChannelInfo, error)
}

// AIClient generates one short comment per call.
type AIClient interface {
	GenerateComment(ctx Context, videoTitle string) (string, error)
}

// ViewRequest is the viewer-service invocation boundary.
type ViewRequest struct {
	VideoID      string
	MinWatchTime int
	MaxWatchTime int
	AutoLike     bool
	ProxyURL     string
}

// Viewer simulates a watch session (external browser automation service).
type Viewer interface {
	SimulateView(ctx Context, req ViewRequest) error
}
