// Package domain holds the engine's entities, ports and error taxonomy.
// It stays free of adapter concerns so usecases can be tested with fakes.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrProxyUnavailable = errors.New("proxy failed or invalid")
	ErrDuplicateContent = errors.New("duplicate content refused")
	ErrTokenRefresh     = errors.New("token refresh failed")
	ErrUpstreamTimeout  = errors.New("upstream timeout")
	ErrInternal         = errors.New("internal error")
)

// Context is an alias so ports read uniformly; adapters pass context.Context.
type Context = context.Context

// AccountStatus enumerates posting-identity states.
type AccountStatus string

// Account states. A limited account sits out until the daily reset.
const (
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountLimited  AccountStatus = "limited"
)

// ProxyStatus enumerates proxy health states.
type ProxyStatus string

const (
	ProxyActive   ProxyStatus = "active"
	ProxyInactive ProxyStatus = "inactive"
)

// ProxyProtocol enumerates supported egress protocols.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySOCKS5 ProxyProtocol = "socks5"
)

// ProfileStatus enumerates API-profile quota states.
type ProfileStatus string

const (
	ProfileNotExceeded ProfileStatus = "not_exceeded"
	ProfileExceeded    ProfileStatus = "exceeded"
)

// CommentStatus enumerates attempt-record states.
type CommentStatus string

const (
	CommentPending   CommentStatus = "pending"
	CommentScheduled CommentStatus = "scheduled"
	CommentPosted    CommentStatus = "posted"
	CommentFailed    CommentStatus = "failed"
)

// User owns proxies, accounts and schedules. Created by the external auth
// service; the engine only reads it.
type User struct {
	ID        string
	Email     string
	Timezone  string
	CreatedAt time.Time
}

// APIProfile is one set of upstream credentials with quota accounting.
// Invariant: at most one profile is active at a time.
type APIProfile struct {
	ID           string
	UserID       string
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIKey       string
	UsedQuota    int64
	LimitQuota   int64
	Status       ProfileStatus
	ExceededAt   *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QuotaExhausted reports whether the soft limit (when configured) is spent.
func (p APIProfile) QuotaExhausted() bool {
	return p.LimitQuota > 0 && p.UsedQuota >= p.LimitQuota
}

// Proxy is a remote egress endpoint owned by a user.
type Proxy struct {
	ID              string
	UserID          string
	Host            string
	Port            int
	Username        string
	Password        string
	Protocol        ProxyProtocol
	Status          ProxyStatus
	LastChecked     *time.Time
	ConnectionSpeed int64 // milliseconds for the last successful probe
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultProxyErrorThreshold deactivates an account after this many
// consecutive proxy-class failures.
const DefaultProxyErrorThreshold = 20

// Account is a posting identity bound to a user, an API profile and
// optionally a proxy.
// Invariants: RefreshToken non-empty for active accounts;
// ProxyErrorCount >= ProxyErrorThreshold implies inactive.
type Account struct {
	ID                  string
	UserID              string
	ProxyID             *string
	ProfileID           string
	Email               string
	AccessToken         string
	RefreshToken        string
	TokenExpiry         *time.Time
	ChannelID           string
	ChannelTitle        string
	Status              AccountStatus
	LastUsed            *time.Time
	LastMessage         string
	ProxyErrorCount     int
	DuplicationCount    int
	ProxyErrorThreshold int
	CommentCount        int // per-day counter
	LikeCount           int // per-day counter
	DailyUsageDate      time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TokenExpired reports whether the access token must be refreshed before use.
func (a Account) TokenExpired(now time.Time) bool {
	return a.AccessToken == "" || a.TokenExpiry == nil || !a.TokenExpiry.After(now)
}

// Threshold returns the proxy error threshold with the default applied.
func (a Account) Threshold() int {
	if a.ProxyErrorThreshold > 0 {
		return a.ProxyErrorThreshold
	}
	return DefaultProxyErrorThreshold
}

// Comment is one posting attempt.
// Invariant: posted implies ExternalID and PostedAt are set.
type Comment struct {
	ID                    string
	UserID                string
	ScheduleID            string
	AccountID             string
	VideoID               string
	ParentID              string
	Content               string
	Status                CommentStatus
	ScheduledFor          *time.Time
	PostedAt              *time.Time
	ErrorMessage          string
	RetryCount            int
	ExternalID            string
	LastPreviousAccountID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
