package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// QuotaCostPerComment is the upstream quota spend of one insert.
const QuotaCostPerComment = 50

// maxPostAttempts bounds transient retries per comment.
const maxPostAttempts = 3

// PostService executes one posting attempt end to end: token freshness,
// proxy-bound transport, upstream insert and outcome bookkeeping.
type PostService struct {
	Comments  domain.CommentRepository
	Schedules domain.ScheduleRepository
	Accounts  domain.AccountRepository
	Profiles  domain.ProfileRepository
	Proxies   domain.ProxyRepository
	Tokens    domain.TokenBroker
	Transport domain.TransportBuilder
	Platform  domain.PlatformAPI
}

// NewPostService constructs a PostService.
func NewPostService(cr domain.CommentRepository, sr domain.ScheduleRepository, ar domain.AccountRepository, pr domain.ProfileRepository, xr domain.ProxyRepository, tb domain.TokenBroker, tr domain.TransportBuilder, api domain.PlatformAPI) *PostService {
	return &PostService{
		Comments:  cr,
		Schedules: sr,
		Accounts:  ar,
		Profiles:  pr,
		Proxies:   xr,
		Tokens:    tb,
		Transport: tr,
		Platform:  api,
	}
}

// HandlePostComment is the posts-queue entry point.
func (p *PostService) HandlePostComment(ctx domain.Context, payload domain.PostCommentPayload) error {
	tracer := otel.Tracer("usecase.post")
	ctx, span := tracer.Start(ctx, "PostComment")
	defer span.End()

	c, err := p.Comments.Get(ctx, payload.CommentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("op=post.load comment=%s: %w", payload.CommentID, err)
	}
	if c.Status != domain.CommentPending {
		// Already resolved by an earlier delivery.
		return nil
	}

	s, err := p.Schedules.Get(ctx, c.ScheduleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return p.failTerminal(ctx, c, "schedule deleted", "other")
		}
		return fmt.Errorf("op=post.schedule comment=%s: %w", c.ID, err)
	}
	if s.Status != domain.ScheduleActive {
		// Paused or parked mid-flight; leave the comment pending for a
		// later resume.
		return nil
	}

	a, err := p.Accounts.Get(ctx, c.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return p.failTerminal(ctx, c, "account deleted", "other")
		}
		return fmt.Errorf("op=post.account comment=%s: %w", c.ID, err)
	}
	if a.Status != domain.AccountActive {
		return p.failTerminal(ctx, c, "account "+string(a.Status), "other")
	}

	profile, err := p.Profiles.Get(ctx, a.ProfileID)
	if err != nil {
		return p.failTerminal(ctx, c, "api profile unavailable: "+err.Error(), "other")
	}
	if profile.Status == domain.ProfileExceeded || profile.QuotaExhausted() {
		return p.failTerminal(ctx, c, "api profile quota spent", "quota")
	}

	now := time.Now().UTC()
	if a.TokenExpired(now) {
		material, rerr := p.Tokens.Refresh(ctx, a, profile)
		if rerr != nil {
			_ = p.Accounts.SetStatus(ctx, a.ID, domain.AccountInactive, "token refresh failed: "+rerr.Error())
			return p.failTerminal(ctx, c, "token refresh failed", "other")
		}
		if serr := p.Accounts.SaveTokens(ctx, a.ID, material.AccessToken, material.Expiry); serr != nil {
			return fmt.Errorf("op=post.save_tokens comment=%s: %w", c.ID, serr)
		}
		a.AccessToken = material.AccessToken
		a.TokenExpiry = &material.Expiry
	}

	var proxy *domain.Proxy
	if a.ProxyID != nil {
		px, perr := p.Proxies.Get(ctx, *a.ProxyID)
		if perr == nil {
			proxy = &px
		}
	}
	transport, terr := p.Transport.Build(ctx, proxy)
	if terr != nil {
		return p.handleProxyFailure(ctx, c, a, proxy, terr)
	}
	if transport.Reactivated && proxy != nil {
		// The probe healed an inactive proxy; persist the flip.
		_ = p.Proxies.SetStatus(ctx, proxy.ID, domain.ProxyActive, now, transport.ProbeMS)
	}

	// Sanitise per attempt so retries roll fresh emojis and share tokens.
	content := sanitizeComment(c.Content, s.IncludeEmojis)
	externalID, postErr := p.Platform.InsertComment(ctx, transport.Client, a.AccessToken, c.VideoID, c.ParentID, content)
	switch {
	case postErr == nil:
		return p.handleSuccess(ctx, c, a, profile, externalID)
	case errors.Is(postErr, domain.ErrQuotaExceeded):
		return p.handleQuota(ctx, c, a, profile, postErr)
	case errors.Is(postErr, domain.ErrDuplicateContent):
		return p.handleDuplicate(ctx, c, a, postErr)
	case errors.Is(postErr, domain.ErrProxyUnavailable):
		return p.handleProxyFailure(ctx, c, a, proxy, postErr)
	case errors.Is(postErr, domain.ErrUpstreamTimeout):
		return p.retryTransient(ctx, c, "other", postErr)
	default:
		observability.PostOutcome("other")
		return p.failTerminal(ctx, c, postErr.Error(), "")
	}
}

func (p *PostService) handleSuccess(ctx domain.Context, c domain.Comment, a domain.Account, profile domain.APIProfile, externalID string) error {
	now := time.Now().UTC()
	if err := p.Comments.MarkPosted(ctx, c.ID, externalID, now); err != nil {
		return fmt.Errorf("op=post.mark_posted comment=%s: %w", c.ID, err)
	}
	if err := p.Schedules.IncrementCounters(ctx, c.ScheduleID, 0, 1, 0); err != nil {
		return fmt.Errorf("op=post.counters comment=%s: %w", c.ID, err)
	}
	_ = p.Accounts.ResetProxyError(ctx, a.ID)
	_ = p.Accounts.RecordUsage(ctx, a.ID, now)
	_ = p.Accounts.IncrementDailyComment(ctx, a.ID, now)
	_ = p.Profiles.AddUsedQuota(ctx, profile.ID, QuotaCostPerComment)
	observability.PostOutcome("success")
	slog.Info("comment posted",
		slog.String("comment_id", c.ID),
		slog.String("schedule_id", c.ScheduleID),
		slog.String("account_id", a.ID),
		slog.String("external_id", externalID))
	return nil
}

// handleQuota parks the profile and the account until the daily reset.
func (p *PostService) handleQuota(ctx domain.Context, c domain.Comment, a domain.Account, profile domain.APIProfile, cause error) error {
	now := time.Now().UTC()
	_ = p.Profiles.MarkExceeded(ctx, profile.ID, now)
	_ = p.Accounts.SetStatus(ctx, a.ID, domain.AccountLimited, "upstream quota exceeded")
	observability.PostOutcome("quota")
	return p.failTerminal(ctx, c, cause.Error(), "")
}

func (p *PostService) handleDuplicate(ctx domain.Context, c domain.Comment, a domain.Account, cause error) error {
	_ = p.Accounts.IncrementDuplication(ctx, a.ID)
	observability.PostOutcome("duplicate")
	return p.failTerminal(ctx, c, cause.Error(), "")
}

// handleProxyFailure counts the failure against the account, deactivates
// past the threshold and rotates the account onto its user's fastest other
// active proxy before the retry.
func (p *PostService) handleProxyFailure(ctx domain.Context, c domain.Comment, a domain.Account, proxy *domain.Proxy, cause error) error {
	observability.PostOutcome("proxy")
	n, err := p.Accounts.IncrementProxyError(ctx, a.ID)
	if err != nil {
		slog.Error("proxy error count update failed", slog.String("account_id", a.ID), slog.Any("error", err))
	}
	now := time.Now().UTC()
	if proxy != nil {
		_ = p.Proxies.SetStatus(ctx, proxy.ID, domain.ProxyInactive, now, proxy.ConnectionSpeed)
	}
	if n >= a.Threshold() {
		_ = p.Accounts.SetStatus(ctx, a.ID, domain.AccountInactive,
			fmt.Sprintf("deactivated after %d proxy failures", n))
		return p.failTerminal(ctx, c, cause.Error(), "")
	}

	// Rotate to the next proxy so the retry does not hit the same endpoint.
	if next := p.nextProxy(ctx, a, proxy); next != nil {
		_ = p.Accounts.AssignProxy(ctx, a.ID, &next.ID)
		slog.Info("account rotated to new proxy",
			slog.String("account_id", a.ID),
			slog.String("proxy_id", next.ID))
	}
	return p.retryTransient(ctx, c, "", cause)
}

func (p *PostService) nextProxy(ctx domain.Context, a domain.Account, failed *domain.Proxy) *domain.Proxy {
	proxies, err := p.Proxies.ListActiveByUser(ctx, a.UserID)
	if err != nil {
		return nil
	}
	for i := range proxies {
		if failed != nil && proxies[i].ID == failed.ID {
			continue
		}
		return &proxies[i]
	}
	return nil
}

// retryTransient re-raises the error so the queue redelivers, up to
// maxPostAttempts tracked on the comment row.
func (p *PostService) retryTransient(ctx domain.Context, c domain.Comment, class string, cause error) error {
	if class != "" {
		observability.PostOutcome(class)
	}
	if err := p.Comments.IncrementRetry(ctx, c.ID); err != nil {
		slog.Error("retry count update failed", slog.String("comment_id", c.ID), slog.Any("error", err))
	}
	if c.RetryCount+1 >= maxPostAttempts {
		return p.failTerminal(ctx, c, fmt.Sprintf("gave up after %d attempts: %v", c.RetryCount+1, cause), "")
	}
	return fmt.Errorf("op=post.attempt comment=%s attempt=%d: %w", c.ID, c.RetryCount+1, cause)
}

// failTerminal records a terminal failure and returns nil so the queue
// never redelivers; the failure lives in the comment row.
func (p *PostService) failTerminal(ctx domain.Context, c domain.Comment, msg, class string) error {
	if class != "" {
		observability.PostOutcome(class)
	}
	if err := p.Comments.MarkFailed(ctx, c.ID, msg); err != nil {
		return fmt.Errorf("op=post.mark_failed comment=%s: %w", c.ID, err)
	}
	if err := p.Schedules.IncrementCounters(ctx, c.ScheduleID, 0, 0, 1); err != nil {
		return fmt.Errorf("op=post.counters comment=%s: %w", c.ID, err)
	}
	slog.Warn("comment failed",
		slog.String("comment_id", c.ID),
		slog.String("schedule_id", c.ScheduleID),
		slog.String("reason", msg))
	return nil
}
