package usecase

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type postFixture struct {
	comments  *fakeCommentRepo
	schedules *fakeScheduleRepo
	accounts  *fakeAccountRepo
	profiles  *fakeProfileRepo
	proxies   *fakeProxyRepo
	tokens    *fakeTokens
	transport *fakeTransport
	platform  *fakePlatform
	svc       *PostService
}

func newPostFixture() *postFixture {
	expiry := time.Now().UTC().Add(time.Hour)
	f := &postFixture{
		comments:  newFakeCommentRepo(),
		schedules: newFakeScheduleRepo(),
		accounts: newFakeAccountRepo(domain.Account{
			ID: "a1", UserID: "u1", ProfileID: "prof", Status: domain.AccountActive,
			AccessToken: "tok", TokenExpiry: &expiry,
		}),
		profiles:  newFakeProfileRepo(domain.APIProfile{ID: "prof", LimitQuota: 10000}),
		proxies:   newFakeProxyRepo(),
		tokens:    &fakeTokens{material: domain.TokenMaterial{AccessToken: "fresh", Expiry: expiry}},
		transport: &fakeTransport{transport: domain.Transport{Client: &http.Client{}}},
		platform:  &fakePlatform{},
	}
	f.svc = NewPostService(f.comments, f.schedules, f.accounts, f.profiles, f.proxies, f.tokens, f.transport, f.platform)
	return f
}

func (f *postFixture) seed(t *testing.T) (schedID, commentID string) {
	t.Helper()
	s := f.schedules.put(baseSchedule())
	id, err := f.comments.Create(context.Background(), domain.Comment{
		UserID: "u1", ScheduleID: s.ID, AccountID: "a1", VideoID: "vid-1", Content: "great video",
	})
	require.NoError(t, err)
	return s.ID, id
}

func (f *postFixture) handle(t *testing.T, schedID, commentID string) error {
	t.Helper()
	return f.svc.HandlePostComment(context.Background(), domain.PostCommentPayload{CommentID: commentID, ScheduleID: schedID})
}

func TestPostSuccess(t *testing.T) {
	f := newPostFixture()
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentPosted, c.Status)
	assert.Equal(t, "ext-1", c.ExternalID)
	require.NotNil(t, c.PostedAt)

	s, _ := f.schedules.Get(context.Background(), schedID)
	assert.Equal(t, 1, s.PostedComments)

	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, 1, a.CommentCount)
	assert.NotNil(t, a.LastUsed)
	assert.Zero(t, a.ProxyErrorCount)

	p, _ := f.profiles.Get(context.Background(), "prof")
	assert.Equal(t, int64(QuotaCostPerComment), p.UsedQuota)
}

func TestPostRefreshesExpiredToken(t *testing.T) {
	f := newPostFixture()
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.accounts.mutate("a1", func(a *domain.Account) { a.TokenExpiry = &past }))
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	assert.Equal(t, 1, f.tokens.calls)
	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, "fresh", a.AccessToken)
}

func TestPostRefreshFailureDeactivatesAccount(t *testing.T) {
	f := newPostFixture()
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.accounts.mutate("a1", func(a *domain.Account) { a.TokenExpiry = &past }))
	f.tokens.err = domain.ErrTokenRefresh
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, domain.AccountInactive, a.Status)
	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentFailed, c.Status)
}

func TestPostQuotaExceededParksProfileAndAccount(t *testing.T) {
	f := newPostFixture()
	f.platform.insertErr = domain.ErrQuotaExceeded
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	p, _ := f.profiles.Get(context.Background(), "prof")
	assert.Equal(t, domain.ProfileExceeded, p.Status)
	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, domain.AccountLimited, a.Status)
	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentFailed, c.Status)
	s, _ := f.schedules.Get(context.Background(), schedID)
	assert.Equal(t, 1, s.FailedComments)
}

func TestPostDuplicateContentCountsAgainstAccount(t *testing.T) {
	f := newPostFixture()
	f.platform.insertErr = domain.ErrDuplicateContent
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, 1, a.DuplicationCount)
	assert.Equal(t, domain.AccountActive, a.Status)
	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentFailed, c.Status)
}

func TestPostProxyFailureRotatesAndRetries(t *testing.T) {
	f := newPostFixture()
	badID := "proxy-bad"
	f.proxies = newFakeProxyRepo(
		domain.Proxy{ID: badID, UserID: "u1", Status: domain.ProxyActive},
		domain.Proxy{ID: "proxy-good", UserID: "u1", Status: domain.ProxyActive},
	)
	f.svc.Proxies = f.proxies
	require.NoError(t, f.accounts.mutate("a1", func(a *domain.Account) { a.ProxyID = &badID }))
	f.platform.insertErr = domain.ErrProxyUnavailable
	schedID, commentID := f.seed(t)

	err := f.handle(t, schedID, commentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProxyUnavailable)

	a, _ := f.accounts.Get(context.Background(), "a1")
	require.NotNil(t, a.ProxyID)
	assert.Equal(t, "proxy-good", *a.ProxyID)

	bad, _ := f.proxies.Get(context.Background(), badID)
	assert.Equal(t, domain.ProxyInactive, bad.Status)

	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentPending, c.Status)
	assert.Equal(t, 1, c.RetryCount)
}

func TestPostProxyThresholdDeactivatesAccount(t *testing.T) {
	f := newPostFixture()
	require.NoError(t, f.accounts.mutate("a1", func(a *domain.Account) {
		a.ProxyErrorCount = domain.DefaultProxyErrorThreshold - 1
	}))
	f.platform.insertErr = domain.ErrProxyUnavailable
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, domain.AccountInactive, a.Status)
	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentFailed, c.Status)
}

func TestPostTransientGivesUpAfterMaxAttempts(t *testing.T) {
	f := newPostFixture()
	f.platform.insertErr = domain.ErrUpstreamTimeout
	schedID, commentID := f.seed(t)
	require.NoError(t, f.comments.mutate(commentID, func(c *domain.Comment) { c.RetryCount = maxPostAttempts - 1 }))

	require.NoError(t, f.handle(t, schedID, commentID))

	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentFailed, c.Status)
	s, _ := f.schedules.Get(context.Background(), schedID)
	assert.Equal(t, 1, s.FailedComments)
}

func TestPostSkipsResolvedComment(t *testing.T) {
	f := newPostFixture()
	schedID, commentID := f.seed(t)
	require.NoError(t, f.comments.MarkPosted(context.Background(), commentID, "ext-0", time.Now()))

	require.NoError(t, f.handle(t, schedID, commentID))
	assert.Empty(t, f.platform.inserted)
}

func TestPostLeavesPendingWhenSchedulePaused(t *testing.T) {
	f := newPostFixture()
	schedID, commentID := f.seed(t)
	require.NoError(t, f.schedules.UpdateStatus(context.Background(), schedID, domain.SchedulePaused, nil))

	require.NoError(t, f.handle(t, schedID, commentID))

	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentPending, c.Status)
	assert.Empty(t, f.platform.inserted)
}

func TestPostQuotaSpentProfileFailsTerminal(t *testing.T) {
	f := newPostFixture()
	require.NoError(t, f.profiles.MarkExceeded(context.Background(), "prof", time.Now()))
	schedID, commentID := f.seed(t)

	require.NoError(t, f.handle(t, schedID, commentID))

	c, _ := f.comments.Get(context.Background(), commentID)
	assert.Equal(t, domain.CommentFailed, c.Status)
	assert.Empty(t, f.platform.inserted)
}
