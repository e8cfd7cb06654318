package usecase

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// In-memory fakes for the domain ports. They hold state under a mutex so
// handler tests can run the real orchestration paths.

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules map[string]*domain.Schedule
	nextID    int
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{schedules: make(map[string]*domain.Schedule)}
}

func (f *fakeScheduleRepo) put(s domain.Schedule) *domain.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		f.nextID++
		s.ID = fmt.Sprintf("sched-%d", f.nextID)
	}
	cp := s
	f.schedules[s.ID] = &cp
	return f.schedules[s.ID]
}

func (f *fakeScheduleRepo) Create(_ domain.Context, s domain.Schedule) (string, error) {
	return f.put(s).ID, nil
}

func (f *fakeScheduleRepo) Get(_ domain.Context, id string) (domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	return *s, nil
}

func (f *fakeScheduleRepo) ListByUser(_ domain.Context, userID string, _, _ int) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Schedule
	for _, s := range f.schedules {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) ListActive(_ domain.Context) ([]domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Schedule
	for _, s := range f.schedules {
		if s.Status == domain.ScheduleActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) Update(_ domain.Context, s domain.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[s.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := s
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeScheduleRepo) Delete(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeScheduleRepo) mutate(id string, fn func(*domain.Schedule)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(s)
	return nil
}

func (f *fakeScheduleRepo) UpdateStatus(_ domain.Context, id string, status domain.ScheduleStatus, errMsg *string) error {
	return f.mutate(id, func(s *domain.Schedule) {
		s.Status = status
		if errMsg != nil {
			s.ErrorMessage = *errMsg
		}
	})
}

func (f *fakeScheduleRepo) SetNextRunAt(_ domain.Context, id string, at *time.Time) error {
	return f.mutate(id, func(s *domain.Schedule) { s.NextRunAt = at })
}

func (f *fakeScheduleRepo) SetLastProcessedAt(_ domain.Context, id string, at time.Time) error {
	return f.mutate(id, func(s *domain.Schedule) { s.LastProcessedAt = &at })
}

func (f *fakeScheduleRepo) SetLastUsedAccount(_ domain.Context, id, accountID string) error {
	return f.mutate(id, func(s *domain.Schedule) { s.LastUsedAccountID = accountID })
}

func (f *fakeScheduleRepo) SaveIntervalValue(_ domain.Context, id string, value int) error {
	return f.mutate(id, func(s *domain.Schedule) { s.Interval.Value = value })
}

func (f *fakeScheduleRepo) SaveCommentLimitValue(_ domain.Context, id string, value int) error {
	return f.mutate(id, func(s *domain.Schedule) { s.LimitComments.Value = value })
}

func (f *fakeScheduleRepo) AppendCommentTemplate(_ domain.Context, id, text string) error {
	return f.mutate(id, func(s *domain.Schedule) {
		for _, t := range s.CommentTemplates {
			if t == text {
				return
			}
		}
		s.CommentTemplates = append(s.CommentTemplates, text)
	})
}

func (f *fakeScheduleRepo) SaveSleepState(_ domain.Context, id string, minutes int, startedAt *time.Time, triggerCount int) error {
	return f.mutate(id, func(s *domain.Schedule) {
		s.SleepDelayMinutes = minutes
		s.SleepDelayStartTime = startedAt
		if triggerCount > s.LastSleepTriggerCount {
			s.LastSleepTriggerCount = triggerCount
		}
	})
}

func (f *fakeScheduleRepo) SaveRotationState(_ domain.Context, id string, selected, rotatedPrincipal, rotatedSecondary []string, active domain.ActivePool, at time.Time) error {
	return f.mutate(id, func(s *domain.Schedule) {
		s.SelectedAccounts = selected
		s.RotatedPrincipal = rotatedPrincipal
		s.RotatedSecondary = rotatedSecondary
		s.CurrentlyActive = active
		s.LastRotatedAt = &at
	})
}

func (f *fakeScheduleRepo) IncrementCounters(_ domain.Context, id string, total, posted, failed int) error {
	return f.mutate(id, func(s *domain.Schedule) {
		s.TotalComments += total
		s.PostedComments += posted
		s.FailedComments += failed
	})
}

func (f *fakeScheduleRepo) IncrementErrorCount(_ domain.Context, id string, errMsg string) (int, error) {
	var n int
	err := f.mutate(id, func(s *domain.Schedule) {
		s.ErrorCount++
		s.ErrorMessage = errMsg
		n = s.ErrorCount
	})
	return n, err
}

func (f *fakeScheduleRepo) ReconcileCounters(domain.Context, string) (bool, error) { return false, nil }

func (f *fakeScheduleRepo) ReactivateErrored(domain.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.schedules {
		if s.Status == domain.ScheduleError || s.Status == domain.ScheduleRequiresReview {
			s.Status = domain.ScheduleActive
			s.ErrorCount = 0
			n++
		}
	}
	return n, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func newFakeAccountRepo(accounts ...domain.Account) *fakeAccountRepo {
	f := &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		cp := a
		f.accounts[a.ID] = &cp
	}
	return f
}

func (f *fakeAccountRepo) Create(_ domain.Context, a domain.Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	f.accounts[a.ID] = &cp
	return a.ID, nil
}

func (f *fakeAccountRepo) Get(_ domain.Context, id string) (domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *a, nil
}

func (f *fakeAccountRepo) ListByIDs(_ domain.Context, ids []string) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Account
	for _, id := range ids {
		if a, ok := f.accounts[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) ListActiveByUser(_ domain.Context, userID string) ([]domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Account
	for _, a := range f.accounts {
		if a.UserID == userID && a.Status == domain.AccountActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) Update(_ domain.Context, a domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeAccountRepo) Delete(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccountRepo) mutate(id string, fn func(*domain.Account)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(a)
	return nil
}

func (f *fakeAccountRepo) SetStatus(_ domain.Context, id string, status domain.AccountStatus, msg string) error {
	return f.mutate(id, func(a *domain.Account) { a.Status = status; a.LastMessage = msg })
}

func (f *fakeAccountRepo) SaveTokens(_ domain.Context, id, token string, expiry time.Time) error {
	return f.mutate(id, func(a *domain.Account) { a.AccessToken = token; a.TokenExpiry = &expiry })
}

func (f *fakeAccountRepo) SetChannel(_ domain.Context, id, channelID, title string) error {
	return f.mutate(id, func(a *domain.Account) { a.ChannelID = channelID; a.ChannelTitle = title })
}

func (f *fakeAccountRepo) AssignProxy(_ domain.Context, id string, proxyID *string) error {
	return f.mutate(id, func(a *domain.Account) { a.ProxyID = proxyID; a.ProxyErrorCount = 0 })
}

func (f *fakeAccountRepo) RecordUsage(_ domain.Context, id string, at time.Time) error {
	return f.mutate(id, func(a *domain.Account) { a.LastUsed = &at })
}

func (f *fakeAccountRepo) IncrementProxyError(_ domain.Context, id string) (int, error) {
	var n int
	err := f.mutate(id, func(a *domain.Account) { a.ProxyErrorCount++; n = a.ProxyErrorCount })
	return n, err
}

func (f *fakeAccountRepo) ResetProxyError(_ domain.Context, id string) error {
	return f.mutate(id, func(a *domain.Account) { a.ProxyErrorCount = 0 })
}

func (f *fakeAccountRepo) IncrementDuplication(_ domain.Context, id string) error {
	return f.mutate(id, func(a *domain.Account) { a.DuplicationCount++ })
}

func (f *fakeAccountRepo) IncrementDailyComment(_ domain.Context, id string, _ time.Time) error {
	return f.mutate(id, func(a *domain.Account) { a.CommentCount++ })
}

func (f *fakeAccountRepo) IncrementDailyLike(_ domain.Context, id string, _ time.Time) error {
	return f.mutate(id, func(a *domain.Account) { a.LikeCount++ })
}

func (f *fakeAccountRepo) ReactivateAll(domain.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.accounts {
		if a.Status != domain.AccountActive {
			a.Status = domain.AccountActive
			a.ProxyErrorCount = 0
			n++
		}
	}
	return n, nil
}

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.APIProfile
}

func newFakeProfileRepo(profiles ...domain.APIProfile) *fakeProfileRepo {
	f := &fakeProfileRepo{profiles: make(map[string]*domain.APIProfile)}
	for _, p := range profiles {
		cp := p
		f.profiles[p.ID] = &cp
	}
	return f
}

func (f *fakeProfileRepo) Create(_ domain.Context, p domain.APIProfile) (string, error) {
	cp := p
	f.profiles[p.ID] = &cp
	return p.ID, nil
}

func (f *fakeProfileRepo) Get(_ domain.Context, id string) (domain.APIProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return domain.APIProfile{}, domain.ErrNotFound
	}
	return *p, nil
}

func (f *fakeProfileRepo) ListByUser(domain.Context, string) ([]domain.APIProfile, error) {
	return nil, nil
}
func (f *fakeProfileRepo) Update(domain.Context, domain.APIProfile) error { return nil }
func (f *fakeProfileRepo) Delete(domain.Context, string) error            { return nil }
func (f *fakeProfileRepo) Activate(domain.Context, string) error          { return nil }

func (f *fakeProfileRepo) AddUsedQuota(_ domain.Context, id string, units int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		p.UsedQuota += units
	}
	return nil
}

func (f *fakeProfileRepo) MarkExceeded(_ domain.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		p.Status = domain.ProfileExceeded
		p.ExceededAt = &at
	}
	return nil
}

func (f *fakeProfileRepo) ResetAll(domain.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.profiles {
		if p.UsedQuota > 0 || p.Status == domain.ProfileExceeded {
			p.UsedQuota = 0
			p.Status = domain.ProfileNotExceeded
			p.ExceededAt = nil
			n++
		}
	}
	return n, nil
}

type fakeProxyRepo struct {
	mu      sync.Mutex
	proxies map[string]*domain.Proxy
}

func newFakeProxyRepo(proxies ...domain.Proxy) *fakeProxyRepo {
	f := &fakeProxyRepo{proxies: make(map[string]*domain.Proxy)}
	for _, p := range proxies {
		cp := p
		f.proxies[p.ID] = &cp
	}
	return f
}

func (f *fakeProxyRepo) Create(_ domain.Context, p domain.Proxy) (string, error) {
	cp := p
	f.proxies[p.ID] = &cp
	return p.ID, nil
}

func (f *fakeProxyRepo) Get(_ domain.Context, id string) (domain.Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proxies[id]
	if !ok {
		return domain.Proxy{}, domain.ErrNotFound
	}
	return *p, nil
}

func (f *fakeProxyRepo) ListByUser(domain.Context, string) ([]domain.Proxy, error) { return nil, nil }

func (f *fakeProxyRepo) ListActiveByUser(_ domain.Context, userID string) ([]domain.Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Proxy
	for _, p := range f.proxies {
		if p.UserID == userID && p.Status == domain.ProxyActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProxyRepo) Update(domain.Context, domain.Proxy) error { return nil }
func (f *fakeProxyRepo) Delete(domain.Context, string) error       { return nil }

func (f *fakeProxyRepo) SetStatus(_ domain.Context, id string, status domain.ProxyStatus, checkedAt time.Time, speedMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.proxies[id]; ok {
		p.Status = status
		p.LastChecked = &checkedAt
		p.ConnectionSpeed = speedMS
	}
	return nil
}

type fakeCommentRepo struct {
	mu       sync.Mutex
	comments map[string]*domain.Comment
	nextID   int
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: make(map[string]*domain.Comment)}
}

func (f *fakeCommentRepo) Create(_ domain.Context, c domain.Comment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		f.nextID++
		c.ID = fmt.Sprintf("comment-%d", f.nextID)
	}
	if c.Status == "" {
		c.Status = domain.CommentPending
	}
	cp := c
	f.comments[c.ID] = &cp
	return c.ID, nil
}

func (f *fakeCommentRepo) Get(_ domain.Context, id string) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return domain.Comment{}, domain.ErrNotFound
	}
	return *c, nil
}

func (f *fakeCommentRepo) ListBySchedule(_ domain.Context, scheduleID string, _, _ int) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Comment
	for _, c := range f.comments {
		if c.ScheduleID == scheduleID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCommentRepo) mutate(id string, fn func(*domain.Comment)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(c)
	return nil
}

func (f *fakeCommentRepo) MarkPosted(_ domain.Context, id, externalID string, at time.Time) error {
	return f.mutate(id, func(c *domain.Comment) {
		c.Status = domain.CommentPosted
		c.ExternalID = externalID
		c.PostedAt = &at
	})
}

func (f *fakeCommentRepo) MarkFailed(_ domain.Context, id, msg string) error {
	return f.mutate(id, func(c *domain.Comment) {
		c.Status = domain.CommentFailed
		c.ErrorMessage = msg
	})
}

func (f *fakeCommentRepo) IncrementRetry(_ domain.Context, id string) error {
	return f.mutate(id, func(c *domain.Comment) { c.RetryCount++ })
}

func (f *fakeCommentRepo) CountByStatus(_ domain.Context, scheduleID string) (map[domain.CommentStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[domain.CommentStatus]int)
	for _, c := range f.comments {
		if c.ScheduleID == scheduleID {
			out[c.Status]++
		}
	}
	return out, nil
}

func (f *fakeCommentRepo) ResetFailed(_ domain.Context, scheduleID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Comment
	for _, c := range f.comments {
		if c.ScheduleID == scheduleID && c.Status == domain.CommentFailed {
			c.Status = domain.CommentPending
			c.ErrorMessage = ""
			c.RetryCount = 0
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeViewRepo struct {
	mu    sync.Mutex
	views map[string]*domain.ViewSchedule
}

func newFakeViewRepo(views ...domain.ViewSchedule) *fakeViewRepo {
	f := &fakeViewRepo{views: make(map[string]*domain.ViewSchedule)}
	for _, v := range views {
		cp := v
		f.views[v.ID] = &cp
	}
	return f
}

func (f *fakeViewRepo) Create(_ domain.Context, v domain.ViewSchedule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v.ID == "" {
		v.ID = fmt.Sprintf("view-%d", len(f.views)+1)
	}
	cp := v
	f.views[v.ID] = &cp
	return v.ID, nil
}

func (f *fakeViewRepo) Get(_ domain.Context, id string) (domain.ViewSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok {
		return domain.ViewSchedule{}, domain.ErrNotFound
	}
	return *v, nil
}

func (f *fakeViewRepo) ListByUser(domain.Context, string) ([]domain.ViewSchedule, error) {
	return nil, nil
}

func (f *fakeViewRepo) ListActive(domain.Context) ([]domain.ViewSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ViewSchedule
	for _, v := range f.views {
		if v.Status == domain.ScheduleActive {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeViewRepo) Update(domain.Context, domain.ViewSchedule) error { return nil }
func (f *fakeViewRepo) Delete(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.views, id)
	return nil
}

func (f *fakeViewRepo) SetNextRunAt(_ domain.Context, id string, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.views[id]; ok {
		v.NextRunAt = at
	}
	return nil
}

func (f *fakeViewRepo) UpdateStatus(_ domain.Context, id string, status domain.ScheduleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.views[id]; ok {
		v.Status = status
	}
	return nil
}

// fakeQueue records every enqueue.
type enqueued struct {
	taskType string
	payload  any
	opts     domain.EnqueueOptions
}

type fakeQueue struct {
	mu      sync.Mutex
	items   []enqueued
	removed []string
}

func (q *fakeQueue) record(taskType string, payload any, opts domain.EnqueueOptions) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, enqueued{taskType: taskType, payload: payload, opts: opts})
}

func (q *fakeQueue) EnqueueProcessSchedule(_ domain.Context, p domain.ProcessSchedulePayload, opts domain.EnqueueOptions) error {
	q.record("schedule:process", p, opts)
	return nil
}

func (q *fakeQueue) EnqueuePostComment(_ domain.Context, p domain.PostCommentPayload, opts domain.EnqueueOptions) error {
	q.record("comment:post", p, opts)
	return nil
}

func (q *fakeQueue) EnqueueSimulateView(_ domain.Context, p domain.SimulateViewPayload, opts domain.EnqueueOptions) error {
	q.record("view:simulate", p, opts)
	return nil
}

func (q *fakeQueue) RemoveTask(_ domain.Context, queue, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, queue+"/"+taskID)
	return nil
}

func (q *fakeQueue) byType(taskType string) []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []enqueued
	for _, it := range q.items {
		if it.taskType == taskType {
			out = append(out, it)
		}
	}
	return out
}

// fakeCache is a TTL-less map; lock acquisition can be forced to fail.
type fakeCache struct {
	mu     sync.Mutex
	data   map[string]string
	locked map[string]bool
	denyLk bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string), locked: make(map[string]bool)}
}

func (c *fakeCache) Get(_ domain.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ domain.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ domain.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) DeletePattern(_ domain.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

func (c *fakeCache) AcquireLock(_ domain.Context, key string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denyLk || c.locked[key] {
		return false, nil
	}
	c.locked[key] = true
	return true, nil
}

func (c *fakeCache) ReleaseLock(_ domain.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locked, key)
	return nil
}

// fakePlatform scripts upstream behaviour per call.
type fakePlatform struct {
	mu         sync.Mutex
	insertErr  error
	insertID   string
	inserted   []string // "videoID:text"
	rated      []string
	titles     map[string]string
	verifyInfo domain.ChannelInfo
	verifyErr  error
}

func (p *fakePlatform) InsertComment(_ domain.Context, _ *http.Client, _, videoID, _, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.insertErr != nil {
		return "", p.insertErr
	}
	p.inserted = append(p.inserted, videoID+":"+text)
	if p.insertID == "" {
		return "ext-1", nil
	}
	return p.insertID, nil
}

func (p *fakePlatform) RateVideo(_ domain.Context, _ *http.Client, _, videoID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rated = append(p.rated, videoID)
	return nil
}

func (p *fakePlatform) VideoTitle(_ domain.Context, _, videoID string) (string, error) {
	if t, ok := p.titles[videoID]; ok {
		return t, nil
	}
	return "", domain.ErrNotFound
}

func (p *fakePlatform) VerifyAccount(domain.Context, *http.Client, string) (domain.ChannelInfo, error) {
	return p.verifyInfo, p.verifyErr
}

type fakeTokens struct {
	material domain.TokenMaterial
	err      error
	calls    int
}

func (t *fakeTokens) Refresh(domain.Context, domain.Account, domain.APIProfile) (domain.TokenMaterial, error) {
	t.calls++
	return t.material, t.err
}

type fakeTransport struct {
	transport domain.Transport
	err       error
}

func (t *fakeTransport) Build(domain.Context, *domain.Proxy) (domain.Transport, error) {
	if t.err != nil {
		return domain.Transport{}, t.err
	}
	return t.transport, nil
}

func (t *fakeTransport) UserAgent() string { return "test-agent" }

type fakeViewer struct {
	mu   sync.Mutex
	reqs []domain.ViewRequest
	err  error
}

func (v *fakeViewer) SimulateView(_ domain.Context, req domain.ViewRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reqs = append(v.reqs, req)
	return v.err
}

type fakeAI struct {
	text string
	err  error
}

func (a *fakeAI) GenerateComment(domain.Context, string) (string, error) { return a.text, a.err }
