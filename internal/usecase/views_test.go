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

type viewFixture struct {
	views    *fakeViewRepo
	accounts *fakeAccountRepo
	profiles *fakeProfileRepo
	proxies  *fakeProxyRepo
	queue    *fakeQueue
	viewer   *fakeViewer
	platform *fakePlatform
	svc      *ViewService
}

func newViewFixture(views ...domain.ViewSchedule) *viewFixture {
	expiry := time.Now().UTC().Add(time.Hour)
	f := &viewFixture{
		views: newFakeViewRepo(views...),
		accounts: newFakeAccountRepo(domain.Account{
			ID: "a1", UserID: "u1", ProfileID: "prof", Status: domain.AccountActive,
			AccessToken: "tok", TokenExpiry: &expiry,
		}),
		profiles: newFakeProfileRepo(domain.APIProfile{ID: "prof"}),
		proxies:  newFakeProxyRepo(),
		queue:    &fakeQueue{},
		viewer:   &fakeViewer{},
		platform: &fakePlatform{},
	}
	tokens := &fakeTokens{material: domain.TokenMaterial{AccessToken: "fresh", Expiry: expiry}}
	transport := &fakeTransport{transport: domain.Transport{Client: &http.Client{}}}
	f.svc = NewViewService(f.views, f.accounts, f.profiles, f.proxies, f.queue, f.viewer, tokens, transport, f.platform)
	return f
}

func baseViewSchedule() domain.ViewSchedule {
	return domain.ViewSchedule{
		ID:           "v1",
		UserID:       "u1",
		Status:       domain.ScheduleActive,
		TargetVideos: []domain.TargetVideo{{VideoID: "vid-1"}},
		Interval:     domain.Interval{Value: 30, Unit: domain.UnitMinutes},
		Probability:  100,
		MinWatchTime: 30,
		MaxWatchTime: 120,
	}
}

func TestSimulateViewRunsSessionAndFollowUp(t *testing.T) {
	f := newViewFixture(baseViewSchedule())

	err := f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1"})
	require.NoError(t, err)

	require.Len(t, f.viewer.reqs, 1)
	assert.Equal(t, "vid-1", f.viewer.reqs[0].VideoID)
	assert.Equal(t, 30, f.viewer.reqs[0].MinWatchTime)
	assert.Equal(t, 120, f.viewer.reqs[0].MaxWatchTime)

	follow := f.queue.byType("view:simulate")
	require.Len(t, follow, 1)
	assert.InDelta(t, (30 * time.Minute).Seconds(), follow[0].opts.Delay.Seconds(), 2)
}

func TestSimulateViewZeroProbabilityNeverWatches(t *testing.T) {
	vs := baseViewSchedule()
	vs.Probability = 0
	f := newViewFixture(vs)

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1"}))

	assert.Empty(t, f.viewer.reqs)
	// The next session is still scheduled.
	assert.Len(t, f.queue.byType("view:simulate"), 1)
}

func TestSimulateViewAutoLike(t *testing.T) {
	vs := baseViewSchedule()
	vs.AutoLike = true
	f := newViewFixture(vs)

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1"}))

	assert.Equal(t, []string{"vid-1"}, f.platform.rated)
	a, _ := f.accounts.Get(context.Background(), "a1")
	assert.Equal(t, 1, a.LikeCount)
}

func TestSimulateViewPassesAccountProxy(t *testing.T) {
	vs := baseViewSchedule()
	f := newViewFixture(vs)
	f.proxies = newFakeProxyRepo(domain.Proxy{
		ID: "px1", UserID: "u1", Host: "10.0.0.1", Port: 8080,
		Protocol: domain.ProxyHTTP, Status: domain.ProxyActive,
	})
	f.svc.Proxies = f.proxies
	pxID := "px1"
	require.NoError(t, f.accounts.mutate("a1", func(a *domain.Account) { a.ProxyID = &pxID }))

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1"}))

	require.Len(t, f.viewer.reqs, 1)
	assert.Equal(t, "http://10.0.0.1:8080", f.viewer.reqs[0].ProxyURL)
}

func TestSimulateViewFailureStillSchedulesNext(t *testing.T) {
	f := newViewFixture(baseViewSchedule())
	f.viewer.err = domain.ErrUpstreamTimeout

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1"}))
	assert.Len(t, f.queue.byType("view:simulate"), 1)
}

func TestSimulateViewPausedPlanIsNoop(t *testing.T) {
	vs := baseViewSchedule()
	vs.Status = domain.SchedulePaused
	f := newViewFixture(vs)

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1"}))
	assert.Empty(t, f.viewer.reqs)
	assert.Empty(t, f.queue.items)
}

func TestSetupViewJobStaggersPerVideo(t *testing.T) {
	vs := baseViewSchedule()
	vs.TargetVideos = []domain.TargetVideo{{VideoID: "vid-1"}, {VideoID: "vid-2"}, {VideoID: "vid-3"}}
	f := newViewFixture(vs)

	require.NoError(t, f.svc.SetupViewJob(context.Background(), vs))

	jobs := f.queue.byType("view:simulate")
	require.Len(t, jobs, 3)
	// Three videos split the 30m interval: sessions at 30m, 40m and 50m.
	ids := map[string]bool{}
	for i, job := range jobs {
		p := job.payload.(domain.SimulateViewPayload)
		assert.Equal(t, "v1", p.ViewScheduleID)
		assert.Equal(t, vs.TargetVideos[i].VideoID, p.VideoID)
		assert.Equal(t, i, p.Slot)
		want := 30*time.Minute + time.Duration(i)*10*time.Minute
		assert.InDelta(t, want.Seconds(), job.opts.Delay.Seconds(), 2)
		ids[job.opts.TaskID] = true
	}
	assert.Len(t, ids, 3)

	stored, _ := f.views.Get(context.Background(), "v1")
	assert.NotNil(t, stored.NextRunAt)
}

func TestSimulateViewOnlySlotZeroSchedulesNextTick(t *testing.T) {
	vs := baseViewSchedule()
	vs.TargetVideos = []domain.TargetVideo{{VideoID: "vid-1"}, {VideoID: "vid-2"}}
	f := newViewFixture(vs)

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-2", Slot: 1}))
	assert.Empty(t, f.queue.byType("view:simulate"))

	require.NoError(t, f.svc.HandleSimulateView(context.Background(), domain.SimulateViewPayload{ViewScheduleID: "v1", VideoID: "vid-1", Slot: 0}))
	assert.Len(t, f.queue.byType("view:simulate"), 2)
}

func TestSetupViewJobRequiresVideos(t *testing.T) {
	f := newViewFixture()
	vs := baseViewSchedule()
	vs.TargetVideos = nil
	err := f.svc.SetupViewJob(context.Background(), vs)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestViewReloadRegistersActive(t *testing.T) {
	active := baseViewSchedule()
	paused := baseViewSchedule()
	paused.ID = "v2"
	paused.Status = domain.SchedulePaused
	f := newViewFixture(active, paused)

	require.NoError(t, f.svc.Reload(context.Background()))
	assert.Len(t, f.queue.byType("view:simulate"), 1)
}
