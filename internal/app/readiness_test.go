package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/commentflow/internal/config"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func TestReadinessChecksPassThrough(t *testing.T) {
	viewerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer viewerSrv.Close()

	cfg := config.Config{ViewerURL: viewerSrv.URL}
	dbCheck, redisCheck, viewerCheck := BuildReadinessChecks(cfg, pingStub{}, pingStub{})

	ctx := context.Background()
	assert.NoError(t, dbCheck(ctx))
	assert.NoError(t, redisCheck(ctx))
	assert.NoError(t, viewerCheck(ctx))
}

func TestReadinessChecksSurfaceFailures(t *testing.T) {
	cfg := config.Config{}
	dbCheck, redisCheck, viewerCheck := BuildReadinessChecks(cfg,
		pingStub{err: fmt.Errorf("db down")}, pingStub{err: fmt.Errorf("redis down")})

	ctx := context.Background()
	assert.ErrorContains(t, dbCheck(ctx), "db down")
	assert.ErrorContains(t, redisCheck(ctx), "redis down")
	assert.ErrorContains(t, viewerCheck(ctx), "not configured")
}

func TestReadinessChecksNilDependencies(t *testing.T) {
	cfg := config.Config{}
	dbCheck, redisCheck, _ := BuildReadinessChecks(cfg, nil, nil)
	assert.Error(t, dbCheck(context.Background()))
	assert.Error(t, redisCheck(context.Background()))
}

func TestViewerCheckRejectsBadStatus(t *testing.T) {
	viewerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer viewerSrv.Close()

	cfg := config.Config{ViewerURL: viewerSrv.URL}
	_, _, viewerCheck := BuildReadinessChecks(cfg, pingStub{}, pingStub{})
	assert.ErrorContains(t, viewerCheck(context.Background()), "viewer status 502")
}
