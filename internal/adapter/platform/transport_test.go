package platform

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// proxyFromServer turns an httptest server into a Proxy entity. A plain
// HTTP proxy just answers absolute-URI GETs, which the handler below does.
func proxyFromServer(t *testing.T, srv *httptest.Server, status domain.ProxyStatus) domain.Proxy {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return domain.Proxy{ID: "px1", Host: host, Port: port, Protocol: domain.ProxyHTTP, Status: status}
}

func TestProxyURL(t *testing.T) {
	u, err := proxyURL(domain.Proxy{Host: "10.0.0.5", Port: 8080, Protocol: domain.ProxySOCKS5, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "socks5://u:p@10.0.0.5:8080", u.String())

	u, err = proxyURL(domain.Proxy{Host: "proxy.example", Port: 3128, Protocol: domain.ProxyHTTP})
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.example:3128", u.String())

	_, err = proxyURL(domain.Proxy{Protocol: domain.ProxyHTTP})
	require.Error(t, err)
}

func TestBuildNoProxyAssigned(t *testing.T) {
	b := NewTransportBuilder("http://neutral.example/generate_204", time.Second)
	_, err := b.Build(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProxyUnavailable))
}

func TestBuildActiveProxySkipsProbe(t *testing.T) {
	probed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		probed = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := NewTransportBuilder("http://neutral.example/generate_204", time.Second)
	p := proxyFromServer(t, srv, domain.ProxyActive)
	tr, err := b.Build(context.Background(), &p)
	require.NoError(t, err)
	require.NotNil(t, tr.Client)
	assert.False(t, tr.Reactivated)
	assert.False(t, probed)
}

func TestBuildInactiveProxyReactivatesOnProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := NewTransportBuilder("http://neutral.example/generate_204", time.Second)
	p := proxyFromServer(t, srv, domain.ProxyInactive)
	tr, err := b.Build(context.Background(), &p)
	require.NoError(t, err)
	assert.True(t, tr.Reactivated)
	assert.GreaterOrEqual(t, tr.ProbeMS, int64(0))
}

func TestBuildInactiveProxyProbeFails(t *testing.T) {
	b := NewTransportBuilder("http://neutral.example/generate_204", 300*time.Millisecond)
	p := domain.Proxy{ID: "dead", Host: "127.0.0.1", Port: 1, Protocol: domain.ProxyHTTP, Status: domain.ProxyInactive}
	_, err := b.Build(context.Background(), &p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProxyUnavailable))
}

func TestUserAgentFromPool(t *testing.T) {
	b := NewTransportBuilder("http://neutral.example", time.Second)
	ua := b.UserAgent()
	assert.Contains(t, userAgents, ua)
}
