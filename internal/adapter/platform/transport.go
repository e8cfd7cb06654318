// Package platform talks to the upstream video platform: comment insertion,
// ratings, metadata lookups, OAuth refresh and proxy-bound transports.
package platform

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// userAgents is a fixed pool so outgoing requests blend in with ordinary
// browser traffic.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// TransportBuilder implements domain.TransportBuilder with a liveness probe
// for inactive proxies.
type TransportBuilder struct {
	ProbeURL     string
	ProbeTimeout time.Duration
}

// NewTransportBuilder returns a builder probing against probeURL.
func NewTransportBuilder(probeURL string, probeTimeout time.Duration) *TransportBuilder {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	return &TransportBuilder{ProbeURL: probeURL, ProbeTimeout: probeTimeout}
}

// proxyURL renders proto://[user:pass@]host:port.
func proxyURL(p domain.Proxy) (*url.URL, error) {
	u := &url.URL{
		Scheme: string(p.Protocol),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	if p.Host == "" || p.Port <= 0 {
		return nil, fmt.Errorf("op=transport.url: %w: host and port required", domain.ErrInvalidArgument)
	}
	return u, nil
}

// Build returns a transport bound to the proxy. Inactive proxies are probed
// first; a passing probe reactivates them (the caller persists the flip).
// No proxy means no transport: the caller treats that as a proxy-class
// failure.
func (b *TransportBuilder) Build(ctx domain.Context, p *domain.Proxy) (domain.Transport, error) {
	if p == nil {
		return domain.Transport{}, fmt.Errorf("op=transport.build: %w: no proxy assigned", domain.ErrProxyUnavailable)
	}
	u, err := proxyURL(*p)
	if err != nil {
		return domain.Transport{}, fmt.Errorf("op=transport.build: %w", domain.ErrProxyUnavailable)
	}
	hc := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyURL(u),
			MaxIdleConnsPerHost:   4,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		Timeout: 60 * time.Second,
	}
	out := domain.Transport{Client: hc}
	if p.Status == domain.ProxyInactive {
		ms, err := b.probe(ctx, hc)
		if err != nil {
			return domain.Transport{}, fmt.Errorf("op=transport.probe proxy=%s: %w", p.ID, domain.ErrProxyUnavailable)
		}
		out.Reactivated = true
		out.ProbeMS = ms
		observability.ProxyReactivationsTotal.Inc()
	}
	return out, nil
}

// Probe checks a proxy-bound client against the neutral URL and returns the
// round-trip time. Exported for the proxy health-check endpoint.
func (b *TransportBuilder) Probe(ctx domain.Context, p domain.Proxy) (int64, error) {
	u, err := proxyURL(p)
	if err != nil {
		return 0, err
	}
	hc := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(u)}}
	return b.probe(ctx, hc)
}

func (b *TransportBuilder) probe(ctx domain.Context, hc *http.Client) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, b.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.ProbeURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", b.UserAgent())
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return time.Since(start).Milliseconds(), nil
}

// UserAgent returns a random entry from the fixed pool.
func (b *TransportBuilder) UserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

var _ domain.TransportBuilder = (*TransportBuilder)(nil)
