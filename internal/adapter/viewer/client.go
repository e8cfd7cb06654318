// Package viewer calls the external browser-automation service that plays
// videos for simulated watch sessions.
package viewer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Client implements domain.Viewer over the viewer service's HTTP API.
type Client struct {
	BaseURL string
	hc      *http.Client
}

// New builds a viewer client. The timeout must cover the full watch
// session, not just the request handshake.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{BaseURL: baseURL, hc: &http.Client{Timeout: timeout}}
}

type viewRequest struct {
	VideoID      string `json:"video_id"`
	MinWatchTime int    `json:"min_watch_time"`
	MaxWatchTime int    `json:"max_watch_time"`
	AutoLike     bool   `json:"auto_like"`
	ProxyURL     string `json:"proxy_url,omitempty"`
}

type viewResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SimulateView blocks until the session finishes or the timeout expires.
func (c *Client) SimulateView(ctx domain.Context, req domain.ViewRequest) error {
	body, err := json.Marshal(viewRequest{
		VideoID:      req.VideoID,
		MinWatchTime: req.MinWatchTime,
		MaxWatchTime: req.MaxWatchTime,
		AutoLike:     req.AutoLike,
		ProxyURL:     req.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("op=viewer.simulate: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/simulate-view", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("op=viewer.simulate: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("op=viewer.simulate: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("op=viewer.simulate status=%d: %w", resp.StatusCode, domain.ErrInternal)
	}
	var out viewResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("op=viewer.simulate decode: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("op=viewer.simulate: %w: %s", domain.ErrInternal, out.Error)
	}
	return nil
}

var _ domain.Viewer = (*Client)(nil)
