package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Client implements domain.PlatformAPI. Calls that must originate from an
// account's egress take the proxy-bound *http.Client built by the broker;
// metadata lookups use the client's own direct transport.
type Client struct {
	BaseURL string
	hc      *http.Client
	agent   func() string
}

// New builds a platform client. agent supplies the User-Agent per request.
func New(baseURL string, agent func() string) *Client {
	if agent == nil {
		agent = func() string { return userAgents[0] }
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
		agent:   agent,
	}
}

// readSnippet reads up to n bytes from r for error surfaces.
func readSnippet(r io.Reader, n int) string {
	if r == nil || n <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return string(b)
}

// classify maps an upstream error body onto the engine's error taxonomy.
func classify(status int, body string) error {
	low := strings.ToLower(body)
	switch {
	case strings.Contains(low, "quotaexceeded") || strings.Contains(low, "dailylimitexceeded"):
		return domain.ErrQuotaExceeded
	case strings.Contains(low, "duplicate") || strings.Contains(low, "commentfailed") && strings.Contains(low, "spam"):
		return domain.ErrDuplicateContent
	case status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return domain.ErrUpstreamTimeout
	default:
		return domain.ErrInternal
	}
}

type commentSnippet struct {
	VideoID      string `json:"videoId,omitempty"`
	TextOriginal string `json:"textOriginal"`
	ParentID     string `json:"parentId,omitempty"`
}

// InsertComment posts a top-level comment (commentThreads.insert) or a reply
// (comments.insert when parentID is set) and returns the upstream ID.
func (c *Client) InsertComment(ctx domain.Context, hc *http.Client, accessToken, videoID, parentID, text string) (string, error) {
	if hc == nil {
		return "", fmt.Errorf("op=platform.insert_comment: %w: nil transport", domain.ErrProxyUnavailable)
	}
	var endpoint string
	var body any
	if parentID != "" {
		endpoint = c.BaseURL + "/comments?part=snippet"
		body = map[string]any{"snippet": commentSnippet{ParentID: parentID, TextOriginal: text}}
	} else {
		endpoint = c.BaseURL + "/commentThreads?part=snippet"
		body = map[string]any{
			"snippet": map[string]any{
				"videoId":         videoID,
				"topLevelComment": map[string]any{"snippet": commentSnippet{TextOriginal: text}},
			},
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=platform.insert_comment: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("op=platform.insert_comment: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.agent())

	resp, err := hc.Do(req)
	observability.UpstreamRequestDuration.WithLabelValues("comments.insert").Observe(time.Since(start).Seconds())
	if err != nil {
		// Transport-level failures through a proxy are proxy-class.
		return "", fmt.Errorf("op=platform.insert_comment video=%s: %w: %v", videoID, domain.ErrProxyUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(resp.Body, 1024)
		return "", fmt.Errorf("op=platform.insert_comment video=%s status=%d: %w: %s", videoID, resp.StatusCode, classify(resp.StatusCode, snippet), snippet)
	}

	var out struct {
		ID      string `json:"id"`
		Snippet struct {
			TopLevelComment struct {
				ID string `json:"id"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("op=platform.insert_comment: decode: %w", err)
	}
	id := out.ID
	if parentID == "" && out.Snippet.TopLevelComment.ID != "" {
		id = out.Snippet.TopLevelComment.ID
	}
	if id == "" {
		return "", fmt.Errorf("op=platform.insert_comment: %w: response missing comment id", domain.ErrInternal)
	}
	return id, nil
}

// RateVideo issues a server-side like through the account's egress.
func (c *Client) RateVideo(ctx domain.Context, hc *http.Client, accessToken, videoID string) error {
	if hc == nil {
		return fmt.Errorf("op=platform.rate: %w: nil transport", domain.ErrProxyUnavailable)
	}
	endpoint := fmt.Sprintf("%s/videos/rate?id=%s&rating=like", c.BaseURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("op=platform.rate: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", c.agent())
	start := time.Now()
	resp, err := hc.Do(req)
	observability.UpstreamRequestDuration.WithLabelValues("videos.rate").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("op=platform.rate video=%s: %w: %v", videoID, domain.ErrProxyUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(resp.Body, 512)
		return fmt.Errorf("op=platform.rate video=%s status=%d: %w: %s", videoID, resp.StatusCode, classify(resp.StatusCode, snippet), snippet)
	}
	return nil
}

// VideoTitle fetches a video's title for AI comment generation. Retries up
// to 3 times with exponential backoff (1s, 2s, 4s), 10s per attempt.
func (c *Client) VideoTitle(ctx domain.Context, apiKey, videoID string) (string, error) {
	endpoint := fmt.Sprintf("%s/videos?part=snippet&id=%s&key=%s", c.BaseURL, url.QueryEscape(videoID), url.QueryEscape(apiKey))

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	expo.Multiplier = 2
	expo.RandomizationFactor = 0

	var title string
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.agent())
		start := time.Now()
		resp, err := c.hc.Do(req)
		observability.UpstreamRequestDuration.WithLabelValues("videos.list").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			snippet := readSnippet(resp.Body, 512)
			kind := classify(resp.StatusCode, snippet)
			if errors.Is(kind, domain.ErrUpstreamTimeout) {
				return fmt.Errorf("status=%d: %w", resp.StatusCode, kind)
			}
			return backoff.Permanent(fmt.Errorf("status=%d: %w: %s", resp.StatusCode, kind, snippet))
		}
		var out struct {
			Items []struct {
				Snippet struct {
					Title string `json:"title"`
				} `json:"snippet"`
			} `json:"items"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(err)
		}
		if len(out.Items) == 0 {
			return backoff.Permanent(fmt.Errorf("video %s: %w", videoID, domain.ErrNotFound))
		}
		title = out.Items[0].Snippet.Title
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, 3), ctx)); err != nil {
		return "", fmt.Errorf("op=platform.video_title video=%s: %w", videoID, err)
	}
	return title, nil
}

// VerifyAccount resolves the channel bound to the access token.
func (c *Client) VerifyAccount(ctx domain.Context, hc *http.Client, accessToken string) (domain.ChannelInfo, error) {
	if hc == nil {
		hc = c.hc
	}
	endpoint := c.BaseURL + "/channels?part=snippet,statistics&mine=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("op=platform.verify: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", c.agent())
	start := time.Now()
	resp, err := hc.Do(req)
	observability.UpstreamRequestDuration.WithLabelValues("channels.list").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("op=platform.verify: %w: %v", domain.ErrProxyUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet := readSnippet(resp.Body, 512)
		return domain.ChannelInfo{}, fmt.Errorf("op=platform.verify status=%d: %w: %s", resp.StatusCode, classify(resp.StatusCode, snippet), snippet)
	}
	var out struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
			Statistics struct {
				SubscriberCount string `json:"subscriberCount"`
				VideoCount      string `json:"videoCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("op=platform.verify: decode: %w", err)
	}
	if len(out.Items) == 0 {
		return domain.ChannelInfo{}, fmt.Errorf("op=platform.verify: %w: no channel for token", domain.ErrNotFound)
	}
	info := domain.ChannelInfo{
		ChannelID: out.Items[0].ID,
		Title:     out.Items[0].Snippet.Title,
	}
	_, _ = fmt.Sscanf(out.Items[0].Statistics.SubscriberCount, "%d", &info.Subscribers)
	_, _ = fmt.Sscanf(out.Items[0].Statistics.VideoCount, "%d", &info.VideoCount)
	return info, nil
}

var _ domain.PlatformAPI = (*Client)(nil)
