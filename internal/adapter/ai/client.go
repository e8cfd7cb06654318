// Package ai implements the comment generator on an OpenAI-compatible chat
// completions endpoint.
package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/commentflow/internal/config"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Client is a one-shot chat client. One user message in, one short comment
// out; the caller owns fallbacks.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a Client with the configured timeout.
func New(cfg config.Config) *Client {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateComment asks for one short, enthusiastic comment for the titled
// video and returns it trimmed.
func (c *Client) GenerateComment(ctx domain.Context, videoTitle string) (string, error) {
	if c.cfg.LLMAPIKey == "" {
		return "", fmt.Errorf("op=ai.generate: %w: LLM_API_KEY missing", domain.ErrInvalidArgument)
	}
	prompt := fmt.Sprintf("Write one short, enthusiastic comment for a video titled %q. Reply with the comment only.", videoTitle)
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.LLMModel,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.cfg.LLMMaxTokens,
		Temperature: c.cfg.LLMTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("op=ai.generate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.LLMBaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=ai.generate: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=ai.generate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("op=ai.generate status=%d: %w: %s", resp.StatusCode, domain.ErrUpstreamTimeout, snippet)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("op=ai.generate: decode: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("op=ai.generate: %w: empty choices", domain.ErrInternal)
	}
	out := strings.TrimSpace(cr.Choices[0].Message.Content)
	out = strings.Trim(out, `"`)
	if out == "" {
		return "", fmt.Errorf("op=ai.generate: %w: empty completion", domain.ErrInternal)
	}
	return out, nil
}

var _ domain.AIClient = (*Client)(nil)
