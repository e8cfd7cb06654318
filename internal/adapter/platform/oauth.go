package platform

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Broker refreshes OAuth access tokens against the platform's token
// endpoint. It returns new token material and never persists anything
// itself; the caller owns the write.
type Broker struct {
	TokenURL string
	hc       *http.Client
}

// NewBroker builds a Broker with a 15s client timeout.
func NewBroker(tokenURL string) *Broker {
	return &Broker{TokenURL: tokenURL, hc: &http.Client{Timeout: 15 * time.Second}}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiryDate  int64  `json:"expiry_date"` // epoch millis, some gateways return this instead
}

// Refresh exchanges the account's refresh token for fresh access material.
func (b *Broker) Refresh(ctx domain.Context, account domain.Account, profile domain.APIProfile) (domain.TokenMaterial, error) {
	if account.RefreshToken == "" {
		return domain.TokenMaterial{}, fmt.Errorf("op=oauth.refresh account=%s: %w: refresh token missing", account.ID, domain.ErrTokenRefresh)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", account.RefreshToken)
	form.Set("client_id", profile.ClientID)
	form.Set("client_secret", profile.ClientSecret)
	if profile.RedirectURI != "" {
		form.Set("redirect_uri", profile.RedirectURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenMaterial{}, fmt.Errorf("op=oauth.refresh: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.hc.Do(req)
	if err != nil {
		return domain.TokenMaterial{}, fmt.Errorf("op=oauth.refresh account=%s: %w: %v", account.ID, domain.ErrTokenRefresh, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet := readSnippet(resp.Body, 512)
		return domain.TokenMaterial{}, fmt.Errorf("op=oauth.refresh account=%s status=%d: %w: %s", account.ID, resp.StatusCode, domain.ErrTokenRefresh, snippet)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.TokenMaterial{}, fmt.Errorf("op=oauth.refresh account=%s: %w: decode: %v", account.ID, domain.ErrTokenRefresh, err)
	}
	if tr.AccessToken == "" {
		return domain.TokenMaterial{}, fmt.Errorf("op=oauth.refresh account=%s: %w: empty access token", account.ID, domain.ErrTokenRefresh)
	}

	expiry := time.Now().Add(time.Hour) // default when the response omits lifetime
	switch {
	case tr.ExpiryDate > 0:
		expiry = time.UnixMilli(tr.ExpiryDate)
	case tr.ExpiresIn > 0:
		expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return domain.TokenMaterial{AccessToken: tr.AccessToken, Expiry: expiry}, nil
}

var _ domain.TokenBroker = (*Broker)(nil)
