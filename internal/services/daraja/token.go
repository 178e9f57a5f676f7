package daraja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/example/legionbilling/internal/metrics"
)

// TokenTTL is how long a fetched token is trusted. Daraja issues tokens valid
// for one hour.
const TokenTTL = 50 * time.Minute

var (
	// ErrTokenUnavailable is returned when no access token could be obtained.
	ErrTokenUnavailable = errors.New("daraja: access token unavailable")
	// ErrCredentialsMissing is wrapped by ErrTokenUnavailable when the
	// consumer key or secret is not configured at all.
	ErrCredentialsMissing = errors.New("daraja: consumer credentials are not configured")
)

// Token is a bearer credential and the instant it stops being trusted.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenProvider hands out bearer credentials for the gateway.
type TokenProvider interface {
	Get(ctx context.Context) (Token, error)
	Refresh(ctx context.Context) (Token, error)
}

// OAuthTokenProvider exchanges consumer credentials for an access token via
// basic auth and caches it until TokenTTL elapses.
type OAuthTokenProvider struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	metrics        *metrics.Metrics
	now            func() time.Time

	mu    sync.RWMutex
	token Token
}

// NewOAuthTokenProvider builds a provider against the Daraja base URL.
func NewOAuthTokenProvider(baseURL, consumerKey, consumerSecret string, httpClient *http.Client, m *metrics.Metrics) *OAuthTokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OAuthTokenProvider{
		baseURL:        baseURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     httpClient,
		metrics:        m,
		now:            time.Now,
	}
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
}

// Get returns the cached token, fetching a new one if it is missing or stale.
func (p *OAuthTokenProvider) Get(ctx context.Context) (Token, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token.Valid(p.now()) {
		return token, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if p.token.Valid(p.now()) {
		return p.token, nil
	}
	return p.fetchLocked(ctx)
}

// Refresh discards the cached token and fetches a new one.
func (p *OAuthTokenProvider) Refresh(ctx context.Context) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = Token{}
	return p.fetchLocked(ctx)
}

func (p *OAuthTokenProvider) fetchLocked(ctx context.Context) (Token, error) {
	if p.consumerKey == "" || p.consumerSecret == "" {
		return Token{}, fmt.Errorf("%w: %w", ErrTokenUnavailable, ErrCredentialsMissing)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return Token{}, fmt.Errorf("%w: create request: %v", ErrTokenUnavailable, err)
	}
	req.SetBasicAuth(p.consumerKey, p.consumerSecret)
	req.Header.Set("Content-Type", "application/json")

	p.metrics.TokenFetched()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("%w: read response: %v", ErrTokenUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, fmt.Errorf("%w: status %d, body: %s", ErrTokenUnavailable, resp.StatusCode, string(body))
	}

	var parsed oauthResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, fmt.Errorf("%w: decode response: %v", ErrTokenUnavailable, err)
	}
	if parsed.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: response missing access_token", ErrTokenUnavailable)
	}

	p.token = Token{Value: parsed.AccessToken, ExpiresAt: p.now().Add(TokenTTL)}
	return p.token, nil
}
