package cafe24

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tijuri/cafe24-gateway/internal/config"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
	"github.com/tijuri/cafe24-gateway/pkg/logger"
	"github.com/tijuri/cafe24-gateway/pkg/metrics"
)

// proactiveRefreshMinutes is the request-time threshold: a token with this
// many minutes (or fewer) left is refreshed before use.
const proactiveRefreshMinutes = 5

// TokenGrant is a normalized vendor token response; ExpiresIn has already
// been validated (the vendor contract is not fully trusted).
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// tokenResponse is the raw wire shape. expires_in is kept loose because the
// vendor has been observed to omit or mangle it.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
	Error        string      `json:"error"`
	ErrorDesc    string      `json:"error_description"`
}

// Client performs the vendor OAuth operations and authenticated Admin API
// calls for a single mall. All token state lives in the Store; the client
// itself is stateless and safe for concurrent use.
type Client struct {
	mallID       string
	clientID     string
	clientSecret string
	apiVersion   string
	store        *tokenstore.Store
	httpc        *http.Client
	baseURL      string
}

// NewClient builds a client from the mall's OAuth app configuration.
func NewClient(cfg config.Cafe24Config, store *tokenstore.Store) *Client {
	return &Client{
		mallID:       cfg.MallID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiVersion:   cfg.APIVersion,
		store:        store,
		httpc:        &http.Client{Timeout: 30 * time.Second},
		baseURL:      fmt.Sprintf("https://%s.cafe24api.com", cfg.MallID),
	}
}

// WithBaseURL overrides the vendor base URL; tests point this at httptest servers.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// WithHTTPClient overrides the transport.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpc = h
	return c
}

// AuthorizationURL builds the consent-screen URL for the authorization-code
// flow. state carries the mall id for context binding; it is not a random
// nonce, so it offers no CSRF protection (kept as-is from the shipped app).
func (c *Client) AuthorizationURL(redirectURI, scope string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("state", c.mallID)
	params.Set("scope", scope)
	return c.baseURL + "/api/v2/oauth/authorize?" + params.Encode()
}

// tokenRequest posts a form to the vendor token endpoint with HTTP Basic
// client authentication and decodes the response.
func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("token endpoint read: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("token endpoint decode: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthExchangeError{Status: resp.StatusCode, Code: tr.Error, Description: tr.ErrorDesc}
	}
	return &tr, nil
}

// normalizeExpiresIn validates the vendor-supplied lifetime and substitutes
// the nominal session length when it is missing or unparsable. The
// substitution is logged so it can be asserted on.
func normalizeExpiresIn(raw json.Number) int64 {
	if raw.String() == "" {
		logger.Warnf("vendor token response missing expires_in, substituting default %ds", tokenstore.DefaultExpiresIn)
		return tokenstore.DefaultExpiresIn
	}
	v, err := raw.Int64()
	if err != nil || v <= 0 {
		logger.Warnf("vendor token response carried invalid expires_in %q, substituting default %ds", raw.String(), tokenstore.DefaultExpiresIn)
		return tokenstore.DefaultExpiresIn
	}
	return v
}

// ExchangeCode exchanges an authorization code for tokens. It does not
// persist them; the callback handler owns that step.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	logger.Infof("exchanging authorization code (redirect_uri=%s)", redirectURI)
	tr, err := c.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}
	return &TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    normalizeExpiresIn(tr.ExpiresIn),
	}, nil
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token and persists the result before returning. The write is part of the
// operation's contract: a successful refresh is never left unsaved.
func (c *Client) RefreshAccessToken(ctx context.Context) (*TokenGrant, error) {
	refreshToken, err := c.store.GetRefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	tr, err := c.tokenRequest(ctx, form)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, err
	}
	grant := &TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    normalizeExpiresIn(tr.ExpiresIn),
	}

	if err := c.store.SaveAccessToken(ctx, grant.AccessToken, grant.ExpiresIn); err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, err
	}
	// the vendor may keep the refresh token stable; only replace it when a
	// new one was issued, never clear it
	if grant.RefreshToken != "" {
		if err := c.store.SaveRefreshToken(ctx, grant.RefreshToken); err != nil {
			metrics.TokenRefreshes.WithLabelValues("failure").Inc()
			return nil, err
		}
	}
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logger.Infof("access token refreshed (expires_in=%ds)", grant.ExpiresIn)
	return grant, nil
}

// ValidAccessToken returns a token usable for an Admin API call, refreshing
// when none is stored or when expiry is near. A failed proactive refresh
// falls back to the still-valid stored token: availability over freshness.
func (c *Client) ValidAccessToken(ctx context.Context) (string, error) {
	at, err := c.store.GetAccessToken(ctx)
	if err != nil {
		return "", err
	}

	if at == nil {
		logger.Infof("no usable access token stored, attempting refresh")
		grant, err := c.RefreshAccessToken(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrReauthenticationRequired, err)
		}
		return grant.AccessToken, nil
	}

	minutesLeft := c.store.MinutesRemaining(at)
	if minutesLeft <= proactiveRefreshMinutes {
		logger.Infof("access token expires in %dmin, refreshing ahead of time", minutesLeft)
		grant, err := c.RefreshAccessToken(ctx)
		if err != nil {
			logger.Warnf("proactive refresh failed, using remaining token: %v", err)
			return at.Token, nil
		}
		return grant.AccessToken, nil
	}

	return at.Token, nil
}

// APIRequest performs an authenticated Admin API call. On a 401 with an
// invalid_token body it refreshes unconditionally and resends the identical
// request exactly once; the retried response is final either way.
func (c *Client) APIRequest(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	accessToken, err := c.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	status, respBody, err := c.doAPICall(ctx, method, path, body, accessToken)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && isInvalidTokenBody(respBody) {
		logger.Infof("401 invalid_token from vendor, refreshing and retrying once")
		metrics.VendorAPIRetries.Inc()
		grant, err := c.RefreshAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		status, respBody, err = c.doAPICall(ctx, method, path, body, grant.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	metrics.VendorAPIRequests.WithLabelValues(statusClass(status)).Inc()
	if status < 200 || status >= 300 {
		return nil, &APIError{
			Status:     status,
			StatusText: http.StatusText(status),
			Body:       respBody,
			Method:     method,
			Path:       path,
		}
	}
	return respBody, nil
}

func (c *Client) doAPICall(ctx context.Context, method, path string, body []byte, accessToken string) (int, json.RawMessage, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cafe24-Api-Version", c.apiVersion)

	logger.Debugf("vendor api request: %s %s", method, path)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("vendor api request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("vendor api read: %w", err)
	}
	logger.Debugf("vendor api response: %d (%d bytes)", resp.StatusCode, len(b))
	return resp.StatusCode, b, nil
}

// isInvalidTokenBody checks for the vendor's invalid_token error shape; only
// that exact class triggers the refresh-and-retry path.
func isInvalidTokenBody(body []byte) bool {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error == "invalid_token"
}

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	}
	return "other"
}
