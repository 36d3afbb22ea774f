package cafe24

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tijuri/cafe24-gateway/internal/config"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
)

// in-memory repo for wiring a Store without Mongo
type memRepo struct {
	mu  sync.Mutex
	rec *tokenstore.Record
}

func (m *memRepo) Load(ctx context.Context) (*tokenstore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, nil
}

func (m *memRepo) ensure() *tokenstore.Record {
	if m.rec == nil {
		m.rec = &tokenstore.Record{ID: tokenstore.DocumentID, CreatedAt: time.Now().UTC()}
	}
	m.rec.UpdatedAt = time.Now().UTC()
	return m.rec
}

func (m *memRepo) MergeAccessToken(ctx context.Context, at *tokenstore.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure().AccessToken = at
	return nil
}

func (m *memRepo) SetRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure().RefreshToken = token
	return nil
}

func (m *memRepo) ClearAccessToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec != nil {
		m.rec.AccessToken = nil
	}
	return nil
}

func testClient(store *tokenstore.Store) *Client {
	return NewClient(config.Cafe24Config{
		MallID:       "testmall",
		ClientID:     "cid",
		ClientSecret: "csecret",
		APIVersion:   "2025-06-01",
	}, store)
}

func seedAccessToken(t *testing.T, repo *memRepo, token string, ttl time.Duration) {
	t.Helper()
	require.NoError(t, repo.MergeAccessToken(context.Background(), &tokenstore.AccessToken{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}))
}

func TestAuthorizationURL(t *testing.T) {
	c := testClient(tokenstore.New(&memRepo{}))

	raw := c.AuthorizationURL("https://example.com/auth/callback", "mall.read_product mall.write_community")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "testmall.cafe24api.com", u.Host)
	assert.Equal(t, "/api/v2/oauth/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "https://example.com/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "testmall", q.Get("state"))
	assert.Equal(t, "mall.read_product mall.write_community", q.Get("scope"))
}

func TestExchangeCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "expected HTTP Basic client auth")
		assert.Equal(t, "cid", user)
		assert.Equal(t, "csecret", pass)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc123", r.PostForm.Get("code"))
		assert.Equal(t, "http://cb", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "AT1", "refresh_token": "RT1", "expires_in": 7200,
		})
	}))
	defer srv.Close()

	c := testClient(tokenstore.New(&memRepo{})).WithBaseURL(srv.URL)
	grant, err := c.ExchangeCode(context.Background(), "abc123", "http://cb")
	require.NoError(t, err)
	assert.Equal(t, "AT1", grant.AccessToken)
	assert.Equal(t, "RT1", grant.RefreshToken)
	assert.Equal(t, int64(7200), grant.ExpiresIn)
}

func TestExchangeCode_SubstitutesMissingExpiresIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AT1","refresh_token":"RT1"}`))
	}))
	defer srv.Close()

	c := testClient(tokenstore.New(&memRepo{})).WithBaseURL(srv.URL)
	grant, err := c.ExchangeCode(context.Background(), "abc", "http://cb")
	require.NoError(t, err)
	assert.Equal(t, int64(tokenstore.DefaultExpiresIn), grant.ExpiresIn)
}

func TestExchangeCode_VendorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"authorization code expired"}`))
	}))
	defer srv.Close()

	c := testClient(tokenstore.New(&memRepo{})).WithBaseURL(srv.URL)
	_, err := c.ExchangeCode(context.Background(), "stale", "http://cb")
	var ae *AuthExchangeError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "invalid_grant", ae.Code)
	assert.Contains(t, ae.Description, "expired")
}

func TestRefreshAccessToken_NoRefreshToken(t *testing.T) {
	c := testClient(tokenstore.New(&memRepo{}))
	_, err := c.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefreshAccessToken_PersistsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "RT-old", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "AT-new", "refresh_token": "RT-new", "expires_in": 3600,
		})
	}))
	defer srv.Close()

	repo := &memRepo{}
	store := tokenstore.New(repo)
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT-old"))

	c := testClient(store).WithBaseURL(srv.URL)
	grant, err := c.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT-new", grant.AccessToken)

	at, err := store.GetAccessToken(context.Background())
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, "AT-new", at.Token)

	rt, err := store.GetRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RT-new", rt)
}

func TestRefreshAccessToken_RetainsRefreshTokenWhenOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "AT-new", "expires_in": 3600,
		})
	}))
	defer srv.Close()

	repo := &memRepo{}
	store := tokenstore.New(repo)
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT-stable"))

	c := testClient(store).WithBaseURL(srv.URL)
	_, err := c.RefreshAccessToken(context.Background())
	require.NoError(t, err)

	rt, err := store.GetRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RT-stable", rt, "an omitted refresh token must never clear the stored one")
}

func TestValidAccessToken_ProactiveRefreshAtFiveMinutes(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "AT-fresh", "expires_in": 7200,
		})
	}))
	defer srv.Close()

	repo := &memRepo{}
	store := tokenstore.New(repo)
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT"))
	seedAccessToken(t, repo, "AT-aging", 4*time.Minute)

	c := testClient(store).WithBaseURL(srv.URL)
	tok, err := c.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT-fresh", tok)
	assert.Equal(t, 1, refreshes, "4 minutes remaining should trigger exactly one refresh")
}

func TestValidAccessToken_ThresholdUsesStoreClock(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "AT-fresh", "expires_in": 7200,
		})
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &memRepo{}
	store := tokenstore.New(repo).WithClock(func() time.Time { return now })
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT"))
	require.NoError(t, repo.MergeAccessToken(context.Background(), &tokenstore.AccessToken{
		Token:     "AT-aging",
		ExpiresAt: now.Add(4 * time.Minute).UnixMilli(),
	}))

	c := testClient(store).WithBaseURL(srv.URL)
	tok, err := c.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT-fresh", tok)
	assert.Equal(t, 1, refreshes, "the proactive threshold must follow the pinned clock")

	// 10 minutes on the same pinned clock stays below the threshold
	refreshes = 0
	require.NoError(t, repo.MergeAccessToken(context.Background(), &tokenstore.AccessToken{
		Token:     "AT-roomy",
		ExpiresAt: now.Add(10 * time.Minute).UnixMilli(),
	}))
	tok, err = c.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT-roomy", tok)
	assert.Zero(t, refreshes)
}

func TestValidAccessToken_NoRefreshWhenPlentyLeft(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
	}))
	defer srv.Close()

	repo := &memRepo{}
	store := tokenstore.New(repo)
	seedAccessToken(t, repo, "AT-good", 10*time.Minute)

	c := testClient(store).WithBaseURL(srv.URL)
	tok, err := c.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AT-good", tok)
	assert.Zero(t, refreshes, "10 minutes remaining should not refresh")
}

func TestValidAccessToken_ProactiveFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer srv.Close()

	repo := &memRepo{}
	store := tokenstore.New(repo)
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT"))
	seedAccessToken(t, repo, "AT-aging", 4*time.Minute)

	c := testClient(store).WithBaseURL(srv.URL)
	tok, err := c.ValidAccessToken(context.Background())
	require.NoError(t, err, "a failed proactive refresh must not fail the caller")
	assert.Equal(t, "AT-aging", tok)
}

func TestValidAccessToken_AbsentAndUnrefreshable(t *testing.T) {
	c := testClient(tokenstore.New(&memRepo{}))
	_, err := c.ValidAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrReauthenticationRequired)
}

func TestAPIRequest_Success(t *testing.T) {
	repo := &memRepo{}
	store := tokenstore.New(repo)
	seedAccessToken(t, repo, "AT1", time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		assert.Equal(t, "2025-06-01", r.Header.Get("X-Cafe24-Api-Version"))
		assert.Equal(t, "/api/v2/admin/shop", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shop":{"shop_no":1}}`))
	}))
	defer srv.Close()

	c := testClient(store).WithBaseURL(srv.URL)
	raw, err := c.APIRequest(context.Background(), http.MethodGet, "/api/v2/admin/shop", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shop":{"shop_no":1}}`, string(raw))
}

func TestAPIRequest_RetriesOnceOnInvalidToken(t *testing.T) {
	repo := &memRepo{}
	store := tokenstore.New(repo)
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT"))
	seedAccessToken(t, repo, "AT-stale", time.Hour)

	apiCalls := 0
	refreshCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/oauth/token" {
			refreshCalls++
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "AT-stale-again", "expires_in": 7200,
			})
			return
		}
		apiCalls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	c := testClient(store).WithBaseURL(srv.URL)
	_, err := c.APIRequest(context.Background(), http.MethodGet, "/api/v2/admin/shop", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 2, apiCalls, "exactly one retry: two attempts total")
	assert.Equal(t, 1, refreshCalls)
}

func TestAPIRequest_RetrySucceeds(t *testing.T) {
	repo := &memRepo{}
	store := tokenstore.New(repo)
	require.NoError(t, store.SaveRefreshToken(context.Background(), "RT"))
	seedAccessToken(t, repo, "AT-stale", time.Hour)

	apiCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/oauth/token" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "AT-fresh", "expires_in": 7200,
			})
			return
		}
		apiCalls++
		if r.Header.Get("Authorization") == "Bearer AT-fresh" {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	c := testClient(store).WithBaseURL(srv.URL)
	raw, err := c.APIRequest(context.Background(), http.MethodGet, "/api/v2/admin/products", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 2, apiCalls)
}

func TestAPIRequest_OtherErrorsAreNotRetried(t *testing.T) {
	repo := &memRepo{}
	store := tokenstore.New(repo)
	seedAccessToken(t, repo, "AT1", time.Hour)

	apiCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"board not found"}}`))
	}))
	defer srv.Close()

	c := testClient(store).WithBaseURL(srv.URL)
	_, err := c.APIRequest(context.Background(), http.MethodPost, "/api/v2/admin/boards/99/articles", []byte(`{}`))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, string(apiErr.Body), "board not found")
	assert.Equal(t, 1, apiCalls)
}
