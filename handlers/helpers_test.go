package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tijuri/cafe24-gateway/internal/cafe24"
	"github.com/tijuri/cafe24-gateway/internal/config"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRepo is an in-memory token repository shared by the handler tests.
type fakeRepo struct {
	mu  sync.Mutex
	rec *tokenstore.Record
}

func (f *fakeRepo) Load(ctx context.Context) (*tokenstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		return nil, nil
	}
	cp := *f.rec
	if f.rec.AccessToken != nil {
		at := *f.rec.AccessToken
		cp.AccessToken = &at
	}
	return &cp, nil
}

func (f *fakeRepo) MergeAccessToken(ctx context.Context, at *tokenstore.AccessToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		f.rec = &tokenstore.Record{ID: tokenstore.DocumentID, CreatedAt: time.Now()}
	}
	f.rec.AccessToken = at
	f.rec.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) SetRefreshToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		f.rec = &tokenstore.Record{ID: tokenstore.DocumentID, CreatedAt: time.Now()}
	}
	f.rec.RefreshToken = token
	f.rec.UpdatedAt = time.Now()
	return nil
}

func (f *fakeRepo) ClearAccessToken(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec != nil {
		f.rec.AccessToken = nil
	}
	return nil
}

func (f *fakeRepo) seedAccess(token string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		f.rec = &tokenstore.Record{ID: tokenstore.DocumentID}
	}
	f.rec.AccessToken = &tokenstore.AccessToken{Token: token, ExpiresAt: time.Now().Add(ttl).UnixMilli()}
}

func (f *fakeRepo) seedRefresh(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		f.rec = &tokenstore.Record{ID: tokenstore.DocumentID}
	}
	f.rec.RefreshToken = token
}

func testConfig() *config.Config {
	return &config.Config{
		Cafe24: config.Cafe24Config{
			MallID:       "testmall",
			ClientID:     "cid",
			ClientSecret: "csecret",
			RedirectURI:  "https://broker.example.com/auth/callback",
			Scope:        "mall.read_community mall.write_community",
			APIVersion:   "2025-06-01",
		},
	}
}

func testClient(cfg *config.Config, store *tokenstore.Store, vendorURL string) *cafe24.Client {
	return cafe24.NewClient(cfg.Cafe24, store).WithBaseURL(vendorURL)
}

// passGuard is the no-auth guard used when the test is not about the guard.
func passGuard(c *gin.Context) { c.Next() }
