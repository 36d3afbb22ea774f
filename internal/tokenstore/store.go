package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tijuri/cafe24-gateway/pkg/logger"
)

// Store owns the credential document. All other components go through it;
// nothing else touches the repository directly.
type Store struct {
	repo Repository
	now  func() time.Time
}

// New creates a Store over the given repository. A nil repository puts the
// store into "not configured" mode: reads report absent, writes fail with
// ErrNotConfigured.
func New(repo Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// WithClock overrides the store's clock; tests use this to pin expiry checks.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// SaveAccessToken computes the absolute expiry and merges the access-token
// pair into the document without clobbering the refresh token. A non-positive
// expiresIn is replaced with the vendor's nominal session length.
func (s *Store) SaveAccessToken(ctx context.Context, token string, expiresIn int64) error {
	if s.repo == nil {
		return ErrNotConfigured
	}
	if expiresIn <= 0 {
		logger.Warnf("invalid expires_in value %d, substituting default %ds", expiresIn, DefaultExpiresIn)
		expiresIn = DefaultExpiresIn
	}
	at := &AccessToken{
		Token:     token,
		ExpiresAt: s.nowMillis() + expiresIn*1000,
	}
	if err := s.repo.MergeAccessToken(ctx, at); err != nil {
		if isPermissionError(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("save access token: %w", err)
	}
	logger.Infof("access token saved (expires %s)", time.UnixMilli(at.ExpiresAt).UTC().Format(time.RFC3339))
	return nil
}

// SaveRefreshToken persists the refresh token, creating the document when
// none exists yet.
func (s *Store) SaveRefreshToken(ctx context.Context, token string) error {
	if s.repo == nil {
		return ErrNotConfigured
	}
	if err := s.repo.SetRefreshToken(ctx, token); err != nil {
		if isPermissionError(err) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// GetAccessToken returns the stored pair only while it is still usable:
// the expiry must be a positive instant strictly in the future. Expired and
// malformed records both read as absent; the record is never deleted here.
func (s *Store) GetAccessToken(ctx context.Context) (*AccessToken, error) {
	if s.repo == nil {
		return nil, nil
	}
	rec, err := s.repo.Load(ctx)
	if err != nil {
		if isPermissionError(err) {
			logger.Errorf("token read rejected by store access rules: %v", err)
			return nil, nil
		}
		return nil, fmt.Errorf("load token record: %w", err)
	}
	if rec == nil || rec.AccessToken == nil {
		return nil, nil
	}
	at := rec.AccessToken
	if at.ExpiresAt <= 0 {
		logger.Warnf("stored access token has invalid expires_at %d", at.ExpiresAt)
		return nil, nil
	}
	if at.ExpiresAt <= s.nowMillis() {
		logger.Debugf("stored access token expired at %d", at.ExpiresAt)
		return nil, nil
	}
	return at, nil
}

// GetRefreshToken returns the stored refresh token or "" when absent.
func (s *Store) GetRefreshToken(ctx context.Context) (string, error) {
	if s.repo == nil {
		return "", nil
	}
	rec, err := s.repo.Load(ctx)
	if err != nil {
		if isPermissionError(err) {
			logger.Errorf("token read rejected by store access rules: %v", err)
			return "", nil
		}
		return "", fmt.Errorf("load token record: %w", err)
	}
	if rec == nil {
		return "", nil
	}
	return rec.RefreshToken, nil
}

// IsAccessTokenValid reports whether a usable access token is stored.
func (s *Store) IsAccessTokenValid(ctx context.Context) bool {
	at, err := s.GetAccessToken(ctx)
	return err == nil && at != nil
}

// MinutesLeft returns whole minutes until expiry and whether a usable token
// exists at all.
func (s *Store) MinutesLeft(ctx context.Context) (int64, bool) {
	at, err := s.GetAccessToken(ctx)
	if err != nil || at == nil {
		return 0, false
	}
	return s.MinutesRemaining(at), true
}

// MinutesRemaining reports whole minutes until the given token's expiry on
// the store's clock, so callers stay consistent with the validity checks.
func (s *Store) MinutesRemaining(at *AccessToken) int64 {
	return (at.ExpiresAt - s.nowMillis()) / 60000
}

// CleanupInvalidTokenData removes an access-token field whose expiry is not a
// valid instant, leaving the refresh token untouched. Idempotent.
func (s *Store) CleanupInvalidTokenData(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	rec, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load token record: %w", err)
	}
	if rec == nil || rec.AccessToken == nil {
		return nil
	}
	if rec.AccessToken.ExpiresAt > 0 {
		return nil
	}
	logger.Warnf("clearing access token with invalid expires_at %d", rec.AccessToken.ExpiresAt)
	if err := s.repo.ClearAccessToken(ctx); err != nil {
		return fmt.Errorf("clear access token: %w", err)
	}
	return nil
}

// Diagnostics describes the store's state for the status endpoint. Failures
// are folded into the payload instead of being returned.
type Diagnostics struct {
	Provider         string `json:"provider"`
	Collection       string `json:"collection"`
	Document         string `json:"document"`
	Exists           bool   `json:"exists"`
	HasAccessToken   bool   `json:"hasAccessToken"`
	HasRefreshToken  bool   `json:"hasRefreshToken"`
	LastUpdated      string `json:"lastUpdated,omitempty"`
	Created          string `json:"created,omitempty"`
	Error            string `json:"error,omitempty"`
	PermissionDenied bool   `json:"permissionDenied,omitempty"`
	ConfigError      bool   `json:"configError,omitempty"`
}

// DiagnosticInfo never fails; every error class is reported in the payload.
func (s *Store) DiagnosticInfo(ctx context.Context) Diagnostics {
	d := Diagnostics{
		Provider:   "document-store",
		Collection: Collection,
		Document:   DocumentID,
	}
	if s.repo == nil {
		d.Error = ErrNotConfigured.Error()
		d.ConfigError = true
		return d
	}
	rec, err := s.repo.Load(ctx)
	if err != nil {
		if isPermissionError(err) {
			d.Error = "store access rules rejected the read"
			d.PermissionDenied = true
		} else {
			d.Error = err.Error()
		}
		return d
	}
	if rec == nil {
		return d
	}
	d.Exists = true
	d.HasAccessToken = rec.AccessToken != nil
	d.HasRefreshToken = rec.RefreshToken != ""
	if !rec.UpdatedAt.IsZero() {
		d.LastUpdated = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if !rec.CreatedAt.IsZero() {
		d.Created = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return d
}
