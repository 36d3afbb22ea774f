package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tijuri/cafe24-gateway/internal/cafe24"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
	"github.com/tijuri/cafe24-gateway/pkg/logger"
)

// refreshThresholdMinutes is the precautionary threshold. Looser than the
// request-time check: this path only has to catch long-idle deployments.
const refreshThresholdMinutes = 30

// Refresher is the slice of the vendor client the scheduler needs.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) (*cafe24.TokenGrant, error)
}

// Scheduler periodically checks remaining token lifetime and refreshes ahead
// of expiry so an idle deployment never wakes up with a dead token. All
// failures are logged and swallowed; nothing here may take the process down.
type Scheduler struct {
	client        Refresher
	store         *tokenstore.Store
	checkInterval time.Duration
	logInterval   time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(client Refresher, store *tokenstore.Store, checkInterval, logInterval time.Duration) *Scheduler {
	return &Scheduler{
		client:        client,
		store:         store,
		checkInterval: checkInterval,
		logInterval:   logInterval,
	}
}

// Start launches the periodic checks. No-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		logger.Warnf("token scheduler already running")
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.wg.Add(2)
	go s.loop(s.checkInterval, s.checkAndRefresh)
	go s.loop(s.logInterval, s.logTokenStatus)
	logger.Infof("token scheduler started (check every %s, status log every %s)", s.checkInterval, s.logInterval)
}

// Stop cancels all scheduled activity. No-op when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		logger.Warnf("token scheduler is not running")
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logger.Infof("token scheduler stopped")
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(interval time.Duration, fn func(ctx context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// checkAndRefresh refreshes when the stored token is close to expiry.
func (s *Scheduler) checkAndRefresh(ctx context.Context) {
	minutesLeft, ok := s.store.MinutesLeft(ctx)
	if !ok {
		logger.Infof("scheduler: no stored access token to check")
		return
	}
	if minutesLeft > refreshThresholdMinutes {
		logger.Infof("scheduler: token healthy (%dmin remaining)", minutesLeft)
		return
	}
	logger.Infof("scheduler: token expires in %dmin, refreshing", minutesLeft)
	if _, err := s.client.RefreshAccessToken(ctx); err != nil {
		logger.Errorf("scheduler: automatic refresh failed: %v", err)
		return
	}
	logger.Infof("scheduler: automatic refresh complete")
}

// logTokenStatus emits a daily observability line with remaining lifetime.
func (s *Scheduler) logTokenStatus(ctx context.Context) {
	minutesLeft, ok := s.store.MinutesLeft(ctx)
	if !ok {
		logger.Infof("daily token status: no token stored")
		return
	}
	logger.Infof("daily token status: %dh %dmin remaining", minutesLeft/60, minutesLeft%60)
}

// ManualRefresh runs one refresh on demand and reports success; the status
// UI shows the boolean instead of an error payload.
func (s *Scheduler) ManualRefresh(ctx context.Context) bool {
	logger.Infof("manual token refresh requested")
	if _, err := s.client.RefreshAccessToken(ctx); err != nil {
		logger.Errorf("manual token refresh failed: %v", err)
		return false
	}
	logger.Infof("manual token refresh complete")
	return true
}
