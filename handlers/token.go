package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tijuri/cafe24-gateway/internal/scheduler"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
	"github.com/tijuri/cafe24-gateway/pkg/logger"
)

// TokenHandler exposes the stored credential for inspection and maintenance.
// The mutating routes are meant to sit behind the admin guard.
type TokenHandler struct {
	store *tokenstore.Store
	sched *scheduler.Scheduler
}

func NewTokenHandler(store *tokenstore.Store, sched *scheduler.Scheduler) *TokenHandler {
	return &TokenHandler{store: store, sched: sched}
}

// Register routes under /token. guard protects the mutating routes; pass a
// pass-through handler to disable.
func (h *TokenHandler) Register(rg *gin.RouterGroup, guard gin.HandlerFunc) {
	t := rg.Group("/token")
	t.GET("", h.GetToken)
	t.GET("/status", h.Status)
	t.POST("", guard, h.SeedToken)
	t.POST("/refresh", guard, h.Refresh)
}

// SeedToken stores an externally obtained access token. Used for initial
// bootstrap or manual recovery when the consent flow cannot be rerun.
func (h *TokenHandler) SeedToken(c *gin.Context) {
	var req struct {
		AccessToken  string `json:"accessToken" binding:"required"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accessToken is required"})
		return
	}

	if err := h.store.SaveAccessToken(c.Request.Context(), req.AccessToken, req.ExpiresIn); err != nil {
		logger.Errorf("seeding access token failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save token"})
		return
	}
	if req.RefreshToken != "" {
		if err := h.store.SaveRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
			logger.Errorf("seeding refresh token failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save token"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "token saved"})
}

// GetToken returns the stored access token while it is still usable.
func (h *TokenHandler) GetToken(c *gin.Context) {
	at, err := h.store.GetAccessToken(c.Request.Context())
	if err != nil {
		logger.Errorf("token read failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read token"})
		return
	}
	if at == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no valid access token stored"})
		return
	}
	minutesLeft, _ := h.store.MinutesLeft(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"accessToken": at.Token,
		"expiresAt":   time.UnixMilli(at.ExpiresAt).UTC().Format(time.RFC3339),
		"minutesLeft": minutesLeft,
	})
}

// Status reports the credential document's health without exposing secrets.
func (h *TokenHandler) Status(c *gin.Context) {
	diag := h.store.DiagnosticInfo(c.Request.Context())
	minutesLeft, hasToken := h.store.MinutesLeft(c.Request.Context())

	resp := gin.H{
		"valid":       hasToken,
		"diagnostics": diag,
	}
	if hasToken {
		resp["minutesLeft"] = minutesLeft
	}
	if h.sched != nil {
		resp["schedulerRunning"] = h.sched.Running()
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh forces one refresh cycle and reports whether it succeeded.
func (h *TokenHandler) Refresh(c *gin.Context) {
	if h.sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is not configured"})
		return
	}
	ok := h.sched.ManualRefresh(c.Request.Context())
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "token refresh failed"})
		return
	}
	minutesLeft, _ := h.store.MinutesLeft(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "minutesLeft": minutesLeft})
}
