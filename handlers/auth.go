package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/tijuri/cafe24-gateway/internal/cafe24"
	"github.com/tijuri/cafe24-gateway/internal/config"
	"github.com/tijuri/cafe24-gateway/internal/tokenstore"
	"github.com/tijuri/cafe24-gateway/pkg/logger"
)

// AuthHandler serves the vendor OAuth consent flow: building the
// authorization URL and receiving the callback.
type AuthHandler struct {
	cfg    *config.Config
	client *cafe24.Client
	store  *tokenstore.Store
}

func NewAuthHandler(cfg *config.Config, client *cafe24.Client, store *tokenstore.Store) *AuthHandler {
	return &AuthHandler{cfg: cfg, client: client, store: store}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.GET("/url", h.AuthURL)
	a.GET("/callback", h.Callback)
	a.POST("/callback", h.Callback)
}

// AuthURL returns the consent-screen URL the operator opens in a browser.
func (h *AuthHandler) AuthURL(c *gin.Context) {
	if !h.cfg.Cafe24Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cafe24 app credentials are not configured"})
		return
	}
	authURL := h.client.AuthorizationURL(h.cfg.Cafe24.RedirectURI, h.cfg.Cafe24.Scope)
	c.JSON(http.StatusOK, gin.H{"authUrl": authURL})
}

// Callback receives the authorization code, exchanges it and persists the
// resulting token pair. Browser GETs are redirected back to the app page with
// the outcome in query params; API POSTs get JSON.
func (h *AuthHandler) Callback(c *gin.Context) {
	if vendorErr := c.Query("error"); vendorErr != "" {
		msg := c.Query("error_description")
		if msg == "" {
			msg = vendorErr
		}
		logger.Warnf("authorization denied by vendor: %s", msg)
		h.finish(c, false, msg)
		return
	}

	code := c.Query("code")
	if code == "" && c.Request.Method == http.MethodPost {
		var body struct {
			Code string `json:"code"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			code = body.Code
		}
	}
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code is required"})
		return
	}

	grant, err := h.client.ExchangeCode(c.Request.Context(), code, h.cfg.Cafe24.RedirectURI)
	if err != nil {
		logger.Errorf("authorization code exchange failed: %v", err)
		h.finish(c, false, "token exchange failed")
		return
	}

	if err := h.store.SaveAccessToken(c.Request.Context(), grant.AccessToken, grant.ExpiresIn); err != nil {
		logger.Errorf("saving access token failed: %v", err)
		h.finish(c, false, "failed to save token")
		return
	}
	if grant.RefreshToken != "" {
		if err := h.store.SaveRefreshToken(c.Request.Context(), grant.RefreshToken); err != nil {
			logger.Errorf("saving refresh token failed: %v", err)
			h.finish(c, false, "failed to save token")
			return
		}
	}

	logger.Infof("authorization completed, token pair stored")
	h.finish(c, true, "")
}

// finish ends the callback either as a redirect (browser flow) or JSON. A
// browser GET always redirects; with no app URL configured it falls back to
// the service root so the flow never dead-ends on raw JSON.
func (h *AuthHandler) finish(c *gin.Context, ok bool, message string) {
	if c.Request.Method == http.MethodGet {
		target := h.cfg.Cafe24.AppURL
		if target == "" {
			logger.Warnf("APP_URL is not set, redirecting auth callback to /")
			target = "/"
		}
		if ok {
			target += "?success=true"
		} else {
			target += "?error=" + url.QueryEscape(message)
		}
		c.Redirect(http.StatusFound, target)
		return
	}
	if ok {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "authentication completed"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": message})
}
