package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tijuri/cafe24-gateway/internal/cafe24"
	"github.com/tijuri/cafe24-gateway/internal/storage"
	"github.com/tijuri/cafe24-gateway/pkg/logger"
)

// maxUploadBytes caps storefront file uploads.
const maxUploadBytes = 10 << 20

// ExternalHandler serves the storefront-facing endpoints. These are called
// cross-origin by skin scripts, so responses never leak credentials or raw
// auth errors.
type ExternalHandler struct {
	client      *cafe24.Client
	attachments *storage.AttachmentStore
	relayURL    string
	httpc       *http.Client
}

func NewExternalHandler(client *cafe24.Client, attachments *storage.AttachmentStore, relayURL string) *ExternalHandler {
	return &ExternalHandler{
		client:      client,
		attachments: attachments,
		relayURL:    relayURL,
		httpc:       &http.Client{Timeout: 60 * time.Second},
	}
}

// Register routes under /external
func (h *ExternalHandler) Register(rg *gin.RouterGroup) {
	e := rg.Group("/external")
	e.POST("/boards", h.CreateBoardArticle)
	e.POST("/upload", h.Upload)
}

// CreateBoardArticle accepts a simplified article from a skin script and posts
// it to the vendor board API with the managed token.
func (h *ExternalHandler) CreateBoardArticle(c *gin.Context) {
	var req cafe24.ArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    err.Error(),
			"required": cafe24.RequiredArticleFields,
		})
		return
	}

	payload := req.BuildArticlePayload(c.ClientIP())
	body, err := jsonMarshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build request"})
		return
	}

	resp, err := h.client.APIRequest(c.Request.Context(), http.MethodPost, cafe24.ArticlesPath(req.BoardNo), body)
	if err != nil {
		renderStorefrontError(c, err, "board article create failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": json.RawMessage(resp)})
}

// Upload stores an attachment and returns a URL usable in attachFileUrls.
// Object storage is preferred; without it the file is relayed to the
// configured upload function with the caller's Authorization header intact.
func (h *ExternalHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	defer file.Close()
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	if h.attachments != nil {
		url, err := h.attachments.SaveAttachment(c.Request.Context(), header.Filename, file, header.Size, header.Header.Get("Content-Type"))
		if err != nil {
			logger.Errorf("attachment store failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url, "name": header.Filename})
		return
	}

	if h.relayURL == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload backend is not configured"})
		return
	}
	h.relayUpload(c, file, header.Filename)
}

// relayUpload forwards the file to the upload function as {fileName,
// base64Data} JSON and passes the response through verbatim.
func (h *ExternalHandler) relayUpload(c *gin.Context, file io.Reader, fileName string) {
	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	body, err := jsonMarshal(gin.H{
		"fileName":   fileName,
		"base64Data": base64.StdEncoding.EncodeToString(raw),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.relayURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := h.httpc.Do(req)
	if err != nil {
		logger.Errorf("upload relay failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload relay failed"})
		return
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload relay failed"})
		return
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	c.Data(resp.StatusCode, ct, b)
}

// renderStorefrontError folds every post-validation failure on the public
// route into a 500; skin scripts only distinguish "fix your input" (400) from
// "server problem" (500). Token lifecycle failures carry the message that
// tells the visitor to contact the mall operator.
func renderStorefrontError(c *gin.Context, err error, msg string) {
	if cafe24.IsAuthError(err) {
		logger.Errorf("%s: token lifecycle error: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "access token expired or missing, please contact the administrator",
		})
		return
	}
	var apiErr *cafe24.APIError
	if errors.As(err, &apiErr) {
		logger.Errorf("%s: vendor returned %d", msg, apiErr.Status)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg, "details": string(apiErr.Body)})
		return
	}
	logger.Errorf("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// renderVendorError serves the admin proxy routes, where the operator wants
// the vendor's own status preserved. Token lifecycle failures still get the
// admin-facing message.
func renderVendorError(c *gin.Context, err error, msg string) {
	if cafe24.IsAuthError(err) {
		logger.Errorf("%s: token lifecycle error: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "access token expired or missing, please contact the administrator",
		})
		return
	}
	var apiErr *cafe24.APIError
	if errors.As(err, &apiErr) {
		logger.Errorf("%s: vendor returned %d", msg, apiErr.Status)
		c.JSON(apiErr.Status, gin.H{"error": msg, "details": string(apiErr.Body)})
		return
	}
	logger.Errorf("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
