package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/tijuri/cafe24-gateway/internal/cafe24"
)

// jsonMarshal is an indirection point so handlers share one encoder.
func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// AdminAPIHandler proxies selected vendor Admin API resources for internal
// tooling. All routes sit behind the admin guard.
type AdminAPIHandler struct {
	client *cafe24.Client
}

func NewAdminAPIHandler(client *cafe24.Client) *AdminAPIHandler {
	return &AdminAPIHandler{client: client}
}

// Register routes under /api with the given guard.
func (h *AdminAPIHandler) Register(rg *gin.RouterGroup, guard gin.HandlerFunc) {
	a := rg.Group("/api", guard)
	a.GET("/shop", h.GetShop)
	a.GET("/products", h.ListProducts)
	a.POST("/products", h.CreateProduct)
	a.POST("/boards/:boardNo/articles", h.CreateArticle)
}

// GetShop returns the mall's store resource.
func (h *AdminAPIHandler) GetShop(c *gin.Context) {
	resp, err := h.client.APIRequest(c.Request.Context(), http.MethodGet, "/api/v2/admin/store", nil)
	if err != nil {
		renderVendorError(c, err, "store lookup failed")
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

// listProductsParams are the query params passed through to the vendor.
var listProductsParams = []string{"limit", "offset", "product_name", "category", "display", "selling"}

// ListProducts forwards a filtered product listing.
func (h *AdminAPIHandler) ListProducts(c *gin.Context) {
	q := url.Values{}
	for _, p := range listProductsParams {
		if v := c.Query(p); v != "" {
			q.Set(p, v)
		}
	}
	path := "/api/v2/admin/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	resp, err := h.client.APIRequest(c.Request.Context(), http.MethodGet, path, nil)
	if err != nil {
		renderVendorError(c, err, "product listing failed")
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

// CreateProduct forwards a product create payload unchanged.
func (h *AdminAPIHandler) CreateProduct(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is required"})
		return
	}
	resp, err := h.client.APIRequest(c.Request.Context(), http.MethodPost, "/api/v2/admin/products", body)
	if err != nil {
		renderVendorError(c, err, "product create failed")
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}

// CreateArticle posts a raw article payload to the given board. Unlike the
// storefront route this passes the vendor schema through untouched.
func (h *AdminAPIHandler) CreateArticle(c *gin.Context) {
	boardNo := c.Param("boardNo")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is required"})
		return
	}
	resp, err := h.client.APIRequest(c.Request.Context(), http.MethodPost, cafe24.ArticlesPath(boardNo), body)
	if err != nil {
		renderVendorError(c, err, "article create failed")
		return
	}
	c.Data(http.StatusOK, "application/json", resp)
}
