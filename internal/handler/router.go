package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the route handlers for registration.
type Handlers struct {
	Protocols   *ProtocolHandler
	Attachments *AttachmentHandler
	Exports     *ExportHandler
	Metrics     *MetricsHandler
}

// RegisterRoutes mounts the API under the given prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", h.Metrics.Scrape)
	}

	api := r.Group(prefix)

	protocols := api.Group("/protocols")
	protocols.GET("", h.Protocols.List)
	protocols.POST("", h.Protocols.Create)
	protocols.GET("/export", h.Exports.Export)
	protocols.GET("/:id", h.Protocols.Get)
	protocols.PUT("/:id", h.Protocols.Edit)
	protocols.DELETE("/:id", h.Protocols.Delete)
	protocols.PATCH("/:id/status", h.Protocols.UpdateStatus)
	protocols.PATCH("/:id/approvals", h.Protocols.UpdateApproval)
	if h.Attachments != nil {
		protocols.GET("/:id/attachments/:attachmentID/url", h.Attachments.SignURL)
		api.GET("/attachments/download", h.Attachments.Download)
	}
}
