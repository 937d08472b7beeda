package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luccasmb/protocol-desk/internal/models"
	"github.com/luccasmb/protocol-desk/internal/service"
	appErrors "github.com/luccasmb/protocol-desk/pkg/errors"
	"github.com/luccasmb/protocol-desk/pkg/response"
)

type attachmentDownloader interface {
	SignDownload(att models.Attachment) (string, time.Time, error)
	OpenDownload(token string) (*service.Download, error)
}

// AttachmentHandler serves attachment download links and content.
type AttachmentHandler struct {
	store       protocolStore
	attachments attachmentDownloader
	apiPrefix   string
}

// NewAttachmentHandler builds a new handler.
func NewAttachmentHandler(store protocolStore, attachments attachmentDownloader, apiPrefix string) *AttachmentHandler {
	return &AttachmentHandler{store: store, attachments: attachments, apiPrefix: apiPrefix}
}

// SignURL returns a time-limited download URL for one attachment.
func (h *AttachmentHandler) SignURL(c *gin.Context) {
	protocol, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	attachmentID := c.Param("attachmentID")
	for _, att := range protocol.Attachments {
		if att.ID != attachmentID {
			continue
		}
		token, expiresAt, signErr := h.attachments.SignDownload(att)
		if signErr != nil {
			response.Error(c, appErrors.Wrap(signErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url"))
			return
		}
		response.JSON(c, http.StatusOK, gin.H{
			"url":        fmt.Sprintf("%s/attachments/download?token=%s", h.apiPrefix, token),
			"filename":   att.Filename,
			"expires_at": expiresAt,
		})
		return
	}
	response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "attachment not found"))
}

// Download streams the attachment content referenced by a signed token.
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "download token required"))
		return
	}
	download, err := h.attachments.OpenDownload(token)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, http.StatusNotFound, "attachment unavailable"))
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.DataFromReader(
		http.StatusOK,
		download.SizeBytes,
		"application/octet-stream",
		download.File,
		map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
		},
	)
}
