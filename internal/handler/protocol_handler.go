package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/luccasmb/protocol-desk/internal/dto"
	"github.com/luccasmb/protocol-desk/internal/models"
	"github.com/luccasmb/protocol-desk/internal/service"
	appErrors "github.com/luccasmb/protocol-desk/pkg/errors"
	"github.com/luccasmb/protocol-desk/pkg/response"
)

type protocolStore interface {
	Create(ctx context.Context, req dto.CreateProtocolRequest, staged []models.Attachment, actor string) (*models.Protocol, error)
	UpdateStatus(ctx context.Context, id string, newStatus models.ProcessStatus, actor string) (*models.Protocol, error)
	UpdateApproval(ctx context.Context, id string, field models.ApprovalField, value models.ApprovalState, actor string) (*models.Protocol, error)
	Edit(ctx context.Context, id string, patch dto.EditProtocolRequest, newAttachments []models.Attachment, actor string) (*models.Protocol, error)
	Delete(ctx context.Context, id string, actor string) error
	Get(ctx context.Context, id string) (*models.Protocol, error)
	List(ctx context.Context, filter models.ProtocolFilter) ([]models.Protocol, error)
}

type attachmentIngestor interface {
	Ingest(ctx context.Context, uploads []service.Upload, actor string) []models.Attachment
	PurgeAsync(paths []string)
}

// ProtocolHandler exposes the protocol store over HTTP.
type ProtocolHandler struct {
	store       protocolStore
	attachments attachmentIngestor
}

// NewProtocolHandler builds a new handler.
func NewProtocolHandler(store protocolStore, attachments attachmentIngestor) *ProtocolHandler {
	return &ProtocolHandler{store: store, attachments: attachments}
}

// List returns protocols filtered by status and search text, newest first.
func (h *ProtocolHandler) List(c *gin.Context) {
	var query dto.ProtocolQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid list query"))
		return
	}
	protocols, err := h.store.List(c.Request.Context(), models.ProtocolFilter{
		Status: query.Status,
		Search: query.Search,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocols, map[string]interface{}{"count": len(protocols)})
}

// Get returns one protocol by internal id.
func (h *ProtocolHandler) Get(c *gin.Context) {
	protocol, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocol)
}

// Create opens a new protocol. Accepts JSON, or multipart form data with
// staged files under the "attachments" field.
func (h *ProtocolHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)

	var req dto.CreateProtocolRequest
	var staged []models.Attachment
	if isMultipart(c) {
		if err := c.ShouldBind(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid protocol form"))
			return
		}
		staged = h.ingestFormFiles(c, actor)
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid protocol payload"))
			return
		}
	}

	protocol, err := h.store.Create(c.Request.Context(), req, staged, actor)
	if err != nil {
		h.discardStaged(staged)
		response.Error(c, err)
		return
	}
	response.Created(c, protocol)
}

// UpdateStatus sets the workflow stage.
func (h *ProtocolHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	protocol, err := h.store.UpdateStatus(c.Request.Context(), c.Param("id"), models.ProcessStatus(strings.ToUpper(req.Status)), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocol)
}

// UpdateApproval sets one approval slot; reaching dual approval forces the
// workflow into production.
func (h *ProtocolHandler) UpdateApproval(c *gin.Context) {
	var req dto.UpdateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}
	protocol, err := h.store.UpdateApproval(
		c.Request.Context(),
		c.Param("id"),
		models.ApprovalField(strings.ToLower(req.Field)),
		models.ApprovalState(strings.ToUpper(req.Value)),
		actorFromContext(c),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocol)
}

// Edit applies a partial update. Accepts JSON, or multipart form data whose
// present fields are applied and whose files are appended as attachments.
func (h *ProtocolHandler) Edit(c *gin.Context) {
	actor := actorFromContext(c)

	var patch dto.EditProtocolRequest
	var added []models.Attachment
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit form"))
			return
		}
		patch = patchFromForm(form)
		added = h.ingestFormFiles(c, actor)
	} else {
		if err := c.ShouldBindJSON(&patch); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit payload"))
			return
		}
	}

	protocol, err := h.store.Edit(c.Request.Context(), c.Param("id"), patch, added, actor)
	if err != nil {
		h.discardStaged(added)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, protocol)
}

// Delete permanently removes a protocol. The caller must confirm the
// irreversible deletion with ?confirm=true.
func (h *ProtocolHandler) Delete(c *gin.Context) {
	if c.Query("confirm") != "true" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "deletion is permanent and requires confirm=true"))
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *ProtocolHandler) ingestFormFiles(c *gin.Context, actor string) []models.Attachment {
	form, err := c.MultipartForm()
	if err != nil || h.attachments == nil {
		return nil
	}
	files := form.File["attachments"]
	if len(files) == 0 {
		return nil
	}
	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		fh := fh
		uploads = append(uploads, service.Upload{
			Filename:     fh.Filename,
			Size:         fh.Size,
			DeclaredType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return h.attachments.Ingest(c.Request.Context(), uploads, actor)
}

// discardStaged reclaims blobs ingested for a request the store rejected.
func (h *ProtocolHandler) discardStaged(staged []models.Attachment) {
	if h.attachments == nil || len(staged) == 0 {
		return
	}
	paths := make([]string, 0, len(staged))
	for _, att := range staged {
		paths = append(paths, att.StoragePath)
	}
	h.attachments.PurgeAsync(paths)
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

func patchFromForm(form *multipart.Form) dto.EditProtocolRequest {
	patch := dto.EditProtocolRequest{}
	if v, ok := formValue(form, "customer_email"); ok {
		patch.CustomerEmail = &v
	}
	if v, ok := formValue(form, "subject"); ok {
		patch.Subject = &v
	}
	if v, ok := formValue(form, "responsible"); ok {
		patch.Responsible = &v
	}
	if v, ok := formValue(form, "details"); ok {
		patch.Details = &v
	}
	return patch
}

func formValue(form *multipart.Form, key string) (string, bool) {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
