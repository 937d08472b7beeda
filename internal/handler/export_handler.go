package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luccasmb/protocol-desk/internal/dto"
	"github.com/luccasmb/protocol-desk/internal/models"
	"github.com/luccasmb/protocol-desk/internal/service"
	appErrors "github.com/luccasmb/protocol-desk/pkg/errors"
	"github.com/luccasmb/protocol-desk/pkg/response"
)

type reportExporter interface {
	Export(protocols []models.Protocol, format, generatedBy string) (*service.ExportResult, error)
}

// ExportHandler renders the currently filtered protocol list as a report.
type ExportHandler struct {
	store    protocolStore
	exporter reportExporter
}

// NewExportHandler builds a new handler.
func NewExportHandler(store protocolStore, exporter reportExporter) *ExportHandler {
	return &ExportHandler{store: store, exporter: exporter}
}

// Export streams the rendered report. Format defaults to xlsx; the same
// status/search filters as List apply.
func (h *ExportHandler) Export(c *gin.Context) {
	var query dto.ProtocolQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
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

	result, err := h.exporter.Export(protocols, c.Query("format"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
