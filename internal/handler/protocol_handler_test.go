package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luccasmb/protocol-desk/internal/dto"
	"github.com/luccasmb/protocol-desk/internal/middleware"
	"github.com/luccasmb/protocol-desk/internal/models"
	"github.com/luccasmb/protocol-desk/internal/service"
	appErrors "github.com/luccasmb/protocol-desk/pkg/errors"
	"github.com/luccasmb/protocol-desk/pkg/response"
)

type storeStub struct {
	protocols []models.Protocol

	createdReq    dto.CreateProtocolRequest
	createdStaged []models.Attachment
	statusArg     models.ProcessStatus
	approvalField models.ApprovalField
	approvalValue models.ApprovalState
	editPatch     dto.EditProtocolRequest
	deletedID     string
	err           error
}

func (s *storeStub) Create(ctx context.Context, req dto.CreateProtocolRequest, staged []models.Attachment, actor string) (*models.Protocol, error) {
	if actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	if s.err != nil {
		return nil, s.err
	}
	s.createdReq = req
	s.createdStaged = staged
	return &models.Protocol{ID: "p-1", Code: "PT20260210-1234", CreatedBy: actor}, nil
}

func (s *storeStub) UpdateStatus(ctx context.Context, id string, newStatus models.ProcessStatus, actor string) (*models.Protocol, error) {
	if actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	if s.err != nil {
		return nil, s.err
	}
	s.statusArg = newStatus
	return &models.Protocol{ID: id, Status: newStatus}, nil
}

func (s *storeStub) UpdateApproval(ctx context.Context, id string, field models.ApprovalField, value models.ApprovalState, actor string) (*models.Protocol, error) {
	if actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	if s.err != nil {
		return nil, s.err
	}
	s.approvalField = field
	s.approvalValue = value
	return &models.Protocol{ID: id}, nil
}

func (s *storeStub) Edit(ctx context.Context, id string, patch dto.EditProtocolRequest, newAttachments []models.Attachment, actor string) (*models.Protocol, error) {
	if actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	if s.err != nil {
		return nil, s.err
	}
	s.editPatch = patch
	return &models.Protocol{ID: id}, nil
}

func (s *storeStub) Delete(ctx context.Context, id string, actor string) error {
	if actor == "" {
		return appErrors.ErrIdentityRequired
	}
	if s.err != nil {
		return s.err
	}
	s.deletedID = id
	return nil
}

func (s *storeStub) Get(ctx context.Context, id string) (*models.Protocol, error) {
	if s.err != nil {
		return nil, s.err
	}
	for i := range s.protocols {
		if s.protocols[i].ID == id {
			return &s.protocols[i], nil
		}
	}
	return nil, appErrors.ErrNotFound
}

func (s *storeStub) List(ctx context.Context, filter models.ProtocolFilter) ([]models.Protocol, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.protocols, nil
}

type ingestorStub struct {
	uploads []service.Upload
	purged  []string
}

func (s *ingestorStub) Ingest(ctx context.Context, uploads []service.Upload, actor string) []models.Attachment {
	s.uploads = uploads
	atts := make([]models.Attachment, 0, len(uploads))
	for _, u := range uploads {
		atts = append(atts, models.Attachment{
			ID:          "att-" + u.Filename,
			Filename:    u.Filename,
			StoragePath: "2026/02/" + u.Filename,
		})
	}
	return atts
}

func (s *ingestorStub) PurgeAsync(paths []string) {
	s.purged = append(s.purged, paths...)
}

type exporterStub struct {
	format string
}

func (s *exporterStub) Export(protocols []models.Protocol, format, generatedBy string) (*service.ExportResult, error) {
	s.format = format
	return &service.ExportResult{
		Filename:    "PROTOCOLS_2026-02-11_1.csv",
		ContentType: "text/csv",
		Data:        []byte("Protocol Code\n"),
	}, nil
}

func newTestRouter(store *storeStub, ingestor *ingestorStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	var attachments attachmentIngestor
	if ingestor != nil {
		attachments = ingestor
	}
	r := gin.New()
	r.Use(middleware.Identity())
	RegisterRoutes(r, "/api/v1", Handlers{
		Protocols: NewProtocolHandler(store, attachments),
		Exports:   NewExportHandler(store, &exporterStub{}),
	})
	return r
}

func doRequest(r *gin.Engine, method, path string, body *bytes.Buffer, header map[string]string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonHeaders(actor string) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if actor != "" {
		h[middleware.HeaderActor] = actor
	}
	return h
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestProtocolHandlerList(t *testing.T) {
	store := &storeStub{protocols: []models.Protocol{{ID: "p-1"}, {ID: "p-2"}}}
	r := newTestRouter(store, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/protocols?status=all&q=acme", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.EqualValues(t, 2, envelope.Meta["count"])
}

func TestProtocolHandlerCreateJSON(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	body := bytes.NewBufferString(`{"customer_email":"a@b.com","subject":"Quote request"}`)
	w := doRequest(r, http.MethodPost, "/api/v1/protocols", body, jsonHeaders("alice"))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "a@b.com", store.createdReq.CustomerEmail)
	assert.Equal(t, "Quote request", store.createdReq.Subject)
}

func TestProtocolHandlerCreateWithoutIdentity(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	body := bytes.NewBufferString(`{"customer_email":"a@b.com","subject":"Quote request"}`)
	w := doRequest(r, http.MethodPost, "/api/v1/protocols", body, jsonHeaders(""))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrIdentityRequired.Code, envelope.Error.Code)
}

func TestProtocolHandlerCreateMultipart(t *testing.T) {
	store := &storeStub{}
	ingestor := &ingestorStub{}
	r := newTestRouter(store, ingestor)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("customer_email", "a@b.com"))
	require.NoError(t, mw.WriteField("subject", "Quote request"))
	part, err := mw.CreateFormFile("attachments", "drawing.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := doRequest(r, http.MethodPost, "/api/v1/protocols", body, map[string]string{
		"Content-Type":         mw.FormDataContentType(),
		middleware.HeaderActor: "alice",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, ingestor.uploads, 1)
	assert.Equal(t, "drawing.pdf", ingestor.uploads[0].Filename)
	require.Len(t, store.createdStaged, 1)
	assert.Equal(t, "drawing.pdf", store.createdStaged[0].Filename)
}

func TestProtocolHandlerCreateFailurePurgesStagedFiles(t *testing.T) {
	store := &storeStub{err: appErrors.Clone(appErrors.ErrValidation, "customer email and subject are required")}
	ingestor := &ingestorStub{}
	r := newTestRouter(store, ingestor)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("attachments", "drawing.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := doRequest(r, http.MethodPost, "/api/v1/protocols", body, map[string]string{
		"Content-Type":         mw.FormDataContentType(),
		middleware.HeaderActor: "alice",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"2026/02/drawing.pdf"}, ingestor.purged)
}

func TestProtocolHandlerUpdateStatusNormalisesCase(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	body := bytes.NewBufferString(`{"status":"sent"}`)
	w := doRequest(r, http.MethodPatch, "/api/v1/protocols/p-1/status", body, jsonHeaders("alice"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusSent, store.statusArg)
}

func TestProtocolHandlerUpdateApprovalNormalisesCase(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	body := bytes.NewBufferString(`{"field":"Budget","value":"approved"}`)
	w := doRequest(r, http.MethodPatch, "/api/v1/protocols/p-1/approvals", body, jsonHeaders("alice"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ApprovalFieldBudget, store.approvalField)
	assert.Equal(t, models.ApprovalApproved, store.approvalValue)
}

func TestProtocolHandlerEditJSON(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	body := bytes.NewBufferString(`{"subject":"Revised"}`)
	w := doRequest(r, http.MethodPut, "/api/v1/protocols/p-1", body, jsonHeaders("alice"))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.editPatch.Subject)
	assert.Equal(t, "Revised", *store.editPatch.Subject)
	assert.Nil(t, store.editPatch.CustomerEmail)
}

func TestProtocolHandlerDeleteRequiresConfirmation(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	w := doRequest(r, http.MethodDelete, "/api/v1/protocols/p-1", nil, jsonHeaders("alice"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.deletedID)

	w = doRequest(r, http.MethodDelete, "/api/v1/protocols/p-1?confirm=true", nil, jsonHeaders("alice"))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "p-1", store.deletedID)
}

func TestProtocolHandlerGetNotFound(t *testing.T) {
	store := &storeStub{}
	r := newTestRouter(store, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/protocols/missing", nil, nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrNotFound.Code, envelope.Error.Code)
}

func TestProtocolHandlerListPersistenceError(t *testing.T) {
	store := &storeStub{err: appErrors.ErrPersistence}
	r := newTestRouter(store, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/protocols", nil, nil)

	require.Equal(t, http.StatusBadGateway, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrPersistence.Code, envelope.Error.Code)
}

func TestExportHandlerStreamsFile(t *testing.T) {
	store := &storeStub{protocols: []models.Protocol{{ID: "p-1"}}}
	r := newTestRouter(store, nil)

	w := doRequest(r, http.MethodGet, "/api/v1/protocols/export?format=csv", nil, jsonHeaders("alice"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "PROTOCOLS_")
	assert.Contains(t, w.Body.String(), "Protocol Code")
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(&storeStub{}, nil)

	w := doRequest(r, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}
