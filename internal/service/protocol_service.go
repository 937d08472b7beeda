package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/dto"
	"github.com/luccasmb/protocol-desk/internal/models"
	appErrors "github.com/luccasmb/protocol-desk/pkg/errors"
)

type protocolRepository interface {
	LoadAll(ctx context.Context) ([]models.Protocol, error)
	SaveAll(ctx context.Context, records []models.Protocol) error
}

type attachmentPurger interface {
	PurgeAsync(paths []string)
}

type storeObserver interface {
	ObserveStoreOperation(operation string, duration time.Duration)
}

// ProtocolService is the protocol store: the only component that mutates
// protocol records. Every mutation re-reads the full record set from the
// backend, applies the change to that fresh copy, and writes the full set
// back. Two sessions editing the same record within one read-modify-write
// window race and the later write wins; this is a known consistency boundary.
type ProtocolService struct {
	repo     protocolRepository
	purger   attachmentPurger
	observer storeObserver
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time

	// Serializes mutations within this process so each operation runs to
	// completion before the next is accepted.
	mu sync.Mutex
}

// NewProtocolService constructs the store.
func NewProtocolService(repo protocolRepository, purger attachmentPurger, observer storeObserver, validate *validator.Validate, logger *zap.Logger) *ProtocolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProtocolService{
		repo:     repo,
		purger:   purger,
		observer: observer,
		validate: validate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new protocol at stage 1 with both approvals pending and a
// CREATE audit entry. Attachments already staged by the caller are copied
// onto the new record.
func (s *ProtocolService) Create(ctx context.Context, req dto.CreateProtocolRequest, staged []models.Attachment, actor string) (*models.Protocol, error) {
	defer s.observe("create")()
	if actor = strings.TrimSpace(actor); actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "customer email and subject are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	responsible := strings.TrimSpace(req.Responsible)
	if responsible == "" {
		responsible = models.ResponsibleUnassigned
	}

	record := models.Protocol{
		ID:                   uuid.NewString(),
		Code:                 s.generateCode(now, records),
		CustomerEmail:        req.CustomerEmail,
		Subject:              req.Subject,
		Details:              req.Details,
		Responsible:          responsible,
		CreatedBy:            actor,
		Status:               models.StatusRequested,
		BudgetApproval:       models.Approval{State: models.ApprovalPending},
		CustomerConfirmation: models.Approval{State: models.ApprovalPending},
		CreatedAt:            now,
		UpdatedAt:            now,
		Attachments:          append([]models.Attachment{}, staged...),
		AuditLog: []models.AuditEntry{{
			Timestamp: now,
			User:      actor,
			Action:    models.AuditActionCreate,
			Details:   "protocol created",
		}},
	}

	// Newest first, matching list order.
	records = append([]models.Protocol{record}, records...)
	if err := s.save(ctx, records); err != nil {
		return nil, err
	}

	s.logger.Info("protocol created",
		zap.String("id", record.ID),
		zap.String("code", record.Code),
		zap.String("actor", actor),
	)
	return cloneProtocol(&record), nil
}

// UpdateStatus sets the workflow stage manually and appends a STATUS_CHANGE
// audit entry describing the before/after value.
func (s *ProtocolService) UpdateStatus(ctx context.Context, id string, newStatus models.ProcessStatus, actor string) (*models.Protocol, error) {
	defer s.observe("update_status")()
	if actor = strings.TrimSpace(actor); actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	if !newStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown process status %q", newStatus))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := findProtocol(records, id)
	if idx < 0 {
		return nil, appErrors.ErrNotFound
	}
	p := &records[idx]

	// A dual-approved record is pinned at production approval or beyond;
	// only delivery may follow.
	if p.DualApproved() && newStatus.Stage() < models.StatusApprovedForProduction.Stage() {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("protocol is dual-approved; status cannot move back to %q", newStatus.Label()))
	}

	now := s.touch(p)
	p.AuditLog = append(p.AuditLog, models.AuditEntry{
		Timestamp: now,
		User:      actor,
		Action:    models.AuditActionStatusChange,
		Details:   fmt.Sprintf("status changed from %q to %q", p.Status.Label(), newStatus.Label()),
	})
	p.Status = newStatus

	if err := s.save(ctx, records); err != nil {
		return nil, err
	}
	return cloneProtocol(p), nil
}

// UpdateApproval sets one approval slot together with its actor and
// timestamp. When both slots become satisfied the workflow is forced to
// APPROVED_FOR_PRODUCTION and a single DUAL_APPROVAL entry is appended; a
// repeated no-op write never duplicates that entry.
func (s *ProtocolService) UpdateApproval(ctx context.Context, id string, field models.ApprovalField, value models.ApprovalState, actor string) (*models.Protocol, error) {
	defer s.observe("update_approval")()
	if actor = strings.TrimSpace(actor); actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}
	action, err := validateApproval(field, value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, loadErr := s.load(ctx)
	if loadErr != nil {
		return nil, loadErr
	}
	idx := findProtocol(records, id)
	if idx < 0 {
		return nil, appErrors.ErrNotFound
	}
	p := &records[idx]

	now := s.touch(p)
	slot := &p.BudgetApproval
	detail := "Budget approval"
	if field == models.ApprovalFieldCustomer {
		slot = &p.CustomerConfirmation
		detail = "Customer confirmation"
	}
	slot.State = value
	slot.By = &actor
	slot.At = &now

	p.AuditLog = append(p.AuditLog, models.AuditEntry{
		Timestamp: now,
		User:      actor,
		Action:    action,
		Details:   fmt.Sprintf("%s: %s", detail, value),
	})

	if p.DualApproved() && p.Status != models.StatusApprovedForProduction {
		p.Status = models.StatusApprovedForProduction
		p.AuditLog = append(p.AuditLog, models.AuditEntry{
			Timestamp: now,
			User:      actor,
			Action:    models.AuditActionDualApproval,
			Details:   "dual approval confirmed - production released",
		})
		s.logger.Info("dual approval reached",
			zap.String("id", p.ID),
			zap.String("code", p.Code),
		)
	}

	if err := s.save(ctx, records); err != nil {
		return nil, err
	}
	return cloneProtocol(p), nil
}

// Edit applies the provided fields, appends any new attachments, and records
// a single EDIT audit entry summarising what changed.
func (s *ProtocolService) Edit(ctx context.Context, id string, patch dto.EditProtocolRequest, newAttachments []models.Attachment, actor string) (*models.Protocol, error) {
	defer s.observe("edit")()
	if actor = strings.TrimSpace(actor); actor == "" {
		return nil, appErrors.ErrIdentityRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := findProtocol(records, id)
	if idx < 0 {
		return nil, appErrors.ErrNotFound
	}
	p := &records[idx]

	changes := make([]string, 0, 3)
	if patch.CustomerEmail != nil && *patch.CustomerEmail != p.CustomerEmail {
		changes = append(changes, fmt.Sprintf("e-mail: %s → %s", p.CustomerEmail, *patch.CustomerEmail))
		p.CustomerEmail = *patch.CustomerEmail
	}
	if patch.Subject != nil && *patch.Subject != p.Subject {
		changes = append(changes, "subject changed")
		p.Subject = *patch.Subject
	}
	if patch.Responsible != nil && *patch.Responsible != p.Responsible {
		changes = append(changes, fmt.Sprintf("responsible: %s → %s", p.Responsible, *patch.Responsible))
		p.Responsible = *patch.Responsible
	}
	if patch.Details != nil {
		p.Details = *patch.Details
	}

	summary := strings.Join(changes, ", ")
	if summary == "" {
		summary = "details updated"
	}

	now := s.touch(p)
	p.AuditLog = append(p.AuditLog, models.AuditEntry{
		Timestamp: now,
		User:      actor,
		Action:    models.AuditActionEdit,
		Details:   fmt.Sprintf("fields edited: %s", summary),
	})
	p.Attachments = append(p.Attachments, newAttachments...)

	if err := s.save(ctx, records); err != nil {
		return nil, err
	}
	return cloneProtocol(p), nil
}

// Delete permanently removes a protocol and its attachments. The record and
// therefore its audit trail cease to exist; there is no soft delete. Callers
// must obtain explicit confirmation before invoking.
func (s *ProtocolService) Delete(ctx context.Context, id string, actor string) error {
	defer s.observe("delete")()
	if actor = strings.TrimSpace(actor); actor == "" {
		return appErrors.ErrIdentityRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	idx := findProtocol(records, id)
	if idx < 0 {
		return appErrors.ErrNotFound
	}
	removed := records[idx]
	records = append(records[:idx], records[idx+1:]...)

	if err := s.save(ctx, records); err != nil {
		return err
	}

	if s.purger != nil && len(removed.Attachments) > 0 {
		paths := make([]string, 0, len(removed.Attachments))
		for _, att := range removed.Attachments {
			paths = append(paths, att.StoragePath)
		}
		s.purger.PurgeAsync(paths)
	}

	s.logger.Info("protocol deleted",
		zap.String("id", removed.ID),
		zap.String("code", removed.Code),
		zap.String("actor", actor),
	)
	return nil
}

// Get returns a single protocol from a fresh backend read.
func (s *ProtocolService) Get(ctx context.Context, id string) (*models.Protocol, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := findProtocol(records, id)
	if idx < 0 {
		return nil, appErrors.ErrNotFound
	}
	return cloneProtocol(&records[idx]), nil
}

// List returns protocols in stored order (newest first), narrowed by the
// filter: exact status match (or "all") and case-insensitive substring search
// over code, customer email and subject.
func (s *ProtocolService) List(ctx context.Context, filter models.ProtocolFilter) ([]models.Protocol, error) {
	defer s.observe("list")()
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Protocol, 0, len(records))
	for i := range records {
		if filter.Matches(&records[i]) {
			out = append(out, *cloneProtocol(&records[i]))
		}
	}
	return out, nil
}

// Reload re-reads the full record set from the persistence backend.
func (s *ProtocolService) Reload(ctx context.Context) ([]models.Protocol, error) {
	return s.List(ctx, models.ProtocolFilter{})
}

func (s *ProtocolService) load(ctx context.Context) ([]models.Protocol, error) {
	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to read record set")
	}
	return records, nil
}

func (s *ProtocolService) save(ctx context.Context, records []models.Protocol) error {
	if err := s.repo.SaveAll(ctx, records); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to write record set")
	}
	return nil
}

// touch refreshes updated_at, keeping it monotonically non-decreasing even
// if the wall clock stepped backwards.
func (s *ProtocolService) touch(p *models.Protocol) time.Time {
	now := s.now()
	if now.Before(p.UpdatedAt) {
		now = p.UpdatedAt
	}
	p.UpdatedAt = now
	return now
}

// generateCode produces a PT{YYYYMMDD}-{4-digit} protocol code, retrying
// until the suffix does not collide with any code in the current record set.
func (s *ProtocolService) generateCode(now time.Time, records []models.Protocol) string {
	taken := make(map[string]struct{}, len(records))
	for i := range records {
		taken[records[i].Code] = struct{}{}
	}
	date := now.Format("20060102")
	for i := 0; i < 100; i++ {
		code := fmt.Sprintf("PT%s-%04d", date, 1000+rand.Intn(9000))
		if _, exists := taken[code]; !exists {
			return code
		}
	}
	// Suffix space exhausted for the day; widen to a fixed six digits.
	return fmt.Sprintf("PT%s-%06d", date, now.UnixNano()%1000000)
}

func (s *ProtocolService) observe(operation string) func() {
	if s.observer == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		s.observer.ObserveStoreOperation(operation, time.Since(start))
	}
}

func validateApproval(field models.ApprovalField, value models.ApprovalState) (string, error) {
	switch field {
	case models.ApprovalFieldBudget:
		if value != models.ApprovalPending && value != models.ApprovalApproved {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid budget approval value %q", value))
		}
		return models.AuditActionBudgetApproval, nil
	case models.ApprovalFieldCustomer:
		if value != models.ApprovalPending && value != models.ApprovalConfirmed {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid customer confirmation value %q", value))
		}
		return models.AuditActionCustomerConfirmation, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown approval field %q", field))
	}
}

func findProtocol(records []models.Protocol, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneProtocol(p *models.Protocol) *models.Protocol {
	clone := *p
	clone.Attachments = append([]models.Attachment{}, p.Attachments...)
	clone.AuditLog = append([]models.AuditEntry{}, p.AuditLog...)
	return &clone
}
