package service

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/models"
	appErrors "github.com/luccasmb/protocol-desk/pkg/errors"
	"github.com/luccasmb/protocol-desk/pkg/export"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
)

const timestampLayout = "2006-01-02 15:04"

type xlsxRenderer interface {
	Render(sheets []export.Sheet) ([]byte, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type exportObserver interface {
	IncExport(format string)
}

// ExportResult carries rendered bytes plus download metadata.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService turns the currently filtered protocol list into a tabular
// report. It is strictly read-only over the records it is given.
type ExportService struct {
	xlsx     xlsxRenderer
	csv      csvRenderer
	pdf      pdfRenderer
	observer exportObserver
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs the service.
func NewExportService(xlsx xlsxRenderer, csv csvRenderer, pdf pdfRenderer, observer exportObserver, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		xlsx:     xlsx,
		csv:      csv,
		pdf:      pdf,
		observer: observer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Export renders the protocol list in the requested format.
func (s *ExportService) Export(protocols []models.Protocol, format, generatedBy string) (*ExportResult, error) {
	now := s.now()
	var (
		data        []byte
		contentType string
		err         error
	)

	switch format {
	case FormatXLSX, "":
		format = FormatXLSX
		data, err = s.xlsx.Render(s.buildWorkbook(protocols, generatedBy, now))
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		data, err = s.csv.Render(buildProtocolDataset(protocols))
		contentType = "text/csv"
	case FormatPDF:
		data, err = s.pdf.Render(buildSummaryDataset(protocols), "Protocol Report")
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	if s.observer != nil {
		s.observer.IncExport(format)
	}
	s.logger.Info("export rendered",
		zap.String("format", format),
		zap.Int("protocols", len(protocols)),
		zap.String("generated_by", generatedBy),
	)

	return &ExportResult{
		Filename:    fmt.Sprintf("PROTOCOLS_%s_%d.%s", now.Format("2006-01-02"), now.Unix(), format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (s *ExportService) buildWorkbook(protocols []models.Protocol, generatedBy string, now time.Time) []export.Sheet {
	sheets := []export.Sheet{{
		Name:    "Protocols",
		Dataset: buildProtocolDataset(protocols),
		ColWidths: []float64{
			18, 20, 30, 40, 35, 20, 20, 15, 20, 20, 15, 20, 20, 20, 60, 12,
		},
		AutoFilter: true,
	}}

	if audit := buildAuditDataset(protocols); len(audit.Rows) > 0 {
		sheets = append(sheets, export.Sheet{
			Name:       "Audit",
			Dataset:    audit,
			ColWidths:  []float64{18, 20, 25, 25, 80},
			AutoFilter: true,
		})
	}

	sheets = append(sheets, export.Sheet{
		Name:      "Statistics",
		Dataset:   buildStatsDataset(protocols, generatedBy, now),
		ColWidths: []float64{35, 20},
	})
	return sheets
}

func buildProtocolDataset(protocols []models.Protocol) export.Dataset {
	headers := []string{
		"Protocol Code", "Entry Date", "Customer E-mail", "Subject", "Process Status",
		"Responsible", "Created By", "Budget Approval", "Approved By", "Approval Date",
		"Customer Confirmation", "Confirmed By", "Confirmation Date", "Last Updated",
		"Details", "Attachments",
	}
	rows := make([][]string, 0, len(protocols))
	for i := range protocols {
		p := &protocols[i]
		rows = append(rows, []string{
			p.Code,
			p.CreatedAt.Format(timestampLayout),
			p.CustomerEmail,
			p.Subject,
			p.Status.Label(),
			p.Responsible,
			p.CreatedBy,
			string(p.BudgetApproval.State),
			strOrEmpty(p.BudgetApproval.By),
			timeOrEmpty(p.BudgetApproval.At),
			string(p.CustomerConfirmation.State),
			strOrEmpty(p.CustomerConfirmation.By),
			timeOrEmpty(p.CustomerConfirmation.At),
			p.UpdatedAt.Format(timestampLayout),
			p.Details,
			strconv.Itoa(len(p.Attachments)),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func buildAuditDataset(protocols []models.Protocol) export.Dataset {
	headers := []string{"Protocol Code", "Timestamp", "User", "Action", "Details"}
	rows := make([][]string, 0)
	for i := range protocols {
		p := &protocols[i]
		for _, entry := range p.AuditLog {
			rows = append(rows, []string{
				p.Code,
				entry.Timestamp.Format(timestampLayout),
				entry.User,
				entry.Action,
				entry.Details,
			})
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func buildSummaryDataset(protocols []models.Protocol) export.Dataset {
	headers := []string{"Protocol Code", "Entry Date", "Customer E-mail", "Subject", "Status", "Responsible"}
	rows := make([][]string, 0, len(protocols))
	for i := range protocols {
		p := &protocols[i]
		rows = append(rows, []string{
			p.Code,
			p.CreatedAt.Format(timestampLayout),
			p.CustomerEmail,
			p.Subject,
			p.Status.Label(),
			p.Responsible,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func buildStatsDataset(protocols []models.Protocol, generatedBy string, now time.Time) export.Dataset {
	byStatus := make(map[models.ProcessStatus]int, len(models.ProcessStatuses))
	pendingBudget := 0
	pendingCustomer := 0
	for i := range protocols {
		p := &protocols[i]
		byStatus[p.Status]++
		if p.BudgetApproval.State == models.ApprovalPending {
			pendingBudget++
		}
		if p.CustomerConfirmation.State == models.ApprovalPending {
			pendingCustomer++
		}
	}

	rows := [][]string{
		{"Total Protocols", strconv.Itoa(len(protocols))},
	}
	for _, status := range models.ProcessStatuses {
		rows = append(rows, []string{status.Label(), strconv.Itoa(byStatus[status])})
	}
	rows = append(rows,
		[]string{"Pending Budget Approvals", strconv.Itoa(pendingBudget)},
		[]string{"Pending Customer Confirmations", strconv.Itoa(pendingCustomer)},
		[]string{"", ""},
		[]string{"Report generated at", now.Format(timestampLayout)},
		[]string{"Generated by", generatedBy},
	)
	return export.Dataset{Headers: []string{"Statistic", "Value"}, Rows: rows}
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func timeOrEmpty(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.Format(timestampLayout)
}
