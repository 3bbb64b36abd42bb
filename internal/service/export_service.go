package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	"github.com/noah-isme/college-registrar-api/pkg/export"
	"github.com/noah-isme/college-registrar-api/pkg/storage"
)

type reportDataRepository interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.GradeDetail, error)
	HistoryByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRecord, error)
	ListAllFailedWithRepeatDate(ctx context.Context, programID string, yearLevel *int) ([]models.FailedGradeRecord, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	grades  reportDataRepository
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(grades reportDataRepository, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		grades:  grades,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	termPart := sanitizeFilename(job.Params.TermID)
	name := fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), termPart, timestamp, job.Params.Format)
	return name
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeGradeSheet:
		return s.buildGradeSheetDataset(ctx, job.Params)
	case models.ReportTypeStudentGrades:
		return s.buildStudentGradesDataset(ctx, job.Params)
	case models.ReportTypeRepeatEligibility:
		return s.buildRepeatEligibilityDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

// buildGradeSheetDataset renders one section's encoded grades, the sheet a
// professor signs off before registrar approval.
func (s *ExportService) buildGradeSheetDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	sectionID := deref(params.SectionID)
	rows, err := s.grades.ListBySection(ctx, sectionID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Student":      row.StudentName,
			"Subject":      row.SubjectCode,
			"Grade":        string(row.GradeValue),
			"Units":        fmt.Sprintf("%d", row.Units),
			"Approved":     fmt.Sprintf("%t", row.Approved),
			"Date Encoded": row.DateEncoded.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Subject", "Grade", "Units", "Approved", "Date Encoded"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Grade Sheet %s", sectionID)
	return dataset, title, nil
}

func (s *ExportService) buildStudentGradesDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	studentID := deref(params.StudentID)
	records, err := s.grades.HistoryByStudent(ctx, studentID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	dataRows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		repeatDate := ""
		if record.RepeatEligibleDate != nil {
			repeatDate = record.RepeatEligibleDate.UTC().Format("2006-01-02")
		}
		dataRows = append(dataRows, map[string]string{
			"Subject":      record.SubjectCode,
			"School Year":  record.SchoolYear,
			"Grade":        string(record.GradeValue),
			"Units":        fmt.Sprintf("%d", record.Units),
			"Approved":     fmt.Sprintf("%t", record.Approved),
			"Repeat After": repeatDate,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Subject", "School Year", "Grade", "Units", "Approved", "Repeat After"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Grade Report %s", studentID)
	return dataset, title, nil
}

func (s *ExportService) buildRepeatEligibilityDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	records, err := s.grades.ListAllFailedWithRepeatDate(ctx, deref(params.ProgramID), params.YearLevel)
	if err != nil {
		return export.Dataset{}, "", err
	}
	now := time.Now()
	dataRows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		eligible := !now.Before(record.RepeatEligibleDate)
		dataRows = append(dataRows, map[string]string{
			"Student":       record.StudentName,
			"Year Level":    fmt.Sprintf("%d", record.YearLevel),
			"Subject":       record.SubjectCode,
			"Failed In":     record.SchoolYear,
			"Eligible From": record.RepeatEligibleDate.UTC().Format("2006-01-02"),
			"Eligible Now":  fmt.Sprintf("%t", eligible),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Year Level", "Subject", "Failed In", "Eligible From", "Eligible Now"},
		Rows:    dataRows,
	}
	title := "Repeat Eligibility Roster"
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
