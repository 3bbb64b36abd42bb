package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	Create(ctx context.Context, section *models.Section) error
	SetStatus(ctx context.Context, id string, status models.SectionStatus) error
}

type sectionSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type sectionProfessorReader interface {
	FindByID(ctx context.Context, id string) (*models.Professor, error)
}

type sectionTermReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
}

// CreateSectionRequest holds payload for opening a section.
type CreateSectionRequest struct {
	SubjectID   string `json:"subject_id" validate:"required"`
	ProfessorID string `json:"professor_id" validate:"required"`
	TermID      string `json:"term_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	MaxSlots    int    `json:"max_slots" validate:"required,gte=1"`
}

// SectionService handles section administration.
type SectionService struct {
	repo       sectionRepository
	subjects   sectionSubjectReader
	professors sectionProfessorReader
	terms      sectionTermReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSectionService constructs the section service.
func NewSectionService(repo sectionRepository, subjects sectionSubjectReader, professors sectionProfessorReader, terms sectionTermReader, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, subjects: subjects, professors: professors, terms: terms, validator: validate, logger: logger}
}

// List returns sections with subject and professor context.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return sections, pagination, nil
}

// Get returns a single section.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// Create opens a new section for a subject in a term. Sections start open
// with all slots available.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if _, err := s.subjects.FindByID(ctx, req.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if _, err := s.professors.FindByID(ctx, req.ProfessorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	term, err := s.terms.FindByID(ctx, req.TermID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	section := &models.Section{
		SubjectID:      req.SubjectID,
		ProfessorID:    req.ProfessorID,
		Name:           req.Name,
		SchoolYear:     term.SchoolYear,
		Semester:       term.Semester,
		MaxSlots:       req.MaxSlots,
		AvailableSlots: req.MaxSlots,
		Status:         models.SectionStatusOpen,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	s.logger.Info("section opened",
		zap.String("section_id", section.ID),
		zap.String("subject_id", section.SubjectID),
		zap.Int("max_slots", section.MaxSlots))
	return section, nil
}

// SetStatus opens or closes a section for enrollment.
func (s *SectionService) SetStatus(ctx context.Context, id string, status models.SectionStatus) (*models.Section, error) {
	if status != models.SectionStatusOpen && status != models.SectionStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid section status")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section status")
	}
	return s.repo.FindByID(ctx, id)
}
