package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	FindActive(ctx context.Context) (*models.AcademicTerm, error)
	ExistsByYearAndSemester(ctx context.Context, schoolYear string, semester models.Semester, excludeID string) (bool, error)
	Create(ctx context.Context, term *models.AcademicTerm) error
	SetActive(ctx context.Context, id string) error
}

// CreateTermRequest holds payload for creating academic terms.
type CreateTermRequest struct {
	SchoolYear string `json:"school_year" validate:"required"`
	Semester   string `json:"semester" validate:"required,oneof=FIRST SECOND SUMMER"`
}

// TermService handles academic term administration.
type TermService struct {
	repo      termRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs the term service.
func NewTermService(repo termRepository, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, validator: validate, logger: logger}
}

// List returns terms and pagination metadata.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
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
	return terms, pagination, nil
}

// Get returns a single term.
func (s *TermService) Get(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Active returns the currently active term.
func (s *TermService) Active(ctx context.Context) (*models.AcademicTerm, error) {
	term, err := s.repo.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNoActiveTerm, "no active academic term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active term")
	}
	return term, nil
}

// Create registers a new academic term. Terms start inactive.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.AcademicTerm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	semester := models.Semester(req.Semester)
	exists, err := s.repo.ExistsByYearAndSemester(ctx, req.SchoolYear, semester, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate term")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "term already exists for this school year and semester")
	}
	term := &models.AcademicTerm{SchoolYear: req.SchoolYear, Semester: semester}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// Activate makes one term the active term, deactivating every other.
func (s *TermService) Activate(ctx context.Context, id string) (*models.AcademicTerm, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if err := s.repo.SetActive(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate term")
	}
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	s.logger.Info("term activated", zap.String("term_id", id), zap.String("school_year", term.SchoolYear), zap.String("semester", string(term.Semester)))
	return term, nil
}
