package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
}

// CreateSubjectRequest holds payload for creating catalog subjects.
type CreateSubjectRequest struct {
	ProgramID           string           `json:"program_id" validate:"required"`
	Code                string           `json:"code" validate:"required"`
	Name                string           `json:"name" validate:"required"`
	Units               int              `json:"units" validate:"required,gte=1,lte=6"`
	Type                string           `json:"type" validate:"required,oneof=MAJOR MINOR"`
	PrerequisiteID      *string          `json:"prerequisite_id,omitempty"`
	YearStanding        *int             `json:"year_standing,omitempty" validate:"omitempty,gte=1,lte=6"`
	RecommendedYear     *int             `json:"recommended_year,omitempty" validate:"omitempty,gte=1,lte=6"`
	RecommendedSemester *models.Semester `json:"recommended_semester,omitempty"`
}

// SubjectService handles subject catalog use-cases.
type SubjectService struct {
	repo      subjectRepository
	programs  programReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the subject service.
func NewSubjectService(repo subjectRepository, programs programReader, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, programs: programs, validator: validate, logger: logger}
}

// List returns subjects and pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
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
	return subjects, pagination, nil
}

// Get returns a single subject.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create adds a subject to the program catalog. A subject may not be its
// own prerequisite.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if _, err := s.programs.FindByID(ctx, req.ProgramID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if req.PrerequisiteID != nil {
		prerequisite, err := s.repo.FindByID(ctx, *req.PrerequisiteID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "prerequisite subject not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite")
		}
		if prerequisite.Code == req.Code {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject cannot be its own prerequisite")
		}
	}
	subject := &models.Subject{
		ProgramID:           req.ProgramID,
		Code:                req.Code,
		Name:                req.Name,
		Units:               req.Units,
		Type:                models.SubjectType(req.Type),
		PrerequisiteID:      req.PrerequisiteID,
		YearStanding:        req.YearStanding,
		RecommendedYear:     req.RecommendedYear,
		RecommendedSemester: req.RecommendedSemester,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.logger.Info("subject created", zap.String("subject_id", subject.ID), zap.String("code", subject.Code))
	return subject, nil
}
