package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type incResolutionRepository interface {
	FindByID(ctx context.Context, id string) (*models.IncResolution, error)
	ExistsUnresolved(ctx context.Context, studentID, subjectID, professorID string) (bool, error)
	Create(ctx context.Context, resolution *models.IncResolution) error
	ApproveWithTx(ctx context.Context, tx *sqlx.Tx, id string) error
	ListByProfessor(ctx context.Context, professorID string) ([]models.IncResolutionDetail, error)
	ListPending(ctx context.Context) ([]models.IncResolutionDetail, error)
}

type incGradeRepository interface {
	FindIncGrade(ctx context.Context, studentID, subjectID string) (*models.Grade, error)
	OverwriteResolvedWithTx(ctx context.Context, tx *sqlx.Tx, gradeID string, value models.GradeValue, remarks *string) error
	ListIncSubjects(ctx context.Context, studentID string) ([]models.IncSubject, error)
}

// CreateResolutionRequest is a professor's proposal to replace an INC.
type CreateResolutionRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	SubjectID string  `json:"subject_id" validate:"required"`
	NewGrade  string  `json:"new_grade" validate:"required"`
	Remarks   *string `json:"remarks,omitempty"`
}

// IncResolutionService runs the INC replacement workflow. A resolution is
// proposed by the professor and terminal once the registrar approves it;
// approval overwrites the original INC grade and refreshes the student's
// cached standing.
type IncResolutionService struct {
	repo      incResolutionRepository
	grades    incGradeRepository
	standing  *GradeService
	tx        txProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIncResolutionService constructs IncResolutionService.
func NewIncResolutionService(
	repo incResolutionRepository,
	grades incGradeRepository,
	standing *GradeService,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
) *IncResolutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncResolutionService{repo: repo, grades: grades, standing: standing, tx: tx, validator: validate, logger: logger}
}

// Create proposes a numeric replacement for a student's INC grade.
func (s *IncResolutionService) Create(ctx context.Context, professorID string, req CreateResolutionRequest) (*models.IncResolution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	newGrade := models.GradeValue(req.NewGrade)
	if !newGrade.Numeric() {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "replacement grade must be numeric")
	}

	if _, err := s.grades.FindIncGrade(ctx, req.StudentID, req.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNoIncOnRecord, "student has no INC grade for this subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load INC grade")
	}

	exists, err := s.repo.ExistsUnresolved(ctx, req.StudentID, req.SubjectID, professorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing resolution")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateResolution, "an unresolved resolution already exists")
	}

	resolution := &models.IncResolution{
		StudentID:   req.StudentID,
		SubjectID:   req.SubjectID,
		ProfessorID: professorID,
		OldGrade:    models.GradeInc,
		NewGrade:    newGrade,
		Remarks:     req.Remarks,
	}
	if err := s.repo.Create(ctx, resolution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resolution")
	}
	s.logger.Info("inc resolution proposed",
		zap.String("resolution_id", resolution.ID),
		zap.String("student_id", req.StudentID),
		zap.String("subject_id", req.SubjectID),
		zap.String("professor_id", professorID))
	return resolution, nil
}

// Approve finalizes one resolution.
func (s *IncResolutionService) Approve(ctx context.Context, resolutionID string) error {
	return s.BulkApprove(ctx, []string{resolutionID})
}

// BulkApprove finalizes a batch of resolutions in one transaction. Each
// approval overwrites the original INC grade with the approved numeric
// value; standing is then recomputed once per distinct student.
func (s *IncResolutionService) BulkApprove(ctx context.Context, resolutionIDs []string) error {
	if len(resolutionIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no resolution ids provided")
	}

	resolutions := make([]*models.IncResolution, 0, len(resolutionIDs))
	students := make([]string, 0, len(resolutionIDs))
	seen := map[string]bool{}
	for _, id := range resolutionIDs {
		resolution, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "resolution not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resolution")
		}
		if resolution.ApprovedByRegistrar {
			return appErrors.Clone(appErrors.ErrAlreadyApproved, "resolution already approved")
		}
		resolutions = append(resolutions, resolution)
		if !seen[resolution.StudentID] {
			seen[resolution.StudentID] = true
			students = append(students, resolution.StudentID)
		}
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, resolution := range resolutions {
		incGrade, ferr := s.grades.FindIncGrade(ctx, resolution.StudentID, resolution.SubjectID)
		if ferr != nil {
			if ferr == sql.ErrNoRows {
				err = appErrors.Clone(appErrors.ErrNoIncOnRecord, "student has no INC grade for this subject")
				return err
			}
			err = appErrors.Wrap(ferr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load INC grade")
			return err
		}
		if err = s.repo.ApproveWithTx(ctx, tx, resolution.ID); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve resolution")
			return err
		}
		if err = s.grades.OverwriteResolvedWithTx(ctx, tx, incGrade.ID, resolution.NewGrade, resolution.Remarks); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to overwrite INC grade")
			return err
		}
	}
	for _, studentID := range students {
		if err = s.standing.recomputeStanding(ctx, tx, studentID); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approvals")
		return err
	}

	if s.standing.eligibility != nil {
		for _, studentID := range students {
			s.standing.eligibility.InvalidateStudent(ctx, studentID)
		}
	}
	s.logger.Info("inc resolutions approved",
		zap.Int("count", len(resolutions)),
		zap.Int("students", len(students)))
	return nil
}

// StudentIncSubjects lists the INC grades currently on a student's record.
func (s *IncResolutionService) StudentIncSubjects(ctx context.Context, studentID string) ([]models.IncSubject, error) {
	subjects, err := s.grades.ListIncSubjects(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list INC subjects")
	}
	return subjects, nil
}

// ProfessorResolutions lists resolutions proposed by one professor.
func (s *IncResolutionService) ProfessorResolutions(ctx context.Context, professorID string) ([]models.IncResolutionDetail, error) {
	resolutions, err := s.repo.ListByProfessor(ctx, professorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list resolutions")
	}
	return resolutions, nil
}

// PendingResolutions lists unapproved resolutions for registrar review.
func (s *IncResolutionService) PendingResolutions(ctx context.Context) ([]models.IncResolutionDetail, error) {
	resolutions, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending resolutions")
	}
	return resolutions, nil
}
