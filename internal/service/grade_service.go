package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type gradeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindByEnrollmentSubject(ctx context.Context, enrollmentSubjectID string) (*models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
	ApproveWithTx(ctx context.Context, tx *sqlx.Tx, gradeID string) error
	StudentOfGrade(ctx context.Context, gradeID string) (string, error)
	ListPending(ctx context.Context, termID string) ([]models.GradeDetail, error)
	HistoryByStudentWithTx(ctx context.Context, tx *sqlx.Tx, studentID string) ([]models.StudentGradeRecord, error)
	SectionOfEnrollmentSubject(ctx context.Context, enrollmentSubjectID string) (*models.Section, error)
}

type gradeSectionOwnership interface {
	IsOwnedByProfessor(ctx context.Context, sectionID, professorID string) (bool, error)
}

type gradeSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type academicStandingRepository interface {
	LockForStanding(ctx context.Context, tx *sqlx.Tx, studentID string) error
	UpdateAcademicStanding(ctx context.Context, tx *sqlx.Tx, studentID string, gpa float64, hasInc bool) error
	SetHasInc(ctx context.Context, studentID string, hasInc bool) error
}

// SubmitGradeRequest is a professor's grade submission payload.
type SubmitGradeRequest struct {
	EnrollmentSubjectID string  `json:"enrollment_subject_id" validate:"required"`
	GradeValue          string  `json:"grade_value" validate:"required"`
	Remarks             *string `json:"remarks,omitempty"`
}

// GradeService drives the grade lifecycle: professor submission, registrar
// approval and the GPA recompute that follows every approval.
type GradeService struct {
	repo        gradeRepository
	sections    gradeSectionOwnership
	subjects    gradeSubjectReader
	students    academicStandingRepository
	tx          txProvider
	eligibility *EligibilityService
	majorMonths int
	minorMonths int
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewGradeService constructs GradeService.
func NewGradeService(
	repo gradeRepository,
	sections gradeSectionOwnership,
	subjects gradeSubjectReader,
	students academicStandingRepository,
	tx txProvider,
	eligibility *EligibilityService,
	majorMonths, minorMonths int,
	validate *validator.Validate,
	logger *zap.Logger,
) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if majorMonths <= 0 {
		majorMonths = 6
	}
	if minorMonths <= 0 {
		minorMonths = 12
	}
	return &GradeService{
		repo:        repo,
		sections:    sections,
		subjects:    subjects,
		students:    students,
		tx:          tx,
		eligibility: eligibility,
		majorMonths: majorMonths,
		minorMonths: minorMonths,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit records a professor's grade for an enrollment subject. A failing or
// incomplete value carries a repeat eligible date derived from the subject
// type. Re-submission overwrites the previous value and clears approval.
func (s *GradeService) Submit(ctx context.Context, professorID string, req SubmitGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	value := models.GradeValue(req.GradeValue)
	if !value.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "invalid grade value")
	}

	section, err := s.repo.SectionOfEnrollmentSubject(ctx, req.EnrollmentSubjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	owned, err := s.sections.IsOwnedByProfessor(ctx, section.ID, professorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section ownership")
	}
	if !owned {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "section is not assigned to this professor")
	}

	now := s.now().UTC()
	var repeatEligibleDate *time.Time
	if value.IsFailing() || value.IsIncomplete() {
		subject, err := s.subjects.FindByID(ctx, section.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		months := s.minorMonths
		if subject.Type == models.SubjectTypeMajor {
			months = s.majorMonths
		}
		date := now.AddDate(0, months, 0)
		repeatEligibleDate = &date
	}

	grade := &models.Grade{
		EnrollmentSubjectID: req.EnrollmentSubjectID,
		GradeValue:          value,
		EncodedBy:           professorID,
		DateEncoded:         now,
		Remarks:             req.Remarks,
		RepeatEligibleDate:  repeatEligibleDate,
	}
	if err := s.repo.Upsert(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}

	// Upsert keeps the original row id on resubmission.
	saved, err := s.repo.FindByEnrollmentSubject(ctx, req.EnrollmentSubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load saved grade")
	}

	if value.IsIncomplete() {
		studentID, err := s.repo.StudentOfGrade(ctx, saved.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve grade owner")
		}
		if err := s.students.SetHasInc(ctx, studentID, true); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag incomplete grade")
		}
		if s.eligibility != nil {
			s.eligibility.InvalidateStudent(ctx, studentID)
		}
	}

	s.logger.Info("grade submitted",
		zap.String("grade_id", saved.ID),
		zap.String("enrollment_subject_id", req.EnrollmentSubjectID),
		zap.String("grade_value", string(value)),
		zap.String("encoded_by", professorID))
	return saved, nil
}

// Approve finalizes one grade and recomputes the owning student's standing.
// Approving an approved grade is a no-op.
func (s *GradeService) Approve(ctx context.Context, gradeID string) error {
	return s.BulkApprove(ctx, []string{gradeID})
}

// BulkApprove finalizes a batch of grades in one transaction, then
// recomputes GPA and the INC flag once per distinct student. Students are
// row-locked before the recompute so concurrent approvals serialize.
func (s *GradeService) BulkApprove(ctx context.Context, gradeIDs []string) error {
	if len(gradeIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no grade ids provided")
	}

	students := make([]string, 0, len(gradeIDs))
	seen := map[string]bool{}
	pending := make([]string, 0, len(gradeIDs))
	for _, id := range gradeIDs {
		grade, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
		}
		studentID, err := s.repo.StudentOfGrade(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve grade owner")
		}
		if !grade.Approved {
			pending = append(pending, id)
		}
		if !seen[studentID] {
			seen[studentID] = true
			students = append(students, studentID)
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

	for _, id := range pending {
		if err = s.repo.ApproveWithTx(ctx, tx, id); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve grade")
			return err
		}
	}
	for _, studentID := range students {
		if err = s.recomputeStanding(ctx, tx, studentID); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit approvals")
		return err
	}

	if s.eligibility != nil {
		for _, studentID := range students {
			s.eligibility.InvalidateStudent(ctx, studentID)
		}
	}
	s.logger.Info("grades approved",
		zap.Int("requested", len(gradeIDs)),
		zap.Int("approved", len(pending)),
		zap.Int("students", len(students)))
	return nil
}

// Pending lists unapproved grades for registrar review, optionally scoped
// to one term.
func (s *GradeService) Pending(ctx context.Context, termID string) ([]models.GradeDetail, error) {
	grades, err := s.repo.ListPending(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending grades")
	}
	return grades, nil
}

// recomputeStanding rebuilds the student's cached GPA and INC flag from the
// approved grade history, inside the approving transaction. DRP never
// counts; INC feeds the flag but not the point sum.
func (s *GradeService) recomputeStanding(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	if err := s.students.LockForStanding(ctx, tx, studentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student")
	}
	history, err := s.repo.HistoryByStudentWithTx(ctx, tx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade history")
	}

	var pointSum, unitSum float64
	hasInc := false
	for _, record := range history {
		if record.GradeValue.IsIncomplete() {
			hasInc = true
			continue
		}
		if !record.Approved || record.GradeValue.IsDropped() {
			continue
		}
		points, ok := record.GradeValue.Points()
		if !ok {
			continue
		}
		pointSum += points * float64(record.Units)
		unitSum += float64(record.Units)
	}
	gpa := 0.0
	if unitSum > 0 {
		gpa = pointSum / unitSum
	}
	if err := s.students.UpdateAcademicStanding(ctx, tx, studentID, gpa, hasInc); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student standing")
	}
	return nil
}
