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

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type enrollmentRepository interface {
	ExistsNonCancelled(ctx context.Context, studentID, termID string) (bool, error)
	ExistsNonCancelledWithTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (bool, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, lines []models.EnrollmentSubject) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	SectionIDs(ctx context.Context, enrollmentID string) ([]string, error)
	UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus) error
	History(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type enrollmentSectionRepository interface {
	LockAvailable(ctx context.Context, tx *sqlx.Tx, sectionIDs []string) ([]models.Section, error)
	TakeSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error
	ReleaseSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error
}

type enrollmentSubjectReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error)
}

type activeTermReader interface {
	FindActive(ctx context.Context) (*models.AcademicTerm, error)
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	LockForStanding(ctx context.Context, tx *sqlx.Tx, studentID string) error
}

// EnrollRequest describes an enrollment submission.
type EnrollRequest struct {
	StudentID  string   `json:"student_id" validate:"required"`
	SectionIDs []string `json:"section_ids" validate:"required,min=1,dive,required"`
	TotalUnits int      `json:"total_units" validate:"required,gt=0"`
}

// EnrollmentService registers students into sections with atomic slot
// accounting. Enroll and Cancel run inside one database transaction so a
// failure leaves no partial enrollment or skewed slot counts behind.
type EnrollmentService struct {
	repo        enrollmentRepository
	sections    enrollmentSectionRepository
	subjects    enrollmentSubjectReader
	terms       activeTermReader
	students    enrollmentStudentReader
	tx          txProvider
	eligibility *EligibilityService
	maxUnits    int
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	repo enrollmentRepository,
	sections enrollmentSectionRepository,
	subjects enrollmentSubjectReader,
	terms activeTermReader,
	students enrollmentStudentReader,
	tx txProvider,
	eligibility *EligibilityService,
	maxUnits int,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUnits <= 0 {
		maxUnits = 30
	}
	return &EnrollmentService{
		repo:        repo,
		sections:    sections,
		subjects:    subjects,
		terms:       terms,
		students:    students,
		tx:          tx,
		eligibility: eligibility,
		maxUnits:    maxUnits,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll creates a pending enrollment for the active term, one subject line
// per requested section, and takes one slot from each section. Preconditions
// are checked in a fixed order so callers get stable failure codes.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.TotalUnits > s.maxUnits {
		return nil, appErrors.Clone(appErrors.ErrUnitCapExceeded, "total units exceed the per-term cap")
	}

	term, err := s.terms.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNoActiveTerm, "no active academic term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active term")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	exists, err := s.repo.ExistsNonCancelled(ctx, req.StudentID, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already enrolled for this term")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Re-check the duplicate guard under the student row lock. Two
	// concurrent enrolls for the same student both pass the unlocked
	// check above; only one passes here.
	if err = s.students.LockForStanding(ctx, tx, req.StudentID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student")
		return nil, err
	}
	exists, err = s.repo.ExistsNonCancelledWithTx(ctx, tx, req.StudentID, term.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
		return nil, err
	}
	if exists {
		err = appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already enrolled for this term")
		return nil, err
	}

	locked, err := s.sections.LockAvailable(ctx, tx, req.SectionIDs)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock sections")
		return nil, err
	}
	if len(locked) != len(req.SectionIDs) {
		err = appErrors.Clone(appErrors.ErrSectionsUnavailable, "one or more sections are closed or full")
		return nil, err
	}

	subjectIDs := make([]string, 0, len(locked))
	for _, section := range locked {
		subjectIDs = append(subjectIDs, section.SubjectID)
	}
	subjects, err := s.subjects.FindByIDs(ctx, subjectIDs)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
		return nil, err
	}

	lines := make([]models.EnrollmentSubject, 0, len(locked))
	totalUnits := 0
	for _, section := range locked {
		subject, ok := subjects[section.SubjectID]
		if !ok {
			err = appErrors.Clone(appErrors.ErrNotFound, "section subject not found")
			return nil, err
		}
		lines = append(lines, models.EnrollmentSubject{SubjectID: subject.ID, SectionID: section.ID, Units: subject.Units})
		totalUnits += subject.Units
	}
	if totalUnits > s.maxUnits {
		err = appErrors.Clone(appErrors.ErrUnitCapExceeded, "total units exceed the per-term cap")
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		TermID:     term.ID,
		Status:     models.EnrollmentStatusPending,
		TotalUnits: totalUnits,
		EnrolledAt: time.Now().UTC(),
	}
	if err = s.repo.CreateWithTx(ctx, tx, enrollment, lines); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		return nil, err
	}
	for _, section := range locked {
		if err = s.sections.TakeSlot(ctx, tx, section.ID); err != nil {
			if err == sql.ErrNoRows {
				err = appErrors.Clone(appErrors.ErrSectionsUnavailable, "one or more sections are closed or full")
				return nil, err
			}
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to take section slot")
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
		return nil, err
	}

	if s.eligibility != nil {
		s.eligibility.InvalidateStudent(ctx, req.StudentID)
	}
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("term_id", term.ID),
		zap.Int("total_units", totalUnits))

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Cancel flips a pending enrollment owned by the student to cancelled and
// restores one slot per enrolled section, all in one transaction.
func (s *EnrollmentService) Cancel(ctx context.Context, studentID, enrollmentID string) error {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != studentID || enrollment.Status != models.EnrollmentStatusPending {
		return appErrors.Clone(appErrors.ErrNotCancellable, "enrollment cannot be cancelled")
	}

	sectionIDs, err := s.repo.SectionIDs(ctx, enrollmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment sections")
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

	if err = s.repo.UpdateStatusWithTx(ctx, tx, enrollmentID, models.EnrollmentStatusCancelled); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
		return err
	}
	for _, sectionID := range sectionIDs {
		if err = s.sections.ReleaseSlot(ctx, tx, sectionID); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release section slot")
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit cancellation")
		return err
	}

	if s.eligibility != nil {
		s.eligibility.InvalidateStudent(ctx, studentID)
	}
	s.logger.Info("enrollment cancelled",
		zap.String("enrollment_id", enrollmentID),
		zap.String("student_id", studentID))
	return nil
}

// Confirm moves a pending enrollment to confirmed. Registrar operation.
func (s *EnrollmentService) Confirm(ctx context.Context, enrollmentID string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusPending {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not pending")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.repo.UpdateStatusWithTx(ctx, tx, enrollmentID, models.EnrollmentStatusConfirmed); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm enrollment")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit confirmation")
		return nil, err
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// History returns the student's enrollments with their subject lines,
// newest first.
func (s *EnrollmentService) History(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	history, err := s.repo.History(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}
	return history, nil
}

// Detail returns one enrollment with its subject lines.
func (s *EnrollmentService) Detail(ctx context.Context, enrollmentID string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}
