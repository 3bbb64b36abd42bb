package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type eligibilityTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	FindActive(ctx context.Context) (*models.AcademicTerm, error)
}

type eligibilityStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type eligibilitySubjectCatalog interface {
	ListByProgram(ctx context.Context, programID string) ([]models.Subject, error)
}

type eligibilitySectionLister interface {
	ListOpenBySubjects(ctx context.Context, subjectIDs []string, schoolYear string, semester models.Semester) (map[string][]models.Section, error)
}

type eligibilityGradeHistory interface {
	HistoryByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRecord, error)
	ListIncSubjects(ctx context.Context, studentID string) ([]models.IncSubject, error)
}

// EligibilityResult is the resolved enrollability view for one student and term.
type EligibilityResult struct {
	Student  models.StudentDetail         `json:"student"`
	Term     models.AcademicTerm          `json:"term"`
	Subjects []models.SubjectWithSections `json:"subjects"`
}

// EligibilityService computes which subjects a student may enroll in for a
// term. All operations are read-only.
type EligibilityService struct {
	terms    eligibilityTermRepository
	students eligibilityStudentReader
	subjects eligibilitySubjectCatalog
	sections eligibilitySectionLister
	grades   eligibilityGradeHistory
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(
	terms eligibilityTermRepository,
	students eligibilityStudentReader,
	subjects eligibilitySubjectCatalog,
	sections eligibilitySectionLister,
	grades eligibilityGradeHistory,
	cache *CacheService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &EligibilityService{
		terms:    terms,
		students: students,
		subjects: subjects,
		sections: sections,
		grades:   grades,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// AvailableSubjects resolves the full eligibility pipeline: year standing,
// open sections in the term, prerequisites, INC blocks and repeat cooldowns.
func (s *EligibilityService) AvailableSubjects(ctx context.Context, studentID, termID string) (*EligibilityResult, error) {
	student, term, err := s.resolveContext(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("eligibility:available:%s:%s", student.ID, term.ID)
	if s.cache.Enabled() {
		var cached EligibilityResult
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	candidates, sectionsBySubject, err := s.candidatesWithSections(ctx, student, term)
	if err != nil {
		return nil, err
	}

	history, err := s.grades.HistoryByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade history")
	}

	incSubjects := map[string]bool{}
	if student.HasInc {
		incs, err := s.grades.ListIncSubjects(ctx, student.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load INC subjects")
		}
		for _, inc := range incs {
			incSubjects[inc.SubjectID] = true
		}
	}

	now := s.now()
	result := &EligibilityResult{Student: *student, Term: *term, Subjects: make([]models.SubjectWithSections, 0, len(candidates))}
	for _, subject := range candidates {
		sections := sectionsBySubject[subject.ID]
		if len(sections) == 0 {
			continue
		}
		if subject.PrerequisiteID != nil && !prerequisiteSatisfied(history, *subject.PrerequisiteID, term.SchoolYear) {
			continue
		}
		if student.HasInc && (incSubjects[subject.ID] || (subject.PrerequisiteID != nil && incSubjects[*subject.PrerequisiteID])) {
			continue
		}
		if underRepeatCooldown(history, subject.ID, now) {
			continue
		}
		result.Subjects = append(result.Subjects, models.SubjectWithSections{Subject: subject, Sections: sections})
	}

	// A cooldown expiring inside the TTL window would keep a now-eligible
	// subject hidden until the entry ages out, so those results stay uncached.
	if s.cache.Enabled() && !cooldownExpiresWithin(history, now, s.cacheTTL) {
		_ = s.cache.Set(ctx, cacheKey, result, s.cacheTTL)
	}
	return result, nil
}

// RecommendedSubjects narrows the candidate list to the subjects tagged for
// the student's year level and the term's semester. Prerequisite, INC and
// repeat gating do not apply here.
func (s *EligibilityService) RecommendedSubjects(ctx context.Context, studentID, termID string) (*EligibilityResult, error) {
	student, term, err := s.resolveContext(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}
	candidates, sectionsBySubject, err := s.candidatesWithSections(ctx, student, term)
	if err != nil {
		return nil, err
	}
	result := &EligibilityResult{Student: *student, Term: *term, Subjects: make([]models.SubjectWithSections, 0, len(candidates))}
	for _, subject := range candidates {
		if subject.RecommendedYear == nil || *subject.RecommendedYear != student.YearLevel {
			continue
		}
		if subject.RecommendedSemester == nil || *subject.RecommendedSemester != term.Semester {
			continue
		}
		result.Subjects = append(result.Subjects, models.SubjectWithSections{Subject: subject, Sections: sectionsBySubject[subject.ID]})
	}
	return result, nil
}

// InvalidateStudent drops cached eligibility results for a student after a
// write that changes their enrollability.
func (s *EligibilityService) InvalidateStudent(ctx context.Context, studentID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("eligibility:available:%s:*", studentID)); err != nil {
		s.logger.Warn("eligibility cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *EligibilityService) resolveContext(ctx context.Context, studentID, termID string) (*models.StudentDetail, *models.AcademicTerm, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	var term *models.AcademicTerm
	if termID != "" {
		term, err = s.terms.FindByID(ctx, termID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
	} else {
		term, err = s.terms.FindActive(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, nil, appErrors.Clone(appErrors.ErrNoActiveTerm, "no active academic term")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve active term")
		}
	}
	return student, term, nil
}

func (s *EligibilityService) candidatesWithSections(ctx context.Context, student *models.StudentDetail, term *models.AcademicTerm) ([]models.Subject, map[string][]models.Section, error) {
	subjects, err := s.subjects.ListByProgram(ctx, student.ProgramID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program subjects")
	}

	candidates := make([]models.Subject, 0, len(subjects))
	ids := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		if subject.YearStanding != nil && *subject.YearStanding != student.YearLevel {
			continue
		}
		candidates = append(candidates, subject)
		ids = append(ids, subject.ID)
	}
	if len(ids) == 0 {
		return candidates, map[string][]models.Section{}, nil
	}

	sections, err := s.sections.ListOpenBySubjects(ctx, ids, term.SchoolYear, term.Semester)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load open sections")
	}
	return candidates, sections, nil
}

// prerequisiteSatisfied requires an approved, non-INC, non-DRP grade for the
// prerequisite subject earned in a school year before the current one.
func prerequisiteSatisfied(history []models.StudentGradeRecord, prerequisiteID, currentSchoolYear string) bool {
	for _, record := range history {
		if record.SubjectID != prerequisiteID || !record.Approved {
			continue
		}
		if record.GradeValue.IsIncomplete() || record.GradeValue.IsDropped() {
			continue
		}
		if record.SchoolYear < currentSchoolYear {
			return true
		}
	}
	return false
}

// underRepeatCooldown reports whether a failed attempt at this subject still
// blocks re-enrollment.
// cooldownExpiresWithin reports whether any repeat cooldown in the history
// ends after now but before now+ttl.
func cooldownExpiresWithin(history []models.StudentGradeRecord, now time.Time, ttl time.Duration) bool {
	deadline := now.Add(ttl)
	for _, record := range history {
		if !record.GradeValue.IsFailing() || record.RepeatEligibleDate == nil {
			continue
		}
		if record.RepeatEligibleDate.After(now) && record.RepeatEligibleDate.Before(deadline) {
			return true
		}
	}
	return false
}

func underRepeatCooldown(history []models.StudentGradeRecord, subjectID string, now time.Time) bool {
	for _, record := range history {
		if record.SubjectID != subjectID {
			continue
		}
		if !record.GradeValue.IsFailing() || record.RepeatEligibleDate == nil {
			continue
		}
		if now.Before(*record.RepeatEligibleDate) {
			return true
		}
	}
	return false
}
