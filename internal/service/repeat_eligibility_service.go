package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type repeatGradeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	ListFailedWithRepeatDate(ctx context.Context, studentID, subjectID string) ([]models.FailedGradeRecord, error)
	ListAllFailedWithRepeatDate(ctx context.Context, programID string, yearLevel *int) ([]models.FailedGradeRecord, error)
	UpdateRepeatEligibleDate(ctx context.Context, gradeID string, newDate time.Time) error
	StudentOfGrade(ctx context.Context, gradeID string) (string, error)
}

type repeatStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// RepeatEligibilityService answers when a failed subject may be retaken.
// The actual enrollment gating happens in the eligibility resolver; these
// reads exist for student self-service and registrar oversight.
type RepeatEligibilityService struct {
	grades      repeatGradeRepository
	students    repeatStudentReader
	eligibility *EligibilityService
	logger      *zap.Logger
	now         func() time.Time
}

// NewRepeatEligibilityService constructs RepeatEligibilityService.
func NewRepeatEligibilityService(grades repeatGradeRepository, students repeatStudentReader, eligibility *EligibilityService, logger *zap.Logger) *RepeatEligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepeatEligibilityService{grades: grades, students: students, eligibility: eligibility, logger: logger, now: time.Now}
}

// Check evaluates every dated failing grade of the student, optionally
// narrowed to one subject.
func (s *RepeatEligibilityService) Check(ctx context.Context, studentID, subjectID string) ([]models.RepeatEligibility, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	records, err := s.grades.ListFailedWithRepeatDate(ctx, studentID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load failed grades")
	}
	now := s.now()
	results := make([]models.RepeatEligibility, 0, len(records))
	for _, record := range records {
		results = append(results, s.evaluate(record, now))
	}
	return results, nil
}

// AllStudents aggregates repeat eligibility per student across the whole
// population, optionally filtered by program and year level.
func (s *RepeatEligibilityService) AllStudents(ctx context.Context, programID string, yearLevel *int) ([]models.StudentRepeatSummary, error) {
	records, err := s.grades.ListAllFailedWithRepeatDate(ctx, programID, yearLevel)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load failed grades")
	}
	now := s.now()
	byStudent := map[string]int{}
	summaries := make([]models.StudentRepeatSummary, 0)
	for _, record := range records {
		idx, ok := byStudent[record.StudentID]
		if !ok {
			idx = len(summaries)
			byStudent[record.StudentID] = idx
			summaries = append(summaries, models.StudentRepeatSummary{
				StudentID:   record.StudentID,
				StudentName: record.StudentName,
				ProgramID:   record.ProgramID,
				YearLevel:   record.YearLevel,
			})
		}
		entry := s.evaluate(record, now)
		if entry.IsEligible {
			summaries[idx].EligibleNow++
		} else {
			summaries[idx].PendingCount++
		}
		summaries[idx].Subjects = append(summaries[idx].Subjects, entry)
	}
	return summaries, nil
}

// UpdateEligibilityDate overrides a failing grade's cooldown date. Only a
// 5.0 grade may carry an override.
func (s *RepeatEligibilityService) UpdateEligibilityDate(ctx context.Context, gradeID string, newDate time.Time) error {
	grade, err := s.grades.FindByID(ctx, gradeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if !grade.GradeValue.IsFailing() {
		return appErrors.Clone(appErrors.ErrNotAFailure, "grade is not a failing grade")
	}
	if err := s.grades.UpdateRepeatEligibleDate(ctx, gradeID, newDate); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update repeat date")
	}
	if s.eligibility != nil {
		if studentID, err := s.grades.StudentOfGrade(ctx, gradeID); err == nil {
			s.eligibility.InvalidateStudent(ctx, studentID)
		}
	}
	s.logger.Info("repeat eligibility date overridden",
		zap.String("grade_id", gradeID),
		zap.Time("new_date", newDate))
	return nil
}

func (s *RepeatEligibilityService) evaluate(record models.FailedGradeRecord, now time.Time) models.RepeatEligibility {
	eligible := !now.Before(record.RepeatEligibleDate)
	days := 0
	if !eligible {
		remaining := record.RepeatEligibleDate.Sub(now)
		days = int((remaining + 24*time.Hour - time.Nanosecond) / (24 * time.Hour))
	}
	return models.RepeatEligibility{
		GradeID:            record.GradeID,
		SubjectID:          record.SubjectID,
		SubjectCode:        record.SubjectCode,
		SubjectName:        record.SubjectName,
		FailedSchoolYear:   record.SchoolYear,
		RepeatEligibleDate: record.RepeatEligibleDate,
		IsEligible:         eligible,
		DaysUntilEligible:  days,
	}
}
