package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type fakeRepeatGradeRepo struct {
	grades    map[string]*models.Grade
	failed    []models.FailedGradeRecord
	allFailed []models.FailedGradeRecord
	updated   map[string]time.Time
	studentOf map[string]string
}

func (f *fakeRepeatGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := f.grades[id]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRepeatGradeRepo) ListFailedWithRepeatDate(ctx context.Context, studentID, subjectID string) ([]models.FailedGradeRecord, error) {
	return f.failed, nil
}

func (f *fakeRepeatGradeRepo) ListAllFailedWithRepeatDate(ctx context.Context, programID string, yearLevel *int) ([]models.FailedGradeRecord, error) {
	return f.allFailed, nil
}

func (f *fakeRepeatGradeRepo) UpdateRepeatEligibleDate(ctx context.Context, gradeID string, newDate time.Time) error {
	if f.updated == nil {
		f.updated = make(map[string]time.Time)
	}
	f.updated[gradeID] = newDate
	return nil
}

func (f *fakeRepeatGradeRepo) StudentOfGrade(ctx context.Context, gradeID string) (string, error) {
	if id, ok := f.studentOf[gradeID]; ok {
		return id, nil
	}
	return "", sql.ErrNoRows
}

func repeatDeps() (*fakeRepeatGradeRepo, *fakeStudentReader, *RepeatEligibilityService) {
	repo := &fakeRepeatGradeRepo{}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1"}},
	}}
	svc := NewRepeatEligibilityService(repo, students, nil, zap.NewNop())
	return repo, students, svc
}

func failedRecord(gradeID, subjectID string, date time.Time) models.FailedGradeRecord {
	return models.FailedGradeRecord{
		GradeID:            gradeID,
		StudentID:          "s1",
		SubjectID:          subjectID,
		SubjectCode:        "CS101",
		SchoolYear:         "2024-2025",
		RepeatEligibleDate: date,
	}
}

func TestRepeatCheckNotYetEligible(t *testing.T) {
	repo, _, svc := repeatDeps()
	repo.failed = []models.FailedGradeRecord{
		failedRecord("g-1", "sub-1", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
	}
	svc.now = func() time.Time { return time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC) }

	results, err := svc.Check(context.Background(), "s1", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsEligible)
	assert.Equal(t, 1, results[0].DaysUntilEligible)
}

func TestRepeatCheckEligibleOnTheDate(t *testing.T) {
	repo, _, svc := repeatDeps()
	repo.failed = []models.FailedGradeRecord{
		failedRecord("g-1", "sub-1", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
	}
	svc.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }

	results, err := svc.Check(context.Background(), "s1", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsEligible)
	assert.Equal(t, 0, results[0].DaysUntilEligible)
}

func TestRepeatCheckPartialDayRoundsUp(t *testing.T) {
	repo, _, svc := repeatDeps()
	repo.failed = []models.FailedGradeRecord{
		failedRecord("g-1", "sub-1", time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
	}
	svc.now = func() time.Time { return time.Date(2025, 6, 29, 18, 0, 0, 0, time.UTC) }

	results, err := svc.Check(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].DaysUntilEligible)
}

func TestRepeatCheckStudentNotFound(t *testing.T) {
	_, _, svc := repeatDeps()

	_, err := svc.Check(context.Background(), "missing", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRepeatAllStudentsGroupsByStudent(t *testing.T) {
	repo, _, svc := repeatDeps()
	eligible := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pending := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	other := failedRecord("g-3", "sub-3", eligible)
	other.StudentID = "s2"
	repo.allFailed = []models.FailedGradeRecord{
		failedRecord("g-1", "sub-1", eligible),
		failedRecord("g-2", "sub-2", pending),
		other,
	}
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	summaries, err := svc.AllStudents(context.Background(), "", nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "s1", summaries[0].StudentID)
	assert.Equal(t, 1, summaries[0].EligibleNow)
	assert.Equal(t, 1, summaries[0].PendingCount)
	assert.Len(t, summaries[0].Subjects, 2)
	assert.Equal(t, "s2", summaries[1].StudentID)
	assert.Equal(t, 1, summaries[1].EligibleNow)
}

func TestRepeatUpdateDateRejectsNonFailure(t *testing.T) {
	repo, _, svc := repeatDeps()
	repo.grades = map[string]*models.Grade{"g-1": {ID: "g-1", GradeValue: models.Grade200}}

	err := svc.UpdateEligibilityDate(context.Background(), "g-1", time.Now())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotAFailure.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.updated)
}

func TestRepeatUpdateDateOverridesFailure(t *testing.T) {
	repo, _, svc := repeatDeps()
	repo.grades = map[string]*models.Grade{"g-1": {ID: "g-1", GradeValue: models.Grade500}}
	newDate := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	err := svc.UpdateEligibilityDate(context.Background(), "g-1", newDate)
	require.NoError(t, err)
	assert.Equal(t, newDate, repo.updated["g-1"])
}

func TestRepeatUpdateDateNotFound(t *testing.T) {
	_, _, svc := repeatDeps()

	err := svc.UpdateEligibilityDate(context.Background(), "missing", time.Now())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
