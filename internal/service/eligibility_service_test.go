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

type fakeTermRepo struct {
	byID   map[string]*models.AcademicTerm
	active *models.AcademicTerm
}

func (f *fakeTermRepo) FindByID(ctx context.Context, id string) (*models.AcademicTerm, error) {
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTermRepo) FindActive(ctx context.Context) (*models.AcademicTerm, error) {
	if f.active == nil {
		return nil, sql.ErrNoRows
	}
	return f.active, nil
}

type fakeProgramCatalog struct {
	subjects []models.Subject
}

func (f *fakeProgramCatalog) ListByProgram(ctx context.Context, programID string) ([]models.Subject, error) {
	return f.subjects, nil
}

type fakeSectionLister struct {
	open map[string][]models.Section
}

func (f *fakeSectionLister) ListOpenBySubjects(ctx context.Context, subjectIDs []string, schoolYear string, semester models.Semester) (map[string][]models.Section, error) {
	return f.open, nil
}

type fakeGradeHistory struct {
	history []models.StudentGradeRecord
	incs    []models.IncSubject
}

func (f *fakeGradeHistory) HistoryByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRecord, error) {
	return f.history, nil
}

func (f *fakeGradeHistory) ListIncSubjects(ctx context.Context, studentID string) ([]models.IncSubject, error) {
	return f.incs, nil
}

type eligibilityFixture struct {
	terms    *fakeTermRepo
	students *fakeStudentReader
	catalog  *fakeProgramCatalog
	sections *fakeSectionLister
	grades   *fakeGradeHistory
	svc      *EligibilityService
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func semPtr(s models.Semester) *models.Semester { return &s }

func eligibilityDeps() eligibilityFixture {
	terms := &fakeTermRepo{active: activeTerm()}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", ProgramID: "prog-1", YearLevel: 2}},
	}}
	catalog := &fakeProgramCatalog{subjects: []models.Subject{
		{ID: "sub-1", Code: "CS101", Units: 3},
		{ID: "sub-2", Code: "CS201", Units: 3, PrerequisiteID: strPtr("sub-1")},
	}}
	sections := &fakeSectionLister{open: map[string][]models.Section{
		"sub-1": {{ID: "sec-1", SubjectID: "sub-1"}},
		"sub-2": {{ID: "sec-2", SubjectID: "sub-2"}},
	}}
	grades := &fakeGradeHistory{}
	cache := NewCacheService(nil, nil, 0, nil, false)
	svc := NewEligibilityService(terms, students, catalog, sections, grades, cache, time.Minute, zap.NewNop())
	return eligibilityFixture{terms: terms, students: students, catalog: catalog, sections: sections, grades: grades, svc: svc}
}

func subjectIDs(result *EligibilityResult) []string {
	ids := make([]string, 0, len(result.Subjects))
	for _, s := range result.Subjects {
		ids = append(ids, s.Subject.ID)
	}
	return ids
}

func TestEligibilityExcludesUnmetPrerequisite(t *testing.T) {
	f := eligibilityDeps()

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1"}, subjectIDs(result))
}

func TestEligibilityAdmitsSatisfiedPrerequisite(t *testing.T) {
	f := eligibilityDeps()
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade200, Approved: true, SchoolYear: "2024-2025"},
	}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1", "sub-2"}, subjectIDs(result))
}

func TestEligibilityPrerequisiteFromSameYearDoesNotCount(t *testing.T) {
	f := eligibilityDeps()
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade200, Approved: true, SchoolYear: "2025-2026"},
	}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1"}, subjectIDs(result))
}

func TestEligibilityFailingGradeStillSatisfiesPrerequisite(t *testing.T) {
	f := eligibilityDeps()
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade500, Approved: true, SchoolYear: "2024-2025"},
	}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Contains(t, subjectIDs(result), "sub-2")
}

func TestEligibilityIncBlocksSubjectAndDependents(t *testing.T) {
	f := eligibilityDeps()
	f.students.students["s1"].HasInc = true
	f.grades.incs = []models.IncSubject{{SubjectID: "sub-1"}}
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade200, Approved: true, SchoolYear: "2024-2025"},
	}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Empty(t, subjectIDs(result))
}

func TestEligibilityRepeatCooldownBlocksSubject(t *testing.T) {
	f := eligibilityDeps()
	repeatDate := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade500, Approved: true, SchoolYear: "2024-2025", RepeatEligibleDate: &repeatDate},
	}
	f.svc.now = func() time.Time { return time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC) }

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.NotContains(t, subjectIDs(result), "sub-1")
}

func TestEligibilityRepeatCooldownExpires(t *testing.T) {
	f := eligibilityDeps()
	repeatDate := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade500, Approved: true, SchoolYear: "2024-2025", RepeatEligibleDate: &repeatDate},
	}
	f.svc.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Contains(t, subjectIDs(result), "sub-1")
}

type recordingCacheRepo struct {
	setKeys []string
}

func (r *recordingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (r *recordingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.setKeys = append(r.setKeys, key)
	return nil
}

func (r *recordingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	return nil
}

func TestEligibilitySkipsCacheWhenCooldownEndsInsideTTL(t *testing.T) {
	f := eligibilityDeps()
	cacheRepo := &recordingCacheRepo{}
	f.svc.cache = NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	repeatDate := time.Date(2025, 6, 30, 12, 0, 30, 0, time.UTC)
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade500, Approved: true, SchoolYear: "2024-2025", RepeatEligibleDate: &repeatDate},
	}
	f.svc.now = func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) }

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.NotContains(t, subjectIDs(result), "sub-1")
	assert.Empty(t, cacheRepo.setKeys)
}

func TestEligibilityCachesWhenCooldownEndsBeyondTTL(t *testing.T) {
	f := eligibilityDeps()
	cacheRepo := &recordingCacheRepo{}
	f.svc.cache = NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	repeatDate := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade500, Approved: true, SchoolYear: "2024-2025", RepeatEligibleDate: &repeatDate},
	}
	f.svc.now = func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) }

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.NotContains(t, subjectIDs(result), "sub-1")
	assert.Equal(t, []string{"eligibility:available:s1:term-1"}, cacheRepo.setKeys)
}

func TestEligibilityDropsSubjectsWithoutOpenSections(t *testing.T) {
	f := eligibilityDeps()
	delete(f.sections.open, "sub-1")
	f.grades.history = []models.StudentGradeRecord{
		{SubjectID: "sub-1", GradeValue: models.Grade200, Approved: true, SchoolYear: "2024-2025"},
	}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-2"}, subjectIDs(result))
}

func TestEligibilityYearStandingFilter(t *testing.T) {
	f := eligibilityDeps()
	f.catalog.subjects = append(f.catalog.subjects, models.Subject{ID: "sub-3", Code: "CS401", Units: 3, YearStanding: intPtr(4)})
	f.sections.open["sub-3"] = []models.Section{{ID: "sec-3", SubjectID: "sub-3"}}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.NotContains(t, subjectIDs(result), "sub-3")
}

func TestEligibilityNoActiveTerm(t *testing.T) {
	f := eligibilityDeps()
	f.terms.active = nil

	_, err := f.svc.AvailableSubjects(context.Background(), "s1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoActiveTerm.Code, appErrors.FromError(err).Code)
}

func TestEligibilityStudentNotFound(t *testing.T) {
	f := eligibilityDeps()

	_, err := f.svc.AvailableSubjects(context.Background(), "missing", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEligibilityExplicitTerm(t *testing.T) {
	f := eligibilityDeps()
	f.terms.byID = map[string]*models.AcademicTerm{
		"term-2": {ID: "term-2", SchoolYear: "2026-2027", Semester: models.SemesterSecond},
	}

	result, err := f.svc.AvailableSubjects(context.Background(), "s1", "term-2")
	require.NoError(t, err)
	assert.Equal(t, "term-2", result.Term.ID)
}

func TestRecommendedSubjectsMatchYearAndSemester(t *testing.T) {
	f := eligibilityDeps()
	f.catalog.subjects = []models.Subject{
		{ID: "sub-1", Code: "CS101", Units: 3, RecommendedYear: intPtr(2), RecommendedSemester: semPtr(models.SemesterFirst)},
		{ID: "sub-2", Code: "CS201", Units: 3, RecommendedYear: intPtr(3), RecommendedSemester: semPtr(models.SemesterFirst)},
		{ID: "sub-3", Code: "CS102", Units: 3, RecommendedYear: intPtr(2), RecommendedSemester: semPtr(models.SemesterSecond)},
		{ID: "sub-4", Code: "GE101", Units: 3},
	}

	result, err := f.svc.RecommendedSubjects(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub-1"}, subjectIDs(result))
}
