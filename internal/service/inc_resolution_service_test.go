package service

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/college-registrar-api/internal/models"
	appErrors "github.com/noah-isme/college-registrar-api/pkg/errors"
)

type fakeIncResolutionRepo struct {
	resolutions map[string]*models.IncResolution
	unresolved  bool
	created     *models.IncResolution
	approved    []string
}

func (f *fakeIncResolutionRepo) FindByID(ctx context.Context, id string) (*models.IncResolution, error) {
	if r, ok := f.resolutions[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeIncResolutionRepo) ExistsUnresolved(ctx context.Context, studentID, subjectID, professorID string) (bool, error) {
	return f.unresolved, nil
}

func (f *fakeIncResolutionRepo) Create(ctx context.Context, resolution *models.IncResolution) error {
	if resolution.ID == "" {
		resolution.ID = "res-1"
	}
	f.created = resolution
	return nil
}

func (f *fakeIncResolutionRepo) ApproveWithTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	f.approved = append(f.approved, id)
	return nil
}

func (f *fakeIncResolutionRepo) ListByProfessor(ctx context.Context, professorID string) ([]models.IncResolutionDetail, error) {
	return nil, nil
}

func (f *fakeIncResolutionRepo) ListPending(ctx context.Context) ([]models.IncResolutionDetail, error) {
	return nil, nil
}

type fakeIncGradeRepo struct {
	incGrade    *models.Grade
	overwritten map[string]models.GradeValue
	incSubjects []models.IncSubject
}

func (f *fakeIncGradeRepo) FindIncGrade(ctx context.Context, studentID, subjectID string) (*models.Grade, error) {
	if f.incGrade == nil {
		return nil, sql.ErrNoRows
	}
	return f.incGrade, nil
}

func (f *fakeIncGradeRepo) OverwriteResolvedWithTx(ctx context.Context, tx *sqlx.Tx, gradeID string, value models.GradeValue, remarks *string) error {
	if f.overwritten == nil {
		f.overwritten = make(map[string]models.GradeValue)
	}
	f.overwritten[gradeID] = value
	return nil
}

func (f *fakeIncGradeRepo) ListIncSubjects(ctx context.Context, studentID string) ([]models.IncSubject, error) {
	return f.incSubjects, nil
}

type incFixture struct {
	repo     *fakeIncResolutionRepo
	grades   *fakeIncGradeRepo
	history  *fakeGradeRepo
	standing *fakeStandingRepo
	mock     sqlmock.Sqlmock
	svc      *IncResolutionService
}

func incDeps(t *testing.T) incFixture {
	repo := &fakeIncResolutionRepo{}
	grades := &fakeIncGradeRepo{
		incGrade: &models.Grade{ID: "g-inc", EnrollmentSubjectID: "es-1", GradeValue: models.GradeInc, Approved: true},
	}
	history := &fakeGradeRepo{studentOf: map[string]string{}}
	standing := &fakeStandingRepo{}
	tx, mock := newTxProviderMock(t)
	gradeSvc := NewGradeService(history, &fakeOwnership{owned: true}, &fakeSubjectCatalog{}, standing, tx, nil, 6, 12, validator.New(), zap.NewNop())
	svc := NewIncResolutionService(repo, grades, gradeSvc, tx, validator.New(), zap.NewNop())
	return incFixture{repo: repo, grades: grades, history: history, standing: standing, mock: mock, svc: svc}
}

func TestIncResolutionCreateRejectsNonNumericGrade(t *testing.T) {
	f := incDeps(t)

	_, err := f.svc.Create(context.Background(), "p1", CreateResolutionRequest{StudentID: "s1", SubjectID: "sub-1", NewGrade: string(models.GradeDrp)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidGrade.Code, appErrors.FromError(err).Code)
}

func TestIncResolutionCreateRequiresIncOnRecord(t *testing.T) {
	f := incDeps(t)
	f.grades.incGrade = nil

	_, err := f.svc.Create(context.Background(), "p1", CreateResolutionRequest{StudentID: "s1", SubjectID: "sub-1", NewGrade: string(models.Grade200)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoIncOnRecord.Code, appErrors.FromError(err).Code)
}

func TestIncResolutionCreateRejectsDuplicate(t *testing.T) {
	f := incDeps(t)
	f.repo.unresolved = true

	_, err := f.svc.Create(context.Background(), "p1", CreateResolutionRequest{StudentID: "s1", SubjectID: "sub-1", NewGrade: string(models.Grade200)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateResolution.Code, appErrors.FromError(err).Code)
}

func TestIncResolutionCreate(t *testing.T) {
	f := incDeps(t)

	resolution, err := f.svc.Create(context.Background(), "p1", CreateResolutionRequest{StudentID: "s1", SubjectID: "sub-1", NewGrade: string(models.Grade175)})
	require.NoError(t, err)
	assert.Equal(t, "res-1", resolution.ID)
	assert.Equal(t, models.GradeInc, resolution.OldGrade)
	assert.Equal(t, models.Grade175, resolution.NewGrade)
	assert.Equal(t, "p1", resolution.ProfessorID)
	assert.False(t, resolution.ApprovedByRegistrar)
}

func TestIncResolutionApproveOverwritesGradeAndRecomputes(t *testing.T) {
	f := incDeps(t)
	f.repo.resolutions = map[string]*models.IncResolution{
		"res-1": {ID: "res-1", StudentID: "s1", SubjectID: "sub-1", ProfessorID: "p1", OldGrade: models.GradeInc, NewGrade: models.Grade200},
	}
	f.history.history = []models.StudentGradeRecord{
		{GradeID: "g-inc", GradeValue: models.Grade200, Approved: true, Units: 3},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.Approve(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"res-1"}, f.repo.approved)
	assert.Equal(t, models.Grade200, f.grades.overwritten["g-inc"])
	assert.Contains(t, f.standing.locked, "s1")
	assert.InDelta(t, 2.0, f.standing.gpa["s1"], 0.0001)
	assert.False(t, f.standing.hasInc["s1"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIncResolutionApproveAlreadyApproved(t *testing.T) {
	f := incDeps(t)
	f.repo.resolutions = map[string]*models.IncResolution{
		"res-1": {ID: "res-1", StudentID: "s1", SubjectID: "sub-1", NewGrade: models.Grade200, ApprovedByRegistrar: true},
	}

	err := f.svc.Approve(context.Background(), "res-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyApproved.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.repo.approved)
}

func TestIncResolutionApproveNotFound(t *testing.T) {
	f := incDeps(t)

	err := f.svc.Approve(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestIncResolutionApproveWithoutIncRollsBack(t *testing.T) {
	f := incDeps(t)
	f.repo.resolutions = map[string]*models.IncResolution{
		"res-1": {ID: "res-1", StudentID: "s1", SubjectID: "sub-1", NewGrade: models.Grade200},
	}
	f.grades.incGrade = nil
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Approve(context.Background(), "res-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoIncOnRecord.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.grades.overwritten)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestIncResolutionBulkApproveRecomputesOncePerStudent(t *testing.T) {
	f := incDeps(t)
	f.repo.resolutions = map[string]*models.IncResolution{
		"res-1": {ID: "res-1", StudentID: "s1", SubjectID: "sub-1", NewGrade: models.Grade200},
		"res-2": {ID: "res-2", StudentID: "s1", SubjectID: "sub-2", NewGrade: models.Grade150},
	}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.BulkApprove(context.Background(), []string{"res-1", "res-2"})
	require.NoError(t, err)
	assert.Len(t, f.repo.approved, 2)
	assert.Equal(t, []string{"s1"}, f.standing.locked)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
