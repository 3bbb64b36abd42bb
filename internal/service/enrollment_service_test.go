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

type fakeEnrollmentRepo struct {
	exists      bool
	existsInTx  bool
	existsErr   error
	created     *models.Enrollment
	lines       []models.EnrollmentSubject
	enrollments map[string]models.Enrollment
	sectionIDs  []string
	status      map[string]models.EnrollmentStatus
}

func (f *fakeEnrollmentRepo) ExistsNonCancelled(ctx context.Context, studentID, termID string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeEnrollmentRepo) ExistsNonCancelledWithTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (bool, error) {
	return f.existsInTx, nil
}

func (f *fakeEnrollmentRepo) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, lines []models.EnrollmentSubject) error {
	if enrollment.ID == "" {
		enrollment.ID = "enr-1"
	}
	f.created = enrollment
	f.lines = lines
	if f.enrollments == nil {
		f.enrollments = make(map[string]models.Enrollment)
	}
	f.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (f *fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := f.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := f.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentRepo) SectionIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	return f.sectionIDs, nil
}

func (f *fakeEnrollmentRepo) UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus) error {
	if f.status == nil {
		f.status = make(map[string]models.EnrollmentStatus)
	}
	f.status[id] = status
	if e, ok := f.enrollments[id]; ok {
		e.Status = status
		f.enrollments[id] = e
	}
	return nil
}

func (f *fakeEnrollmentRepo) History(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

type fakeSectionLocker struct {
	locked      []models.Section
	takeSlotErr map[string]error
	taken       []string
	released    []string
}

func (f *fakeSectionLocker) LockAvailable(ctx context.Context, tx *sqlx.Tx, sectionIDs []string) ([]models.Section, error) {
	return f.locked, nil
}

func (f *fakeSectionLocker) TakeSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	if err, ok := f.takeSlotErr[sectionID]; ok {
		return err
	}
	f.taken = append(f.taken, sectionID)
	return nil
}

func (f *fakeSectionLocker) ReleaseSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	f.released = append(f.released, sectionID)
	return nil
}

type fakeSubjectReader struct {
	subjects map[string]models.Subject
}

func (f *fakeSubjectReader) FindByIDs(ctx context.Context, ids []string) (map[string]models.Subject, error) {
	return f.subjects, nil
}

type fakeActiveTermReader struct {
	term *models.AcademicTerm
}

func (f *fakeActiveTermReader) FindActive(ctx context.Context) (*models.AcademicTerm, error) {
	if f.term == nil {
		return nil, sql.ErrNoRows
	}
	return f.term, nil
}

type fakeStudentReader struct {
	students map[string]*models.StudentDetail
	locked   []string
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStudentReader) LockForStanding(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	f.locked = append(f.locked, studentID)
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (*txProviderMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func activeTerm() *models.AcademicTerm {
	return &models.AcademicTerm{ID: "term-1", SchoolYear: "2025-2026", Semester: models.SemesterFirst, IsActive: true}
}

func enrollDeps(t *testing.T) (*fakeEnrollmentRepo, *fakeSectionLocker, *fakeSubjectReader, *txProviderMock, sqlmock.Sqlmock) {
	repo := &fakeEnrollmentRepo{}
	sections := &fakeSectionLocker{locked: []models.Section{
		{ID: "sec-1", SubjectID: "sub-1", AvailableSlots: 10, MaxSlots: 40, Status: models.SectionStatusOpen},
		{ID: "sec-2", SubjectID: "sub-2", AvailableSlots: 5, MaxSlots: 40, Status: models.SectionStatusOpen},
	}}
	subjects := &fakeSubjectReader{subjects: map[string]models.Subject{
		"sub-1": {ID: "sub-1", Code: "CS101", Units: 3},
		"sub-2": {ID: "sub-2", Code: "MATH101", Units: 3},
	}}
	tx, mock := newTxProviderMock(t)
	return repo, sections, subjects, tx, mock
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo, sections, subjects, tx, mock := enrollDeps(t)
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1", YearLevel: 1}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1", "sec-2"}, TotalUnits: 6})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.EnrollmentStatusPending, repo.created.Status)
	assert.Equal(t, 6, repo.created.TotalUnits)
	assert.Len(t, repo.lines, 2)
	assert.ElementsMatch(t, []string{"sec-1", "sec-2"}, sections.taken)
	assert.Equal(t, repo.created.ID, detail.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollUnitCap(t *testing.T) {
	repo, sections, subjects, tx, _ := enrollDeps(t)
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1"}, TotalUnits: 31})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnitCapExceeded.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceEnrollNoActiveTerm(t *testing.T) {
	repo, sections, subjects, tx, _ := enrollDeps(t)
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{}, students, tx, nil, 30, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1"}, TotalUnits: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoActiveTerm.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	repo, sections, subjects, tx, _ := enrollDeps(t)
	repo.exists = true
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1"}, TotalUnits: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceEnrollDuplicateRacedPastFastPath(t *testing.T) {
	repo, sections, subjects, tx, mock := enrollDeps(t)
	repo.exists = false
	repo.existsInTx = true
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1"}, TotalUnits: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"s1"}, students.locked)
	assert.Nil(t, repo.created)
	assert.Empty(t, sections.taken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollSectionsUnavailable(t *testing.T) {
	repo, sections, subjects, tx, mock := enrollDeps(t)
	sections.locked = sections.locked[:1]
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1", "sec-2"}, TotalUnits: 6})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSectionsUnavailable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollLastSlotLost(t *testing.T) {
	repo, sections, subjects, tx, mock := enrollDeps(t)
	sections.takeSlotErr = map[string]error{"sec-2": sql.ErrNoRows}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", SectionIDs: []string{"sec-1", "sec-2"}, TotalUnits: 6})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSectionsUnavailable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceCancel(t *testing.T) {
	repo, sections, subjects, tx, mock := enrollDeps(t)
	repo.enrollments = map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "s1", Status: models.EnrollmentStatusPending}}
	repo.sectionIDs = []string{"sec-1", "sec-2"}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := svc.Cancel(context.Background(), "s1", "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, repo.status["enr-1"])
	assert.ElementsMatch(t, []string{"sec-1", "sec-2"}, sections.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceCancelNotPending(t *testing.T) {
	repo, sections, subjects, tx, _ := enrollDeps(t)
	repo.enrollments = map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "s1", Status: models.EnrollmentStatusConfirmed}}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	err := svc.Cancel(context.Background(), "s1", "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotCancellable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, sections.released)
}

func TestEnrollmentServiceCancelWrongStudent(t *testing.T) {
	repo, sections, subjects, tx, _ := enrollDeps(t)
	repo.enrollments = map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "s1", Status: models.EnrollmentStatusPending}}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s2": {Student: models.Student{ID: "s2"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	err := svc.Cancel(context.Background(), "s2", "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotCancellable.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceConfirm(t *testing.T) {
	repo, sections, subjects, tx, mock := enrollDeps(t)
	repo.enrollments = map[string]models.Enrollment{"enr-1": {ID: "enr-1", StudentID: "s1", Status: models.EnrollmentStatusPending}}
	students := &fakeStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}}
	svc := NewEnrollmentService(repo, sections, subjects, &fakeActiveTermReader{term: activeTerm()}, students, tx, nil, 30, validator.New(), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	detail, err := svc.Confirm(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusConfirmed, detail.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
