package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/college-registrar-api/internal/models"
)

func sectionRows(ids ...string) *sqlmock.Rows {
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "subject_id", "professor_id", "name", "school_year", "semester", "max_slots", "available_slots", "status", "created_at", "updated_at"})
	for _, id := range ids {
		rows.AddRow(id, "sub-1", "prof-1", "A", "2025-2026", string(models.SemesterFirst), 40, 10, string(models.SectionStatusOpen), now, now)
	}
	return rows
}

func beginTx(t *testing.T, db *sqlx.DB, mock sqlmock.Sqlmock) *sqlx.Tx {
	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	return tx
}

func TestTakeSlotDecrements(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectExec("UPDATE sections SET available_slots = available_slots - 1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.TakeSlot(context.Background(), tx, "sec-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTakeSlotFullSection(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectExec("UPDATE sections SET available_slots = available_slots - 1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.TakeSlot(context.Background(), tx, "sec-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseSlotCappedAtMax(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE sections SET available_slots = available_slots \+ 1, updated_at = \$2\s+WHERE id = \$1 AND available_slots < max_slots`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReleaseSlot(context.Background(), tx, "sec-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockAvailableSkipsFullSections(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectQuery(`SELECT .+ FROM sections\s+WHERE id IN \(\$1,\$2\) AND status = \$3 AND available_slots > 0\s+FOR UPDATE`).
		WithArgs("sec-1", "sec-2", string(models.SectionStatusOpen)).
		WillReturnRows(sectionRows("sec-1"))

	sections, err := repo.LockAvailable(context.Background(), tx, []string{"sec-1", "sec-2"})
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "sec-1", sections[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpenBySubjectsGroupsBySubject(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "subject_id", "professor_id", "name", "school_year", "semester", "max_slots", "available_slots", "status", "created_at", "updated_at"}).
		AddRow("sec-1", "sub-1", "prof-1", "A", "2025-2026", string(models.SemesterFirst), 40, 10, string(models.SectionStatusOpen), now, now).
		AddRow("sec-2", "sub-1", "prof-2", "B", "2025-2026", string(models.SemesterFirst), 40, 5, string(models.SectionStatusOpen), now, now).
		AddRow("sec-3", "sub-2", "prof-1", "A", "2025-2026", string(models.SemesterFirst), 40, 8, string(models.SectionStatusOpen), now, now)
	mock.ExpectQuery(`SELECT .+ FROM sections\s+WHERE subject_id IN \(\$1,\$2\) AND school_year = \$3 AND semester = \$4 AND status = \$5 AND available_slots > 0`).
		WithArgs("sub-1", "sub-2", "2025-2026", models.SemesterFirst, models.SectionStatusOpen).
		WillReturnRows(rows)

	result, err := repo.ListOpenBySubjects(context.Background(), []string{"sub-1", "sub-2"}, "2025-2026", models.SemesterFirst)
	require.NoError(t, err)
	assert.Len(t, result["sub-1"], 2)
	assert.Len(t, result["sub-2"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOpenBySubjectsEmptyInput(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	result, err := repo.ListOpenBySubjects(context.Background(), nil, "2025-2026", models.SemesterFirst)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestIsOwnedByProfessor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery("SELECT 1 FROM sections WHERE id = ").
		WithArgs("sec-1", "prof-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	owned, err := repo.IsOwnedByProfessor(context.Background(), "sec-1", "prof-1")
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestIsOwnedByProfessorNoRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery("SELECT 1 FROM sections WHERE id = ").
		WithArgs("sec-1", "prof-2").
		WillReturnError(sql.ErrNoRows)

	owned, err := repo.IsOwnedByProfessor(context.Background(), "sec-1", "prof-2")
	require.NoError(t, err)
	assert.False(t, owned)
}
