package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-registrar-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := "FROM students s JOIN programs p ON p.id = s.program_id"
	var args []interface{}
	conditions := []string{"1=1"}

	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("s.program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.YearLevel != nil {
		conditions = append(conditions, fmt.Sprintf("s.year_level = $%d", len(args)+1))
		args = append(args, *filter.YearLevel)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.student_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":      "s.full_name",
		"student_number": "s.student_number",
		"year_level":     "s.year_level",
		"gpa":            "s.gpa",
		"created_at":     "s.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.student_number, s.full_name, s.program_id, s.year_level, s.gpa, s.has_inc, s.status, s.created_at, s.updated_at,
        p.code AS program_code, p.name AS program_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student detail by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	const query = `SELECT s.id, s.student_number, s.full_name, s.program_id, s.year_level, s.gpa, s.has_inc, s.status, s.created_at, s.updated_at,
        p.code AS program_code, p.name AS program_name
        FROM students s
        JOIN programs p ON p.id = s.program_id
        WHERE s.id = $1`
	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByStudentNumber checks student-number uniqueness, optionally excluding an ID.
func (r *StudentRepository) ExistsByStudentNumber(ctx context.Context, number string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE student_number = $1"
	args := []interface{}{number}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student number: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	const query = `INSERT INTO students (id, student_number, full_name, program_id, year_level, gpa, has_inc, status, created_at, updated_at)
        VALUES (:id, :student_number, :full_name, :program_id, :year_level, :gpa, :has_inc, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateAcademicStanding persists the recomputed GPA and INC flag. It is
// only called while the caller holds the student row lock.
func (r *StudentRepository) UpdateAcademicStanding(ctx context.Context, tx *sqlx.Tx, studentID string, gpa float64, hasInc bool) error {
	const query = `UPDATE students SET gpa = $2, has_inc = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, studentID, gpa, hasInc, time.Now().UTC()); err != nil {
		return fmt.Errorf("update academic standing: %w", err)
	}
	return nil
}

// SetHasInc flips the cached INC flag outside of a recompute cycle.
func (r *StudentRepository) SetHasInc(ctx context.Context, studentID string, hasInc bool) error {
	const query = `UPDATE students SET has_inc = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID, hasInc, time.Now().UTC()); err != nil {
		return fmt.Errorf("set has_inc: %w", err)
	}
	return nil
}

// LockForStanding acquires the student row lock inside tx, serializing
// concurrent GPA recomputations for the same student.
func (r *StudentRepository) LockForStanding(ctx context.Context, tx *sqlx.Tx, studentID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		return fmt.Errorf("lock student: %w", err)
	}
	return nil
}
