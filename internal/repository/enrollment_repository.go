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

// EnrollmentRepository handles persistence of enrollments and their subject
// lines. Multi-row writes run inside a caller-provided transaction so slot
// accounting commits or rolls back together with the enrollment.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ExistsNonCancelled checks whether the student already holds a pending or
// confirmed enrollment for the term.
func (r *EnrollmentRepository) ExistsNonCancelled(ctx context.Context, studentID, termID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND term_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, termID, models.EnrollmentStatusCancelled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ExistsNonCancelledWithTx runs the same check inside tx, after the caller
// has locked the student row.
func (r *EnrollmentRepository) ExistsNonCancelledWithTx(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND term_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := tx.GetContext(ctx, &exists, query, studentID, termID, models.EnrollmentStatusCancelled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// CreateWithTx inserts the enrollment and its subject lines inside tx.
func (r *EnrollmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment, lines []models.EnrollmentSubject) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}

	const insertEnrollment = `INSERT INTO enrollments (id, student_id, term_id, status, total_units, enrolled_at, created_at, updated_at)
        VALUES (:id, :student_id, :term_id, :status, :total_units, :enrolled_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertEnrollment, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}

	const insertLine = `INSERT INTO enrollment_subjects (id, enrollment_id, subject_id, section_id, units, created_at)
        VALUES (:id, :enrollment_id, :subject_id, :section_id, :units, :created_at)`
	for i := range lines {
		if lines[i].ID == "" {
			lines[i].ID = uuid.NewString()
		}
		lines[i].EnrollmentID = enrollment.ID
		if lines[i].CreatedAt.IsZero() {
			lines[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, insertLine, lines[i]); err != nil {
			return fmt.Errorf("create enrollment subject: %w", err)
		}
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, term_id, status, total_units, enrolled_at, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with term context and subject lines.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.term_id, e.status, e.total_units, e.enrolled_at, e.created_at, e.updated_at,
        t.school_year, t.semester
        FROM enrollments e
        JOIN academic_terms t ON t.id = e.term_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	lines, err := r.ListSubjects(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Subjects = lines
	return &detail, nil
}

// ListSubjects returns the subject lines of one enrollment.
func (r *EnrollmentRepository) ListSubjects(ctx context.Context, enrollmentID string) ([]models.EnrollmentSubjectDetail, error) {
	const query = `SELECT es.id, es.enrollment_id, es.subject_id, es.section_id, es.units, es.created_at,
        sub.code AS subject_code, sub.name AS subject_name, sec.name AS section_name
        FROM enrollment_subjects es
        JOIN subjects sub ON sub.id = es.subject_id
        JOIN sections sec ON sec.id = es.section_id
        WHERE es.enrollment_id = $1
        ORDER BY sub.code ASC`
	var lines []models.EnrollmentSubjectDetail
	if err := r.db.SelectContext(ctx, &lines, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment subjects: %w", err)
	}
	return lines, nil
}

// SectionIDs returns the section references of an enrollment's lines.
func (r *EnrollmentRepository) SectionIDs(ctx context.Context, enrollmentID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT section_id FROM enrollment_subjects WHERE enrollment_id = $1`, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment sections: %w", err)
	}
	return ids, nil
}

// UpdateStatusWithTx updates the enrollment status inside tx.
func (r *EnrollmentRepository) UpdateStatusWithTx(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateStatus updates the enrollment status outside of a transaction.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// History returns a student's enrollments, newest term first, each with its
// subject lines attached.
func (r *EnrollmentRepository) History(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.term_id, e.status, e.total_units, e.enrolled_at, e.created_at, e.updated_at,
        t.school_year, t.semester
        FROM enrollments e
        JOIN academic_terms t ON t.id = e.term_id
        WHERE e.student_id = $1
        ORDER BY t.school_year DESC, t.semester DESC, e.enrolled_at DESC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollment history: %w", err)
	}
	if len(details) == 0 {
		return details, nil
	}

	index := make(map[string]int, len(details))
	placeholders := make([]string, len(details))
	args := make([]interface{}, len(details))
	for i := range details {
		index[details[i].ID] = i
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = details[i].ID
	}
	query2 := fmt.Sprintf(`SELECT es.id, es.enrollment_id, es.subject_id, es.section_id, es.units, es.created_at,
        sub.code AS subject_code, sub.name AS subject_name, sec.name AS section_name
        FROM enrollment_subjects es
        JOIN subjects sub ON sub.id = es.subject_id
        JOIN sections sec ON sec.id = es.section_id
        WHERE es.enrollment_id IN (%s)
        ORDER BY sub.code ASC`, strings.Join(placeholders, ","))
	rows, err := r.db.QueryxContext(ctx, query2, args...)
	if err != nil {
		return nil, fmt.Errorf("list history subjects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line models.EnrollmentSubjectDetail
		if err := rows.StructScan(&line); err != nil {
			return nil, fmt.Errorf("scan history subject: %w", err)
		}
		if i, ok := index[line.EnrollmentID]; ok {
			details[i].Subjects = append(details[i].Subjects, line)
		}
	}
	return details, rows.Err()
}
