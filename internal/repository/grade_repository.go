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

// GradeRepository manages persistence of encoded grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = "id, enrollment_subject_id, grade_value, approved, encoded_by, date_encoded, remarks, repeat_eligible_date, created_at, updated_at"

// FindByID loads a grade by identifier.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE id = $1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// FindByEnrollmentSubject loads the grade attached to one subject line.
func (r *GradeRepository) FindByEnrollmentSubject(ctx context.Context, enrollmentSubjectID string) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE enrollment_subject_id = $1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentSubjectID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Upsert writes a professor's grade submission. Re-submission overwrites
// value, remarks, date and repeat date and always clears approval.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, enrollment_subject_id, grade_value, approved, encoded_by, date_encoded, remarks, repeat_eligible_date, created_at, updated_at)
        VALUES (:id, :enrollment_subject_id, :grade_value, :approved, :encoded_by, :date_encoded, :remarks, :repeat_eligible_date, :created_at, :updated_at)
        ON CONFLICT (enrollment_subject_id)
        DO UPDATE SET grade_value = EXCLUDED.grade_value, approved = FALSE, encoded_by = EXCLUDED.encoded_by,
            date_encoded = EXCLUDED.date_encoded, remarks = EXCLUDED.remarks,
            repeat_eligible_date = EXCLUDED.repeat_eligible_date, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// ApproveWithTx marks the grade approved inside tx. Approving an approved
// grade is a no-op.
func (r *GradeRepository) ApproveWithTx(ctx context.Context, tx *sqlx.Tx, gradeID string) error {
	const query = `UPDATE grades SET approved = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, gradeID, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve grade: %w", err)
	}
	return nil
}

// OverwriteResolvedWithTx replaces an INC grade with the resolved value and
// finalizes it, inside tx.
func (r *GradeRepository) OverwriteResolvedWithTx(ctx context.Context, tx *sqlx.Tx, gradeID string, value models.GradeValue, remarks *string) error {
	const query = `UPDATE grades SET grade_value = $2, approved = TRUE, remarks = COALESCE($3, remarks),
        repeat_eligible_date = NULL, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, gradeID, value, remarks, time.Now().UTC()); err != nil {
		return fmt.Errorf("overwrite resolved grade: %w", err)
	}
	return nil
}

// StudentOfGrade resolves the owning student of a grade row.
func (r *GradeRepository) StudentOfGrade(ctx context.Context, gradeID string) (string, error) {
	const query = `SELECT e.student_id
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        WHERE g.id = $1`
	var studentID string
	if err := r.db.GetContext(ctx, &studentID, query, gradeID); err != nil {
		return "", err
	}
	return studentID, nil
}

// ListPending returns unapproved grades for registrar review, optionally
// scoped to one term.
func (r *GradeRepository) ListPending(ctx context.Context, termID string) ([]models.GradeDetail, error) {
	base := `SELECT g.id, g.enrollment_subject_id, g.grade_value, g.approved, g.encoded_by, g.date_encoded, g.remarks, g.repeat_eligible_date, g.created_at, g.updated_at,
        e.student_id, stu.full_name AS student_name, es.subject_id, sub.code AS subject_code, sub.name AS subject_name,
        es.section_id, es.units, e.term_id
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN students stu ON stu.id = e.student_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE g.approved = FALSE`
	var args []interface{}
	if termID != "" {
		base += " AND e.term_id = $1"
		args = append(args, termID)
	}
	base += " ORDER BY g.date_encoded ASC"
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, base, args...); err != nil {
		return nil, fmt.Errorf("list pending grades: %w", err)
	}
	return grades, nil
}

// ListBySection returns every encoded grade of one section with student and
// subject context. Feeds the grade sheet export.
func (r *GradeRepository) ListBySection(ctx context.Context, sectionID string) ([]models.GradeDetail, error) {
	const query = `SELECT g.id, g.enrollment_subject_id, g.grade_value, g.approved, g.encoded_by, g.date_encoded, g.remarks, g.repeat_eligible_date, g.created_at, g.updated_at,
        e.student_id, stu.full_name AS student_name, es.subject_id, sub.code AS subject_code, sub.name AS subject_name,
        es.section_id, es.units, e.term_id
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN students stu ON stu.id = e.student_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE es.section_id = $1
        ORDER BY stu.full_name ASC`
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section grades: %w", err)
	}
	return grades, nil
}

// HistoryByStudent returns the student's grade records joined with subject
// and term context. Only non-cancelled enrollments contribute.
func (r *GradeRepository) HistoryByStudent(ctx context.Context, studentID string) ([]models.StudentGradeRecord, error) {
	const query = `SELECT g.id AS grade_id, es.subject_id, sub.code AS subject_code, g.grade_value, g.approved, es.units,
        t.school_year, g.repeat_eligible_date
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN academic_terms t ON t.id = e.term_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE e.student_id = $1 AND e.status <> $2`
	var records []models.StudentGradeRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, models.EnrollmentStatusCancelled); err != nil {
		return nil, fmt.Errorf("load grade history: %w", err)
	}
	return records, nil
}

// HistoryByStudentWithTx is HistoryByStudent executed inside tx so a GPA
// recompute observes the approval it follows.
func (r *GradeRepository) HistoryByStudentWithTx(ctx context.Context, tx *sqlx.Tx, studentID string) ([]models.StudentGradeRecord, error) {
	const query = `SELECT g.id AS grade_id, es.subject_id, sub.code AS subject_code, g.grade_value, g.approved, es.units,
        t.school_year, g.repeat_eligible_date
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN academic_terms t ON t.id = e.term_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE e.student_id = $1 AND e.status <> $2`
	var records []models.StudentGradeRecord
	if err := tx.SelectContext(ctx, &records, query, studentID, models.EnrollmentStatusCancelled); err != nil {
		return nil, fmt.Errorf("load grade history: %w", err)
	}
	return records, nil
}

// FindIncGrade locates the student's unresolved INC grade for one subject.
func (r *GradeRepository) FindIncGrade(ctx context.Context, studentID, subjectID string) (*models.Grade, error) {
	const query = `SELECT g.id, g.enrollment_subject_id, g.grade_value, g.approved, g.encoded_by, g.date_encoded, g.remarks, g.repeat_eligible_date, g.created_at, g.updated_at
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        WHERE e.student_id = $1 AND es.subject_id = $2 AND g.grade_value = $3
        ORDER BY g.date_encoded DESC
        LIMIT 1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, studentID, subjectID, models.GradeInc); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListIncSubjects returns the INC grades currently on a student's record.
func (r *GradeRepository) ListIncSubjects(ctx context.Context, studentID string) ([]models.IncSubject, error) {
	const query = `SELECT g.id AS grade_id, es.subject_id, sub.code AS subject_code, sub.name AS subject_name,
        t.school_year, g.date_encoded
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN academic_terms t ON t.id = e.term_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE e.student_id = $1 AND g.grade_value = $2
        ORDER BY g.date_encoded DESC`
	var subjects []models.IncSubject
	if err := r.db.SelectContext(ctx, &subjects, query, studentID, models.GradeInc); err != nil {
		return nil, fmt.Errorf("list inc subjects: %w", err)
	}
	return subjects, nil
}

// ListFailedWithRepeatDate returns failing grades carrying a repeat date,
// optionally filtered to one student and/or subject.
func (r *GradeRepository) ListFailedWithRepeatDate(ctx context.Context, studentID, subjectID string) ([]models.FailedGradeRecord, error) {
	base := `SELECT g.id AS grade_id, e.student_id, stu.full_name AS student_name, stu.program_id, stu.year_level,
        es.subject_id, sub.code AS subject_code, sub.name AS subject_name, t.school_year, g.repeat_eligible_date
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN students stu ON stu.id = e.student_id
        JOIN academic_terms t ON t.id = e.term_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE g.grade_value = $1 AND g.repeat_eligible_date IS NOT NULL`
	args := []interface{}{models.Grade500}
	var conditions []string
	if studentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, studentID)
	}
	if subjectID != "" {
		conditions = append(conditions, fmt.Sprintf("es.subject_id = $%d", len(args)+1))
		args = append(args, subjectID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	base += " ORDER BY g.repeat_eligible_date ASC"
	var records []models.FailedGradeRecord
	if err := r.db.SelectContext(ctx, &records, base, args...); err != nil {
		return nil, fmt.Errorf("list failed grades: %w", err)
	}
	return records, nil
}

// ListAllFailedWithRepeatDate scans every student's failing grades for the
// oversight aggregation, optionally filtered by program and year level.
func (r *GradeRepository) ListAllFailedWithRepeatDate(ctx context.Context, programID string, yearLevel *int) ([]models.FailedGradeRecord, error) {
	base := `SELECT g.id AS grade_id, e.student_id, stu.full_name AS student_name, stu.program_id, stu.year_level,
        es.subject_id, sub.code AS subject_code, sub.name AS subject_name, t.school_year, g.repeat_eligible_date
        FROM grades g
        JOIN enrollment_subjects es ON es.id = g.enrollment_subject_id
        JOIN enrollments e ON e.id = es.enrollment_id
        JOIN students stu ON stu.id = e.student_id
        JOIN academic_terms t ON t.id = e.term_id
        JOIN subjects sub ON sub.id = es.subject_id
        WHERE g.grade_value = $1 AND g.repeat_eligible_date IS NOT NULL`
	args := []interface{}{models.Grade500}
	if programID != "" {
		base += fmt.Sprintf(" AND stu.program_id = $%d", len(args)+1)
		args = append(args, programID)
	}
	if yearLevel != nil {
		base += fmt.Sprintf(" AND stu.year_level = $%d", len(args)+1)
		args = append(args, *yearLevel)
	}
	base += " ORDER BY stu.full_name ASC, g.repeat_eligible_date ASC"
	var records []models.FailedGradeRecord
	if err := r.db.SelectContext(ctx, &records, base, args...); err != nil {
		return nil, fmt.Errorf("scan failed grades: %w", err)
	}
	return records, nil
}

// UpdateRepeatEligibleDate overrides the repeat date on a failing grade.
func (r *GradeRepository) UpdateRepeatEligibleDate(ctx context.Context, gradeID string, newDate time.Time) error {
	const query = `UPDATE grades SET repeat_eligible_date = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, gradeID, newDate, time.Now().UTC()); err != nil {
		return fmt.Errorf("update repeat date: %w", err)
	}
	return nil
}

// SectionOfEnrollmentSubject resolves the section and its professor for an
// enrollment subject line.
func (r *GradeRepository) SectionOfEnrollmentSubject(ctx context.Context, enrollmentSubjectID string) (*models.Section, error) {
	const query = `SELECT sec.id, sec.subject_id, sec.professor_id, sec.name, sec.school_year, sec.semester,
        sec.max_slots, sec.available_slots, sec.status, sec.created_at, sec.updated_at
        FROM enrollment_subjects es
        JOIN sections sec ON sec.id = es.section_id
        WHERE es.id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, enrollmentSubjectID); err != nil {
		return nil, err
	}
	return &section, nil
}
