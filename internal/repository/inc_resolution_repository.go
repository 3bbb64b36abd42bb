package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-registrar-api/internal/models"
)

// IncResolutionRepository manages persistence of INC resolution proposals.
type IncResolutionRepository struct {
	db *sqlx.DB
}

// NewIncResolutionRepository constructs the repository.
func NewIncResolutionRepository(db *sqlx.DB) *IncResolutionRepository {
	return &IncResolutionRepository{db: db}
}

const resolutionColumns = "id, student_id, subject_id, professor_id, old_grade, new_grade, remarks, approved_by_registrar, approved_at, created_at, updated_at"

const resolutionDetailQuery = `SELECT r.id, r.student_id, r.subject_id, r.professor_id, r.old_grade, r.new_grade, r.remarks,
    r.approved_by_registrar, r.approved_at, r.created_at, r.updated_at,
    stu.full_name AS student_name, sub.code AS subject_code, sub.name AS subject_name, prof.full_name AS professor_name
    FROM inc_resolutions r
    JOIN students stu ON stu.id = r.student_id
    JOIN subjects sub ON sub.id = r.subject_id
    JOIN professors prof ON prof.id = r.professor_id`

// FindByID loads a resolution by identifier.
func (r *IncResolutionRepository) FindByID(ctx context.Context, id string) (*models.IncResolution, error) {
	query := fmt.Sprintf("SELECT %s FROM inc_resolutions WHERE id = $1", resolutionColumns)
	var resolution models.IncResolution
	if err := r.db.GetContext(ctx, &resolution, query, id); err != nil {
		return nil, err
	}
	return &resolution, nil
}

// ExistsUnresolved checks the duplicate-prevention invariant for the
// (student, subject, professor) triple.
func (r *IncResolutionRepository) ExistsUnresolved(ctx context.Context, studentID, subjectID, professorID string) (bool, error) {
	const query = `SELECT 1 FROM inc_resolutions
        WHERE student_id = $1 AND subject_id = $2 AND professor_id = $3 AND approved_by_registrar = FALSE
        LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, subjectID, professorID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check unresolved resolution: %w", err)
	}
	return true, nil
}

// Create inserts a new resolution proposal.
func (r *IncResolutionRepository) Create(ctx context.Context, resolution *models.IncResolution) error {
	if resolution.ID == "" {
		resolution.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if resolution.CreatedAt.IsZero() {
		resolution.CreatedAt = now
	}
	resolution.UpdatedAt = now
	const query = `INSERT INTO inc_resolutions (id, student_id, subject_id, professor_id, old_grade, new_grade, remarks, approved_by_registrar, approved_at, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :professor_id, :old_grade, :new_grade, :remarks, :approved_by_registrar, :approved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resolution); err != nil {
		return fmt.Errorf("create inc resolution: %w", err)
	}
	return nil
}

// ApproveWithTx marks the resolution approved inside tx.
func (r *IncResolutionRepository) ApproveWithTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	now := time.Now().UTC()
	const query = `UPDATE inc_resolutions SET approved_by_registrar = TRUE, approved_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, now); err != nil {
		return fmt.Errorf("approve inc resolution: %w", err)
	}
	return nil
}

// ListByProfessor returns resolutions proposed by one professor.
func (r *IncResolutionRepository) ListByProfessor(ctx context.Context, professorID string) ([]models.IncResolutionDetail, error) {
	query := resolutionDetailQuery + " WHERE r.professor_id = $1 ORDER BY r.created_at DESC"
	var resolutions []models.IncResolutionDetail
	if err := r.db.SelectContext(ctx, &resolutions, query, professorID); err != nil {
		return nil, fmt.Errorf("list professor resolutions: %w", err)
	}
	return resolutions, nil
}

// ListPending returns resolutions awaiting registrar approval.
func (r *IncResolutionRepository) ListPending(ctx context.Context) ([]models.IncResolutionDetail, error) {
	query := resolutionDetailQuery + " WHERE r.approved_by_registrar = FALSE ORDER BY r.created_at ASC"
	var resolutions []models.IncResolutionDetail
	if err := r.db.SelectContext(ctx, &resolutions, query); err != nil {
		return nil, fmt.Errorf("list pending resolutions: %w", err)
	}
	return resolutions, nil
}
