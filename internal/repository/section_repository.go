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

// SectionRepository handles persistence for sections and their slot
// accounting. Slot mutations are conditional single statements so the
// availability check and the write cannot be split by a concurrent
// transaction.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = "id, subject_id, professor_id, name, school_year, semester, max_slots, available_slots, status, created_at, updated_at"

// List returns sections matching the provided filters.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections sec
JOIN subjects sub ON sub.id = sec.subject_id
JOIN professors prof ON prof.id = sec.professor_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("sec.school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("sec.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("sec.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":            "sec.name",
		"subject_code":    "sub.code",
		"available_slots": "sec.available_slots",
		"created_at":      "sec.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "sub.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT sec.id, sec.subject_id, sec.professor_id, sec.name, sec.school_year, sec.semester,
        sec.max_slots, sec.available_slots, sec.status, sec.created_at, sec.updated_at,
        sub.code AS subject_code, sub.name AS subject_name, sub.units, prof.full_name AS professor_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID loads a section by identifier.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf("SELECT %s FROM sections WHERE id = $1", sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListOpenBySubjects returns the open sections with free slots for the given
// subjects within one term, keyed by subject ID.
func (r *SectionRepository) ListOpenBySubjects(ctx context.Context, subjectIDs []string, schoolYear string, semester models.Semester) (map[string][]models.Section, error) {
	if len(subjectIDs) == 0 {
		return map[string][]models.Section{}, nil
	}
	placeholders := make([]string, len(subjectIDs))
	args := make([]interface{}, 0, len(subjectIDs)+3)
	for i, id := range subjectIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, schoolYear, semester, models.SectionStatusOpen)
	query := fmt.Sprintf(`SELECT %s FROM sections
        WHERE subject_id IN (%s) AND school_year = $%d AND semester = $%d AND status = $%d AND available_slots > 0
        ORDER BY name ASC`, sectionColumns, strings.Join(placeholders, ","), len(subjectIDs)+1, len(subjectIDs)+2, len(subjectIDs)+3)

	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("list open sections: %w", err)
	}
	result := make(map[string][]models.Section, len(subjectIDs))
	for _, s := range sections {
		result[s.SubjectID] = append(result[s.SubjectID], s)
	}
	return result, nil
}

// LockAvailable loads and row-locks the requested sections that are open
// with free slots inside tx. Callers compare the returned count against the
// requested count to detect closed, full, or unknown sections.
func (r *SectionRepository) LockAvailable(ctx context.Context, tx *sqlx.Tx, sectionIDs []string) ([]models.Section, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sectionIDs))
	args := make([]interface{}, 0, len(sectionIDs)+1)
	for i, id := range sectionIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, models.SectionStatusOpen)
	query := fmt.Sprintf(`SELECT %s FROM sections
        WHERE id IN (%s) AND status = $%d AND available_slots > 0
        FOR UPDATE`, sectionColumns, strings.Join(placeholders, ","), len(sectionIDs)+1)

	var sections []models.Section
	if err := tx.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("lock sections: %w", err)
	}
	return sections, nil
}

// TakeSlot conditionally decrements one slot inside tx. sql.ErrNoRows is
// returned when the section is closed or already full, which aborts the
// surrounding enrollment transaction.
func (r *SectionRepository) TakeSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	const query = `UPDATE sections SET available_slots = available_slots - 1, updated_at = $2
        WHERE id = $1 AND status = $3 AND available_slots > 0`
	res, err := tx.ExecContext(ctx, query, sectionID, time.Now().UTC(), models.SectionStatusOpen)
	if err != nil {
		return fmt.Errorf("take slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("take slot result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReleaseSlot restores one slot inside tx, never exceeding max_slots.
func (r *SectionRepository) ReleaseSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	const query = `UPDATE sections SET available_slots = available_slots + 1, updated_at = $2
        WHERE id = $1 AND available_slots < max_slots`
	if _, err := tx.ExecContext(ctx, query, sectionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// IsOwnedByProfessor reports whether the section is assigned to the professor.
func (r *SectionRepository) IsOwnedByProfessor(ctx context.Context, sectionID, professorID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM sections WHERE id = $1 AND professor_id = $2 LIMIT 1`, sectionID, professorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check section ownership: %w", err)
	}
	return true, nil
}

// Create inserts a new section record.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	if section.Status == "" {
		section.Status = models.SectionStatusOpen
	}
	if section.AvailableSlots == 0 {
		section.AvailableSlots = section.MaxSlots
	}
	const query = `INSERT INTO sections (id, subject_id, professor_id, name, school_year, semester, max_slots, available_slots, status, created_at, updated_at)
        VALUES (:id, :subject_id, :professor_id, :name, :school_year, :semester, :max_slots, :available_slots, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// SetStatus opens or closes a section for enrollment.
func (r *SectionRepository) SetStatus(ctx context.Context, id string, status models.SectionStatus) error {
	const query = `UPDATE sections SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set section status: %w", err)
	}
	return nil
}
