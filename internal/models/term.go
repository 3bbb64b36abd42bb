package models

import "time"

// Semester labels the half of the school year a term covers.
type Semester string

const (
	SemesterFirst  Semester = "FIRST"
	SemesterSecond Semester = "SECOND"
	SemesterSummer Semester = "SUMMER"
)

// AcademicTerm models one school-year semester. At most one term is active
// at any time; every enrollment and grading operation resolves "current"
// against it.
type AcademicTerm struct {
	ID         string    `db:"id" json:"id"`
	SchoolYear string    `db:"school_year" json:"school_year"`
	Semester   Semester  `db:"semester" json:"semester"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	SchoolYear string
	Semester   Semester
	IsActive   *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
