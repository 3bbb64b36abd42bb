package models

import "time"

// SectionStatus controls whether a section accepts enrollments.
type SectionStatus string

const (
	SectionStatusOpen   SectionStatus = "OPEN"
	SectionStatusClosed SectionStatus = "CLOSED"
)

// Section is one scheduled offering of a subject within a term. The
// invariant 0 <= available_slots <= max_slots holds at all times; slot
// mutation goes through the enrollment transaction only.
type Section struct {
	ID             string        `db:"id" json:"id"`
	SubjectID      string        `db:"subject_id" json:"subject_id"`
	ProfessorID    string        `db:"professor_id" json:"professor_id"`
	Name           string        `db:"name" json:"name"`
	SchoolYear     string        `db:"school_year" json:"school_year"`
	Semester       Semester      `db:"semester" json:"semester"`
	MaxSlots       int           `db:"max_slots" json:"max_slots"`
	AvailableSlots int           `db:"available_slots" json:"available_slots"`
	Status         SectionStatus `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with subject and professor names.
type SectionDetail struct {
	Section
	SubjectCode   string `db:"subject_code" json:"subject_code"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	Units         int    `db:"units" json:"units"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
}

// SectionFilter provides filters for listing sections.
type SectionFilter struct {
	SubjectID   string
	ProfessorID string
	SchoolYear  string
	Semester    Semester
	Status      SectionStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
