package models

import "time"

// SubjectType distinguishes major from minor subjects. The type decides the
// repeat cooldown applied after a failing or incomplete grade.
type SubjectType string

const (
	SubjectTypeMajor SubjectType = "MAJOR"
	SubjectTypeMinor SubjectType = "MINOR"
)

// Subject represents one catalog subject within a program.
type Subject struct {
	ID                  string      `db:"id" json:"id"`
	ProgramID           string      `db:"program_id" json:"program_id"`
	Code                string      `db:"code" json:"code"`
	Name                string      `db:"name" json:"name"`
	Units               int         `db:"units" json:"units"`
	Type                SubjectType `db:"type" json:"type"`
	PrerequisiteID      *string     `db:"prerequisite_id" json:"prerequisite_id,omitempty"`
	YearStanding        *int        `db:"year_standing" json:"year_standing,omitempty"`
	RecommendedYear     *int        `db:"recommended_year" json:"recommended_year,omitempty"`
	RecommendedSemester *Semester   `db:"recommended_semester" json:"recommended_semester,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// SubjectWithSections pairs a subject with its currently enrollable sections.
type SubjectWithSections struct {
	Subject
	Sections []Section `json:"sections"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	ProgramID string
	Type      SubjectType
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
