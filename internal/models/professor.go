package models

import "time"

// Professor represents a faculty member who owns sections and encodes grades.
type Professor struct {
	ID         string    `db:"id" json:"id"`
	EmployeeNo string    `db:"employee_no" json:"employee_no"`
	FullName   string    `db:"full_name" json:"full_name"`
	Department string    `db:"department" json:"department"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ProfessorFilter captures list filters for professors.
type ProfessorFilter struct {
	Search     string
	Department string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
