package models

import "time"

// StudentStatus represents the registration state of a student.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusInactive  StudentStatus = "INACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
)

// Student represents a learner registered in the college. GPA and HasInc
// are caches of the approved grade history, recomputed transactionally
// after every approval or INC resolution.
type Student struct {
	ID            string        `db:"id" json:"id"`
	StudentNumber string        `db:"student_number" json:"student_number"`
	FullName      string        `db:"full_name" json:"full_name"`
	ProgramID     string        `db:"program_id" json:"program_id"`
	YearLevel     int           `db:"year_level" json:"year_level"`
	GPA           float64       `db:"gpa" json:"gpa"`
	HasInc        bool          `db:"has_inc" json:"has_inc"`
	Status        StudentStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with program context.
type StudentDetail struct {
	Student
	ProgramCode string `db:"program_code" json:"program_code"`
	ProgramName string `db:"program_name" json:"program_name"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ProgramID string
	YearLevel *int
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
