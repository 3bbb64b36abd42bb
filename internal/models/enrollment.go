package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. A student holds at most one non-cancelled
// enrollment per term.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusConfirmed EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment captures a student's registration for a term. TotalUnits
// equals the sum of its subject line units.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	TermID     string           `db:"term_id" json:"term_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	TotalUnits int              `db:"total_units" json:"total_units"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentSubject is one subject-in-one-section line within an
// enrollment. Units are snapshotted from the subject at enrollment time so
// later catalog edits do not rewrite history.
type EnrollmentSubject struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	SectionID    string    `db:"section_id" json:"section_id"`
	Units        int       `db:"units" json:"units"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentSubjectDetail enriches a subject line with catalog context.
type EnrollmentSubjectDetail struct {
	EnrollmentSubject
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	SectionName string `db:"section_name" json:"section_name"`
}

// EnrollmentDetail bundles an enrollment with its subject lines and term.
type EnrollmentDetail struct {
	Enrollment
	SchoolYear string                    `db:"school_year" json:"school_year"`
	Semester   Semester                  `db:"semester" json:"semester"`
	Subjects   []EnrollmentSubjectDetail `json:"subjects"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	TermID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
