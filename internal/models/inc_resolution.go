package models

import "time"

// IncResolution is a professor's proposal to replace a prior INC grade with
// a numeric one. Terminal once approved by the registrar; at most one
// unresolved proposal may exist per (student, subject, professor).
type IncResolution struct {
	ID                  string     `db:"id" json:"id"`
	StudentID           string     `db:"student_id" json:"student_id"`
	SubjectID           string     `db:"subject_id" json:"subject_id"`
	ProfessorID         string     `db:"professor_id" json:"professor_id"`
	OldGrade            GradeValue `db:"old_grade" json:"old_grade"`
	NewGrade            GradeValue `db:"new_grade" json:"new_grade"`
	Remarks             *string    `db:"remarks" json:"remarks,omitempty"`
	ApprovedByRegistrar bool       `db:"approved_by_registrar" json:"approved_by_registrar"`
	ApprovedAt          *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IncResolutionDetail enriches a resolution with names for review screens.
type IncResolutionDetail struct {
	IncResolution
	StudentName   string `db:"student_name" json:"student_name"`
	SubjectCode   string `db:"subject_code" json:"subject_code"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
}

// IncSubject is one INC currently on a student's record.
type IncSubject struct {
	GradeID     string    `db:"grade_id" json:"grade_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	SchoolYear  string    `db:"school_year" json:"school_year"`
	DateEncoded time.Time `db:"date_encoded" json:"date_encoded"`
}
