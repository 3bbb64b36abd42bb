package models

import "time"

// GradeValue is the closed enumeration of grades a professor may encode.
// Numeric bands run from 1.0 (highest) to 5.0 (failing) in quarter-point
// steps; INC and DRP are non-numeric sentinels.
type GradeValue string

const (
	Grade100 GradeValue = "grade_1_0"
	Grade125 GradeValue = "grade_1_25"
	Grade150 GradeValue = "grade_1_5"
	Grade175 GradeValue = "grade_1_75"
	Grade200 GradeValue = "grade_2_0"
	Grade225 GradeValue = "grade_2_25"
	Grade250 GradeValue = "grade_2_5"
	Grade275 GradeValue = "grade_2_75"
	Grade300 GradeValue = "grade_3_0"
	Grade325 GradeValue = "grade_3_25"
	Grade350 GradeValue = "grade_3_5"
	Grade375 GradeValue = "grade_3_75"
	Grade400 GradeValue = "grade_4_0"
	Grade425 GradeValue = "grade_4_25"
	Grade450 GradeValue = "grade_4_5"
	Grade475 GradeValue = "grade_4_75"
	Grade500 GradeValue = "grade_5_0"
	GradeInc GradeValue = "inc"
	GradeDrp GradeValue = "drp"
)

// gradePoints is the single source of truth for GPA point conversion.
var gradePoints = map[GradeValue]float64{
	Grade100: 1.00,
	Grade125: 1.25,
	Grade150: 1.50,
	Grade175: 1.75,
	Grade200: 2.00,
	Grade225: 2.25,
	Grade250: 2.50,
	Grade275: 2.75,
	Grade300: 3.00,
	Grade325: 3.25,
	Grade350: 3.50,
	Grade375: 3.75,
	Grade400: 4.00,
	Grade425: 4.25,
	Grade450: 4.50,
	Grade475: 4.75,
	Grade500: 5.00,
}

// Valid reports whether the value belongs to the enumeration.
func (g GradeValue) Valid() bool {
	if g == GradeInc || g == GradeDrp {
		return true
	}
	_, ok := gradePoints[g]
	return ok
}

// Numeric reports whether the value carries GPA points.
func (g GradeValue) Numeric() bool {
	_, ok := gradePoints[g]
	return ok
}

// Points returns the GPA point value. ok is false for INC/DRP and unknown values.
func (g GradeValue) Points() (float64, bool) {
	p, ok := gradePoints[g]
	return p, ok
}

// IsFailing reports whether the value represents a failed subject.
func (g GradeValue) IsFailing() bool {
	return g == Grade500
}

// IsIncomplete reports whether the value is the INC sentinel.
func (g GradeValue) IsIncomplete() bool {
	return g == GradeInc
}

// IsDropped reports whether the value is the DRP sentinel.
func (g GradeValue) IsDropped() bool {
	return g == GradeDrp
}

// Grade stores one encoded grade for an enrollment subject. Exactly one
// grade may exist per enrollment subject.
type Grade struct {
	ID                  string     `db:"id" json:"id"`
	EnrollmentSubjectID string     `db:"enrollment_subject_id" json:"enrollment_subject_id"`
	GradeValue          GradeValue `db:"grade_value" json:"grade_value"`
	Approved            bool       `db:"approved" json:"approved"`
	EncodedBy           string     `db:"encoded_by" json:"encoded_by"`
	DateEncoded         time.Time  `db:"date_encoded" json:"date_encoded"`
	Remarks             *string    `db:"remarks" json:"remarks,omitempty"`
	RepeatEligibleDate  *time.Time `db:"repeat_eligible_date" json:"repeat_eligible_date,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// GradeDetail enriches Grade with enrollment and catalog context.
type GradeDetail struct {
	Grade
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	SubjectID   string `db:"subject_id" json:"subject_id"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	SectionID   string `db:"section_id" json:"section_id"`
	Units       int    `db:"units" json:"units"`
	TermID      string `db:"term_id" json:"term_id"`
}

// StudentGradeRecord is one row of a student's grade history as consumed by
// GPA recomputation and the eligibility resolver.
type StudentGradeRecord struct {
	GradeID            string     `db:"grade_id" json:"grade_id"`
	SubjectID          string     `db:"subject_id" json:"subject_id"`
	SubjectCode        string     `db:"subject_code" json:"subject_code"`
	GradeValue         GradeValue `db:"grade_value" json:"grade_value"`
	Approved           bool       `db:"approved" json:"approved"`
	Units              int        `db:"units" json:"units"`
	SchoolYear         string     `db:"school_year" json:"school_year"`
	RepeatEligibleDate *time.Time `db:"repeat_eligible_date" json:"repeat_eligible_date,omitempty"`
}

// GradeFilter scopes grade listings.
type GradeFilter struct {
	TermID      string
	ProfessorID string
	SectionID   string
	Approved    *bool
}
