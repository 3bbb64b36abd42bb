package models

import "time"

// RepeatEligibility answers whether a failed subject may be retaken now.
type RepeatEligibility struct {
	GradeID            string    `json:"grade_id"`
	SubjectID          string    `json:"subject_id"`
	SubjectCode        string    `json:"subject_code"`
	SubjectName        string    `json:"subject_name"`
	FailedSchoolYear   string    `json:"failed_school_year"`
	RepeatEligibleDate time.Time `json:"repeat_eligible_date"`
	IsEligible         bool      `json:"is_eligible"`
	DaysUntilEligible  int       `json:"days_until_eligible"`
}

// FailedGradeRecord is the storage row backing an eligibility check.
type FailedGradeRecord struct {
	GradeID            string    `db:"grade_id" json:"grade_id"`
	StudentID          string    `db:"student_id" json:"student_id"`
	StudentName        string    `db:"student_name" json:"student_name"`
	ProgramID          string    `db:"program_id" json:"program_id"`
	YearLevel          int       `db:"year_level" json:"year_level"`
	SubjectID          string    `db:"subject_id" json:"subject_id"`
	SubjectCode        string    `db:"subject_code" json:"subject_code"`
	SubjectName        string    `db:"subject_name" json:"subject_name"`
	SchoolYear         string    `db:"school_year" json:"school_year"`
	RepeatEligibleDate time.Time `db:"repeat_eligible_date" json:"repeat_eligible_date"`
}

// StudentRepeatSummary aggregates eligibility counts for oversight views.
type StudentRepeatSummary struct {
	StudentID    string              `json:"student_id"`
	StudentName  string              `json:"student_name"`
	ProgramID    string              `json:"program_id"`
	YearLevel    int                 `json:"year_level"`
	EligibleNow  int                 `json:"eligible_now"`
	PendingCount int                 `json:"pending_count"`
	Subjects     []RepeatEligibility `json:"subjects"`
}
