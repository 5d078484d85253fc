package models

import "time"

// Submission lifecycle statuses.
const (
	// SubmissionStatusAssigned marks a placeholder record created before any upload.
	SubmissionStatusAssigned = "assigned"
	// SubmissionStatusSubmitted indicates a file has been uploaded but not graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded = "graded"
)

// Auto-grade progress statuses, tracked separately from the lifecycle status
// and only meaningful for test submissions.
const (
	AutoGradeNone      = "none"
	AutoGradePending   = "pending"
	AutoGradeExtracted = "extracted"
	AutoGradeScored    = "scored"
	AutoGradeError     = "error"
)

// Submission is the single record a student holds against an assignable
// entity. The composite unique index is the only guard against duplicate
// records under concurrent first-time submissions.
type Submission struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ParentKind string `gorm:"size:32;not null;uniqueIndex:idx_submission_parent_student,priority:1" json:"parent_kind"`
	ParentID   uint   `gorm:"not null;uniqueIndex:idx_submission_parent_student,priority:2" json:"parent_id"`
	StudentID  uint   `gorm:"not null;uniqueIndex:idx_submission_parent_student,priority:3" json:"student_id"`

	FileKey  string `gorm:"size:512" json:"file_key,omitempty"`
	FileType string `gorm:"size:128" json:"file_type,omitempty"`
	FileName string `gorm:"size:255" json:"file_name,omitempty"`
	FileSize int64  `json:"file_size"`

	Status      string     `gorm:"size:32;not null" json:"status"`
	SubmittedAt *time.Time `json:"submitted_at"`

	Marks           *float64   `json:"marks"`
	Feedback        string     `gorm:"type:text" json:"feedback"`
	GradedAt        *time.Time `json:"graded_at"`
	GradedBy        *uint      `json:"graded_by"`
	AutoGradeStatus string     `gorm:"size:32;not null;default:none" json:"auto_grade_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsGraded reports whether the submission carries a final grade. A graded
// record is frozen to the submitter: no further file replacement or deletion.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// HasFile reports whether a file has ever been uploaded for this record.
func (s Submission) HasFile() bool {
	return s.FileKey != ""
}
