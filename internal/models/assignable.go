package models

import (
	"time"

	"gorm.io/datatypes"
)

// Parent kinds for assignable entities. A single model covers all four
// submission-bearing entity types; behavioral differences live in the
// per-kind policies in the service layer.
const (
	KindAssignment   = "assignment"
	KindGroup        = "group"
	KindPresentation = "presentation"
	KindTest         = "test"
)

// Grading modes. Auto grading is only valid for tests.
const (
	GradingManual = "manual"
	GradingAuto   = "auto"
)

// Assignable is a due-dated entity students submit work against: an
// assignment, a group task, a presentation, or a test.
type Assignable struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Kind        string    `gorm:"size:32;not null;index:idx_assignable_kind_class" json:"kind"`
	ClassID     uint      `gorm:"not null;index:idx_assignable_kind_class" json:"class_id"`
	UploaderID  uint      `gorm:"not null" json:"uploader_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	DueDate     time.Time `gorm:"not null" json:"due_date"`
	GradingMode string    `gorm:"size:32;not null;default:manual" json:"grading_mode"`

	// Primary file: the assignment brief, group resource, or test question sheet.
	FileKey  string `gorm:"size:512" json:"file_key,omitempty"`
	FileType string `gorm:"size:128" json:"file_type,omitempty"`
	FileName string `gorm:"size:255" json:"file_name,omitempty"`
	FileSize int64  `json:"file_size"`

	// Answer key for auto-graded tests. Never exposed to students.
	SolutionFileKey string `gorm:"size:512" json:"-"`

	// Explicit submitter roster for group/presentation/test kinds.
	// Empty for plain assignments, which accept any student.
	AssignedStudents datatypes.JSONSlice[uint] `json:"assigned_students"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPastDue returns true when the deadline has already passed.
func (a Assignable) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// IsAssigned reports whether the student appears in the assigned roster.
func (a Assignable) IsAssigned(studentID uint) bool {
	for _, id := range a.AssignedStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

// IsAutoGraded reports whether submissions to this entity are auto-graded.
func (a Assignable) IsAutoGraded() bool {
	return a.Kind == KindTest && a.GradingMode == GradingAuto
}
