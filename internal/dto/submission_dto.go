package dto

import (
	"time"

	"github.com/metastudy/metastudy-api/internal/models"
)

// GradeSubmissionRequest is the teacher grading payload.
type GradeSubmissionRequest struct {
	Marks    float64 `json:"marks" validate:"gte=0,lte=100"`
	Feedback string  `json:"feedback" validate:"omitempty,max=5000"`
}

// UserLite summarizes a user without exposing full profile data.
type UserLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID              uint       `json:"id"`
	ParentKind      string     `json:"parent_kind"`
	ParentID        uint       `json:"parent_id"`
	StudentID       uint       `json:"student_id"`
	Student         *UserLite  `json:"student,omitempty"`
	FileName        string     `json:"file_name,omitempty"`
	FileType        string     `json:"file_type,omitempty"`
	FileSize        int64      `json:"file_size"`
	Status          string     `json:"status"`
	SubmittedAt     *time.Time `json:"submitted_at"`
	Marks           *float64   `json:"marks"`
	Feedback        string     `json:"feedback"`
	GradedAt        *time.Time `json:"graded_at"`
	GradedBy        *uint      `json:"graded_by"`
	AutoGradeStatus string     `json:"auto_grade_status,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SignedURLResponse carries a time-limited object-storage URL.
type SignedURLResponse struct {
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	autoStatus := model.AutoGradeStatus
	if autoStatus == models.AutoGradeNone {
		autoStatus = ""
	}

	return SubmissionResponse{
		ID:              model.ID,
		ParentKind:      model.ParentKind,
		ParentID:        model.ParentID,
		StudentID:       model.StudentID,
		FileName:        model.FileName,
		FileType:        model.FileType,
		FileSize:        model.FileSize,
		Status:          model.Status,
		SubmittedAt:     model.SubmittedAt,
		Marks:           model.Marks,
		Feedback:        model.Feedback,
		GradedAt:        model.GradedAt,
		GradedBy:        model.GradedBy,
		AutoGradeStatus: autoStatus,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewSubmissionResponseSlice converts a slice of models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}
