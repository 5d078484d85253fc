package dto

import (
	"time"

	"github.com/metastudy/metastudy-api/internal/models"
)

// AssignableCreateRequest describes the multipart payload for creating an
// assignable entity. AssignedStudents arrives as a JSON-encoded array in a
// form field; the handler parses it before validation.
type AssignableCreateRequest struct {
	ClassID          uint      `validate:"required,gt=0"`
	Title            string    `validate:"required,min=1,max=255"`
	Description      string    `validate:"omitempty,max=10000"`
	DueDate          time.Time `validate:"required"`
	GradingMode      string    `validate:"omitempty,oneof=manual auto"`
	AssignedStudents []uint    `validate:"dive,gt=0"`
}

// AssignableUpdateRequest describes a partial update of an assignable entity.
type AssignableUpdateRequest struct {
	Title            *string    `validate:"omitempty,min=1,max=255"`
	Description      *string    `validate:"omitempty,max=10000"`
	DueDate          *time.Time ``
	AssignedStudents *[]uint    `validate:"omitempty,dive,gt=0"`
}

// AssignableResponse is returned to API clients when viewing assignable entities.
type AssignableResponse struct {
	ID               uint      `json:"id"`
	Kind             string    `json:"kind"`
	ClassID          uint      `json:"class_id"`
	UploaderID       uint      `json:"uploader_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	DueDate          time.Time `json:"due_date"`
	GradingMode      string    `json:"grading_mode"`
	FileName         string    `json:"file_name,omitempty"`
	FileType         string    `json:"file_type,omitempty"`
	FileSize         int64     `json:"file_size"`
	HasSolution      bool      `json:"has_solution"`
	AssignedStudents []uint    `json:"assigned_students"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewAssignableResponse converts an Assignable model into a DTO.
func NewAssignableResponse(model models.Assignable) AssignableResponse {
	return AssignableResponse{
		ID:               model.ID,
		Kind:             model.Kind,
		ClassID:          model.ClassID,
		UploaderID:       model.UploaderID,
		Title:            model.Title,
		Description:      model.Description,
		DueDate:          model.DueDate,
		GradingMode:      model.GradingMode,
		FileName:         model.FileName,
		FileType:         model.FileType,
		FileSize:         model.FileSize,
		HasSolution:      model.SolutionFileKey != "",
		AssignedStudents: model.AssignedStudents,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

// NewAssignableResponseSlice converts a slice of models into DTOs.
func NewAssignableResponseSlice(assignables []models.Assignable) []AssignableResponse {
	responses := make([]AssignableResponse, 0, len(assignables))
	for _, assignable := range assignables {
		responses = append(responses, NewAssignableResponse(assignable))
	}
	return responses
}
