package dto

import (
	"time"

	"github.com/metastudy/metastudy-api/internal/models"
)

// ClassroomCreateRequest describes the classroom creation payload.
type ClassroomCreateRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=255"`
	Subject string `json:"subject" validate:"omitempty,max=255"`
	Section string `json:"section" validate:"omitempty,max=64"`
}

// JoinClassroomRequest carries the join code entered by a student.
type JoinClassroomRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

// ClassroomResponse is returned to API clients when viewing classrooms.
type ClassroomResponse struct {
	ID        uint                     `json:"id"`
	Name      string                   `json:"name"`
	Subject   string                   `json:"subject"`
	Section   string                   `json:"section"`
	Code      string                   `json:"code"`
	CreatedBy uint                     `json:"created_by"`
	Students  []uint                   `json:"students"`
	Folders   []models.ClassroomFolder `json:"folders"`
	CreatedAt time.Time                `json:"created_at"`
}

// RosterResponse lists the student IDs enrolled in a class.
type RosterResponse struct {
	ClassID    uint   `json:"class_id"`
	StudentIDs []uint `json:"student_ids"`
}

// NewClassroomResponse converts a Classroom model into a DTO.
func NewClassroomResponse(model models.Classroom) ClassroomResponse {
	return ClassroomResponse{
		ID:        model.ID,
		Name:      model.Name,
		Subject:   model.Subject,
		Section:   model.Section,
		Code:      model.Code,
		CreatedBy: model.CreatedBy,
		Students:  model.Students,
		Folders:   model.Folders,
		CreatedAt: model.CreatedAt,
	}
}

// NewClassroomResponseSlice converts a slice of models into DTOs.
func NewClassroomResponseSlice(classrooms []models.Classroom) []ClassroomResponse {
	responses := make([]ClassroomResponse, 0, len(classrooms))
	for _, classroom := range classrooms {
		responses = append(responses, NewClassroomResponse(classroom))
	}
	return responses
}
