package dto

import (
	"time"

	"github.com/metastudy/metastudy-api/internal/models"
)

// MeetingCreateRequest starts a live-class room for a class.
type MeetingCreateRequest struct {
	ClassID uint `json:"class_id" validate:"required,gt=0"`
}

// MeetingResponse is returned to API clients when viewing meetings.
type MeetingResponse struct {
	ID        uint      `json:"id"`
	ClassID   uint      `json:"class_id"`
	TeacherID uint      `json:"teacher_id"`
	RoomID    string    `json:"room_id"`
	StartTime time.Time `json:"start_time"`
}

// NewMeetingResponse converts a Meeting model into a DTO.
func NewMeetingResponse(model models.Meeting) MeetingResponse {
	return MeetingResponse{
		ID:        model.ID,
		ClassID:   model.ClassID,
		TeacherID: model.TeacherID,
		RoomID:    model.RoomID,
		StartTime: model.StartTime,
	}
}
