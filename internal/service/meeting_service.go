package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

// MeetingService manages live-class rooms.
type MeetingService interface {
	Create(ctx context.Context, actor Actor, payload dto.MeetingCreateRequest) (dto.MeetingResponse, error)
	Latest(ctx context.Context, actor Actor, classID uint) (dto.MeetingResponse, error)
}

type meetingService struct {
	meetings   repository.MeetingRepository
	classrooms repository.ClassroomRepository
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewMeetingService constructs the meeting service.
func NewMeetingService(
	meetings repository.MeetingRepository,
	classrooms repository.ClassroomRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) MeetingService {
	return &meetingService{
		meetings:   meetings,
		classrooms: classrooms,
		validator:  validate,
		logger:     logger.With().Str("component", "meeting_service").Logger(),
	}
}

func (s *meetingService) Create(ctx context.Context, actor Actor, payload dto.MeetingCreateRequest) (dto.MeetingResponse, error) {
	if !actor.IsTeacher() {
		return dto.MeetingResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.MeetingResponse{}, err
	}

	classroom, err := s.classrooms.GetByID(ctx, payload.ClassID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MeetingResponse{}, ErrClassroomNotFound
		}
		return dto.MeetingResponse{}, err
	}
	if classroom.CreatedBy != actor.ID {
		return dto.MeetingResponse{}, ErrForbidden
	}

	meeting := models.Meeting{
		ClassID:   payload.ClassID,
		TeacherID: actor.ID,
		RoomID:    fmt.Sprintf("classroom-%s", uuid.NewString()),
		StartTime: time.Now(),
	}

	if err := s.meetings.Create(ctx, &meeting); err != nil {
		return dto.MeetingResponse{}, err
	}

	s.logger.Info().Uint("class_id", meeting.ClassID).Str("room_id", meeting.RoomID).Msg("meeting started")

	return dto.NewMeetingResponse(meeting), nil
}

func (s *meetingService) Latest(ctx context.Context, actor Actor, classID uint) (dto.MeetingResponse, error) {
	if actor.IsStudent() {
		classroom, err := s.classrooms.GetByID(ctx, classID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.MeetingResponse{}, ErrClassroomNotFound
			}
			return dto.MeetingResponse{}, err
		}
		if !classroom.HasStudent(actor.ID) {
			return dto.MeetingResponse{}, ErrForbidden
		}
	}

	meeting, err := s.meetings.LatestByClass(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MeetingResponse{}, ErrMeetingNotFound
		}
		return dto.MeetingResponse{}, err
	}

	return dto.NewMeetingResponse(meeting), nil
}
