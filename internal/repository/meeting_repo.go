package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/models"
)

// MeetingRepository defines data operations for meetings.
type MeetingRepository interface {
	LatestByClass(ctx context.Context, classID uint) (models.Meeting, error)
	Create(ctx context.Context, meeting *models.Meeting) error
}

type meetingRepository struct {
	db *gorm.DB
}

// NewMeetingRepository instantiates the repository.
func NewMeetingRepository(db *gorm.DB) MeetingRepository {
	return &meetingRepository{db: db}
}

func (r *meetingRepository) LatestByClass(ctx context.Context, classID uint) (models.Meeting, error) {
	var meeting models.Meeting
	if err := r.db.WithContext(ctx).
		Where("class_id = ?", classID).
		Order("start_time DESC").
		First(&meeting).Error; err != nil {
		return models.Meeting{}, err
	}
	return meeting, nil
}

func (r *meetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	return r.db.WithContext(ctx).Create(meeting).Error
}
