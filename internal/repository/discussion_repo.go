package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/models"
)

// DiscussionRepository defines data operations for discussion posts.
type DiscussionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Discussion, error)
	ListByClass(ctx context.Context, classID uint) ([]models.Discussion, error)
	Create(ctx context.Context, discussion *models.Discussion) error
	Update(ctx context.Context, discussion *models.Discussion) error
	Delete(ctx context.Context, id uint) error
	AddComment(ctx context.Context, comment *models.DiscussionComment) error
}

type discussionRepository struct {
	db *gorm.DB
}

// NewDiscussionRepository instantiates the repository.
func NewDiscussionRepository(db *gorm.DB) DiscussionRepository {
	return &discussionRepository{db: db}
}

func (r *discussionRepository) GetByID(ctx context.Context, id uint) (models.Discussion, error) {
	var discussion models.Discussion
	if err := r.db.WithContext(ctx).
		Preload("Comments").
		First(&discussion, id).Error; err != nil {
		return models.Discussion{}, err
	}
	return discussion, nil
}

func (r *discussionRepository) ListByClass(ctx context.Context, classID uint) ([]models.Discussion, error) {
	var discussions []models.Discussion
	if err := r.db.WithContext(ctx).
		Preload("Comments").
		Where("class_id = ?", classID).
		Order("created_at DESC").
		Find(&discussions).Error; err != nil {
		return nil, err
	}
	return discussions, nil
}

func (r *discussionRepository) Create(ctx context.Context, discussion *models.Discussion) error {
	return r.db.WithContext(ctx).Create(discussion).Error
}

func (r *discussionRepository) Update(ctx context.Context, discussion *models.Discussion) error {
	return r.db.WithContext(ctx).Save(discussion).Error
}

func (r *discussionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Select("Comments").Delete(&models.Discussion{ID: id}).Error
}

func (r *discussionRepository) AddComment(ctx context.Context, comment *models.DiscussionComment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}
