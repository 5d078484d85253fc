package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/models"
)

// AssignableRepository defines data operations for assignable entities.
type AssignableRepository interface {
	GetByID(ctx context.Context, kind string, id uint) (models.Assignable, error)
	ListByClass(ctx context.Context, kind string, classID uint) ([]models.Assignable, error)
	Create(ctx context.Context, assignable *models.Assignable) error
	Update(ctx context.Context, assignable *models.Assignable) error
	Delete(ctx context.Context, id uint) error
}

type assignableRepository struct {
	db *gorm.DB
}

// NewAssignableRepository instantiates the repository.
func NewAssignableRepository(db *gorm.DB) AssignableRepository {
	return &assignableRepository{db: db}
}

func (r *assignableRepository) GetByID(ctx context.Context, kind string, id uint) (models.Assignable, error) {
	var assignable models.Assignable
	if err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		First(&assignable, id).Error; err != nil {
		return models.Assignable{}, err
	}
	return assignable, nil
}

func (r *assignableRepository) ListByClass(ctx context.Context, kind string, classID uint) ([]models.Assignable, error) {
	var assignables []models.Assignable
	if err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Where("class_id = ?", classID).
		Order("created_at DESC").
		Find(&assignables).Error; err != nil {
		return nil, err
	}
	return assignables, nil
}

func (r *assignableRepository) Create(ctx context.Context, assignable *models.Assignable) error {
	return r.db.WithContext(ctx).Create(assignable).Error
}

func (r *assignableRepository) Update(ctx context.Context, assignable *models.Assignable) error {
	return r.db.WithContext(ctx).Save(assignable).Error
}

func (r *assignableRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Assignable{}, id).Error
}
