package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/metastudy/metastudy-api/internal/models"
)

// SubmissionFileMeta carries the file fields applied during a group fan-out.
type SubmissionFileMeta struct {
	FileKey  string
	FileType string
	FileName string
	FileSize int64
}

// SubmissionRepository defines data operations for submission records.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByParentAndStudent(ctx context.Context, kind string, parentID, studentID uint) (models.Submission, error)
	ListByParent(ctx context.Context, kind string, parentID uint) ([]models.Submission, error)
	ListByParentAndStudent(ctx context.Context, kind string, parentID, studentID uint) ([]models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	Delete(ctx context.Context, id uint) error
	DeleteByParent(ctx context.Context, kind string, parentID uint) error
	// SyncGroupFiles applies one member's upload to every non-graded record
	// of the same parent and returns the number of rows touched.
	SyncGroupFiles(ctx context.Context, kind string, parentID uint, meta SubmissionFileMeta, submittedAt time.Time) (int64, error)
	// CreatePlaceholders inserts assigned-status records for the given
	// students, skipping pairs that already exist.
	CreatePlaceholders(ctx context.Context, kind string, parentID uint, studentIDs []uint) error
	// DeleteMembers removes the records of the given students unless graded.
	DeleteMembers(ctx context.Context, kind string, parentID uint, studentIDs []uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByParentAndStudent(ctx context.Context, kind string, parentID, studentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("parent_kind = ?", kind).
		Where("parent_id = ?", parentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByParent(ctx context.Context, kind string, parentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("parent_kind = ?", kind).
		Where("parent_id = ?", parentID).
		Order("submitted_at DESC NULLS LAST").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) ListByParentAndStudent(ctx context.Context, kind string, parentID, studentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("parent_kind = ?", kind).
		Where("parent_id = ?", parentID).
		Where("student_id = ?", studentID).
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Submission{}, id).Error
}

func (r *submissionRepository) DeleteByParent(ctx context.Context, kind string, parentID uint) error {
	return r.db.WithContext(ctx).
		Where("parent_kind = ?", kind).
		Where("parent_id = ?", parentID).
		Delete(&models.Submission{}).Error
}

func (r *submissionRepository) SyncGroupFiles(ctx context.Context, kind string, parentID uint, meta SubmissionFileMeta, submittedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("parent_kind = ?", kind).
		Where("parent_id = ?", parentID).
		Where("status <> ?", models.SubmissionStatusGraded).
		Updates(map[string]interface{}{
			"file_key":     meta.FileKey,
			"file_type":    meta.FileType,
			"file_name":    meta.FileName,
			"file_size":    meta.FileSize,
			"status":       models.SubmissionStatusSubmitted,
			"submitted_at": submittedAt,
		})

	return result.RowsAffected, result.Error
}

func (r *submissionRepository) CreatePlaceholders(ctx context.Context, kind string, parentID uint, studentIDs []uint) error {
	if len(studentIDs) == 0 {
		return nil
	}

	records := make([]models.Submission, 0, len(studentIDs))
	for _, studentID := range studentIDs {
		records = append(records, models.Submission{
			ParentKind:      kind,
			ParentID:        parentID,
			StudentID:       studentID,
			Status:          models.SubmissionStatusAssigned,
			AutoGradeStatus: models.AutoGradeNone,
		})
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records).Error
}

func (r *submissionRepository) DeleteMembers(ctx context.Context, kind string, parentID uint, studentIDs []uint) error {
	if len(studentIDs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Where("parent_kind = ?", kind).
		Where("parent_id = ?", parentID).
		Where("student_id IN ?", studentIDs).
		Where("status <> ?", models.SubmissionStatusGraded).
		Delete(&models.Submission{}).Error
}
