package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

// AssignableService manages the teacher-facing lifecycle of due-dated
// entities: assignments, group tasks, presentations and tests.
type AssignableService interface {
	Create(ctx context.Context, actor Actor, kind string, payload dto.AssignableCreateRequest, file, solution *multipart.FileHeader) (dto.AssignableResponse, error)
	Get(ctx context.Context, actor Actor, kind string, id uint) (dto.AssignableResponse, error)
	ListByClass(ctx context.Context, actor Actor, kind string, classID uint) ([]dto.AssignableResponse, error)
	Update(ctx context.Context, actor Actor, kind string, id uint, payload dto.AssignableUpdateRequest) (dto.AssignableResponse, error)
	Delete(ctx context.Context, actor Actor, kind string, id uint) error
	SignedURL(ctx context.Context, actor Actor, kind string, id uint, action string) (dto.SignedURLResponse, error)
}

type assignableService struct {
	assignables repository.AssignableRepository
	submissions repository.SubmissionRepository
	classrooms  repository.ClassroomRepository
	store       BlobStore
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssignableService constructs the assignable entity service.
func NewAssignableService(
	assignables repository.AssignableRepository,
	submissions repository.SubmissionRepository,
	classrooms repository.ClassroomRepository,
	store BlobStore,
	events EventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssignableService {
	return &assignableService{
		assignables: assignables,
		submissions: submissions,
		classrooms:  classrooms,
		store:       store,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "assignable_service").Logger(),
	}
}

func (s *assignableService) Create(ctx context.Context, actor Actor, kind string, payload dto.AssignableCreateRequest, file, solution *multipart.FileHeader) (dto.AssignableResponse, error) {
	policy, ok := policies[kind]
	if !ok {
		return dto.AssignableResponse{}, ErrAssignableNotFound
	}

	if !actor.IsTeacher() {
		return dto.AssignableResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignableResponse{}, err
	}

	classroom, err := s.classrooms.GetByID(ctx, payload.ClassID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignableResponse{}, ErrClassroomNotFound
		}
		return dto.AssignableResponse{}, err
	}
	if classroom.CreatedBy != actor.ID {
		return dto.AssignableResponse{}, ErrForbidden
	}

	gradingMode := payload.GradingMode
	if gradingMode == "" || !policy.autoGradable {
		gradingMode = models.GradingManual
	}
	if gradingMode == models.GradingAuto && solution == nil {
		return dto.AssignableResponse{}, ErrSolutionRequired
	}

	roster, err := enrolledOnly(classroom, payload.AssignedStudents)
	if err != nil {
		return dto.AssignableResponse{}, err
	}

	assignable := models.Assignable{
		Kind:             kind,
		ClassID:          payload.ClassID,
		UploaderID:       actor.ID,
		Title:            payload.Title,
		Description:      payload.Description,
		DueDate:          payload.DueDate,
		GradingMode:      gradingMode,
		AssignedStudents: roster,
	}

	if file != nil {
		if err := s.attachFile(ctx, &assignable, kind, file); err != nil {
			return dto.AssignableResponse{}, err
		}
	}

	if solution != nil {
		key, err := s.uploadFile(ctx, fmt.Sprintf("%s/solutions", kind), solution)
		if err != nil {
			s.cleanupBlob(ctx, assignable.FileKey)
			return dto.AssignableResponse{}, err
		}
		assignable.SolutionFileKey = key
	}

	if err := s.assignables.Create(ctx, &assignable); err != nil {
		s.cleanupBlob(ctx, assignable.FileKey)
		s.cleanupBlob(ctx, assignable.SolutionFileKey)
		return dto.AssignableResponse{}, err
	}

	// Shared parents pre-create one record per roster member so the member
	// list renders before any upload exists.
	if policy.placeholders && len(roster) > 0 {
		if err := s.submissions.CreatePlaceholders(ctx, kind, assignable.ID, roster); err != nil {
			return dto.AssignableResponse{}, err
		}
	}

	if s.events != nil {
		s.events.Publish(kind+".created", dto.NewAssignableResponse(assignable))
	}

	s.logger.Info().
		Str("kind", kind).
		Uint("id", assignable.ID).
		Uint("class_id", assignable.ClassID).
		Msg("assignable created")

	return dto.NewAssignableResponse(assignable), nil
}

func (s *assignableService) Get(ctx context.Context, actor Actor, kind string, id uint) (dto.AssignableResponse, error) {
	assignable, err := s.fetch(ctx, kind, id)
	if err != nil {
		return dto.AssignableResponse{}, err
	}
	return dto.NewAssignableResponse(assignable), nil
}

func (s *assignableService) ListByClass(ctx context.Context, actor Actor, kind string, classID uint) ([]dto.AssignableResponse, error) {
	if _, ok := policies[kind]; !ok {
		return nil, ErrAssignableNotFound
	}

	assignables, err := s.assignables.ListByClass(ctx, kind, classID)
	if err != nil {
		return nil, err
	}

	return dto.NewAssignableResponseSlice(assignables), nil
}

func (s *assignableService) Update(ctx context.Context, actor Actor, kind string, id uint, payload dto.AssignableUpdateRequest) (dto.AssignableResponse, error) {
	policy, ok := policies[kind]
	if !ok {
		return dto.AssignableResponse{}, ErrAssignableNotFound
	}

	if !actor.IsTeacher() {
		return dto.AssignableResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignableResponse{}, err
	}

	assignable, err := s.fetch(ctx, kind, id)
	if err != nil {
		return dto.AssignableResponse{}, err
	}
	if assignable.UploaderID != actor.ID {
		return dto.AssignableResponse{}, ErrForbidden
	}

	if payload.Title != nil {
		assignable.Title = *payload.Title
	}
	if payload.Description != nil {
		assignable.Description = *payload.Description
	}
	if payload.DueDate != nil {
		assignable.DueDate = *payload.DueDate
	}

	var added, removed []uint
	if payload.AssignedStudents != nil {
		classroom, err := s.classrooms.GetByID(ctx, assignable.ClassID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.AssignableResponse{}, ErrClassroomNotFound
			}
			return dto.AssignableResponse{}, err
		}

		roster, err := enrolledOnly(classroom, *payload.AssignedStudents)
		if err != nil {
			return dto.AssignableResponse{}, err
		}

		added, removed = diffRoster(assignable.AssignedStudents, roster)
		assignable.AssignedStudents = roster
	}

	if err := s.assignables.Update(ctx, &assignable); err != nil {
		return dto.AssignableResponse{}, err
	}

	// Reconcile pre-created records with the edited roster. Graded records
	// of removed members survive; their grade is already on the books.
	if policy.placeholders {
		if len(added) > 0 {
			if err := s.submissions.CreatePlaceholders(ctx, kind, assignable.ID, added); err != nil {
				return dto.AssignableResponse{}, err
			}
		}
		if len(removed) > 0 {
			if err := s.submissions.DeleteMembers(ctx, kind, assignable.ID, removed); err != nil {
				return dto.AssignableResponse{}, err
			}
		}
	}

	s.logger.Info().Str("kind", kind).Uint("id", assignable.ID).Msg("assignable updated")

	return dto.NewAssignableResponse(assignable), nil
}

func (s *assignableService) Delete(ctx context.Context, actor Actor, kind string, id uint) error {
	if _, ok := policies[kind]; !ok {
		return ErrAssignableNotFound
	}

	if !actor.IsTeacher() {
		return ErrForbidden
	}

	assignable, err := s.fetch(ctx, kind, id)
	if err != nil {
		return err
	}
	if assignable.UploaderID != actor.ID {
		return ErrForbidden
	}

	// Submission blobs go first; an orphaned record is worse than an
	// orphaned object.
	submissions, err := s.submissions.ListByParent(ctx, kind, id)
	if err != nil {
		return err
	}
	for _, submission := range submissions {
		if submission.HasFile() {
			s.cleanupBlob(ctx, submission.FileKey)
		}
	}

	if err := s.submissions.DeleteByParent(ctx, kind, id); err != nil {
		return err
	}

	s.cleanupBlob(ctx, assignable.FileKey)
	s.cleanupBlob(ctx, assignable.SolutionFileKey)

	if err := s.assignables.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().
		Str("kind", kind).
		Uint("id", id).
		Int("submissions_removed", len(submissions)).
		Msg("assignable deleted")

	return nil
}

func (s *assignableService) SignedURL(ctx context.Context, actor Actor, kind string, id uint, action string) (dto.SignedURLResponse, error) {
	assignable, err := s.fetch(ctx, kind, id)
	if err != nil {
		return dto.SignedURLResponse{}, err
	}

	if assignable.FileKey == "" {
		return dto.SignedURLResponse{}, ErrFileNotFound
	}

	url, err := s.store.Presign(ctx, assignable.FileKey, assignable.FileName, assignable.FileType, action)
	if err != nil {
		return dto.SignedURLResponse{}, fmt.Errorf("failed to presign file: %w", err)
	}

	return dto.SignedURLResponse{URL: url, FileName: assignable.FileName}, nil
}

func (s *assignableService) fetch(ctx context.Context, kind string, id uint) (models.Assignable, error) {
	if _, ok := policies[kind]; !ok {
		return models.Assignable{}, ErrAssignableNotFound
	}

	assignable, err := s.assignables.GetByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignable{}, ErrAssignableNotFound
		}
		return models.Assignable{}, err
	}
	return assignable, nil
}

func (s *assignableService) attachFile(ctx context.Context, assignable *models.Assignable, kind string, file *multipart.FileHeader) error {
	key, err := s.uploadFile(ctx, kind, file)
	if err != nil {
		return err
	}

	assignable.FileKey = key
	assignable.FileType = file.Header.Get("Content-Type")
	assignable.FileName = file.Filename
	assignable.FileSize = file.Size
	return nil
}

func (s *assignableService) uploadFile(ctx context.Context, prefix string, file *multipart.FileHeader) (string, error) {
	if err := validateFileType(file); err != nil {
		return "", err
	}

	reader, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	key := buildKeyFn(prefix, file.Filename)
	if err := s.store.Upload(ctx, key, reader, file.Header.Get("Content-Type")); err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return key, nil
}

func (s *assignableService) cleanupBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete file")
	}
}

// enrolledOnly rejects any assigned student who has not joined the class.
func enrolledOnly(classroom models.Classroom, studentIDs []uint) ([]uint, error) {
	roster := make([]uint, 0, len(studentIDs))
	seen := make(map[uint]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !classroom.HasStudent(id) {
			return nil, validationError("student %d is not enrolled in this class", id)
		}
		roster = append(roster, id)
	}
	return roster, nil
}

// diffRoster computes the member sets added to and removed from a roster edit.
func diffRoster(before, after []uint) (added, removed []uint) {
	old := make(map[uint]struct{}, len(before))
	for _, id := range before {
		old[id] = struct{}{}
	}
	next := make(map[uint]struct{}, len(after))
	for _, id := range after {
		next[id] = struct{}{}
		if _, ok := old[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
