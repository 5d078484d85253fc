package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

// SubmissionService is the consolidated submission lifecycle shared by all
// parent kinds. Behavioral differences are driven by the policy table.
type SubmissionService interface {
	Submit(ctx context.Context, actor Actor, kind string, parentID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	List(ctx context.Context, actor Actor, kind string, parentID uint) ([]dto.SubmissionResponse, error)
	Latest(ctx context.Context, actor Actor, kind string, parentID uint) (*dto.SubmissionResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	Grade(ctx context.Context, actor Actor, id uint, payload dto.GradeSubmissionRequest) (dto.SubmissionResponse, error)
	SignedURL(ctx context.Context, actor Actor, id uint, action string) (dto.SignedURLResponse, error)
}

// AutoGradeEnqueuer hands a submission to the background grading queue.
type AutoGradeEnqueuer interface {
	Enqueue(submissionID uint)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignables repository.AssignableRepository
	users       repository.UserRepository
	store       BlobStore
	grader      AutoGradeEnqueuer
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs the submission lifecycle service.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignables repository.AssignableRepository,
	users repository.UserRepository,
	store BlobStore,
	grader AutoGradeEnqueuer,
	events EventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: submissions,
		assignables: assignables,
		users:       users,
		store:       store,
		grader:      grader,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/metastudy/metastudy-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, actor Actor, kind string, parentID uint, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	policy, ok := policies[kind]
	if !ok {
		return dto.SubmissionResponse{}, ErrAssignableNotFound
	}

	if !actor.IsStudent() {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	if file == nil {
		return dto.SubmissionResponse{}, validationError("submission file is required")
	}

	parent, err := s.assignables.GetByID(ctx, kind, parentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAssignableNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if policy.restrictToRoster && !parent.IsAssigned(actor.ID) {
		return dto.SubmissionResponse{}, ErrNotAssigned
	}

	existing, err := s.submissions.GetByParentAndStudent(ctx, kind, parentID, actor.ID)
	hasExisting := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, err
	}

	// A graded record is frozen to the submitter regardless of deadline state.
	if hasExisting && existing.IsGraded() {
		return dto.SubmissionResponse{}, ErrAlreadyGraded
	}

	// Shared parents pre-create member records; a missing record means the
	// roster was edited underneath the caller.
	if policy.placeholders && !hasExisting {
		return dto.SubmissionResponse{}, ErrNotAssigned
	}

	if parent.IsPastDue(s.now()) {
		return dto.SubmissionResponse{}, ErrDeadlinePassed
	}

	if err := validateFileType(file); err != nil {
		return dto.SubmissionResponse{}, err
	}

	reader, err := file.Open()
	if err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	// Write-ahead ordering: the new object must be durable before any
	// database row references its key.
	newKey := buildSubmissionKey(kind, parentID, file.Filename)
	contentType := file.Header.Get("Content-Type")
	if err := s.store.Upload(ctx, newKey, reader, contentType); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to upload file: %w", err)
	}

	meta := repository.SubmissionFileMeta{
		FileKey:  newKey,
		FileType: contentType,
		FileName: file.Filename,
		FileSize: file.Size,
	}

	var oldKey string
	if hasExisting {
		oldKey = existing.FileKey
	}

	submittedAt := s.now()

	var submission models.Submission
	if policy.shared {
		submission, err = s.syncShared(ctx, policy, parentID, actor.ID, meta, submittedAt)
	} else if hasExisting {
		submission, err = s.replace(ctx, policy, existing, meta, submittedAt)
	} else {
		submission, err = s.createFirst(ctx, policy, parentID, actor.ID, meta, submittedAt)
	}
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	// The new key is already committed; a leaked old blob is preferable to
	// failing the request.
	s.cleanupBlob(ctx, oldKey)

	if policy.autoGradable && parent.IsAutoGraded() && s.grader != nil {
		s.grader.Enqueue(submission.ID)
	}

	if s.events != nil {
		s.events.Publish("submission.submitted", dto.NewSubmissionResponse(submission))
	}

	s.logger.Info().
		Str("kind", kind).
		Uint("parent_id", parentID).
		Uint("student_id", actor.ID).
		Uint("submission_id", submission.ID).
		Msg("submission stored")

	return dto.NewSubmissionResponse(submission), nil
}

// createFirst inserts the first record for a (parent, student) pair. A
// concurrent first-time submission loses the race on the unique index and
// falls back to the replace path instead of failing.
func (s *submissionService) createFirst(ctx context.Context, policy parentPolicy, parentID, studentID uint, meta repository.SubmissionFileMeta, submittedAt time.Time) (models.Submission, error) {
	submission := models.Submission{
		ParentKind:      policy.kind,
		ParentID:        parentID,
		StudentID:       studentID,
		FileKey:         meta.FileKey,
		FileType:        meta.FileType,
		FileName:        meta.FileName,
		FileSize:        meta.FileSize,
		Status:          models.SubmissionStatusSubmitted,
		SubmittedAt:     &submittedAt,
		AutoGradeStatus: models.AutoGradeNone,
	}
	if policy.autoGradable {
		submission.AutoGradeStatus = models.AutoGradePending
	}

	err := s.submissions.Create(ctx, &submission)
	if err == nil {
		return submission, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.Submission{}, err
	}

	existing, err := s.submissions.GetByParentAndStudent(ctx, policy.kind, parentID, studentID)
	if err != nil {
		return models.Submission{}, err
	}
	if existing.IsGraded() {
		return models.Submission{}, ErrAlreadyGraded
	}

	return s.replace(ctx, policy, existing, meta, submittedAt)
}

// replace points an existing record at the freshly uploaded file.
func (s *submissionService) replace(ctx context.Context, policy parentPolicy, existing models.Submission, meta repository.SubmissionFileMeta, submittedAt time.Time) (models.Submission, error) {
	existing.FileKey = meta.FileKey
	existing.FileType = meta.FileType
	existing.FileName = meta.FileName
	existing.FileSize = meta.FileSize
	existing.Status = models.SubmissionStatusSubmitted
	existing.SubmittedAt = &submittedAt

	if policy.resetGradeOnResubmit {
		existing.Marks = nil
		existing.Feedback = ""
		existing.GradedAt = nil
		existing.GradedBy = nil
		existing.AutoGradeStatus = models.AutoGradePending
	}

	if err := s.submissions.Update(ctx, &existing); err != nil {
		return models.Submission{}, err
	}

	return existing, nil
}

// syncShared fans one member's upload out to every non-graded record of the
// group. Graded records keep their old file pointer; that partial freeze is
// inherited behavior, not an oversight.
func (s *submissionService) syncShared(ctx context.Context, policy parentPolicy, parentID, studentID uint, meta repository.SubmissionFileMeta, submittedAt time.Time) (models.Submission, error) {
	updated, err := s.submissions.SyncGroupFiles(ctx, policy.kind, parentID, meta, submittedAt)
	if err != nil {
		return models.Submission{}, err
	}

	s.logger.Info().
		Uint("parent_id", parentID).
		Int64("records_synced", updated).
		Msg("group submission synchronized")

	return s.submissions.GetByParentAndStudent(ctx, policy.kind, parentID, studentID)
}

func (s *submissionService) List(ctx context.Context, actor Actor, kind string, parentID uint) ([]dto.SubmissionResponse, error) {
	if _, ok := policies[kind]; !ok {
		return nil, ErrAssignableNotFound
	}

	if _, err := s.assignables.GetByID(ctx, kind, parentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignableNotFound
		}
		return nil, err
	}

	if actor.IsTeacher() {
		submissions, err := s.submissions.ListByParent(ctx, kind, parentID)
		if err != nil {
			return nil, err
		}
		return s.withStudents(ctx, submissions), nil
	}

	submissions, err := s.submissions.ListByParentAndStudent(ctx, kind, parentID, actor.ID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Latest(ctx context.Context, actor Actor, kind string, parentID uint) (*dto.SubmissionResponse, error) {
	if !actor.IsStudent() {
		return nil, ErrForbidden
	}
	if _, ok := policies[kind]; !ok {
		return nil, ErrAssignableNotFound
	}

	submission, err := s.submissions.GetByParentAndStudent(ctx, kind, parentID, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	response := dto.NewSubmissionResponse(submission)
	return &response, nil
}

func (s *submissionService) Delete(ctx context.Context, actor Actor, id uint) error {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if submission.StudentID != actor.ID {
		return ErrForbidden
	}

	policy := policies[submission.ParentKind]
	if policy.shared {
		// A group contribution belongs to the roster, not one member.
		return ErrForbidden
	}

	if submission.IsGraded() {
		return ErrAlreadyGraded
	}

	parent, err := s.assignables.GetByID(ctx, submission.ParentKind, submission.ParentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignableNotFound
		}
		return err
	}

	if parent.IsPastDue(s.now()) {
		return ErrDeadlinePassed
	}

	if submission.HasFile() {
		if err := s.store.Delete(ctx, submission.FileKey); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}

	return s.submissions.Delete(ctx, submission.ID)
}

func (s *submissionService) Grade(ctx context.Context, actor Actor, id uint, payload dto.GradeSubmissionRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.grade")
	span.SetAttributes(
		attribute.Int64("submission.id", int64(id)),
		attribute.Int64("grader.id", int64(actor.ID)),
	)
	defer span.End()

	if !actor.IsTeacher() {
		return dto.SubmissionResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	feedback := strings.TrimSpace(payload.Feedback)

	// Re-grading with identical values by the same grader is a no-op.
	if submission.Marks != nil && math.Abs(*submission.Marks-payload.Marks) < 1e-6 &&
		strings.TrimSpace(submission.Feedback) == feedback &&
		submission.GradedBy != nil && *submission.GradedBy == actor.ID {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewSubmissionResponse(submission), nil
	}

	marks := payload.Marks
	gradedAt := s.now()
	graderID := actor.ID

	submission.Marks = &marks
	submission.Feedback = feedback
	submission.GradedAt = &gradedAt
	submission.GradedBy = &graderID
	submission.Status = models.SubmissionStatusGraded
	if submission.ParentKind == models.KindTest {
		// Manual grading finalizes the auto-grade pipeline.
		submission.AutoGradeStatus = models.AutoGradeScored
	}

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if s.events != nil {
		s.events.Publish("submission.graded", dto.NewSubmissionResponse(submission))
	}

	span.SetAttributes(attribute.Float64("grading.marks", marks))
	s.logger.Info().Uint("submission_id", submission.ID).Float64("marks", marks).Msg("submission graded")

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) SignedURL(ctx context.Context, actor Actor, id uint, action string) (dto.SignedURLResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SignedURLResponse{}, ErrSubmissionNotFound
		}
		return dto.SignedURLResponse{}, err
	}

	if actor.IsStudent() && submission.StudentID != actor.ID {
		return dto.SignedURLResponse{}, ErrForbidden
	}

	if !submission.HasFile() {
		return dto.SignedURLResponse{}, ErrFileNotFound
	}

	url, err := s.store.Presign(ctx, submission.FileKey, submission.FileName, submission.FileType, action)
	if err != nil {
		return dto.SignedURLResponse{}, fmt.Errorf("failed to presign file: %w", err)
	}

	return dto.SignedURLResponse{URL: url, FileName: submission.FileName}, nil
}

// withStudents attaches student summaries for teacher-facing listings.
func (s *submissionService) withStudents(ctx context.Context, submissions []models.Submission) []dto.SubmissionResponse {
	ids := make([]uint, 0, len(submissions))
	seen := make(map[uint]struct{}, len(submissions))
	for _, submission := range submissions {
		if _, ok := seen[submission.StudentID]; !ok {
			seen[submission.StudentID] = struct{}{}
			ids = append(ids, submission.StudentID)
		}
	}

	byID := make(map[uint]dto.UserLite, len(ids))
	if s.users != nil {
		users, err := s.users.ListByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to resolve student profiles")
		} else {
			for _, user := range users {
				byID[user.ID] = dto.UserLite{ID: user.ID, Name: user.Name, Email: user.Email}
			}
		}
	}

	responses := dto.NewSubmissionResponseSlice(submissions)
	for i := range responses {
		if lite, ok := byID[responses[i].StudentID]; ok {
			student := lite
			responses[i].Student = &student
		}
	}

	return responses
}

func (s *submissionService) cleanupBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete old file")
	}
}

func buildSubmissionKey(kind string, parentID uint, filename string) string {
	return buildKeyFn(fmt.Sprintf("submissions/%s/%d", kind, parentID), filename)
}

func validateFileType(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect file type: %w", err)
	}

	allowed := []string{
		"application/pdf",
		"application/zip",
		"application/x-zip-compressed",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain",
		"image/png",
		"image/jpeg",
	}
	for _, a := range allowed {
		if mime.Is(a) {
			return nil
		}
	}

	return validationError("unsupported file type: %s", mime.String())
}
