package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

const maxDiscussionWords = 500

// DiscussionService manages the class discussion feed.
type DiscussionService interface {
	Create(ctx context.Context, actor Actor, payload dto.DiscussionCreateRequest) (dto.DiscussionResponse, error)
	ListByClass(ctx context.Context, actor Actor, classID uint) ([]dto.DiscussionResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.DiscussionUpdateRequest) (dto.DiscussionResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	AddComment(ctx context.Context, actor Actor, discussionID uint, payload dto.CommentCreateRequest) (dto.DiscussionResponse, error)
}

type discussionService struct {
	discussions repository.DiscussionRepository
	users       repository.UserRepository
	mailer      EmailSender
	sanitizer   *bluemonday.Policy
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewDiscussionService constructs the discussion service.
func NewDiscussionService(
	discussions repository.DiscussionRepository,
	users repository.UserRepository,
	mailer EmailSender,
	validate *validator.Validate,
	logger zerolog.Logger,
) DiscussionService {
	return &discussionService{
		discussions: discussions,
		users:       users,
		mailer:      mailer,
		sanitizer:   bluemonday.UGCPolicy(),
		validator:   validate,
		logger:      logger.With().Str("component", "discussion_service").Logger(),
	}
}

func (s *discussionService) Create(ctx context.Context, actor Actor, payload dto.DiscussionCreateRequest) (dto.DiscussionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DiscussionResponse{}, err
	}

	content, err := s.cleanContent(payload.Content)
	if err != nil {
		return dto.DiscussionResponse{}, err
	}

	author, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DiscussionResponse{}, ErrUserNotFound
		}
		return dto.DiscussionResponse{}, err
	}

	discussion := models.Discussion{
		ClassID:    payload.ClassID,
		AuthorID:   actor.ID,
		AuthorName: author.Name,
		Content:    content,
	}

	if err := s.discussions.Create(ctx, &discussion); err != nil {
		return dto.DiscussionResponse{}, err
	}

	return dto.NewDiscussionResponse(discussion), nil
}

func (s *discussionService) ListByClass(ctx context.Context, actor Actor, classID uint) ([]dto.DiscussionResponse, error) {
	discussions, err := s.discussions.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return dto.NewDiscussionResponseSlice(discussions), nil
}

func (s *discussionService) Update(ctx context.Context, actor Actor, id uint, payload dto.DiscussionUpdateRequest) (dto.DiscussionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DiscussionResponse{}, err
	}

	discussion, err := s.fetch(ctx, id)
	if err != nil {
		return dto.DiscussionResponse{}, err
	}

	// Posts are editable by their author only; teachers may delete but not
	// rewrite someone else's words.
	if discussion.AuthorID != actor.ID {
		return dto.DiscussionResponse{}, ErrForbidden
	}

	content, err := s.cleanContent(payload.Content)
	if err != nil {
		return dto.DiscussionResponse{}, err
	}

	discussion.Content = content
	if err := s.discussions.Update(ctx, &discussion); err != nil {
		return dto.DiscussionResponse{}, err
	}

	return dto.NewDiscussionResponse(discussion), nil
}

func (s *discussionService) Delete(ctx context.Context, actor Actor, id uint) error {
	discussion, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}

	if discussion.AuthorID != actor.ID && !actor.IsTeacher() {
		return ErrForbidden
	}

	return s.discussions.Delete(ctx, discussion.ID)
}

func (s *discussionService) AddComment(ctx context.Context, actor Actor, discussionID uint, payload dto.CommentCreateRequest) (dto.DiscussionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.DiscussionResponse{}, err
	}

	discussion, err := s.fetch(ctx, discussionID)
	if err != nil {
		return dto.DiscussionResponse{}, err
	}

	content, err := s.cleanContent(payload.Content)
	if err != nil {
		return dto.DiscussionResponse{}, err
	}

	commenter, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DiscussionResponse{}, ErrUserNotFound
		}
		return dto.DiscussionResponse{}, err
	}

	comment := models.DiscussionComment{
		DiscussionID: discussion.ID,
		AuthorID:     actor.ID,
		AuthorName:   commenter.Name,
		Content:      content,
	}

	if err := s.discussions.AddComment(ctx, &comment); err != nil {
		return dto.DiscussionResponse{}, err
	}

	s.notifyAuthor(ctx, discussion, commenter.Name)

	return s.Get(ctx, discussion.ID)
}

// Get reloads a discussion with its comments.
func (s *discussionService) Get(ctx context.Context, id uint) (dto.DiscussionResponse, error) {
	discussion, err := s.fetch(ctx, id)
	if err != nil {
		return dto.DiscussionResponse{}, err
	}
	return dto.NewDiscussionResponse(discussion), nil
}

func (s *discussionService) fetch(ctx context.Context, id uint) (models.Discussion, error) {
	discussion, err := s.discussions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Discussion{}, ErrDiscussionNotFound
		}
		return models.Discussion{}, err
	}
	return discussion, nil
}

// notifyAuthor emails the post author about a new reply. Self-replies are
// silent.
func (s *discussionService) notifyAuthor(ctx context.Context, discussion models.Discussion, commenterName string) {
	if s.mailer == nil {
		return
	}

	author, err := s.users.GetByID(ctx, discussion.AuthorID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("author_id", discussion.AuthorID).Msg("failed to resolve post author")
		return
	}
	if author.Name == commenterName {
		return
	}

	subject := "New reply to your discussion post"
	body := fmt.Sprintf("%s replied to your post in class %d.", commenterName, discussion.ClassID)
	s.mailer.Send(author.Name, author.Email, subject, body)
}

// cleanContent sanitizes submitted HTML and enforces the post length cap.
func (s *discussionService) cleanContent(raw string) (string, error) {
	content := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if content == "" {
		return "", validationError("content is empty after sanitization")
	}
	if len(strings.Fields(content)) > maxDiscussionWords {
		return "", validationError("content exceeds %d words", maxDiscussionWords)
	}
	return content, nil
}
