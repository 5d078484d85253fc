package dto

import (
	"time"

	"github.com/metastudy/metastudy-api/internal/models"
)

// DiscussionCreateRequest posts a new discussion to a class feed.
type DiscussionCreateRequest struct {
	ClassID uint   `json:"class_id" validate:"required,gt=0"`
	Content string `json:"content" validate:"required"`
}

// DiscussionUpdateRequest edits an existing post.
type DiscussionUpdateRequest struct {
	Content string `json:"content" validate:"required"`
}

// CommentCreateRequest adds a comment to a discussion.
type CommentCreateRequest struct {
	Content string `json:"content" validate:"required"`
}

// CommentResponse serializes a discussion comment.
type CommentResponse struct {
	ID         uint      `json:"id"`
	AuthorID   uint      `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// DiscussionResponse is returned to API clients when viewing discussions.
type DiscussionResponse struct {
	ID         uint              `json:"id"`
	ClassID    uint              `json:"class_id"`
	AuthorID   uint              `json:"author_id"`
	AuthorName string            `json:"author_name"`
	Content    string            `json:"content"`
	Comments   []CommentResponse `json:"comments"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewDiscussionResponse converts a Discussion model into a DTO.
func NewDiscussionResponse(model models.Discussion) DiscussionResponse {
	comments := make([]CommentResponse, 0, len(model.Comments))
	for _, comment := range model.Comments {
		comments = append(comments, CommentResponse{
			ID:         comment.ID,
			AuthorID:   comment.AuthorID,
			AuthorName: comment.AuthorName,
			Content:    comment.Content,
			CreatedAt:  comment.CreatedAt,
		})
	}

	return DiscussionResponse{
		ID:         model.ID,
		ClassID:    model.ClassID,
		AuthorID:   model.AuthorID,
		AuthorName: model.AuthorName,
		Content:    model.Content,
		Comments:   comments,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

// NewDiscussionResponseSlice converts a slice of models into DTOs.
func NewDiscussionResponseSlice(discussions []models.Discussion) []DiscussionResponse {
	responses := make([]DiscussionResponse, 0, len(discussions))
	for _, discussion := range discussions {
		responses = append(responses, NewDiscussionResponse(discussion))
	}
	return responses
}
