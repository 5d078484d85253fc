package dto

import (
	"time"

	"github.com/metastudy/metastudy-api/internal/models"
)

// MaterialLinkRequest registers an external link as class material.
type MaterialLinkRequest struct {
	ClassID uint   `json:"class_id" validate:"required,gt=0"`
	Title   string `json:"title" validate:"required,min=1,max=255"`
	URL     string `json:"url" validate:"required,url,max=1024"`
}

// MaterialUpdateRequest updates material metadata. Only the title and, for
// link materials, the URL can change; files are immutable once uploaded.
type MaterialUpdateRequest struct {
	Title *string `json:"title" validate:"omitempty,min=1,max=255"`
	URL   *string `json:"url" validate:"omitempty,url,max=1024"`
}

// MaterialResponse is returned to API clients when viewing materials.
type MaterialResponse struct {
	ID         uint      `json:"id"`
	ClassID    uint      `json:"class_id"`
	UploaderID uint      `json:"uploader_id"`
	Title      string    `json:"title"`
	IsLink     bool      `json:"is_link"`
	LinkURL    string    `json:"link_url,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMaterialResponse converts a Material model into a DTO.
func NewMaterialResponse(model models.Material) MaterialResponse {
	return MaterialResponse{
		ID:         model.ID,
		ClassID:    model.ClassID,
		UploaderID: model.UploaderID,
		Title:      model.Title,
		IsLink:     model.IsLink,
		LinkURL:    model.LinkURL,
		FileName:   model.FileName,
		FileType:   model.FileType,
		FileSize:   model.FileSize,
		CreatedAt:  model.CreatedAt,
	}
}

// NewMaterialResponseSlice converts a slice of models into DTOs.
func NewMaterialResponseSlice(materials []models.Material) []MaterialResponse {
	responses := make([]MaterialResponse, 0, len(materials))
	for _, material := range materials {
		responses = append(responses, NewMaterialResponse(material))
	}
	return responses
}
