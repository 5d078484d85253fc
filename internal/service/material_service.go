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

// MaterialService manages class resources: uploaded files and external links.
type MaterialService interface {
	UploadFile(ctx context.Context, actor Actor, classID uint, title string, file *multipart.FileHeader) (dto.MaterialResponse, error)
	AddLink(ctx context.Context, actor Actor, payload dto.MaterialLinkRequest) (dto.MaterialResponse, error)
	ListByClass(ctx context.Context, actor Actor, classID uint) ([]dto.MaterialResponse, error)
	Update(ctx context.Context, actor Actor, id uint, payload dto.MaterialUpdateRequest) (dto.MaterialResponse, error)
	Delete(ctx context.Context, actor Actor, id uint) error
	SignedURL(ctx context.Context, actor Actor, id uint, action string) (dto.SignedURLResponse, error)
}

type materialService struct {
	materials  repository.MaterialRepository
	classrooms repository.ClassroomRepository
	store      BlobStore
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewMaterialService constructs the material service.
func NewMaterialService(
	materials repository.MaterialRepository,
	classrooms repository.ClassroomRepository,
	store BlobStore,
	validate *validator.Validate,
	logger zerolog.Logger,
) MaterialService {
	return &materialService{
		materials:  materials,
		classrooms: classrooms,
		store:      store,
		validator:  validate,
		logger:     logger.With().Str("component", "material_service").Logger(),
	}
}

func (s *materialService) UploadFile(ctx context.Context, actor Actor, classID uint, title string, file *multipart.FileHeader) (dto.MaterialResponse, error) {
	if !actor.IsTeacher() {
		return dto.MaterialResponse{}, ErrForbidden
	}
	if title == "" {
		return dto.MaterialResponse{}, validationError("title is required")
	}
	if file == nil {
		return dto.MaterialResponse{}, validationError("material file is required")
	}

	if err := s.checkClassOwnership(ctx, actor, classID); err != nil {
		return dto.MaterialResponse{}, err
	}

	if err := validateFileType(file); err != nil {
		return dto.MaterialResponse{}, err
	}

	reader, err := file.Open()
	if err != nil {
		return dto.MaterialResponse{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	key := buildKeyFn(fmt.Sprintf("materials/%d", classID), file.Filename)
	contentType := file.Header.Get("Content-Type")
	if err := s.store.Upload(ctx, key, reader, contentType); err != nil {
		return dto.MaterialResponse{}, fmt.Errorf("failed to upload file: %w", err)
	}

	material := models.Material{
		ClassID:    classID,
		UploaderID: actor.ID,
		Title:      title,
		FileKey:    key,
		FileType:   contentType,
		FileName:   file.Filename,
		FileSize:   file.Size,
	}

	if err := s.materials.Create(ctx, &material); err != nil {
		s.cleanupBlob(ctx, key)
		return dto.MaterialResponse{}, err
	}

	s.logger.Info().Uint("material_id", material.ID).Uint("class_id", classID).Msg("material uploaded")

	return dto.NewMaterialResponse(material), nil
}

func (s *materialService) AddLink(ctx context.Context, actor Actor, payload dto.MaterialLinkRequest) (dto.MaterialResponse, error) {
	if !actor.IsTeacher() {
		return dto.MaterialResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	if err := s.checkClassOwnership(ctx, actor, payload.ClassID); err != nil {
		return dto.MaterialResponse{}, err
	}

	material := models.Material{
		ClassID:    payload.ClassID,
		UploaderID: actor.ID,
		Title:      payload.Title,
		IsLink:     true,
		LinkURL:    payload.URL,
	}

	if err := s.materials.Create(ctx, &material); err != nil {
		return dto.MaterialResponse{}, err
	}

	return dto.NewMaterialResponse(material), nil
}

func (s *materialService) ListByClass(ctx context.Context, actor Actor, classID uint) ([]dto.MaterialResponse, error) {
	materials, err := s.materials.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return dto.NewMaterialResponseSlice(materials), nil
}

func (s *materialService) Update(ctx context.Context, actor Actor, id uint, payload dto.MaterialUpdateRequest) (dto.MaterialResponse, error) {
	if !actor.IsTeacher() {
		return dto.MaterialResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	material, err := s.fetch(ctx, id)
	if err != nil {
		return dto.MaterialResponse{}, err
	}
	if material.UploaderID != actor.ID {
		return dto.MaterialResponse{}, ErrForbidden
	}

	if payload.Title != nil {
		material.Title = *payload.Title
	}
	if payload.URL != nil {
		if !material.IsLink {
			return dto.MaterialResponse{}, validationError("cannot set a url on a file material")
		}
		material.LinkURL = *payload.URL
	}

	if err := s.materials.Update(ctx, &material); err != nil {
		return dto.MaterialResponse{}, err
	}

	return dto.NewMaterialResponse(material), nil
}

func (s *materialService) Delete(ctx context.Context, actor Actor, id uint) error {
	if !actor.IsTeacher() {
		return ErrForbidden
	}

	material, err := s.fetch(ctx, id)
	if err != nil {
		return err
	}
	if material.UploaderID != actor.ID {
		return ErrForbidden
	}

	if material.FileKey != "" {
		if err := s.store.Delete(ctx, material.FileKey); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}

	return s.materials.Delete(ctx, material.ID)
}

func (s *materialService) SignedURL(ctx context.Context, actor Actor, id uint, action string) (dto.SignedURLResponse, error) {
	material, err := s.fetch(ctx, id)
	if err != nil {
		return dto.SignedURLResponse{}, err
	}

	if material.IsLink {
		return dto.SignedURLResponse{URL: material.LinkURL}, nil
	}
	if material.FileKey == "" {
		return dto.SignedURLResponse{}, ErrFileNotFound
	}

	url, err := s.store.Presign(ctx, material.FileKey, material.FileName, material.FileType, action)
	if err != nil {
		return dto.SignedURLResponse{}, fmt.Errorf("failed to presign file: %w", err)
	}

	return dto.SignedURLResponse{URL: url, FileName: material.FileName}, nil
}

func (s *materialService) fetch(ctx context.Context, id uint) (models.Material, error) {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Material{}, ErrMaterialNotFound
		}
		return models.Material{}, err
	}
	return material, nil
}

func (s *materialService) checkClassOwnership(ctx context.Context, actor Actor, classID uint) error {
	classroom, err := s.classrooms.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrClassroomNotFound
		}
		return err
	}
	if classroom.CreatedBy != actor.ID {
		return ErrForbidden
	}
	return nil
}

func (s *materialService) cleanupBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to delete file")
	}
}
