package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/repository"
)

// ClassroomService manages class creation, membership and rosters.
type ClassroomService interface {
	Create(ctx context.Context, actor Actor, payload dto.ClassroomCreateRequest) (dto.ClassroomResponse, error)
	Join(ctx context.Context, actor Actor, payload dto.JoinClassroomRequest) (dto.ClassroomResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.ClassroomResponse, error)
	MyClassrooms(ctx context.Context, actor Actor) ([]dto.ClassroomResponse, error)
	Roster(ctx context.Context, actor Actor, id uint) (dto.RosterResponse, error)
}

type classroomService struct {
	classrooms repository.ClassroomRepository
	cache      *redis.Client
	cacheTTL   time.Duration
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewClassroomService constructs the classroom service. The cache client may
// be nil; roster reads then always hit the database.
func NewClassroomService(
	classrooms repository.ClassroomRepository,
	cache *redis.Client,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger zerolog.Logger,
) ClassroomService {
	return &classroomService{
		classrooms: classrooms,
		cache:      cache,
		cacheTTL:   cacheTTL,
		validator:  validate,
		logger:     logger.With().Str("component", "classroom_service").Logger(),
	}
}

func (s *classroomService) Create(ctx context.Context, actor Actor, payload dto.ClassroomCreateRequest) (dto.ClassroomResponse, error) {
	if !actor.IsTeacher() {
		return dto.ClassroomResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassroomResponse{}, err
	}

	classroom := models.Classroom{
		Name:      payload.Name,
		Subject:   payload.Subject,
		Section:   payload.Section,
		CreatedBy: actor.ID,
		Students:  []uint{},
		Folders:   models.DefaultFolders(),
	}

	// Join codes collide rarely; retry a few times on the unique index
	// rather than coordinating code generation.
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		classroom.Code, err = generateJoinCode()
		if err != nil {
			return dto.ClassroomResponse{}, err
		}

		err = s.classrooms.Create(ctx, &classroom)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return dto.ClassroomResponse{}, err
		}
	}
	if err != nil {
		return dto.ClassroomResponse{}, fmt.Errorf("failed to allocate a join code: %w", err)
	}

	s.logger.Info().Uint("class_id", classroom.ID).Str("code", classroom.Code).Msg("classroom created")

	return dto.NewClassroomResponse(classroom), nil
}

func (s *classroomService) Join(ctx context.Context, actor Actor, payload dto.JoinClassroomRequest) (dto.ClassroomResponse, error) {
	if !actor.IsStudent() {
		return dto.ClassroomResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassroomResponse{}, err
	}

	classroom, err := s.classrooms.GetByCode(ctx, payload.Code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassroomResponse{}, ErrClassroomNotFound
		}
		return dto.ClassroomResponse{}, err
	}

	if classroom.HasStudent(actor.ID) {
		return dto.ClassroomResponse{}, ErrAlreadyJoined
	}

	classroom.Students = append(classroom.Students, actor.ID)
	if err := s.classrooms.Update(ctx, &classroom); err != nil {
		return dto.ClassroomResponse{}, err
	}

	s.invalidateRoster(ctx, classroom.ID)

	s.logger.Info().Uint("class_id", classroom.ID).Uint("student_id", actor.ID).Msg("student joined classroom")

	return dto.NewClassroomResponse(classroom), nil
}

func (s *classroomService) Get(ctx context.Context, actor Actor, id uint) (dto.ClassroomResponse, error) {
	classroom, err := s.classrooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ClassroomResponse{}, ErrClassroomNotFound
		}
		return dto.ClassroomResponse{}, err
	}

	if actor.IsStudent() && !classroom.HasStudent(actor.ID) {
		return dto.ClassroomResponse{}, ErrForbidden
	}

	return dto.NewClassroomResponse(classroom), nil
}

func (s *classroomService) MyClassrooms(ctx context.Context, actor Actor) ([]dto.ClassroomResponse, error) {
	var (
		classrooms []models.Classroom
		err        error
	)

	if actor.IsTeacher() {
		classrooms, err = s.classrooms.ListByTeacher(ctx, actor.ID)
	} else {
		classrooms, err = s.classrooms.ListByStudent(ctx, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	return dto.NewClassroomResponseSlice(classrooms), nil
}

// Rosters expose the full student-ID list and are restricted to the owning
// teacher. The cached entry carries the owner so a cache hit stays gated.
func (s *classroomService) Roster(ctx context.Context, actor Actor, id uint) (dto.RosterResponse, error) {
	if !actor.IsTeacher() {
		return dto.RosterResponse{}, ErrForbidden
	}

	if entry, ok := s.cachedRoster(ctx, id); ok {
		if entry.CreatedBy != actor.ID {
			return dto.RosterResponse{}, ErrForbidden
		}
		return dto.RosterResponse{ClassID: entry.ClassID, StudentIDs: entry.StudentIDs}, nil
	}

	classroom, err := s.classrooms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RosterResponse{}, ErrClassroomNotFound
		}
		return dto.RosterResponse{}, err
	}
	if classroom.CreatedBy != actor.ID {
		return dto.RosterResponse{}, ErrForbidden
	}

	entry := rosterCacheEntry{ClassID: classroom.ID, CreatedBy: classroom.CreatedBy, StudentIDs: classroom.Students}
	s.storeRoster(ctx, entry)

	return dto.RosterResponse{ClassID: entry.ClassID, StudentIDs: entry.StudentIDs}, nil
}

type rosterCacheEntry struct {
	ClassID    uint   `json:"class_id"`
	CreatedBy  uint   `json:"created_by"`
	StudentIDs []uint `json:"student_ids"`
}

func (s *classroomService) cachedRoster(ctx context.Context, id uint) (rosterCacheEntry, bool) {
	if s.cache == nil {
		return rosterCacheEntry{}, false
	}

	raw, err := s.cache.Get(ctx, rosterCacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("class_id", id).Msg("roster cache read failed")
		}
		return rosterCacheEntry{}, false
	}

	var entry rosterCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn().Err(err).Uint("class_id", id).Msg("roster cache entry corrupt")
		return rosterCacheEntry{}, false
	}
	return entry, true
}

func (s *classroomService) storeRoster(ctx context.Context, entry rosterCacheEntry) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, rosterCacheKey(entry.ClassID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("class_id", entry.ClassID).Msg("roster cache write failed")
	}
}

func (s *classroomService) invalidateRoster(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, rosterCacheKey(id)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("class_id", id).Msg("roster cache invalidation failed")
	}
}

func rosterCacheKey(id uint) string {
	return fmt.Sprintf("classroom:%d:roster", id)
}

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateJoinCode produces a 6-character code from an alphabet without
// easily confused characters.
func generateJoinCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}
