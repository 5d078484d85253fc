package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/middleware"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/service"
	"github.com/metastudy/metastudy-api/internal/utils"
)

// MeetingHandler manages live-class endpoints.
type MeetingHandler struct {
	service service.MeetingService
	logger  zerolog.Logger
}

// NewMeetingHandler builds a meeting handler instance.
func NewMeetingHandler(service service.MeetingService, logger zerolog.Logger) *MeetingHandler {
	return &MeetingHandler{
		service: service,
		logger:  logger.With().Str("component", "meeting_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *MeetingHandler) Register(router fiber.Router) {
	router.Post("", middleware.RequireRole(models.RoleTeacher), h.create)
	router.Get("/latest", h.latest)
}

func (h *MeetingHandler) create(c *fiber.Ctx) error {
	var payload dto.MeetingCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	meeting, err := h.service.Create(c.Context(), actorFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "meeting started", meeting)
}

func (h *MeetingHandler) latest(c *fiber.Ctx) error {
	classID, err := parseQueryUint(c, "class_id")
	if err != nil || classID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "class_id is required")
	}

	meeting, err := h.service.Latest(c.Context(), actorFromContext(c), *classID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "meeting retrieved", meeting)
}

func (h *MeetingHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrMeetingNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "meeting not found")
	case errors.Is(err, service.ErrClassroomNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "classroom not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
