package handler

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/metastudy/metastudy-api/internal/dto"
	"github.com/metastudy/metastudy-api/internal/middleware"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/service"
	"github.com/metastudy/metastudy-api/internal/utils"
)

// AssignableHandler serves one parent kind's endpoints. The same handler type
// is registered once per kind; the kind is fixed at registration time.
type AssignableHandler struct {
	service service.AssignableService
	logger  zerolog.Logger
}

// NewAssignableHandler builds an assignable handler instance.
func NewAssignableHandler(service service.AssignableService, logger zerolog.Logger) *AssignableHandler {
	return &AssignableHandler{
		service: service,
		logger:  logger.With().Str("component", "assignable_handler").Logger(),
	}
}

// Register attaches the routes for one parent kind to the provided router group.
func (h *AssignableHandler) Register(router fiber.Router, kind string) {
	teacherOnly := middleware.RequireRole(models.RoleTeacher)

	router.Get("", func(c *fiber.Ctx) error { return h.list(c, kind) })
	router.Post("", teacherOnly, func(c *fiber.Ctx) error { return h.create(c, kind) })
	router.Get("/:id", func(c *fiber.Ctx) error { return h.get(c, kind) })
	router.Patch("/:id", teacherOnly, func(c *fiber.Ctx) error { return h.update(c, kind) })
	router.Delete("/:id", teacherOnly, func(c *fiber.Ctx) error { return h.remove(c, kind) })
	router.Get("/:id/signed-url", func(c *fiber.Ctx) error { return h.signedURL(c, kind) })
}

func (h *AssignableHandler) create(c *fiber.Ctx, kind string) error {
	classID, err := parseFormUint(c, "class_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	dueDate, err := parseDueDate(c.FormValue("due_date"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assigned, err := parseAssignedStudents(c.FormValue("assigned_students"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := dto.AssignableCreateRequest{
		ClassID:          classID,
		Title:            strings.TrimSpace(c.FormValue("title")),
		Description:      c.FormValue("description"),
		DueDate:          dueDate,
		GradingMode:      strings.TrimSpace(c.FormValue("grading_mode")),
		AssignedStudents: assigned,
	}

	file := optionalFormFile(c, "file")
	solution := optionalFormFile(c, "solution")

	assignable, err := h.service.Create(c.Context(), actorFromContext(c), kind, payload, file, solution)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, kind+" created", assignable)
}

func (h *AssignableHandler) get(c *fiber.Ctx, kind string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignable, err := h.service.Get(c.Context(), actorFromContext(c), kind, id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, kind+" retrieved", assignable)
}

func (h *AssignableHandler) list(c *fiber.Ctx, kind string) error {
	classID, err := parseQueryUint(c, "class_id")
	if err != nil || classID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "class_id is required")
	}

	assignables, err := h.service.ListByClass(c.Context(), actorFromContext(c), kind, *classID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, kind+"s retrieved", assignables)
}

func (h *AssignableHandler) update(c *fiber.Ctx, kind string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssignableUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignable, err := h.service.Update(c.Context(), actorFromContext(c), kind, id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, kind+" updated", assignable)
}

func (h *AssignableHandler) remove(c *fiber.Ctx, kind string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), actorFromContext(c), kind, id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, kind+" deleted", nil)
}

func (h *AssignableHandler) signedURL(c *fiber.Ctx, kind string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	url, err := h.service.SignedURL(c.Context(), actorFromContext(c), kind, id, downloadAction(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "signed url generated", url)
}

func (h *AssignableHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrAssignableNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, service.ErrClassroomNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "classroom not found")
	case errors.Is(err, service.ErrFileNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "file not found")
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrSolutionRequired):
		return utils.SendError(c, fiber.StatusBadRequest, "auto grading requires a solution file")
	case errors.Is(err, service.ErrValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func optionalFormFile(c *fiber.Ctx, key string) *multipart.FileHeader {
	file, err := c.FormFile(key)
	if err != nil {
		return nil
	}
	return file
}

func parseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("due_date is required")
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("due_date must be RFC 3339")
	}
	return parsed, nil
}

func parseAssignedStudents(raw string) ([]uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var ids []uint
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, errors.New("assigned_students must be a JSON array of IDs")
	}
	return ids, nil
}
