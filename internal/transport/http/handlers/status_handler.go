package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
)

type StatusHandler struct {
	engine ports.TaskEngine
	logger *logger.Logger
}

func NewStatusHandler(engine ports.TaskEngine, logger *logger.Logger) *StatusHandler {
	return &StatusHandler{engine: engine, logger: logger}
}

func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.engine.Status(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, "status_get", err)
	}
	return c.JSON(dto.StatusToResponse(status))
}
