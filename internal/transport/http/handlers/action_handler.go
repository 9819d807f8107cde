package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
	httpmw "github.com/stackgate/backend/internal/transport/http/middleware"
)

// ActionHandler accepts new task submissions.
type ActionHandler struct {
	engine ports.TaskEngine
	logger *logger.Logger
}

func NewActionHandler(engine ports.TaskEngine, logger *logger.Logger) *ActionHandler {
	return &ActionHandler{engine: engine, logger: logger}
}

func (h *ActionHandler) CreateTask(c *fiber.Ctx) error {
	// the task type outlives the request; fiber reuses the param buffer
	taskType := utils.CopyString(c.Params("task_type"))
	input, err := dto.ParseTaskInput(c.Body())
	if err != nil {
		h.logger.Warnw("task_create_body_parse_failed", "task_type", taskType, "error", err)
		return badRequest(c, err.Error())
	}

	rc := httpmw.RequestContext(c)
	h.logger.Infow("task_create_request", "task_type", taskType, "user_id", rc.UserID, "ip", rc.IPAddress)
	res, err := h.engine.CreateTask(c.UserContext(), ports.CreateTaskInput{
		TaskType: taskType,
		Input:    input,
		Request:  rc,
	})
	if err != nil {
		return respondError(c, h.logger, "task_create", err)
	}

	notes := res.Notes
	if len(notes) == 0 {
		notes = []string{"task created"}
	}
	h.logger.Infow("task_create_success", "task_id", res.Task.ID, "task_type", taskType)
	return c.Status(fiber.StatusAccepted).JSON(dto.CreateTaskResponse{Notes: notes})
}
