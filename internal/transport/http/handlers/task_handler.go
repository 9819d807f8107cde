package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
	httpmw "github.com/stackgate/backend/internal/transport/http/middleware"
)

type TaskHandler struct {
	engine ports.TaskEngine
	logger *logger.Logger
}

func NewTaskHandler(engine ports.TaskEngine, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{engine: engine, logger: logger}
}

func (h *TaskHandler) ListTasks(c *fiber.Ctx) error {
	q, err := listQuery(c)
	if err != nil {
		return respondError(c, h.logger, "tasks_list", err)
	}
	tasks, err := h.engine.ListTasks(c.UserContext(), q, httpmw.RequestContext(c))
	if err != nil {
		return respondError(c, h.logger, "tasks_list", err)
	}
	h.logger.Infow("tasks_list_success", "count", len(tasks))
	return c.JSON(dto.TasksToResponse(tasks))
}

func (h *TaskHandler) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	task, err := h.engine.GetTask(c.UserContext(), id, httpmw.RequestContext(c))
	if err != nil {
		return respondError(c, h.logger, "task_get", err)
	}
	return c.JSON(dto.TaskToResponse(task))
}

func (h *TaskHandler) UpdateTask(c *fiber.Ctx) error {
	id := c.Params("id")
	input, err := dto.ParseTaskInput(c.Body())
	if err != nil {
		h.logger.Warnw("task_update_body_parse_failed", "id", id, "error", err)
		return badRequest(c, err.Error())
	}

	h.logger.Infow("task_update_request", "id", id)
	res, err := h.engine.UpdateTask(c.UserContext(), id, input, httpmw.RequestContext(c))
	if err != nil {
		return respondError(c, h.logger, "task_update", err)
	}
	notes := append([]string{"Task successfully updated."}, res.Notes...)
	return c.JSON(dto.UpdateTaskResponse{Notes: notes, Task: res.Task.ID})
}

func (h *TaskHandler) ApproveTask(c *fiber.Ctx) error {
	id := c.Params("id")
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil || req.Approved == nil || !*req.Approved {
		return c.Status(fiber.StatusBadRequest).JSON(dto.FieldErrors(map[string][]string{
			"approved": {"this is a required boolean field."},
		}))
	}

	h.logger.Infow("task_approve_request", "id", id)
	res, err := h.engine.ApproveTask(c.UserContext(), id, httpmw.RequestContext(c))
	if err != nil {
		return respondError(c, h.logger, "task_approve", err)
	}
	h.logger.Infow("task_approve_success", "id", id, "completed", res.Task.Completed)
	return c.JSON(dto.NotesResponse{Notes: res.Notes})
}

func (h *TaskHandler) CancelTask(c *fiber.Ctx) error {
	id := c.Params("id")
	h.logger.Infow("task_cancel_request", "id", id)
	if err := h.engine.CancelTask(c.UserContext(), id, httpmw.RequestContext(c)); err != nil {
		return respondError(c, h.logger, "task_cancel", err)
	}
	return c.JSON(dto.NotesResponse{Notes: []string{"Task cancelled successfully."}})
}
