package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/core/services"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
)

type NotificationHandler struct {
	engine ports.TaskEngine
	logger *logger.Logger
}

func NewNotificationHandler(engine ports.TaskEngine, logger *logger.Logger) *NotificationHandler {
	return &NotificationHandler{engine: engine, logger: logger}
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	q, err := listQuery(c)
	if err != nil {
		return respondError(c, h.logger, "notifications_list", err)
	}
	notes, err := h.engine.ListNotifications(c.UserContext(), q)
	if err != nil {
		return respondError(c, h.logger, "notifications_list", err)
	}
	return c.JSON(dto.NotificationListResponse{Notifications: notes})
}

func (h *NotificationHandler) AcknowledgeMany(c *fiber.Ctx) error {
	var req dto.AcknowledgeManyRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.logger, "notifications_acknowledge", services.ErrNotificationList)
	}
	if err := h.engine.AcknowledgeNotifications(c.UserContext(), req.Notifications); err != nil {
		return respondError(c, h.logger, "notifications_acknowledge", err)
	}
	return c.JSON(dto.NotesResponse{Notes: []string{"Notifications acknowledged."}})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	n, err := h.engine.GetNotification(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, "notification_get", err)
	}
	return c.JSON(n)
}

func (h *NotificationHandler) Acknowledge(c *fiber.Ctx) error {
	var req dto.AcknowledgeRequest
	if err := c.BodyParser(&req); err != nil || req.Acknowledged == nil || !*req.Acknowledged {
		return c.Status(fiber.StatusBadRequest).JSON(dto.FieldErrors(map[string][]string{
			"acknowledged": {"this field is required."},
		}))
	}
	if err := h.engine.AcknowledgeNotification(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, h.logger, "notification_acknowledge", err)
	}
	return c.JSON(dto.NotesResponse{Notes: []string{"Notification acknowledged."}})
}
