package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/core/services"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
)

// respondError renders engine errors by kind and logs them under event.
func respondError(c *fiber.Ctx, log *logger.Logger, event string, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		log.Errorw(event+"_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.Messages("internal server error"))
	}

	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrValidation):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		log.Errorw(event+"_failed", "error", err)
	} else {
		log.Warnw(event+"_rejected", "status", status, "error", err)
	}

	if len(svcErr.Fields) > 0 {
		return c.Status(status).JSON(dto.FieldErrors(svcErr.Fields))
	}
	return c.Status(status).JSON(dto.Messages(svcErr.Messages...))
}

func badRequest(c *fiber.Ctx, msgs ...string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.Messages(msgs...))
}

// listQuery reads ?filters=<json>&page=&per_page=.
func listQuery(c *fiber.Ctx) (ports.ListQuery, error) {
	filters, err := services.ParseFilterJSON(c.Query("filters"))
	if err != nil {
		return ports.ListQuery{}, err
	}
	q := ports.ListQuery{Filters: filters}
	if v := c.Query("page"); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil {
			return ports.ListQuery{}, errBadPagination
		}
	}
	if v := c.Query("per_page"); v != "" {
		if q.PerPage, err = strconv.Atoi(v); err != nil {
			return ports.ListQuery{}, errBadPagination
		}
	}
	return q, nil
}

var errBadPagination = &services.Error{
	Kind:     services.ErrValidation,
	Messages: []string{"page and per_page must be integers"},
}
