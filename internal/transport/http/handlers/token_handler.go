package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
	httpmw "github.com/stackgate/backend/internal/transport/http/middleware"
)

type TokenHandler struct {
	engine ports.TaskEngine
	logger *logger.Logger
}

func NewTokenHandler(engine ports.TaskEngine, logger *logger.Logger) *TokenHandler {
	return &TokenHandler{engine: engine, logger: logger}
}

func (h *TokenHandler) ListTokens(c *fiber.Ctx) error {
	q, err := listQuery(c)
	if err != nil {
		return respondError(c, h.logger, "tokens_list", err)
	}
	tokens, err := h.engine.ListTokens(c.UserContext(), q)
	if err != nil {
		return respondError(c, h.logger, "tokens_list", err)
	}
	return c.JSON(dto.TokenListResponse{Tokens: tokens})
}

func (h *TokenHandler) ReissueToken(c *fiber.Ctx) error {
	var req dto.ReissueTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Task == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.FieldErrors(map[string][]string{
			"task": {"This field is required."},
		}))
	}
	h.logger.Infow("token_reissue_request", "task_id", req.Task)
	if _, err := h.engine.ReissueToken(c.UserContext(), req.Task, httpmw.RequestContext(c)); err != nil {
		return respondError(c, h.logger, "token_reissue", err)
	}
	return c.JSON(dto.NotesResponse{Notes: []string{"Token reissued."}})
}

func (h *TokenHandler) DeleteExpired(c *fiber.Ctx) error {
	n, err := h.engine.DeleteExpiredTokens(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, "tokens_delete_expired", err)
	}
	return c.JSON(dto.DeleteExpiredResponse{Notes: []string{"Deleted all expired tokens."}, Deleted: n})
}

func (h *TokenHandler) GetToken(c *fiber.Ctx) error {
	detail, err := h.engine.GetToken(c.UserContext(), c.Params("token"))
	if err != nil {
		return respondError(c, h.logger, "token_get", err)
	}
	return c.JSON(detail)
}

func (h *TokenHandler) RedeemToken(c *fiber.Ctx) error {
	data := domain.JSONB{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&data); err != nil {
			return badRequest(c, dto.ErrInvalidBody.Error())
		}
	}
	res, err := h.engine.RedeemToken(c.UserContext(), c.Params("token"), data)
	if err != nil {
		return respondError(c, h.logger, "token_redeem", err)
	}
	h.logger.Infow("token_redeem_success", "task_id", res.Task.ID)
	return c.JSON(dto.NotesResponse{Notes: res.Notes})
}
