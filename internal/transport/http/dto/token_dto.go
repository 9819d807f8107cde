package dto

import (
	"github.com/stackgate/backend/internal/domain"
)

type ReissueTokenRequest struct {
	Task string `json:"task"`
}

type TokenListResponse struct {
	Tokens []domain.Token `json:"tokens"`
}

type DeleteExpiredResponse struct {
	Notes   []string `json:"notes"`
	Deleted int64    `json:"deleted"`
}
