package dto

import "github.com/stackgate/backend/internal/domain"

type AcknowledgeRequest struct {
	Acknowledged *bool `json:"acknowledged"`
}

type AcknowledgeManyRequest struct {
	Notifications []string `json:"notifications"`
}

type NotificationListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}
