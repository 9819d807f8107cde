package services

import (
	"context"
	"errors"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
)

func (e *engine) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := e.store.Notifications().GetByID(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	return n, err
}

func (e *engine) ListNotifications(ctx context.Context, q ports.ListQuery) ([]domain.Notification, error) {
	f, err := BuildFilter(q, domain.NotificationFilterSchema)
	if err != nil {
		return nil, err
	}
	return e.store.Notifications().List(ctx, f)
}

func (e *engine) AcknowledgeNotification(ctx context.Context, id string) error {
	unlock := e.locks.lockKeys("notification:" + id)
	defer unlock()

	n, err := e.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.Acknowledged {
		return ErrNotificationAcknowledged
	}
	n.Acknowledged = true
	if err := e.store.Notifications().Update(ctx, n); err != nil {
		e.logger.Errorw("engine_notification_ack_failed", "id", id, "error", err)
		return err
	}
	e.logger.Infow("engine_notification_ack_ok", "id", id)
	return nil
}

// AcknowledgeNotifications acknowledges all of ids or none of them.
func (e *engine) AcknowledgeNotifications(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrNotificationList
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, "notification:"+id)
	}
	unlock := e.locks.lockKeys(keys...)
	defer unlock()

	pending := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := e.GetNotification(ctx, id)
		if err != nil {
			return err
		}
		if !n.Acknowledged {
			pending = append(pending, n)
		}
	}
	err := e.store.Transaction(ctx, func(tx ports.Store) error {
		for _, n := range pending {
			n.Acknowledged = true
			if err := tx.Notifications().Update(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.logger.Errorw("engine_notification_bulk_ack_failed", "count", len(ids), "error", err)
		return err
	}
	e.logger.Infow("engine_notification_bulk_ack_ok", "count", len(pending))
	return nil
}

func (e *engine) Status(ctx context.Context) (*ports.Status, error) {
	lastCreated, err := e.store.Tasks().LastCreated(ctx)
	if err != nil {
		return nil, err
	}
	lastCompleted, err := e.store.Tasks().LastCompleted(ctx)
	if err != nil {
		return nil, err
	}
	errs, err := e.store.Notifications().List(ctx, domain.Filter{Conditions: []domain.Condition{
		{Field: "error", Column: "error", Kind: domain.KindBool, Op: domain.OpExact, Value: true},
		{Field: "acknowledged", Column: "acknowledged", Kind: domain.KindBool, Op: domain.OpExact, Value: false},
	}})
	if err != nil {
		return nil, err
	}
	return &ports.Status{
		LastCreatedTask:    lastCreated,
		LastCompletedTask:  lastCompleted,
		ErrorNotifications: errs,
	}, nil
}
