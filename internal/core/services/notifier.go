package services

import (
	"context"
	"fmt"
	"time"

	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
)

// notifier builds notification records and mails them to operators.
type notifier struct {
	store    ports.Store
	delivery ports.NotificationDelivery
	targets  config.NotificationsConfig
	logger   *logger.Logger
	now      func() time.Time
	newID    func() string
}

func (n *notifier) build(task *domain.Task, isError bool, event string, notes ...string) *domain.Notification {
	return &domain.Notification{
		ID:     n.newID(),
		TaskID: task.ID,
		Notes: domain.JSONB{
			"event":     event,
			"task_type": task.TaskType,
			"notes":     notes,
		},
		Error:     isError,
		CreatedOn: n.now(),
	}
}

// dispatch mails a stored notification. Delivery failures are logged only.
func (n *notifier) dispatch(ctx context.Context, notif *domain.Notification) {
	target := n.targets.Standard
	if notif.Error {
		target = n.targets.Error
	}
	if n.delivery == nil || len(target.Emails) == 0 {
		return
	}
	event, _ := notif.Notes["event"].(string)
	subject := target.Subject
	if subject == "" {
		subject = fmt.Sprintf("Notification for task %s", notif.TaskID)
	}
	tmpl := target.Template
	if tmpl == "" {
		tmpl = "notification"
	}
	err := n.delivery.Send(ctx, ports.Message{
		Event:      event,
		Recipients: target.Emails,
		Subject:    subject,
		Reply:      target.Reply,
		Template:   tmpl,
		Data: map[string]interface{}{
			"notification_id": notif.ID,
			"task_id":         notif.TaskID,
			"error":           notif.Error,
			"notes":           notif.Notes,
		},
	})
	if err != nil {
		n.logger.Errorw("notification_dispatch_failed", "id", notif.ID, "task_id", notif.TaskID, "error", err)
		return
	}
	n.logger.Infow("notification_dispatch_ok", "id", notif.ID, "task_id", notif.TaskID)
}

// record stores a standalone notification and dispatches it.
func (n *notifier) record(ctx context.Context, task *domain.Task, isError bool, event string, notes ...string) {
	notif := n.build(task, isError, event, notes...)
	if err := n.store.Notifications().Create(ctx, notif); err != nil {
		n.logger.Errorw("notification_record_failed", "task_id", task.ID, "event", event, "error", err)
		return
	}
	n.dispatch(ctx, notif)
}
