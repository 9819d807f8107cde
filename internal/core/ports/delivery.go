package ports

import "context"

// Message is one templated email for a named event.
type Message struct {
	Event      string
	Recipients []string
	Subject    string
	Reply      string
	Template   string
	Data       map[string]interface{}
}

type NotificationDelivery interface {
	Send(ctx context.Context, msg Message) error
}
