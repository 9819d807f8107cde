package domain

// Notification event names, also used as delivery template keys.
const (
	EventTaskCreated   = "task_created"
	EventTaskApproved  = "task_approved"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
	EventTokenIssued   = "token_issued"
	EventEmailFailed   = "email_failed"
)
