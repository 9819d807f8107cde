package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/actions"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/infrastructure/metrics"
)

type engine struct {
	store    ports.Store
	registry *actions.Registry
	identity ports.IdentityBackend
	delivery ports.NotificationDelivery
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   *logger.Logger
	notifier *notifier
	locks    *keyLocker
	now      func() time.Time
	newID    func() string
}

type EngineConfig struct {
	Store    ports.Store
	Registry *actions.Registry
	Identity ports.IdentityBackend
	Delivery ports.NotificationDelivery
	Config   *config.Config
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func NewEngine(cfg EngineConfig) (ports.TaskEngine, error) {
	if cfg.Store == nil || cfg.Identity == nil || cfg.Config == nil {
		return nil, errors.New("engine: store, identity backend and config are required")
	}
	if cfg.Registry == nil {
		cfg.Registry = actions.Builtin()
	}
	if err := cfg.Registry.CheckTasks(cfg.Config.Tasks); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := func() string { return uuid.New().String() }

	return &engine{
		store:    cfg.Store,
		registry: cfg.Registry,
		identity: cfg.Identity,
		delivery: cfg.Delivery,
		cfg:      cfg.Config,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		notifier: &notifier{
			store:    cfg.Store,
			delivery: cfg.Delivery,
			targets:  cfg.Config.Notifications,
			logger:   cfg.Logger,
			now:      now,
			newID:    newID,
		},
		locks: newKeyLocker(cfg.Config.Features.EnableLocks),
		now:   now,
		newID: newID,
	}, nil
}

// ==================== Task lifecycle ====================

func (e *engine) CreateTask(ctx context.Context, in ports.CreateTaskInput) (*ports.TaskResult, error) {
	tc, ok := e.cfg.Tasks[in.TaskType]
	if !ok {
		return nil, ErrTaskTypeNotFound
	}
	specs, err := e.specsFor(tc)
	if err != nil {
		return nil, err
	}
	inputs, err := selectInputs(specs, in.Input)
	if err != nil {
		return nil, err
	}

	now := e.now()
	task := &domain.Task{
		ID:        e.newID(),
		TaskType:  in.TaskType,
		ProjectID: in.Request.ProjectID,
		IPAddress: in.Request.IPAddress,
		Request:   in.Request,
		CreatedOn: now,
	}
	for i, s := range specs {
		task.Actions = append(task.Actions, domain.Action{
			TaskID:     task.ID,
			Order:      i,
			ActionType: s.Name,
			Input:      inputs[i],
			State:      domain.ActionStateNew,
			Cache:      domain.JSONB{},
		})
	}

	notes, err := e.validateActions(ctx, task)
	if err != nil {
		e.logger.Errorw("engine_create_validate_failed", "task_type", in.TaskType, "error", err)
		return nil, executionFailure("validation could not be completed", err)
	}

	created := e.notifier.build(task, false, domain.EventTaskCreated, fmt.Sprintf("New task for %s.", task.TaskType))
	err = e.store.Transaction(ctx, func(tx ports.Store) error {
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return err
		}
		return tx.Notifications().Create(ctx, created)
	})
	if err != nil {
		e.logger.Errorw("engine_create_failed", "task_type", in.TaskType, "error", err)
		return nil, err
	}
	e.metrics.TaskCreated(task.TaskType)
	e.logger.Infow("engine_create_ok", "task_id", task.ID, "task_type", task.TaskType, "valid", task.Valid())
	e.notifier.dispatch(ctx, created)
	e.sendTaskEmailOrRecord(ctx, task, tc.Emails.Initial, "initial", nil)

	result := &ports.TaskResult{Task: task, Notes: notes}
	if tc.AutoApprove && task.Valid() {
		unlock := e.locks.lockKeys(taskKey(task.ID))
		defer unlock()
		result, err = e.approve(ctx, task, tc, in.Request)
		if err != nil {
			return nil, err
		}
	}
	if len(tc.ResponseNotes) > 0 {
		result.Notes = append([]string(nil), tc.ResponseNotes...)
	}
	return result, nil
}

func (e *engine) GetTask(ctx context.Context, id string, rc domain.RequestContext) (*domain.Task, error) {
	return e.scopedTask(ctx, id, rc)
}

func (e *engine) ListTasks(ctx context.Context, q ports.ListQuery, rc domain.RequestContext) ([]domain.Task, error) {
	f, err := BuildFilter(q, domain.TaskFilterSchema)
	if err != nil {
		return nil, err
	}
	if !e.isAdmin(rc) {
		f = f.With(domain.Condition{
			Field:  "project_id",
			Column: "project_id",
			Kind:   domain.KindString,
			Op:     domain.OpExact,
			Value:  rc.ProjectID,
		})
	}
	return e.store.Tasks().List(ctx, f)
}

func (e *engine) ApproveTask(ctx context.Context, id string, rc domain.RequestContext) (*ports.TaskResult, error) {
	unlock := e.locks.lockKeys(taskKey(id))
	defer unlock()

	task, err := e.scopedTask(ctx, id, rc)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(task); err != nil {
		return nil, err
	}
	if !task.Valid() {
		return nil, ErrTaskInvalid
	}
	tc, ok := e.cfg.Tasks[task.TaskType]
	if !ok {
		return nil, ErrTaskTypeNotFound
	}
	return e.approve(ctx, task, tc, rc)
}

func (e *engine) UpdateTask(ctx context.Context, id string, in ports.TaskInput, rc domain.RequestContext) (*ports.TaskResult, error) {
	unlock := e.locks.lockKeys(taskKey(id))
	defer unlock()

	task, err := e.scopedTask(ctx, id, rc)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(task); err != nil {
		return nil, err
	}
	if task.Approved {
		return nil, ErrTaskApproved
	}
	tc, ok := e.cfg.Tasks[task.TaskType]
	if !ok {
		return nil, ErrTaskTypeNotFound
	}

	specs := make([]actions.Spec, len(task.Actions))
	for i := range task.Actions {
		s, err := e.registry.Get(task.Actions[i].ActionType)
		if err != nil {
			return nil, err
		}
		specs[i] = s
	}
	inputs, err := selectInputs(specs, in)
	if err != nil {
		return nil, err
	}
	for i := range task.Actions {
		task.Actions[i].Input = inputs[i]
	}

	notes, err := e.validateActions(ctx, task)
	if err != nil {
		e.logger.Errorw("engine_update_validate_failed", "task_id", id, "error", err)
		return nil, executionFailure("validation could not be completed", err)
	}
	if err := e.store.Tasks().Update(ctx, task); err != nil {
		e.logger.Errorw("engine_update_failed", "task_id", id, "error", err)
		return nil, err
	}
	e.logger.Infow("engine_update_ok", "task_id", id, "valid", task.Valid())

	if tc.AutoApprove && task.Valid() {
		return e.approve(ctx, task, tc, rc)
	}
	return &ports.TaskResult{Task: task, Notes: notes}, nil
}

func (e *engine) CancelTask(ctx context.Context, id string, rc domain.RequestContext) error {
	unlock := e.locks.lockKeys(taskKey(id))
	defer unlock()

	task, err := e.scopedTask(ctx, id, rc)
	if err != nil {
		return err
	}
	if err := checkOpen(task); err != nil {
		return err
	}
	task.Cancelled = true

	err = e.store.Transaction(ctx, func(tx ports.Store) error {
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return err
		}
		_, err := tx.Tokens().DeleteByTask(ctx, task.ID)
		return err
	})
	if err != nil {
		e.logger.Errorw("engine_cancel_failed", "task_id", id, "error", err)
		return err
	}
	e.metrics.TaskCancelled(task.TaskType)
	e.logger.Infow("engine_cancel_ok", "task_id", id)
	return nil
}

// approve runs every action's execute step and then either issues a token
// or completes the task. The caller holds the task lock.
func (e *engine) approve(ctx context.Context, task *domain.Task, tc config.TaskConfig, approver domain.RequestContext) (*ports.TaskResult, error) {
	now := e.now()
	task.Approved = true
	task.ApprovedOn = &now
	task.ApprovedBy = approver
	e.metrics.TaskApproved(task.TaskType)

	failed, execErr := e.executeActions(ctx, task)

	var (
		notif *domain.Notification
		token *domain.Token
		err   error
	)
	switch {
	case execErr != nil:
		notif = e.notifier.build(task, true, domain.EventTaskFailed,
			fmt.Sprintf("Error while executing action %s: %v", failed.ActionType, execErr))
	case task.NeedsToken():
		token, err = e.newToken(task, now)
		if err != nil {
			return nil, err
		}
	default:
		e.markCompleted(task, now)
		notif = e.notifier.build(task, false, domain.EventTaskCompleted, fmt.Sprintf("Task %s completed.", task.TaskType))
	}

	err = e.store.Transaction(ctx, func(tx ports.Store) error {
		if _, err := tx.Tokens().DeleteByTask(ctx, task.ID); err != nil {
			return err
		}
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return err
		}
		if token != nil {
			if err := tx.Tokens().Create(ctx, token); err != nil {
				return err
			}
		}
		if notif != nil {
			return tx.Notifications().Create(ctx, notif)
		}
		return nil
	})
	if err != nil {
		e.logger.Errorw("engine_approve_persist_failed", "task_id", task.ID, "error", err)
		return nil, err
	}
	if notif != nil {
		e.notifier.dispatch(ctx, notif)
	}

	if execErr != nil {
		e.metrics.ExecutionFailed(task.TaskType, failed.ActionType)
		e.logger.Errorw("engine_approve_failed", "task_id", task.ID, "action", failed.ActionType, "error", execErr)
		return nil, executionFailure(fmt.Sprintf("action %s failed", failed.ActionType), execErr)
	}

	result := &ports.TaskResult{Task: task}
	if token != nil {
		e.metrics.TokenIssued(task.TaskType)
		e.logger.Infow("engine_approve_ok", "task_id", task.ID, "token_expires", token.Expires)
		result.Token = token
		result.Notes = []string{"created token"}
		if err := e.sendTaskEmail(ctx, task, tc.Emails.Token, domain.EventTokenIssued, map[string]interface{}{"token": token.Token}); err != nil {
			e.notifier.record(ctx, task, true, domain.EventEmailFailed, "Token email could not be delivered: "+err.Error())
			return nil, executionFailure("token email could not be delivered", err)
		}
		return result, nil
	}

	e.metrics.TaskCompleted(task.TaskType)
	e.logger.Infow("engine_approve_ok", "task_id", task.ID, "completed", true)
	result.Notes = []string{"Task completed successfully."}
	e.sendTaskEmailOrRecord(ctx, task, tc.Emails.Completed, domain.EventTaskCompleted, nil)
	return result, nil
}

func (e *engine) validateActions(ctx context.Context, task *domain.Task) ([]string, error) {
	var notes []string
	for i := range task.Actions {
		a := &task.Actions[i]
		spec, err := e.registry.Get(a.ActionType)
		if err != nil {
			return nil, err
		}
		v, err := spec.Validate(ctx, e.env(task, a), a.Input)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", a.ActionType, err)
		}
		a.Valid = v.Valid
		a.NeedToken = v.NeedToken
		a.Derived = v.Derived
		if v.Complete {
			a.State = domain.ActionStateComplete
		} else {
			a.State = domain.ActionStateValidated
		}
		notes = append(notes, v.Notes...)
	}
	return notes, nil
}

// executeActions runs execute in order and stops at the first error, which
// it returns together with the failing action. Caches are kept either way.
func (e *engine) executeActions(ctx context.Context, task *domain.Task) (*domain.Action, error) {
	for i := range task.Actions {
		a := &task.Actions[i]
		spec, err := e.registry.Get(a.ActionType)
		if err != nil {
			return a, err
		}
		cache, err := spec.Execute(ctx, e.env(task, a), a.Input, a.Cache)
		a.Cache = cache
		if err != nil {
			return a, err
		}
		if a.State != domain.ActionStateComplete {
			if a.NeedToken {
				a.State = domain.ActionStateExecuted
			} else {
				a.State = domain.ActionStateComplete
			}
		}
	}
	return nil, nil
}

func (e *engine) env(task *domain.Task, a *domain.Action) *actions.Env {
	return &actions.Env{
		Request:       task.Request,
		Identity:      e.identity,
		Settings:      e.cfg.Actions[a.ActionType],
		DefaultDomain: e.cfg.Identity.DefaultDomain,
		AdminRoles:    e.cfg.Auth.AdminRoles,
		Derived:       a.Derived,
		Logger:        e.logger,
	}
}

func (e *engine) markCompleted(task *domain.Task, now time.Time) {
	task.Completed = true
	task.CompletedOn = &now
}

func (e *engine) specsFor(tc config.TaskConfig) ([]actions.Spec, error) {
	specs := make([]actions.Spec, 0, len(tc.Actions))
	for _, name := range tc.Actions {
		s, err := e.registry.Get(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func selectInputs(specs []actions.Spec, in ports.TaskInput) ([]domain.JSONB, error) {
	inputs := make([]domain.JSONB, len(specs))
	missing := map[string][]string{}
	for i, s := range specs {
		inputs[i] = s.SelectInput(in.Data, in.ActionData[s.Name])
		for _, f := range s.MissingFields(inputs[i]) {
			missing[f] = []string{"This field is required."}
		}
	}
	if len(missing) > 0 {
		return nil, fieldErrors(missing)
	}
	return inputs, nil
}

func (e *engine) loadTask(ctx context.Context, id string) (*domain.Task, error) {
	task, err := e.store.Tasks().GetByID(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// scopedTask hides tasks of other projects from non-admin callers.
func (e *engine) scopedTask(ctx context.Context, id string, rc domain.RequestContext) (*domain.Task, error) {
	task, err := e.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.isAdmin(rc) && task.ProjectID != rc.ProjectID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (e *engine) isAdmin(rc domain.RequestContext) bool {
	return rc.HasRole(e.cfg.Auth.AdminRoles...)
}

func checkOpen(task *domain.Task) error {
	if task.Completed {
		return ErrTaskCompleted
	}
	if task.Cancelled {
		return ErrTaskCancelled
	}
	return nil
}

// ==================== Task emails ====================

func (e *engine) sendTaskEmail(ctx context.Context, task *domain.Task, tmpl *config.EmailTemplate, event string, extra map[string]interface{}) error {
	if tmpl == nil || e.delivery == nil {
		return nil
	}
	recipients := taskRecipients(task)
	if len(recipients) == 0 {
		return nil
	}
	data := map[string]interface{}{
		"task_id":   task.ID,
		"task_type": task.TaskType,
		"actions":   actionTypes(task),
	}
	for k, v := range extra {
		data[k] = v
	}
	err := e.delivery.Send(ctx, ports.Message{
		Event:      event,
		Recipients: recipients,
		Subject:    tmpl.Subject,
		Reply:      tmpl.Reply,
		Template:   tmpl.Template,
		Data:       data,
	})
	if err != nil {
		e.logger.Errorw("engine_task_email_failed", "task_id", task.ID, "event", event, "error", err)
		return err
	}
	e.logger.Infow("engine_task_email_ok", "task_id", task.ID, "event", event, "recipients", len(recipients))
	return nil
}

func (e *engine) sendTaskEmailOrRecord(ctx context.Context, task *domain.Task, tmpl *config.EmailTemplate, event string, extra map[string]interface{}) {
	if err := e.sendTaskEmail(ctx, task, tmpl, event, extra); err != nil {
		e.notifier.record(ctx, task, true, domain.EventEmailFailed, fmt.Sprintf("Email for %s could not be delivered: %v", event, err))
	}
}

func taskRecipients(task *domain.Task) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range task.Actions {
		email, _ := a.Input["email"].(string)
		if email != "" && !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	return out
}

func actionTypes(task *domain.Task) []string {
	out := make([]string, 0, len(task.Actions))
	for _, a := range task.Actions {
		out = append(out, a.ActionType)
	}
	return out
}
