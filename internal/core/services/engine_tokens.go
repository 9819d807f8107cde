package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/pkg/utils/keygen"
)

const defaultTokenLength = 32

func (e *engine) newToken(task *domain.Task, now time.Time) (*domain.Token, error) {
	length := e.cfg.Tokens.Length
	if length <= 0 {
		length = defaultTokenLength
	}
	value, err := keygen.GenerateToken(length)
	if err != nil {
		return nil, err
	}
	return &domain.Token{
		Token:     value,
		TaskID:    task.ID,
		TaskType:  task.TaskType,
		Expires:   now.Add(e.cfg.TokenTTL(task.TaskType)),
		CreatedOn: now,
	}, nil
}

// liveToken looks a token up and deletes it if it has expired. Expired and
// unknown tokens produce the same error.
func (e *engine) liveToken(ctx context.Context, value string) (*domain.Token, error) {
	tok, err := e.store.Tokens().Get(ctx, value)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if tok.Expired(e.now()) {
		if err := e.store.Tokens().Delete(ctx, value); err != nil {
			e.logger.Errorw("engine_token_expire_failed", "task_id", tok.TaskID, "error", err)
			return nil, err
		}
		e.metrics.TokensExpired(1)
		e.logger.Infow("engine_token_expired", "task_id", tok.TaskID)
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

func (e *engine) GetToken(ctx context.Context, value string) (*ports.TokenDetail, error) {
	tok, err := e.liveToken(ctx, value)
	if err != nil {
		return nil, err
	}
	task, err := e.loadTask(ctx, tok.TaskID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := checkOpen(task); err != nil {
		return nil, err
	}

	fields, err := e.tokenFields(task)
	if err != nil {
		return nil, err
	}
	return &ports.TokenDetail{
		TaskType:       task.TaskType,
		Actions:        actionTypes(task),
		RequiredFields: fields,
	}, nil
}

func (e *engine) ListTokens(ctx context.Context, q ports.ListQuery) ([]domain.Token, error) {
	f, err := BuildFilter(q, domain.TokenFilterSchema)
	if err != nil {
		return nil, err
	}
	tokens, err := e.store.Tokens().List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := e.now()
	live := tokens[:0]
	for _, t := range tokens {
		if t.Expired(now) {
			if err := e.store.Tokens().Delete(ctx, t.Token); err != nil {
				e.logger.Errorw("engine_token_expire_failed", "task_id", t.TaskID, "error", err)
			}
			e.metrics.TokensExpired(1)
			continue
		}
		live = append(live, t)
	}
	return live, nil
}

func (e *engine) RedeemToken(ctx context.Context, value string, data domain.JSONB) (*ports.TaskResult, error) {
	tok, err := e.liveToken(ctx, value)
	if err != nil {
		return nil, err
	}
	unlock := e.locks.lockKeys(taskKey(tok.TaskID))
	defer unlock()
	// Re-read under the lock; a concurrent redeem may have consumed it.
	if tok, err = e.liveToken(ctx, value); err != nil {
		return nil, err
	}

	task, err := e.loadTask(ctx, tok.TaskID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := checkOpen(task); err != nil {
		return nil, err
	}
	if !task.Approved {
		return nil, ErrTaskNotApproved
	}

	missing := map[string][]string{}
	for i := range task.Actions {
		a := &task.Actions[i]
		if !a.NeedToken {
			continue
		}
		spec, err := e.registry.Get(a.ActionType)
		if err != nil {
			return nil, err
		}
		for _, f := range spec.MissingTokenFields(data) {
			missing[f] = []string{"This field is required."}
		}
	}
	if len(missing) > 0 {
		return nil, fieldErrors(missing)
	}

	now := e.now()
	failed, execErr := e.completeActions(ctx, task, data)
	if execErr != nil {
		notif := e.notifier.build(task, true, domain.EventTaskFailed,
			"Error while completing action "+failed.ActionType+": "+execErr.Error())
		err := e.store.Transaction(ctx, func(tx ports.Store) error {
			if err := tx.Tasks().Update(ctx, task); err != nil {
				return err
			}
			return tx.Notifications().Create(ctx, notif)
		})
		if err != nil {
			e.logger.Errorw("engine_redeem_persist_failed", "task_id", task.ID, "error", err)
			return nil, err
		}
		e.notifier.dispatch(ctx, notif)
		e.metrics.ExecutionFailed(task.TaskType, failed.ActionType)
		e.logger.Errorw("engine_redeem_failed", "task_id", task.ID, "action", failed.ActionType, "error", execErr)
		return nil, executionFailure("action "+failed.ActionType+" failed", execErr)
	}

	e.markCompleted(task, now)
	notif := e.notifier.build(task, false, domain.EventTaskCompleted, "Task "+task.TaskType+" completed.")
	err = e.store.Transaction(ctx, func(tx ports.Store) error {
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return err
		}
		if _, err := tx.Tokens().DeleteByTask(ctx, task.ID); err != nil {
			return err
		}
		return tx.Notifications().Create(ctx, notif)
	})
	if err != nil {
		e.logger.Errorw("engine_redeem_persist_failed", "task_id", task.ID, "error", err)
		return nil, err
	}
	e.notifier.dispatch(ctx, notif)
	e.metrics.TaskCompleted(task.TaskType)
	e.logger.Infow("engine_redeem_ok", "task_id", task.ID)

	if tc, ok := e.cfg.Tasks[task.TaskType]; ok {
		e.sendTaskEmailOrRecord(ctx, task, tc.Emails.Completed, domain.EventTaskCompleted, nil)
	}
	return &ports.TaskResult{Task: task, Notes: []string{"Token submitted successfully."}}, nil
}

func (e *engine) completeActions(ctx context.Context, task *domain.Task, data domain.JSONB) (*domain.Action, error) {
	for i := range task.Actions {
		a := &task.Actions[i]
		if !a.NeedToken {
			continue
		}
		spec, err := e.registry.Get(a.ActionType)
		if err != nil {
			return a, err
		}
		cache, err := spec.Complete(ctx, e.env(task, a), a.Input, a.Cache, data)
		a.Cache = cache
		if err != nil {
			return a, err
		}
		a.State = domain.ActionStateComplete
	}
	return nil, nil
}

func (e *engine) ReissueToken(ctx context.Context, taskID string, rc domain.RequestContext) (*domain.Token, error) {
	unlock := e.locks.lockKeys(taskKey(taskID))
	defer unlock()

	task, err := e.scopedTask(ctx, taskID, rc)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(task); err != nil {
		return nil, err
	}
	if !task.Approved {
		return nil, ErrTaskNotApproved
	}
	if !task.NeedsToken() {
		return nil, ErrTokenNotRequired
	}
	for _, a := range task.Actions {
		if a.NeedToken && a.State != domain.ActionStateExecuted && a.State != domain.ActionStateComplete {
			return nil, ErrTaskNotReady
		}
	}

	token, err := e.newToken(task, e.now())
	if err != nil {
		return nil, err
	}
	err = e.store.Transaction(ctx, func(tx ports.Store) error {
		if _, err := tx.Tokens().DeleteByTask(ctx, task.ID); err != nil {
			return err
		}
		return tx.Tokens().Create(ctx, token)
	})
	if err != nil {
		e.logger.Errorw("engine_reissue_failed", "task_id", task.ID, "error", err)
		return nil, err
	}
	e.metrics.TokenIssued(task.TaskType)
	e.logger.Infow("engine_reissue_ok", "task_id", task.ID, "token_expires", token.Expires)

	if tc, ok := e.cfg.Tasks[task.TaskType]; ok {
		if err := e.sendTaskEmail(ctx, task, tc.Emails.Token, domain.EventTokenIssued, map[string]interface{}{"token": token.Token}); err != nil {
			e.notifier.record(ctx, task, true, domain.EventEmailFailed, "Token email could not be delivered: "+err.Error())
			return nil, executionFailure("token email could not be delivered", err)
		}
	}
	return token, nil
}

func (e *engine) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	n, err := e.store.Tokens().DeleteExpired(ctx, e.now())
	if err != nil {
		e.logger.Errorw("engine_token_sweep_failed", "error", err)
		return 0, err
	}
	e.metrics.TokensExpired(n)
	e.logger.Infow("engine_token_sweep_ok", "deleted", n)
	return n, nil
}

// tokenFields is the sorted union of token fields over actions awaiting a token.
func (e *engine) tokenFields(task *domain.Task) ([]string, error) {
	seen := map[string]bool{}
	fields := []string{}
	for _, a := range task.Actions {
		if !a.NeedToken {
			continue
		}
		spec, err := e.registry.Get(a.ActionType)
		if err != nil {
			return nil, err
		}
		for _, f := range spec.TokenFields {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	sort.Strings(fields)
	return fields, nil
}
