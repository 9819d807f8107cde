// Package memory is a process-local ports.Store used by tests and by the
// server when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
)

// Store keeps copies of every record; callers never share memory with it.
// Transaction serialises units of work but does not roll back.
type Store struct {
	mu            sync.RWMutex
	txMu          sync.Mutex
	tasks         map[string]domain.Task
	tokens        map[string]domain.Token
	notifications map[string]domain.Notification
}

func New() *Store {
	return &Store{
		tasks:         make(map[string]domain.Task),
		tokens:        make(map[string]domain.Token),
		notifications: make(map[string]domain.Notification),
	}
}

func (s *Store) Tasks() ports.TaskRepository                 { return taskRepo{s} }
func (s *Store) Tokens() ports.TokenRepository               { return tokenRepo{s} }
func (s *Store) Notifications() ports.NotificationRepository { return notificationRepo{s} }

func (s *Store) Transaction(ctx context.Context, fn func(tx ports.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

func copyTask(t domain.Task) domain.Task {
	out := t
	out.Request.Roles = append([]string(nil), t.Request.Roles...)
	out.ApprovedBy.Roles = append([]string(nil), t.ApprovedBy.Roles...)
	if t.ApprovedOn != nil {
		v := *t.ApprovedOn
		out.ApprovedOn = &v
	}
	if t.CompletedOn != nil {
		v := *t.CompletedOn
		out.CompletedOn = &v
	}
	out.Actions = make([]domain.Action, len(t.Actions))
	for i, a := range t.Actions {
		a.Input = a.Input.Clone()
		a.Derived = a.Derived.Clone()
		a.Cache = a.Cache.Clone()
		out.Actions[i] = a
	}
	return out
}

func copyNotification(n domain.Notification) domain.Notification {
	n.Notes = n.Notes.Clone()
	return n
}

func page[T any](items []T, f domain.Filter) []T {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return []T{}
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(items) {
		items = items[:f.Limit]
	}
	return items
}

// ==================== Tasks ====================

type taskRepo struct{ s *Store }

func (r taskRepo) Create(_ context.Context, task *domain.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r taskRepo) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := copyTask(t)
	return &out, nil
}

func (r taskRepo) List(_ context.Context, f domain.Filter) ([]domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Task{}
	for _, t := range r.s.tasks {
		if f.Match(&t) {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedOn, out[j].CreatedOn, out[i].ID, out[j].ID) })
	return page(out, f), nil
}

func (r taskRepo) Update(_ context.Context, task *domain.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[task.ID]; !ok {
		return ports.ErrNotFound
	}
	r.s.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r taskRepo) LastCreated(_ context.Context) (*domain.Task, error) {
	return r.last(func(t domain.Task) (time.Time, bool) { return t.CreatedOn, true })
}

func (r taskRepo) LastCompleted(_ context.Context) (*domain.Task, error) {
	return r.last(func(t domain.Task) (time.Time, bool) {
		if !t.Completed || t.CompletedOn == nil {
			return time.Time{}, false
		}
		return *t.CompletedOn, true
	})
}

func (r taskRepo) last(key func(domain.Task) (time.Time, bool)) (*domain.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var (
		best   *domain.Task
		bestAt time.Time
	)
	for _, t := range r.s.tasks {
		at, ok := key(t)
		if !ok {
			continue
		}
		if best == nil || newer(at, bestAt, t.ID, best.ID) {
			c := copyTask(t)
			best, bestAt = &c, at
		}
	}
	return best, nil
}

// newer orders by time descending with the id as a stable tie-breaker.
func newer(a, b time.Time, idA, idB string) bool {
	if a.Equal(b) {
		return idA > idB
	}
	return a.After(b)
}

// ==================== Tokens ====================

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(_ context.Context, token *domain.Token) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token.Token] = *token
	return nil
}

func (r tokenRepo) Get(_ context.Context, value string) (*domain.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[value]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &t, nil
}

func (r tokenRepo) List(_ context.Context, f domain.Filter) ([]domain.Token, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Token{}
	for _, t := range r.s.tokens {
		if f.Match(&t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedOn, out[j].CreatedOn, out[i].Token, out[j].Token) })
	return page(out, f), nil
}

func (r tokenRepo) Delete(_ context.Context, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, value)
	return nil
}

func (r tokenRepo) DeleteByTask(_ context.Context, taskID string) (int64, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.TaskID == taskID }), nil
}

func (r tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(t domain.Token) bool { return t.Expired(now) }), nil
}

func (r tokenRepo) deleteWhere(match func(domain.Token) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.tokens {
		if match(t) {
			delete(r.s.tokens, k)
			n++
		}
	}
	return n
}

// ==================== Notifications ====================

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications[n.ID] = copyNotification(*n)
	return nil
}

func (r notificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := copyNotification(n)
	return &out, nil
}

func (r notificationRepo) List(_ context.Context, f domain.Filter) ([]domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Notification{}
	for _, n := range r.s.notifications {
		if f.Match(&n) {
			out = append(out, copyNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedOn, out[j].CreatedOn, out[i].ID, out[j].ID) })
	return page(out, f), nil
}

func (r notificationRepo) Update(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[n.ID]; !ok {
		return ports.ErrNotFound
	}
	r.s.notifications[n.ID] = copyNotification(*n)
	return nil
}
