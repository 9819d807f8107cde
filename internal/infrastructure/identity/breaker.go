package identity

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
)

type breakerBackend struct {
	next ports.IdentityBackend
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker that opens after
// FailureThreshold consecutive errors.
func WithBreaker(next ports.IdentityBackend, cfg config.BreakerConfig, log *logger.Logger) ports.IdentityBackend {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("identity_breaker_state_changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerBackend{next: next, cb: cb}
}

func call[T any](b *breakerBackend, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (b *breakerBackend) run(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (b *breakerBackend) FindUser(ctx context.Context, name string) (*domain.Principal, error) {
	return call(b, func() (*domain.Principal, error) { return b.next.FindUser(ctx, name) })
}

func (b *breakerBackend) GetUser(ctx context.Context, id string) (*domain.Principal, error) {
	return call(b, func() (*domain.Principal, error) { return b.next.GetUser(ctx, id) })
}

func (b *breakerBackend) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.Principal, error) {
	return call(b, func() (*domain.Principal, error) { return b.next.CreateUser(ctx, in) })
}

func (b *breakerBackend) EnableUser(ctx context.Context, id string) error {
	return b.run(func() error { return b.next.EnableUser(ctx, id) })
}

func (b *breakerBackend) DisableUser(ctx context.Context, id string) error {
	return b.run(func() error { return b.next.DisableUser(ctx, id) })
}

func (b *breakerBackend) UpdatePassword(ctx context.Context, id, password string) error {
	return b.run(func() error { return b.next.UpdatePassword(ctx, id, password) })
}

func (b *breakerBackend) FindProject(ctx context.Context, name string) (*domain.Project, error) {
	return call(b, func() (*domain.Project, error) { return b.next.FindProject(ctx, name) })
}

func (b *breakerBackend) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return call(b, func() (*domain.Project, error) { return b.next.GetProject(ctx, id) })
}

func (b *breakerBackend) CreateProject(ctx context.Context, in ports.CreateProjectInput) (*domain.Project, error) {
	return call(b, func() (*domain.Project, error) { return b.next.CreateProject(ctx, in) })
}

func (b *breakerBackend) GetRoles(ctx context.Context, userID, projectID string) ([]string, error) {
	return call(b, func() ([]string, error) { return b.next.GetRoles(ctx, userID, projectID) })
}

func (b *breakerBackend) GrantRole(ctx context.Context, userID, projectID, role string) error {
	return b.run(func() error { return b.next.GrantRole(ctx, userID, projectID, role) })
}

func (b *breakerBackend) RevokeRole(ctx context.Context, userID, projectID, role string) error {
	return b.run(func() error { return b.next.RevokeRole(ctx, userID, projectID, role) })
}
