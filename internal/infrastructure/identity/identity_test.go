package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMemoryBackendUsersAndRoles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(bcrypt.MinCost)

	missing, err := m.FindUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user, err := m.CreateUser(ctx, ports.CreateUserInput{Name: "alice@example.com", Email: "alice@example.com", Password: "s3cret"})
	require.NoError(t, err)
	assert.True(t, user.Enabled)
	assert.True(t, CheckPassword(user, "s3cret"))
	assert.False(t, CheckPassword(user, "wrong"))

	_, err = m.CreateUser(ctx, ports.CreateUserInput{Name: "alice@example.com"})
	assert.Error(t, err)

	require.NoError(t, m.UpdatePassword(ctx, user.ID, "n3w"))
	found, err := m.FindUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, CheckPassword(found, "n3w"))

	require.NoError(t, m.DisableUser(ctx, user.ID))
	found, err = m.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, found.Enabled)

	project, err := m.CreateProject(ctx, ports.CreateProjectInput{Name: "acme", DomainID: "default"})
	require.NoError(t, err)

	require.NoError(t, m.GrantRole(ctx, user.ID, project.ID, "member"))
	require.NoError(t, m.GrantRole(ctx, user.ID, project.ID, "admin"))
	require.NoError(t, m.GrantRole(ctx, user.ID, project.ID, "member"))
	roles, err := m.GetRoles(ctx, user.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "member"}, roles)

	require.NoError(t, m.RevokeRole(ctx, user.ID, project.ID, "admin"))
	roles, err = m.GetRoles(ctx, user.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"member"}, roles)

	assert.Error(t, m.GrantRole(ctx, user.ID, "no-such-project", "member"))
}

func TestMemoryBackendReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(bcrypt.MinCost)
	user, err := m.CreateUser(ctx, ports.CreateUserInput{Name: "bob", Password: "pw"})
	require.NoError(t, err)

	user.Enabled = false
	stored, err := m.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
}

func TestCheckPasswordWithoutHash(t *testing.T) {
	assert.False(t, CheckPassword(nil, "x"))
	assert.False(t, CheckPassword(&domain.Principal{}, "x"))
}

var errUnavailable = errors.New("identity service unavailable")

type unavailableBackend struct {
	*MemoryBackend
	calls int
}

func (u *unavailableBackend) FindUser(context.Context, string) (*domain.Principal, error) {
	u.calls++
	return nil, errUnavailable
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &unavailableBackend{MemoryBackend: NewMemory(bcrypt.MinCost)}
	b := WithBreaker(inner, config.BreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Hour,
		FailureThreshold: 2,
	}, logger.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.FindUser(ctx, "anyone")
		assert.ErrorIs(t, err, errUnavailable)
	}

	_, err := b.FindUser(ctx, "anyone")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)

	// every call shares one breaker
	_, err = b.GetProject(ctx, "p")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerPassesResultsThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory(bcrypt.MinCost)
	b := WithBreaker(inner, config.BreakerConfig{}, logger.NewNop())

	created, err := b.CreateUser(ctx, ports.CreateUserInput{Name: "carol", Password: "pw"})
	require.NoError(t, err)

	found, err := b.FindUser(ctx, "carol")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	none, err := b.FindUser(ctx, "dave")
	require.NoError(t, err)
	assert.Nil(t, none)
}
