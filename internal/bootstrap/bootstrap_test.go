package bootstrap

import (
	"context"
	"testing"

	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/domain"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	cfg.Identity.Driver = "memory"
	cfg.Identity.PasswordCost = 4
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	rt, err := Build(memoryConfig(), logger.NewNop())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Database)
	res, err := rt.Engine.CreateTask(context.Background(), ports.CreateTaskInput{
		TaskType: "reset_password",
		Input:    ports.TaskInput{Data: domain.JSONB{"email": "nobody@example.com"}},
	})
	require.NoError(t, err)
	assert.False(t, res.Task.Valid())

	families, err := rt.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuildRejectsDatabaseIdentityWithoutDatabase(t *testing.T) {
	cfg := memoryConfig()
	cfg.Identity.Driver = "database"
	_, err := Build(cfg, logger.NewNop())
	assert.Error(t, err)

	cfg.Identity.Driver = "ldap"
	_, err = Build(cfg, logger.NewNop())
	assert.Error(t, err)
}
