// Package bootstrap wires the storage, identity, mail and engine layers from
// configuration. Both binaries share it.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/core/services"
	"github.com/stackgate/backend/internal/infrastructure/db"
	"github.com/stackgate/backend/internal/infrastructure/identity"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/infrastructure/mail"
	"github.com/stackgate/backend/internal/infrastructure/memory"
	"github.com/stackgate/backend/internal/infrastructure/metrics"
	"gorm.io/gorm"
)

const memoryDriver = "memory"

type Runtime struct {
	Engine   ports.TaskEngine
	Registry *prometheus.Registry
	// Database is nil when the in-memory store is configured.
	Database *gorm.DB
}

// Close releases the database connection, if any.
func (r *Runtime) Close() error {
	if r.Database == nil {
		return nil
	}
	return db.Close(r.Database)
}

func Build(cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	rt := &Runtime{Registry: prometheus.NewRegistry()}

	var store ports.Store
	if cfg.Database.Driver == memoryDriver {
		store = memory.New()
		log.Warn("using in-memory store; state is lost on restart")
	} else {
		database, err := db.NewConnection(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("database connection established")
		if err := db.RunMigrations(database); err != nil {
			_ = db.Close(database)
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database migrations completed")
		rt.Database = database
		store = db.NewStore(database, log)
	}

	idp, err := identityBackend(cfg, rt.Database, log)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	delivery, err := mail.New(cfg.Email, log)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("failed to set up email delivery: %w", err)
	}

	engine, err := services.NewEngine(services.EngineConfig{
		Store:    store,
		Identity: idp,
		Delivery: delivery,
		Config:   cfg,
		Metrics:  metrics.New(rt.Registry),
		Logger:   log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Engine = engine
	return rt, nil
}

func identityBackend(cfg *config.Config, database *gorm.DB, log *logger.Logger) (ports.IdentityBackend, error) {
	var backend ports.IdentityBackend
	switch cfg.Identity.Driver {
	case memoryDriver:
		backend = identity.NewMemory(cfg.Identity.PasswordCost)
	case "", "database":
		if database == nil {
			return nil, fmt.Errorf("identity driver %q needs a database store", cfg.Identity.Driver)
		}
		backend = identity.NewDatabase(database, log, cfg.Identity.PasswordCost)
	default:
		return nil, fmt.Errorf("unknown identity driver %q", cfg.Identity.Driver)
	}
	if cfg.Identity.Breaker.Enabled {
		backend = identity.WithBreaker(backend, cfg.Identity.Breaker, log)
	}
	return backend, nil
}
