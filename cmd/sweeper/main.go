// Command sweeper deletes expired tokens once and exits. Run it from cron.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stackgate/backend/internal/bootstrap"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/infrastructure/logger"
)

type sweeper struct {
	ConfigPath string
	Timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	s := &sweeper{}
	cmd := &cobra.Command{
		Use:   "sweeper",
		Short: "Delete expired tokens",
		Long: `Deletes every token whose expiry has passed and exits.

Expired tokens are already rejected on redemption; the sweep only keeps the
tokens table small.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&s.ConfigPath, "config", "config/config.yaml", "Path to the config file")
	cmd.Flags().DurationVar(&s.Timeout, "timeout", time.Minute, "Abort the sweep after this long")

	if env := os.Getenv("STACKGATE_CONFIG"); env != "" {
		s.ConfigPath = env
	}
	return cmd
}

func (s *sweeper) Run(ctx context.Context) error {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	rt, err := bootstrap.Build(cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	n, err := rt.Engine.DeleteExpiredTokens(ctx)
	if err != nil {
		log.Errorw("token_sweep_failed", "error", err)
		return err
	}
	log.Infow("token_sweep_ok", "deleted", n)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
