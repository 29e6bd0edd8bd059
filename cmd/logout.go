package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskpin/taskpin/internal/cache"
	"github.com/taskpin/taskpin/internal/config"
	"github.com/taskpin/taskpin/internal/logging"
	"github.com/taskpin/taskpin/internal/storage"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard stored credentials and cached data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runLogout(cfg)
		},
	}
}

// runLogout works directly on local storage; it needs no OAuth
// configuration and never contacts the provider.
func runLogout(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	kv, err := storage.NewFileKV(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	if err := storage.NewTokenStore(kv, logger).Remove(ctx); err != nil {
		return fmt.Errorf("discarding credentials: %w", err)
	}
	if err := cache.New(kv, logger).Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Println("Logged out. Stored credentials and cached data were removed.")
	return nil
}
