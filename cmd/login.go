package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpin/taskpin/internal/config"
	"github.com/taskpin/taskpin/internal/logging"
	"github.com/taskpin/taskpin/internal/server"
)

func newLoginCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize taskpin with the task provider",
		Long: `Start an OAuth authorization flow. A temporary callback listener is
started on the configured listen address, the provider's authorization
page is opened in the browser, and the command waits for the redirect to
complete the flow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runLogin(cfg, noBrowser)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")

	return cmd
}

func runLogin(cfg *config.Config, noBrowser bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	sc, err := server.NewServerContext(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := sc.Shutdown(); err != nil {
			logger.Error("shutdown failed", logging.Err(err))
		}
	}()

	already, err := sc.Auth().IsAuthenticated(ctx)
	if err == nil && already {
		fmt.Println("Already authenticated. Run 'taskpin logout' first to re-authorize.")
		return nil
	}

	srv, err := server.NewServer(server.ServerConfig{
		Addr:    cfg.ListenAddr,
		Context: sc,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
		close(serverDone)
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	attempt, err := sc.Auth().StartAuthFlow(ctx)
	if err != nil {
		return err
	}

	if noBrowser {
		fmt.Printf("Open this URL in your browser to authorize taskpin:\n\n  %s\n\n", attempt.AuthURL)
	} else {
		fmt.Println("Opening the authorization page in your browser...")
		if err := openBrowser(attempt.AuthURL); err != nil {
			fmt.Printf("Could not open a browser. Open this URL manually:\n\n  %s\n\n", attempt.AuthURL)
		}
	}
	fmt.Println("Waiting for authorization to complete (Ctrl-C to abort)...")

	select {
	case err := <-attempt.Done():
		if err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}
		fmt.Println("Authorization complete. taskpin is ready to use.")
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("callback listener stopped: %w", err)
		}
		return fmt.Errorf("callback listener stopped before authorization completed")
	case <-ctx.Done():
		return fmt.Errorf("authorization aborted")
	}
}

// openBrowser opens url with the platform's default browser.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
