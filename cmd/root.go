package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the taskpin daemon
var rootCmd = &cobra.Command{
	Use:   "taskpin",
	Short: "Local daemon that pins web pages as Asana tasks",
	Long: `taskpin is a local daemon that turns the current browser page into an
Asana task. It owns the OAuth session, caches workspace metadata, and
answers typed messages from the capturing surface over a loopback HTTP
endpoint.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "taskpin version %s\n" .Version}}`)

	// If no subcommand is provided, run the daemon by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newVersionCmd())
}
