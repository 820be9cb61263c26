package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	apiKey     string
)

var rootCmd = &cobra.Command{
	Use:   "devcellctl",
	Short: "Control client for the devcell daemon",
	Long: `devcellctl talks to a running devcell daemon, which manages a single
sandboxed dev-server runtime: boot it, mount a project into it, run the
project's dev server, and recover from stuck instances.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultAddr := os.Getenv("DEVCELL_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://127.0.0.1:8090"
	}
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultAddr, "daemon address")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("DEVCELL_API_KEY"), "API key (Bearer token)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
