// Package commands implements the servicehost CLI.
package commands

import (
	"github.com/goletan/servicehost/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "servicehost",
	Short: "Host shell for a background game server",
	Long: `servicehost launches a background server process, binds to its control
port and releases the binding exactly once when asked to stop. On first run
it seeds the server configuration from the bundled template.

Use "servicehost [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/servicehost/servicehost.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.MustLoad(cfgFile)
	}
	return config.Load("")
}
