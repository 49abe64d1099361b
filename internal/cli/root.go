// Package cli wires cobra commands around internal/config and the
// lifecycle entrypoint cmd/nhm/main.go provides through RunFunc,
// keeping command wiring separate from process wiring.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/wemix/nhm/internal/config"
	"github.com/wemix/nhm/pkg/logger"
)

// RunFunc starts the node health monitor and blocks until it exits.
// cmd/nhm/main.go supplies the concrete implementation so this package
// never has to import lifecycle/facade/nsm/observer directly.
type RunFunc func(cfg *config.Config, log *logger.Logger) error

// NewRootCommand builds the "nhm" root command.
func NewRootCommand(cfg *config.Config, log *logger.Logger, run RunFunc) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "nhm",
		Short: "Node Health Monitor",
		Long: `nhm supervises a node's managed applications: it tracks per-app
failure counts across life cycles, requests restarts through the Node
State Manager when a configured threshold is reached, and runs a
user-land health probe independent of any single application's status.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the nhm configuration file")
	cmd.PersistentFlags().StringVar(&cfg.Home, "home", cfg.Home, "Home directory for nhm state")

	cmd.AddCommand(NewRunCommand(cfg, log, run, &configPath))
	cmd.AddCommand(NewStatusCommand(cfg, log))
	cmd.AddCommand(NewStatsCommand(cfg, log))
	cmd.AddCommand(NewRestartCommand(cfg, log))
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
