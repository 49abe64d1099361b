package cli

import (
	"github.com/spf13/cobra"

	"github.com/wemix/nhm/internal/config"
	"github.com/wemix/nhm/pkg/logger"
)

// NewRunCommand creates the run command. If configPath is non-empty at
// execution time, the configuration is reloaded from that file before
// run is invoked, overriding the defaults/flags cfg was built with.
func NewRunCommand(cfg *config.Config, log *logger.Logger, run RunFunc, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node health monitor in the foreground",
		Long:  `Start the node health monitor: observer, failure tracker, restart policy, prober, and ambient API/metrics/alerting, blocking until it receives a shutdown request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			effective := cfg
			if configPath != nil && *configPath != "" {
				effective = config.NewManager(*configPath, log).Config()
			}
			if err := effective.Validate(); err != nil {
				return err
			}
			return run(effective, log)
		},
	}

	return cmd
}
