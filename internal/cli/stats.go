package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wemix/nhm/internal/config"
	"github.com/wemix/nhm/pkg/logger"
)

// NewStatsCommand queries /api/v1/apps/<name>/stats for a given app.
func NewStatsCommand(cfg *config.Config, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <app-name>",
		Short: "Show failure statistics for a managed application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(statusURL(cfg, fmt.Sprintf("/api/v1/apps/%s/stats", args[0])))
		},
	}
	return cmd
}
