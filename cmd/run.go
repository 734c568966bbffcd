package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every service enabled in the config file",
		Long: `Run the services the config file enables: the routing service when
router.enabled is set, and the telemetry page when viewer.definition or
viewer.events is set. With the memory transport both share one process.

The process stops on SIGINT/SIGTERM, or when the page loses its transport.
SIGHUP reloads the log settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return opts.runDaemon(cfg)
		},
	}
}
