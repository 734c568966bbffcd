package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

func newRouteCmd(opts *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Run the routing service in the foreground",
		Long: `Listen for telemetry datagrams on UDP and publish each one on
<namespace>.<spacecraft>.TelemetryPackets.<stream id>.

Examples:
  groundview route
  groundview route --listen :1235 -c /etc/groundview/config.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Transport.Type == "memory" {
				return errors.New("route needs an external transport; use run to combine router and page in one process")
			}
			if cmd.Flags().Changed("listen") {
				cfg.Router.Listen = listen
			}
			cfg.Router.Enabled = true
			cfg.Viewer.Definition = ""
			cfg.Viewer.Events = false
			return opts.runDaemon(cfg)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "UDP listen address")
	return cmd
}
