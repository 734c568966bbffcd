package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/groundview/internal/daemon"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/router"
)

func newReplayCmd(opts *options) *cobra.Command {
	ro := router.ReplayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <capture.pcap>",
		Short: "Publish the UDP telemetry found in a pcap file",
		Long: `Read a pcap capture and publish every UDP payload through the routing
path, as if it had arrived on the router socket.

Examples:
  groundview replay pass-0412.pcap
  groundview replay pass-0412.pcap --port 1235 --pace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := log.Init(cfg.Log); err != nil {
				return err
			}

			tr := daemon.NewTransport(cfg.Transport)
			defer tr.Close()
			if tr.Shared() {
				return errors.New("replay needs an external transport; the memory transport has no subscribers")
			}

			pub, err := tr.Publisher()
			if err != nil {
				return fmt.Errorf("failed to create publisher: %w", err)
			}
			defer pub.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := router.New(daemon.RouterConfig(cfg), pub)
			stats, err := router.ReplayPcapFile(ctx, args[0], r.Route, ro)
			fmt.Fprintf(cmd.OutOrStdout(), "packets=%d routed=%d skipped=%d failed=%d\n",
				stats.Packets, stats.Routed, stats.Skipped, stats.Failed)
			return err
		},
	}

	cmd.Flags().Uint16VarP(&ro.Port, "port", "p", 0, "only replay datagrams sent to this UDP port")
	cmd.Flags().BoolVar(&ro.Pace, "pace", false, "reproduce the capture timing")
	return cmd
}
