// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/groundview/internal/config"
	"firestige.xyz/groundview/internal/daemon"
)

const defaultConfigFile = "/etc/groundview/config.yml"

// options holds the global flags shared by every subcommand.
type options struct {
	configFile string
	pidFile    string
	socketPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "groundview",
		Short: "Groundview - ground station telemetry viewer",
		Long: `Groundview receives spacecraft telemetry packets, decodes them against
a page definition and shows the decoded fields.

Components:
  - Routing service: UDP ingest, republished per stream on the pub/sub transport
  - Telemetry page: subscribes to one stream and decodes every packet
  - Reporters: console, jsonl, kafka`,
		Version:       daemon.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", defaultConfigFile,
		"config file path (defaults are used when it does not exist)")
	rootCmd.PersistentFlags().StringVar(&opts.pidFile, "pidfile", "",
		"PID file path")
	rootCmd.PersistentFlags().StringVarP(&opts.socketPath, "socket", "s", "",
		"control socket path (default: control.socket from the config)")

	rootCmd.AddCommand(newViewCmd(opts))
	rootCmd.AddCommand(newRouteCmd(opts))
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newReplayCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newReloadCmd(opts))
	rootCmd.AddCommand(newStopCmd(opts))
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *options) loadConfig() (*config.GlobalConfig, error) {
	cfg, err := config.LoadOrDefault(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// runDaemon starts cfg's services and blocks until shutdown.
func (o *options) runDaemon(cfg *config.GlobalConfig) error {
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return err
	}

	d := daemon.NewWithConfig(cfg, o.configFile, o.pidFile)
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	return d.Run()
}
