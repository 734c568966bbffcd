package cmd

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/groundview/internal/config"
)

type viewOptions struct {
	title   string
	appID   string
	file    string
	endian  string
	sub     string
	events  bool
	timeout time.Duration
}

func newViewCmd(opts *options) *cobra.Command {
	vo := &viewOptions{}

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Run one telemetry page",
		Long: `Subscribe to one telemetry stream and decode every packet against a page
definition. Flags override the viewer section of the config file.

Examples:
  groundview view --appid 0x800 --file es_hk.txt
  groundview view --appid 0x808 --file evs_hk.yaml --endian B --sub broker1:9092,broker2:9092
  groundview view --appid 0x808 --events`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			vo.apply(cmd, cfg)
			if !cfg.Viewer.Events && cfg.Viewer.Definition == "" {
				return errors.New("a definition file (--file) or --events is required")
			}
			cfg.Router.Enabled = false
			return opts.runDaemon(cfg)
		},
	}

	cmd.Flags().StringVar(&vo.title, "title", "", "page title")
	cmd.Flags().StringVar(&vo.appID, "appid", "", "application id to subscribe to, hex (e.g. 0x800)")
	cmd.Flags().StringVarP(&vo.file, "file", "f", "", "page definition file (.txt rows or .yaml)")
	cmd.Flags().StringVar(&vo.endian, "endian", "", "byte order of field values: L or B")
	cmd.Flags().StringVar(&vo.sub, "sub", "", "comma separated kafka brokers to subscribe through")
	cmd.Flags().BoolVar(&vo.events, "events", false, "render event messages instead of a field layout")
	cmd.Flags().DurationVar(&vo.timeout, "timeout", 0, "receiver stop timeout")

	return cmd
}

// apply copies the flags the user set onto cfg.
func (vo *viewOptions) apply(cmd *cobra.Command, cfg *config.GlobalConfig) {
	flags := cmd.Flags()
	if flags.Changed("title") {
		cfg.Viewer.Title = vo.title
	}
	if flags.Changed("appid") {
		cfg.Viewer.AppID = vo.appID
	}
	if flags.Changed("file") {
		cfg.Viewer.Definition = vo.file
	}
	if flags.Changed("endian") {
		cfg.Viewer.Endian = vo.endian
	}
	if flags.Changed("sub") {
		cfg.Transport.Type = "kafka"
		cfg.Transport.Kafka.Brokers = strings.Split(vo.sub, ",")
	}
	if flags.Changed("events") {
		cfg.Viewer.Events = vo.events
	}
	if flags.Changed("timeout") {
		cfg.Viewer.StopTimeout = vo.timeout
	}
}
