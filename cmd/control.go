package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/groundview/internal/command"
)

// client resolves the control socket from the flag or the config file.
func (o *options) client() (*command.UDSClient, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	socket := cfg.Control.Socket
	if o.socketPath != "" {
		socket = o.socketPath
	}
	if socket == "" {
		return nil, errors.New("control socket is disabled (control.socket is empty)")
	}
	return command.NewUDSClient(socket, cfg.Control.Timeout), nil
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running groundview process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			st, err := client.Status(context.Background())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintf(out, "groundview %s, up %ds\n", st.Version, st.UptimeSec)
			fmt.Fprintf(out, "mission:   %s.%s (%s transport)\n", st.Namespace, st.Spacecraft, st.Transport)
			fmt.Fprintf(out, "services:  %s\n", strings.Join(st.Services, ", "))
			if st.Page != nil {
				fmt.Fprintf(out, "page:      %s on %s [%s]\n", st.Page.Title, st.Page.Topic, st.Page.State)
				if st.Page.Error != "" {
					fmt.Fprintf(out, "           error: %s\n", st.Page.Error)
				}
			}
			if st.Router != nil {
				fmt.Fprintf(out, "router:    %s, %d source(s)\n", st.Router.Listen, len(st.Router.Sources))
				for _, src := range st.Router.Sources {
					fmt.Fprintf(out, "           %s\n", src)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}

func newReloadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the log settings of a running groundview process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.Reload(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration reloaded")
			return nil
		},
	}
}

func newStopCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running groundview process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.Shutdown(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
}
