package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/groundview/internal/layout"
)

func newValidateCmd() *cobra.Command {
	var (
		endian   string
		capacity int
	)

	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Validate a page definition file",
		Long: `Parse a page definition (rows or YAML) and print the resulting layout,
or the first definition error with its line.

Examples:
  groundview validate es_hk.txt
  groundview validate evs_hk.yaml --capacity 64`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := layout.ParseEndianness(endian)
			if err != nil {
				return err
			}
			l, err := layout.Load(args[0], layout.WithEndianness(order), layout.WithCapacity(capacity))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "INVALID: %v\n", err)
				return err
			}
			printLayout(cmd, l)
			return nil
		},
	}

	cmd.Flags().StringVar(&endian, "endian", "L", "byte order of field values: L or B")
	cmd.Flags().IntVar(&capacity, "capacity", layout.DefaultCapacity, "number of field slots")
	return cmd
}

func printLayout(cmd *cobra.Command, l *layout.PacketLayout) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "VALID: %d of %d slots defined, %s endian\n", l.Defined(), l.Capacity(), l.Endianness())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tDESCRIPTION\tOFFSET\tSIZE\tFORMAT\tDISPLAY\tENUM")
	for i, f := range l.Fields() {
		if !f.Valid {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			i, f.Description, f.Offset, f.Size, f.Format, f.Display, strings.Join(f.Enum, "|"))
	}
	w.Flush()
}
