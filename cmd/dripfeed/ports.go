package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dripfeed/internal/adapters/serial"
)

func newPortsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := serial.ListPorts()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			if len(list) == 0 {
				c.log.Info("no serial ports found")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tNAME")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\n", p.Path, p.Name)
			}
			return tw.Flush()
		},
	}
}
