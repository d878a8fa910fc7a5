package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dripfeed/internal/adapters/serial"
	"github.com/bft-labs/dripfeed/internal/app"
	"github.com/bft-labs/dripfeed/internal/observer"
)

func newProbeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the serial port opens at the configured baud rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), probeDeadline(c.cfg.OpenTimeout))
			defer cancel()

			dialer := &serial.Dialer{Exclusive: c.cfg.ExclusivePorts, Logger: c.log}
			prober := app.NewProber(dialer, c.log, nil, c.cfg.OpenTimeout)
			if err := prober.Probe(ctx, c.cfg.Port, c.cfg.BaudRate, observer.NewConsole(os.Stdout, false)); err != nil {
				return fmt.Errorf("probe %s: %w", c.cfg.Port, err)
			}
			return nil
		},
	}
}

func probeDeadline(open time.Duration) time.Duration {
	if open <= 0 {
		return time.Minute
	}
	return 2 * open
}
