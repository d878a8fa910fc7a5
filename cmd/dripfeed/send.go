package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dripfeed/internal/adapters/fs"
	"github.com/bft-labs/dripfeed/internal/adapters/serial"
	"github.com/bft-labs/dripfeed/internal/app"
	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/observer"
	"github.com/bft-labs/dripfeed/pkg/log"
)

func newSendCmd(c *cli) *cobra.Command {
	var echo bool
	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Stream a G-code file to the serial port and print progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(c, args[0], echo)
		},
	}
	cmd.Flags().BoolVar(&echo, "echo", true, "print every transmitted line")
	return cmd
}

func runSend(c *cli, path string, echo bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := &serial.Dialer{Exclusive: c.cfg.ExclusivePorts, Logger: c.log}
	tx := app.NewTransmitter(dialer, fs.NewLineCounter(), fs.LineSourceOpener{}, c.log, app.TransmitterConfig{
		OpenTimeout:  c.cfg.OpenTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
	})

	req := domain.Request{FilePath: path, Address: c.cfg.Port, Speed: c.cfg.BaudRate}
	s, err := tx.Send(ctx, req, observer.NewConsole(os.Stdout, echo))
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			c.log.Info("send interrupted", log.String("session", s.ID), log.Int("lines_sent", s.LinesSent))
		}
		return fmt.Errorf("send %s: %w", path, err)
	}
	c.log.Info("send complete", log.String("session", s.ID), log.Int("lines", s.LinesSent))
	return nil
}
