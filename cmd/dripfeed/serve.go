package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dripfeed/internal/adapters/fs"
	"github.com/bft-labs/dripfeed/internal/adapters/serial"
	"github.com/bft-labs/dripfeed/internal/app"
	"github.com/bft-labs/dripfeed/internal/cliconfig"
	"github.com/bft-labs/dripfeed/internal/observer"
	"github.com/bft-labs/dripfeed/internal/server"
	"github.com/bft-labs/dripfeed/pkg/log"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server for uploads, probing and drip-feed sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(c)
		},
	}

	cfg := &c.cfg
	f := cmd.Flags()
	f.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	f.StringVar(&cfg.UploadDir, "upload-dir", cfg.UploadDir, "directory for uploaded programs")
	f.StringVar(&cfg.PublicDir, "public-dir", cfg.PublicDir, "directory of static assets served at /")
	f.IntVar(&cfg.EventBuffer, "event-buffer", cfg.EventBuffer, "per-session event buffer size")
	f.DurationVar(&cfg.TerminalGrace, "terminal-grace", cfg.TerminalGrace, "how long a final event waits for a slow observer")
	f.DurationVar(&cfg.Retention, "retention", cfg.Retention, "age after which uploads are deleted")
	f.DurationVar(&cfg.CleanupInterval, "cleanup-interval", cfg.CleanupInterval, "interval between upload sweeps")
	return cmd
}

func runServe(c *cli) error {
	cfg := c.cfg
	c.log.Info("configuration",
		log.String("listen", cfg.ListenAddr),
		log.String("upload_dir", cfg.UploadDir),
		log.String("public_dir", cfg.PublicDir),
		log.Bool("exclusive_ports", cfg.ExclusivePorts),
		log.Duration("retention", cfg.Retention),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := app.NewRegistry()
	dialer := &serial.Dialer{Exclusive: cfg.ExclusivePorts, Logger: c.log}
	tx := app.NewTransmitter(dialer, fs.NewLineCounter(), fs.LineSourceOpener{}, c.log, app.TransmitterConfig{
		OpenTimeout:  cfg.OpenTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Registry:     registry,
	})
	manager := app.NewManager(context.Background(), tx, c.log)
	prober := app.NewProber(dialer, c.log, registry, cfg.OpenTimeout)

	uploads := fs.NewUploadStore(cfg.UploadDir)
	sweeper := fs.NewSweeper(cfg.UploadDir, fs.SweeperConfig{
		Interval: cfg.CleanupInterval,
		MaxAge:   cfg.Retention,
	}, c.log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if path := c.configFile(); path != "" {
		watcher := cliconfig.NewWatcher(path, cfg, c.changed, func(next cliconfig.Config) {
			sweeper.Update(fs.SweeperConfig{Interval: next.CleanupInterval, MaxAge: next.Retention})
			if err := cliconfig.SetLogLevel(next.LogLevel); err != nil {
				c.log.Warn("ignoring log level", log.String("level", next.LogLevel), log.Err(err))
			}
		}, c.log)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				c.log.Warn("config watcher stopped", log.String("path", path), log.Err(err))
			}
		}()
	}

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		PublicDir:  cfg.PublicDir,
		Events: observer.Config{
			Buffer:        cfg.EventBuffer,
			TerminalGrace: cfg.TerminalGrace,
		},
	}, manager, prober, uploads, c.log)

	serveErr := srv.ListenAndServe(ctx)
	if serveErr != nil {
		c.log.Error("server stopped", log.Err(serveErr))
	} else {
		c.log.Info("received signal, stopping...")
	}

	if err := manager.Shutdown(app.ShutdownTimeout); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown sessions: %w", err))
	}
	return serveErr
}
