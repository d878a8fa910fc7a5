package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/dripfeed/internal/cliconfig"
	"github.com/bft-labs/dripfeed/pkg/log"
)

const helpBanner = `
     _      _        __               _ 
  __| |_ __(_)_ __  / _| ___  ___  __| |
 / _' | '__| | '_ \| |_ / _ \/ _ \/ _' |
| (_| | |  | | |_) |  _|  __/  __/ (_| |
 \__,_|_|  |_| .__/|_|  \___|\___|\__,_|
             |_|                        
`

const helpDescription = `
Drip-feed G-code programs to a CNC controller over a serial port, one line
at a time, waiting for every write to drain before sending the next.

Highlights:
  - One line in flight: the controller's buffer is never flooded.
  - Live progress over HTTP as newline-delimited JSON, or on the terminal.
  - Configure via file, env (DRIPFEED_*), or flags; the file is hot-reloaded.
`

var longHelp = strings.TrimSpace(helpBanner) + "\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  dripfeed serve --listen :3000 --upload-dir ./uploads
  dripfeed send job.gcode --port /dev/ttyUSB0 --baud 115200
  dripfeed probe --port /dev/ttyUSB0 --baud 250000
  dripfeed ports
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the resolved configuration and logger to subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	changed map[string]bool
	zl      zerolog.Logger
	log     log.Logger
}

// configFile returns the config path in effect.
func (c *cli) configFile() string {
	if c.cfgPath != "" {
		return c.cfgPath
	}
	return cliconfig.DefaultConfigPath()
}

// load resolves flags > env > file > defaults and builds the logger.
func (c *cli) load(cmd *cobra.Command) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })

	cfg, err := cliconfig.Load(c.cfg, c.configFile(), c.changed)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	zl, err := cliconfig.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	c.zl = zl
	c.log = log.NewZerolog(zl)
	return nil
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}
	c.zl, _ = cliconfig.NewLogger(os.Stderr, c.cfg.LogLevel, c.cfg.LogFormat)
	c.log = log.NewZerolog(c.zl)

	root := &cobra.Command{
		Use:           "dripfeed",
		Short:         "Stream G-code to a CNC controller over serial, one acknowledged line at a time",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	// Flags
	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.dripfeed/config.toml)")
	pf.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&c.cfg.LogFormat, "log-format", c.cfg.LogFormat, "log format (console or json)")

	pf.StringVar(&c.cfg.Port, "port", c.cfg.Port, "serial device, e.g. /dev/ttyUSB0")
	pf.IntVar(&c.cfg.BaudRate, "baud", c.cfg.BaudRate, "serial speed in baud")
	pf.DurationVar(&c.cfg.OpenTimeout, "open-timeout", c.cfg.OpenTimeout, "bound on opening the serial port (0 disables)")
	pf.DurationVar(&c.cfg.WriteTimeout, "write-timeout", c.cfg.WriteTimeout, "bound on a single acknowledged write (0 disables)")
	pf.BoolVar(&c.cfg.ExclusivePorts, "exclusive", c.cfg.ExclusivePorts, "request exclusive access to the serial device")

	root.AddCommand(newServeCmd(c), newSendCmd(c), newProbeCmd(c), newPortsCmd(c))

	if err := root.Execute(); err != nil {
		c.zl.Error().Err(err).Msg("dripfeed")
		os.Exit(1)
	}
}
