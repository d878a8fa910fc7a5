package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ListenAddr      string `toml:"listen_addr"`
	UploadDir       string `toml:"upload_dir"`
	PublicDir       string `toml:"public_dir"`
	Port            string `toml:"port"`
	BaudRate        int    `toml:"baud_rate"`
	OpenTimeout     string `toml:"open_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	EventBuffer     int    `toml:"event_buffer"`
	TerminalGrace   string `toml:"terminal_grace"`
	ExclusivePorts  *bool  `toml:"exclusive_ports"`
	Retention       string `toml:"retention"`
	CleanupInterval string `toml:"cleanup_interval"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.dripfeed/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dripfeed", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)
	s.setString("upload-dir", fc.UploadDir, &cfg.UploadDir)
	s.setString("public-dir", fc.PublicDir, &cfg.PublicDir)
	s.setString("port", fc.Port, &cfg.Port)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setInt("baud", fc.BaudRate, &cfg.BaudRate)
	s.setInt("event-buffer", fc.EventBuffer, &cfg.EventBuffer)

	if err := s.setDuration("open-timeout", fc.OpenTimeout, &cfg.OpenTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", fc.WriteTimeout, &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("terminal-grace", fc.TerminalGrace, &cfg.TerminalGrace); err != nil {
		return err
	}
	if err := s.setDuration("retention", fc.Retention, &cfg.Retention); err != nil {
		return err
	}
	if err := s.setDuration("cleanup-interval", fc.CleanupInterval, &cfg.CleanupInterval); err != nil {
		return err
	}

	s.setBool("exclusive", fc.ExclusivePorts, &cfg.ExclusivePorts)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load builds the effective configuration: defaults, then the file at path
// (when it exists), then DRIPFEED_* variables. Values of flags listed in
// changed are kept as found in base.
func Load(base Config, path string, changed map[string]bool) (Config, error) {
	cfg := base
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, err
		}
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
