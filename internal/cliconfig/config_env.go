package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (DRIPFEED_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("listen", os.Getenv("DRIPFEED_LISTEN_ADDR"), &cfg.ListenAddr)
	s.setString("upload-dir", os.Getenv("DRIPFEED_UPLOAD_DIR"), &cfg.UploadDir)
	s.setString("public-dir", os.Getenv("DRIPFEED_PUBLIC_DIR"), &cfg.PublicDir)
	s.setString("port", os.Getenv("DRIPFEED_PORT"), &cfg.Port)
	s.setString("log-level", os.Getenv("DRIPFEED_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("DRIPFEED_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setIntFromString("baud", os.Getenv("DRIPFEED_BAUD_RATE"), &cfg.BaudRate); err != nil {
		return err
	}
	if err := s.setIntFromString("event-buffer", os.Getenv("DRIPFEED_EVENT_BUFFER"), &cfg.EventBuffer); err != nil {
		return err
	}

	if err := s.setDuration("open-timeout", os.Getenv("DRIPFEED_OPEN_TIMEOUT"), &cfg.OpenTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", os.Getenv("DRIPFEED_WRITE_TIMEOUT"), &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("terminal-grace", os.Getenv("DRIPFEED_TERMINAL_GRACE"), &cfg.TerminalGrace); err != nil {
		return err
	}
	if err := s.setDuration("retention", os.Getenv("DRIPFEED_RETENTION"), &cfg.Retention); err != nil {
		return err
	}
	if err := s.setDuration("cleanup-interval", os.Getenv("DRIPFEED_CLEANUP_INTERVAL"), &cfg.CleanupInterval); err != nil {
		return err
	}

	s.setBoolFromString("exclusive", os.Getenv("DRIPFEED_EXCLUSIVE_PORTS"), &cfg.ExclusivePorts)

	return nil
}
