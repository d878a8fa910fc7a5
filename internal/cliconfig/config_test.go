package cliconfig

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %v, want %v", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.BaudRate != 115200 {
		t.Errorf("BaudRate = %v, want 115200", cfg.BaudRate)
	}
	if cfg.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v, want 720h", cfg.Retention)
	}
	if cfg.CleanupInterval != 24*time.Hour {
		t.Errorf("CleanupInterval = %v, want 24h", cfg.CleanupInterval)
	}
	if !cfg.ExclusivePorts {
		t.Error("ExclusivePorts = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no timeouts", func(c *Config) { c.OpenTimeout, c.WriteTimeout = 0, 0 }, false},
		{"json logs", func(c *Config) { c.LogFormat = LogFormatJSON }, false},
		{"missing listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"missing upload dir", func(c *Config) { c.UploadDir = "" }, true},
		{"negative baud", func(c *Config) { c.BaudRate = -1 }, true},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -time.Second }, true},
		{"zero event buffer", func(c *Config) { c.EventBuffer = 0 }, true},
		{"negative grace", func(c *Config) { c.TerminalGrace = -time.Second }, true},
		{"zero retention", func(c *Config) { c.Retention = 0 }, true},
		{"zero cleanup interval", func(c *Config) { c.CleanupInterval = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
