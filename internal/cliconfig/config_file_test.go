package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	falseVal := false

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				ListenAddr:     ":8080",
				Port:           "/dev/ttyUSB0",
				BaudRate:       250000,
				Retention:      "48h",
				ExclusivePorts: &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				ListenAddr:     ":8080",
				Port:           "/dev/ttyUSB0",
				BaudRate:       250000,
				Retention:      48 * time.Hour,
				ExclusivePorts: true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Port:     "/dev/ttyUSB0",
				BaudRate: 9600,
			},
			changed: map[string]bool{"port": true},
			initial: Config{
				Port:     "/dev/ttyACM0",
				BaudRate: 115200,
			},
			expected: Config{
				Port:     "/dev/ttyACM0", // unchanged because flag was set
				BaudRate: 9600,
			},
		},
		{
			name: "handles all field types correctly",
			fileConfig: FileConfig{
				ListenAddr:      "127.0.0.1:3000",
				UploadDir:       "/srv/uploads",
				PublicDir:       "/srv/public",
				Port:            "/dev/ttyUSB1",
				BaudRate:        57600,
				OpenTimeout:     "2s",
				WriteTimeout:    "1m",
				EventBuffer:     64,
				TerminalGrace:   "3s",
				ExclusivePorts:  &falseVal,
				Retention:       "168h",
				CleanupInterval: "1h",
				LogLevel:        "debug",
				LogFormat:       "json",
			},
			changed: map[string]bool{},
			initial: Config{ExclusivePorts: true},
			expected: Config{
				ListenAddr:      "127.0.0.1:3000",
				UploadDir:       "/srv/uploads",
				PublicDir:       "/srv/public",
				Port:            "/dev/ttyUSB1",
				BaudRate:        57600,
				OpenTimeout:     2 * time.Second,
				WriteTimeout:    time.Minute,
				EventBuffer:     64,
				TerminalGrace:   3 * time.Second,
				ExclusivePorts:  false,
				Retention:       168 * time.Hour,
				CleanupInterval: time.Hour,
				LogLevel:        "debug",
				LogFormat:       "json",
			},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{OpenTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
		{
			name:       "ignores non-positive numbers",
			fileConfig: FileConfig{BaudRate: -5, EventBuffer: 0},
			changed:    map[string]bool{},
			initial:    Config{BaudRate: 115200, EventBuffer: 10},
			expected:   Config{BaudRate: 115200, EventBuffer: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v\nwant %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
listen_addr = ":8080"
port = "/dev/ttyUSB0"
baud_rate = 250000
retention = "72h"
exclusive_ports = false
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %v, want :8080", fc.ListenAddr)
	}
	if fc.Port != "/dev/ttyUSB0" {
		t.Errorf("Port = %v, want /dev/ttyUSB0", fc.Port)
	}
	if fc.BaudRate != 250000 {
		t.Errorf("BaudRate = %v, want 250000", fc.BaudRate)
	}
	if fc.Retention != "72h" {
		t.Errorf("Retention = %v, want 72h", fc.Retention)
	}
	if fc.ExclusivePorts == nil || *fc.ExclusivePorts != false {
		t.Errorf("ExclusivePorts = %v, want false", fc.ExclusivePorts)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
port = "/dev/ttyUSB0"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("baud_rate = 9600\nlog_level = \"warn\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(DefaultConfig(), configPath, map[string]bool{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaudRate != 9600 || cfg.LogLevel != "warn" {
		t.Errorf("config = %+v", cfg)
	}

	// A missing file leaves defaults in place.
	cfg, err = Load(DefaultConfig(), filepath.Join(tmpDir, "missing.toml"), map[string]bool{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaudRate != 115200 {
		t.Errorf("BaudRate = %v, want 115200", cfg.BaudRate)
	}

	// Values that fail validation are rejected.
	if err := os.WriteFile(configPath, []byte("log_format = \"xml\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(DefaultConfig(), configPath, map[string]bool{}); err == nil {
		t.Error("Load() expected validation error")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	// Should return a path containing .dripfeed
	if path != "" && !strings.Contains(path, ".dripfeed") {
		t.Errorf("DefaultConfigPath() = %v, should contain .dripfeed", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
