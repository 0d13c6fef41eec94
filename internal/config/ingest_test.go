package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openpowerquality/opq.report/internal/ingest"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultIngestConfig(t *testing.T) {
	cfg := DefaultIngestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Policy() != ingest.ChecksumFlag {
		t.Errorf("Policy() = %q, want flag", cfg.Policy())
	}
	if cfg.GetDevInterval() != time.Second {
		t.Errorf("GetDevInterval() = %v, want 1s", cfg.GetDevInterval())
	}
	if cfg.Serial.Port != "" {
		t.Errorf("serial should be disabled by default, got %q", cfg.Serial.Port)
	}
}

func TestLoadIngestConfig(t *testing.T) {
	path := writeConfig(t, "opqd.json", `{
  "serial": {"port": "/dev/ttyUSB0", "options": {"baud_rate": 9600}},
  "db_path": "/var/lib/opq/opq.db",
  "udp_listen": ":9000",
  "checksum_policy": "drop",
  "dev": {"interval": "250ms"}
}`)

	cfg, err := LoadIngestConfig(path)
	if err != nil {
		t.Fatalf("LoadIngestConfig failed: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" || cfg.Serial.Options.BaudRate != 9600 {
		t.Errorf("unexpected serial config %+v", cfg.Serial)
	}
	if cfg.DBPath != "/var/lib/opq/opq.db" || cfg.UDPListen != ":9000" {
		t.Errorf("unexpected paths %q %q", cfg.DBPath, cfg.UDPListen)
	}
	if cfg.Policy() != ingest.ChecksumDrop {
		t.Errorf("Policy() = %q, want drop", cfg.Policy())
	}
	if cfg.GetDevInterval() != 250*time.Millisecond {
		t.Errorf("GetDevInterval() = %v", cfg.GetDevInterval())
	}
	// untouched fields keep their defaults
	if cfg.Listen != "127.0.0.1:8080" || cfg.Dev.DeviceID != 1 {
		t.Errorf("defaults lost: listen=%q device=%d", cfg.Listen, cfg.Dev.DeviceID)
	}
}

func TestLoadIngestConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "opqd.yaml", `{}`, ".json extension"},
		{"bad json", "bad.json", `{"db_path":`, "failed to parse"},
		{"bad policy", "p.json", `{"checksum_policy": "strict"}`, "unknown checksum policy"},
		{"bad serial", "s.json", `{"serial": {"port": "/dev/x", "options": {"parity": "mark"}}}`, "serial.options"},
		{"bad interval", "i.json", `{"dev": {"interval": "soon"}}`, "invalid dev.interval"},
		{"negative interval", "n.json", `{"dev": {"interval": "-1s"}}`, "must be positive"},
		{"empty db path", "d.json", `{"db_path": ""}`, "db_path"},
		{"negative rcvbuf", "r.json", `{"udp_rcvbuf": -1}`, "udp_rcvbuf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadIngestConfig(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadIngestConfig_MissingAndLarge(t *testing.T) {
	if _, err := LoadIngestConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	big := `{"db_path": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := LoadIngestConfig(writeConfig(t, "big.json", big)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestDefaultConfigFileLoads(t *testing.T) {
	cfg, err := LoadIngestConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("shipped defaults failed to load: %v", err)
	}
	if cfg.DBPath == "" {
		t.Error("shipped defaults should set db_path")
	}
}
