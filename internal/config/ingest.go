// Package config loads the opqd JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openpowerquality/opq.report/internal/ingest"
	"github.com/openpowerquality/opq.report/internal/serialmux"
)

// DefaultConfigPath is where opqd looks for its configuration when -config
// is not given.
const DefaultConfigPath = "config/opqd.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SerialConfig selects the device link. An empty Port disables it.
type SerialConfig struct {
	Port    string                `json:"port"`
	Options serialmux.PortOptions `json:"options"`
}

// DevConfig drives the built-in emitter used when no hardware is attached.
type DevConfig struct {
	Enabled  bool   `json:"enabled"`
	DeviceID int64  `json:"device_id"`
	Interval string `json:"interval"` // duration string like "1s"
	Seed     uint64 `json:"seed"`
}

// IngestConfig is the root of the opqd configuration file.
type IngestConfig struct {
	Serial         SerialConfig `json:"serial"`
	DBPath         string       `json:"db_path"`
	Listen         string       `json:"listen"`
	UDPListen      string       `json:"udp_listen"`
	UDPRcvBuf      int          `json:"udp_rcvbuf"`
	ChecksumPolicy string       `json:"checksum_policy"`
	Dev            DevConfig    `json:"dev"`
}

// DefaultIngestConfig returns the configuration used for anything a file
// leaves out.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Serial: SerialConfig{
			Options: serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		DBPath:         "opq.db",
		Listen:         "127.0.0.1:8080",
		UDPRcvBuf:      4 << 20,
		ChecksumPolicy: string(ingest.ChecksumFlag),
		Dev: DevConfig{
			DeviceID: 1,
			Interval: "1s",
			Seed:     1,
		},
	}
}

// LoadIngestConfig reads a JSON config file over the defaults, so partial
// files are fine. The path must end in .json and the file must be under 1MB.
func LoadIngestConfig(path string) (*IngestConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultIngestConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *IngestConfig) Validate() error {
	if c.Serial.Port != "" {
		if _, err := c.Serial.Options.Normalize(); err != nil {
			return fmt.Errorf("serial.options: %w", err)
		}
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if _, err := ingest.ParseChecksumPolicy(c.ChecksumPolicy); err != nil {
		return err
	}
	if c.UDPRcvBuf < 0 {
		return fmt.Errorf("udp_rcvbuf must be non-negative, got %d", c.UDPRcvBuf)
	}
	if c.Dev.Interval != "" {
		d, err := time.ParseDuration(c.Dev.Interval)
		if err != nil {
			return fmt.Errorf("invalid dev.interval '%s': %w", c.Dev.Interval, err)
		}
		if d <= 0 {
			return fmt.Errorf("dev.interval must be positive, got %s", d)
		}
	}
	return nil
}

// Policy returns the parsed checksum policy. Call Validate first.
func (c *IngestConfig) Policy() ingest.ChecksumPolicy {
	p, err := ingest.ParseChecksumPolicy(c.ChecksumPolicy)
	if err != nil {
		return ingest.ChecksumFlag
	}
	return p
}

// GetDevInterval returns the emitter interval, one second if unset.
func (c *IngestConfig) GetDevInterval() time.Duration {
	if c.Dev.Interval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(c.Dev.Interval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
