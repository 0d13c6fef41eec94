package main

import (
	"flag"

	"github.com/openpowerquality/opq.report/internal/config"
)

// setFlags returns the names of flags given on the command line.
func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads path (or the defaults when path is empty) and applies
// the command-line overrides named in set.
func loadConfig(path string, set map[string]bool) (*config.IngestConfig, error) {
	cfg := config.DefaultIngestConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadIngestConfig(path); err != nil {
			return nil, err
		}
	}

	if set["port"] {
		cfg.Serial.Port = *port
	}
	if set["db"] {
		cfg.DBPath = *dbPath
	}
	if set["listen"] {
		cfg.Listen = *listen
	}
	if set["udp"] {
		cfg.UDPListen = *udpListen
	}
	if set["checksum"] {
		cfg.ChecksumPolicy = *checksum
	}
	if set["dev"] {
		cfg.Dev.Enabled = *devMode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
