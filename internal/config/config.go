// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"emissiontrade/internal/submit"
)

// Config carries the service settings.
//
//	EMTRADE_LISTEN_ADDR: HTTP listen address (default :9021)
//	EMTRADE_COMMIT_TIMEOUT: commit event wait window (default 6s)
//	EMTRADE_ORDERER_ADDR: remote orderer RPC address; empty runs in-process
//	EMTRADE_EVENT_STREAM_URL: remote commit event websocket; empty runs in-process
//
// Storage and certificate variables are documented in their packages.
type Config struct {
	ListenAddr     string
	CommitTimeout  time.Duration
	OrdererAddr    string
	EventStreamURL string
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:     getenv("EMTRADE_LISTEN_ADDR", ":9021"),
		CommitTimeout:  submit.DefaultCommitTimeout,
		OrdererAddr:    os.Getenv("EMTRADE_ORDERER_ADDR"),
		EventStreamURL: os.Getenv("EMTRADE_EVENT_STREAM_URL"),
	}
	if raw := os.Getenv("EMTRADE_COMMIT_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse EMTRADE_COMMIT_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("EMTRADE_COMMIT_TIMEOUT must be positive, got %s", d)
		}
		cfg.CommitTimeout = d
	}
	// A remote orderer needs the matching event stream, and vice versa.
	// With only one set, commit events never reach the local registry and
	// every write submission times out.
	if (cfg.OrdererAddr == "") != (cfg.EventStreamURL == "") {
		return Config{}, fmt.Errorf("EMTRADE_ORDERER_ADDR and EMTRADE_EVENT_STREAM_URL must be set together")
	}
	return cfg, nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
