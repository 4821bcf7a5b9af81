package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EMTRADE_LISTEN_ADDR", "")
	t.Setenv("EMTRADE_COMMIT_TIMEOUT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9021" {
		t.Fatalf("listen addr %q", cfg.ListenAddr)
	}
	if cfg.CommitTimeout != 6*time.Second {
		t.Fatalf("commit timeout %s", cfg.CommitTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EMTRADE_LISTEN_ADDR", "127.0.0.1:8080")
	t.Setenv("EMTRADE_COMMIT_TIMEOUT", "250ms")
	t.Setenv("EMTRADE_ORDERER_ADDR", "http://orderer:26657")
	t.Setenv("EMTRADE_EVENT_STREAM_URL", "ws://orderer:26657/events")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8080" || cfg.CommitTimeout != 250*time.Millisecond {
		t.Fatalf("config %+v", cfg)
	}
	if cfg.OrdererAddr != "http://orderer:26657" {
		t.Fatalf("orderer addr %q", cfg.OrdererAddr)
	}
}

func TestLoadRejectsOrdererWithoutEventStream(t *testing.T) {
	t.Setenv("EMTRADE_ORDERER_ADDR", "http://orderer:26657")
	t.Setenv("EMTRADE_EVENT_STREAM_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of orderer without event stream")
	}
	t.Setenv("EMTRADE_ORDERER_ADDR", "")
	t.Setenv("EMTRADE_EVENT_STREAM_URL", "ws://orderer:26657/events")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of event stream without orderer")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	t.Setenv("EMTRADE_COMMIT_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
	t.Setenv("EMTRADE_COMMIT_TIMEOUT", "-3s")
	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of negative timeout")
	}
}
