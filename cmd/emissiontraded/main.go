// Command emissiontraded serves the emission permit trading API over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"emissiontrade/internal/adapters/rest"
	"emissiontrade/internal/certs"
	"emissiontrade/internal/config"
	"emissiontrade/internal/contract"
	"emissiontrade/internal/infra/persistence"
	"emissiontrade/internal/submit"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	backend, closeBackend, err := persistence.Open()
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			log.Printf("close ledger backend: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	certStore, err := certs.Open(ctx)
	if err != nil {
		return err
	}

	registry := submit.NewEventRegistry()
	hub := submit.NewEventHub()
	defer hub.Close()

	endorser := submit.NewLocalEndorser(backend, contract.NewDispatcher())
	var orderer submit.Orderer
	if cfg.OrdererAddr != "" {
		orderer = submit.NewHTTPOrderer(cfg.OrdererAddr)
	} else {
		orderer = submit.NewLocalOrderer(backend, registry, hub)
	}
	if cfg.EventStreamURL != "" {
		go func() {
			if err := submit.Listen(ctx, cfg.EventStreamURL, registry); err != nil && ctx.Err() == nil {
				log.Printf("commit event stream: %v", err)
			}
		}()
	}

	metrics := submit.NewMetrics(prometheus.DefaultRegisterer)
	client := submit.NewClient(endorser, orderer, registry,
		submit.WithCommitTimeout(cfg.CommitTimeout),
		submit.WithRecorder(metrics),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/events", hub.Handler())
	mux.Handle("/", rest.NewHandler(client, endorser, certStore))

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server started, listen %s", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
