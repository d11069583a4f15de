package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/miser/pkg/api"
	"github.com/odvcencio/miser/pkg/config"
	"github.com/odvcencio/miser/pkg/results"
	"github.com/odvcencio/miser/pkg/telemetry"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a miser config file")
	bind := fs.String("bind", "", "Listen address (defaults to config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *bind != "" {
		cfg.API.Bind = *bind
	}

	store, err := results.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := telemetry.NewHub()
	defer hub.Close()

	server := api.NewServer(cfg.API.Bind, store, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Printf("Serving results API on http://%s\n", cfg.API.Bind)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
