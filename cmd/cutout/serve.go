package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dunamismax/cutout/internal/api"
	"github.com/dunamismax/cutout/internal/session"
	"github.com/dunamismax/cutout/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		host     string
		port     int
		reload   bool
		noReload bool
	)

	defaultHost, defaultPort := splitAddr(a.cfg.API.Addr)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noReload {
				reload = false
			}
			if port < 1 || port > 65535 {
				return fmt.Errorf("port must be between 1 and 65535, got %d", port)
			}
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			return a.withImaging(cmd.Context(), func(ctx context.Context) error {
				return a.serve(ctx, addr, reload)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&host, "host", defaultHost, "bind host")
	flags.IntVar(&port, "port", defaultPort, "port to listen on")
	flags.BoolVar(&reload, "reload", true, "purge cached model sessions on SIGHUP")
	flags.BoolVar(&noReload, "no-reload", false, "ignore SIGHUP")
	cmd.MarkFlagsMutuallyExclusive("reload", "no-reload")

	return cmd
}

func (a *app) serve(ctx context.Context, addr string, reload bool) error {
	logger := a.logger

	shutdownTracing, err := telemetry.SetupTracing(ctx, a.cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	registry := api.NewRegistry()
	p, err := a.buildPipeline(registry)
	if err != nil {
		return err
	}
	defer p.cache.Purge()

	app := api.NewServer(logger, p.remover, api.Options{
		MaxUploadBytes: a.cfg.API.MaxUploadBytes,
		Registry:       registry,
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      app.Handler(),
		ReadTimeout:  a.cfg.API.ReadTimeout,
		WriteTimeout: a.cfg.API.WriteTimeout,
		IdleTimeout:  a.cfg.API.IdleTimeout,
	}

	done := make(chan struct{})
	defer close(done)
	if reload {
		hup, stopHUP := a.reloadSignals()
		defer stopHUP()
		go watchReload(done, hup, p.cache, logger)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("engine", a.cfg.Inference.Engine).
			Bool("reload", reload).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// notifyHUP delivers SIGHUP on the returned channel until stop is called.
func notifyHUP() (<-chan os.Signal, func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	return hup, func() { signal.Stop(hup) }
}

// watchReload purges cached sessions on every signal from hup until done is
// closed, so the next request rebuilds them from current weights.
func watchReload(done <-chan struct{}, hup <-chan os.Signal, cache *session.Cache, logger zerolog.Logger) {
	for {
		select {
		case <-done:
			return
		case <-hup:
			logger.Info().Int("sessions", cache.Len()).Msg("reload: purging model sessions")
			cache.Purge()
		}
	}
}

// splitAddr breaks CUTOUT_API_ADDR into flag defaults.
func splitAddr(addr string) (string, int) {
	host, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0", 8000
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return host, 8000
	}
	return host, port
}
