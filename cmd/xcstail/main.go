//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/borzel/xenconsole"
	"github.com/borzel/xenconsole/branding"
	"github.com/borzel/xenconsole/internal/config"
	"github.com/borzel/xenconsole/metrics"
	"github.com/borzel/xenconsole/seqpacket"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	pipePath := flag.String("pipe", "", "Console socket path, overrides the configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("Failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *pipePath != "" {
		cfg.Pipe = *pipePath
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	// Stdout carries console output only.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := run(cfg, logger); err != nil {
		logger.Error("Console stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	brand := branding.New("")
	logger.Info(brand.String("BRANDING_consoleChannel"), "pipe", cfg.Pipe, "bufferCapacity", cfg.BufferCapacity)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector()
	if err := collector.Register(reg); err != nil {
		return err
	}

	pipe := seqpacket.NewPipe(cfg.Pipe, seqpacket.ModeReadWrite,
		seqpacket.ConnectTimeoutOption(cfg.ConnectTimeout),
		seqpacket.LoggerOption(logger.With("component", "seqpacket")),
	)
	defer pipe.Close()

	stream, err := xenconsole.New(pipe, cfg.BufferCapacity,
		xenconsole.LoggerOption(logger.With("component", "xenconsole")),
		xenconsole.ObserverOption(collector),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream.OnMessage(func(message string) {
		fmt.Fprintln(os.Stdout, message)
	})
	stream.OnDisconnected(func() {
		logger.Info(disconnectReason(ctx))
	})

	if err := stream.Start(); err != nil {
		return errors.Wrap(err, "start stream")
	}
	logger.Info("Console attached", "session", stream.ID())

	if cred, err := pipe.PeerCredentials(); err == nil {
		logger.Debug("Console peer", "pid", cred.Pid, "uid", cred.Uid)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-stream.Done():
		case <-gctx.Done():
			logger.Info("Shutting down")
			pipe.Close()
		}
		// Stops the metrics server once the console is gone.
		stop()

		if err := pipe.Wait(); err != nil {
			return err
		}
		return stream.Err()
	})

	return g.Wait()
}

// disconnectReason describes a clean end of the stream. Once ctx is done the
// pipe was closed locally, otherwise the peer hung up.
func disconnectReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return "Console detached"
	}
	return "Console closed by peer"
}
