/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
	"github.com/loqalabs/loqa-echo-go/internal/config"
	"github.com/loqalabs/loqa-echo-go/internal/echo"
	echonats "github.com/loqalabs/loqa-echo-go/internal/nats"
	"github.com/loqalabs/loqa-echo-go/internal/observe"
	"github.com/loqalabs/loqa-echo-go/internal/pcmexport"
)

// Exit codes
const (
	exitOK          = 0
	exitError       = 1
	exitUnsupported = 2
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	sinkPath   string
	backend    string
	exportWAV  string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	logFile, err := config.ConfigureDefaultLogger(cfg.LogLevel, cfg.LogFile, slog.HandlerOptions{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	if logFile != nil {
		defer logFile.Close()
	}

	err = serve(context.Background(), cfg, newBackend(cfg.Backend))
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, echo.ErrUnsupportedHardware):
		slog.Error("no usable microphone, capture disabled for this session", "err", err)
		return exitUnsupported
	default:
		slog.Error("echo failed", "err", err)
		return exitError
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("echo", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "echo.yaml", "Path to the configuration file")
	fs.StringVar(&opts.sinkPath, "sink", "", "Raw PCM capture file (overrides config)")
	fs.StringVar(&opts.backend, "backend", "", "Audio backend: portaudio or mock (overrides config)")
	fs.StringVar(&opts.exportWAV, "export-wav", "", "Convert the capture to this WAV file on exit (overrides config)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.sinkPath != "" {
		cfg.SinkPath = opts.sinkPath
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.exportWAV != "" {
		cfg.ExportWAV = opts.exportWAV
	}
	return cfg, cfg.Validate()
}

func newBackend(name string) audio.AudioBackend {
	if name == config.BackendMock {
		return audio.NewMockAudioBackend()
	}
	return audio.NewPortAudioBackend()
}

// serve runs one echo session until ctx is canceled or a shutdown signal
// arrives
func serve(ctx context.Context, cfg *config.Config, backend audio.AudioBackend) (err error) {
	session := echo.NewSession(backend, echo.WithSessionQueueDepth(cfg.QueueDepth))
	logger := slog.Default().With("session", session.ID())

	pipeline, err := session.Bootstrap(cfg.SinkPath)
	if err != nil {
		_ = session.Shutdown() // Release whatever the resolver opened
		return err
	}
	defer func() {
		err = errors.Join(err, session.Shutdown(), exportCapture(cfg, session, logger))
	}()

	if status := session.SetPlayerVolume(cfg.Volume); status != echo.StatusOK {
		logger.Warn("initial volume not applied", "volume", cfg.Volume, "status", status)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		if err := startMetrics(ctx, g, cfg.Metrics.Addr, pipeline, cfg.NATS.DeviceID, logger); err != nil {
			return err
		}
	}

	var commands <-chan echonats.ControlMessage
	if cfg.NATS.URL != "" {
		conn, err := echonats.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		subscriber := echonats.NewControlSubscriber(conn, cfg.NATS.DeviceID, 16, logger)
		defer subscriber.Close()
		if err := subscriber.Start(); err != nil {
			return err
		}
		commands = subscriber.Commands()

		publisher := echonats.NewStatePublisher(conn, cfg.NATS.DeviceID, session.ID().String(), logger)
		pipeline.OnStateChange(publisher.Publish)
	}

	if err := pipeline.Start(); err != nil {
		return err
	}
	logger.Info("echoing", "sink", cfg.SinkPath)

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, handledSignals...)
	defer signal.Stop(signals)

	g.Go(func() error {
		defer cancel()
		return controlLoop(ctx, pipeline, signals, commands, logger)
	})
	return g.Wait()
}

// controlLoop is the only goroutine that drives the pipeline once echoing
func controlLoop(ctx context.Context, pipeline *echo.Pipeline, signals <-chan os.Signal, commands <-chan echonats.ControlMessage, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-signals:
			command, ok := signalCommand(sig)
			if !ok {
				logger.Info("shutting down", "signal", sig)
				return nil
			}
			if err := echonats.Apply(pipeline, echonats.ControlMessage{Command: command}); err != nil {
				logger.Warn("signal ignored", "signal", sig, "command", command, "err", err)
			}
		case msg := <-commands:
			if err := echonats.Apply(pipeline, msg); err != nil {
				logger.Warn("remote command failed", "request", msg.RequestID, "command", msg.Command, "err", err)
			}
		}
	}
}

func startMetrics(ctx context.Context, g *errgroup.Group, addr string, pipeline *echo.Pipeline, deviceID string, logger *slog.Logger) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return fmt.Errorf("could not initialize metrics: %w", err)
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider(), observe.PipelineSource(pipeline), observe.Attr("device", deviceID))
	if err != nil {
		return fmt.Errorf("could not register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), metrics.Unregister(), shutdown(shutdownCtx))
	})
	return nil
}

func exportCapture(cfg *config.Config, session *echo.Session, logger *slog.Logger) error {
	if cfg.ExportWAV == "" {
		return nil
	}
	resolved, err := session.Resolve()
	if err != nil {
		return nil
	}
	n, err := pcmexport.ConvertToWAV(cfg.SinkPath, cfg.ExportWAV, resolved.SampleRateHz)
	if err != nil {
		return err
	}
	logger.Info("exported capture", "wav", cfg.ExportWAV, "samples", n)
	return nil
}
