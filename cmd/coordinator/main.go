package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/strategy"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

var configPath string

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flag.StringVar(&configPath, "config", "", "Path to the TOML config file")
	flag.Parse()

	cfg, err := fedcoord.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	ccfg := cfg.Coordinator

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := configureLogger(ccfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Starting coordinator", slog.String("grpc_addr", ccfg.GRPCAddr), slog.String("http_addr", ccfg.HTTPAddr))

	emitter, closeEmitter, err := newEmitter(ccfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("failed to set up events: %w", err)
	}
	defer closeEmitter()

	state := coordinator.NewState(ctx, logger,
		coordinator.WithCommandBuffer(ccfg.CommandBuffer),
		coordinator.WithRequestTimeout(ccfg.RequestTimeout),
		coordinator.WithJobEviction(ccfg.EvictFinishedJobs),
		coordinator.WithEmitter(emitter),
	)
	svc := coordinator.NewService(state, strategy.NewFedAvg(state, logger, emitter), logger)

	lis, err := net.Listen("tcp", ccfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ccfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer()
	hs := api.RegisterGRPC(grpcServer, svc, logger, ccfg.OutboundBuffer)

	httpServer := &http.Server{
		Addr:              ccfg.HTTPAddr,
		Handler:           api.MakeHandler(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", slog.String("addr", lis.Addr().String()))

		return grpcServer.Serve(lis)
	})

	if ccfg.HTTPAddr != "" {
		g.Go(func() error {
			logger.Info("HTTP server listening", slog.String("addr", ccfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down coordinator")
		hs.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down HTTP server", slog.Any("error", err))
		}
		grpcServer.Stop()

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("coordinator error: %w", err)
	}

	return nil
}

// newEmitter publishes lifecycle events to MQTT when a broker is configured.
func newEmitter(cfg fedcoord.MQTTConfig, logger *slog.Logger) (events.Emitter, func(), error) {
	if cfg.URL == "" {
		return events.NewNoopEmitter(), func() {}, nil
	}

	ps, err := mqtt.NewPubSub(mqtt.Config{
		URL:      cfg.URL,
		ID:       cfg.ClientID,
		Username: cfg.Username,
		Password: cfg.Password,
		QoS:      cfg.QoS,
		Timeout:  cfg.Timeout,
		CAPath:   cfg.CAPath,
		CertPath: cfg.CertPath,
		KeyPath:  cfg.KeyPath,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := ps.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from MQTT", slog.Any("error", err))
		}
	}

	return events.NewMQTTEmitter(ps, events.NewTopicBuilder(cfg.Topic)), closeFn, nil
}

func configureLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", level)
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(logHandler)
}
