package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/fedcoord"
	"github.com/absmach/fedcoord/worker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const userAgent = "fedcoord-worker/0.1.0"

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
	wcfg := cfg.Worker

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := configureLogger(wcfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Starting worker", slog.String("coordinator_addr", wcfg.CoordinatorAddr))

	trainer, err := worker.NewLinearTrainer(worker.TrainerConfig{
		LearningRate: wcfg.LearningRate,
		BatchSize:    wcfg.BatchSize,
		Samples:      wcfg.Samples,
		Features:     wcfg.Features,
		Seed:         wcfg.Seed,
	}, logger)
	if err != nil {
		return fmt.Errorf("trainer initialization error: %w", err)
	}

	conn, err := grpc.NewClient(wcfg.CoordinatorAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(userAgent),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to coordinator: %w", err)
	}
	defer conn.Close()

	svc := worker.NewService(conn, trainer, wcfg.MaxConcurrent, logger)
	if err := svc.Run(ctx); err != nil {
		return fmt.Errorf("service run error: %w", err)
	}

	return nil
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
