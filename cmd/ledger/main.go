package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-cart-orders/internal/config"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	kafkax "github.com/ariefcatur/go-cart-orders/internal/kafka"
	"github.com/ariefcatur/go-cart-orders/internal/ledger"
	"github.com/ariefcatur/go-cart-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("ledger exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		return errors.New("ledger needs both KAFKA_BROKERS and REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	svc := &ledger.Service{Redis: rdb, Name: "ledger"}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.LedgerGroup, events.ReservationTopics, cfg.LedgerWorkers)

	slog.Info("ledger consumer started",
		"group", cfg.LedgerGroup,
		"topics", events.ReservationTopics,
		"workers", cfg.LedgerWorkers,
	)
	// Start returns after in-flight messages finish once ctx is cancelled
	if err := cons.Start(ctx, svc.HandleEvent); err != nil {
		return err
	}
	slog.Info("ledger consumer stopped")
	return nil
}
