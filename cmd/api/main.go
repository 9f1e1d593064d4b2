package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-cart-orders/internal/cart"
	"github.com/ariefcatur/go-cart-orders/internal/config"
	"github.com/ariefcatur/go-cart-orders/internal/domain"
	"github.com/ariefcatur/go-cart-orders/internal/events"
	"github.com/ariefcatur/go-cart-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-cart-orders/internal/kafka"
	"github.com/ariefcatur/go-cart-orders/internal/orders"
	"github.com/ariefcatur/go-cart-orders/internal/postgres"
	"github.com/ariefcatur/go-cart-orders/internal/redisx"
	"github.com/ariefcatur/go-cart-orders/internal/store"
	"github.com/ariefcatur/go-cart-orders/internal/users"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	policy, err := domain.PolicyByName(cfg.StatusPolicy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var st store.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := store.NewMemoryStore()
		seedCatalog(mem)
		st = mem
		slog.Info("using in-memory store")
	default:
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
				return err
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolConfig{
			MaxConns: int32(cfg.PGMaxConns),
			MinConns: int32(cfg.PGMinConns),
			AppName:  cfg.ServiceName,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		st = postgres.NewStore(db)
	}

	// Redis
	var cache redisx.Cache = redisx.NopCache{}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, continuing without cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			cache = redisx.NewJSONCache(rdb)
		}
	}

	// Kafka
	var pub events.Publisher = events.Discard
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024)
		prod.Start(context.Background())
		pub = &kafkax.EventPublisher{Producer: prod, Service: cfg.ServiceName}
	}

	router := httpx.NewRouter(cfg.RequestTimeout)
	(&httpx.CartHandler{Carts: cart.NewService(st, pub)}).Register(router)
	(&httpx.OrdersHandler{Orders: orders.NewService(st, pub,
		orders.WithCache(cache, cfg.CacheTTL),
		orders.WithPolicy(policy),
	)}).Register(router)
	(&httpx.UsersHandler{History: users.NewHistoryReader(st, cache, cfg.CacheTTL)}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if prod != nil {
			prod.Close() // flush pending events
			prod.WaitClosed()
		}
		return err
	})
	return g.Wait()
}

// seedCatalog mirrors the seed migration so the memory driver starts with the same data.
func seedCatalog(m *store.MemoryStore) {
	m.PutUser(domain.User{ID: 1, Name: "Alice Example", Email: "alice@example.com", Address: "1 Market Street"})
	m.PutUser(domain.User{ID: 2, Name: "Bob Example", Email: "bob@example.com", Address: "22 Harbor Road"})
	m.PutProduct(domain.Product{ID: 1, Name: "Espresso Beans 1kg", Description: "Dark roast, whole bean", Price: decimal.RequireFromString("24.50"), Stock: 40})
	m.PutProduct(domain.Product{ID: 2, Name: "Pour-over Kettle", Description: "Gooseneck, 1L", Price: decimal.RequireFromString("39.90"), Stock: 15})
	m.PutProduct(domain.Product{ID: 3, Name: "Ceramic Mug", Description: "350ml, matte black", Price: decimal.RequireFromString("9.00"), Stock: 120})
}
