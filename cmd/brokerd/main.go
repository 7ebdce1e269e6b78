package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trogers1052/brokerage-ledger/internal/accounts"
	"github.com/trogers1052/brokerage-ledger/internal/api"
	"github.com/trogers1052/brokerage-ledger/internal/balance"
	"github.com/trogers1052/brokerage-ledger/internal/cache"
	"github.com/trogers1052/brokerage-ledger/internal/catalog"
	"github.com/trogers1052/brokerage-ledger/internal/config"
	"github.com/trogers1052/brokerage-ledger/internal/database"
	"github.com/trogers1052/brokerage-ledger/internal/engine"
	"github.com/trogers1052/brokerage-ledger/internal/events"
	"github.com/trogers1052/brokerage-ledger/internal/kafka"
	"github.com/trogers1052/brokerage-ledger/internal/ledger"
	"github.com/trogers1052/brokerage-ledger/internal/logging"
	"github.com/trogers1052/brokerage-ledger/internal/memstore"
	"github.com/trogers1052/brokerage-ledger/internal/portfolio"
	"github.com/trogers1052/brokerage-ledger/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(logging.Config{Level: "info", Format: "console"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info().Str("store", cfg.Store.Driver).Msg("Starting brokerage ledger")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer closeStore()

	// Optional price cache
	var priceCache catalog.PriceCache
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		priceCache = cache.NewRedisPriceCache(client, cfg.Ledger.PriceCacheTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Price cache enabled")
	}

	// Domain events go to Kafka when brokers are configured and are dropped otherwise
	var publisher events.Publisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		publisher = producer
	}

	cat := catalog.New(store, priceCache, log)
	reconciler := balance.NewReconciler(log)
	ledgerSvc := ledger.NewService(store, reconciler, publisher, cfg.Ledger.TransactionIDPrefix, log)
	revaluer := portfolio.NewRevaluer(store, cat, reconciler, publisher, log)
	eng := engine.New(store, ledgerSvc, reconciler, cat, publisher, engine.Config{
		OrderPrefix: cfg.Ledger.OrderNumberPrefix,
		RequireKYC:  cfg.Ledger.RequireKYC,
		Fees: engine.FeeSchedule{
			Flat: cfg.Ledger.ExecutionFeeFlat,
			Bps:  cfg.Ledger.ExecutionFeeBps,
		},
	}, log)

	if cfg.Kafka.Enabled() {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PricesTopic, cfg.Kafka.GroupID, cat, revaluer, log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Price consumer stopped")
			}
		}()
	}

	handler := api.NewHandler(api.Services{
		Engine:     eng,
		Ledger:     ledgerSvc,
		Balances:   balance.NewService(store, reconciler),
		Catalog:    cat,
		Accounts:   accounts.NewService(store, publisher, log),
		Revaluer:   revaluer,
		Portfolios: store,
	}, log)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("Server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		return memstore.New(cfg.Ledger.LockTimeout), func() {}, nil
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	db.SetLockTimeout(cfg.Ledger.LockTimeout)
	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}
