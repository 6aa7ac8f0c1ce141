package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/stock-reservation-engine/internal/config"
	inventoryapp "github.com/dmehra2102/stock-reservation-engine/internal/inventory/application"
	inventorygrpc "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/grpc"
	inventoryhttp "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/http"
	inventorykafka "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/kafka"
	inventorypg "github.com/dmehra2102/stock-reservation-engine/internal/inventory/infrastructure/postgres"
	orderapp "github.com/dmehra2102/stock-reservation-engine/internal/order/application"
	orderhttp "github.com/dmehra2102/stock-reservation-engine/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/stock-reservation-engine/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/stock-reservation-engine/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/httpapi"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/memory"
	"github.com/dmehra2102/stock-reservation-engine/internal/platform/postgres"
	"github.com/dmehra2102/stock-reservation-engine/pkg/idempotency"
	"github.com/dmehra2102/stock-reservation-engine/pkg/logging"
	"github.com/dmehra2102/stock-reservation-engine/pkg/outbox"
	"github.com/dmehra2102/stock-reservation-engine/pkg/shutdown"
	"github.com/dmehra2102/stock-reservation-engine/pkg/tracing"
)

type stores struct {
	stock  inventoryapp.StockRepository
	orders orderapp.OrderRepository
	outbox outbox.Store
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, "stock-service", cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer st.close()

	ledger := inventoryapp.NewLedger(log, st.stock, cfg.LockWait)
	orders := orderapp.NewService(log, st.orders, ledger, cfg.LockWait)
	gateway := orderapp.NewGateway(orders)

	var idem *idempotency.Store
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis ping failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		idem = idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	}

	// a nil *idempotency.Store must not become a non-nil interface
	var orderIdem orderhttp.Idempotency
	if idem != nil {
		orderIdem = idem
	}
	router := httpapi.NewRouter(log,
		orderhttp.NewHandler(log, orders, gateway, orderIdem).Register,
		inventoryhttp.NewHandler(log, ledger).Register,
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
	}

	gs := inventorygrpc.NewGRPCServer(log, inventorygrpc.NewServer(log, ledger))
	if err := inventorygrpc.Run(cfg.GRPCAddr, gs); err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	defer gs.GracefulStop()
	log.Info("grpc listening", "addr", cfg.GRPCAddr)

	if cfg.KafkaEnabled() {
		writer := orderkafka.NewEventWriter(cfg.KafkaBrokers)
		defer writer.Close()

		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, st.outbox, dispatch, "stock-service-"+uuid.NewString())
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()

		if idem != nil {
			consumer := inventorykafka.NewConsumer(log, cfg.KafkaBrokers, cfg.ReceiptsTopic, cfg.ConsumerGroup, ledger, idem)
			go func() {
				if err := consumer.Run(ctx); err != nil {
					log.Error("receipts consumer stopped", "err", err)
					cancel()
				}
			}()
		} else {
			log.Warn("receipts consumer disabled: it needs redis for offset deduplication")
		}
	} else {
		log.Warn("kafka disabled: outbox events stay in the store")
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("stock-service shutdown complete")
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		mem := memory.NewStore()
		log.Warn("using in-memory store: state is lost on restart")
		return stores{stock: mem, orders: mem, outbox: mem, close: func() {}}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		return stores{}, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	return stores{
		stock:  inventorypg.NewRepository(log, pool, cfg.LockWait),
		orders: orderpg.NewRepository(log, pool, cfg.LockWait),
		outbox: postgres.NewOutboxStore(log, pool),
		close:  pool.Close,
	}, nil
}
