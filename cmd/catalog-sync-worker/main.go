package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/catalog-sync/consumer"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/catalog"
	"github.com/radieske/bet-settlement-ledger/internal/shared/cache"
	"github.com/radieske/bet-settlement-ledger/internal/shared/config"
	"github.com/radieske/bet-settlement-ledger/internal/shared/kafka"
	"github.com/radieske/bet-settlement-ledger/internal/shared/logger"
	"github.com/radieske/bet-settlement-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Configura o consumer Kafka (consumer group catalog-sync)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMarketStatus, "catalog-sync")
	defer reader.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_sync_messages_consumed_total", Help: "mensagens consumidas"})
	stored := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_sync_redis_writes_total", Help: "seleções gravadas no espelho"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "catalog_sync_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, stored, errorsBy)

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Store:      catalog.NewRedis(redisClient),
		OnConsumed: func() { consumed.Inc() },
		OnStored:   func() { stored.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	log.Info("catalog-sync started", zap.String("topic", cfg.TopicMarketStatus))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("catalog-sync stopped")
}
