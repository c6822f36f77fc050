package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/payout-worker/chain"
	"github.com/radieske/bet-settlement-ledger/internal/payout-worker/worker"
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

	// Kafka consumer: instruções de pagamento emitidas pelo ledger
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicPayoutInstructions, "payout-worker")
	defer reader.Close()

	// Kafka producer: resultados para o ledger e, opcionalmente, DLQ
	resultsWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutResults)
	defer resultsWriter.Close()

	var dlq worker.Publisher
	if cfg.TopicPayoutInstructionsDLQ != "" {
		dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutInstructionsDLQ)
		defer dlqWriter.Close()
		dlq = worker.KafkaPublisher{W: dlqWriter}
	}

	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_worker_results_total",
		Help: "Resultados de pagamento publicados por status",
	}, []string{"status"})
	prometheus.MustRegister(results)

	w := &worker.Worker{
		Log:      log,
		Chain:    chain.NewClient(cfg.ChainURL),
		Results:  worker.KafkaPublisher{W: resultsWriter},
		DLQ:      dlq,
		Retries:  3,
		Backoff:  300 * time.Millisecond,
		OnResult: func(status string) { results.WithLabelValues(status).Inc() },
	}

	// Servidor HTTP para métricas Prometheus e healthcheck
	metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })
	log.Info("metrics/health", zap.String("port", cfg.MetricsPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("payout-worker started",
		zap.String("consume", cfg.TopicPayoutInstructions),
		zap.String("publish", cfg.TopicPayoutResults),
		zap.String("chain", cfg.ChainURL),
	)

	// Loop principal: consome instruções, chama a chain e publica o resultado antes do commit
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if err := w.Handle(ctx, msg.Value); err != nil {
			log.Error("process payout", zap.String("key", string(msg.Key)), zap.Error(err))
			// sem commit: a mensagem volta após o backoff
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Warn("kafka commit", zap.Error(err))
		}
	}
	log.Info("payout-worker stopped")
}
