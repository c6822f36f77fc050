package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/chain-simulator/chain"
	"github.com/radieske/bet-settlement-ledger/internal/shared/config"
	"github.com/radieske/bet-settlement-ledger/internal/shared/kafka"
	"github.com/radieske/bet-settlement-ledger/internal/shared/logger"
	"github.com/radieske/bet-settlement-ledger/internal/shared/metrics"
)

var (
	// Métricas Prometheus de transferências e depósitos simulados
	transfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_sim_transfers_total",
		Help: "Transferências de saída por resultado",
	}, []string{"status"})
	depositsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_sim_deposits_total",
		Help: "Depósitos de entrada por finalidade",
	}, []string{"purpose"})
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(transfersTotal, depositsTotal)

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTransferConfirmed)
	defer writer.Close()

	sim := chain.New(log, chain.KafkaPublisher{W: writer}, cfg.ChainFailureRate)
	sim.OnTransfer = func(status string) { transfersTotal.WithLabelValues(status).Inc() }
	sim.OnDeposit = func(purpose string) { depositsTotal.WithLabelValues(purpose).Inc() }

	// ==== MUX DE MÉTRICAS (/healthz, /metrics)
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })
	log.Info("chain simulator (metrics) running", zap.String("port", cfg.MetricsPort))

	// ==== Servidor público: /chain/transfer e /chain/deposit
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("chain simulator (public) running",
		zap.String("addr", srv.Addr),
		zap.String("paths", "/chain/transfer,/chain/deposit"),
		zap.Float64("failure_rate", cfg.ChainFailureRate),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("public server error", zap.Error(err))
	}
}
