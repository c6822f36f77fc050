package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/consumer"
	httpapi "github.com/radieske/bet-settlement-ledger/internal/ledger-service/http"
	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/pubsub"
	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/ws"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/catalog"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/gateway"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/revenue"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/store/postgres"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/wager"
	"github.com/radieske/bet-settlement-ledger/internal/shared/cache"
	"github.com/radieske/bet-settlement-ledger/internal/shared/config"
	"github.com/radieske/bet-settlement-ledger/internal/shared/cronrunner"
	"github.com/radieske/bet-settlement-ledger/internal/shared/db"
	"github.com/radieske/bet-settlement-ledger/internal/shared/kafka"
	"github.com/radieske/bet-settlement-ledger/internal/shared/logger"
	"github.com/radieske/bet-settlement-ledger/internal/shared/metrics"
)

type stores struct {
	wagers  wager.Store
	stakes  stake.Store
	revenue revenue.Store
	payouts payout.Store
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("store", cfg.LedgerStore))

	// Persistência: Postgres em produção, memória para desenvolvimento local
	var pg *sql.DB
	st := stores{
		wagers:  wager.NewMemoryStore(),
		stakes:  stake.NewMemoryStore(),
		revenue: revenue.NewMemoryStore(),
		payouts: payout.NewMemoryStore(),
	}
	if cfg.LedgerStore == "postgres" {
		pg, err = db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := postgres.Migrate(ctx, pg); err != nil {
			log.Fatal("schema migration failed", zap.Error(err))
		}
		st = stores{
			wagers:  postgres.NewWagers(pg),
			stakes:  postgres.NewStakes(pg),
			revenue: postgres.NewRevenue(pg),
			payouts: postgres.NewPayouts(pg),
		}
		log.Info("postgres connected")
	} else {
		log.Warn("using in-memory ledger store; state is lost on restart")
	}

	// Redis: catálogo espelhado, cache de idempotência e pub/sub do /ws
	redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	instructions := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPayoutInstructions)
	defer instructions.Close()

	clk := clock.System{}
	broadcaster := pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel)

	wagers := wager.NewLedger(st.wagers, catalog.NewRedis(redisClient), clk, money.NewCurrencies(cfg.Currencies...), cfg.MaxLegs, log)
	stakes := stake.NewEngine(st.stakes, clk, stake.Config{
		MinPrincipal: cfg.StakeMinPrincipal,
		APY:          cfg.StakeAPY,
		Currency:     cfg.StakeCurrency,
	}, log)
	registry := revenue.NewRegistry(st.revenue, clk, cfg.HolderShare, log)

	gw := gateway.New(gateway.Deps{
		Wagers:      wagers,
		Stakes:      stakes,
		Revenue:     registry,
		Payouts:     st.payouts,
		Dispatcher:  payout.NewKafkaDispatcher(instructions),
		Idempotency: gateway.NewRedisIdempotency(redisClient, cfg.IdempotencyTTL),
		Notifier:    broadcaster,
		Metrics:     metrics.NewLedger(prometheus.DefaultRegisterer),
		Clock:       clk,
		Log:         log,
	}, gateway.Config{
		PayoutMaxAttempts: cfg.PayoutMaxAttempts,
		PayoutStaleAfter:  cfg.PayoutStaleAfter,
		DispatchTimeout:   cfg.DispatchTimeout,
		DefaultLockHours:  cfg.DefaultLockHours,
		RevenueCurrency:   cfg.RevenueCurrency,
	})

	// Consumers Kafka: transferências de entrada e resultados de pagamento
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_consumer_messages_total", Help: "mensagens consumidas"}, []string{"consumer"})
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_consumer_applied_total", Help: "mensagens aplicadas no ledger"}, []string{"consumer"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_consumer_errors_total", Help: "erros por consumer e fase"}, []string{"consumer", "phase"})
	prometheus.MustRegister(consumed, applied, errorsBy)

	processors := []*consumer.Processor{
		{Name: "transfer-confirmed", Topic: cfg.TopicTransferConfirmed, Handle: consumer.TransferConfirmed(gw)},
		{Name: "payout-results", Topic: cfg.TopicPayoutResults, Handle: consumer.PayoutResults(gw)},
	}
	for _, p := range processors {
		reader := kafka.NewReader(cfg.KafkaBrokers, p.Topic, "ledger-service-"+p.Name)
		defer reader.Close()
		name := p.Name
		p.Log = log
		p.Reader = reader
		p.OnConsumed = func() { consumed.WithLabelValues(name).Inc() }
		p.OnApplied = func() { applied.WithLabelValues(name).Inc() }
		p.OnError = func(phase string) { errorsBy.WithLabelValues(name, phase).Inc() }
		go func(p *consumer.Processor) {
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("consumer stopped", zap.String("consumer", p.Name), zap.Error(err))
			}
		}(p)
	}

	// Reconciliação periódica de pagamentos não confirmados
	runner := cronrunner.New(log, ctx)
	if _, err := runner.Add("payout-reconcile", cfg.ReconcileSchedule, time.Minute, func(ctx context.Context) error {
		_, err := gw.Reconcile(ctx)
		return err
	}); err != nil {
		log.Fatal("invalid reconcile schedule", zap.String("schedule", cfg.ReconcileSchedule), zap.Error(err))
	}
	runner.Start()
	defer runner.Stop()

	// Fan-out dos eventos do ledger para o /ws
	allowOrigin := func(*http.Request) bool { return true }
	hub := ws.NewHub(allowOrigin)
	ws.StartRedisSubscriber(ctx, redisClient, broadcaster.Channel(), hub, log)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if pg != nil {
			if err := pg.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health server started", zap.String("port", cfg.MetricsPort))

	api := httpapi.NewServer(log, gw, hub, httpapi.Options{
		AdminToken:  cfg.AdminToken,
		CORSOrigins: cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("ledger api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	gw.Drain() // despachos em andamento terminam antes de fechar o writer
	log.Info("ledger-service stopped")
}
