package main

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/shared/config"
	"github.com/radieske/bet-settlement-ledger/internal/shared/logger"
)

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// targets
	ledger, err := rp(cfg.LedgerURL)
	if err != nil {
		log.Fatal("invalid ledger url", zap.String("url", cfg.LedgerURL), zap.Error(err))
	}
	chainSim, err := rp(cfg.ChainURL)
	if err != nil {
		log.Fatal("invalid chain url", zap.String("url", cfg.ChainURL), zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Admin-Token"},
		ExposedHeaders: []string{"Idempotent-Replayed"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ledger (ex.: /api/ledger/v1/* -> ledger-service, inclusive /ws)
	r.Handle("/api/ledger/*", http.StripPrefix("/api/ledger", ledger))

	// depósitos simulados (ex.: /api/chain/chain/deposit -> chain-simulator)
	r.Handle("/api/chain/*", http.StripPrefix("/api/chain", chainSim))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("api-gateway listening", zap.String("addr", srv.Addr), zap.String("ledger", cfg.LedgerURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
