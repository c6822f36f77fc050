package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/dto"
	"github.com/radieske/bet-settlement-ledger/internal/ledger-service/ws"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/gateway"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerAdminToken     = "X-Admin-Token"
	headerReplayed       = "Idempotent-Replayed"
)

type Options struct {
	AdminToken  string        // vazio desabilita as rotas administrativas
	CORSOrigins []string
	MaxWait     time.Duration // teto do ?wait= em GET /payouts/{id}
}

// Server expõe o ledger via REST (/v1) e o stream de eventos (/ws)
type Server struct {
	log  *zap.Logger
	gw   *gateway.Gateway
	hub  *ws.Hub
	opts Options
}

func NewServer(log *zap.Logger, gw *gateway.Gateway, hub *ws.Hub, opts Options) *Server {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{log: log, gw: gw, hub: hub, opts: opts}
}

// Router retorna o roteador HTTP com os endpoints REST
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", headerIdempotencyKey, headerAdminToken},
		ExposedHeaders: []string{headerReplayed},
		MaxAge:         300,
	}))

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Route("/v1", func(r chi.Router) {
		// Apostas
		r.Get("/wagers", s.listWagers) // ?owner=
		r.Get("/wagers/{id}", s.getWager)
		r.With(requireIdempotencyKey).Post("/wagers", s.placeWager)
		r.With(s.requireAdmin, requireIdempotencyKey).Post("/wagers/{id}/legs/{legId}/settle", s.settleLeg)

		// Stakes; posições só nascem de depósito confirmado na chain
		r.Get("/stakes", s.listStakes) // ?owner=
		r.Get("/stakes/apy", s.getAPY)
		r.With(s.requireAdmin, requireIdempotencyKey).Put("/stakes/apy", s.setAPY)
		r.Get("/stakes/{id}", s.getStake)
		r.Get("/stakes/{id}/accrued", s.getAccrued) // ?as_of=
		r.Group(func(r chi.Router) {
			r.Use(requireIdempotencyKey)
			r.Post("/stakes/{id}/claim", s.claimStakeRewards)
			r.Post("/stakes/{id}/unstake", s.unstake)
		})

		// Épocas de receita
		r.Get("/epochs/current", s.currentEpoch)
		r.Get("/epochs/{id}", s.getEpoch)
		r.Get("/epochs/{id}/entitlement", s.getEntitlement) // ?balance=
		r.Get("/epochs/{id}/claims", s.listClaims)
		r.With(requireIdempotencyKey).Post("/epochs/{id}/claims", s.claimRevenue)
		r.With(s.requireAdmin, requireIdempotencyKey).Post("/epochs", s.openEpoch)
		r.With(s.requireAdmin, requireIdempotencyKey).Post("/epochs/{id}/close", s.closeEpoch)

		// Pagamentos
		r.Get("/payouts/{id}", s.getPayout) // ?wait=10s
	})
	return r
}

func requireIdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(headerIdempotencyKey)) == "" {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error: headerIdempotencyKey + " header required",
				Code:  le.Code(le.ErrValidation),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" || r.Header.Get(headerAdminToken) != s.opts.AdminToken {
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "admin token required", Code: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, status int, replayed bool, v any) {
	if replayed {
		w.Header().Set(headerReplayed, "true")
	}
	writeJSON(w, status, v)
}

// writeError traduz a taxonomia do ledger para status HTTP
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, le.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, le.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, le.ErrAlreadyClaimed), errors.Is(err, le.ErrLockActive),
		errors.Is(err, le.ErrEpochNotClosed), errors.Is(err, le.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, le.ErrExternalTransferFailed):
		status = http.StatusBadGateway
	}
	code := le.Code(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Code: code})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return le.Validation("bad json: %v", err)
	}
	return nil
}

// decodeOptional aceita corpo vazio.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return le.Validation("bad json: %v", err)
}

func token(r *http.Request) string { return r.Header.Get(headerIdempotencyKey) }

func epochParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, le.Validation("invalid epoch id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// timeQuery lê um instante RFC3339 opcional da query string.
func timeQuery(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, le.Validation("invalid %s: %v", name, err)
	}
	return t, nil
}

func ownerQuery(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		return "", le.Validation("owner query parameter required")
	}
	return owner, nil
}
