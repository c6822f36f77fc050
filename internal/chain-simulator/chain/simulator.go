package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/chain-simulator/dto"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

var ErrInvalid = errors.New("invalid request")

// Publisher entrega o evento de transferência confirmada ao ledger.
type Publisher interface {
	PublishTransfer(ctx context.Context, ev events.TransferConfirmed) error
}

// Simulator imita a chain/carteira: pagamentos de saída idempotentes por correlation id
// e depósitos de entrada que viram eventos transfer_confirmed.
type Simulator struct {
	log         *zap.Logger
	pub         Publisher
	failureRate float64

	mu        sync.Mutex
	rnd       func() float64
	confirmed map[string]dto.TransferResp

	OnTransfer func(status string) // métricas
	OnDeposit  func(purpose string) // métricas
}

func New(log *zap.Logger, pub Publisher, failureRate float64) *Simulator {
	return &Simulator{
		log:         log,
		pub:         pub,
		failureRate: failureRate,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())).Float64,
		confirmed:   make(map[string]dto.TransferResp),
	}
}

func txRef(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "0x" + hex.EncodeToString(sum[:16])
}

// Transfer confirma ou rejeita um pagamento. Uma transferência confirmada é devolvida
// igual em chamadas repetidas; rejeições podem ser tentadas de novo.
func (s *Simulator) Transfer(_ context.Context, req dto.TransferReq) (dto.TransferResp, error) {
	if req.CorrelationID == "" || strings.TrimSpace(req.Destination) == "" || !req.Amount.IsPositive() {
		return dto.TransferResp{}, ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if resp, ok := s.confirmed[req.CorrelationID]; ok {
		s.observeTransfer("replayed")
		return resp, nil
	}
	if s.rnd() < s.failureRate {
		s.observeTransfer("rejected")
		s.log.Info("transfer rejected", zap.String("correlation_id", req.CorrelationID))
		return dto.TransferResp{Status: dto.StatusRejected, Reason: "insufficient_liquidity_mock"}, nil
	}
	resp := dto.TransferResp{Status: dto.StatusConfirmed, TxRef: txRef(req.CorrelationID)}
	s.confirmed[req.CorrelationID] = resp
	s.observeTransfer("confirmed")
	s.log.Info("transfer confirmed",
		zap.String("correlation_id", req.CorrelationID),
		zap.String("mode", req.Mode),
		zap.String("destination", req.Destination),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
	)
	return resp, nil
}

// Deposit registra uma transferência de entrada e publica transfer_confirmed.
func (s *Simulator) Deposit(ctx context.Context, req dto.DepositReq) (dto.DepositResp, error) {
	purpose := strings.ToLower(req.Purpose)
	if purpose != events.PurposeStake && purpose != events.PurposeRevenue {
		return dto.DepositResp{}, ErrInvalid
	}
	if strings.TrimSpace(req.From) == "" || !req.Amount.IsPositive() {
		return dto.DepositResp{}, ErrInvalid
	}
	corr := uuid.NewString()
	resp := dto.DepositResp{CorrelationID: corr, TxRef: txRef("deposit:" + corr)}
	ev := events.TransferConfirmed{
		CorrelationID:     corr,
		Purpose:           purpose,
		From:              req.From,
		Destination:       "platform",
		Amount:            req.Amount,
		Currency:          req.Currency,
		LockDurationHours: req.LockDurationHours,
		TxRef:             resp.TxRef,
		Ts:                time.Now().UTC(),
	}
	if err := s.pub.PublishTransfer(ctx, ev); err != nil {
		return dto.DepositResp{}, err
	}
	if s.OnDeposit != nil {
		s.OnDeposit(purpose)
	}
	s.log.Info("deposit confirmed", zap.String("correlation_id", corr), zap.String("purpose", purpose), zap.String("from", req.From))
	return resp, nil
}

func (s *Simulator) observeTransfer(status string) {
	if s.OnTransfer != nil {
		s.OnTransfer(status)
	}
}

// Handler expõe /chain/transfer e /chain/deposit
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chain/transfer", func(w http.ResponseWriter, r *http.Request) {
		var req dto.TransferReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp, err := s.Transfer(r.Context(), req)
		writeResult(w, resp, err)
	})
	mux.HandleFunc("POST /chain/deposit", func(w http.ResponseWriter, r *http.Request) {
		var req dto.DepositReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp, err := s.Deposit(r.Context(), req)
		writeResult(w, resp, err)
	})
	return mux
}

func writeResult(w http.ResponseWriter, v any, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
