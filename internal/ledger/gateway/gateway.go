package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/revenue"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/wager"
	"github.com/radieske/bet-settlement-ledger/internal/shared/metrics"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

// Notifier recebe os eventos do ledger (ex.: broadcast via Redis para o /ws).
type Notifier interface {
	Publish(ctx context.Context, ev events.LedgerEvent) error
}

type Config struct {
	PayoutMaxAttempts int
	PayoutStaleAfter  time.Duration // submitted sem resposta por mais que isso volta para a reconciliação
	DispatchTimeout   time.Duration
	DefaultLockHours  int64 // lock de stakes abertos por depósito sem duração explícita
	ReconcileBatch    int
	RevenueCurrency   string
}

type Deps struct {
	Wagers      *wager.Ledger
	Stakes      *stake.Engine
	Revenue     *revenue.Registry
	Payouts     payout.Store
	Dispatcher  payout.Dispatcher
	Idempotency IdempotencyStore
	Notifier    Notifier // opcional
	Metrics     *metrics.Ledger
	Clock       clock.Clock
	Log         *zap.Logger
}

// Gateway é o único ponto de escrita do ledger. Serializa operações por chave, deduplica
// retries pelo token de idempotência e despacha pagamentos fora do lock.
type Gateway struct {
	wagers     *wager.Ledger
	stakes     *stake.Engine
	revenue    *revenue.Registry
	payouts    payout.Store
	dispatcher payout.Dispatcher
	waiters    *payout.Waiters
	locks      *KeyLock
	idem       IdempotencyStore
	notifier   Notifier
	metrics    *metrics.Ledger
	clock      clock.Clock
	log        *zap.Logger
	cfg        Config

	inflight sync.WaitGroup
}

func New(d Deps, cfg Config) *Gateway {
	if cfg.PayoutMaxAttempts <= 0 {
		cfg.PayoutMaxAttempts = 5
	}
	if cfg.PayoutStaleAfter <= 0 {
		cfg.PayoutStaleAfter = 10 * time.Minute
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Second
	}
	if cfg.DefaultLockHours <= 0 {
		cfg.DefaultLockHours = 720
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 100
	}
	if cfg.RevenueCurrency == "" {
		cfg.RevenueCurrency = "USDC"
	}
	if d.Idempotency == nil {
		d.Idempotency = NewMemoryIdempotency()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Gateway{
		wagers:     d.Wagers,
		stakes:     d.Stakes,
		revenue:    d.Revenue,
		payouts:    d.Payouts,
		dispatcher: d.Dispatcher,
		waiters:    payout.NewWaiters(),
		locks:      NewKeyLock(),
		idem:       d.Idempotency,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		clock:      d.Clock,
		log:        d.Log,
		cfg:        cfg,
	}
}

// once executa fn sob o lock da chave, no máximo uma vez por token. Resultados de sucesso
// ficam no IdempotencyStore e são devolvidos em retries com replayed=true.
// fn roda com um contexto que não é cancelado pelo chamador: a transição gravada não volta atrás.
func once[T any](ctx context.Context, g *Gateway, op, key, token string, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if strings.TrimSpace(token) == "" {
		return zero, false, le.Validation("idempotency token required")
	}

	start := time.Now()
	unlock, err := g.locks.Lock(ctx, key)
	if err != nil {
		return zero, false, err
	}
	defer unlock()
	g.metrics.LockWait(time.Since(start))

	scope := op + "/" + key
	cached, ok, err := g.idem.Get(ctx, scope, token)
	if err != nil {
		return zero, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if ok {
		var out T
		if err := json.Unmarshal(cached, &out); err != nil {
			return zero, false, fmt.Errorf("decode cached result: %w", err)
		}
		g.metrics.Replay(op)
		return out, true, nil
	}

	out, err := fn(context.WithoutCancel(ctx))
	g.metrics.Op(op, resultLabel(err))
	if err != nil {
		return out, false, err
	}
	if b, merr := json.Marshal(out); merr == nil {
		if perr := g.idem.Put(context.WithoutCancel(ctx), scope, token, b); perr != nil {
			g.log.Warn("idempotency store failed", zap.String("op", op), zap.String("key", key), zap.Error(perr))
		}
	}
	return out, false, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return le.Code(err)
}

var idNamespace = uuid.MustParse("0b8e1f0c-7d52-5a4e-8a61-3c9f2d7e4b10")

// derivedID gera ids estáveis a partir do dono e do token, para que o replay após perda
// do cache não crie uma segunda entidade.
func derivedID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "|"))).String()
}

func (g *Gateway) newPayout(kind payout.Kind, subject, owner string, dest money.Destination, amount decimal.Decimal, currency, correlationID string) *payout.Payout {
	now := g.clock.Now()
	return &payout.Payout{
		CorrelationID: correlationID,
		Kind:          kind,
		SubjectID:     subject,
		Owner:         owner,
		Destination:   dest,
		Amount:        money.Truncate(amount),
		Currency:      currency,
		Status:        payout.StatusRecorded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ensurePayout grava o pagamento se ainda não existir. created=false devolve o registro existente.
func (g *Gateway) ensurePayout(ctx context.Context, p *payout.Payout) (*payout.Payout, bool, error) {
	existing, err := g.payouts.Get(ctx, p.CorrelationID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, le.ErrNotFound) {
		return nil, false, err
	}
	if err := g.payouts.Insert(ctx, p); err != nil {
		return nil, false, err
	}
	g.metrics.Payout(string(p.Kind), string(p.Status))
	g.log.Info("payout recorded",
		zap.String("correlation_id", p.CorrelationID),
		zap.String("kind", string(p.Kind)),
		zap.String("subject_id", p.SubjectID),
		zap.String("amount", p.Amount.String()),
	)
	return p, true, nil
}

func (g *Gateway) emit(typ, owner, subject string, data any) {
	if g.notifier == nil {
		return
	}
	ev := events.LedgerEvent{Type: typ, Owner: owner, SubjectID: subject, Data: data, Ts: g.clock.Now()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.notifier.Publish(ctx, ev); err != nil {
		g.log.Warn("ledger event publish failed", zap.String("type", typ), zap.Error(err))
	}
}

// Drain aguarda os despachos em andamento. Usado no shutdown e nos testes.
func (g *Gateway) Drain() {
	g.inflight.Wait()
}

func (g *Gateway) asOfOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return g.clock.Now()
	}
	return t.UTC()
}

func validDestination(d money.Destination) error {
	if d.Mode != "" && !d.Mode.Valid() {
		return le.Validation("invalid destination mode %q", d.Mode)
	}
	return nil
}
