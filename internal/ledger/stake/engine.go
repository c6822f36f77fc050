package stake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

type Store interface {
	Insert(ctx context.Context, p *Position) error
	Get(ctx context.Context, id string) (*Position, error)
	Update(ctx context.Context, p *Position) error
	ListByOwner(ctx context.Context, owner string) ([]*Position, error)
}

type Config struct {
	MinPrincipal decimal.Decimal
	APY          decimal.Decimal // taxa inicial para novas posições
	Currency     string
}

// Engine controla posições de stake e o acúmulo de recompensas por hora cheia.
type Engine struct {
	store Store
	clock clock.Clock
	log   *zap.Logger

	minPrincipal decimal.Decimal
	currency     string

	mu  sync.RWMutex
	apy decimal.Decimal
}

func NewEngine(store Store, clk clock.Clock, cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		store:        store,
		clock:        clk,
		log:          log,
		minPrincipal: cfg.MinPrincipal,
		currency:     strings.ToUpper(cfg.Currency),
		apy:          cfg.APY,
	}
}

// SetAPY altera a taxa aplicada a posições abertas daqui em diante.
func (e *Engine) SetAPY(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(10)) {
		return le.Validation("apy out of range: %s", rate)
	}
	e.mu.Lock()
	prev := e.apy
	e.apy = rate
	e.mu.Unlock()
	e.log.Info("stake apy changed", zap.String("from", prev.String()), zap.String("to", rate.String()))
	return nil
}

func (e *Engine) Currency() string { return e.currency }

func (e *Engine) CurrentAPY() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.apy
}

type OpenRequest struct {
	ID                string // opcional; ex.: correlation id da transferência confirmada
	Owner             string
	Principal         decimal.Decimal
	Currency          string // opcional; se informado deve ser a moeda de stake
	LockDurationHours int64
}

func (e *Engine) OpenStake(ctx context.Context, req OpenRequest) (*Position, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, le.Validation("owner required")
	}
	if !money.IsPositive(req.Principal) || req.Principal.LessThan(e.minPrincipal) {
		return nil, le.Validation("principal %s below minimum %s", req.Principal, e.minPrincipal)
	}
	if req.LockDurationHours <= 0 {
		return nil, le.Validation("lock duration must be positive")
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, e.currency) {
		return nil, le.Validation("unsupported stake currency %q", req.Currency)
	}

	if req.ID != "" {
		existing, err := e.store.Get(ctx, req.ID)
		if err == nil {
			if existing.Owner != req.Owner {
				return nil, le.Conflict("position %s belongs to another owner", req.ID)
			}
			return existing, nil
		}
		if !errors.Is(err, le.ErrNotFound) {
			return nil, err
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.clock.Now()
	p := &Position{
		ID:                    id,
		Owner:                 req.Owner,
		Principal:             money.Truncate(req.Principal),
		Currency:              e.currency,
		APYRate:               e.CurrentAPY(),
		LockDurationHours:     req.LockDurationHours,
		StakedAt:              now,
		LockEndsAt:            now.Add(time.Duration(req.LockDurationHours) * time.Hour),
		LastAccrualCheckpoint: now,
		ClaimedRewardsTotal:   decimal.Zero,
		Status:                StatusLocked,
	}
	if err := e.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	e.log.Info("stake opened",
		zap.String("position_id", p.ID),
		zap.String("owner", p.Owner),
		zap.String("principal", p.Principal.String()),
		zap.String("apy", p.APYRate.String()),
		zap.Int64("lock_hours", p.LockDurationHours),
	)
	return p, nil
}

// ComputeAccrued é puro: não altera a posição.
func (e *Engine) ComputeAccrued(ctx context.Context, positionID string, asOf time.Time) (decimal.Decimal, error) {
	p, err := e.store.Get(ctx, positionID)
	if err != nil {
		return decimal.Zero, err
	}
	amt, _ := p.Accrued(asOf)
	return amt, nil
}

// ClaimRewards paga o acumulado sem destravar o principal e move o checkpoint para asOf.
// A fração de hora em curso no momento do claim não é paga.
func (e *Engine) ClaimRewards(ctx context.Context, positionID string, asOf time.Time) (decimal.Decimal, *Position, error) {
	if err := e.checkAsOf(asOf); err != nil {
		return decimal.Zero, nil, err
	}
	p, err := e.store.Get(ctx, positionID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if p.Status == StatusClosed {
		return decimal.Zero, nil, le.Conflict("position %s is closed", positionID)
	}
	amt, hours := p.Accrued(asOf)
	if !money.IsPositive(amt) {
		return decimal.Zero, p, le.ErrNothingToClaim
	}

	p.LastAccrualCheckpoint = asOf
	p.ClaimedRewardsTotal = p.ClaimedRewardsTotal.Add(amt)
	p.Status = p.StatusAt(asOf)
	if err := e.store.Update(ctx, p); err != nil {
		return decimal.Zero, nil, err
	}
	e.log.Info("stake rewards claimed",
		zap.String("position_id", p.ID),
		zap.String("amount", amt.String()),
		zap.Int64("hours", hours),
	)
	return amt, p, nil
}

type Unstaked struct {
	Principal    decimal.Decimal `json:"principal"`
	FinalAccrued decimal.Decimal `json:"final_accrued"`
}

func (u Unstaked) Total() decimal.Decimal { return u.Principal.Add(u.FinalAccrued) }

// Unstake encerra a posição após o fim do lock, devolvendo principal e o acumulado restante
// numa única instrução de pagamento.
func (e *Engine) Unstake(ctx context.Context, positionID string, asOf time.Time) (Unstaked, *Position, error) {
	if err := e.checkAsOf(asOf); err != nil {
		return Unstaked{}, nil, err
	}
	p, err := e.store.Get(ctx, positionID)
	if err != nil {
		return Unstaked{}, nil, err
	}
	if p.Status == StatusClosed {
		return Unstaked{}, nil, le.Conflict("position %s is closed", positionID)
	}
	if asOf.Before(p.LockEndsAt) {
		return Unstaked{}, nil, le.ErrLockActive
	}

	amt, _ := p.Accrued(asOf)
	p.LastAccrualCheckpoint = asOf
	p.ClaimedRewardsTotal = p.ClaimedRewardsTotal.Add(amt)
	p.Status = StatusClosed
	closedAt := asOf
	p.ClosedAt = &closedAt
	if err := e.store.Update(ctx, p); err != nil {
		return Unstaked{}, nil, err
	}

	out := Unstaked{Principal: p.Principal, FinalAccrued: amt}
	e.log.Info("stake closed",
		zap.String("position_id", p.ID),
		zap.String("principal", out.Principal.String()),
		zap.String("final_accrued", out.FinalAccrued.String()),
	)
	return out, p, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*Position, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) ListByOwner(ctx context.Context, owner string) ([]*Position, error) {
	return e.store.ListByOwner(ctx, owner)
}

// checkAsOf impede pagar acúmulo de horas que ainda não passaram.
func (e *Engine) checkAsOf(asOf time.Time) error {
	if asOf.After(e.clock.Now()) {
		return le.Validation("as_of %s is in the future", asOf.Format(time.RFC3339))
	}
	return nil
}
