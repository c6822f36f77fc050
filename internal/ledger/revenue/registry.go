package revenue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

// Store persiste épocas, créditos e claims. InsertClaim deve falhar com ErrAlreadyClaimed quando
// o par (epoch, claimant) já existe e InsertCredit com ErrDuplicateCredit para correlation id repetido.
// InsertCredit soma o valor na época do crédito na mesma transação; InsertEpoch de época aberta
// absorve os créditos pendentes e reflete a soma em e.CollectedAmount.
type Store interface {
	InsertEpoch(ctx context.Context, e *Epoch) error
	InsertCredit(ctx context.Context, c *Credit) error
	PendingCredits(ctx context.Context) ([]*Credit, error)
	UpdateEpoch(ctx context.Context, e *Epoch) error
	GetEpoch(ctx context.Context, id int64) (*Epoch, error)
	LatestEpoch(ctx context.Context) (*Epoch, error)
	InsertClaim(ctx context.Context, c *ClaimRecord) error
	GetClaim(ctx context.Context, epochID int64, claimantID string) (*ClaimRecord, error)
	ListClaims(ctx context.Context, epochID int64) ([]*ClaimRecord, error)
}

// Registry controla o ciclo de vida das épocas e garante no máximo um claim por detentor.
type Registry struct {
	store       Store
	clock       clock.Clock
	holderShare decimal.Decimal
	log         *zap.Logger
}

func NewRegistry(store Store, clk clock.Clock, holderShare decimal.Decimal, log *zap.Logger) *Registry {
	return &Registry{store: store, clock: clk, holderShare: holderShare, log: log}
}

// OpenEpoch abre a próxima época. periodStart zero assume o fim da anterior
// (ou o início da semana corrente na primeira época).
func (r *Registry) OpenEpoch(ctx context.Context, periodStart time.Time) (*Epoch, error) {
	prev, err := r.store.LatestEpoch(ctx)
	if err != nil && !errors.Is(err, le.ErrNotFound) {
		return nil, err
	}
	if prev != nil && prev.Status == StatusOpen {
		return nil, le.Conflict("epoch %d is still open", prev.ID)
	}

	var id int64 = 1
	if prev != nil {
		id = prev.ID + 1
		if periodStart.IsZero() {
			periodStart = prev.PeriodEnd
		}
		if !periodStart.Equal(prev.PeriodEnd) {
			return nil, le.Conflict("period start %s must follow previous end %s",
				periodStart.UTC().Format(time.RFC3339), prev.PeriodEnd.Format(time.RFC3339))
		}
	} else if periodStart.IsZero() {
		periodStart = clock.WeekStart(r.clock.Now())
	}

	start := periodStart.UTC()
	e := &Epoch{
		ID:                          id,
		PeriodStart:                 start,
		PeriodEnd:                   clock.EpochEnd(start),
		HolderShare:                 r.holderShare,
		CollectedAmount:             decimal.Zero,
		TotalPoolAmount:             decimal.Zero,
		SnapshotTotalEligibleSupply: decimal.Zero,
		Status:                      StatusOpen,
	}
	if err := r.store.InsertEpoch(ctx, e); err != nil {
		return nil, err
	}
	r.log.Info("epoch opened",
		zap.Int64("epoch_id", e.ID),
		zap.Time("period_start", e.PeriodStart),
		zap.Time("period_end", e.PeriodEnd),
		zap.String("carried_over", e.CollectedAmount.String()),
	)
	return e, nil
}

// RecordRevenue credita receita confirmada na época aberta. Sem época aberta o crédito
// fica pendente e entra na próxima OpenEpoch. Correlation id repetido devolve ErrDuplicateCredit.
func (r *Registry) RecordRevenue(ctx context.Context, correlationID string, amount decimal.Decimal) (*Credit, error) {
	if strings.TrimSpace(correlationID) == "" {
		return nil, le.Validation("correlation id required")
	}
	if !money.IsPositive(amount) {
		return nil, le.Validation("revenue amount must be positive")
	}
	c := &Credit{
		CorrelationID: correlationID,
		Amount:        money.Truncate(amount),
		ReceivedAt:    r.clock.Now(),
	}
	e, err := r.CurrentEpoch(ctx)
	switch {
	case err == nil:
		c.EpochID = e.ID
	case errors.Is(err, le.ErrNotFound):
		// sem época aberta: pendente
	default:
		return nil, err
	}
	if err := r.store.InsertCredit(ctx, c); err != nil {
		return nil, err
	}
	if c.Pending() {
		r.log.Warn("revenue buffered until next epoch",
			zap.String("correlation_id", c.CorrelationID),
			zap.String("amount", c.Amount.String()),
		)
		return c, nil
	}
	r.log.Info("revenue recorded",
		zap.Int64("epoch_id", c.EpochID),
		zap.String("correlation_id", c.CorrelationID),
		zap.String("amount", c.Amount.String()),
	)
	return c, nil
}

// PendingCredits lista a receita recebida sem época aberta.
func (r *Registry) PendingCredits(ctx context.Context) ([]*Credit, error) {
	return r.store.PendingCredits(ctx)
}

// CloseEpoch congela pool e denominador do snapshot. Pool nil usa o valor coletado.
func (r *Registry) CloseEpoch(ctx context.Context, epochID int64, pool *decimal.Decimal, supply decimal.Decimal) (*Epoch, error) {
	if pool != nil && pool.IsNegative() {
		return nil, le.Validation("pool must not be negative")
	}
	if !money.IsPositive(supply) {
		return nil, le.Validation("eligible supply must be positive")
	}
	e, err := r.store.GetEpoch(ctx, epochID)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusClosed {
		return nil, le.Conflict("epoch %d already closed", epochID)
	}
	now := r.clock.Now()
	if now.Before(e.PeriodEnd) {
		return nil, le.Conflict("epoch %d runs until %s", epochID, e.PeriodEnd.Format(time.RFC3339))
	}

	total := e.CollectedAmount
	if pool != nil {
		total = *pool
	}
	e.TotalPoolAmount = money.Truncate(total)
	e.SnapshotTotalEligibleSupply = supply
	e.Status = StatusClosed
	e.ClosedAt = &now
	if err := r.store.UpdateEpoch(ctx, e); err != nil {
		return nil, err
	}
	r.log.Info("epoch closed",
		zap.Int64("epoch_id", e.ID),
		zap.String("pool", e.TotalPoolAmount.String()),
		zap.String("supply", e.SnapshotTotalEligibleSupply.String()),
	)
	return e, nil
}

// ComputeEntitlement é puro; épocas abertas não têm pool definido ainda.
func (r *Registry) ComputeEntitlement(ctx context.Context, epochID int64, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, le.Validation("balance must not be negative")
	}
	e, err := r.store.GetEpoch(ctx, epochID)
	if err != nil {
		return decimal.Zero, err
	}
	if e.Status != StatusClosed {
		return decimal.Zero, le.ErrEpochNotClosed
	}
	return e.Entitlement(balance), nil
}

type ClaimRequest struct {
	EpochID         int64
	ClaimantID      string
	Balance         decimal.Decimal
	Destination     money.Destination
	PayoutReference string
}

// Claim grava o ClaimRecord antes de devolvê-lo; o pagamento sai a partir do registro.
// A verificação de duplicidade depende da serialização por chave e da chave única do store.
func (r *Registry) Claim(ctx context.Context, req ClaimRequest) (*ClaimRecord, error) {
	if strings.TrimSpace(req.ClaimantID) == "" {
		return nil, le.Validation("claimant required")
	}
	if !money.IsPositive(req.Balance) {
		return nil, le.Validation("balance must be positive")
	}
	dest := req.Destination.Resolve(req.ClaimantID)
	if !dest.Mode.Valid() {
		return nil, le.Validation("invalid destination mode %q", dest.Mode)
	}

	e, err := r.store.GetEpoch(ctx, req.EpochID)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusClosed {
		return nil, le.ErrEpochNotClosed
	}
	if req.Balance.GreaterThan(e.SnapshotTotalEligibleSupply) {
		return nil, le.Validation("balance %s exceeds eligible supply %s", req.Balance, e.SnapshotTotalEligibleSupply)
	}

	if _, err := r.store.GetClaim(ctx, req.EpochID, req.ClaimantID); err == nil {
		return nil, le.ErrAlreadyClaimed
	} else if !errors.Is(err, le.ErrNotFound) {
		return nil, err
	}

	amt := e.Entitlement(req.Balance)
	if !money.IsPositive(amt) {
		return nil, le.ErrNothingToClaim
	}
	rec := &ClaimRecord{
		EpochID:           req.EpochID,
		ClaimantID:        req.ClaimantID,
		BalanceAtSnapshot: req.Balance,
		EntitlementAmount: amt,
		Destination:       dest,
		ClaimedAt:         r.clock.Now(),
		PayoutReference:   req.PayoutReference,
	}
	if err := r.store.InsertClaim(ctx, rec); err != nil {
		return nil, err
	}
	r.log.Info("revenue claimed",
		zap.Int64("epoch_id", rec.EpochID),
		zap.String("claimant", rec.ClaimantID),
		zap.String("amount", rec.EntitlementAmount.String()),
		zap.String("payout_ref", rec.PayoutReference),
	)
	return rec, nil
}

func (r *Registry) GetEpoch(ctx context.Context, id int64) (*Epoch, error) {
	return r.store.GetEpoch(ctx, id)
}

// CurrentEpoch devolve a época aberta, se houver.
func (r *Registry) CurrentEpoch(ctx context.Context) (*Epoch, error) {
	e, err := r.store.LatestEpoch(ctx)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusOpen {
		return nil, le.NotFound("no open epoch")
	}
	return e, nil
}

func (r *Registry) GetClaim(ctx context.Context, epochID int64, claimantID string) (*ClaimRecord, error) {
	return r.store.GetClaim(ctx, epochID, claimantID)
}

func (r *Registry) ListClaims(ctx context.Context, epochID int64) ([]*ClaimRecord, error) {
	if _, err := r.store.GetEpoch(ctx, epochID); err != nil {
		return nil, err
	}
	return r.store.ListClaims(ctx, epochID)
}
