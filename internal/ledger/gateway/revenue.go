package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/revenue"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

const epochsKey = "epochs"

func claimKey(epochID int64, claimant string) string {
	return fmt.Sprintf("claim:%d:%s", epochID, claimant)
}

func (g *Gateway) OpenEpoch(ctx context.Context, token string, periodStart time.Time) (*revenue.Epoch, bool, error) {
	e, replayed, err := once(ctx, g, "open_epoch", epochsKey, token, func(ctx context.Context) (*revenue.Epoch, error) {
		return g.revenue.OpenEpoch(ctx, periodStart)
	})
	if err == nil && !replayed {
		g.emit(events.EpochOpened, "", strconv.FormatInt(e.ID, 10), e)
	}
	return e, replayed, err
}

func (g *Gateway) CloseEpoch(ctx context.Context, token string, epochID int64, pool *decimal.Decimal, supply decimal.Decimal) (*revenue.Epoch, bool, error) {
	e, replayed, err := once(ctx, g, "close_epoch", epochsKey, token, func(ctx context.Context) (*revenue.Epoch, error) {
		return g.revenue.CloseEpoch(ctx, epochID, pool, supply)
	})
	if err == nil && !replayed {
		g.emit(events.EpochClosed, "", strconv.FormatInt(e.ID, 10), e)
	}
	return e, replayed, err
}

type ClaimInput struct {
	EpochID     int64
	ClaimantID  string
	Balance     decimal.Decimal
	Destination money.Destination
}

type RevenueClaim struct {
	Record *revenue.ClaimRecord `json:"record"`
	Payout *payout.Payout       `json:"payout,omitempty"`
}

// ClaimRevenue grava o ClaimRecord e o pagamento sob a chave (época, detentor).
// Um segundo claim do mesmo par falha com ErrAlreadyClaimed.
func (g *Gateway) ClaimRevenue(ctx context.Context, token string, in ClaimInput) (RevenueClaim, bool, error) {
	if err := validDestination(in.Destination); err != nil {
		return RevenueClaim{}, false, err
	}
	var created *payout.Payout
	res, replayed, err := once(ctx, g, "claim_revenue", claimKey(in.EpochID, in.ClaimantID), token, func(ctx context.Context) (RevenueClaim, error) {
		ref := payout.CorrelationID(payout.KindRevenueClaim, strconv.FormatInt(in.EpochID, 10), in.ClaimantID)
		rec, err := g.revenue.Claim(ctx, revenue.ClaimRequest{
			EpochID:         in.EpochID,
			ClaimantID:      in.ClaimantID,
			Balance:         in.Balance,
			Destination:     in.Destination,
			PayoutReference: ref,
		})
		if errors.Is(err, le.ErrAlreadyClaimed) {
			out, repaired, rerr := g.completeClaim(ctx, in, err)
			created = repaired
			return out, rerr
		}
		if err != nil {
			return RevenueClaim{}, err
		}
		p, isNew, err := g.ensurePayout(ctx, g.claimPayout(rec))
		if err != nil {
			return RevenueClaim{Record: rec}, err
		}
		if isNew {
			created = p
		}
		return RevenueClaim{Record: rec, Payout: p}, nil
	})
	if created != nil {
		g.dispatchAsync(created.CorrelationID)
	}
	if err == nil && !replayed {
		g.emit(events.RevenueClaimed, res.Record.ClaimantID, strconv.FormatInt(res.Record.EpochID, 10), res)
	}
	return res, replayed, err
}

// completeClaim cobre o caso de um ClaimRecord gravado cujo pagamento não foi: grava o
// pagamento e conclui. Com o pagamento já existente o claim é duplicado.
func (g *Gateway) completeClaim(ctx context.Context, in ClaimInput, claimErr error) (RevenueClaim, *payout.Payout, error) {
	rec, err := g.revenue.GetClaim(ctx, in.EpochID, in.ClaimantID)
	if err != nil {
		return RevenueClaim{}, nil, claimErr
	}
	if _, err := g.payouts.Get(ctx, rec.PayoutReference); !errors.Is(err, le.ErrNotFound) {
		return RevenueClaim{}, nil, claimErr
	}
	p, isNew, err := g.ensurePayout(ctx, g.claimPayout(rec))
	if err != nil {
		return RevenueClaim{}, nil, err
	}
	g.log.Warn("claim payout repaired", zap.Int64("epoch_id", rec.EpochID), zap.String("claimant", rec.ClaimantID))
	out := RevenueClaim{Record: rec, Payout: p}
	if !isNew {
		return out, nil, nil
	}
	return out, p, nil
}

func (g *Gateway) claimPayout(rec *revenue.ClaimRecord) *payout.Payout {
	subject := fmt.Sprintf("%d:%s", rec.EpochID, rec.ClaimantID)
	return g.newPayout(payout.KindRevenueClaim, subject, rec.ClaimantID, rec.Destination, rec.EntitlementAmount, g.cfg.RevenueCurrency, rec.PayoutReference)
}

func (g *Gateway) ComputeEntitlement(ctx context.Context, epochID int64, balance decimal.Decimal) (decimal.Decimal, error) {
	return g.revenue.ComputeEntitlement(ctx, epochID, balance)
}

func (g *Gateway) GetEpoch(ctx context.Context, id int64) (*revenue.Epoch, error) {
	return g.revenue.GetEpoch(ctx, id)
}

func (g *Gateway) CurrentEpoch(ctx context.Context) (*revenue.Epoch, error) {
	return g.revenue.CurrentEpoch(ctx)
}

func (g *Gateway) ListClaims(ctx context.Context, epochID int64) ([]*revenue.ClaimRecord, error) {
	return g.revenue.ListClaims(ctx, epochID)
}
