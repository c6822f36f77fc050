package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

func stakeKey(id string) string { return "stake:" + id }

// openStake só é alcançado por uma transferência confirmada: o id da posição é o
// correlation id da transferência, que também serve de token.
func (g *Gateway) openStake(ctx context.Context, req stake.OpenRequest) (*stake.Position, bool, error) {
	p, replayed, err := once(ctx, g, "open_stake", ownerKey(req.Owner), req.ID, func(ctx context.Context) (*stake.Position, error) {
		return g.stakes.OpenStake(ctx, req)
	})
	if err == nil && !replayed {
		g.emit(events.StakeOpened, p.Owner, p.ID, p)
	}
	return p, replayed, err
}

type StakeClaim struct {
	Amount   decimal.Decimal `json:"amount"`
	Position *stake.Position `json:"position"`
	Payout   *payout.Payout  `json:"payout,omitempty"`
}

// ClaimStakeRewards paga o acumulado. Sem nada a pagar devolve valor zero com ErrNothingToClaim.
func (g *Gateway) ClaimStakeRewards(ctx context.Context, token, positionID string, asOf time.Time, dest money.Destination) (StakeClaim, bool, error) {
	if err := validDestination(dest); err != nil {
		return StakeClaim{}, false, err
	}
	asOf = g.asOfOrNow(asOf)
	var created *payout.Payout
	res, replayed, err := once(ctx, g, "claim_stake_rewards", stakeKey(positionID), token, func(ctx context.Context) (StakeClaim, error) {
		amt, pos, err := g.stakes.ClaimRewards(ctx, positionID, asOf)
		if errors.Is(err, le.ErrNothingToClaim) {
			return StakeClaim{Amount: decimal.Zero, Position: pos}, err
		}
		if err != nil {
			return StakeClaim{}, err
		}
		// o checkpoint novo identifica a janela paga
		corr := payout.CorrelationID(payout.KindStakeRewards, pos.ID, pos.LastAccrualCheckpoint.Format(time.RFC3339Nano))
		p, isNew, err := g.ensurePayout(ctx, g.newPayout(payout.KindStakeRewards, pos.ID, pos.Owner, dest.Resolve(pos.Owner), amt, pos.Currency, corr))
		if err != nil {
			return StakeClaim{}, err
		}
		if isNew {
			created = p
		}
		return StakeClaim{Amount: amt, Position: pos, Payout: p}, nil
	})
	if created != nil {
		g.dispatchAsync(created.CorrelationID)
	}
	if err == nil && !replayed {
		g.emit(events.StakeClaimed, res.Position.Owner, res.Position.ID, res)
	}
	return res, replayed, err
}

type StakeRelease struct {
	Principal    decimal.Decimal `json:"principal"`
	FinalAccrued decimal.Decimal `json:"final_accrued"`
	Total        decimal.Decimal `json:"total"`
	Position     *stake.Position `json:"position"`
	Payout       *payout.Payout  `json:"payout,omitempty"`
}

// Unstake devolve principal e acumulado restante em um único pagamento.
func (g *Gateway) Unstake(ctx context.Context, token, positionID string, asOf time.Time, dest money.Destination) (StakeRelease, bool, error) {
	if err := validDestination(dest); err != nil {
		return StakeRelease{}, false, err
	}
	asOf = g.asOfOrNow(asOf)
	var created *payout.Payout
	res, replayed, err := once(ctx, g, "unstake", stakeKey(positionID), token, func(ctx context.Context) (StakeRelease, error) {
		out, pos, err := g.stakes.Unstake(ctx, positionID, asOf)
		if err != nil {
			return StakeRelease{}, err
		}
		corr := payout.CorrelationID(payout.KindStakeUnstake, pos.ID)
		p, isNew, err := g.ensurePayout(ctx, g.newPayout(payout.KindStakeUnstake, pos.ID, pos.Owner, dest.Resolve(pos.Owner), out.Total(), pos.Currency, corr))
		if err != nil {
			return StakeRelease{}, err
		}
		if isNew {
			created = p
		}
		return StakeRelease{
			Principal:    out.Principal,
			FinalAccrued: out.FinalAccrued,
			Total:        out.Total(),
			Position:     pos,
			Payout:       p,
		}, nil
	})
	if created != nil {
		g.dispatchAsync(created.CorrelationID)
	}
	if err == nil && !replayed {
		g.emit(events.StakeClosed, res.Position.Owner, res.Position.ID, res)
	}
	return res, replayed, err
}

func (g *Gateway) SetAPY(ctx context.Context, token string, rate decimal.Decimal) (decimal.Decimal, bool, error) {
	return once(ctx, g, "set_apy", "apy", token, func(context.Context) (decimal.Decimal, error) {
		if err := g.stakes.SetAPY(rate); err != nil {
			return decimal.Zero, err
		}
		return rate, nil
	})
}

func (g *Gateway) CurrentAPY() decimal.Decimal { return g.stakes.CurrentAPY() }

func (g *Gateway) GetStake(ctx context.Context, id string) (*stake.Position, error) {
	p, err := g.stakes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = p.StatusAt(g.clock.Now())
	return p, nil
}

func (g *Gateway) ListStakes(ctx context.Context, owner string) ([]*stake.Position, error) {
	list, err := g.stakes.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := g.clock.Now()
	for _, p := range list {
		p.Status = p.StatusAt(now)
	}
	return list, nil
}

func (g *Gateway) ComputeAccrued(ctx context.Context, positionID string, asOf time.Time) (decimal.Decimal, error) {
	return g.stakes.ComputeAccrued(ctx, positionID, g.asOfOrNow(asOf))
}
