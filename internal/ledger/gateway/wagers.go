package gateway

import (
	"context"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/wager"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

func wagerKey(id string) string { return "wager:" + id }
func ownerKey(id string) string { return "owner:" + id }

func (g *Gateway) PlaceWager(ctx context.Context, token string, req wager.PlaceRequest) (*wager.Wager, bool, error) {
	if req.ID == "" && token != "" {
		req.ID = derivedID("wager", req.Owner, token)
	}
	w, replayed, err := once(ctx, g, "place_wager", ownerKey(req.Owner), token, func(ctx context.Context) (*wager.Wager, error) {
		return g.wagers.PlaceWager(ctx, req)
	})
	if err == nil && !replayed {
		g.emit(events.WagerPlaced, w.Owner, w.ID, w)
	}
	return w, replayed, err
}

type Settlement struct {
	Wager   *wager.Wager   `json:"wager"`
	Changed bool           `json:"changed"`
	Payout  *payout.Payout `json:"payout,omitempty"`
}

// SettleLeg aplica o resultado e, se a aposta fechou com valor a pagar, grava o pagamento
// sob o mesmo lock. O despacho acontece depois da liberação da chave.
func (g *Gateway) SettleLeg(ctx context.Context, token, wagerID, legID string, outcome wager.LegStatus) (Settlement, bool, error) {
	var created *payout.Payout
	res, replayed, err := once(ctx, g, "settle_leg", wagerKey(wagerID), token, func(ctx context.Context) (Settlement, error) {
		w, changed, err := g.wagers.SettleLeg(ctx, wagerID, legID, outcome)
		if err != nil {
			return Settlement{}, err
		}
		out := Settlement{Wager: w, Changed: changed}
		p, isNew, err := g.settlementPayout(ctx, w)
		if err != nil {
			return out, err
		}
		out.Payout = p
		if isNew {
			created = p
		}
		return out, nil
	})
	if created != nil {
		g.dispatchAsync(created.CorrelationID)
	}
	if err == nil && !replayed && res.Changed {
		g.emit(events.WagerSettled, res.Wager.Owner, res.Wager.ID, res.Wager)
	}
	return res, replayed, err
}

// settlementPayout também repara uma liquidação cujo pagamento não chegou a ser gravado.
func (g *Gateway) settlementPayout(ctx context.Context, w *wager.Wager) (*payout.Payout, bool, error) {
	amount := w.SettlementAmount()
	if !money.IsPositive(amount) {
		return nil, false, nil
	}
	kind := payout.KindWagerPayout
	if w.Status == wager.StatusVoided {
		kind = payout.KindWagerRefund
	}
	p := g.newPayout(kind, w.ID, w.Owner, w.Destination, amount, w.Currency, payout.CorrelationID(kind, w.ID))
	return g.ensurePayout(ctx, p)
}

func (g *Gateway) GetWager(ctx context.Context, id string) (*wager.Wager, error) {
	return g.wagers.Get(ctx, id)
}

func (g *Gateway) ListWagers(ctx context.Context, owner string) ([]*wager.Wager, error) {
	return g.wagers.ListByOwner(ctx, owner)
}

func (g *Gateway) markPaidOut(ctx context.Context, wagerID string) error {
	unlock, err := g.locks.Lock(ctx, wagerKey(wagerID))
	if err != nil {
		return err
	}
	defer unlock()
	w, err := g.wagers.MarkPaidOut(ctx, wagerID)
	if err != nil {
		return err
	}
	g.emit(events.WagerSettled, w.Owner, w.ID, w)
	return nil
}
