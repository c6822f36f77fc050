package wager

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/catalog"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

// Store persiste apostas. Get e ListByOwner retornam cópias independentes.
type Store interface {
	Insert(ctx context.Context, w *Wager) error
	Get(ctx context.Context, id string) (*Wager, error)
	Update(ctx context.Context, w *Wager) error
	ListByOwner(ctx context.Context, owner string) ([]*Wager, error)
}

// Catalog informa se uma seleção aceita apostas e a odd corrente.
type Catalog interface {
	Lookup(ctx context.Context, marketID, selectionID string) (catalog.Quote, error)
}

// LegInput é uma seleção enviada pelo apostador. Odds zero assume a cotação do catálogo.
type LegInput struct {
	MarketID    string          `json:"market_id"`
	SelectionID string          `json:"selection_id"`
	Odds        decimal.Decimal `json:"odds"`
}

type PlaceRequest struct {
	ID          string // opcional; permite ids determinísticos por token de idempotência
	Owner       string
	Legs        []LegInput
	Stake       decimal.Decimal
	Currency    string
	Destination money.Destination
}

// Ledger registra apostas e aplica a liquidação seleção a seleção.
type Ledger struct {
	store      Store
	catalog    Catalog
	clock      clock.Clock
	currencies money.Currencies
	maxLegs    int
	log        *zap.Logger
}

func NewLedger(store Store, cat Catalog, clk clock.Clock, currencies money.Currencies, maxLegs int, log *zap.Logger) *Ledger {
	return &Ledger{store: store, catalog: cat, clock: clk, currencies: currencies, maxLegs: maxLegs, log: log}
}

var one = decimal.NewFromInt(1)

func (l *Ledger) PlaceWager(ctx context.Context, req PlaceRequest) (*Wager, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, le.Validation("owner required")
	}
	if len(req.Legs) == 0 {
		return nil, le.Validation("at least one leg required")
	}
	if l.maxLegs > 0 && len(req.Legs) > l.maxLegs {
		return nil, le.Validation("too many legs: %d > %d", len(req.Legs), l.maxLegs)
	}
	if !money.IsPositive(req.Stake) {
		return nil, le.Validation("stake must be positive")
	}
	if !l.currencies.Supports(req.Currency) {
		return nil, le.Validation("unsupported currency %q", req.Currency)
	}
	req.Destination = req.Destination.Resolve(req.Owner)
	if !req.Destination.Mode.Valid() {
		return nil, le.Validation("invalid destination mode %q", req.Destination.Mode)
	}

	if req.ID != "" {
		existing, err := l.store.Get(ctx, req.ID)
		if err == nil {
			if existing.Owner != req.Owner {
				return nil, le.Conflict("wager %s belongs to another owner", req.ID)
			}
			return existing, nil
		}
		if !errors.Is(err, le.ErrNotFound) {
			return nil, err
		}
	}

	legs := make([]Leg, 0, len(req.Legs))
	markets := make(map[string]struct{}, len(req.Legs))
	for i, in := range req.Legs {
		if in.MarketID == "" || in.SelectionID == "" {
			return nil, le.Validation("leg %d: market and selection required", i)
		}
		if _, dup := markets[in.MarketID]; dup {
			return nil, le.Validation("leg %d: market %s appears twice", i, in.MarketID)
		}
		markets[in.MarketID] = struct{}{}

		q, err := l.catalog.Lookup(ctx, in.MarketID, in.SelectionID)
		if errors.Is(err, catalog.ErrUnknownSelection) {
			return nil, le.Validation("leg %d: unknown selection %s/%s", i, in.MarketID, in.SelectionID)
		}
		if err != nil {
			return nil, err
		}
		if !q.Open {
			return nil, le.Validation("leg %d: %s/%s closed for wagering", i, in.MarketID, in.SelectionID)
		}

		odds := in.Odds
		if odds.IsZero() {
			odds = q.Odds
		} else if !q.Odds.IsZero() && !odds.Equal(q.Odds) {
			return nil, le.Conflict("leg %d: odds changed; current=%s", i, q.Odds)
		}
		if !odds.GreaterThan(one) {
			return nil, le.Validation("leg %d: odds must be greater than 1", i)
		}

		legs = append(legs, Leg{
			ID:          uuid.NewString(),
			MarketID:    in.MarketID,
			SelectionID: in.SelectionID,
			Odds:        odds,
			Status:      LegPending,
		})
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	w := &Wager{
		ID:          id,
		Owner:       req.Owner,
		Legs:        legs,
		Stake:       money.Truncate(req.Stake),
		Currency:    strings.ToUpper(req.Currency),
		Status:      StatusPending,
		Destination: req.Destination,
		PlacedAt:    l.clock.Now(),
	}
	w.recompute()

	if err := l.store.Insert(ctx, w); err != nil {
		return nil, err
	}
	l.log.Info("wager placed",
		zap.String("wager_id", w.ID),
		zap.String("owner", w.Owner),
		zap.Int("legs", len(w.Legs)),
		zap.String("combined_odds", w.CombinedOdds.String()),
	)
	return w, nil
}

// SettleLeg aplica o resultado de uma seleção. Reaplicar o mesmo resultado é no-op
// (changed=false); um resultado diferente é rejeitado sem alterar estado.
func (l *Ledger) SettleLeg(ctx context.Context, wagerID, legID string, outcome LegStatus) (w *Wager, changed bool, err error) {
	if outcome != LegWon && outcome != LegLost && outcome != LegVoid {
		return nil, false, le.Validation("invalid outcome %q", outcome)
	}
	w, err = l.store.Get(ctx, wagerID)
	if err != nil {
		return nil, false, err
	}
	leg, ok := w.Leg(legID)
	if !ok {
		return nil, false, le.NotFound("leg %s in wager %s", legID, wagerID)
	}
	if leg.Status.Terminal() {
		if leg.Status == outcome {
			return w, false, nil
		}
		return nil, false, le.Conflict("leg %s already settled as %s", legID, leg.Status)
	}

	now := l.clock.Now()
	leg.Status = outcome
	leg.SettledAt = &now
	if outcome == LegVoid {
		w.recompute()
	}

	// status terminal é imutável; a seleção ainda é registrada
	if w.Status == StatusPending {
		if next := w.deriveStatus(); next != StatusPending {
			w.Status = next
			w.SettledAt = &now
		}
	}

	if err := l.store.Update(ctx, w); err != nil {
		return nil, false, err
	}
	l.log.Info("leg settled",
		zap.String("wager_id", w.ID),
		zap.String("leg_id", legID),
		zap.String("outcome", string(outcome)),
		zap.String("wager_status", string(w.Status)),
	)
	return w, true, nil
}

// MarkPaidOut confirma o pagamento de uma aposta vencedora. Idempotente.
func (l *Ledger) MarkPaidOut(ctx context.Context, wagerID string) (*Wager, error) {
	w, err := l.store.Get(ctx, wagerID)
	if err != nil {
		return nil, err
	}
	switch w.Status {
	case StatusPaidOut:
		return w, nil
	case StatusWon:
	default:
		return nil, le.Conflict("wager %s is %s, not won", wagerID, w.Status)
	}
	w.Status = StatusPaidOut
	if err := l.store.Update(ctx, w); err != nil {
		return nil, err
	}
	l.log.Info("wager paid out", zap.String("wager_id", w.ID))
	return w, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*Wager, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) ListByOwner(ctx context.Context, owner string) ([]*Wager, error) {
	return l.store.ListByOwner(ctx, owner)
}
