package wager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/catalog"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(t *testing.T) (*Ledger, *catalog.Static) {
	t.Helper()
	cat := catalog.NewStatic()
	for _, m := range []string{"M1", "M2", "M3", "M4"} {
		cat.Set(m, "home", catalog.Quote{Open: true})
	}
	clk := clock.NewManual(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	l := NewLedger(NewMemoryStore(), cat, clk, money.NewCurrencies("USDC", "ETH"), 10, zap.NewNop())
	return l, cat
}

func parlay(t *testing.T, l *Ledger, odds ...string) *Wager {
	t.Helper()
	legs := make([]LegInput, len(odds))
	for i, o := range odds {
		legs[i] = LegInput{MarketID: []string{"M1", "M2", "M3", "M4"}[i], SelectionID: "home", Odds: d(o)}
	}
	w, err := l.PlaceWager(context.Background(), PlaceRequest{Owner: "alice", Legs: legs, Stake: d("10"), Currency: "usdc"})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	return w
}

func TestPlaceWager_ThreeLegParlay(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.50", "2.00", "1.80")

	if !w.CombinedOdds.Equal(d("5.4")) {
		t.Fatalf("combined=%s want=5.4", w.CombinedOdds)
	}
	if !w.PotentialPayout.Equal(d("54")) {
		t.Fatalf("payout=%s want=54", w.PotentialPayout)
	}
	if w.Status != StatusPending || w.Currency != "USDC" {
		t.Fatalf("status=%s currency=%s", w.Status, w.Currency)
	}
	if w.Destination.Mode != money.ModeWallet || w.Destination.Address != "alice" {
		t.Fatalf("destination=%+v", w.Destination)
	}
}

func TestPlaceWager_SingleLegUsesLegOdds(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "2.25")
	if !w.CombinedOdds.Equal(d("2.25")) {
		t.Fatalf("combined=%s want=2.25", w.CombinedOdds)
	}
}

func TestPlaceWager_Rejections(t *testing.T) {
	l, cat := newTestLedger(t)
	cat.Set("CLOSED", "home", catalog.Quote{Open: false})
	cat.Set("PRICED", "home", catalog.Quote{Open: true, Odds: d("1.90")})
	ctx := context.Background()

	cases := []struct {
		name string
		req  PlaceRequest
		want error
	}{
		{"no legs", PlaceRequest{Owner: "a", Stake: d("1"), Currency: "USDC"}, le.ErrValidation},
		{"zero stake", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "M1", SelectionID: "home", Odds: d("2")}}, Stake: decimal.Zero, Currency: "USDC"}, le.ErrValidation},
		{"negative stake", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "M1", SelectionID: "home", Odds: d("2")}}, Stake: d("-5"), Currency: "USDC"}, le.ErrValidation},
		{"currency", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "M1", SelectionID: "home", Odds: d("2")}}, Stake: d("1"), Currency: "DOGE"}, le.ErrValidation},
		{"closed market", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "CLOSED", SelectionID: "home", Odds: d("2")}}, Stake: d("1"), Currency: "USDC"}, le.ErrValidation},
		{"unknown selection", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "M1", SelectionID: "away", Odds: d("2")}}, Stake: d("1"), Currency: "USDC"}, le.ErrValidation},
		{"same market twice", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "M1", SelectionID: "home", Odds: d("2")}, {MarketID: "M1", SelectionID: "home", Odds: d("2")}}, Stake: d("1"), Currency: "USDC"}, le.ErrValidation},
		{"odds at or below one", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "M1", SelectionID: "home", Odds: d("1")}}, Stake: d("1"), Currency: "USDC"}, le.ErrValidation},
		{"odds changed", PlaceRequest{Owner: "a", Legs: []LegInput{{MarketID: "PRICED", SelectionID: "home", Odds: d("2.10")}}, Stake: d("1"), Currency: "USDC"}, le.ErrConflict},
	}
	for _, tc := range cases {
		if _, err := l.PlaceWager(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
}

func TestPlaceWager_TakesCatalogOddsWhenOmitted(t *testing.T) {
	l, cat := newTestLedger(t)
	cat.Set("PRICED", "home", catalog.Quote{Open: true, Odds: d("1.90")})
	w, err := l.PlaceWager(context.Background(), PlaceRequest{
		Owner: "a", Legs: []LegInput{{MarketID: "PRICED", SelectionID: "home"}}, Stake: d("100"), Currency: "ETH",
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !w.PotentialPayout.Equal(d("190")) {
		t.Fatalf("payout=%s want=190", w.PotentialPayout)
	}
}

func TestPlaceWager_SameIDReturnsExisting(t *testing.T) {
	l, _ := newTestLedger(t)
	req := PlaceRequest{ID: "fixed-id", Owner: "alice", Legs: []LegInput{{MarketID: "M1", SelectionID: "home", Odds: d("2")}}, Stake: d("5"), Currency: "USDC"}
	first, err := l.PlaceWager(context.Background(), req)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	second, err := l.PlaceWager(context.Background(), req)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if first.ID != second.ID || first.Legs[0].ID != second.Legs[0].ID {
		t.Fatalf("replay produced a different wager")
	}
	list, _ := l.ListByOwner(context.Background(), "alice")
	if len(list) != 1 {
		t.Fatalf("wagers=%d want=1", len(list))
	}
}

func TestSettleLeg_VoidRecomputesOdds(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.50", "2.00", "1.80")
	ctx := context.Background()

	got, changed, err := l.SettleLeg(ctx, w.ID, w.Legs[2].ID, LegVoid)
	if err != nil || !changed {
		t.Fatalf("err=%v changed=%v", err, changed)
	}
	if !got.CombinedOdds.Equal(d("3")) {
		t.Fatalf("combined=%s want=3", got.CombinedOdds)
	}
	if !got.PotentialPayout.Equal(d("30")) {
		t.Fatalf("payout=%s want=30", got.PotentialPayout)
	}
	if got.Status != StatusPending {
		t.Fatalf("status=%s want=pending", got.Status)
	}

	l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegWon)
	got, _, err = l.SettleLeg(ctx, w.ID, w.Legs[1].ID, LegWon)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.Status != StatusWon || got.SettledAt == nil {
		t.Fatalf("status=%s settledAt=%v", got.Status, got.SettledAt)
	}
	if !got.SettlementAmount().Equal(d("30")) {
		t.Fatalf("settlement=%s want=30", got.SettlementAmount())
	}
}

func TestSettleLeg_PayoutAlwaysStakeTimesOdds(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.25", "3.10", "1.95", "2.40")
	ctx := context.Background()
	for _, i := range []int{3, 0} {
		got, _, err := l.SettleLeg(ctx, w.ID, w.Legs[i].ID, LegVoid)
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if !got.PotentialPayout.Equal(money.Truncate(got.Stake.Mul(got.CombinedOdds))) {
			t.Fatalf("payout=%s odds=%s", got.PotentialPayout, got.CombinedOdds)
		}
	}
	got, _ := l.Get(ctx, w.ID)
	if !got.CombinedOdds.Equal(d("3.10").Mul(d("1.95"))) {
		t.Fatalf("combined=%s", got.CombinedOdds)
	}
}

func TestSettleLeg_AnyLostLoses(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.50", "2.00", "1.80")
	ctx := context.Background()

	got, _, _ := l.SettleLeg(ctx, w.ID, w.Legs[1].ID, LegLost)
	if got.Status != StatusLost {
		t.Fatalf("status=%s want=lost", got.Status)
	}
	l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegWon)
	got, _, _ = l.SettleLeg(ctx, w.ID, w.Legs[2].ID, LegVoid)
	if got.Status != StatusLost {
		t.Fatalf("terminal status changed to %s", got.Status)
	}
	if !got.SettlementAmount().IsZero() {
		t.Fatalf("lost wager owes %s", got.SettlementAmount())
	}
}

func TestSettleLeg_AllVoidRefundsStake(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.50", "2.00")
	ctx := context.Background()
	l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegVoid)
	got, _, _ := l.SettleLeg(ctx, w.ID, w.Legs[1].ID, LegVoid)
	if got.Status != StatusVoided {
		t.Fatalf("status=%s want=voided", got.Status)
	}
	if !got.CombinedOdds.Equal(d("1")) || !got.SettlementAmount().Equal(d("10")) {
		t.Fatalf("odds=%s settlement=%s", got.CombinedOdds, got.SettlementAmount())
	}
}

func TestSettleLeg_IdempotentAndConflicting(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.50", "2.00")
	ctx := context.Background()

	if _, _, err := l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegWon); err != nil {
		t.Fatalf("err=%v", err)
	}
	_, changed, err := l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegWon)
	if err != nil || changed {
		t.Fatalf("same outcome: err=%v changed=%v", err, changed)
	}
	if _, _, err := l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegLost); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("err=%v want conflict", err)
	}
	got, _ := l.Get(ctx, w.ID)
	if got.Legs[0].Status != LegWon || got.Status != StatusPending {
		t.Fatalf("conflicting settlement mutated state: leg=%s wager=%s", got.Legs[0].Status, got.Status)
	}
}

func TestSettleLeg_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	w := parlay(t, l, "1.50")
	ctx := context.Background()
	if _, _, err := l.SettleLeg(ctx, "missing", w.Legs[0].ID, LegWon); !errors.Is(err, le.ErrNotFound) {
		t.Fatalf("err=%v want not found", err)
	}
	if _, _, err := l.SettleLeg(ctx, w.ID, "missing", LegWon); !errors.Is(err, le.ErrNotFound) {
		t.Fatalf("err=%v want not found", err)
	}
	if _, _, err := l.SettleLeg(ctx, w.ID, w.Legs[0].ID, "maybe"); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestMarkPaidOut(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	w := parlay(t, l, "2.00")

	if _, err := l.MarkPaidOut(ctx, w.ID); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("pending: err=%v want conflict", err)
	}
	l.SettleLeg(ctx, w.ID, w.Legs[0].ID, LegWon)
	for i := 0; i < 2; i++ {
		got, err := l.MarkPaidOut(ctx, w.ID)
		if err != nil {
			t.Fatalf("call %d: err=%v", i, err)
		}
		if got.Status != StatusPaidOut {
			t.Fatalf("status=%s", got.Status)
		}
	}

	lost := parlay(t, l, "2.00")
	l.SettleLeg(ctx, lost.ID, lost.Legs[0].ID, LegLost)
	if _, err := l.MarkPaidOut(ctx, lost.ID); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("lost: err=%v want conflict", err)
	}
}
