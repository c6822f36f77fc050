package revenue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

// quarta-feira; a semana começa na segunda 2026-03-02
var wednesday = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(wednesday)
	return NewRegistry(NewMemoryStore(), clk, d("0.30"), zap.NewNop()), clk
}

func closedEpoch(t *testing.T, r *Registry, clk *clock.Manual, pool, supply string) *Epoch {
	t.Helper()
	ctx := context.Background()
	e, err := r.OpenEpoch(ctx, time.Time{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	clk.Set(e.PeriodEnd)
	e, err = r.CloseEpoch(ctx, e.ID, ptr(d(pool)), d(supply))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	return e
}

func TestEntitlement_ThirtyPercentHolderShare(t *testing.T) {
	r, clk := newTestRegistry(t)
	e := closedEpoch(t, r, clk, "10000", "1000000")

	got, err := r.ComputeEntitlement(context.Background(), e.ID, d("50000"))
	if err != nil {
		t.Fatalf("entitlement: %v", err)
	}
	if !got.Equal(d("150")) {
		t.Fatalf("entitlement=%s want=150", got)
	}
}

func TestOpenEpoch_DefaultsAndContiguity(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()

	e1, err := r.OpenEpoch(ctx, time.Time{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if e1.ID != 1 || !e1.PeriodStart.Equal(monday) || !e1.PeriodEnd.Equal(monday.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected epoch %+v", e1)
	}

	if _, err := r.OpenEpoch(ctx, e1.PeriodEnd); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("open while open err=%v want conflict", err)
	}

	clk.Set(e1.PeriodEnd.Add(time.Hour))
	if _, err := r.CloseEpoch(ctx, e1.ID, nil, d("100")); err != nil {
		t.Fatalf("close: %v", err)
	}

	gap := e1.PeriodEnd.Add(24 * time.Hour)
	if _, err := r.OpenEpoch(ctx, gap); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("gap err=%v want conflict", err)
	}
	overlap := e1.PeriodEnd.Add(-time.Hour)
	if _, err := r.OpenEpoch(ctx, overlap); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("overlap err=%v want conflict", err)
	}

	e2, err := r.OpenEpoch(ctx, e1.PeriodEnd)
	if err != nil {
		t.Fatalf("open next: %v", err)
	}
	if e2.ID != 2 || !e2.PeriodStart.Equal(e1.PeriodEnd) {
		t.Fatalf("unexpected epoch %+v", e2)
	}
	cur, err := r.CurrentEpoch(ctx)
	if err != nil || cur.ID != 2 {
		t.Fatalf("current=%v err=%v", cur, err)
	}
}

func TestCloseEpoch_Rules(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()
	e, _ := r.OpenEpoch(ctx, time.Time{})

	if _, err := r.CloseEpoch(ctx, e.ID, ptr(d("1")), d("1")); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("close before end err=%v want conflict", err)
	}
	clk.Set(e.PeriodEnd)
	if _, err := r.CloseEpoch(ctx, e.ID, ptr(d("1")), d("0")); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("zero supply err=%v want validation", err)
	}
	if _, err := r.CloseEpoch(ctx, e.ID, ptr(d("1")), d("10")); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := r.CloseEpoch(ctx, e.ID, ptr(d("2")), d("10")); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("close twice err=%v want conflict", err)
	}
	if _, err := r.CloseEpoch(ctx, 99, nil, d("10")); !errors.Is(err, le.ErrNotFound) {
		t.Fatalf("missing err=%v want not found", err)
	}
}

func TestCloseEpoch_NilPoolUsesCollectedRevenue(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()

	e, _ := r.OpenEpoch(ctx, time.Time{})
	for i, amt := range []string{"4000", "6000"} {
		c, err := r.RecordRevenue(ctx, fmt.Sprintf("tx-%d", i), d(amt))
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if c.EpochID != e.ID {
			t.Fatalf("credit epoch=%d want=%d", c.EpochID, e.ID)
		}
	}
	if _, err := r.RecordRevenue(ctx, "tx-neg", d("-1")); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("negative err=%v", err)
	}
	if _, err := r.RecordRevenue(ctx, "", d("1")); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("empty correlation err=%v", err)
	}

	clk.Set(e.PeriodEnd)
	closed, err := r.CloseEpoch(ctx, e.ID, nil, d("1000000"))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.TotalPoolAmount.Equal(d("10000")) {
		t.Fatalf("pool=%s want=10000", closed.TotalPoolAmount)
	}
}

func TestRecordRevenue_DuplicateCorrelationCountsOnce(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	e, _ := r.OpenEpoch(ctx, time.Time{})

	if _, err := r.RecordRevenue(ctx, "tx-1", d("250")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := r.RecordRevenue(ctx, "tx-1", d("250")); !errors.Is(err, ErrDuplicateCredit) {
		t.Fatalf("duplicate err=%v want duplicate credit", err)
	}
	if _, err := r.RecordRevenue(ctx, "tx-1", d("250")); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("duplicate must map to conflict, err=%v", err)
	}
	got, _ := r.GetEpoch(ctx, e.ID)
	if !got.CollectedAmount.Equal(d("250")) {
		t.Fatalf("collected=%s want=250", got.CollectedAmount)
	}
}

func TestRecordRevenue_BufferedUntilNextEpoch(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()

	// antes da primeira época
	c, err := r.RecordRevenue(ctx, "early", d("5"))
	if err != nil {
		t.Fatalf("record without epoch: %v", err)
	}
	if !c.Pending() {
		t.Fatalf("credit epoch=%d want pending", c.EpochID)
	}

	first, err := r.OpenEpoch(ctx, time.Time{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !first.CollectedAmount.Equal(d("5")) {
		t.Fatalf("first collected=%s want=5", first.CollectedAmount)
	}

	clk.Set(first.PeriodEnd)
	if _, err := r.CloseEpoch(ctx, first.ID, nil, d("1000")); err != nil {
		t.Fatalf("close: %v", err)
	}

	// entre fechar uma época e abrir a seguinte
	for i, amt := range []string{"1", "2.5"} {
		if _, err := r.RecordRevenue(ctx, fmt.Sprintf("gap-%d", i), d(amt)); err != nil {
			t.Fatalf("record after close: %v", err)
		}
	}
	pending, err := r.PendingCredits(ctx)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending=%d err=%v want 2", len(pending), err)
	}
	closed, _ := r.GetEpoch(ctx, first.ID)
	if !closed.CollectedAmount.Equal(d("5")) {
		t.Fatalf("closed epoch changed: collected=%s", closed.CollectedAmount)
	}

	second, err := r.OpenEpoch(ctx, time.Time{})
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if !second.CollectedAmount.Equal(d("3.5")) {
		t.Fatalf("second collected=%s want=3.5", second.CollectedAmount)
	}
	stored, _ := r.GetEpoch(ctx, second.ID)
	if !stored.CollectedAmount.Equal(d("3.5")) {
		t.Fatalf("stored collected=%s want=3.5", stored.CollectedAmount)
	}
	if pending, _ := r.PendingCredits(ctx); len(pending) != 0 {
		t.Fatalf("pending=%d after open want 0", len(pending))
	}
}

func TestClaim_OncePerClaimant(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()
	e := closedEpoch(t, r, clk, "10000", "1000000")

	req := ClaimRequest{EpochID: e.ID, ClaimantID: "carol", Balance: d("50000"), PayoutReference: "ref-1"}
	rec, err := r.Claim(ctx, req)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !rec.EntitlementAmount.Equal(d("150")) || rec.PayoutReference != "ref-1" || rec.Destination.Address != "carol" {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, err := r.Claim(ctx, req); !errors.Is(err, le.ErrAlreadyClaimed) {
		t.Fatalf("second claim err=%v want already claimed", err)
	}
	claims, _ := r.ListClaims(ctx, e.ID)
	if len(claims) != 1 {
		t.Fatalf("claims=%d want=1", len(claims))
	}
}

func TestClaim_EpochNotClosed(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	e, _ := r.OpenEpoch(ctx, time.Time{})

	_, err := r.Claim(ctx, ClaimRequest{EpochID: e.ID, ClaimantID: "carol", Balance: d("1")})
	if !errors.Is(err, le.ErrEpochNotClosed) {
		t.Fatalf("err=%v want epoch not closed", err)
	}
	if _, err := r.ComputeEntitlement(ctx, e.ID, d("1")); !errors.Is(err, le.ErrEpochNotClosed) {
		t.Fatalf("entitlement err=%v want epoch not closed", err)
	}
}

func TestClaim_Rejections(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()
	e := closedEpoch(t, r, clk, "10000", "1000000")

	cases := []struct {
		name string
		req  ClaimRequest
		want error
	}{
		{"zero balance", ClaimRequest{EpochID: e.ID, ClaimantID: "x", Balance: d("0")}, le.ErrValidation},
		{"above supply", ClaimRequest{EpochID: e.ID, ClaimantID: "x", Balance: d("1000001")}, le.ErrValidation},
		{"no claimant", ClaimRequest{EpochID: e.ID, Balance: d("1")}, le.ErrValidation},
		{"unknown epoch", ClaimRequest{EpochID: 42, ClaimantID: "x", Balance: d("1")}, le.ErrNotFound},
		{"dust", ClaimRequest{EpochID: e.ID, ClaimantID: "x", Balance: d("0.0000000001")}, le.ErrNothingToClaim},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := r.Claim(ctx, c.req); !errors.Is(err, c.want) {
				t.Fatalf("err=%v want %v", err, c.want)
			}
		})
	}
}

// Sem a serialização do gateway, a chave única do store ainda impede o segundo registro.
func TestMemoryStore_InsertClaimUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InsertClaim(ctx, &ClaimRecord{EpochID: 1, ClaimantID: "carol", EntitlementAmount: d("1")})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, le.ErrAlreadyClaimed) {
				t.Errorf("err=%v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("inserted=%d want=1", ok)
	}
}
