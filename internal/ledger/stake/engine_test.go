package stake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	e := NewEngine(NewMemoryStore(), clk, Config{MinPrincipal: d("100"), APY: d("0.08"), Currency: "tok"}, zap.NewNop())
	return e, clk
}

func open(t *testing.T, e *Engine, principal string, hours int64) *Position {
	t.Helper()
	p, err := e.OpenStake(context.Background(), OpenRequest{Owner: "bob", Principal: d(principal), LockDurationHours: hours})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return p
}

func TestAccrual_ThirtyDaysAtEightPercent(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	p := open(t, e, "100000", 720)

	if !p.LockEndsAt.Equal(t0.Add(720*time.Hour)) || p.Status != StatusLocked || p.Currency != "TOK" {
		t.Fatalf("unexpected position %+v", p)
	}

	clk.Advance(720 * time.Hour)
	asOf := clk.Now()
	want := d("657.53424657")

	got, err := e.ComputeAccrued(ctx, p.ID, asOf)
	if err != nil {
		t.Fatalf("accrued: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("accrued=%s want=%s", got, want)
	}
	if got.StringFixed(2) != "657.53" {
		t.Fatalf("rounded=%s want=657.53", got.StringFixed(2))
	}

	// leitura pura: mesma entrada, mesmo valor
	again, _ := e.ComputeAccrued(ctx, p.ID, asOf)
	if !again.Equal(got) {
		t.Fatalf("not deterministic: %s vs %s", got, again)
	}

	amt, pos, err := e.ClaimRewards(ctx, p.ID, asOf)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !amt.Equal(want) || !pos.ClaimedRewardsTotal.Equal(want) {
		t.Fatalf("claimed=%s total=%s", amt, pos.ClaimedRewardsTotal)
	}
	if !pos.LastAccrualCheckpoint.Equal(asOf) {
		t.Fatalf("checkpoint=%s want=%s", pos.LastAccrualCheckpoint, asOf)
	}
	if pos.Status != StatusUnlockable {
		t.Fatalf("status=%s want=unlockable", pos.Status)
	}

	amt, _, err = e.ClaimRewards(ctx, p.ID, asOf)
	if !errors.Is(err, le.ErrNothingToClaim) || !amt.IsZero() {
		t.Fatalf("second claim amt=%s err=%v", amt, err)
	}
}

func TestAccrual_WholeHoursOnly(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	p := open(t, e, "87600", 24)

	clk.Advance(59 * time.Minute)
	got, _ := e.ComputeAccrued(ctx, p.ID, clk.Now())
	if !got.IsZero() {
		t.Fatalf("partial hour accrued=%s want=0", got)
	}
	if _, _, err := e.ClaimRewards(ctx, p.ID, clk.Now()); !errors.Is(err, le.ErrNothingToClaim) {
		t.Fatalf("err=%v want nothing to claim", err)
	}

	// 87600 × 0.08 / 8760 = 0.8 por hora
	clk.Advance(31 * time.Minute) // 1h30
	amt, pos, err := e.ClaimRewards(ctx, p.ID, clk.Now())
	if err != nil || !amt.Equal(d("0.8")) {
		t.Fatalf("claim amt=%s err=%v", amt, err)
	}
	if !pos.LastAccrualCheckpoint.Equal(clk.Now()) {
		t.Fatalf("checkpoint=%s want=%s", pos.LastAccrualCheckpoint, clk.Now())
	}

	// a contagem recomeça no claim: 2h00 é só meia hora depois
	clk.Advance(30 * time.Minute)
	if _, _, err := e.ClaimRewards(ctx, p.ID, clk.Now()); !errors.Is(err, le.ErrNothingToClaim) {
		t.Fatalf("2h00 err=%v want nothing to claim", err)
	}
	clk.Advance(30 * time.Minute) // 2h30
	amt, pos, err = e.ClaimRewards(ctx, p.ID, clk.Now())
	if err != nil || !amt.Equal(d("0.8")) {
		t.Fatalf("second claim amt=%s err=%v", amt, err)
	}
	if !pos.ClaimedRewardsTotal.Equal(d("1.6")) {
		t.Fatalf("claimed total=%s want=1.6", pos.ClaimedRewardsTotal)
	}
}

func TestUnstake_LockActiveDoesNotMutate(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	p := open(t, e, "1000", 720)

	clk.Advance(719 * time.Hour)
	before, _ := e.Get(ctx, p.ID)

	_, _, err := e.Unstake(ctx, p.ID, clk.Now())
	if !errors.Is(err, le.ErrLockActive) {
		t.Fatalf("err=%v want lock active", err)
	}
	after, _ := e.Get(ctx, p.ID)
	if after.Status != before.Status || !after.LastAccrualCheckpoint.Equal(before.LastAccrualCheckpoint) ||
		!after.ClaimedRewardsTotal.Equal(before.ClaimedRewardsTotal) {
		t.Fatalf("position mutated: before=%+v after=%+v", before, after)
	}
}

func TestUnstake_ReturnsPrincipalAndAccrualOnce(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	p := open(t, e, "100000", 720)

	clk.Advance(360 * time.Hour)
	half, _, err := e.ClaimRewards(ctx, p.ID, clk.Now())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	clk.Advance(360 * time.Hour)
	out, pos, err := e.Unstake(ctx, p.ID, clk.Now())
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if !out.Principal.Equal(d("100000")) {
		t.Fatalf("principal=%s", out.Principal)
	}
	if !out.FinalAccrued.Equal(half) {
		t.Fatalf("final=%s want=%s", out.FinalAccrued, half)
	}
	if !out.Total().Equal(d("100000").Add(half)) {
		t.Fatalf("total=%s", out.Total())
	}
	if pos.Status != StatusClosed || pos.ClosedAt == nil {
		t.Fatalf("status=%s closedAt=%v", pos.Status, pos.ClosedAt)
	}

	if _, _, err := e.Unstake(ctx, p.ID, clk.Now()); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("second unstake err=%v want conflict", err)
	}
	if _, _, err := e.ClaimRewards(ctx, p.ID, clk.Now()); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("claim after close err=%v want conflict", err)
	}

	clk.Advance(100 * time.Hour)
	acc, _ := e.ComputeAccrued(ctx, p.ID, clk.Now())
	if !acc.IsZero() {
		t.Fatalf("closed accrued=%s want=0", acc)
	}
}

func TestOpenStake_Rejections(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	cases := []struct {
		name string
		req  OpenRequest
	}{
		{"below minimum", OpenRequest{Owner: "bob", Principal: d("99.99"), LockDurationHours: 24}},
		{"zero lock", OpenRequest{Owner: "bob", Principal: d("100"), LockDurationHours: 0}},
		{"negative lock", OpenRequest{Owner: "bob", Principal: d("100"), LockDurationHours: -1}},
		{"no owner", OpenRequest{Principal: d("100"), LockDurationHours: 24}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := e.OpenStake(ctx, c.req); !errors.Is(err, le.ErrValidation) {
				t.Fatalf("err=%v want validation", err)
			}
		})
	}
}

func TestAPY_CapturedAtOpen(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	p1 := open(t, e, "87600", 24)

	if err := e.SetAPY(d("0.16")); err != nil {
		t.Fatalf("set apy: %v", err)
	}
	p2 := open(t, e, "87600", 24)
	if !p1.APYRate.Equal(d("0.08")) || !p2.APYRate.Equal(d("0.16")) {
		t.Fatalf("apy p1=%s p2=%s", p1.APYRate, p2.APYRate)
	}

	clk.Advance(time.Hour)
	a1, _ := e.ComputeAccrued(ctx, p1.ID, clk.Now())
	a2, _ := e.ComputeAccrued(ctx, p2.ID, clk.Now())
	if !a1.Equal(d("0.8")) || !a2.Equal(d("1.6")) {
		t.Fatalf("a1=%s a2=%s", a1, a2)
	}

	if err := e.SetAPY(d("-0.01")); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("negative apy err=%v", err)
	}
}

func TestOpenStake_SameIDReturnsExisting(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	req := OpenRequest{ID: "corr-1", Owner: "bob", Principal: d("500"), LockDurationHours: 24}

	p1, err := e.OpenStake(ctx, req)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	p2, err := e.OpenStake(ctx, req)
	if err != nil || p2.ID != p1.ID {
		t.Fatalf("reopen id=%v err=%v", p2, err)
	}
	list, _ := e.ListByOwner(ctx, "bob")
	if len(list) != 1 {
		t.Fatalf("positions=%d want=1", len(list))
	}

	req.Owner = "mallory"
	if _, err := e.OpenStake(ctx, req); !errors.Is(err, le.ErrConflict) {
		t.Fatalf("err=%v want conflict", err)
	}
}

func TestMutations_RejectFutureAsOf(t *testing.T) {
	e, clk := newTestEngine(t)
	ctx := context.Background()
	p := open(t, e, "1000", 1)

	future := clk.Now().Add(48 * time.Hour)
	if _, _, err := e.ClaimRewards(ctx, p.ID, future); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("claim err=%v", err)
	}
	if _, _, err := e.Unstake(ctx, p.ID, future); !errors.Is(err, le.ErrValidation) {
		t.Fatalf("unstake err=%v", err)
	}
	if _, _, err := e.ClaimRewards(ctx, "missing", clk.Now()); !errors.Is(err, le.ErrNotFound) {
		t.Fatalf("missing err=%v", err)
	}
}
