package stake

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/clock"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

type Status string

const (
	StatusLocked     Status = "locked"
	StatusUnlockable Status = "unlockable"
	StatusClosed     Status = "closed"
)

// Position é um depósito de stake travado. A taxa APY é capturada na abertura.
type Position struct {
	ID                    string          `json:"id"`
	Owner                 string          `json:"owner"`
	Principal             decimal.Decimal `json:"principal"`
	Currency              string          `json:"currency"`
	APYRate               decimal.Decimal `json:"apy_rate"`
	LockDurationHours     int64           `json:"lock_duration_hours"`
	StakedAt              time.Time       `json:"staked_at"`
	LockEndsAt            time.Time       `json:"lock_ends_at"`
	LastAccrualCheckpoint time.Time       `json:"last_accrual_checkpoint"`
	ClaimedRewardsTotal   decimal.Decimal `json:"claimed_rewards_total"`
	Status                Status          `json:"status"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
}

var hoursPerYear = decimal.NewFromInt(clock.HoursPerYear)

// Accrued calcula principal × apy × horas/8760 desde o último checkpoint.
// É a única fórmula de acúmulo do sistema: leituras, claims e jobs usam esta função.
func (p *Position) Accrued(asOf time.Time) (decimal.Decimal, int64) {
	if p.Status == StatusClosed {
		return decimal.Zero, 0
	}
	hours := clock.HoursElapsed(p.LastAccrualCheckpoint, asOf)
	if hours == 0 {
		return decimal.Zero, 0
	}
	amt := p.Principal.Mul(p.APYRate).Mul(decimal.NewFromInt(hours)).Div(hoursPerYear)
	return money.Truncate(amt), hours
}

// StatusAt devolve o status derivado no instante asOf.
func (p *Position) StatusAt(asOf time.Time) Status {
	if p.Status == StatusLocked && !asOf.Before(p.LockEndsAt) {
		return StatusUnlockable
	}
	return p.Status
}

func (p *Position) clone() *Position {
	c := *p
	return &c
}
