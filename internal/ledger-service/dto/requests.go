package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/wager"
)

type PlaceWagerRequest struct {
	ID          string            `json:"id,omitempty"`
	Owner       string            `json:"owner"`
	Legs        []wager.LegInput  `json:"legs"`
	Stake       decimal.Decimal   `json:"stake"`
	Currency    string            `json:"currency"`
	Destination money.Destination `json:"destination"`
}

type SettleLegRequest struct {
	Outcome wager.LegStatus `json:"outcome"` // "won" | "lost" | "void"
}

// StakeActionRequest serve para claim e unstake. AsOf vazio usa o relógio do ledger.
type StakeActionRequest struct {
	AsOf        time.Time         `json:"as_of,omitempty"`
	Destination money.Destination `json:"destination"`
}

type SetAPYRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type OpenEpochRequest struct {
	PeriodStart time.Time `json:"period_start,omitempty"`
}

// CloseEpochRequest: Pool ausente usa a receita coletada na época.
type CloseEpochRequest struct {
	Pool   *decimal.Decimal `json:"pool,omitempty"`
	Supply decimal.Decimal  `json:"supply"`
}

type ClaimRevenueRequest struct {
	ClaimantID  string            `json:"claimant_id"`
	Balance     decimal.Decimal   `json:"balance"`
	Destination money.Destination `json:"destination"`
}
