package dto

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type AmountResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

type APYResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

// StakeClaimResponse é o corpo do claim de rewards. NothingToClaim vem com amount zero e status 200.
type StakeClaimResponse struct {
	Amount         decimal.Decimal `json:"amount"`
	NothingToClaim bool            `json:"nothing_to_claim,omitempty"`
	Position       *stake.Position `json:"position,omitempty"`
	Payout         *payout.Payout  `json:"payout,omitempty"`
}

type NothingToClaimResponse struct {
	Amount         decimal.Decimal `json:"amount"`
	NothingToClaim bool            `json:"nothing_to_claim"`
}

// PayoutResponse inclui Pending quando o wait expirou antes da confirmação.
type PayoutResponse struct {
	*payout.Payout
	Pending bool `json:"pending,omitempty"`
}
