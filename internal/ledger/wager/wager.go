package wager

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusWon           Status = "won"
	StatusLost          Status = "lost"
	StatusPartiallyVoid Status = "partially_void"
	StatusVoided        Status = "voided"
	StatusPaidOut       Status = "paid_out"
)

// Terminal indica se a aposta já tem resultado definido.
func (s Status) Terminal() bool { return s != StatusPending }

type LegStatus string

const (
	LegPending LegStatus = "pending"
	LegWon     LegStatus = "won"
	LegLost    LegStatus = "lost"
	LegVoid    LegStatus = "void"
)

func (s LegStatus) Terminal() bool { return s != LegPending }

// Leg é uma seleção dentro de uma aposta. Pertence exclusivamente à aposta pai.
type Leg struct {
	ID          string          `json:"id"`
	MarketID    string          `json:"market_id"`
	SelectionID string          `json:"selection_id"`
	Odds        decimal.Decimal `json:"odds"`
	Status      LegStatus       `json:"status"`
	SettledAt   *time.Time      `json:"settled_at,omitempty"`
}

// Wager é o registro histórico de uma aposta simples ou múltipla (parlay).
type Wager struct {
	ID              string            `json:"id"`
	Owner           string            `json:"owner"`
	Legs            []Leg             `json:"legs"`
	Stake           decimal.Decimal   `json:"stake"`
	Currency        string            `json:"currency"`
	CombinedOdds    decimal.Decimal   `json:"combined_odds"`
	PotentialPayout decimal.Decimal   `json:"potential_payout"`
	Status          Status            `json:"status"`
	Destination     money.Destination `json:"destination"`
	PlacedAt        time.Time         `json:"placed_at"`
	SettledAt       *time.Time        `json:"settled_at,omitempty"`
}

// Leg busca uma seleção pelo id.
func (w *Wager) Leg(id string) (*Leg, bool) {
	for i := range w.Legs {
		if w.Legs[i].ID == id {
			return &w.Legs[i], true
		}
	}
	return nil, false
}

// recompute refaz odds combinadas e retorno potencial considerando só as seleções ativas.
// Seleções void contribuem com fator 1.0.
func (w *Wager) recompute() {
	odds := decimal.NewFromInt(1)
	for _, l := range w.Legs {
		if l.Status == LegVoid {
			continue
		}
		odds = odds.Mul(l.Odds)
	}
	w.CombinedOdds = odds
	w.PotentialPayout = money.Truncate(w.Stake.Mul(odds))
}

// deriveStatus aplica a regra de liquidação do parlay sobre o estado das seleções.
func (w *Wager) deriveStatus() Status {
	pending, won := false, false
	for _, l := range w.Legs {
		switch l.Status {
		case LegLost:
			return StatusLost
		case LegPending:
			pending = true
		case LegWon:
			won = true
		}
	}
	switch {
	case pending:
		return StatusPending
	case won:
		return StatusWon
	default:
		return StatusVoided
	}
}

// SettlementAmount é o valor devido ao apostador: retorno em caso de vitória,
// devolução da stake quando todas as seleções foram anuladas.
func (w *Wager) SettlementAmount() decimal.Decimal {
	switch w.Status {
	case StatusWon:
		return w.PotentialPayout
	case StatusVoided:
		return w.Stake
	default:
		return decimal.Zero
	}
}

func (w *Wager) clone() *Wager {
	c := *w
	c.Legs = append([]Leg(nil), w.Legs...)
	return &c
}
