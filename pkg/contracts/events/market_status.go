package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento publicado no tópico "market_status" pelo catálogo de mercados.
type MarketStatus struct {
	MarketID    string          `json:"market_id"`
	SelectionID string          `json:"selection_id"`
	Status      string          `json:"status"` // "open" | "closed"
	Odds        decimal.Decimal `json:"odds"`
	Version     int             `json:"version"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
