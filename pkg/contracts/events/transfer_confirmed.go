package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PurposeStake   = "stake"
	PurposeRevenue = "revenue"
)

// Evento publicado pelo colaborador de carteira/chain quando uma transferência de entrada é confirmada.
type TransferConfirmed struct {
	CorrelationID     string          `json:"correlation_id"`
	Purpose           string          `json:"purpose"` // "stake" | "revenue"
	From              string          `json:"from"`
	Destination       string          `json:"destination"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	LockDurationHours int64           `json:"lock_duration_hours,omitempty"`
	TxRef             string          `json:"tx_ref,omitempty"`
	Ts                time.Time       `json:"ts"`
}
