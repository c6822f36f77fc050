package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrução de pagamento enviada ao payout-worker (tópico "payout_instructions").
type PayoutInstruction struct {
	CorrelationID string          `json:"correlation_id"`
	Kind          string          `json:"kind"`
	Mode          string          `json:"mode"` // "wallet" | "platform_balance"
	Destination   string          `json:"destination"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Attempt       int             `json:"attempt"`
	TsUnixMs      int64           `json:"ts_unix_ms"`
}

const (
	PayoutConfirmed = "confirmed"
	PayoutFailed    = "failed"
)

// Resultado publicado pelo payout-worker após falar com o colaborador de transferência.
type PayoutResult struct {
	CorrelationID string    `json:"correlation_id"`
	Status        string    `json:"status"` // "confirmed" | "failed"
	TxRef         string    `json:"tx_ref,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Ts            time.Time `json:"ts"`
}
