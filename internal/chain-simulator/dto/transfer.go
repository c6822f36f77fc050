package dto

import "github.com/shopspring/decimal"

// TransferReq é a ordem de pagamento de saída. CorrelationID torna a chamada idempotente.
type TransferReq struct {
	CorrelationID string          `json:"correlation_id"`
	Mode          string          `json:"mode"` // wallet | platform_balance
	Destination   string          `json:"destination"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

type TransferResp struct {
	Status string `json:"status"` // CONFIRMED | REJECTED
	TxRef  string `json:"tx_ref,omitempty"`
	Reason string `json:"reason,omitempty"`
}

const (
	StatusConfirmed = "CONFIRMED"
	StatusRejected  = "REJECTED"
)

// DepositReq simula uma transferência de entrada (stake ou receita da plataforma).
type DepositReq struct {
	Purpose           string          `json:"purpose"` // stake | revenue
	From              string          `json:"from"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	LockDurationHours int64           `json:"lock_duration_hours,omitempty"`
}

type DepositResp struct {
	CorrelationID string `json:"correlation_id"`
	TxRef         string `json:"tx_ref"`
}
