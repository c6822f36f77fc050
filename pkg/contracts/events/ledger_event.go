package events

import "time"

// Tipos de evento do ledger transmitidos no /ws.
const (
	WagerPlaced     = "wager.placed"
	WagerSettled    = "wager.settled"
	StakeOpened     = "stake.opened"
	StakeClaimed    = "stake.claimed"
	StakeClosed     = "stake.closed"
	EpochOpened     = "epoch.opened"
	EpochClosed     = "epoch.closed"
	RevenueClaimed  = "revenue.claimed"
	DepositRefunded = "deposit.refunded"
	PayoutUpdated   = "payout.updated"
)

// LedgerEvent é publicado no canal Redis de broadcast. Owner vazio = evento global.
type LedgerEvent struct {
	Type      string    `json:"type"`
	Owner     string    `json:"owner,omitempty"`
	SubjectID string    `json:"subject_id"`
	Data      any       `json:"data,omitempty"`
	Ts        time.Time `json:"ts"`
}
