package payout

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

type Kind string

const (
	KindWagerPayout   Kind = "wager_payout"
	KindWagerRefund   Kind = "wager_refund"
	KindStakeRewards  Kind = "stake_rewards"
	KindStakeUnstake  Kind = "stake_unstake"
	KindRevenueClaim  Kind = "revenue_claim"
	KindDepositRefund Kind = "deposit_refund" // transferência de entrada recusada
)

type Status string

const (
	StatusRecorded  Status = "recorded"  // gravado, ainda não enviado
	StatusSubmitted Status = "submitted" // instrução entregue ao colaborador de transferência
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed" // aguardando reconciliação
	StatusEscalated Status = "escalated"
)

// Payout é a intenção de pagamento gravada junto com a transição do ledger.
// O CorrelationID é determinístico por operação e reutilizado em todas as tentativas.
type Payout struct {
	CorrelationID string            `json:"correlation_id"`
	Kind          Kind              `json:"kind"`
	SubjectID     string            `json:"subject_id"`
	Owner         string            `json:"owner"`
	Destination   money.Destination `json:"destination"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Status        Status            `json:"status"`
	Attempts      int               `json:"attempts"`
	TxRef         string            `json:"tx_ref,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Settled indica que nenhuma nova tentativa automática será feita.
func (p *Payout) Settled() bool {
	return p.Status == StatusConfirmed || p.Status == StatusEscalated
}

// Observable indica um estado que encerra a espera de quem aguarda o pagamento.
func (p *Payout) Observable() bool {
	return p.Settled() || p.Status == StatusFailed
}

func (p *Payout) clone() *Payout {
	c := *p
	return &c
}

var namespace = uuid.MustParse("6f1c8d2e-4b7a-5e90-9c3d-2a8b7e6f5d41")

// CorrelationID deriva um id estável para a operação que originou o pagamento.
func CorrelationID(kind Kind, parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(string(kind)+"|"+strings.Join(parts, "|"))).String()
}
