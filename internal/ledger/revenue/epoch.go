package revenue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
)

// ErrDuplicateCredit indica que a transferência de receita já foi contabilizada.
var ErrDuplicateCredit = fmt.Errorf("%w: revenue credit already recorded", le.ErrConflict)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Epoch é uma janela semanal de distribuição de receita.
type Epoch struct {
	ID                          int64           `json:"id"`
	PeriodStart                 time.Time       `json:"period_start"`
	PeriodEnd                   time.Time       `json:"period_end"`
	HolderShare                 decimal.Decimal `json:"holder_share"`
	CollectedAmount             decimal.Decimal `json:"collected_amount"`
	TotalPoolAmount             decimal.Decimal `json:"total_pool_amount"`
	SnapshotTotalEligibleSupply decimal.Decimal `json:"snapshot_total_eligible_supply"`
	Status                      Status          `json:"status"`
	ClosedAt                    *time.Time      `json:"closed_at,omitempty"`
}

// Entitlement = pool × holderShare × balance / supply, truncado.
func (e *Epoch) Entitlement(balance decimal.Decimal) decimal.Decimal {
	if e.SnapshotTotalEligibleSupply.IsZero() {
		return decimal.Zero
	}
	amt := e.TotalPoolAmount.Mul(e.HolderShare).Mul(balance).Div(e.SnapshotTotalEligibleSupply)
	return money.Truncate(amt)
}

func (e *Epoch) clone() *Epoch {
	c := *e
	return &c
}

// ClaimRecord registra o pagamento de um detentor em uma época. Chave única (EpochID, ClaimantID).
type ClaimRecord struct {
	EpochID           int64             `json:"epoch_id"`
	ClaimantID        string            `json:"claimant_id"`
	BalanceAtSnapshot decimal.Decimal   `json:"balance_at_snapshot"`
	EntitlementAmount decimal.Decimal   `json:"entitlement_amount"`
	Destination       money.Destination `json:"destination"`
	ClaimedAt         time.Time         `json:"claimed_at"`
	PayoutReference   string            `json:"payout_reference"`
}

// Credit é uma transferência de receita confirmada. EpochID zero fica pendente até a
// próxima época abrir e absorver o valor.
type Credit struct {
	CorrelationID string          `json:"correlation_id"`
	Amount        decimal.Decimal `json:"amount"`
	EpochID       int64           `json:"epoch_id,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
}

func (c *Credit) Pending() bool { return c.EpochID == 0 }
