package payout

import (
	"context"
	"fmt"
	"time"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/shared/kafka"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

// Dispatcher entrega a instrução de pagamento ao colaborador de transferência.
// A confirmação chega depois, de forma assíncrona.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *Payout) error
}

// KafkaDispatcher publica instruções no tópico consumido pelo payout-worker.
type KafkaDispatcher struct {
	Writer *kafka.Writer
}

func NewKafkaDispatcher(w *kafka.Writer) *KafkaDispatcher {
	return &KafkaDispatcher{Writer: w}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, p *Payout) error {
	// chave = correlation id: tentativas do mesmo pagamento caem na mesma partição
	if err := kafka.PublishJSON(ctx, d.Writer, p.CorrelationID, Instruction(p)); err != nil {
		return fmt.Errorf("%w: %v", le.ErrExternalTransferFailed, err)
	}
	return nil
}

func Instruction(p *Payout) events.PayoutInstruction {
	return events.PayoutInstruction{
		CorrelationID: p.CorrelationID,
		Kind:          string(p.Kind),
		Mode:          string(p.Destination.Mode),
		Destination:   p.Destination.Address,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Attempt:       p.Attempts,
		TsUnixMs:      time.Now().UnixMilli(),
	}
}
