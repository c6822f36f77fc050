package chain

import (
	"context"

	"github.com/radieske/bet-settlement-ledger/internal/shared/kafka"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

// KafkaPublisher publica no tópico transfer_confirmed, com o correlation id como chave.
type KafkaPublisher struct {
	W *kafka.Writer
}

func (p KafkaPublisher) PublishTransfer(ctx context.Context, ev events.TransferConfirmed) error {
	return kafka.PublishJSON(ctx, p.W, ev.CorrelationID, ev)
}
