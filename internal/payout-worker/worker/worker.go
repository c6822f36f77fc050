package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/chain-simulator/dto"
	"github.com/radieske/bet-settlement-ledger/internal/shared/kafka"
	ev "github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

type Transferer interface {
	Transfer(ctx context.Context, req dto.TransferReq) (*dto.TransferResp, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

// KafkaPublisher publica JSON em um tópico fixo.
type KafkaPublisher struct {
	W *kafka.Writer
}

func (p KafkaPublisher) Publish(ctx context.Context, key string, v any) error {
	return kafka.PublishJSON(ctx, p.W, key, v)
}

// Worker executa instruções de pagamento contra a chain e devolve o resultado ao ledger.
type Worker struct {
	Log     *zap.Logger
	Chain   Transferer
	Results Publisher
	DLQ     Publisher // opcional
	Retries int
	Backoff time.Duration

	OnResult func(status string) // métricas
}

// Handle decodifica e processa uma mensagem de payout_instructions.
// Mensagens inválidas são descartadas; erro só quando o resultado não pôde ser publicado.
func (w *Worker) Handle(ctx context.Context, value []byte) error {
	var ins ev.PayoutInstruction
	if err := json.Unmarshal(value, &ins); err != nil || ins.CorrelationID == "" {
		w.Log.Error("invalid payout instruction", zap.ByteString("value", value), zap.Error(err))
		w.observe("invalid")
		return nil
	}
	return w.Process(ctx, ins)
}

// Process executa o fluxo de um pagamento:
// 1. Chama a chain com retry
// 2. Sem resposta conclusiva, envia para a DLQ e reporta falha (a reconciliação reenvia)
// 3. Publica o resultado em payout_results
func (w *Worker) Process(ctx context.Context, ins ev.PayoutInstruction) error {
	req := dto.TransferReq{
		CorrelationID: ins.CorrelationID,
		Mode:          ins.Mode,
		Destination:   ins.Destination,
		Amount:        ins.Amount,
		Currency:      ins.Currency,
	}

	resp, err := w.Chain.Transfer(ctx, req)
	for i := 0; err != nil && i < w.Retries; i++ {
		sleep(ctx, time.Duration(i+1)*w.Backoff)
		resp, err = w.Chain.Transfer(ctx, req)
	}

	res := ev.PayoutResult{CorrelationID: ins.CorrelationID, Ts: time.Now().UTC()}
	switch {
	case err != nil:
		if w.DLQ != nil {
			if derr := w.DLQ.Publish(ctx, ins.CorrelationID, ins); derr != nil {
				w.Log.Warn("dlq publish failed", zap.String("correlation_id", ins.CorrelationID), zap.Error(derr))
			}
		}
		res.Status = ev.PayoutFailed
		res.Reason = "chain unavailable: " + err.Error()
	case resp.Status == dto.StatusConfirmed:
		res.Status = ev.PayoutConfirmed
		res.TxRef = resp.TxRef
	default:
		res.Status = ev.PayoutFailed
		res.Reason = resp.Reason
	}

	if err := w.Results.Publish(ctx, ins.CorrelationID, res); err != nil {
		return fmt.Errorf("publish payout result: %w", err)
	}
	w.observe(res.Status)
	w.Log.Info("payout processed",
		zap.String("correlation_id", ins.CorrelationID),
		zap.String("kind", ins.Kind),
		zap.Int("attempt", ins.Attempt),
		zap.String("status", res.Status),
		zap.String("tx_ref", res.TxRef),
		zap.String("reason", res.Reason),
	)
	return nil
}

func (w *Worker) observe(status string) {
	if w.OnResult != nil {
		w.OnResult(status)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
