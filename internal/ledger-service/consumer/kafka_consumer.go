package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

// MessageReader é o subconjunto do *kafka.Reader usado pelo Processor.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// HandlerFunc processa o valor de uma mensagem.
type HandlerFunc func(ctx context.Context, value []byte) error

// Processor consome um tópico e aplica cada mensagem no ledger antes do commit do offset
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Name    string
	Topic   string
	Log     *zap.Logger
	Reader  MessageReader
	Handle  HandlerFunc
	Retries    int           // a cada Retries falhas transitórias seguidas loga em nível error (default 3)
	Backoff    time.Duration // espera base entre tentativas (default 500ms)
	MaxBackoff time.Duration // teto da espera (default 30s)

	OnConsumed func()       // métricas (counter++)
	OnApplied  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo. Retorna quando o ctx é cancelado.
func (p *Processor) Run(ctx context.Context) error {
	retries := p.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka fetch failed", zap.String("consumer", p.Name), zap.Error(err))
			p.onError("read")
			sleep(ctx, backoff)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if !p.apply(ctx, m, retries, backoff, maxBackoff) {
			// sem commit: a mensagem volta no próximo fetch
			return ctx.Err()
		}

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.String("consumer", p.Name), zap.Int64("offset", m.Offset), zap.Error(err))
			p.onError("commit")
		}
	}
}

// apply tenta aplicar a mensagem e devolve true quando o offset pode ser commitado.
// Erros da taxonomia do ledger são definitivos (mensagem inválida ou já aplicada).
// Os demais são repetidos sem limite com espera crescente; só o cancelamento do ctx
// interrompe, e nesse caso a mensagem fica sem commit.
func (p *Processor) apply(ctx context.Context, m kafka.Message, retries int, backoff, maxBackoff time.Duration) bool {
	wait := backoff
	for attempt := 1; ; attempt++ {
		err := p.Handle(ctx, m.Value)
		if err == nil {
			if p.OnApplied != nil {
				p.OnApplied()
			}
			return true
		}
		code := le.Code(err)
		if code != "internal" {
			p.Log.Info("message rejected by ledger",
				zap.String("consumer", p.Name),
				zap.String("key", string(m.Key)),
				zap.String("code", code),
				zap.Error(err),
			)
			p.onError(code)
			return true
		}
		p.onError("apply")
		fields := []zap.Field{
			zap.String("consumer", p.Name),
			zap.String("key", string(m.Key)),
			zap.Int64("offset", m.Offset),
			zap.Int("attempts", attempt),
			zap.Error(err),
		}
		if attempt%retries == 0 {
			p.Log.Error("message still failing, holding offset", fields...)
		} else {
			p.Log.Warn("transient apply failure", fields...)
		}
		if ctx.Err() != nil {
			return false
		}
		sleep(ctx, wait)
		if ctx.Err() != nil {
			return false
		}
		if wait *= 2; wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func (p *Processor) onError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
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

// Ledger é o que os consumers precisam do gateway.
type Ledger interface {
	HandleTransferConfirmed(ctx context.Context, ev events.TransferConfirmed) error
	HandlePayoutResult(ctx context.Context, res events.PayoutResult) error
}

// TransferConfirmed decodifica eventos do tópico transfer_confirmed.
func TransferConfirmed(l Ledger) HandlerFunc {
	return func(ctx context.Context, value []byte) error {
		var ev events.TransferConfirmed
		if err := json.Unmarshal(value, &ev); err != nil {
			return le.Validation("decode transfer_confirmed: %v", err)
		}
		return l.HandleTransferConfirmed(ctx, ev)
	}
}

// PayoutResults decodifica eventos do tópico payout_results.
func PayoutResults(l Ledger) HandlerFunc {
	return func(ctx context.Context, value []byte) error {
		var res events.PayoutResult
		if err := json.Unmarshal(value, &res); err != nil {
			return le.Validation("decode payout_results: %v", err)
		}
		if err := l.HandlePayoutResult(ctx, res); err != nil {
			return fmt.Errorf("payout %s: %w", res.CorrelationID, err)
		}
		return nil
	}
}
