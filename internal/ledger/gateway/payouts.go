package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

func payoutKey(correlationID string) string { return "payout:" + correlationID }

// dispatchAsync entrega o pagamento em background; o chamador não espera o colaborador.
func (g *Gateway) dispatchAsync(correlationID string) {
	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.DispatchTimeout)
		defer cancel()
		if err := g.dispatch(ctx, correlationID); err != nil {
			g.log.Warn("payout dispatch failed", zap.String("correlation_id", correlationID), zap.Error(err))
		}
	}()
}

// dispatch marca o pagamento como submitted e entrega a instrução. Falha de entrega deixa o
// pagamento em failed para a reconciliação; o estado do ledger não é desfeito.
func (g *Gateway) dispatch(ctx context.Context, correlationID string) error {
	unlock, err := g.locks.Lock(ctx, payoutKey(correlationID))
	if err != nil {
		return err
	}
	p, err := g.payouts.Get(ctx, correlationID)
	if err != nil {
		unlock()
		return err
	}
	if p.Settled() {
		unlock()
		return nil
	}
	p.Attempts++
	p.Status = payout.StatusSubmitted
	p.LastError = ""
	p.UpdatedAt = g.clock.Now()
	if err := g.payouts.Update(ctx, p); err != nil {
		unlock()
		return err
	}
	unlock()

	derr := g.dispatcher.Dispatch(ctx, p)
	if derr == nil {
		g.metrics.Payout(string(p.Kind), string(payout.StatusSubmitted))
		g.emit(events.PayoutUpdated, p.Owner, p.CorrelationID, p)
		return nil
	}
	if !errors.Is(derr, le.ErrExternalTransferFailed) {
		derr = fmt.Errorf("%w: %v", le.ErrExternalTransferFailed, derr)
	}

	cur, err := g.transition(context.WithoutCancel(ctx), correlationID, func(cur *payout.Payout) bool {
		// só esta tentativa pode marcar a falha; um resultado já recebido prevalece
		if cur.Status != payout.StatusSubmitted || cur.Attempts != p.Attempts {
			return false
		}
		cur.Status = payout.StatusFailed
		cur.LastError = derr.Error()
		return true
	})
	if err != nil {
		return errors.Join(derr, err)
	}
	if cur.Status == payout.StatusFailed {
		g.waiters.Notify(cur)
	}
	return derr
}

// transition aplica mut sob o lock do pagamento. mut devolve false quando não há mudança.
func (g *Gateway) transition(ctx context.Context, correlationID string, mut func(*payout.Payout) bool) (*payout.Payout, error) {
	unlock, err := g.locks.Lock(ctx, payoutKey(correlationID))
	if err != nil {
		return nil, err
	}
	defer unlock()
	p, err := g.payouts.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if !mut(p) {
		return p, nil
	}
	p.UpdatedAt = g.clock.Now()
	if err := g.payouts.Update(ctx, p); err != nil {
		return nil, err
	}
	g.metrics.Payout(string(p.Kind), string(p.Status))
	g.log.Info("payout status",
		zap.String("correlation_id", p.CorrelationID),
		zap.String("status", string(p.Status)),
		zap.Int("attempts", p.Attempts),
	)
	g.emit(events.PayoutUpdated, p.Owner, p.CorrelationID, p)
	return p, nil
}

// HandlePayoutResult aplica o retorno do colaborador de transferência. Confirmações repetidas são no-op.
func (g *Gateway) HandlePayoutResult(ctx context.Context, res events.PayoutResult) error {
	if res.CorrelationID == "" {
		return le.Validation("correlation id required")
	}
	var mut func(*payout.Payout) bool
	switch res.Status {
	case events.PayoutConfirmed:
		mut = func(p *payout.Payout) bool {
			if p.Status == payout.StatusConfirmed {
				return false
			}
			p.Status = payout.StatusConfirmed
			p.TxRef = res.TxRef
			p.LastError = ""
			return true
		}
	case events.PayoutFailed:
		mut = func(p *payout.Payout) bool {
			if p.Settled() || p.Status == payout.StatusFailed {
				return false
			}
			p.Status = payout.StatusFailed
			p.LastError = res.Reason
			return true
		}
	default:
		return le.Validation("unknown payout status %q", res.Status)
	}

	p, err := g.transition(ctx, res.CorrelationID, mut)
	if err != nil {
		return err
	}
	g.waiters.Notify(p)

	if p.Status == payout.StatusConfirmed && p.Kind == payout.KindWagerPayout {
		return g.markPaidOut(ctx, p.SubjectID)
	}
	return nil
}

// AwaitPayout bloqueia apenas o chamador até o pagamento ser confirmado ou falhar.
// Expirar o ctx não altera nada do que já foi gravado.
func (g *Gateway) AwaitPayout(ctx context.Context, correlationID string) (*payout.Payout, error) {
	ch, cancel := g.waiters.Register(correlationID)
	defer cancel()

	p, err := g.payouts.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if !p.Observable() {
		next, err := payout.Wait(ctx, ch)
		if err != nil {
			return p, err
		}
		p = next
	}
	if p.Status != payout.StatusConfirmed {
		return p, fmt.Errorf("%w: %s", le.ErrExternalTransferFailed, p.LastError)
	}
	return p, nil
}

func (g *Gateway) GetPayout(ctx context.Context, correlationID string) (*payout.Payout, error) {
	return g.payouts.Get(ctx, correlationID)
}

type ReconcileSummary struct {
	Redispatched int
	Failed       int
	Escalated    int
}

// Reconcile reenvia pagamentos gravados e não confirmados com o mesmo correlation id.
// Ao atingir PayoutMaxAttempts o pagamento é escalado para tratamento manual.
func (g *Gateway) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary
	stale := g.clock.Now().Add(-g.cfg.PayoutStaleAfter)
	list, err := g.payouts.ListForRetry(ctx, stale, g.cfg.ReconcileBatch)
	if err != nil {
		return sum, err
	}
	for _, p := range list {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if p.Attempts >= g.cfg.PayoutMaxAttempts {
			cur, err := g.transition(ctx, p.CorrelationID, func(cur *payout.Payout) bool {
				if cur.Settled() || cur.Attempts < g.cfg.PayoutMaxAttempts {
					return false
				}
				cur.Status = payout.StatusEscalated
				return true
			})
			if err != nil {
				g.log.Warn("payout escalate failed", zap.String("correlation_id", p.CorrelationID), zap.Error(err))
				continue
			}
			if cur.Status == payout.StatusEscalated {
				sum.Escalated++
				g.metrics.Reconciled("escalated")
				g.waiters.Notify(cur)
				g.log.Error("payout escalated",
					zap.String("correlation_id", cur.CorrelationID),
					zap.String("kind", string(cur.Kind)),
					zap.String("amount", cur.Amount.String()),
					zap.Int("attempts", cur.Attempts),
					zap.String("last_error", cur.LastError),
				)
			}
			continue
		}
		if err := g.dispatch(ctx, p.CorrelationID); err != nil {
			sum.Failed++
			g.metrics.Reconciled("failed")
			g.log.Warn("payout redispatch failed", zap.String("correlation_id", p.CorrelationID), zap.Error(err))
			continue
		}
		sum.Redispatched++
		g.metrics.Reconciled("redispatched")
	}
	if len(list) > 0 {
		g.log.Info("reconcile pass",
			zap.Int("candidates", len(list)),
			zap.Int("redispatched", sum.Redispatched),
			zap.Int("failed", sum.Failed),
			zap.Int("escalated", sum.Escalated),
		)
	}
	return sum, nil
}
