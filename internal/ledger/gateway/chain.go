package gateway

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/money"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/payout"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/revenue"
	"github.com/radieske/bet-settlement-ledger/internal/ledger/stake"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

// HandleTransferConfirmed trata transferências de entrada confirmadas pela chain.
// O correlation id é o token de idempotência; eventos reentregues não têm efeito.
// Uma transferência recusada por validação com remetente conhecido vira um pagamento
// de devolução em vez de erro.
func (g *Gateway) HandleTransferConfirmed(ctx context.Context, ev events.TransferConfirmed) error {
	if ev.CorrelationID == "" {
		return le.Validation("correlation id required")
	}
	if !money.IsPositive(ev.Amount) {
		return le.Validation("amount must be positive")
	}

	err := g.applyTransfer(ctx, ev)
	if errors.Is(err, le.ErrValidation) {
		return g.refundDeposit(ctx, ev, err)
	}
	return err
}

func (g *Gateway) applyTransfer(ctx context.Context, ev events.TransferConfirmed) error {
	switch strings.ToLower(ev.Purpose) {
	case events.PurposeStake:
		hours := ev.LockDurationHours
		if hours <= 0 {
			hours = g.cfg.DefaultLockHours
		}
		_, replayed, err := g.openStake(ctx, stake.OpenRequest{
			ID:                ev.CorrelationID,
			Owner:             ev.From,
			Principal:         ev.Amount,
			Currency:          ev.Currency,
			LockDurationHours: hours,
		})
		if err != nil {
			return err
		}
		if replayed {
			g.log.Debug("duplicate stake transfer", zap.String("correlation_id", ev.CorrelationID))
		}
		return nil

	case events.PurposeRevenue:
		if ev.Currency != "" && !strings.EqualFold(ev.Currency, g.cfg.RevenueCurrency) {
			return le.Validation("unsupported revenue currency %q", ev.Currency)
		}
		_, _, err := once(ctx, g, "record_revenue", epochsKey, ev.CorrelationID, func(ctx context.Context) (*revenue.Credit, error) {
			return g.revenue.RecordRevenue(ctx, ev.CorrelationID, ev.Amount)
		})
		if errors.Is(err, revenue.ErrDuplicateCredit) {
			// cache de idempotência expirado; o crédito já está gravado
			g.log.Debug("duplicate revenue transfer", zap.String("correlation_id", ev.CorrelationID))
			return nil
		}
		return err

	default:
		return le.Validation("unknown transfer purpose %q", ev.Purpose)
	}
}

// refundDeposit devolve ao remetente uma transferência que o ledger não pode aceitar.
// Sem remetente ou moeda conhecida não há para onde devolver e o erro original segue.
func (g *Gateway) refundDeposit(ctx context.Context, ev events.TransferConfirmed, reason error) error {
	from := strings.TrimSpace(ev.From)
	currency := g.transferCurrency(ev)
	if from == "" || currency == "" {
		return reason
	}

	var created *payout.Payout
	p, replayed, err := once(ctx, g, "refund_deposit", ownerKey(from), ev.CorrelationID, func(ctx context.Context) (*payout.Payout, error) {
		corr := payout.CorrelationID(payout.KindDepositRefund, ev.CorrelationID)
		dest := money.Destination{Mode: money.ModeWallet, Address: from}
		p, isNew, err := g.ensurePayout(ctx, g.newPayout(payout.KindDepositRefund, ev.CorrelationID, from, dest, ev.Amount, currency, corr))
		if err != nil {
			return nil, err
		}
		if isNew {
			created = p
		}
		return p, nil
	})
	if created != nil {
		g.dispatchAsync(created.CorrelationID)
	}
	if err != nil {
		return err
	}
	if !replayed {
		g.log.Warn("transfer rejected, refund recorded",
			zap.String("correlation_id", ev.CorrelationID),
			zap.String("purpose", ev.Purpose),
			zap.String("from", from),
			zap.String("amount", p.Amount.String()),
			zap.Error(reason),
		)
		g.emit(events.DepositRefunded, from, ev.CorrelationID, p)
	}
	return nil
}

func (g *Gateway) transferCurrency(ev events.TransferConfirmed) string {
	if ev.Currency != "" {
		return strings.ToUpper(ev.Currency)
	}
	switch strings.ToLower(ev.Purpose) {
	case events.PurposeStake:
		return g.stakes.Currency()
	case events.PurposeRevenue:
		return g.cfg.RevenueCurrency
	}
	return ""
}
