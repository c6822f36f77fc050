package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/catalog"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Store é o espelho do catálogo lido pelo ledger no PlaceWager.
type Store interface {
	Store(ctx context.Context, marketID, selectionID, status string, odds decimal.Decimal) error
}

// Processor consome market_status e mantém o espelho Redis do catálogo
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa
type Processor struct {
	Log    *zap.Logger
	Reader Reader
	Store  Store

	OnConsumed func()       // métricas (counter++)
	OnStored   func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var ev events.MarketStatus
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.MarketID == "" || ev.SelectionID == "" {
			p.Log.Warn("invalid market_status message", zap.ByteString("value", m.Value), zap.Error(err))
			p.onError("decode")
			continue
		}

		status := strings.ToLower(ev.Status)
		if status != catalog.StatusOpen {
			status = catalog.StatusClosed // qualquer estado desconhecido fecha a seleção
		}
		if err := p.Store.Store(ctx, ev.MarketID, ev.SelectionID, status, ev.Odds); err != nil {
			p.Log.Warn("catalog store failed", zap.String("market_id", ev.MarketID), zap.Error(err))
			p.onError("store")
			continue
		}
		if p.OnStored != nil {
			p.OnStored()
		}
		p.Log.Debug("catalog updated",
			zap.String("market_id", ev.MarketID),
			zap.String("selection_id", ev.SelectionID),
			zap.String("status", status),
			zap.Int("version", ev.Version),
		)
	}
}

func (p *Processor) onError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}
