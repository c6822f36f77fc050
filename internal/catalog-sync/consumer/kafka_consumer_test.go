package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/ledger/catalog"
)

type sliceReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

type memStore map[string]string

func (s memStore) Store(_ context.Context, marketID, selectionID, status string, odds decimal.Decimal) error {
	s[catalog.Key(marketID, selectionID)] = status + "@" + odds.String()
	return nil
}

func TestProcessor_MirrorsMarketStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memStore{}
	var decodeErrors int
	p := &Processor{
		Log:   zap.NewNop(),
		Store: store,
		Reader: &sliceReader{cancel: cancel, msgs: []kafka.Message{
			{Value: []byte(`{"market_id":"M1","selection_id":"home","status":"open","odds":"1.85","version":1}`)},
			{Value: []byte(`{"market_id":"M1","selection_id":"away","status":"SUSPENDED","odds":"3.1","version":1}`)},
			{Value: []byte(`{"selection_id":"x"}`)},
		}},
		OnError: func(phase string) {
			if phase == "decode" {
				decodeErrors++
			}
		},
	}
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if got := store[catalog.Key("M1", "home")]; got != "open@1.85" {
		t.Fatalf("home=%s", got)
	}
	if got := store[catalog.Key("M1", "away")]; got != "closed@3.1" {
		t.Fatalf("away=%s", got)
	}
	if decodeErrors != 1 {
		t.Fatalf("decode errors=%d want=1", decodeErrors)
	}
}
