package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement-ledger/internal/chain-simulator/dto"
	"github.com/radieske/bet-settlement-ledger/pkg/contracts/events"
)

type fakePublisher struct{ sent []events.TransferConfirmed }

func (f *fakePublisher) PublishTransfer(_ context.Context, ev events.TransferConfirmed) error {
	f.sent = append(f.sent, ev)
	return nil
}

func transfer(corr string) dto.TransferReq {
	return dto.TransferReq{CorrelationID: corr, Mode: "wallet", Destination: "0xabc", Amount: decimal.RequireFromString("25"), Currency: "USDC"}
}

func TestTransfer_ConfirmedIsIdempotent(t *testing.T) {
	s := New(zap.NewNop(), &fakePublisher{}, 0)
	first, err := s.Transfer(context.Background(), transfer("c1"))
	if err != nil || first.Status != dto.StatusConfirmed || first.TxRef == "" {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	s.rnd = func() float64 { return 0 } // forçaria rejeição se não houvesse replay
	s.failureRate = 1
	second, _ := s.Transfer(context.Background(), transfer("c1"))
	if second != first {
		t.Fatalf("second=%+v want=%+v", second, first)
	}
}

func TestTransfer_RejectionCanBeRetried(t *testing.T) {
	s := New(zap.NewNop(), &fakePublisher{}, 0.5)
	s.rnd = func() float64 { return 0.1 }
	resp, _ := s.Transfer(context.Background(), transfer("c2"))
	if resp.Status != dto.StatusRejected {
		t.Fatalf("status=%s want=REJECTED", resp.Status)
	}
	s.rnd = func() float64 { return 0.9 }
	resp, _ = s.Transfer(context.Background(), transfer("c2"))
	if resp.Status != dto.StatusConfirmed {
		t.Fatalf("retry status=%s want=CONFIRMED", resp.Status)
	}
}

func TestDeposit_PublishesTransferConfirmed(t *testing.T) {
	pub := &fakePublisher{}
	s := New(zap.NewNop(), pub, 0)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(dto.DepositReq{Purpose: "stake", From: "alice", Amount: decimal.RequireFromString("500"), Currency: "BET", LockDurationHours: 24})
	resp, err := http.Post(srv.URL+"/chain/deposit", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out dto.DepositResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.CorrelationID == "" {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if len(pub.sent) != 1 || pub.sent[0].CorrelationID != out.CorrelationID || pub.sent[0].LockDurationHours != 24 {
		t.Fatalf("sent=%+v", pub.sent)
	}

	bad, _ := json.Marshal(dto.DepositReq{Purpose: "gift", From: "alice", Amount: decimal.RequireFromString("1")})
	resp2, err := http.Post(srv.URL+"/chain/deposit", "application/json", bytes.NewReader(bad))
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", resp2.StatusCode)
	}
}
