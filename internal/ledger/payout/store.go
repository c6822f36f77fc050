package payout

import (
	"context"
	"sort"
	"sync"
	"time"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

type Store interface {
	// Insert falha com ErrConflict se o correlation id já existe.
	Insert(ctx context.Context, p *Payout) error
	Get(ctx context.Context, correlationID string) (*Payout, error)
	Update(ctx context.Context, p *Payout) error
	// ListForRetry devolve pagamentos recorded/failed e submitted sem resposta desde staleBefore.
	ListForRetry(ctx context.Context, staleBefore time.Time, limit int) ([]*Payout, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Payout
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Payout)}
}

func (s *MemoryStore) Insert(_ context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.CorrelationID]; ok {
		return le.Conflict("payout %s exists", p.CorrelationID)
	}
	s.rows[p.CorrelationID] = p.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, le.NotFound("payout %s", id)
	}
	return p.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.CorrelationID]; !ok {
		return le.NotFound("payout %s", p.CorrelationID)
	}
	s.rows[p.CorrelationID] = p.clone()
	return nil
}

func (s *MemoryStore) ListForRetry(_ context.Context, staleBefore time.Time, limit int) ([]*Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Payout
	for _, p := range s.rows {
		switch {
		case p.Status == StatusRecorded, p.Status == StatusFailed:
		case p.Status == StatusSubmitted && p.UpdatedAt.Before(staleBefore):
		default:
			continue
		}
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
