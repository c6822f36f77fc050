package stake

import (
	"context"
	"sync"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Position
	byOwner map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Position), byOwner: make(map[string][]string)}
}

func (s *MemoryStore) Insert(_ context.Context, p *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return le.Conflict("position %s exists", p.ID)
	}
	s.byID[p.ID] = p.clone()
	s.byOwner[p.Owner] = append(s.byOwner[p.Owner], p.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, le.NotFound("position %s", id)
	}
	return p.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		return le.NotFound("position %s", p.ID)
	}
	s.byID[p.ID] = p.clone()
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Position, 0, len(s.byOwner[owner]))
	for _, id := range s.byOwner[owner] {
		out = append(out, s.byID[id].clone())
	}
	return out, nil
}
