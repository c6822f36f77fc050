package wager

import (
	"context"
	"sync"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

// MemoryStore mantém apostas em memória, em ordem de inserção.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Wager
	byOwner map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Wager), byOwner: make(map[string][]string)}
}

func (s *MemoryStore) Insert(_ context.Context, w *Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[w.ID]; ok {
		return le.Conflict("wager %s exists", w.ID)
	}
	s.byID[w.ID] = w.clone()
	s.byOwner[w.Owner] = append(s.byOwner[w.Owner], w.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byID[id]
	if !ok {
		return nil, le.NotFound("wager %s", id)
	}
	return w.clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, w *Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[w.ID]; !ok {
		return le.NotFound("wager %s", w.ID)
	}
	s.byID[w.ID] = w.clone()
	return nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]*Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[owner]
	out := make([]*Wager, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].clone())
	}
	return out, nil
}
