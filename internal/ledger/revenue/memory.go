package revenue

import (
	"context"
	"sort"
	"sync"

	le "github.com/radieske/bet-settlement-ledger/internal/ledger/ledgererr"
)

type claimKey struct {
	epoch    int64
	claimant string
}

type MemoryStore struct {
	mu     sync.RWMutex
	epochs []*Epoch // ordenadas por id
	claims map[claimKey]*ClaimRecord
	order  map[int64][]string
	credit map[string]*Credit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims: make(map[claimKey]*ClaimRecord),
		order:  make(map[int64][]string),
		credit: make(map[string]*Credit),
	}
}

// InsertEpoch absorve os créditos pendentes na época nova e soma em e.CollectedAmount.
func (s *MemoryStore) InsertEpoch(_ context.Context, e *Epoch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.epochs); n > 0 && s.epochs[n-1].ID >= e.ID {
		return le.Conflict("epoch %d exists", e.ID)
	}
	if e.Status == StatusOpen {
		for _, c := range s.credit {
			if c.Pending() {
				c.EpochID = e.ID
				e.CollectedAmount = e.CollectedAmount.Add(c.Amount)
			}
		}
	}
	s.epochs = append(s.epochs, e.clone())
	return nil
}

// InsertCredit grava o crédito e, se atribuído a uma época, soma no coletado dela.
func (s *MemoryStore) InsertCredit(_ context.Context, c *Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credit[c.CorrelationID]; ok {
		return ErrDuplicateCredit
	}
	if !c.Pending() {
		i := s.indexOf(c.EpochID)
		if i < 0 {
			return le.NotFound("epoch %d", c.EpochID)
		}
		if s.epochs[i].Status != StatusOpen {
			return le.Conflict("epoch %d is not open", c.EpochID)
		}
		s.epochs[i].CollectedAmount = s.epochs[i].CollectedAmount.Add(c.Amount)
	}
	cp := *c
	s.credit[c.CorrelationID] = &cp
	return nil
}

func (s *MemoryStore) PendingCredits(_ context.Context) ([]*Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credit
	for _, c := range s.credit {
		if c.Pending() {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (s *MemoryStore) indexOf(id int64) int {
	for i, e := range s.epochs {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) UpdateEpoch(_ context.Context, e *Epoch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.epochs {
		if cur.ID == e.ID {
			s.epochs[i] = e.clone()
			return nil
		}
	}
	return le.NotFound("epoch %d", e.ID)
}

func (s *MemoryStore) GetEpoch(_ context.Context, id int64) (*Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.epochs {
		if e.ID == id {
			return e.clone(), nil
		}
	}
	return nil, le.NotFound("epoch %d", id)
}

func (s *MemoryStore) LatestEpoch(_ context.Context) (*Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.epochs) == 0 {
		return nil, le.NotFound("no epochs")
	}
	return s.epochs[len(s.epochs)-1].clone(), nil
}

func (s *MemoryStore) InsertClaim(_ context.Context, c *ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{c.EpochID, c.ClaimantID}
	if _, ok := s.claims[k]; ok {
		return le.ErrAlreadyClaimed
	}
	cp := *c
	s.claims[k] = &cp
	s.order[c.EpochID] = append(s.order[c.EpochID], c.ClaimantID)
	return nil
}

func (s *MemoryStore) GetClaim(_ context.Context, epochID int64, claimantID string) (*ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimKey{epochID, claimantID}]
	if !ok {
		return nil, le.NotFound("claim %d/%s", epochID, claimantID)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListClaims(_ context.Context, epochID int64) ([]*ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ClaimRecord, 0, len(s.order[epochID]))
	for _, id := range s.order[epochID] {
		cp := *s.claims[claimKey{epochID, id}]
		out = append(out, &cp)
	}
	return out, nil
}
