package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrUnknownSelection = errors.New("unknown selection")

// Quote é o estado atual de uma seleção no catálogo.
type Quote struct {
	Open bool
	Odds decimal.Decimal // zero quando o catálogo não publica odd
}

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Key gera a chave Redis de uma seleção: "catalog:{market}:{selection}"
func Key(marketID, selectionID string) string {
	return fmt.Sprintf("catalog:%s:%s", marketID, selectionID)
}

// Redis lê o espelho do catálogo mantido pelo catalog-sync-worker.
type Redis struct {
	Rdb *redis.Client
}

func NewRedis(r *redis.Client) *Redis { return &Redis{Rdb: r} }

// Lookup espera um hash com campos "status" e "odds" (ex.: "1.85").
func (c *Redis) Lookup(ctx context.Context, marketID, selectionID string) (Quote, error) {
	vals, err := c.Rdb.HGetAll(ctx, Key(marketID, selectionID)).Result()
	if err != nil {
		return Quote{}, err
	}
	if len(vals) == 0 {
		return Quote{}, ErrUnknownSelection
	}
	q := Quote{Open: vals["status"] == StatusOpen}
	if raw := vals["odds"]; raw != "" {
		odds, err := decimal.NewFromString(raw)
		if err != nil {
			return Quote{}, fmt.Errorf("catalog odds %q: %w", raw, err)
		}
		q.Odds = odds
	}
	return q, nil
}

// Store grava o estado de uma seleção (usado pelo catalog-sync-worker).
func (c *Redis) Store(ctx context.Context, marketID, selectionID, status string, odds decimal.Decimal) error {
	fields := map[string]any{"status": status}
	if !odds.IsZero() {
		fields["odds"] = odds.String()
	}
	return c.Rdb.HSet(ctx, Key(marketID, selectionID), fields).Err()
}

// Static é um catálogo em memória para ambiente local e testes.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStatic() *Static { return &Static{quotes: make(map[string]Quote)} }

func (s *Static) Set(marketID, selectionID string, q Quote) {
	s.mu.Lock()
	s.quotes[Key(marketID, selectionID)] = q
	s.mu.Unlock()
}

func (s *Static) Lookup(_ context.Context, marketID, selectionID string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[Key(marketID, selectionID)]
	if !ok {
		return Quote{}, ErrUnknownSelection
	}
	return q, nil
}
