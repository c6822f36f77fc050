package payout

import (
	"context"
	"sync"
)

// Waiters permite que um chamador aguarde o desfecho de um pagamento sem segurar
// o lock da chave.
type Waiters struct {
	mu sync.Mutex
	m  map[string][]chan *Payout
}

func NewWaiters() *Waiters {
	return &Waiters{m: make(map[string][]chan *Payout)}
}

// Register devolve um canal que recebe o próximo estado observável e uma função de cancelamento.
func (w *Waiters) Register(correlationID string) (<-chan *Payout, func()) {
	ch := make(chan *Payout, 1)
	w.mu.Lock()
	w.m[correlationID] = append(w.m[correlationID], ch)
	w.mu.Unlock()
	return ch, func() { w.remove(correlationID, ch) }
}

func (w *Waiters) Notify(p *Payout) {
	w.mu.Lock()
	chs := w.m[p.CorrelationID]
	delete(w.m, p.CorrelationID)
	w.mu.Unlock()
	for _, ch := range chs {
		ch <- p.clone()
	}
}

func (w *Waiters) remove(id string, ch chan *Payout) {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := w.m[id]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(w.m, id)
		return
	}
	w.m[id] = list
}

// Wait bloqueia até Notify ou até o ctx expirar.
func Wait(ctx context.Context, ch <-chan *Payout) (*Payout, error) {
	select {
	case p := <-ch:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
