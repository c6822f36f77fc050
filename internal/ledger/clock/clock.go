package clock

import (
	"sync"
	"time"
)

const (
	HoursPerYear = 8760
	EpochLength  = 7 * 24 * time.Hour
)

// Clock fornece o tempo corrente. Implementações são somente leitura e seguras para uso concorrente.
type Clock interface {
	Now() time.Time
}

// System usa o relógio do sistema, sempre em UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Manual é um relógio controlado externamente (testes, replays).
type Manual struct {
	mu sync.RWMutex
	t  time.Time
}

func NewManual(t time.Time) *Manual { return &Manual{t: t.UTC()} }

func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.t = t.UTC()
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
	return m.t
}

// HoursElapsed conta apenas horas inteiras entre from e to; frações de hora não contam.
// Intervalos negativos retornam zero.
func HoursElapsed(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Hour)
}

// WeekStart retorna a segunda-feira 00:00 UTC da semana de t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // segunda = 0
	return day.AddDate(0, 0, -offset)
}

// EpochEnd retorna o fim (exclusivo) de uma época iniciada em start.
func EpochEnd(start time.Time) time.Time {
	return start.UTC().Add(EpochLength)
}
