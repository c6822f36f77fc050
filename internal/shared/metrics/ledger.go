package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger agrupa os coletores do gateway do ledger. Um *Ledger nil é válido e não registra nada.
type Ledger struct {
	ops       *prometheus.CounterVec
	replays   *prometheus.CounterVec
	lockWait  prometheus.Histogram
	payouts   *prometheus.CounterVec
	reconcile *prometheus.CounterVec
}

func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total", Help: "operações do gateway por resultado",
		}, []string{"op", "result"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_idempotent_replays_total", Help: "respostas servidas do cache de idempotência",
		}, []string{"op"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ledger_key_lock_wait_seconds", Help: "espera pelo lock por chave",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payouts_total", Help: "transições de pagamento",
		}, []string{"kind", "status"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconcile_total", Help: "pagamentos tratados pela reconciliação",
		}, []string{"action"}),
	}
	reg.MustRegister(m.ops, m.replays, m.lockWait, m.payouts, m.reconcile)
	return m
}

func (m *Ledger) Op(op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
}

func (m *Ledger) Replay(op string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(op).Inc()
}

func (m *Ledger) LockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Ledger) Payout(kind, status string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(kind, status).Inc()
}

func (m *Ledger) Reconciled(action string) {
	if m == nil {
		return
	}
	m.reconcile.WithLabelValues(action).Inc()
}
