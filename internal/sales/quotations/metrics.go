package quotations

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Metrics counts lifecycle outcomes.
type Metrics struct {
	operations *prometheus.CounterVec
	invoices   prometheus.Counter
}

// NewMetrics registers the quote collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_quote_operations_total",
			Help: "Jumlah operasi siklus hidup penawaran berdasarkan hasil.",
		}, []string{"operation", "outcome"}),
		invoices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_invoices_materialized_total",
			Help: "Jumlah faktur yang dibuat dari penawaran yang disetujui.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.invoices)
	}
	return m
}

func (m *Metrics) observe(op Operation, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(op), outcome(err)).Inc()
}

func (m *Metrics) invoiceMaterialized() {
	if m == nil {
		return
	}
	m.invoices.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, shared.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
