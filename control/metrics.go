// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus metrics for the completion engine and the scratch buffer pool.

package control

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics groups the runtime collectors.
type Metrics struct {
	Batches         prometheus.Counter
	Completions     prometheus.Counter
	SyncCompletions prometheus.Counter
	Duplicates      prometheus.Counter
	UnknownContexts prometheus.Counter
	WaitErrors      prometheus.Counter
	InFlight        prometheus.Gauge
	BufferMisses    prometheus.Counter
}

// NewMetrics builds the collectors and registers them with reg when non-nil.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		Batches:         counter("batches_total", "Completion batches harvested from the multiplexer."),
		Completions:     counter("completions_total", "Operation completions handled by workers."),
		SyncCompletions: counter("sync_completions_total", "Operations completed in place at submission."),
		Duplicates:      counter("duplicate_completions_total", "Completions skipped because the context was already claimed."),
		UnknownContexts: counter("unknown_contexts_total", "Harvested pointers without a registered context."),
		WaitErrors:      counter("wait_errors_total", "Failed multiplexer waits."),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "inflight_operations",
			Help:      "Submitted operations not yet completed.",
		}),
		BufferMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffers",
			Name:      "allocations_total",
			Help:      "Scratch buffers allocated because the bucket pool was empty.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	for _, c := range m.collectors() {
		if rerr := reg.Register(c); rerr != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(rerr, &are) {
				err = multierr.Append(err, rerr)
			}
		}
	}
	return m, err
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Batches, m.Completions, m.SyncCompletions, m.Duplicates,
		m.UnknownContexts, m.WaitErrors, m.InFlight, m.BufferMisses,
	}
}

// Unregister removes the collectors from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}
