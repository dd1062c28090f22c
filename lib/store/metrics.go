package store

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// opMetrics records counters and latency histograms per store operation:
//
//	fkv_ops_total{op="get"}
//	fkv_errors_total{op="get",code="NotFoundError"}
//	fkv_op_duration_seconds{op="get"}
//
// Metrics are registered in the given set, or in the default VictoriaMetrics
// set when it is nil (exposed by metrics.WritePrometheus).
type opMetrics struct {
	set *metrics.Set
}

func (m *opMetrics) counter(name string) *metrics.Counter {
	if m.set == nil {
		return metrics.GetOrCreateCounter(name)
	}
	return m.set.GetOrCreateCounter(name)
}

func (m *opMetrics) histogram(name string) *metrics.Histogram {
	if m.set == nil {
		return metrics.GetOrCreateHistogram(name)
	}
	return m.set.GetOrCreateHistogram(name)
}

// observe is meant to be deferred with the start time and a pointer to the
// named error result of the operation.
func (m *opMetrics) observe(op string, start time.Time, err *error) {
	m.counter(fmt.Sprintf(`fkv_ops_total{op=%q}`, op)).Inc()
	if err != nil && *err != nil {
		m.counter(fmt.Sprintf(`fkv_errors_total{op=%q,code=%q}`, op, CodeOf(*err))).Inc()
	}
	m.histogram(fmt.Sprintf(`fkv_op_duration_seconds{op=%q}`, op)).UpdateDuration(start)
}
