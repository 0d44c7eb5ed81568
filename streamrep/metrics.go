package streamrep

import "github.com/andreyvit/streamrep/mvpmetrics"

// MetricLabels is the label set attached to every counter this package
// exposes. This package always increments with the zero value (Endpoint
// left empty; one subscription per process is the common case), but it is
// a struct, not a bare Inc(), so a caller embedding multiple subscriptions
// per process can widen it without an API break.
type MetricLabels struct {
	Endpoint string
}

// Metrics groups the counters a SubscriberLoop increments as it runs.
// Callers share one *Metrics across every subscription they own.
type Metrics struct {
	Reconnects      mvpmetrics.ValueVector[MetricLabels]
	MalformedChunks mvpmetrics.ValueVector[MetricLabels]
	EntriesPublished mvpmetrics.ValueVector[MetricLabels]
	HeadUpdates      mvpmetrics.ValueVector[MetricLabels]
}

// NewMetrics returns a ready-to-use, zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// CounterSnapshot is one label/value pair as reported by Snapshot.
type CounterSnapshot struct {
	Name   string       `json:"name"`
	Labels MetricLabels `json:"labels"`
	Value  int64        `json:"value"`
}

// Snapshot flattens every counter into a slice suitable for a status
// endpoint or a log line. It takes an independent lock per counter, so the
// result is not a single atomic point-in-time view across counters, only
// within each one.
func (m *Metrics) Snapshot() []CounterSnapshot {
	var out []CounterSnapshot
	collect := func(name string, vv *mvpmetrics.ValueVector[MetricLabels]) {
		vv.Enum(func(labels MetricLabels, value int64) {
			out = append(out, CounterSnapshot{Name: name, Labels: labels, Value: value})
		})
	}
	collect("reconnects", &m.Reconnects)
	collect("malformed_chunks", &m.MalformedChunks)
	collect("entries_published", &m.EntriesPublished)
	collect("head_updates", &m.HeadUpdates)
	return out
}
