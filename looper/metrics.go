package looper

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// queueMetrics is the Prometheus-backed counterpart of the teacher's
// hand-rolled Metrics struct (metrics.go: TPS, LatencyMetrics,
// QueueMetrics). Rather than reimplement percentile estimation by hand,
// this wires the real domain dependency the example pack carries for
// exactly this job (Belac-Technology-flow-catalyst, kedacore/keda both
// expose Prometheus collectors from their runtime loops).
type queueMetrics struct {
	pending  prometheus.Gauge
	pool     prometheus.Gauge
	enqueued prometheus.Counter
	dispatched prometheus.Counter
	dropped  prometheus.Counter
}

func newQueueMetrics(queueName string) *queueMetrics {
	labels := prometheus.Labels{"queue": queueName}
	return &queueMetrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "golooper",
			Name:        "queue_pending_messages",
			Help:        "Number of messages currently pending in the queue.",
			ConstLabels: labels,
		}),
		pool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "golooper",
			Name:        "queue_pool_messages",
			Help:        "Number of recycled message records currently held in the pool.",
			ConstLabels: labels,
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "golooper",
			Name:        "queue_enqueued_total",
			Help:        "Total number of messages successfully enqueued.",
			ConstLabels: labels,
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "golooper",
			Name:        "queue_dispatched_total",
			Help:        "Total number of messages dispatched by the loop.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "golooper",
			Name:        "queue_dropped_total",
			Help:        "Total number of messages dropped without dispatch (quit, removal, rejection).",
			ConstLabels: labels,
		}),
	}
}

func (m *queueMetrics) setPending(n int) { m.pending.Set(float64(n)) }
func (m *queueMetrics) setPool(n int)    { m.pool.Set(float64(n)) }

// Collectors returns every metric as a prometheus.Collector slice, for
// registration with a prometheus.Registerer. A nil return means the
// queue was built without WithMetrics.
func (q *MessageQueue) Collectors() []prometheus.Collector {
	if q.metrics == nil {
		return nil
	}
	return []prometheus.Collector{
		q.metrics.pending,
		q.metrics.pool,
		q.metrics.enqueued,
		q.metrics.dispatched,
		q.metrics.dropped,
	}
}

// DumpPending writes one free-form log line per pending message (spec
// §6: "output format is free-form log lines and not part of the ABI").
func (q *MessageQueue) DumpPending(w interface{ Write([]byte) (int, error) }) {
	reentrant := q.lock()
	defer q.unlock(reentrant)
	fmt.Fprintf(w, "queue %q instance=%q: %d pending\n", q.name, q.instanceID, q.size)
	i := 0
	for cur := q.head; cur != nil; cur = cur.next {
		fmt.Fprintf(w, "  [%d] what=%d arg1=%d arg2=%d when=%d target=%p\n",
			i, cur.What, cur.Arg1, cur.Arg2, cur.when, cur.target)
		i++
	}
}

// DumpPool writes one free-form line with the pool's current size and
// cap; the pooled records themselves are not listed.
func (q *MessageQueue) DumpPool(w interface{ Write([]byte) (int, error) }) {
	q.poolMu.Lock()
	defer q.poolMu.Unlock()
	fmt.Fprintf(w, "queue %q instance=%q: pool size=%d/%d\n", q.name, q.instanceID, q.poolSize, q.poolMaxSize)
}
