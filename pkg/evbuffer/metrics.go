package evbuffer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the evbuffer_* Prometheus instruments a Buffer reports into
// when Config.Metrics is non-nil. Each instrument is built with
// promauto.With(registerer) so registration happens at construction time.
type Metrics struct {
	SegmentsAllocated prometheus.Counter
	SegmentsReleased  prometheus.Counter
	SegmentsPooled    prometheus.Counter

	BytesAppended prometheus.Counter
	BytesDrained  prometheus.Counter

	CallbackDispatchTotal    prometheus.Counter
	CallbackDispatchDuration prometheus.Histogram
	CallbackPanicsTotal      prometheus.Counter

	DeferredQueueDepth prometheus.Gauge
}

// NewMetrics registers the evbuffer instruments with registerer. Pass
// prometheus.DefaultRegisterer for process-wide metrics, or a dedicated
// registry in tests to avoid duplicate-registration panics across cases.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	return &Metrics{
		SegmentsAllocated: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_segments_allocated_total",
			Help: "Total number of segments allocated (heap, reference, or file-backed).",
		}),
		SegmentsReleased: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_segments_released_total",
			Help: "Total number of segments released (drained fully or freed with the buffer).",
		}),
		SegmentsPooled: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_segments_pooled_total",
			Help: "Total number of heap segment backing arrays returned to the pool.",
		}),
		BytesAppended: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_bytes_appended_total",
			Help: "Total bytes added to the tail across Add/AddReference/AddBuffer/CommitSpace.",
		}),
		BytesDrained: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_bytes_drained_total",
			Help: "Total bytes removed from the front across Drain/Remove/RemoveBuffer/Readln.",
		}),
		CallbackDispatchTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_callback_dispatch_total",
			Help: "Total number of change-callback invocations.",
		}),
		CallbackDispatchDuration: promauto.With(registerer).NewHistogram(prometheus.HistogramOpts{
			Name:    "evbuffer_callback_dispatch_duration_seconds",
			Help:    "Wall time spent inside a single change-callback invocation.",
			Buckets: prometheus.DefBuckets,
		}),
		CallbackPanicsTotal: promauto.With(registerer).NewCounter(prometheus.CounterOpts{
			Name: "evbuffer_callback_panics_total",
			Help: "Total number of change-callback invocations that panicked and were recovered.",
		}),
		DeferredQueueDepth: promauto.With(registerer).NewGauge(prometheus.GaugeOpts{
			Name: "evbuffer_deferred_queue_depth",
			Help: "Number of callback dispatches in the batch a buffer is currently running; 0 when idle.",
		}),
	}
}

func (b *Buffer) recordSegmentAllocated() {
	if m := b.cfg.Metrics; m != nil {
		m.SegmentsAllocated.Inc()
	}
}

func (b *Buffer) recordSegmentReleased() {
	if m := b.cfg.Metrics; m != nil {
		m.SegmentsReleased.Inc()
	}
}

func (b *Buffer) recordSegmentPooled() {
	if m := b.cfg.Metrics; m != nil {
		m.SegmentsPooled.Inc()
	}
}

func (b *Buffer) recordBytesAppended(n int) {
	if n <= 0 {
		return
	}
	if m := b.cfg.Metrics; m != nil {
		m.BytesAppended.Add(float64(n))
	}
}

func (b *Buffer) recordBytesDrained(n int) {
	if n <= 0 {
		return
	}
	if m := b.cfg.Metrics; m != nil {
		m.BytesDrained.Add(float64(n))
	}
}

func (b *Buffer) timeCallbackDispatch() func() {
	m := b.cfg.Metrics
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.CallbackDispatchTotal.Inc()
	return func() { m.CallbackDispatchDuration.Observe(time.Since(start).Seconds()) }
}
