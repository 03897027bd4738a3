// Package metrics provides Prometheus instrumentation for webstreams components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultNamespace = "webstreams"

// Registry holds all metric instances for stream components.
type Registry struct {
	// Queue Metrics
	ChunksEnqueued     *prometheus.CounterVec
	ChunksDelivered    *prometheus.CounterVec
	QueueSize          *prometheus.GaugeVec
	DesiredSize        *prometheus.GaugeVec
	BackpressureEvents *prometheus.CounterVec

	// Lifecycle Metrics
	Pulls         *prometheus.CounterVec
	StreamErrors  *prometheus.CounterVec
	Cancellations *prometheus.CounterVec

	// Pipe Metrics
	PipeCompletions *prometheus.CounterVec
	PipeDuration    *prometheus.HistogramVec
}

// DefaultRegistry is the default metrics registry used by webstreams components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, defaultNamespace, nil)
}

// NewRegistryWithConfig creates a registry honouring config's Namespace and
// constant Labels. A nil config.Registry selects prometheus.DefaultRegisterer.
func NewRegistryWithConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	return newRegistry(reg, namespace, config.Labels)
}

func newRegistry(reg prometheus.Registerer, namespace string, labels prometheus.Labels) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ChunksEnqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "queue",
				Name:        "chunks_enqueued_total",
				Help:        "Total number of chunks accepted into a stream queue",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		ChunksDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "queue",
				Name:        "chunks_delivered_total",
				Help:        "Total number of chunks handed to a reader or a sink",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		QueueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "queue",
				Name:        "size",
				Help:        "Current total strategy size of queued chunks",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		DesiredSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "queue",
				Name:        "desired_size",
				Help:        "High water mark minus queued size; zero or negative means backpressure",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "backpressure",
				Name:        "events_total",
				Help:        "Total number of transitions into backpressure",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		Pulls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "source",
				Name:        "pulls_total",
				Help:        "Total number of pull callbacks issued to underlying sources",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "stream",
				Name:        "errors_total",
				Help:        "Total number of streams that transitioned to errored",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		Cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "stream",
				Name:        "cancellations_total",
				Help:        "Total number of readable cancels and writable aborts",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		PipeCompletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipe",
				Name:        "completions_total",
				Help:        "Total number of finished pipes by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),

		PipeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipe",
				Name:        "duration_seconds",
				Help:        "Time from pipe start until every propagation settled",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}
}
