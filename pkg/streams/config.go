package streams

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/webstreams/pkg/metrics"
)

const defaultName = "stream"

// Config holds the configuration shared by readable and writable streams.
type Config[T any] struct {
	// Name identifies the stream in logs and metric labels.
	Name string

	// Strategy sets the high water mark and chunk sizing.
	Strategy QueuingStrategy[T]

	// Logger receives lifecycle events at debug level. Nil discards them.
	Logger logrus.FieldLogger

	// Metrics records queue and lifecycle metrics. Nil disables metrics.
	Metrics *metrics.Registry
}

// DefaultConfig returns a configuration with a CountQueuingStrategy of 1,
// a discarding logger and no metrics.
func DefaultConfig[T any]() Config[T] {
	return Config[T]{
		Name:     defaultName,
		Strategy: CountQueuingStrategy[T](1),
		Logger:   discardLogger(),
	}
}

// TransformConfig configures both sides of a TransformStream.
type TransformConfig[I, O any] struct {
	Name             string
	WritableStrategy QueuingStrategy[I]
	ReadableStrategy QueuingStrategy[O]
	Logger           logrus.FieldLogger
	Metrics          *metrics.Registry
}

// DefaultTransformConfig buffers one chunk on the writable side and none on
// the readable side, so readable backpressure reaches writers immediately.
func DefaultTransformConfig[I, O any]() TransformConfig[I, O] {
	return TransformConfig[I, O]{
		Name:             "transform",
		WritableStrategy: CountQueuingStrategy[I](1),
		ReadableStrategy: CountQueuingStrategy[O](0),
		Logger:           discardLogger(),
	}
}

func (c TransformConfig[I, O]) writableConfig() Config[I] {
	return Config[I]{Name: c.Name, Strategy: c.WritableStrategy, Logger: c.Logger, Metrics: c.Metrics}
}

func (c TransformConfig[I, O]) readableConfig() Config[O] {
	return Config[O]{Name: c.Name, Strategy: c.ReadableStrategy, Logger: c.Logger, Metrics: c.Metrics}
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// telemetry bundles the logger and metric instruments of one stream side.
type telemetry struct {
	name string
	side string
	log  logrus.FieldLogger
	reg  *metrics.Registry
}

func newTelemetry(name, side string, logger logrus.FieldLogger, reg *metrics.Registry) *telemetry {
	if name == "" {
		name = defaultName
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &telemetry{
		name: name,
		side: side,
		log:  logger.WithFields(logrus.Fields{"stream": name, "side": side}),
		reg:  reg,
	}
}

func (t *telemetry) enqueued() {
	if t.reg != nil {
		t.reg.ChunksEnqueued.WithLabelValues(t.name, t.side).Inc()
	}
}

func (t *telemetry) delivered() {
	if t.reg != nil {
		t.reg.ChunksDelivered.WithLabelValues(t.name, t.side).Inc()
	}
}

func (t *telemetry) queue(size, desired float64) {
	if t.reg != nil {
		t.reg.QueueSize.WithLabelValues(t.name, t.side).Set(size)
		t.reg.DesiredSize.WithLabelValues(t.name, t.side).Set(desired)
	}
}

func (t *telemetry) backpressure() {
	if t.reg != nil {
		t.reg.BackpressureEvents.WithLabelValues(t.name, t.side).Inc()
	}
}

func (t *telemetry) pull() {
	if t.reg != nil {
		t.reg.Pulls.WithLabelValues(t.name).Inc()
	}
}

func (t *telemetry) errored(reason error) {
	t.log.WithError(reason).Debug("stream errored")
	if t.reg != nil {
		t.reg.StreamErrors.WithLabelValues(t.name, t.side).Inc()
	}
}

func (t *telemetry) cancelled(event string, reason error) {
	t.log.WithField("reason", reason).Debug(event)
	if t.reg != nil {
		t.reg.Cancellations.WithLabelValues(t.name, t.side).Inc()
	}
}
