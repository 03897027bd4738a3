// Package metrics provides Prometheus instrumentation for webstreams components.
//
// # Overview
//
// Streams record into a *Registry when one is set on their configuration:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	cfg := streams.DefaultConfig[[]byte]()
//	cfg.Name = "uploads"
//	cfg.Metrics = reg
//	rs, err := streams.NewReadableStreamWithConfig(source, cfg)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// ## Queue Metrics
//
//   - webstreams_queue_chunks_enqueued_total: chunks accepted into a stream queue
//   - webstreams_queue_chunks_delivered_total: chunks handed to a reader or a sink
//   - webstreams_queue_size: current total strategy size of queued chunks
//   - webstreams_queue_desired_size: high water mark minus queued size
//   - webstreams_backpressure_events_total: transitions into backpressure
//
// ## Lifecycle Metrics
//
//   - webstreams_source_pulls_total: pull callbacks issued to underlying sources
//   - webstreams_stream_errors_total: streams that became errored
//   - webstreams_stream_cancellations_total: readable cancels and writable aborts
//
// ## Pipe Metrics
//
//   - webstreams_pipe_completions_total: finished pipes by result ("ok" or "error")
//   - webstreams_pipe_duration_seconds: time until every propagation settled
//
// # Labels
//
//   - stream_name: Config.Name of the stream ("" when unnamed)
//   - side: "readable" or "writable"
//   - result: pipe outcome
//
// # Configuration
//
//	config := metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "myapp",
//		Labels:    prometheus.Labels{"version": "1.0"},
//	}
//	reg := config.Build()
//
// Metrics are updated only when stream operations occur; there are no
// background goroutines or timers.
package metrics
