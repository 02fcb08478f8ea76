// Package prometheus provides a Prometheus exposition for goRefresh metrics.
//
// [NewPrometheusExporter] accepts a [goRefresh.Engine] and exposes an
// [http.Handler] that renders every engine counter, the rotation latency
// histogram, and the audit drop counter in Prometheus text exposition format.
// Counter names are prefixed gorefresh_*_total; the single histogram is
// gorefresh_rotate_latency_ms.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
