// Package prometheus renders authcore metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an [authcore.Service] and exposes an
// [net/http.Handler] that renders every core counter and histogram.
// Counter names are prefixed authcore_*_total; the single histogram is
// authcore_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount
//     the Handler.
//   - Mutate service state.
package prometheus
