// Package prometheus exposes goTasks engine metrics through the Prometheus
// client library.
//
// [Collector] turns each engine snapshot into const metrics: one
// gotasks_*_total counter per engine counter and the
// gotasks_access_token_verify_seconds histogram. [PrometheusExporter] owns a
// private registry and serves it over HTTP; nothing is registered globally.
package prometheus
