// Package metrics defines the instruments the bridge records and their
// Prometheus implementation.
//
// Instruments are small interfaces with no-op defaults, so the bridge never
// checks whether metrics are enabled:
//
//	m := metrics.New(prometheus.NewRegistry(), "app")
//	m.Completions.With("stale").Inc()
//
// Handler exposes a registry over HTTP for scraping.
package metrics
