// Package metrics defines the sinks that record scheduling runs and
// schedule changes. Implementations live in infra/metrics and register
// themselves by name; NewMetricsSink builds a MultiSink when more than one
// sink is configured.
package metrics
