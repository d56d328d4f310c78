// Package infra holds the technical adapters of the scheduler: the sqlite
// and postgres stores, the zerolog logger, the Prometheus and InfluxDB
// sinks and the MQTT notifier. Adapters depend only on interfaces from the
// core packages.
package infra
