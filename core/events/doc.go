// Package events defines the schedule lifecycle events emitted on the bus.
//
// Every change to the persisted schedule publishes one ScheduleEvent whose
// Kind names what happened. Subscribers include the metrics collector and
// the MQTT notifier.
package events
