// Package events publishes host lifecycle notifications as CloudEvents.
//
// A Bus implements Emitter and fans each event out to registered Observers
// synchronously, in registration order. Two observers are provided:
// LogObserver writes events to a zap logger and HTTPSink forwards them to a
// CloudEvents HTTP endpoint from a background goroutine.
//
//	bus := events.NewBus(logger)
//	bus.RegisterObserver(events.NewLogObserver(logger))
//	bus.RegisterObserver(sink, events.TypeHalted, events.TypeStartupFailed)
//
// Event data is a Lifecycle value encoded as JSON.
package events
