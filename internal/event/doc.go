// Package event provides the publish/subscribe bus that decouples the
// settings store, the communication client and their consumers.
//
// # Topics
//
// Events are named with colon-delimited topics:
//
//	settings:changed        - a setting was written (debounced)
//	settings:saved          - the tree was persisted
//	palette:applyFailed     - a palette application failed
//	error:occurred          - a handler or request failed
//
// Subscriptions may use "*" to match one segment, and a trailing "*" to
// match every remaining segment. See package topic for the exact rules.
//
// # Delivery
//
// Emit is synchronous: every matching handler runs in registration order
// before Emit returns. Handlers may call back into the bus.
//
// EmitDebounced collapses rapid emissions of the same topic into one
// trailing emission carrying the last payload.
//
// EmitQueued appends to a FIFO drained in fixed-size batches on a ticker,
// for producers that fire far more often than consumers need.
//
// # Error Isolation
//
// A handler that returns an error or panics is logged and reported on
// TopicErrorOccurred as a *HandlerError. Remaining handlers still run and
// the emitter never sees the failure. Failures of error:occurred handlers
// are logged only.
//
// # Usage
//
//	bus := event.NewBus()
//	defer bus.Close()
//
//	sub, err := bus.On("settings:*", event.HandlerFunc(func(ev event.Event) error {
//	    log.Printf("%s: %v", ev.Topic, ev.Payload)
//	    return nil
//	}))
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	bus.Emit(event.TopicSettingsSaved, payload)
package event
