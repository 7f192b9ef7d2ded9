package alert

import "context"

// Dispatcher defines the interface for routing alerts to their sinks
type Dispatcher interface {
	// Dispatch delivers rec to every applicable sink and waits for the
	// outcomes. Only a malformed record produces an error.
	Dispatch(ctx context.Context, rec *Record) (*DispatchResult, error)

	// DispatchAsync delivers rec in the background
	DispatchAsync(rec *Record)
}
