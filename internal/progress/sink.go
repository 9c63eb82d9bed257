package progress

import "context"

// Sink consumes batches of events. Implementations must tolerate redelivery
// and never block beyond the hub's per-sink timeout.
type Sink interface {
	Consume(ctx context.Context, events []Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, events []Event) error

// Consume invokes the function.
func (f SinkFunc) Consume(ctx context.Context, events []Event) error {
	return f(ctx, events)
}
