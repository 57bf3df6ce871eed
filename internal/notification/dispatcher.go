package notification

import (
	"context"
	"time"
)

// Dispatcher fans one event out to every configured sink.
type Dispatcher struct {
	sinks       []Sink
	sinkTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:       sinks,
		sinkTimeout: 45 * time.Second,
		now:         time.Now,
	}
}

// Dispatch delivers e to every sink and reports per-sink outcomes. One slow
// or failing sink does not prevent delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) []DispatchResult {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = d.now().UTC()
	}

	results := make([]DispatchResult, 0, len(d.sinks))
	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := sink.Send(sinkCtx, e)
		cancel()
		results = append(results, DispatchResult{Sink: sink.Name(), Err: err})
	}
	return results
}
