package events

import (
	"context"
	"errors"
	"fmt"

	"insightline/internal/engine"
)

// Fanout delivers every event to all sinks in order and joins their errors.
type Fanout []engine.EventSink

func (f Fanout) Publish(ctx context.Context, evt engine.DomainEvent) error {
	var errs []error
	for i, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
