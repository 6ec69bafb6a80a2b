package viva

import "context"

// startSpan opens a tracing span when a tracer is configured. The returned
// func ends the span and records err when non-nil.
func (c *Client) startSpan(ctx context.Context, name string) (context.Context, func(error)) {
	if c.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := c.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
