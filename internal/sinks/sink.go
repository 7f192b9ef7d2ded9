// Package sinks holds the delivery adapters an alert is fanned out to. Each
// adapter owns its client and shares no mutable state with the others.
package sinks

import (
	"context"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
)

// Sink delivers one alert to one backend
type Sink interface {
	Name() alert.Sink
	Deliver(ctx context.Context, rec *alert.Record) error
}

// Func adapts a function into a Sink
type Func struct {
	SinkName alert.Sink
	Fn       func(ctx context.Context, rec *alert.Record) error
}

// Name implements Sink
func (f Func) Name() alert.Sink { return f.SinkName }

// Deliver implements Sink
func (f Func) Deliver(ctx context.Context, rec *alert.Record) error { return f.Fn(ctx, rec) }
