package sinks

import (
	"context"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

// Row is one flattened alert destined for analytical storage
type Row map[string]interface{}

// Storer appends rows to durable storage
type Storer interface {
	Insert(ctx context.Context, rows []Row) error
}

// StoreSink writes each alert as a single row batch
type StoreSink struct {
	st Storer
}

// NewStoreSink creates a store sink
func NewStoreSink(st Storer) *StoreSink {
	return &StoreSink{st: st}
}

// Name implements Sink
func (s *StoreSink) Name() alert.Sink { return alert.SinkStore }

// Deliver implements Sink
func (s *StoreSink) Deliver(ctx context.Context, rec *alert.Record) error {
	if err := s.st.Insert(ctx, []Row{Row(rec.Flatten())}); err != nil {
		return errors.SinkFailure(string(alert.SinkStore), err)
	}
	return nil
}
