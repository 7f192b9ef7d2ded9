package sinks

import (
	"context"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

// HistorySink records every dispatched alert in the alert history table
type HistorySink struct {
	repo alert.Repository
}

// NewHistorySink creates a history sink
func NewHistorySink(repo alert.Repository) *HistorySink {
	return &HistorySink{repo: repo}
}

// Name implements Sink
func (s *HistorySink) Name() alert.Sink { return alert.SinkHistory }

// Deliver implements Sink
func (s *HistorySink) Deliver(ctx context.Context, rec *alert.Record) error {
	if _, err := s.repo.Create(ctx, alert.NewHistoryEntry(rec)); err != nil {
		return errors.SinkFailure(string(alert.SinkHistory), err)
	}
	return nil
}
