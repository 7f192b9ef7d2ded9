package alert

import (
	"context"
	"time"
)

// HistoryEntry is a persisted copy of a dispatched alert
type HistoryEntry struct {
	ID          int64                  `json:"id"`
	AlertID     string                 `json:"alert_id"`
	Name        string                 `json:"alert_name"`
	Severity    string                 `json:"severity"`
	Instance    string                 `json:"instance"`
	Description string                 `json:"description"`
	SourceIP    string                 `json:"source_ip,omitempty"`
	User        string                 `json:"user,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewHistoryEntry copies rec into a history entry
func NewHistoryEntry(rec *Record) *HistoryEntry {
	var metrics map[string]interface{}
	if rec.HasMetrics() {
		metrics = rec.Metrics()
	}
	return &HistoryEntry{
		AlertID:     rec.ID(),
		Name:        rec.Name(),
		Severity:    rec.Severity().String(),
		Instance:    rec.Instance(),
		Description: rec.Description(),
		SourceIP:    rec.SourceIP(),
		User:        rec.User(),
		Metrics:     metrics,
		OccurredAt:  rec.Timestamp(),
	}
}

// Filter contains alert history filtering options
type Filter struct {
	Name     string
	Severity string
	SourceIP string
}

// Repository defines the interface for alert history data access
type Repository interface {
	// Create stores a history entry and returns its ID
	Create(ctx context.Context, entry *HistoryEntry) (int64, error)

	// List retrieves entries, newest first, with the total matching count
	List(ctx context.Context, filter Filter, limit, offset int) ([]*HistoryEntry, int64, error)
}
