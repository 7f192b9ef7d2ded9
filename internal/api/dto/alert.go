package dto

import (
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
)

// CreateAlertRequest is a single alert submitted to the ingestion API.
// Required fields are checked when the record is built so that a missing
// one is reported as a malformed alert.
type CreateAlertRequest struct {
	ID          string                 `json:"id,omitempty" validate:"omitempty,max=64"`
	AlertName   string                 `json:"alert_name"`
	Severity    string                 `json:"severity"`
	Instance    string                 `json:"instance"`
	Description string                 `json:"description"`
	SourceIP    string                 `json:"source_ip,omitempty" validate:"omitempty,ip"`
	User        string                 `json:"user,omitempty" validate:"omitempty,max=255"`
	Timestamp   *time.Time             `json:"timestamp,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
}

// ToRecord builds the alert record
func (r CreateAlertRequest) ToRecord() (*alert.Record, error) {
	opts := []alert.Option{
		alert.WithID(r.ID),
		alert.WithSourceIP(r.SourceIP),
		alert.WithUser(r.User),
		alert.WithMetrics(r.Metrics),
	}
	if r.Timestamp != nil {
		opts = append(opts, alert.WithTimestamp(*r.Timestamp))
	}
	return alert.New(r.AlertName, r.Severity, r.Instance, r.Description, opts...)
}

// OutcomeDTO is one sink's outcome
type OutcomeDTO struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// DispatchResultDTO reports where an alert was delivered
type DispatchResultDTO struct {
	AlertID   string                `json:"alert_id"`
	AlertName string                `json:"alert_name"`
	Outcomes  map[string]OutcomeDTO `json:"outcomes"`
	Failed    []string              `json:"failed,omitempty"`
}

// NewDispatchResultDTO converts a dispatch result
func NewDispatchResultDTO(res *alert.DispatchResult) DispatchResultDTO {
	out := DispatchResultDTO{
		AlertID:   res.AlertID,
		AlertName: res.AlertName,
		Outcomes:  make(map[string]OutcomeDTO, len(res.Outcomes)),
	}
	for sink, o := range res.Outcomes {
		out.Outcomes[string(sink)] = OutcomeDTO{
			Status:     o.Status,
			Reason:     o.Reason,
			DurationMS: o.Duration.Milliseconds(),
		}
	}
	for _, s := range res.Failed() {
		out.Failed = append(out.Failed, string(s))
	}
	return out
}

// RejectedAlertDTO is an alert of a webhook batch that could not be built
type RejectedAlertDTO struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// WebhookResponse summarises a webhook batch
type WebhookResponse struct {
	Received   int                 `json:"received"`
	Dispatched []DispatchResultDTO `json:"dispatched"`
	Rejected   []RejectedAlertDTO  `json:"rejected,omitempty"`
}

// AlertHistoryDTO is a persisted alert in API responses
type AlertHistoryDTO struct {
	ID          int64                  `json:"id"`
	AlertID     string                 `json:"alert_id"`
	AlertName   string                 `json:"alert_name"`
	Severity    string                 `json:"severity"`
	Instance    string                 `json:"instance"`
	Description string                 `json:"description"`
	SourceIP    string                 `json:"source_ip,omitempty"`
	User        string                 `json:"user,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewAlertHistoryDTO converts a history entry
func NewAlertHistoryDTO(e *alert.HistoryEntry) AlertHistoryDTO {
	return AlertHistoryDTO{
		ID:          e.ID,
		AlertID:     e.AlertID,
		AlertName:   e.Name,
		Severity:    e.Severity,
		Instance:    e.Instance,
		Description: e.Description,
		SourceIP:    e.SourceIP,
		User:        e.User,
		Metrics:     e.Metrics,
		OccurredAt:  e.OccurredAt,
		CreatedAt:   e.CreatedAt,
	}
}
