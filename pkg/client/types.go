package client

import (
	"encoding/json"
	"time"
)

// Alert is an alert submitted for dispatch
type Alert struct {
	ID          string                 `json:"id,omitempty"`
	AlertName   string                 `json:"alert_name"`
	Severity    string                 `json:"severity"` // critical, high, error, warning, info
	Instance    string                 `json:"instance"`
	Description string                 `json:"description"`
	SourceIP    string                 `json:"source_ip,omitempty"`
	User        string                 `json:"user,omitempty"`
	Timestamp   *time.Time             `json:"timestamp,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
}

// Outcome is one sink's delivery result
type Outcome struct {
	Status     string `json:"status"` // success or failure
	Reason     string `json:"reason,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// DispatchResult reports the sinks an alert was routed to
type DispatchResult struct {
	AlertID   string             `json:"alert_id"`
	AlertName string             `json:"alert_name"`
	Outcomes  map[string]Outcome `json:"outcomes"`
	Failed    []string           `json:"failed,omitempty"`
}

// WebhookAlert is one alert of an Alertmanager style webhook
type WebhookAlert struct {
	Status      string            `json:"status,omitempty"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations,omitempty"`
	StartsAt    time.Time         `json:"startsAt,omitempty"`
	Value       json.RawMessage   `json:"value,omitempty"`
}

// WebhookPayload is an Alertmanager style webhook body
type WebhookPayload struct {
	Receiver string         `json:"receiver,omitempty"`
	Status   string         `json:"status,omitempty"`
	Alerts   []WebhookAlert `json:"alerts"`
}

// RejectedAlert is a webhook alert the server could not build
type RejectedAlert struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// WebhookResult summarises a webhook batch
type WebhookResult struct {
	Received   int              `json:"received"`
	Dispatched []DispatchResult `json:"dispatched"`
	Rejected   []RejectedAlert  `json:"rejected,omitempty"`
}

// HistoryEntry is a persisted alert
type HistoryEntry struct {
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

// HistoryPage is one page of alert history
type HistoryPage struct {
	Data       []HistoryEntry `json:"data"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalItems int64          `json:"total_items"`
	TotalPages int            `json:"total_pages"`
}

// HealthResponse is the liveness or readiness payload
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}
