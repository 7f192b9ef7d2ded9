package detector

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
)

// Enrichment actions attached to infrastructure alerts
const (
	ActionMonitoring       = "monitoring"
	ActionCleanupInitiated = "cleanup_initiated"
	ActionBlockedIP        = "blocked_ip"
)

// InfraAlert is one alert of an Alertmanager style webhook payload
type InfraAlert struct {
	Status      string            `json:"status,omitempty"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations,omitempty"`
	StartsAt    time.Time         `json:"startsAt,omitempty"`
	Value       json.RawMessage   `json:"value,omitempty"`
}

// InfraPayload is the webhook body: a batch of alerts
type InfraPayload struct {
	Receiver string       `json:"receiver,omitempty"`
	Status   string       `json:"status,omitempty"`
	Alerts   []InfraAlert `json:"alerts"`
}

// FromInfraAlert converts an infrastructure alert into a record and applies
// the per-name enrichment. Severity defaults to warning and instance to
// "unknown" when the labels omit them.
func FromInfraAlert(a InfraAlert) (*alert.Record, error) {
	name := a.Labels["alertname"]
	severity := a.Labels["severity"]
	if severity == "" {
		severity = alert.SeverityWarning.String()
	}
	instance := a.Labels["instance"]
	if instance == "" {
		instance = "unknown"
	}
	description := a.Annotations["description"]
	if description == "" {
		description = a.Annotations["summary"]
	}
	if description == "" && name != "" {
		description = fmt.Sprintf("%s alert on %s", name, instance)
	}

	metrics := make(map[string]interface{})
	value := parseValue(a.Value)
	switch name {
	case alert.NameHighCPUUsage:
		metrics["cpu_usage"] = value
		metrics["action"] = ActionMonitoring
	case alert.NameDiskSpaceLow:
		metrics["disk_usage"] = value
		metrics["action"] = ActionCleanupInitiated
	case alert.NameHighFailedLogins:
		metrics["action"] = ActionBlockedIP
	}
	if a.Status != "" {
		metrics["status"] = a.Status
	}

	return alert.New(name, severity, instance, description,
		alert.WithSourceIP(a.Labels["source_ip"]),
		alert.WithUser(a.Labels["user"]),
		alert.WithTimestamp(a.StartsAt),
		alert.WithMetrics(metrics),
	)
}

// parseValue accepts a JSON number or a numeric string; anything else is 0.
// NaN and infinities have no JSON encoding and are kept as their string form.
func parseValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return 0.0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return s
			}
			return f
		}
	}
	return 0.0
}
