package sinks

import (
	"context"
	"fmt"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/metrics"
)

// MetricsSink counts alerts and updates the security counters they carry
type MetricsSink struct{}

// NewMetricsSink creates a metrics sink
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

// Name implements Sink
func (s *MetricsSink) Name() alert.Sink { return alert.SinkMetrics }

// Deliver implements Sink
func (s *MetricsSink) Deliver(_ context.Context, rec *alert.Record) error {
	metrics.RecordAlert(rec.Name(), rec.Severity().String())

	switch rec.Name() {
	case alert.NameAdminAccess:
		metrics.RecordAdminAccess(metricString(rec, "path"), metricString(rec, "method"), metricString(rec, "user_type"))
	case alert.NameFailedLoginAttempt:
		rate, _ := rec.Metric("failed_login_rate")
		f, _ := rate.(float64)
		metrics.RecordFailedLogin(rec.SourceIP(), f)
	case alert.NameHTTPError:
		metrics.RecordHTTPError(metricString(rec, "status_code"), metricString(rec, "path"))
	}
	return nil
}

func metricString(rec *alert.Record, key string) string {
	v, ok := rec.Metric(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
