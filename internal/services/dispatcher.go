package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/pkg/metrics"
	"github.com/pratik-mahalle/secwatch/internal/sinks"
)

// DefaultNotifySeverities are the severities that trigger an email
var DefaultNotifySeverities = []string{"critical", "high", "error"}

// DefaultTimeouts returns the per-sink time budgets
func DefaultTimeouts() map[alert.Sink]time.Duration {
	return map[alert.Sink]time.Duration{
		alert.SinkLog:      1 * time.Second,
		alert.SinkMetrics:  1 * time.Second,
		alert.SinkPublish:  10 * time.Second,
		alert.SinkStore:    10 * time.Second,
		alert.SinkHistory:  5 * time.Second,
		alert.SinkNotify:   15 * time.Second,
		alert.SinkMitigate: 30 * time.Second,
	}
}

// Sinks is the set of delivery adapters. Log is required; a nil optional
// sink is skipped.
type Sinks struct {
	Log      sinks.Sink
	Metrics  sinks.Sink
	Publish  sinks.Sink
	Store    sinks.Sink
	History  sinks.Sink
	Notify   sinks.Sink
	Mitigate sinks.Sink
}

// DispatcherConfig contains routing settings
type DispatcherConfig struct {
	NotifySeverities []string
	Timeouts         map[alert.Sink]time.Duration
	// MaxConcurrency caps the sinks delivering one alert at a time; 0 runs
	// every routed sink at once
	MaxConcurrency int
}

// AlertDispatcher implements alert.Dispatcher. It fans a record out to every
// applicable sink concurrently; a failing, slow or panicking sink never
// affects the others.
type AlertDispatcher struct {
	sinks    Sinks
	notify   map[alert.Severity]bool
	timeouts map[alert.Sink]time.Duration
	limit    int
	logger   *logger.Logger

	inflight sync.WaitGroup
}

// NewAlertDispatcher creates a dispatcher
func NewAlertDispatcher(s Sinks, cfg DispatcherConfig, log *logger.Logger) (*AlertDispatcher, error) {
	if s.Log == nil {
		return nil, fmt.Errorf("log sink is required")
	}

	severities := cfg.NotifySeverities
	if len(severities) == 0 {
		severities = DefaultNotifySeverities
	}
	notify := make(map[alert.Severity]bool, len(severities))
	for _, raw := range severities {
		sev, ok := alert.ParseSeverity(raw)
		if !ok {
			return nil, fmt.Errorf("unknown notify severity %q", raw)
		}
		notify[sev] = true
	}

	timeouts := DefaultTimeouts()
	for name, d := range cfg.Timeouts {
		if d > 0 {
			timeouts[name] = d
		}
	}

	d := &AlertDispatcher{
		sinks:    s,
		notify:   notify,
		timeouts: timeouts,
		limit:    -1,
		logger:   log,
	}
	if cfg.MaxConcurrency > 0 {
		d.limit = cfg.MaxConcurrency
	}

	var enabled, disabled []string
	for _, sk := range []struct {
		name alert.Sink
		sink sinks.Sink
	}{
		{alert.SinkMetrics, s.Metrics},
		{alert.SinkPublish, s.Publish},
		{alert.SinkStore, s.Store},
		{alert.SinkHistory, s.History},
		{alert.SinkNotify, s.Notify},
		{alert.SinkMitigate, s.Mitigate},
	} {
		if sk.sink == nil {
			disabled = append(disabled, string(sk.name))
		} else {
			enabled = append(enabled, string(sk.name))
		}
	}
	log.WithFields(map[string]interface{}{
		"enabled":  strings.Join(enabled, ","),
		"disabled": strings.Join(disabled, ","),
	}).Info("Alert dispatcher configured")

	return d, nil
}

// Route returns the sinks rec should be delivered to, in a fixed order
func (d *AlertDispatcher) Route(rec *alert.Record) []sinks.Sink {
	routed := []sinks.Sink{d.sinks.Log}

	for _, s := range []sinks.Sink{d.sinks.Metrics, d.sinks.Publish, d.sinks.Store, d.sinks.History} {
		if s != nil {
			routed = append(routed, s)
		}
	}
	if d.sinks.Notify != nil && d.notify[rec.Severity()] {
		routed = append(routed, d.sinks.Notify)
	}
	if d.sinks.Mitigate != nil && alert.IsBruteForce(rec.Name()) && rec.SourceIP() != "" {
		routed = append(routed, d.sinks.Mitigate)
	}
	return routed
}

// Dispatch implements alert.Dispatcher. The only error is MalformedAlert,
// returned before any sink runs; sink failures are reported in the result.
// Cancelling ctx does not cancel deliveries already started.
func (d *AlertDispatcher) Dispatch(ctx context.Context, rec *alert.Record) (*alert.DispatchResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	result := alert.NewDispatchResult(rec)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.limit)
	for _, s := range d.Route(rec) {
		g.Go(func() error {
			outcome := d.deliver(ctx, s, rec)
			mu.Lock()
			result.Outcomes[s.Name()] = outcome
			mu.Unlock()
			return nil
		})
	}
	// Failures are outcomes, never group errors.
	_ = g.Wait()

	if failed := result.Failed(); len(failed) > 0 {
		d.logger.WithFields(map[string]interface{}{
			"alert_id":   rec.ID(),
			"alert_name": rec.Name(),
			"attempted":  len(result.Outcomes),
			"failed":     len(failed),
		}).Warn("Alert dispatched with sink failures")
	} else {
		d.logger.WithFields(map[string]interface{}{
			"alert_id":   rec.ID(),
			"alert_name": rec.Name(),
			"attempted":  len(result.Outcomes),
		}).Debug("Alert dispatched")
	}

	return result, nil
}

// DispatchAsync implements alert.Dispatcher. Use Wait to drain in-flight
// dispatches on shutdown.
func (d *AlertDispatcher) DispatchAsync(rec *alert.Record) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		if _, err := d.Dispatch(context.Background(), rec); err != nil {
			d.logger.ErrorWithErr(err, "Dropped malformed alert")
		}
	}()
}

// Wait blocks until every DispatchAsync call has finished or ctx is done
func (d *AlertDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver runs one sink under its time budget and converts errors and
// panics into an outcome
func (d *AlertDispatcher) deliver(ctx context.Context, s sinks.Sink, rec *alert.Record) alert.Outcome {
	name := s.Name()
	start := time.Now()

	tctx, cancel := context.WithTimeout(ctx, d.timeout(name))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.WithFields(map[string]interface{}{
					"sink":  string(name),
					"stack": string(debug.Stack()),
				}).Error("Sink panicked")
				done <- errors.SinkFailure(string(name), fmt.Errorf("panic: %v", r))
			}
		}()
		done <- s.Deliver(tctx, rec)
	}()

	var err error
	select {
	case err = <-done:
	case <-tctx.Done():
		err = tctx.Err()
	}
	if err != nil && tctx.Err() == context.DeadlineExceeded {
		err = errors.SinkTimeout(string(name), err)
	}

	duration := time.Since(start)
	if err == nil {
		metrics.RecordDispatchOutcome(string(name), alert.OutcomeSuccess, duration)
		return alert.Outcome{Status: alert.OutcomeSuccess, Duration: duration}
	}

	metrics.RecordDispatchOutcome(string(name), alert.OutcomeFailure, duration)
	d.logger.WithFields(map[string]interface{}{
		"alert_id":   rec.ID(),
		"alert_name": rec.Name(),
		"sink":       string(name),
		"duration":   duration.String(),
	}).ErrorWithErr(err, "Sink delivery failed")

	return alert.Outcome{Status: alert.OutcomeFailure, Reason: err.Error(), Duration: duration}
}

func (d *AlertDispatcher) timeout(name alert.Sink) time.Duration {
	if t, ok := d.timeouts[name]; ok {
		return t
	}
	return 10 * time.Second
}

var _ alert.Dispatcher = (*AlertDispatcher)(nil)
