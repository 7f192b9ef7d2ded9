package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/secwatch/internal/testutil"
)

type mockSet struct {
	log, metrics, publish, store, history, notify, mitigate *testutil.MockSink
}

func newMockSet() *mockSet {
	return &mockSet{
		log:      testutil.NewMockSink(alert.SinkLog),
		metrics:  testutil.NewMockSink(alert.SinkMetrics),
		publish:  testutil.NewMockSink(alert.SinkPublish),
		store:    testutil.NewMockSink(alert.SinkStore),
		history:  testutil.NewMockSink(alert.SinkHistory),
		notify:   testutil.NewMockSink(alert.SinkNotify),
		mitigate: testutil.NewMockSink(alert.SinkMitigate),
	}
}

func (m *mockSet) sinks() Sinks {
	return Sinks{
		Log:      m.log,
		Metrics:  m.metrics,
		Publish:  m.publish,
		Store:    m.store,
		History:  m.history,
		Notify:   m.notify,
		Mitigate: m.mitigate,
	}
}

func newTestDispatcher(t *testing.T, s Sinks, cfg DispatcherConfig) *AlertDispatcher {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	d, err := NewAlertDispatcher(s, cfg, log)
	if err != nil {
		t.Fatalf("NewAlertDispatcher() error = %v", err)
	}
	return d
}

func mustRecord(t *testing.T, name, severity string, opts ...alert.Option) *alert.Record {
	t.Helper()
	rec, err := alert.New(name, severity, "web-1", "test alert", opts...)
	if err != nil {
		t.Fatalf("alert.New() error = %v", err)
	}
	return rec
}

func TestAlertDispatcher_Routing(t *testing.T) {
	tests := []struct {
		name         string
		alertName    string
		severity     string
		sourceIP     string
		wantNotify   bool
		wantMitigate bool
	}{
		{"critical upper case notifies", alert.NameHTTPError, "CRITICAL", "", true, false},
		{"error notifies", alert.NameHTTPError, "error", "", true, false},
		{"high notifies", "Legacy", "high", "", true, false},
		{"warning does not notify", alert.NameHTTPError, "warning", "", false, false},
		{"info does not notify", alert.NameAdminAccess, "info", "10.0.0.1", false, false},
		{"failed login with ip mitigates", alert.NameFailedLoginAttempt, "critical", "10.0.0.1", true, true},
		{"high failed logins with ip mitigates", alert.NameHighFailedLogins, "warning", "10.0.0.2", false, true},
		{"failed login without ip does not mitigate", alert.NameFailedLoginAttempt, "critical", "", true, false},
		{"other name with ip does not mitigate", alert.NameAdminAccess, "critical", "10.0.0.1", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockSet()
			d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})

			rec := mustRecord(t, tt.alertName, tt.severity, alert.WithSourceIP(tt.sourceIP))
			res, err := d.Dispatch(context.Background(), rec)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}

			if m.log.Calls() != 1 {
				t.Errorf("log calls = %d, want exactly 1", m.log.Calls())
			}
			for _, s := range []*testutil.MockSink{m.metrics, m.publish, m.store, m.history} {
				if s.Calls() != 1 {
					t.Errorf("%s calls = %d, want 1", s.SinkName, s.Calls())
				}
			}
			if got := m.notify.Calls() == 1; got != tt.wantNotify {
				t.Errorf("notify invoked = %v, want %v", got, tt.wantNotify)
			}
			if got := m.mitigate.Calls() == 1; got != tt.wantMitigate {
				t.Errorf("mitigate invoked = %v, want %v", got, tt.wantMitigate)
			}
			if res.Attempted(alert.SinkNotify) != tt.wantNotify || res.Attempted(alert.SinkMitigate) != tt.wantMitigate {
				t.Errorf("result outcomes = %v", res.Outcomes)
			}
		})
	}
}

func TestAlertDispatcher_UnconfiguredSinksSkipped(t *testing.T) {
	log := testutil.NewMockSink(alert.SinkLog)
	d := newTestDispatcher(t, Sinks{Log: log}, DispatcherConfig{})

	rec := mustRecord(t, alert.NameFailedLoginAttempt, "critical", alert.WithSourceIP("10.0.0.1"))
	res, err := d.Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(res.Outcomes) != 1 || !res.Succeeded(alert.SinkLog) {
		t.Errorf("outcomes = %v, want only a successful log", res.Outcomes)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v, want nil", res.Err())
	}
}

func TestAlertDispatcher_FailureIsolation(t *testing.T) {
	m := newMockSet()
	m.store.Err = errors.SinkFailure("store", fmt.Errorf("quota exceeded"))
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})

	rec := mustRecord(t, alert.NameHTTPError, "critical")
	res, err := d.Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Dispatch() error = %v, sink failures must not propagate", err)
	}

	if res.Succeeded(alert.SinkStore) {
		t.Error("store should be reported as failed")
	}
	for _, s := range []alert.Sink{alert.SinkLog, alert.SinkPublish, alert.SinkNotify, alert.SinkHistory} {
		if !res.Succeeded(s) {
			t.Errorf("%s should have succeeded despite the store failure", s)
		}
	}
	if res.Outcomes[alert.SinkStore].Reason == "" {
		t.Error("failure reason not recorded")
	}
}

func TestAlertDispatcher_PanicIsolation(t *testing.T) {
	m := newMockSet()
	m.publish.Panic = "boom"
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), mustRecord(t, alert.NameHTTPError, "error"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.Succeeded(alert.SinkPublish) {
		t.Error("panicking sink should be a failure")
	}
	if !res.Succeeded(alert.SinkLog) || !res.Succeeded(alert.SinkNotify) {
		t.Error("other sinks should succeed")
	}
}

func TestAlertDispatcher_Timeout(t *testing.T) {
	m := newMockSet()
	m.notify.Delay = time.Second
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{
		Timeouts: map[alert.Sink]time.Duration{alert.SinkNotify: 20 * time.Millisecond},
	})

	start := time.Now()
	res, err := d.Dispatch(context.Background(), mustRecord(t, alert.NameHTTPError, "critical"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Dispatch() took %v, slow sink should be cut off", elapsed)
	}
	if res.Succeeded(alert.SinkNotify) {
		t.Error("timed out sink should be a failure")
	}
	if !res.Succeeded(alert.SinkLog) {
		t.Error("log should succeed")
	}
}

func TestAlertDispatcher_CallerCancellationIgnored(t *testing.T) {
	m := newMockSet()
	m.store.Delay = 20 * time.Millisecond
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Dispatch(ctx, mustRecord(t, alert.NameHTTPError, "warning"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !res.Succeeded(alert.SinkStore) {
		t.Errorf("store outcome = %+v, a cancelled caller must not abort sinks", res.Outcomes[alert.SinkStore])
	}
}

func TestAlertDispatcher_MalformedAlert(t *testing.T) {
	m := newMockSet()
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})

	for _, rec := range []*alert.Record{nil, {}} {
		res, err := d.Dispatch(context.Background(), rec)
		if !errors.HasCode(err, errors.ErrCodeMalformedAlert) {
			t.Errorf("Dispatch() error = %v, want MalformedAlert", err)
		}
		if res != nil {
			t.Error("Dispatch() returned a result for a malformed alert")
		}
	}
	if m.log.Calls() != 0 || m.store.Calls() != 0 {
		t.Error("sinks must not be touched for a malformed alert")
	}
}

func TestAlertDispatcher_DuplicateDispatch(t *testing.T) {
	m := newMockSet()
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})
	rec := mustRecord(t, alert.NameFailedLoginAttempt, "critical", alert.WithSourceIP("10.0.0.1"))

	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), rec); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	for _, s := range []*testutil.MockSink{m.log, m.metrics, m.publish, m.store, m.history, m.notify, m.mitigate} {
		if s.Calls() != 2 {
			t.Errorf("%s calls = %d, want 2", s.SinkName, s.Calls())
		}
	}
}

func TestAlertDispatcher_NotifySeveritiesConfig(t *testing.T) {
	m := newMockSet()
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{NotifySeverities: []string{"Warning"}})

	if _, err := d.Dispatch(context.Background(), mustRecord(t, alert.NameHTTPError, "critical")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), mustRecord(t, alert.NameHTTPError, "warning")); err != nil {
		t.Fatal(err)
	}
	if m.notify.Calls() != 1 || m.notify.Delivered()[0].Severity() != alert.SeverityWarning {
		t.Errorf("notify calls = %d, want only the warning", m.notify.Calls())
	}
}

func TestNewAlertDispatcher_Errors(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Format: "json"})

	if _, err := NewAlertDispatcher(Sinks{}, DispatcherConfig{}, log); err == nil {
		t.Error("expected error without a log sink")
	}
	s := Sinks{Log: testutil.NewMockSink(alert.SinkLog)}
	if _, err := NewAlertDispatcher(s, DispatcherConfig{NotifySeverities: []string{"urgent"}}, log); err == nil {
		t.Error("expected error for unknown notify severity")
	}
}

func TestAlertDispatcher_DispatchAsyncAndWait(t *testing.T) {
	m := newMockSet()
	m.store.Delay = 10 * time.Millisecond
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{})

	for i := 0; i < 5; i++ {
		d.DispatchAsync(mustRecord(t, alert.NameHTTPError, "warning"))
	}
	d.DispatchAsync(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if m.store.Calls() != 5 || m.log.Calls() != 5 {
		t.Errorf("store calls = %d, log calls = %d, want 5", m.store.Calls(), m.log.Calls())
	}
}

func TestAlertDispatcher_MaxConcurrency(t *testing.T) {
	m := newMockSet()
	for _, s := range []*testutil.MockSink{m.log, m.metrics, m.publish, m.store, m.history} {
		s.Delay = 20 * time.Millisecond
	}
	d := newTestDispatcher(t, m.sinks(), DispatcherConfig{MaxConcurrency: 1})

	start := time.Now()
	res, err := d.Dispatch(context.Background(), mustRecord(t, alert.NameHTTPError, "warning"))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Dispatch() took %v, sinks should run one at a time", elapsed)
	}
	if len(res.Outcomes) != 5 || len(res.Failed()) != 0 {
		t.Errorf("outcomes = %v", res.Outcomes)
	}
}
