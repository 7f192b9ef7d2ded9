package alert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"info", SeverityInfo, true},
		{"WARNING", SeverityWarning, true},
		{" Error ", SeverityError, true},
		{"CRITICAL", SeverityCritical, true},
		{"high", SeverityCritical, true},
		{"HIGH", SeverityCritical, true},
		{"medium", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSeverity(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseSeverity(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityInfo.Rank() < SeverityWarning.Rank() &&
		SeverityWarning.Rank() < SeverityError.Rank() &&
		SeverityError.Rank() < SeverityCritical.Rank()) {
		t.Error("severity ranks are not ordered info < warning < error < critical")
	}
	if Severity("bogus").Rank() != -1 {
		t.Error("unknown severity should rank -1")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		alertName   string
		severity    string
		instance    string
		description string
		wantErr     bool
	}{
		{"valid", NameAdminAccess, "info", "web-1", "Admin access on path: /admin/", false},
		{"upper case severity", NameHTTPError, "WARNING", "web-1", "HTTP 404 error on /x", false},
		{"missing name", "", "critical", "web-1", "no name", true},
		{"blank name", "   ", "critical", "web-1", "no name", true},
		{"missing instance", NameHTTPError, "error", "", "no instance", true},
		{"missing description", NameHTTPError, "error", "web-1", "", true},
		{"unknown severity", NameHTTPError, "medium", "web-1", "bad severity", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := New(tt.alertName, tt.severity, tt.instance, tt.description)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.HasCode(err, errors.ErrCodeMalformedAlert) {
					t.Errorf("New() error code = %v, want %s", err, errors.ErrCodeMalformedAlert)
				}
				return
			}
			if rec.ID() == "" {
				t.Error("New() did not assign an id")
			}
			if rec.Timestamp().IsZero() {
				t.Error("New() did not stamp the creation time")
			}
		})
	}
}

func TestNew_HighIsCritical(t *testing.T) {
	rec, err := New("Legacy", "High", "web-1", "legacy producer")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if rec.Severity() != SeverityCritical {
		t.Errorf("Severity() = %s, want critical", rec.Severity())
	}
}

func TestNew_Options(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	metrics := map[string]interface{}{"failed_login_rate": 0.8}
	rec, err := New(NameFailedLoginAttempt, "critical", "web-1", "Failed login attempt for user: bob",
		WithSourceIP(" 10.0.0.1 "),
		WithUser("bob"),
		WithTimestamp(ts),
		WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if rec.SourceIP() != "10.0.0.1" {
		t.Errorf("SourceIP() = %q", rec.SourceIP())
	}
	if rec.User() != "bob" {
		t.Errorf("User() = %q", rec.User())
	}
	if !rec.Timestamp().Equal(ts) {
		t.Errorf("Timestamp() = %v, want %v", rec.Timestamp(), ts)
	}

	// Mutating the caller's map or the returned copy must not leak in
	metrics["failed_login_rate"] = 99.0
	got := rec.Metrics()
	got["extra"] = true
	if v, _ := rec.Metric("failed_login_rate"); v != 0.8 {
		t.Errorf("Metric(failed_login_rate) = %v, want 0.8", v)
	}
	if _, ok := rec.Metric("extra"); ok {
		t.Error("Metrics() returned the internal map")
	}
}

func TestRecord_Validate(t *testing.T) {
	if err := (&Record{}).Validate(); !errors.HasCode(err, errors.ErrCodeMalformedAlert) {
		t.Errorf("zero Record Validate() = %v, want MalformedAlert", err)
	}
	var nilRec *Record
	if err := nilRec.Validate(); !errors.HasCode(err, errors.ErrCodeMalformedAlert) {
		t.Errorf("nil Record Validate() = %v, want MalformedAlert", err)
	}
	rec, _ := New(NameHTTPError, "error", "web-1", "HTTP 500 error on /")
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestRecord_Flatten(t *testing.T) {
	rec, err := New(NameHTTPError, "error", "web-1", "HTTP 500 error on /api",
		WithMetrics(map[string]interface{}{
			"status_code": 500,
			"severity":    "spoofed",
			"source_ip":   "6.6.6.6",
			"path":        "/api",
		}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	flat := rec.Flatten()
	if flat["severity"] != "error" {
		t.Errorf("severity = %v, explicit field should win", flat["severity"])
	}
	if _, ok := flat["source_ip"]; ok {
		t.Error("source_ip should be omitted when the record has none")
	}
	if _, ok := flat["user"]; ok {
		t.Error("user should be omitted when the record has none")
	}
	if flat["status_code"] != 500 || flat["path"] != "/api" {
		t.Errorf("metrics not merged at top level: %v", flat)
	}
	if flat["alert_name"] != NameHTTPError || flat["instance"] != "web-1" {
		t.Errorf("fields missing from payload: %v", flat)
	}
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec, _ := New(NameAdminAccess, "info", "web-1", "Admin access on path: /admin/",
		WithUser("alice"),
		WithMetrics(map[string]interface{}{"method": "GET"}),
	)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["user"] != "alice" || decoded["method"] != "GET" || decoded["id"] != rec.ID() {
		t.Errorf("unexpected payload: %s", data)
	}
}

func TestDispatchResult(t *testing.T) {
	rec, _ := New(NameHTTPError, "error", "web-1", "HTTP 500 error on /")
	res := NewDispatchResult(rec)
	res.Outcomes[SinkLog] = Outcome{Status: OutcomeSuccess}
	res.Outcomes[SinkStore] = Outcome{Status: OutcomeFailure, Reason: "quota exceeded"}
	res.Outcomes[SinkPublish] = Outcome{Status: OutcomeFailure, Reason: "unavailable"}

	if !res.Attempted(SinkLog) || res.Attempted(SinkNotify) {
		t.Error("Attempted() mismatch")
	}
	if !res.Succeeded(SinkLog) || res.Succeeded(SinkStore) {
		t.Error("Succeeded() mismatch")
	}
	failed := res.Failed()
	if len(failed) != 2 || failed[0] != SinkPublish || failed[1] != SinkStore {
		t.Errorf("Failed() = %v", failed)
	}
	if res.Err() == nil {
		t.Error("Err() = nil, want aggregated failure")
	}

	ok := NewDispatchResult(rec)
	ok.Outcomes[SinkLog] = Outcome{Status: OutcomeSuccess}
	if ok.Err() != nil {
		t.Errorf("Err() = %v, want nil", ok.Err())
	}
}

func TestIsBruteForce(t *testing.T) {
	if !IsBruteForce(NameFailedLoginAttempt) || !IsBruteForce(NameHighFailedLogins) {
		t.Error("brute-force names not recognised")
	}
	if IsBruteForce(NameAdminAccess) || IsBruteForce("failedloginattempt") {
		t.Error("IsBruteForce should be exact")
	}
}
