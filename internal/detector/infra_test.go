package detector

import (
	"encoding/json"
	"testing"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

func TestFromInfraAlert(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantName   string
		wantSev    alert.Severity
		wantInst   string
		wantMetric map[string]interface{}
		wantErr    bool
	}{
		{
			name:     "high cpu with numeric value",
			body:     `{"labels":{"alertname":"HighCPUUsage","severity":"warning","instance":"vm-1"},"annotations":{"description":"CPU above 90%"},"value":93.5}`,
			wantName: alert.NameHighCPUUsage,
			wantSev:  alert.SeverityWarning,
			wantInst: "vm-1",
			wantMetric: map[string]interface{}{
				"cpu_usage": 93.5,
				"action":    ActionMonitoring,
			},
		},
		{
			name:     "disk space with string value",
			body:     `{"labels":{"alertname":"DiskSpaceLow","severity":"critical","instance":"vm-2"},"annotations":{"description":"disk"},"value":"97"}`,
			wantName: alert.NameDiskSpaceLow,
			wantSev:  alert.SeverityCritical,
			wantInst: "vm-2",
			wantMetric: map[string]interface{}{
				"disk_usage": 97.0,
				"action":     ActionCleanupInitiated,
			},
		},
		{
			name:     "cpu with NaN value",
			body:     `{"labels":{"alertname":"HighCPUUsage","severity":"warning","instance":"vm-3"},"value":"NaN"}`,
			wantName: alert.NameHighCPUUsage,
			wantSev:  alert.SeverityWarning,
			wantInst: "vm-3",
			wantMetric: map[string]interface{}{
				"cpu_usage": "NaN",
			},
		},
		{
			name:     "disk with infinite value",
			body:     `{"labels":{"alertname":"DiskSpaceLow","severity":"critical","instance":"vm-4"},"value":" +Inf "}`,
			wantName: alert.NameDiskSpaceLow,
			wantSev:  alert.SeverityCritical,
			wantInst: "vm-4",
			wantMetric: map[string]interface{}{
				"disk_usage": "+Inf",
			},
		},
		{
			name:     "failed logins defaults",
			body:     `{"labels":{"alertname":"HighFailedLogins","source_ip":"198.51.100.20"}}`,
			wantName: alert.NameHighFailedLogins,
			wantSev:  alert.SeverityWarning,
			wantInst: "unknown",
			wantMetric: map[string]interface{}{
				"action": ActionBlockedIP,
			},
		},
		{
			name:     "legacy high severity",
			body:     `{"labels":{"alertname":"Custom","severity":"HIGH","instance":"db"},"annotations":{"summary":"s"}}`,
			wantName: "Custom",
			wantSev:  alert.SeverityCritical,
			wantInst: "db",
		},
		{
			name:    "missing alertname",
			body:    `{"labels":{"severity":"critical"},"annotations":{"description":"x"}}`,
			wantErr: true,
		},
		{
			name:    "unknown severity",
			body:    `{"labels":{"alertname":"X","severity":"page"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a InfraAlert
			if err := json.Unmarshal([]byte(tt.body), &a); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			rec, err := FromInfraAlert(a)
			if tt.wantErr {
				if !errors.HasCode(err, errors.ErrCodeMalformedAlert) {
					t.Fatalf("FromInfraAlert() error = %v, want MalformedAlert", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromInfraAlert() error = %v", err)
			}
			if rec.Name() != tt.wantName || rec.Severity() != tt.wantSev || rec.Instance() != tt.wantInst {
				t.Errorf("got %s/%s/%s", rec.Name(), rec.Severity(), rec.Instance())
			}
			for k, want := range tt.wantMetric {
				if got, _ := rec.Metric(k); got != want {
					t.Errorf("metric %s = %v, want %v", k, got, want)
				}
			}
			if _, err := json.Marshal(rec.Flatten()); err != nil {
				t.Errorf("record does not encode: %v", err)
			}
		})
	}
}

func TestFromInfraAlert_SourceIP(t *testing.T) {
	rec, err := FromInfraAlert(InfraAlert{Labels: map[string]string{
		"alertname": alert.NameHighFailedLogins,
		"severity":  "critical",
		"source_ip": "198.51.100.20",
	}})
	if err != nil {
		t.Fatalf("FromInfraAlert() error = %v", err)
	}
	if rec.SourceIP() != "198.51.100.20" {
		t.Errorf("SourceIP() = %q", rec.SourceIP())
	}
	if rec.Description() == "" {
		t.Error("Description() should fall back to a generated text")
	}
}
