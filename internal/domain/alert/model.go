package alert

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/validator"
)

// Severity is the normalized, lowercase severity of an alert
type Severity string

// Alert severity levels
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityHigh is a legacy producer value, accepted as an alias of critical
const severityHigh = "high"

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// ParseSeverity normalizes a producer supplied severity. Matching is
// case-insensitive and "high" maps to critical.
func ParseSeverity(s string) (Severity, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == severityHigh {
		return SeverityCritical, true
	}
	sev := Severity(v)
	if _, ok := severityRank[sev]; !ok {
		return "", false
	}
	return sev, true
}

// Rank orders severities: info < warning < error < critical
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

func (s Severity) String() string {
	return string(s)
}

// Well-known alert names. The set is open; any non-empty name is valid.
const (
	NameAdminAccess        = "AdminAccess"
	NameFailedLoginAttempt = "FailedLoginAttempt"
	NameHTTPError          = "HTTPError"
	NameHighCPUUsage       = "HighCPUUsage"
	NameDiskSpaceLow       = "DiskSpaceLow"
	NameHighFailedLogins   = "HighFailedLogins"
)

// IsBruteForce reports whether name belongs to the brute-force login class
// that is eligible for automated mitigation.
func IsBruteForce(name string) bool {
	return name == NameFailedLoginAttempt || name == NameHighFailedLogins
}

// Record is a single alert occurrence. It is immutable once built by New:
// all fields are private and Metrics returns a copy.
type Record struct {
	id          string
	name        string
	severity    Severity
	instance    string
	description string
	sourceIP    string
	user        string
	timestamp   time.Time
	metrics     map[string]interface{}
}

// Option sets an optional Record field during construction
type Option func(*Record)

// WithSourceIP sets the originating IP address
func WithSourceIP(ip string) Option {
	return func(r *Record) { r.sourceIP = strings.TrimSpace(ip) }
}

// WithUser sets the acting user
func WithUser(user string) Option {
	return func(r *Record) { r.user = user }
}

// WithTimestamp overrides the creation time. A zero time is ignored.
func WithTimestamp(ts time.Time) Option {
	return func(r *Record) {
		if !ts.IsZero() {
			r.timestamp = ts.UTC()
		}
	}
}

// WithMetrics attaches free-form annotations. The map is copied.
func WithMetrics(m map[string]interface{}) Option {
	return func(r *Record) {
		if len(m) == 0 {
			return
		}
		r.metrics = make(map[string]interface{}, len(m))
		for k, v := range m {
			r.metrics[k] = v
		}
	}
}

// WithID sets the alert identity instead of generating one
func WithID(id string) Option {
	return func(r *Record) {
		if id != "" {
			r.id = id
		}
	}
}

type requiredFields struct {
	Name        string `json:"alert_name" validate:"required"`
	Severity    string `json:"severity" validate:"required,oneof=info warning error critical high"`
	Instance    string `json:"instance" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// New builds a Record. A missing required field or an unknown severity
// yields a MalformedAlert error.
func New(name, severity, instance, description string, opts ...Option) (*Record, error) {
	req := requiredFields{
		Name:        strings.TrimSpace(name),
		Severity:    strings.ToLower(strings.TrimSpace(severity)),
		Instance:    strings.TrimSpace(instance),
		Description: description,
	}
	if errs := validator.Validate(req); len(errs) > 0 {
		return nil, errors.MalformedAlert("Malformed alert: "+validator.Summary(errs), errs)
	}
	sev, _ := ParseSeverity(req.Severity)

	r := &Record{
		id:          uuid.NewString(),
		name:        req.Name,
		severity:    sev,
		instance:    req.Instance,
		description: description,
		timestamp:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Validate checks a Record that may not have come from New, such as a zero value
func (r *Record) Validate() error {
	if r == nil {
		return errors.MalformedAlert("Malformed alert: record is nil", nil)
	}
	req := requiredFields{
		Name:        r.name,
		Severity:    string(r.severity),
		Instance:    r.instance,
		Description: r.description,
	}
	if errs := validator.Validate(req); len(errs) > 0 {
		return errors.MalformedAlert("Malformed alert: "+validator.Summary(errs), errs)
	}
	if r.timestamp.IsZero() {
		return errors.MalformedAlert("Malformed alert: timestamp is not set", nil)
	}
	return nil
}

func (r *Record) ID() string { return r.id }
func (r *Record) Name() string { return r.name }
func (r *Record) Severity() Severity { return r.severity }
func (r *Record) Instance() string { return r.instance }
func (r *Record) Description() string { return r.description }
func (r *Record) SourceIP() string { return r.sourceIP }
func (r *Record) User() string { return r.user }
func (r *Record) Timestamp() time.Time { return r.timestamp }
func (r *Record) HasMetrics() bool { return len(r.metrics) > 0 }
func (r *Record) Metric(key string) (interface{}, bool) {
	v, ok := r.metrics[key]
	return v, ok
}

// Metrics returns a copy of the annotations
func (r *Record) Metrics() map[string]interface{} {
	out := make(map[string]interface{}, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

// TimestampLayout is the wire format used for timestamps in sink payloads
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Flatten merges metrics and record fields into one flat map. Explicit
// record fields win when a metric key collides with a field name.
func (r *Record) Flatten() map[string]interface{} {
	out := make(map[string]interface{}, len(r.metrics)+9)
	for k, v := range r.metrics {
		out[k] = v
	}
	out["id"] = r.id
	out["alert_name"] = r.name
	out["severity"] = string(r.severity)
	out["instance"] = r.instance
	out["description"] = r.description
	out["timestamp"] = r.timestamp.Format(TimestampLayout)
	if r.sourceIP != "" {
		out["source_ip"] = r.sourceIP
	} else {
		delete(out, "source_ip")
	}
	if r.user != "" {
		out["user"] = r.user
	} else {
		delete(out, "user")
	}
	return out
}

// MarshalJSON encodes the flattened payload
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}
