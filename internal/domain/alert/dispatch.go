package alert

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Sink names a delivery channel an alert can be routed to
type Sink string

// Known sinks
const (
	SinkLog      Sink = "log"
	SinkMetrics  Sink = "metrics"
	SinkPublish  Sink = "publish"
	SinkStore    Sink = "store"
	SinkHistory  Sink = "history"
	SinkNotify   Sink = "notify"
	SinkMitigate Sink = "mitigate"
)

// Outcome status values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Outcome is the result of one sink invocation
type Outcome struct {
	Status   string        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// DispatchResult aggregates the per-sink outcomes of a single dispatch.
// Sinks that were not routed for the alert have no entry.
type DispatchResult struct {
	AlertID   string           `json:"alert_id"`
	AlertName string           `json:"alert_name"`
	Outcomes  map[Sink]Outcome `json:"outcomes"`
}

// NewDispatchResult creates an empty result for rec
func NewDispatchResult(rec *Record) *DispatchResult {
	return &DispatchResult{
		AlertID:   rec.ID(),
		AlertName: rec.Name(),
		Outcomes:  make(map[Sink]Outcome),
	}
}

// Attempted reports whether the sink was invoked
func (r *DispatchResult) Attempted(s Sink) bool {
	_, ok := r.Outcomes[s]
	return ok
}

// Succeeded reports whether the sink was invoked and succeeded
func (r *DispatchResult) Succeeded(s Sink) bool {
	o, ok := r.Outcomes[s]
	return ok && o.Status == OutcomeSuccess
}

// Failed lists failed sinks in name order
func (r *DispatchResult) Failed() []Sink {
	var failed []Sink
	for s, o := range r.Outcomes {
		if o.Status == OutcomeFailure {
			failed = append(failed, s)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return failed
}

// Err combines every sink failure into one error, or nil if all succeeded
func (r *DispatchResult) Err() error {
	var result *multierror.Error
	for _, s := range r.Failed() {
		result = multierror.Append(result, fmt.Errorf("%s: %s", s, r.Outcomes[s].Reason))
	}
	return result.ErrorOrNil()
}
