package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/sinks"
)

// MockSink is a configurable sinks.Sink that records every delivery
type MockSink struct {
	SinkName alert.Sink
	Err      error
	Panic    interface{}
	Delay    time.Duration

	mu        sync.Mutex
	delivered []*alert.Record
}

func NewMockSink(name alert.Sink) *MockSink {
	return &MockSink{SinkName: name}
}

func (m *MockSink) Name() alert.Sink { return m.SinkName }

func (m *MockSink) Deliver(ctx context.Context, rec *alert.Record) error {
	m.mu.Lock()
	m.delivered = append(m.delivered, rec)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.Panic != nil {
		panic(m.Panic)
	}
	return m.Err
}

// Calls returns the number of deliveries
func (m *MockSink) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

// Delivered returns a copy of the delivered records
func (m *MockSink) Delivered() []*alert.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*alert.Record, len(m.delivered))
	copy(out, m.delivered)
	return out
}

// MockAlertRepository is a mock implementation of alert.Repository
type MockAlertRepository struct {
	CreateError error
	ListError   error

	mu      sync.Mutex
	entries []*alert.HistoryEntry
	nextID  int64
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{nextID: 1}
}

func (m *MockAlertRepository) Create(ctx context.Context, entry *alert.HistoryEntry) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextID
	entry.CreatedAt = time.Now().UTC()
	m.nextID++
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

func (m *MockAlertRepository) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.HistoryEntry, int64, error) {
	if m.ListError != nil {
		return nil, 0, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*alert.HistoryEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		if filter.SourceIP != "" && e.SourceIP != filter.SourceIP {
			continue
		}
		matched = append(matched, e)
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*alert.HistoryEntry{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// Entries returns all stored entries in insertion order
func (m *MockAlertRepository) Entries() []*alert.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*alert.HistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// MockPublisher is a mock implementation of sinks.Publisher
type MockPublisher struct {
	Err error

	mu       sync.Mutex
	Messages map[string][][]byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Messages: make(map[string][][]byte)}
}

func (m *MockPublisher) Send(ctx context.Context, data []byte, topic string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[topic] = append(m.Messages[topic], data)
	return nil
}

// MockStorer is a mock implementation of sinks.Storer
type MockStorer struct {
	Err error

	mu   sync.Mutex
	Rows []sinks.Row
}

func (m *MockStorer) Insert(ctx context.Context, rows []sinks.Row) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rows = append(m.Rows, rows...)
	return nil
}

// SentEmail is one message captured by MockNotifier
type SentEmail struct {
	To      []string
	Subject string
	Body    string
}

// MockNotifier is a mock implementation of sinks.Notifier
type MockNotifier struct {
	Err error

	mu   sync.Mutex
	Sent []SentEmail
}

func (m *MockNotifier) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{To: to, Subject: subject, Body: body})
	return nil
}

// MockFirewall is an in-memory sinks.FirewallClient. Latency widens the gap
// between read and write so unserialized callers lose updates.
type MockFirewall struct {
	GetError     error
	ReplaceError error
	Latency      time.Duration

	mu       sync.Mutex
	rules    map[string][]string
	Gets     int
	Replaces int
}

func NewMockFirewall(rule string, ranges ...string) *MockFirewall {
	return &MockFirewall{rules: map[string][]string{rule: ranges}}
}

func (m *MockFirewall) GetRule(ctx context.Context, name string) (*sinks.Rule, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	m.Gets++
	ranges, ok := m.rules[name]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("firewall %s not found", name)
	}
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}
	return &sinks.Rule{Name: name, SourceRanges: append([]string(nil), ranges...)}, nil
}

func (m *MockFirewall) ReplaceRule(ctx context.Context, rule *sinks.Rule) error {
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Name] = append([]string(nil), rule.SourceRanges...)
	m.Replaces++
	return nil
}

// Counts returns the number of gets and replaces so far
func (m *MockFirewall) Counts() (gets, replaces int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gets, m.Replaces
}

// Ranges returns the sorted source ranges of a rule
func (m *MockFirewall) Ranges(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.rules[name]...)
	sort.Strings(out)
	return out
}

// MockLogWriter is a mock implementation of sinks.Logger
type MockLogWriter struct {
	Err error

	mu      sync.Mutex
	Entries []map[string]interface{}
}

func (m *MockLogWriter) WriteStructured(ctx context.Context, severity alert.Severity, fields map[string]interface{}) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fields["level"] = strings.ToLower(sinks.LevelFor(severity).String())
	m.Entries = append(m.Entries, fields)
	return nil
}

// MockDispatcher is a mock implementation of alert.Dispatcher
type MockDispatcher struct {
	DispatchFunc func(ctx context.Context, rec *alert.Record) (*alert.DispatchResult, error)

	mu      sync.Mutex
	records []*alert.Record
}

func (m *MockDispatcher) Dispatch(ctx context.Context, rec *alert.Record) (*alert.DispatchResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()

	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, rec)
	}
	result := alert.NewDispatchResult(rec)
	result.Outcomes[alert.SinkLog] = alert.Outcome{Status: alert.OutcomeSuccess}
	return result, nil
}

func (m *MockDispatcher) DispatchAsync(rec *alert.Record) {
	_, _ = m.Dispatch(context.Background(), rec)
}

// Records returns every dispatched record in order
func (m *MockDispatcher) Records() []*alert.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*alert.Record, len(m.records))
	copy(out, m.records)
	return out
}
