package sinks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/logger"
)

// severityLevels maps alert severity to a log level. Critical has no level of
// its own that does not exit, so it is logged at error with critical=true.
var severityLevels = map[alert.Severity]zerolog.Level{
	alert.SeverityInfo:     zerolog.InfoLevel,
	alert.SeverityWarning:  zerolog.WarnLevel,
	alert.SeverityError:    zerolog.ErrorLevel,
	alert.SeverityCritical: zerolog.ErrorLevel,
}

// LevelFor returns the log level for a severity
func LevelFor(s alert.Severity) zerolog.Level {
	if lvl, ok := severityLevels[s]; ok {
		return lvl
	}
	return zerolog.WarnLevel
}

// Logger writes a structured entry
type Logger interface {
	WriteStructured(ctx context.Context, severity alert.Severity, fields map[string]interface{}) error
}

// ZerologWriter writes alert entries through the application logger
type ZerologWriter struct {
	log *logger.Logger
}

// NewZerologWriter creates a writer on top of log
func NewZerologWriter(log *logger.Logger) *ZerologWriter {
	return &ZerologWriter{log: log}
}

// WriteStructured implements Logger
func (w *ZerologWriter) WriteStructured(_ context.Context, severity alert.Severity, fields map[string]interface{}) error {
	fields["event_type"] = "security_alert"
	if severity == alert.SeverityCritical {
		fields["critical"] = true
	}
	w.log.Structured(LevelFor(severity), fields, "Security alert")
	return nil
}

// LogSink writes every alert as a structured log entry
type LogSink struct {
	out Logger
}

// NewLogSink creates a log sink
func NewLogSink(out Logger) *LogSink {
	return &LogSink{out: out}
}

// Name implements Sink
func (s *LogSink) Name() alert.Sink { return alert.SinkLog }

// Deliver implements Sink
func (s *LogSink) Deliver(ctx context.Context, rec *alert.Record) error {
	return s.out.WriteStructured(ctx, rec.Severity(), rec.Flatten())
}
