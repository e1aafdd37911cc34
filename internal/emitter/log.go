package emitter

import (
	"log/slog"

	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

// LogSink writes results and error reports to a structured logger.
// Previews are logged at debug level only.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// OnPreview implements scheduler.Sink.
func (l *LogSink) OnPreview(p scheduler.Preview) {
	l.logger.Debug("scan: preview",
		"seq", p.Seq,
		"region", p.Region,
	)
}

// OnResult implements scheduler.Sink.
func (l *LogSink) OnResult(r scheduler.Result) {
	l.logger.Info("scan: code detected",
		"seq", r.Seq,
		"trace_id", r.TraceID,
		"code", r.Outcome.Payload,
		"image_type", r.Outcome.VariantLabel,
		"attempts", r.Outcome.Attempts,
		"latency_ms", r.Latency.Milliseconds(),
	)
}

// OnError implements scheduler.Sink.
func (l *LogSink) OnError(e scheduler.ErrorReport) {
	l.logger.Warn("scan: "+e.Title,
		"seq", e.Seq,
		"message", e.Message,
	)
}
