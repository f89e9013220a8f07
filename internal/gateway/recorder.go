package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/keygate/keygate/internal/core"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/observability"
)

const recordTimeout = 5 * time.Second

// LogSink persists audit entries.
type LogSink interface {
	Record(ctx context.Context, entry *core.AuditEntry) error
}

// Recorder writes one audit entry per processed request. Persistence uses
// a fresh context so a client disconnect cannot abort the write, and a
// failed write never surfaces to the client.
type Recorder struct {
	sink      LogSink
	bodyLimit int
}

// NewRecorder returns a Recorder that truncates captured bodies to
// bodyLimit bytes.
func NewRecorder(sink LogSink, bodyLimit int) *Recorder {
	if bodyLimit <= 0 {
		bodyLimit = 1000
	}
	return &Recorder{sink: sink, bodyLimit: bodyLimit}
}

// Record persists the entry. Failures are logged and counted, never
// propagated.
func (rec *Recorder) Record(entry *core.AuditEntry) {
	entry.Body = truncate(entry.Body, rec.bodyLimit)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := rec.sink.Record(ctx, entry); err != nil {
		metrics.RecordAuditFailure()
		if observability.ServerLogger != nil {
			observability.ServerLogger.Error("Failed to persist audit entry",
				zap.String("audit_id", entry.ID),
				zap.String("path", entry.Path),
				zap.Error(err),
			)
		}
	}
}

// CaptureBody renders a request body for audit storage. JSON bodies are
// compacted; anything else is stored verbatim.
func CaptureBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.String()
	}
	return string(raw)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
