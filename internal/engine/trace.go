package engine

import (
	"context"
	"fmt"

	"pyramidbot/internal/ports"
)

// trace is the ordered per-signal diagnostic log. Every step of the
// sequence, including caught failures, appends a human-readable entry; the
// entries are returned to the caller in the result and mirrored to the
// process logger.
type trace struct {
	logger  ports.Logger
	entries []string
}

func newTrace(logger ports.Logger) *trace {
	return &trace{logger: logger}
}

func (t *trace) logf(ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	t.entries = append(t.entries, msg)
	t.logger.Info(ctx, msg)
}

func (t *trace) warnf(ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	t.entries = append(t.entries, msg)
	t.logger.Warn(ctx, msg)
}

// failf records a caught step failure. The sequence continues with a
// degraded value for that step's output.
func (t *trace) failf(ctx context.Context, err error, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	t.entries = append(t.entries, msg)
	t.logger.Error(ctx, err, msg)
}
