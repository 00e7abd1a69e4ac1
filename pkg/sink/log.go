package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "sink:log"

// LogSink writes records to a slog logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger, or to the default logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs obj at error level under a fresh reference.
func (s *LogSink) Emit(ctx context.Context, obj valueobject.ErrorObject) (string, error) {
	rec := newRecord(uuid.NewString(), obj)
	s.logger.ErrorContext(ctx, fmt.Sprintf("%s - [%s] %s: %s %s", logPrefix, rec.Ref, rec.FQN, rec.Message, rec.Detail))
	return rec.Ref, nil
}
