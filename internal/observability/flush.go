package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Flusher drains a buffered telemetry sink (e.g. the lookup event producer).
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushTelemetry flushes sinks, then the logger. Call during graceful shutdown
// after in-flight requests have drained. All sinks are attempted; errors are joined.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, sinks ...Flusher) error {
	var errs []error
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush sink: %w", err))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
