package logging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Span times one relationship engine operation.
type Span struct {
	logger *zap.Logger
	start  time.Time
}

// StartSpan opens operation as a child of the span on ctx, starting a trace when there is none.
// Loggers taken from the returned context carry the operation and its ids.
func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = withCall(ctx, func(c *call) {
		if c.traceID == "" {
			c.traceID = uuid.NewString()
		}
		c.parentSpanID = c.spanID
		c.spanID = uuid.NewString()
		c.operation = operation
	})

	return ctx, &Span{logger: FromContext(ctx), start: time.Now()}
}

// End logs the operation's duration. Failed operations are logged at info with the error,
// successful ones at debug.
func (s *Span) End(err error) {
	if s == nil {
		return
	}
	elapsed := zap.Duration("duration", time.Since(s.start))
	if err != nil {
		s.logger.Info("operation failed", elapsed, zap.NamedError("outcome", err))
		return
	}
	s.logger.Debug("operation completed", elapsed)
}
