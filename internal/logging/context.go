package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	callKey
)

// call identifies the request, the authenticated caller and the engine operation in progress.
// FromContext turns it into log fields, so code below the middleware never binds them by hand.
type call struct {
	requestID    string
	userID       int64
	traceID      string
	spanID       string
	parentSpanID string
	operation    string
}

func (c call) fields() []zap.Field {
	fields := make([]zap.Field, 0, 6)
	if c.requestID != "" {
		fields = append(fields, zap.String("request_id", c.requestID))
	}
	if c.userID > 0 {
		fields = append(fields, zap.Int64("user_id", c.userID))
	}
	if c.traceID != "" {
		fields = append(fields, zap.String("trace_id", c.traceID))
	}
	if c.spanID != "" {
		fields = append(fields, zap.String("span_id", c.spanID))
	}
	if c.parentSpanID != "" {
		fields = append(fields, zap.String("parent_span_id", c.parentSpanID))
	}
	if c.operation != "" {
		fields = append(fields, zap.String("operation", c.operation))
	}
	return fields
}

func callFrom(ctx context.Context) call {
	if ctx == nil {
		return call{}
	}
	c, _ := ctx.Value(callKey).(call)
	return c
}

func withCall(ctx context.Context, update func(*call)) context.Context {
	c := callFrom(ctx)
	update(&c)
	return context.WithValue(ctx, callKey, c)
}

// WithLogger stores the base logger for the request. Call identifiers are added by FromContext.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request logger, or the global zap logger, annotated with the
// request id, caller and current operation found on ctx.
func FromContext(ctx context.Context) *zap.Logger {
	logger := zap.L()
	if ctx == nil {
		return logger
	}
	if base, ok := ctx.Value(loggerKey).(*zap.Logger); ok && base != nil {
		logger = base
	}
	if fields := callFrom(ctx).fields(); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}

// WithRequestID stores a request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return withCall(ctx, func(c *call) { c.requestID = requestID })
}

// RequestIDFromContext retrieves a previously stored request identifier.
func RequestIDFromContext(ctx context.Context) string {
	return callFrom(ctx).requestID
}

// WithUserID stores the authenticated caller on the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	if ctx == nil || userID <= 0 {
		return ctx
	}
	return withCall(ctx, func(c *call) { c.userID = userID })
}

// UserIDFromContext returns the authenticated caller, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID := callFrom(ctx).userID
	return userID, userID > 0
}

// TraceIDFromContext returns the trace shared by every span of the request.
func TraceIDFromContext(ctx context.Context) string {
	return callFrom(ctx).traceID
}

// SpanIDFromContext returns the innermost span.
func SpanIDFromContext(ctx context.Context) string {
	return callFrom(ctx).spanID
}
