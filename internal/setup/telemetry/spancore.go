package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// SpanCore is a zapcore.Core that records error logs as OpenTelemetry spans.
type SpanCore struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
	fields []zapcore.Field
}

// NewSpanCore creates a core recording entries at or above ErrorLevel.
func NewSpanCore(tp trace.TracerProvider) zapcore.Core {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &SpanCore{
		LevelEnabler: zapcore.ErrorLevel,
		tracer:       tp.Tracer("github.com/robalyx/marginalia/logs"),
	}
}

func (c *SpanCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(append([]zapcore.Field{}, c.fields...), fields...)
	return &clone
}

func (c *SpanCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *SpanCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	_, span := c.tracer.Start(context.Background(), "error."+errorCategory(ent))
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("error.message", ent.Message),
		attribute.String("error.level", ent.Level.String()),
		attribute.String("error.caller", ent.Caller.TrimmedPath()),
		attribute.String("logger", ent.LoggerName),
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, field := range append(c.fields, fields...) {
		field.AddTo(enc)
	}
	for key, value := range enc.Fields {
		attrs = append(attrs, attribute.String(key, toString(value)))
	}

	span.SetAttributes(attrs...)
	span.SetStatus(codes.Error, ent.Message)
	return nil
}

func (c *SpanCore) Sync() error {
	return nil
}

// errorCategory groups entries by the package that logged them.
func errorCategory(ent zapcore.Entry) string {
	fn := ent.Caller.Function
	switch {
	case strings.Contains(fn, "/internal/database"):
		return "database"
	case strings.Contains(fn, "/internal/kv"), strings.Contains(fn, "/internal/redis"):
		return "redis"
	case strings.Contains(fn, "/internal/worker"):
		return "worker"
	case strings.Contains(fn, "/internal/engine"):
		return "engine"
	case strings.Contains(fn, "/internal/api"):
		return "api"
	case strings.Contains(fn, "/internal/setup"):
		return "setup"
	default:
		return "application"
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	case interface{ String() string }:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
