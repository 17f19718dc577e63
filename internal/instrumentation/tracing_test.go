package instrumentation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestStartGoogleAPISpan(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartGoogleAPISpan(context.Background(), ServiceGmail, "get",
		attribute.String(SpanAttrMessageID, "m1"))
	assert.NotEmpty(t, GetTraceID(ctx))
	SetSpanSuccess(span)
	span.End()

	ended := recorder.Ended()
	if assert.Len(t, ended, 1) {
		assert.Equal(t, "google.gmail.get", ended[0].Name())
		assert.Equal(t, ServiceGmail, spanAttr(ended[0], SpanAttrService))
		assert.Equal(t, "get", spanAttr(ended[0], SpanAttrOperation))
		assert.Equal(t, "m1", spanAttr(ended[0], SpanAttrMessageID))
	}
}

func TestStartUnsubscribeSpan_RecordsError(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartUnsubscribeSpan(context.Background(), "m2")
	SetSpanError(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	if assert.Len(t, ended, 1) {
		assert.Equal(t, "unsubscribe.attempt", ended[0].Name())
		assert.Equal(t, "m2", spanAttr(ended[0], SpanAttrMessageID))
		assert.Len(t, ended[0].Events(), 1)
	}
}

func TestSetSpanError_NilIsNoOp(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSpan(context.Background(), "noop")
	SetSpanError(span, nil)
	span.End()

	if assert.Len(t, recorder.Ended(), 1) {
		assert.Empty(t, recorder.Ended()[0].Events())
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}
