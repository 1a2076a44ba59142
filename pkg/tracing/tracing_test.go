package tracing

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"personrelay/internal/config"
)

func producerSpan(t *testing.T) (context.Context, trace.Span) {
	t.Helper()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("test").Start(context.Background(), "publish")
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	ctx, span := producerSpan(t)
	defer span.End()

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "other", Value: []byte("x")}})
	require.Len(t, headers, 2)

	consumerCtx, consumer := ConsumerSpanFromKafka(context.Background(), "receive", headers)
	defer consumer.End()

	parent := trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), &kafkaHeaderCarrier{headers: headers}))
	assert.Equal(t, span.SpanContext().TraceID(), parent.TraceID())
	assert.NotNil(t, consumerCtx)
}

func TestProperties_RoundTrip(t *testing.T) {
	ctx, span := producerSpan(t)
	defer span.End()

	props := InjectProperties(ctx, nil)
	require.Contains(t, props, "traceparent")

	extracted := otel.GetTextMapPropagator().Extract(context.Background(), propertiesCarrier(props))
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func TestPropertiesCarrier_IgnoresNonStrings(t *testing.T) {
	c := propertiesCarrier{"traceparent": 42, "tracestate": "a=b"}
	assert.Empty(t, c.Get("traceparent"))
	assert.Equal(t, "a=b", c.Get("tracestate"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())
}

func TestKafkaHeaderCarrier_SetOverwrites(t *testing.T) {
	c := &kafkaHeaderCarrier{headers: []kafka.Header{{Key: "traceparent", Value: []byte("old")}}}
	c.Set("traceparent", "new")

	assert.Equal(t, "new", c.Get("traceparent"))
	assert.Equal(t, []string{"traceparent"}, c.Keys())
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(config.SamplerConfig{Type: "always_off"}).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(config.SamplerConfig{Type: "bogus"}).Description())
	assert.Equal(t,
		sdktrace.TraceIDRatioBased(0.25).Description(),
		Sampler(config.SamplerConfig{Type: "traceidratio", Param: 0.25}).Description(),
	)
}

func TestInit_DisabledIsNoop(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "relay-service")
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestFail_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	Fail(span, nil)
	Fail(span, errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

func TestTraced(t *testing.T) {
	assert.False(t, traced(httptest.NewRequest("GET", "/health", nil)))
	assert.False(t, traced(httptest.NewRequest("GET", "/swagger/index.html", nil)))
	assert.True(t, traced(httptest.NewRequest("POST", "/personservicebus/", nil)))
}
