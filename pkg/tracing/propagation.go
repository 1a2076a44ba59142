package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// kafkaHeaderCarrier must be used through a pointer: Set appends.
type kafkaHeaderCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*kafkaHeaderCarrier)(nil)

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = h.Key
	}
	return keys
}

// propertiesCarrier adapts Service Bus application properties. Values that
// are not strings are invisible to Get.
type propertiesCarrier map[string]any

var _ propagation.TextMapCarrier = propertiesCarrier(nil)

func (c propertiesCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c propertiesCarrier) Set(key, value string) {
	c[key] = value
}

func (c propertiesCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &kafkaHeaderCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

// InjectProperties writes the trace context of ctx into props, allocating the
// map when props is nil.
func InjectProperties(ctx context.Context, props map[string]any) map[string]any {
	if props == nil {
		props = make(map[string]any)
	}
	otel.GetTextMapPropagator().Inject(ctx, propertiesCarrier(props))
	return props
}

// ConsumerSpanFromKafka starts a consumer span parented on the producer's
// trace carried in headers.
func ConsumerSpanFromKafka(ctx context.Context, spanName string, headers []kafka.Header) (context.Context, trace.Span) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, &kafkaHeaderCarrier{headers: headers})
	return otel.Tracer(instrumentationName).Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindConsumer))
}

func ConsumerSpanFromProperties(ctx context.Context, spanName string, props map[string]any) (context.Context, trace.Span) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, propertiesCarrier(props))
	return otel.Tracer(instrumentationName).Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindConsumer))
}
