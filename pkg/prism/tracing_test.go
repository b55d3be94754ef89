package prism_test

import (
	"context"
	"testing"

	"github.com/nulzo/prism-go/internal/mockgateway"
	"github.com/nulzo/prism-go/pkg/prism"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attr(span sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestTracing_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	client := setup(t, mockgateway.Config{}, prism.WithTracerProvider(tp))

	_, err := client.Chat(context.Background(), request(mockgateway.ModelEcho, "hi"))
	require.NoError(t, err)

	req := request(mockgateway.ModelEcho, "hi")
	req.Stream = true
	_, err = client.Chat(context.Background(), req)
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), request(mockgateway.ModelError429, "hi"))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "prism.chat", spans[0].Name())
	assert.Equal(t, mockgateway.ModelEcho, attr(spans[0], "prism.model").AsString())
	assert.Equal(t, int64(200), attr(spans[0], "http.response.status_code").AsInt64())

	assert.Equal(t, "prism.chat.stream", spans[1].Name())
	assert.Greater(t, attr(spans[1], "prism.chunks").AsInt64(), int64(0))
	assert.NotEmpty(t, attr(spans[1], "prism.request_id").AsString())

	assert.Equal(t, codes.Error, spans[2].Status().Code)
	assert.Equal(t, int64(429), attr(spans[2], "http.response.status_code").AsInt64())
}
