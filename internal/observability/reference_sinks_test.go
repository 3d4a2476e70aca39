package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusSink_EmitDoesNotPanic(t *testing.T) {
	sink := NewPrometheusSink()
	require.NotNil(t, sink)

	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), Event{
			Timestamp:  time.Now(),
			Name:       "request_start",
			Attributes: map[string]any{"request_id": "r1", "targets": 2, "stream": false},
		})
		sink.Emit(context.Background(), Event{
			Timestamp:  time.Now(),
			Name:       "request_end",
			Attributes: map[string]any{"request_id": "r1", "target": "openai/gpt-4o", "success": true},
		})
		sink.Emit(context.Background(), Event{
			Timestamp:  time.Now(),
			Name:       "retry",
			Attributes: map[string]any{"request_id": "r1", "target": "openai/gpt-4o", "attempt": 1, "kind": "server_error"},
		})
		sink.Emit(context.Background(), Event{
			Timestamp:  time.Now(),
			Name:       "fallback",
			Attributes: map[string]any{"request_id": "r1", "original_target": "openai/gpt-4o", "kind": "rate_limited"},
		})
	})
}

type recordingSink struct {
	names []string
}

func (r *recordingSink) Emit(ctx context.Context, event Event) {
	r.names = append(r.names, event.Name)
}

func TestMultiSink_FansOutToEveryMember(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := MultiSink{a, nil, b}

	multi.Emit(context.Background(), Event{Name: "request_start"})

	assert.Equal(t, []string{"request_start"}, a.names)
	assert.Equal(t, []string{"request_start"}, b.names)
}
