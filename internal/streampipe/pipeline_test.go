package streampipe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIManifest(t *testing.T) *manifest.ProtocolManifest {
	t.Helper()
	m := &manifest.ProtocolManifest{
		ID:              "openai",
		ProtocolVersion: "1",
		Endpoint: manifest.EndpointConfig{
			BaseURL: "https://api.openai.com/v1",
			Paths:   map[string]string{"chat": "/chat/completions"},
		},
		Auth: manifest.AuthConfig{Scheme: manifest.AuthBearer, EnvVarName: "OPENAI_API_KEY"},
		Streaming: &manifest.StreamConfig{
			Decoder:          manifest.DecoderSSE,
			ContentPath:      "$.choices[0].delta.content",
			RolePath:         "$.choices[0].delta.role",
			ToolCallPath:     "$.choices[0].delta.tool_calls",
			FinishReasonPath: "$.choices[0].finish_reason",
			UsagePath:        "$.usage",
		},
		Capabilities: manifest.Capabilities{Streaming: true, Tools: true},
	}
	require.NoError(t, m.Validate(true))
	return m
}

func anthropicManifest(t *testing.T) *manifest.ProtocolManifest {
	t.Helper()
	m := &manifest.ProtocolManifest{
		ID:              "anthropic",
		ProtocolVersion: "1",
		Endpoint: manifest.EndpointConfig{
			BaseURL: "https://api.anthropic.com/v1",
			Paths:   map[string]string{"messages": "/messages"},
		},
		Auth: manifest.AuthConfig{Scheme: manifest.AuthHeader, HeaderName: "x-api-key", EnvVarName: "ANTHROPIC_API_KEY"},
		Streaming: &manifest.StreamConfig{
			Decoder:     manifest.DecoderAnthropicSSE,
			ContentPath: "$.delta.text",
		},
		Capabilities: manifest.Capabilities{Streaming: true, Tools: true},
	}
	require.NoError(t, m.Validate(true))
	return m
}

func drain(t *testing.T, out <-chan types.CanonicalEvent) []types.CanonicalEvent {
	t.Helper()
	var events []types.CanonicalEvent
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(time.Second):
			t.Fatal("timed out draining events")
		}
	}
}

func TestPipeline_OpenAITextDeltas(t *testing.T) {
	m := openAIManifest(t)
	body := strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
			"data: {\"choices\":[{\"finish_reason\":\"stop\"}]}\n\n" +
			"data: [DONE]\n\n",
	)

	p := New(m, Options{Streaming: true})
	out := make(chan types.CanonicalEvent, 16)
	require.NoError(t, p.Run(context.Background(), body, out))

	events := drain(t, out)
	var content strings.Builder
	sawEnd := false
	for _, ev := range events {
		if ev.Kind == types.EventPartialContentDelta {
			content.WriteString(ev.ContentDelta)
		}
		if ev.Kind == types.EventStreamEnd {
			sawEnd = true
		}
	}
	assert.Equal(t, "Hello", content.String())
	assert.True(t, sawEnd)
}

func TestPipeline_OpenAIToolCallReassembly(t *testing.T) {
	m := openAIManifest(t)
	lines := []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":""}}]}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}}]}`,
		``,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"sf\"}"}}]}}]}`,
		``,
		`data: {"choices":[{"finish_reason":"tool_calls"}]}`,
		``,
		`data: [DONE]`,
		``,
	}
	body := strings.NewReader(strings.Join(lines, "\n"))

	p := New(m, Options{Streaming: true})
	out := make(chan types.CanonicalEvent, 16)
	require.NoError(t, p.Run(context.Background(), body, out))

	events := drain(t, out)
	var started, ended bool
	var finalArgs string
	for _, ev := range events {
		switch ev.Kind {
		case types.EventToolCallStarted:
			started = true
			assert.Equal(t, "get_weather", ev.ToolCall.Name)
		case types.EventToolCallEnded:
			ended = true
			finalArgs = ev.ToolCall.Arguments
		}
	}
	assert.True(t, started)
	assert.True(t, ended)
	assert.JSONEq(t, `{"city":"sf"}`, finalArgs)
}

func TestPipeline_AnthropicToolUseStreaming(t *testing.T) {
	m := anthropicManifest(t)
	lines := []string{
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"lookup"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"go\"}"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"input_tokens":10,"output_tokens":5}}`,
		``,
	}
	body := strings.NewReader(strings.Join(lines, "\n"))

	p := New(m, Options{Streaming: true})
	out := make(chan types.CanonicalEvent, 16)
	require.NoError(t, p.Run(context.Background(), body, out))

	events := drain(t, out)
	var endedArgs string
	var foundFinish string
	for _, ev := range events {
		if ev.Kind == types.EventToolCallEnded {
			endedArgs = ev.ToolCall.Arguments
		}
		if ev.Kind == types.EventMetadata && ev.FinishReason != "" {
			foundFinish = ev.FinishReason
		}
	}
	assert.JSONEq(t, `{"q":"go"}`, endedArgs)
	assert.Equal(t, "tool_calls", foundFinish)
}

func TestPipeline_NonStreamingSynthesizesSingleDeltaAndEnd(t *testing.T) {
	m := openAIManifest(t)
	body := strings.NewReader(`{"choices":[{"delta":{"content":"hi there"},"finish_reason":"stop"}]}`)

	p := New(m, Options{Streaming: false})
	out := make(chan types.CanonicalEvent, 16)
	require.NoError(t, p.Run(context.Background(), body, out))

	events := drain(t, out)
	require.Len(t, events, 3)
	assert.Equal(t, types.EventPartialContentDelta, events[0].Kind)
	assert.Equal(t, "hi there", events[0].ContentDelta)
	assert.Equal(t, types.EventStreamEnd, events[2].Kind)
}
