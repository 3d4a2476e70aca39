package streampipe

import (
	"github.com/aiproto/aiproto/pkg/types"
	"github.com/tidwall/gjson"
)

// EventMapper turns one decoded, selected, fan-out-expanded frame into zero
// or more canonical events. It is the one place genuine per-dialect
// polymorphism is warranted: most providers share the generic rule-based
// mapping, but Anthropic's event-tagged SSE stream needs its own state
// machine to reassemble tool calls (see AnthropicEventMapper).
type EventMapper interface {
	Map(frame Frame, cand CandidateFrame, acc *Accumulator, seq *int) []types.CanonicalEvent
}

func nextSeq(seq *int) int {
	*seq++
	return *seq
}

// GenericEventMapper maps a selected frame to canonical events using only
// the manifest's declared paths, with no provider-specific event names.
// This covers OpenAI-shaped and Gemini-shaped streaming bodies.
type GenericEventMapper struct{}

func (GenericEventMapper) Map(frame Frame, cand CandidateFrame, acc *Accumulator, seq *int) []types.CanonicalEvent {
	sel := cand.Selection
	var events []types.CanonicalEvent

	if sel.Role.Exists() {
		events = append(events, types.CanonicalEvent{
			Kind:           types.EventMetadata,
			CandidateIndex: cand.Index,
			Extra:          map[string]any{"role": sel.Role.String()},
		})
	}

	if sel.Content.Exists() && sel.Content.String() != "" {
		events = append(events, types.CanonicalEvent{
			Kind:           types.EventPartialContentDelta,
			Seq:            nextSeq(seq),
			CandidateIndex: cand.Index,
			ContentDelta:   sel.Content.String(),
		})
	}

	if sel.Thinking.Exists() && sel.Thinking.String() != "" {
		events = append(events, types.CanonicalEvent{
			Kind:           types.EventThinkingDelta,
			Seq:            nextSeq(seq),
			CandidateIndex: cand.Index,
			ThinkingDelta:  sel.Thinking.String(),
		})
	}

	if sel.ToolCall.Exists() {
		events = append(events, mapOpenAIToolCalls(sel, acc)...)
	}

	if sel.FinishReason.Exists() && sel.FinishReason.String() != "" {
		ended := acc.EndAll()
		events = append(events, ended...)
		events = append(events, types.CanonicalEvent{
			Kind:           types.EventMetadata,
			CandidateIndex: cand.Index,
			FinishReason:   sel.FinishReason.String(),
		})
	}

	if sel.Usage.Exists() {
		usage := &types.Usage{
			PromptTokens:     int(sel.Usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(sel.Usage.Get("completion_tokens").Int()),
			TotalTokens:      int(sel.Usage.Get("total_tokens").Int()),
		}
		events = append(events, types.CanonicalEvent{
			Kind:           types.EventMetadata,
			CandidateIndex: cand.Index,
			Usage:          usage,
		})
	}

	return events
}

// mapOpenAIToolCalls walks the OpenAI tool_calls delta array shape:
// [{index, id, function:{name, arguments}}], starting a call the first
// time an id/name is seen and appending argument deltas thereafter.
func mapOpenAIToolCalls(sel Selection, acc *Accumulator) []types.CanonicalEvent {
	var events []types.CanonicalEvent
	for _, tc := range sel.ToolCall.Array() {
		idx := int(tc.Get("index").Int())
		id := tc.Get("id").String()
		name := tc.Get("function.name").String()
		argsDelta := tc.Get("function.arguments").String()

		if id != "" && !acc.IsOpen(id) {
			events = append(events, acc.Start(id, name, idx))
		} else if id != "" && name != "" {
			acc.SetName(id, name)
		}

		lookupID := id
		if lookupID == "" {
			// OpenAI omits id on continuation deltas, carrying only index;
			// resolve it back to the id Start-ed at this index.
			if existing, ok := acc.IDForIndex(idx); ok {
				lookupID = existing
			}
		}
		if argsDelta != "" && lookupID != "" {
			events = append(events, acc.Delta(lookupID, argsDelta, idx))
		}
	}
	return events
}

// AnthropicEventMapper maps Anthropic's event-tagged SSE stream
// (message_start, content_block_start/_delta/_stop, message_delta,
// message_stop) to canonical events. Unlike the teacher's AnthropicParser,
// this mapper tracks content_block_start{type:"tool_use"} and
// input_json_delta so Anthropic tool calls reassemble correctly while
// streaming instead of being silently dropped.
type AnthropicEventMapper struct {
	blockIndexToToolID map[int64]string
}

// NewAnthropicEventMapper creates a mapper with fresh per-block tracking
// state; one instance per request, matching the rest of the pipeline.
func NewAnthropicEventMapper() *AnthropicEventMapper {
	return &AnthropicEventMapper{blockIndexToToolID: make(map[int64]string)}
}

func (m *AnthropicEventMapper) Map(frame Frame, cand CandidateFrame, acc *Accumulator, seq *int) []types.CanonicalEvent {
	root := cand.Selection.Raw
	switch frame.Event {
	case "content_block_start":
		return m.handleBlockStart(root, cand.Index, acc)
	case "content_block_delta":
		return m.handleBlockDelta(root, cand.Index, acc, seq)
	case "content_block_stop":
		return m.handleBlockStop(root, acc)
	case "message_delta":
		return m.handleMessageDelta(root, cand.Index, acc)
	case "message_start", "message_stop", "ping":
		return nil
	default:
		return nil
	}
}

func (m *AnthropicEventMapper) handleBlockStart(root gjson.Result, candIndex int, acc *Accumulator) []types.CanonicalEvent {
	block := root.Get("content_block")
	idx := root.Get("index").Int()
	if block.Get("type").String() != "tool_use" {
		return nil
	}
	id := block.Get("id").String()
	name := block.Get("name").String()
	m.blockIndexToToolID[idx] = id
	return []types.CanonicalEvent{acc.Start(id, name, int(idx))}
}

func (m *AnthropicEventMapper) handleBlockDelta(root gjson.Result, candIndex int, acc *Accumulator, seq *int) []types.CanonicalEvent {
	idx := root.Get("index").Int()
	delta := root.Get("delta")
	switch delta.Get("type").String() {
	case "text_delta":
		text := delta.Get("text").String()
		if text == "" {
			return nil
		}
		return []types.CanonicalEvent{{
			Kind:           types.EventPartialContentDelta,
			Seq:            nextSeq(seq),
			CandidateIndex: candIndex,
			ContentDelta:   text,
		}}
	case "thinking_delta":
		text := delta.Get("thinking").String()
		if text == "" {
			return nil
		}
		return []types.CanonicalEvent{{
			Kind:           types.EventThinkingDelta,
			Seq:            nextSeq(seq),
			CandidateIndex: candIndex,
			ThinkingDelta:  text,
		}}
	case "input_json_delta":
		id, ok := m.blockIndexToToolID[idx]
		if !ok {
			return nil
		}
		partial := delta.Get("partial_json").String()
		if partial == "" {
			return nil
		}
		return []types.CanonicalEvent{acc.Delta(id, partial, int(idx))}
	default:
		return nil
	}
}

func (m *AnthropicEventMapper) handleBlockStop(root gjson.Result, acc *Accumulator) []types.CanonicalEvent {
	idx := root.Get("index").Int()
	id, ok := m.blockIndexToToolID[idx]
	if !ok {
		return nil
	}
	delete(m.blockIndexToToolID, idx)
	return acc.End(id)
}

func (m *AnthropicEventMapper) handleMessageDelta(root gjson.Result, candIndex int, acc *Accumulator) []types.CanonicalEvent {
	delta := root.Get("delta")
	stopReason := delta.Get("stop_reason").String()
	if stopReason == "" {
		return nil
	}
	events := acc.EndAll()
	events = append(events, types.CanonicalEvent{
		Kind:           types.EventMetadata,
		CandidateIndex: candIndex,
		FinishReason:   mapAnthropicStopReason(stopReason),
	})
	if usage := root.Get("usage"); usage.Exists() {
		events = append(events, types.CanonicalEvent{
			Kind:           types.EventMetadata,
			CandidateIndex: candIndex,
			Usage: &types.Usage{
				PromptTokens:     int(usage.Get("input_tokens").Int()),
				CompletionTokens: int(usage.Get("output_tokens").Int()),
				TotalTokens:      int(usage.Get("input_tokens").Int() + usage.Get("output_tokens").Int()),
			},
		})
	}
	return events
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}
