package types //nolint:revive // package name is intentional

import "github.com/aiproto/aiproto/pkg/errors"

// EventKind is the closed alphabet of canonical streaming events. Every
// decoder/accumulator/event-mapper combination, regardless of provider
// dialect, only ever emits these.
type EventKind string

const (
	EventPartialContentDelta EventKind = "partial_content_delta"
	EventThinkingDelta       EventKind = "thinking_delta"
	EventToolCallStarted     EventKind = "tool_call_started"
	EventPartialToolCall     EventKind = "partial_tool_call"
	EventToolCallEnded       EventKind = "tool_call_ended"
	EventMetadata            EventKind = "metadata"
	EventStreamEnd           EventKind = "stream_end"
	EventStreamError         EventKind = "stream_error"
)

// CanonicalEvent is one item in the canonical event stream every pipeline
// produces, independent of the wire decoder that fed it. Seq is monotonic
// per request and stable given identical input (fingerprint-stable
// ordering); CandidateIndex distinguishes fanned-out candidates, 0 when
// fan-out was not requested.
type CanonicalEvent struct {
	Kind           EventKind `json:"kind"`
	Seq            int       `json:"seq"`
	CandidateIndex int       `json:"candidate_index"`

	// ContentDelta is set for EventPartialContentDelta.
	ContentDelta string `json:"content_delta,omitempty"`

	// ThinkingDelta is set for EventThinkingDelta (extended/reasoning
	// content some providers stream separately from the answer text).
	ThinkingDelta string `json:"thinking_delta,omitempty"`

	// ToolCall is set for EventToolCallStarted/EventPartialToolCall/
	// EventToolCallEnded.
	ToolCall *ToolCallEvent `json:"tool_call,omitempty"`

	// FinishReason and Usage are set on EventMetadata and/or EventStreamEnd,
	// whichever the manifest's field paths surface them on.
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`

	// Extra carries metadata fields the manifest maps through unchanged for
	// EventMetadata (e.g. a provider's system_fingerprint equivalent).
	Extra map[string]any `json:"extra,omitempty"`

	// Err is set for EventStreamError.
	Err *errors.Classified `json:"error,omitempty"`
}

// ToolCallEvent carries one tool-call reassembly step.
type ToolCallEvent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// ArgumentsDelta is the fragment appended in this event (set on
	// EventPartialToolCall only).
	ArgumentsDelta string `json:"arguments_delta,omitempty"`

	// Arguments is the fully accumulated, validated-JSON argument string,
	// set only on EventToolCallEnded.
	Arguments string `json:"arguments,omitempty"`

	Index int `json:"index"`
}

// IsTerminal reports whether this event ends the stream; exactly one
// terminal event is ever emitted, and it is always the last.
func (e CanonicalEvent) IsTerminal() bool {
	return e.Kind == EventStreamEnd || e.Kind == EventStreamError
}
