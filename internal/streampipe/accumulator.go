package streampipe

import (
	"strings"

	"github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
	json "github.com/goccy/go-json"
)

// toolCallState tracks one in-flight tool call's argument text as it
// streams in, across possibly many PartialToolCall deltas.
type toolCallState struct {
	id      string
	name    string
	index   int
	started bool
	args    strings.Builder
}

// Accumulator owns in-flight tool-call reassembly state for one request. It
// is not safe for concurrent use; the Pipeline drives it from a single
// goroutine per the streaming pipeline's ownership model.
type Accumulator struct {
	calls     map[string]*toolCallState
	order     []string
	idByIndex map[int]string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		calls:     make(map[string]*toolCallState),
		idByIndex: make(map[int]string),
	}
}

// IDForIndex returns the tool call id previously Start-ed at this tool-call
// index, for dialects (OpenAI's tool_calls delta array) that carry the id
// only on the first frame and key continuation deltas by index alone.
func (a *Accumulator) IDForIndex(index int) (string, bool) {
	id, ok := a.idByIndex[index]
	return id, ok
}

// Start begins tracking a new tool call, emitting EventToolCallStarted.
func (a *Accumulator) Start(id, name string, index int) types.CanonicalEvent {
	st := &toolCallState{id: id, name: name, index: index, started: true}
	a.calls[id] = st
	a.order = append(a.order, id)
	a.idByIndex[index] = id
	return types.CanonicalEvent{
		Kind: types.EventToolCallStarted,
		ToolCall: &types.ToolCallEvent{
			ID:    id,
			Name:  name,
			Index: index,
		},
	}
}

// Delta appends an argument-text fragment to the named call, emitting
// EventPartialToolCall. If id hasn't been Start-ed yet, it is started
// implicitly with an empty name (some dialects stream the name separately
// from the first argument fragment).
func (a *Accumulator) Delta(id, argsDelta string, index int) types.CanonicalEvent {
	st, ok := a.calls[id]
	if !ok {
		st = &toolCallState{id: id, index: index}
		a.calls[id] = st
		a.order = append(a.order, id)
	}
	st.args.WriteString(argsDelta)
	return types.CanonicalEvent{
		Kind: types.EventPartialToolCall,
		ToolCall: &types.ToolCallEvent{
			ID:             id,
			Name:           st.name,
			ArgumentsDelta: argsDelta,
			Index:          st.index,
		},
	}
}

// SetName records a tool call's function name once known, for dialects
// that stream the name ahead of argument deltas.
func (a *Accumulator) SetName(id, name string) {
	if st, ok := a.calls[id]; ok {
		st.name = name
	}
}

// End finalizes one tool call: validates the accumulated argument text is
// well-formed JSON and returns the terminal PartialToolCall{is_complete}
// plus ToolCallEnded pair, or a StreamError if the buffer never became
// valid JSON.
func (a *Accumulator) End(id string) []types.CanonicalEvent {
	st, ok := a.calls[id]
	if !ok {
		return nil
	}
	full := st.args.String()
	if full == "" {
		full = "{}"
	}
	delete(a.calls, id)
	if a.idByIndex[st.index] == id {
		delete(a.idByIndex, st.index)
	}
	if !json.Valid([]byte(full)) {
		c := errors.Classified{Kind: errors.KindServerError, Message: "tool call arguments did not accumulate to valid JSON"}
		return []types.CanonicalEvent{{Kind: types.EventStreamError, Err: &c}}
	}
	return []types.CanonicalEvent{
		{
			Kind: types.EventPartialToolCall,
			ToolCall: &types.ToolCallEvent{
				ID:        id,
				Name:      st.name,
				Arguments: full,
				Index:     st.index,
			},
		},
		{
			Kind: types.EventToolCallEnded,
			ToolCall: &types.ToolCallEvent{
				ID:        id,
				Name:      st.name,
				Arguments: full,
				Index:     st.index,
			},
		},
	}
}

// EndAll finalizes every tool call still open, in start order, used when
// the stream ends without explicit per-call termination markers.
func (a *Accumulator) EndAll() []types.CanonicalEvent {
	var events []types.CanonicalEvent
	for _, id := range a.order {
		events = append(events, a.End(id)...)
	}
	return events
}

// IsOpen reports whether id is a known, not-yet-ended tool call.
func (a *Accumulator) IsOpen(id string) bool {
	_, ok := a.calls[id]
	return ok
}
