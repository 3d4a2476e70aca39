package streampipe

import "github.com/tidwall/gjson"

// DefaultCandidateIndex is the candidate index used when fan-out is
// disabled, resolving spec.md's open question of what non-streaming and
// single-candidate callers see: always candidate 0.
const DefaultCandidateIndex = 0

// FanOut expands a frame's candidate array (the manifest's fan_out_path,
// typically "choices") into one (index, element) pair per candidate. When
// fanOut is false or the manifest has no fan_out_path, it returns a single
// pair at DefaultCandidateIndex pointing at the whole selection, matching
// spec.md's non-fan-out default.
func FanOut(sel Selection, enabled bool) []CandidateFrame {
	if !enabled || !sel.FanOut.Exists() || !sel.FanOut.IsArray() {
		return []CandidateFrame{{Index: DefaultCandidateIndex, Selection: sel}}
	}

	candidates := sel.FanOut.Array()
	frames := make([]CandidateFrame, 0, len(candidates))
	for i, c := range candidates {
		frames = append(frames, CandidateFrame{
			Index:     i,
			Selection: subSelection(sel, c),
		})
	}
	return frames
}

// CandidateFrame pairs a fan-out candidate index with the Selection scoped
// to that candidate's element of the array.
type CandidateFrame struct {
	Index     int
	Selection Selection
}

// subSelection re-derives the content/thinking/tool-call/etc. fields
// relative to one fanned-out array element, since the manifest's paths are
// written relative to the frame root (e.g. "choices.0.delta.content") and
// a fanned-out element's own sub-paths follow the same per-choice shape
// one level down (e.g. "delta.content").
func subSelection(parent Selection, elem gjson.Result) Selection {
	return Selection{
		Raw:          elem,
		Content:      elem.Get("delta.content"),
		Thinking:     elem.Get("delta.thinking"),
		ToolCall:     elem.Get("delta.tool_calls"),
		Role:         elem.Get("delta.role"),
		FinishReason: elem.Get("finish_reason"),
		Usage:        parent.Usage,
	}
}
