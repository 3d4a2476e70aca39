package streampipe

import (
	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/tidwall/gjson"
)

// Selection is everything the Selector could extract from one frame, using
// the manifest's translated paths. Fields are zero-value when the frame's
// JSON didn't contain that path.
type Selection struct {
	Raw gjson.Result

	Content      gjson.Result
	Thinking     gjson.Result
	ToolCall     gjson.Result
	Role         gjson.Result
	FinishReason gjson.Result
	Usage        gjson.Result
	FanOut       gjson.Result
}

// Select evaluates every streaming path the manifest declares against one
// decoded frame's JSON body. Paths the manifest doesn't declare simply
// yield a zero gjson.Result (Exists() == false).
func Select(m *manifest.ProtocolManifest, data []byte) Selection {
	root := gjson.ParseBytes(data)
	sel := Selection{Raw: root}

	if p := m.TranslatedPath("streaming.content_path"); p != "" {
		sel.Content = root.Get(p)
	}
	if p := m.TranslatedPath("streaming.thinking_path"); p != "" {
		sel.Thinking = root.Get(p)
	}
	if p := m.TranslatedPath("streaming.tool_call_path"); p != "" {
		sel.ToolCall = root.Get(p)
	}
	if p := m.TranslatedPath("streaming.role_path"); p != "" {
		sel.Role = root.Get(p)
	}
	if p := m.TranslatedPath("streaming.finish_reason_path"); p != "" {
		sel.FinishReason = root.Get(p)
	}
	if p := m.TranslatedPath("streaming.usage_path"); p != "" {
		sel.Usage = root.Get(p)
	}
	if p := m.TranslatedPath("streaming.fan_out_path"); p != "" {
		sel.FanOut = root.Get(p)
	}
	return sel
}
