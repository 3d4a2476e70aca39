// Package types defines the provider-agnostic data structures that flow
// through the runtime: canonical requests, results, streaming events, and
// target selection. Shapes are OpenAI-compatible where the wire format
// agrees, since that's the dialect most provider manifests map onto.
package types //nolint:revive // package name is intentional

import "github.com/goccy/go-json"

// CanonicalRequest is the unified input format every protocol manifest
// builds a wire request from. It never contains provider-specific envelope
// details; those live in the manifest.
type CanonicalRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	N                int             `json:"n,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	User             string          `json:"user,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	StreamOptions    *StreamOptions  `json:"stream_options,omitempty"`

	// Tags steer target-ordering strategies (tag-based routing).
	Tags []string `json:"tags,omitempty"`

	// Extensions holds fields a manifest may map through unchanged without
	// the core ever needing to understand them.
	Extensions map[string]json.RawMessage `json:"-"`
}

var canonicalRequestKnownFields = map[string]struct{}{
	"model":             {},
	"messages":          {},
	"stream":            {},
	"max_tokens":        {},
	"temperature":       {},
	"top_p":             {},
	"n":                 {},
	"stop":              {},
	"presence_penalty":  {},
	"frequency_penalty": {},
	"user":              {},
	"tools":             {},
	"tool_choice":       {},
	"response_format":   {},
	"stream_options":    {},
	"tags":              {},
}

// MarshalJSON merges Extensions without overriding explicitly set fields.
func (r CanonicalRequest) MarshalJSON() ([]byte, error) {
	type Alias CanonicalRequest

	base, err := json.Marshal(Alias(r))
	if err != nil || len(r.Extensions) == 0 {
		return base, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(base, &payload); err != nil {
		return nil, err
	}

	for key, value := range r.Extensions {
		if _, exists := payload[key]; !exists {
			payload[key] = value
		}
	}

	return json.Marshal(payload)
}

// UnmarshalJSON captures unknown fields into Extensions for passthrough.
func (r *CanonicalRequest) UnmarshalJSON(data []byte) error {
	type Alias CanonicalRequest

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	var parsed Alias
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}

	*r = CanonicalRequest(parsed)
	for key := range canonicalRequestKnownFields {
		delete(payload, key)
	}

	if len(payload) == 0 {
		r.Extensions = nil
	} else {
		r.Extensions = payload
	}

	return nil
}

// Reset clears the request for pooled reuse.
func (r *CanonicalRequest) Reset() {
	r.Model = ""
	r.Messages = r.Messages[:0]
	r.Stream = false
	r.MaxTokens = 0
	r.Temperature = nil
	r.TopP = nil
	r.N = 0
	r.Stop = r.Stop[:0]
	r.PresencePenalty = nil
	r.FrequencyPenalty = nil
	r.User = ""
	r.Tools = r.Tools[:0]
	r.ToolChoice = nil
	r.ResponseFormat = nil
	r.StreamOptions = nil
	r.Tags = nil
	r.Extensions = nil
}

// Message is a single turn in the conversation. Content is either a plain
// string or an array of ContentBlock values; callers set exactly one of
// Content/Blocks.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Blocks     []ContentBlock `json:"-"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ContentBlock is a tagged union over the content kinds a message can carry.
// Exactly one of the dialect-specific fields is populated, selected by Type.
type ContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	// ImageURL or ImageBase64 (with MimeType) carries image content; exactly
	// one is set when Type == "image".
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`

	// AudioBase64 carries inline audio content when Type == "audio".
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function's signature.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a function call made by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction contains the function name and accumulated arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseFormat specifies the output format for the model.
type ResponseFormat struct {
	Type string `json:"type"`
}
