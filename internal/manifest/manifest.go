// Package manifest defines the declarative protocol manifest that describes
// one provider's wire dialect: endpoints, auth, request shape, streaming
// format, and error classification. The package is catalog-free — no
// concrete provider is known to it; manifests are loaded as data.
package manifest

// KnownProtocolVersions is the set of protocol_version values this loader
// accepts without a deprecation warning. "2" is accepted too (see
// Validate), but is treated as a superset of v1 semantics rather than a
// distinct schema.
var KnownProtocolVersions = map[string]struct{}{
	"1": {},
	"2": {},
}

// AuthScheme is the closed set of credential-injection mechanisms a
// manifest may declare.
type AuthScheme string

const (
	AuthBearer AuthScheme = "bearer"
	AuthHeader AuthScheme = "header"
	AuthQuery  AuthScheme = "query"
	AuthNone   AuthScheme = "none"
)

// StreamDecoder is the closed set of wire framing formats the streaming
// pipeline's Decoder stage understands.
type StreamDecoder string

const (
	DecoderSSE          StreamDecoder = "sse"
	DecoderNDJSON       StreamDecoder = "ndjson"
	DecoderAnthropicSSE StreamDecoder = "anthropic_sse"
)

// ToolDialect is the closed set of tool/function-calling wire shapes the
// request builder knows how to serialize.
type ToolDialect string

const (
	ToolDialectOpenAI    ToolDialect = "openai"
	ToolDialectAnthropic ToolDialect = "anthropic"
	ToolDialectGemini    ToolDialect = "gemini"
)

// ProtocolManifest is the validated, immutable-after-load description of one
// provider's API shape. Once returned from the Loader it is never mutated;
// a file change seen by Loader.Watch drops the cache entry, and the next
// Load parses and validates a new value.
type ProtocolManifest struct {
	ID              string `json:"id" yaml:"id"`
	ProtocolVersion string `json:"protocol_version" yaml:"protocol_version"`

	Endpoint     EndpointConfig `json:"endpoint" yaml:"endpoint"`
	Auth         AuthConfig     `json:"auth" yaml:"auth"`
	Request      RequestConfig  `json:"request" yaml:"request"`
	Streaming    *StreamConfig  `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	ErrorMapping *ErrorMapping  `json:"error_mapping,omitempty" yaml:"error_mapping,omitempty"`
	Capabilities Capabilities   `json:"capabilities" yaml:"capabilities"`

	// translatedPaths caches gjson-dialect path strings derived from the
	// manifest's JSONPath-like selectors, computed once during Validate.
	translatedPaths map[string]string
}

// EndpointConfig describes where requests go.
type EndpointConfig struct {
	BaseURL string            `json:"base_url" yaml:"base_url"`
	Paths   map[string]string `json:"paths" yaml:"paths"`
}

// AuthConfig describes how credentials are attached to a request.
type AuthConfig struct {
	Scheme     AuthScheme `json:"scheme" yaml:"scheme"`
	HeaderName string     `json:"header_name,omitempty" yaml:"header_name,omitempty"`
	QueryParam string     `json:"query_param,omitempty" yaml:"query_param,omitempty"`
	EnvVarName string     `json:"env_var_name" yaml:"env_var_name"`
	Prefix     string     `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// RequestConfig describes the canonical-to-wire transformation for a chat
// request: field renames, envelope wrapping, role mapping, and tool dialect.
type RequestConfig struct {
	// FieldMap renames canonical field names (e.g. "max_tokens") to the
	// wire field the provider expects (e.g. "max_tokens_to_sample").
	FieldMap map[string]string `json:"field_map,omitempty" yaml:"field_map,omitempty"`

	// RoleMap renames canonical message roles (e.g. "tool" -> "function").
	RoleMap map[string]string `json:"role_map,omitempty" yaml:"role_map,omitempty"`

	// Envelope, if set, wraps the body under this top-level key.
	Envelope string `json:"envelope,omitempty" yaml:"envelope,omitempty"`

	ToolDialect ToolDialect `json:"tool_dialect,omitempty" yaml:"tool_dialect,omitempty"`

	// ExtractSystemMessage moves the first system message into a top-level
	// "system" field instead of the messages array, as Anthropic requires.
	ExtractSystemMessage bool `json:"extract_system_message,omitempty" yaml:"extract_system_message,omitempty"`
}

// StreamConfig describes the wire streaming format and the JSONPath-like
// selectors used to extract canonical fields from each decoded frame.
type StreamConfig struct {
	Decoder StreamDecoder `json:"decoder" yaml:"decoder"`

	ContentPath      string `json:"content_path,omitempty" yaml:"content_path,omitempty"`
	ThinkingPath     string `json:"thinking_path,omitempty" yaml:"thinking_path,omitempty"`
	ToolCallPath     string `json:"tool_call_path,omitempty" yaml:"tool_call_path,omitempty"`
	RolePath         string `json:"role_path,omitempty" yaml:"role_path,omitempty"`
	FinishReasonPath string `json:"finish_reason_path,omitempty" yaml:"finish_reason_path,omitempty"`
	UsagePath        string `json:"usage_path,omitempty" yaml:"usage_path,omitempty"`
	FanOutPath       string `json:"fan_out_path,omitempty" yaml:"fan_out_path,omitempty"`
}

// ErrorMapping overrides the fixed HTTP-status error table with
// provider-specific error codes.
type ErrorMapping struct {
	ByProviderCode map[string]string `json:"by_provider_code,omitempty" yaml:"by_provider_code,omitempty"`
	// CodePath is the selector used to extract the provider code from an
	// error response body (e.g. "$.error.type").
	CodePath string `json:"code_path,omitempty" yaml:"code_path,omitempty"`
}

// Capabilities flags what a provider/model combination supports.
type Capabilities struct {
	Streaming bool `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Tools     bool `json:"tools,omitempty" yaml:"tools,omitempty"`
	Vision    bool `json:"vision,omitempty" yaml:"vision,omitempty"`
	Audio     bool `json:"audio,omitempty" yaml:"audio,omitempty"`
	JSONMode  bool `json:"json_mode,omitempty" yaml:"json_mode,omitempty"`
}

// TranslatedPath returns the gjson-dialect path computed for a manifest
// field during Validate, or "" if that field was unset or Validate has not
// run yet. Callers normally go through the Loader, which validates.
func (m *ProtocolManifest) TranslatedPath(field string) string {
	return m.translatedPaths[field]
}
