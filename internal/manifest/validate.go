package manifest

import "fmt"

// ValidationError names the offending field path, per spec.md §4.2's
// requirement that validation failures carry the field that failed.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation: %s: %s", e.Field, e.Msg)
}

func fieldErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Validate runs the structural and semantic checks spec.md §3/§4.2/§6
// require, translates every streaming path into its gjson form, and caches
// the translation on the manifest. strictStreaming mirrors
// AI_LIB_STRICT_STREAMING: when true, a manifest that declares a streaming
// decoder must also declare content_path.
func (m *ProtocolManifest) Validate(strictStreaming bool) error {
	if m.ID == "" {
		return fieldErr("id", "must not be empty")
	}
	if m.ProtocolVersion == "" {
		return fieldErr("protocol_version", "must not be empty")
	}
	if _, ok := KnownProtocolVersions[m.ProtocolVersion]; !ok {
		return fieldErr("protocol_version", "unknown version %q", m.ProtocolVersion)
	}

	if m.Endpoint.BaseURL == "" {
		return fieldErr("endpoint.base_url", "must not be empty")
	}
	if len(m.Endpoint.Paths) == 0 {
		return fieldErr("endpoint.paths", "must declare at least one path")
	}

	switch m.Auth.Scheme {
	case AuthBearer, AuthHeader, AuthQuery, AuthNone:
	default:
		return fieldErr("auth.scheme", "unknown scheme %q", m.Auth.Scheme)
	}
	if m.Auth.Scheme != AuthNone && m.Auth.EnvVarName == "" {
		return fieldErr("auth.env_var_name", "must not be empty when scheme != none")
	}
	if m.Auth.Scheme == AuthHeader && m.Auth.HeaderName == "" {
		return fieldErr("auth.header_name", "must be set when scheme == header")
	}
	if m.Auth.Scheme == AuthQuery && m.Auth.QueryParam == "" {
		return fieldErr("auth.query_param", "must be set when scheme == query")
	}

	if m.Request.ToolDialect != "" {
		switch m.Request.ToolDialect {
		case ToolDialectOpenAI, ToolDialectAnthropic, ToolDialectGemini:
		default:
			return fieldErr("request.tool_dialect", "unknown dialect %q", m.Request.ToolDialect)
		}
	}

	m.translatedPaths = map[string]string{}

	if m.Streaming != nil {
		switch m.Streaming.Decoder {
		case DecoderSSE, DecoderNDJSON, DecoderAnthropicSSE:
		default:
			return fieldErr("streaming.decoder", "unknown decoder %q", m.Streaming.Decoder)
		}

		if strictStreaming && m.Streaming.ContentPath == "" {
			return fieldErr("streaming.content_path", "required when strict streaming mode is on")
		}

		pathFields := map[string]string{
			"streaming.content_path":       m.Streaming.ContentPath,
			"streaming.thinking_path":      m.Streaming.ThinkingPath,
			"streaming.tool_call_path":     m.Streaming.ToolCallPath,
			"streaming.role_path":          m.Streaming.RolePath,
			"streaming.finish_reason_path": m.Streaming.FinishReasonPath,
			"streaming.usage_path":         m.Streaming.UsagePath,
			"streaming.fan_out_path":       m.Streaming.FanOutPath,
		}
		for field, raw := range pathFields {
			if raw == "" {
				continue
			}
			translated, err := translateJSONPath(raw)
			if err != nil {
				return fieldErr(field, "%s", err)
			}
			m.translatedPaths[field] = translated
		}
	}

	if m.ErrorMapping != nil && m.ErrorMapping.CodePath != "" {
		translated, err := translateJSONPath(m.ErrorMapping.CodePath)
		if err != nil {
			return fieldErr("error_mapping.code_path", "%s", err)
		}
		m.translatedPaths["error_mapping.code_path"] = translated
	}

	return nil
}
