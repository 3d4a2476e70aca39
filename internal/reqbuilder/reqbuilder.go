// Package reqbuilder translates a canonical request into the wire body and
// headers one provider's manifest describes, and resolves the credential
// that goes with it.
package reqbuilder

import (
	"context"
	"fmt"
	"sort"

	"github.com/aiproto/aiproto/internal/manifest"
	"github.com/aiproto/aiproto/internal/secret"
	"github.com/aiproto/aiproto/pkg/errors"
	"github.com/aiproto/aiproto/pkg/types"
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"
)

// BuildOptions carries per-call overrides that take priority over the
// manifest and target defaults.
type BuildOptions struct {
	Stream         bool
	APIKeyOverride string
}

// WireRequest is a fully-built outbound HTTP request body plus the header
// set auth resolution produced.
type WireRequest struct {
	URL     string
	Body    []byte
	Headers map[string]string
}

// Build renders req against m and target into a WireRequest, resolving
// credentials through secrets per the chain documented on resolveAPIKey.
func Build(ctx context.Context, req *types.CanonicalRequest, m *manifest.ProtocolManifest, target types.ProviderTarget, secrets *secret.Manager, opts BuildOptions) (*WireRequest, error) {
	body, err := buildBody(req, m, opts)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if err := injectAuth(ctx, headers, m, target, secrets, opts); err != nil {
		return nil, err
	}

	baseURL := m.Endpoint.BaseURL
	if target.BaseURLOverride != "" {
		baseURL = target.BaseURLOverride
	}
	path, ok := m.Endpoint.Paths["chat"]
	if !ok {
		return nil, fmt.Errorf("reqbuilder: manifest %q has no \"chat\" path", m.ID)
	}

	url := baseURL + path
	if m.Auth.Scheme == manifest.AuthQuery {
		url, err = appendQueryAuth(ctx, url, m, target, secrets, opts)
		if err != nil {
			return nil, err
		}
	}

	return &WireRequest{URL: url, Body: body, Headers: headers}, nil
}

// buildBody applies field_map/role_map/envelope and dialect-specific tool
// serialization using sjson, building the wire JSON one field at a time in
// a fixed order so identical input always produces identical output bytes.
func buildBody(req *types.CanonicalRequest, m *manifest.ProtocolManifest, opts BuildOptions) ([]byte, error) {
	body := []byte("{}")
	var err error

	set := func(path string, value any) error {
		body, err = sjson.SetBytes(body, path, value)
		return err
	}

	wireField := func(canonical string) string {
		if w, ok := m.Request.FieldMap[canonical]; ok {
			return w
		}
		return canonical
	}

	if err := set(wireField("model"), req.Model); err != nil {
		return nil, err
	}

	messages, systemText := splitSystemMessage(req.Messages, m.Request.ExtractSystemMessage)
	if systemText != "" {
		if err := set("system", systemText); err != nil {
			return nil, err
		}
	}

	wireMessages, err := buildMessages(messages, m)
	if err != nil {
		return nil, err
	}
	if err := set(wireField("messages"), wireMessages); err != nil {
		return nil, err
	}

	if req.MaxTokens > 0 {
		if err := set(wireField("max_tokens"), req.MaxTokens); err != nil {
			return nil, err
		}
	}
	if req.Temperature != nil {
		if err := set(wireField("temperature"), *req.Temperature); err != nil {
			return nil, err
		}
	}
	if req.TopP != nil {
		if err := set(wireField("top_p"), *req.TopP); err != nil {
			return nil, err
		}
	}

	if len(req.Tools) > 0 {
		wireTools, err := buildTools(req.Tools, m.Request.ToolDialect)
		if err != nil {
			return nil, err
		}
		body, err = sjson.SetRawBytes(body, wireField("tools"), wireTools)
		if err != nil {
			return nil, err
		}
	}
	if len(req.ToolChoice) > 0 {
		var tc any
		if err := json.Unmarshal(req.ToolChoice, &tc); err != nil {
			return nil, fmt.Errorf("reqbuilder: invalid tool_choice: %w", err)
		}
		if err := set(wireField("tool_choice"), tc); err != nil {
			return nil, err
		}
	}

	if opts.Stream && m.Capabilities.Streaming {
		if err := set("stream", true); err != nil {
			return nil, err
		}
	}

	extKeys := make([]string, 0, len(req.Extensions))
	for k := range req.Extensions {
		extKeys = append(extKeys, k)
	}
	sort.Strings(extKeys)
	for _, k := range extKeys {
		raw := req.Extensions[k]
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if err := set(k, v); err != nil {
			return nil, err
		}
	}

	if m.Request.Envelope != "" {
		wrapped, err := sjson.SetRawBytes([]byte("{}"), m.Request.Envelope, body)
		if err != nil {
			return nil, err
		}
		return wrapped, nil
	}
	return body, nil
}

func splitSystemMessage(messages []types.Message, extract bool) ([]types.Message, string) {
	if !extract {
		return messages, ""
	}
	var system string
	var rest []types.Message
	for _, msg := range messages {
		if msg.Role == "system" && system == "" {
			system = msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return rest, system
}

func buildMessages(messages []types.Message, m *manifest.ProtocolManifest) ([]map[string]any, error) {
	wire := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		if mapped, ok := m.Request.RoleMap[role]; ok {
			role = mapped
		}
		entry := map[string]any{"role": role}

		if len(msg.Blocks) > 0 {
			content, err := buildContentBlocks(msg.Blocks, m.Request.ToolDialect)
			if err != nil {
				return nil, err
			}
			entry["content"] = content
		} else {
			entry["content"] = msg.Content
		}

		if msg.Name != "" {
			entry["name"] = msg.Name
		}
		if msg.ToolCallID != "" {
			entry["tool_call_id"] = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			entry["tool_calls"] = msg.ToolCalls
		}
		wire = append(wire, entry)
	}
	return wire, nil
}

func buildContentBlocks(blocks []types.ContentBlock, dialect manifest.ToolDialect) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, map[string]any{"type": "text", "text": b.Text})
		case "image":
			img := map[string]any{"type": "image"}
			if b.ImageURL != "" {
				img["image_url"] = map[string]any{"url": b.ImageURL}
			} else if b.ImageBase64 != "" {
				img["source"] = map[string]any{
					"type":       "base64",
					"media_type": b.MimeType,
					"data":       b.ImageBase64,
				}
			}
			out = append(out, img)
		case "audio":
			out = append(out, map[string]any{
				"type":        "audio",
				"input_audio": map[string]any{"data": b.AudioBase64, "format": b.MimeType},
			})
		default:
			return nil, fmt.Errorf("reqbuilder: unknown content block type %q", b.Type)
		}
	}
	return out, nil
}

// buildTools renders the tool list as raw JSON bytes rather than a
// map[string]any tree, since ToolFunction.Parameters is already a
// json.RawMessage schema blob that must be spliced in verbatim, not
// re-encoded as a byte array by a reflective value setter.
func buildTools(tools []types.Tool, dialect manifest.ToolDialect) ([]byte, error) {
	parts := make([][]byte, 0, len(tools))
	for _, t := range tools {
		params := t.Function.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}

		var entry []byte
		var err error
		switch dialect {
		case manifest.ToolDialectAnthropic:
			entry, err = sjson.SetRawBytes([]byte("{}"), "input_schema", params)
			if err == nil {
				entry, err = sjson.SetBytes(entry, "name", t.Function.Name)
			}
			if err == nil {
				entry, err = sjson.SetBytes(entry, "description", t.Function.Description)
			}
		case manifest.ToolDialectGemini:
			entry, err = sjson.SetRawBytes([]byte("{}"), "parameters", params)
			if err == nil {
				entry, err = sjson.SetBytes(entry, "name", t.Function.Name)
			}
			if err == nil {
				entry, err = sjson.SetBytes(entry, "description", t.Function.Description)
			}
		default: // openai
			entry, err = sjson.SetRawBytes([]byte("{}"), "function.parameters", params)
			if err == nil {
				entry, err = sjson.SetBytes(entry, "function.name", t.Function.Name)
			}
			if err == nil {
				entry, err = sjson.SetBytes(entry, "function.description", t.Function.Description)
			}
			if err == nil {
				entry, err = sjson.SetBytes(entry, "type", "function")
			}
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, entry)
	}

	out := []byte("[")
	for i, p := range parts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, p...)
	}
	out = append(out, ']')
	return out, nil
}

// resolveAPIKey tries, in order: an explicit per-call override, the
// target's own APIKeySource, the manifest's default env var, then gives up
// with a KindAuthentication classification.
func resolveAPIKey(ctx context.Context, m *manifest.ProtocolManifest, target types.ProviderTarget, secrets *secret.Manager, opts BuildOptions) (string, error) {
	if opts.APIKeyOverride != "" {
		return opts.APIKeyOverride, nil
	}
	if target.APIKeySource != "" {
		return secrets.Get(ctx, target.APIKeySource)
	}
	if m.Auth.EnvVarName != "" {
		key, err := secrets.Get(ctx, "env://"+m.Auth.EnvVarName)
		if err == nil {
			return key, nil
		}
	}
	c := errors.Classified{Kind: errors.KindAuthentication, Message: "no credential source resolved for " + m.ID}
	return "", errors.New(c, m.ID, target.ModelID, 0)
}

func injectAuth(ctx context.Context, headers map[string]string, m *manifest.ProtocolManifest, target types.ProviderTarget, secrets *secret.Manager, opts BuildOptions) error {
	if m.Auth.Scheme == manifest.AuthNone {
		return nil
	}
	key, err := resolveAPIKey(ctx, m, target, secrets, opts)
	if err != nil {
		return err
	}

	switch m.Auth.Scheme {
	case manifest.AuthBearer:
		headers["Authorization"] = "Bearer " + key
	case manifest.AuthHeader:
		prefix := m.Auth.Prefix
		if prefix != "" {
			headers[m.Auth.HeaderName] = prefix + key
		} else {
			headers[m.Auth.HeaderName] = key
		}
	case manifest.AuthQuery:
		// handled by appendQueryAuth after URL assembly
	}
	return nil
}

func appendQueryAuth(ctx context.Context, url string, m *manifest.ProtocolManifest, target types.ProviderTarget, secrets *secret.Manager, opts BuildOptions) (string, error) {
	key, err := resolveAPIKey(ctx, m, target, secrets, opts)
	if err != nil {
		return "", err
	}
	sep := "?"
	if containsQuery(url) {
		sep = "&"
	}
	return url + sep + m.Auth.QueryParam + "=" + key, nil
}

func containsQuery(url string) bool {
	for _, c := range url {
		if c == '?' {
			return true
		}
	}
	return false
}
