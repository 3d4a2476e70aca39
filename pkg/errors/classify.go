package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ClassifyInput carries everything Classify needs to assign a kind. Fields
// are populated from whatever layer detected the failure; unused fields are
// left zero.
type ClassifyInput struct {
	// TransportErr is set when the failure happened before a response was
	// received (dial failure, connection reset, context cancellation).
	TransportErr error

	// HTTPStatus is the response status code, or 0 if none was received.
	HTTPStatus int

	// Body is the parsed JSON error envelope, if any.
	Body map[string]any

	// ProviderCodeOverrides maps a provider-specific error code (read from
	// Body by the caller) to a kind, taken from the manifest's
	// error_mapping.by_provider_code.
	ProviderCodeOverrides map[string]ErrorKind

	// ProviderCode is the provider-specific code extracted from Body, if the
	// manifest declares where to find it.
	ProviderCode string

	// RetryAfterSeconds is a parsed Retry-After hint, if the response carried one.
	RetryAfterSeconds float64
}

// Classified is the result of classification, carrying enough context for
// logging, retry, and fallback decisions.
type Classified struct {
	Kind              ErrorKind
	HTTPStatus        int
	ProviderCode      string
	Message           string
	RetryAfterSeconds float64
}

func (c Classified) Retryable() bool    { return c.Kind.Retryable() }
func (c Classified) Fallbackable() bool { return c.Kind.Fallbackable() }

// quotaPatterns are substrings that, found in a 429's message or error type,
// indicate a billing/quota exhaustion rather than a transient rate limit.
var quotaPatterns = []string{"quota", "billing", "spend", "plan"}

// Classify is pure and total: every input maps to exactly one ErrorKind,
// following a fixed priority pipeline.
//
//  1. transport failure (no HTTP response at all) -> kind derived from the
//     transport error itself (cancellation vs. generic server_error)
//  2. provider-code override, when the manifest declares one for this code
//  3. fixed HTTP-status table, with 429 quota-exhaustion sniffing
//  4. KindUnknown
func Classify(in ClassifyInput) Classified {
	if in.TransportErr != nil {
		return classifyTransportErr(in)
	}

	if in.ProviderCode != "" && in.ProviderCodeOverrides != nil {
		if kind, ok := in.ProviderCodeOverrides[in.ProviderCode]; ok {
			return Classified{
				Kind:              kind,
				HTTPStatus:        in.HTTPStatus,
				ProviderCode:      in.ProviderCode,
				Message:           extractErrorMessage(in.Body),
				RetryAfterSeconds: in.RetryAfterSeconds,
			}
		}
	}

	kind := classifyHTTPStatus(in.HTTPStatus, in.Body)
	return Classified{
		Kind:              kind,
		HTTPStatus:        in.HTTPStatus,
		ProviderCode:      in.ProviderCode,
		Message:           extractErrorMessage(in.Body),
		RetryAfterSeconds: in.RetryAfterSeconds,
	}
}

func classifyTransportErr(in ClassifyInput) Classified {
	err := in.TransportErr
	msg := err.Error()

	if errors.Is(err, context.Canceled) {
		return Classified{Kind: KindCancelled, Message: msg}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Classified{Kind: KindTimeout, Message: msg}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classified{Kind: KindTimeout, Message: msg}
	}

	// Connection refused, DNS failure, reset by peer and similar: the
	// provider process itself never got to respond. Treat it as a server
	// error rather than KindUnknown so it remains retryable/fallbackable.
	return Classified{Kind: KindServerError, Message: msg}
}

func classifyHTTPStatus(status int, body map[string]any) ErrorKind {
	if status == 429 && looksLikeQuotaExhaustion(body) {
		return KindQuotaExhausted
	}
	return kindFromHTTPStatus(status)
}

func looksLikeQuotaExhaustion(body map[string]any) bool {
	if body == nil {
		return false
	}
	msg := strings.ToLower(extractErrorMessage(body))
	typ := strings.ToLower(extractErrorType(body))
	for _, pattern := range quotaPatterns {
		if strings.Contains(msg, pattern) || strings.Contains(typ, pattern) {
			return true
		}
	}
	return false
}

// extractErrorMessage understands the common provider error envelopes:
// OpenAI/Anthropic/Gemini nest under "error", others use a flat "message" or
// "detail" field.
func extractErrorMessage(body map[string]any) string {
	if body == nil {
		return ""
	}
	if errVal, ok := body["error"]; ok {
		switch e := errVal.(type) {
		case map[string]any:
			if msg, ok := e["message"].(string); ok {
				return msg
			}
		case string:
			return e
		}
	}
	if msg, ok := body["message"].(string); ok {
		return msg
	}
	if detail, ok := body["detail"]; ok {
		switch d := detail.(type) {
		case string:
			return d
		case []any:
			if len(d) > 0 {
				if s, ok := d[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

func extractErrorType(body map[string]any) string {
	if body == nil {
		return ""
	}
	if errVal, ok := body["error"].(map[string]any); ok {
		if typ, ok := errVal["type"].(string); ok {
			return typ
		}
	}
	return ""
}
