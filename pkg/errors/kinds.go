package errors

// ErrorKind is the closed taxonomy every provider error is mapped onto.
// Membership is fixed: callers switch on Kind exhaustively rather than on
// provider-specific strings.
type ErrorKind string

const (
	KindInvalidRequest   ErrorKind = "invalid_request"
	KindAuthentication   ErrorKind = "authentication"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNotFound         ErrorKind = "not_found"
	KindRequestTooLarge  ErrorKind = "request_too_large"
	KindRateLimited      ErrorKind = "rate_limited"
	KindQuotaExhausted   ErrorKind = "quota_exhausted"
	KindServerError      ErrorKind = "server_error"
	KindOverloaded       ErrorKind = "overloaded"
	KindTimeout          ErrorKind = "timeout"
	KindConflict         ErrorKind = "conflict"
	KindCancelled        ErrorKind = "cancelled"
	KindUnknown          ErrorKind = "unknown"
)

// kindProperties holds the static retryable/fallbackable bits per kind.
// Never looked up by callers directly; use Retryable/Fallbackable below.
var kindProperties = map[ErrorKind]struct {
	retryable    bool
	fallbackable bool
	httpStatus   int
}{
	KindInvalidRequest:   {retryable: false, fallbackable: false, httpStatus: 400},
	KindAuthentication:   {retryable: false, fallbackable: true, httpStatus: 401},
	KindPermissionDenied: {retryable: false, fallbackable: false, httpStatus: 403},
	KindNotFound:         {retryable: false, fallbackable: false, httpStatus: 404},
	KindRequestTooLarge:  {retryable: false, fallbackable: false, httpStatus: 413},
	KindRateLimited:      {retryable: true, fallbackable: true, httpStatus: 429},
	KindQuotaExhausted:   {retryable: false, fallbackable: true, httpStatus: 429},
	KindServerError:      {retryable: true, fallbackable: true, httpStatus: 500},
	KindOverloaded:       {retryable: true, fallbackable: true, httpStatus: 503},
	KindTimeout:          {retryable: true, fallbackable: true, httpStatus: 504},
	KindConflict:         {retryable: true, fallbackable: false, httpStatus: 409},
	KindCancelled:        {retryable: false, fallbackable: false, httpStatus: 0},
	KindUnknown:          {retryable: false, fallbackable: false, httpStatus: 0},
}

// Retryable reports whether a failure of this kind is worth retrying on the
// same target with backoff.
func (k ErrorKind) Retryable() bool {
	return kindProperties[k].retryable
}

// Fallbackable reports whether a failure of this kind should advance the
// fallback chain to the next target.
func (k ErrorKind) Fallbackable() bool {
	return kindProperties[k].fallbackable
}

// DefaultHTTPStatus returns the HTTP status code typically associated with
// this kind, or 0 when the kind has no HTTP analogue (cancelled, unknown).
func (k ErrorKind) DefaultHTTPStatus() int {
	return kindProperties[k].httpStatus
}

// httpStatusToKind is the fixed HTTP status -> kind table used by step 3 of
// Classify. 429 is special-cased ahead of this table by quota-hint sniffing.
var httpStatusToKind = map[int]ErrorKind{
	400: KindInvalidRequest,
	401: KindAuthentication,
	403: KindPermissionDenied,
	404: KindNotFound,
	408: KindTimeout,
	409: KindConflict,
	413: KindRequestTooLarge,
	422: KindInvalidRequest,
	429: KindRateLimited,
	499: KindCancelled,
	500: KindServerError,
	502: KindServerError,
	503: KindOverloaded,
	504: KindTimeout,
	529: KindOverloaded, // Anthropic-specific overloaded status
}

// kindFromHTTPStatus maps an HTTP status to a kind using the fixed table,
// falling back to the 4xx/5xx range default, and KindUnknown otherwise.
func kindFromHTTPStatus(status int) ErrorKind {
	if k, ok := httpStatusToKind[status]; ok {
		return k
	}
	switch {
	case status >= 400 && status < 500:
		return KindInvalidRequest
	case status >= 500 && status < 600:
		return KindServerError
	default:
		return KindUnknown
	}
}
