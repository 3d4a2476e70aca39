package types //nolint:revive // package name is intentional

import "time"

// ChatResult is the unified, already-drained result of a call: the final
// message plus usage and finish metadata. ExecuteStream callers build one of
// these themselves by folding the CanonicalEvent stream if they want a
// non-streaming view; Execute returns one directly.
type ChatResult struct {
	ID                string    `json:"id"`
	Model             string    `json:"model"`
	Provider          string    `json:"provider"`
	Created           time.Time `json:"created"`
	Choices           []Choice  `json:"choices"`
	Usage             *Usage    `json:"usage,omitempty"`
	SystemFingerprint string    `json:"system_fingerprint,omitempty"`
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int       `json:"index"`
	Message      Message   `json:"message"`
	FinishReason string    `json:"finish_reason"`
	Logprobs     *Logprobs `json:"logprobs,omitempty"`
}

// Usage contains token usage statistics for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Logprobs contains log probability information.
type Logprobs struct {
	Content []LogprobContent `json:"content,omitempty"`
}

// LogprobContent represents log probability for a single token.
type LogprobContent struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
	Bytes   []int   `json:"bytes,omitempty"`
}

// Reset clears the ChatResult for pooled reuse.
func (r *ChatResult) Reset() {
	r.ID = ""
	r.Model = ""
	r.Provider = ""
	r.Created = time.Time{}
	r.Choices = r.Choices[:0]
	r.Usage = nil
	r.SystemFingerprint = ""
}
