package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindProperties(t *testing.T) {
	tests := []struct {
		kind         ErrorKind
		retryable    bool
		fallbackable bool
	}{
		{KindInvalidRequest, false, false},
		{KindAuthentication, false, true},
		{KindPermissionDenied, false, false},
		{KindNotFound, false, false},
		{KindRequestTooLarge, false, false},
		{KindRateLimited, true, true},
		{KindQuotaExhausted, false, true},
		{KindServerError, true, true},
		{KindOverloaded, true, true},
		{KindTimeout, true, true},
		{KindConflict, true, false},
		{KindCancelled, false, false},
		{KindUnknown, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.kind.Retryable())
			assert.Equal(t, tt.fallbackable, tt.kind.Fallbackable())
		})
	}
}

func TestClassifyHTTPStatusTable(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{400, KindInvalidRequest},
		{401, KindAuthentication},
		{403, KindPermissionDenied},
		{404, KindNotFound},
		{408, KindTimeout},
		{409, KindConflict},
		{413, KindRequestTooLarge},
		{422, KindInvalidRequest},
		{429, KindRateLimited},
		{499, KindCancelled},
		{500, KindServerError},
		{502, KindServerError},
		{503, KindOverloaded},
		{504, KindTimeout},
		{529, KindOverloaded},
		{418, KindInvalidRequest}, // generic 4xx fallback
		{599, KindServerError},    // generic 5xx fallback
		{0, KindUnknown},
	}

	for _, tt := range tests {
		got := Classify(ClassifyInput{HTTPStatus: tt.status})
		assert.Equal(t, tt.want, got.Kind, "status %d", tt.status)
	}
}

func TestClassifyQuotaVsRateLimit(t *testing.T) {
	rateLimited := Classify(ClassifyInput{
		HTTPStatus: 429,
		Body:       map[string]any{"error": map[string]any{"message": "too many requests, slow down"}},
	})
	require.Equal(t, KindRateLimited, rateLimited.Kind)

	quota := Classify(ClassifyInput{
		HTTPStatus: 429,
		Body:       map[string]any{"error": map[string]any{"message": "you have exceeded your current quota"}},
	})
	require.Equal(t, KindQuotaExhausted, quota.Kind)
	assert.False(t, quota.Retryable())
	assert.True(t, quota.Fallbackable())
}

func TestClassifyProviderCodeOverride(t *testing.T) {
	got := Classify(ClassifyInput{
		HTTPStatus:   400,
		ProviderCode: "model_overloaded",
		ProviderCodeOverrides: map[string]ErrorKind{
			"model_overloaded": KindOverloaded,
		},
	})
	assert.Equal(t, KindOverloaded, got.Kind)
}

func TestClassifyTransportErrors(t *testing.T) {
	t.Run("context cancelled", func(t *testing.T) {
		got := Classify(ClassifyInput{TransportErr: context.Canceled})
		assert.Equal(t, KindCancelled, got.Kind)
		assert.False(t, got.Retryable())
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		got := Classify(ClassifyInput{TransportErr: context.DeadlineExceeded})
		assert.Equal(t, KindTimeout, got.Kind)
		assert.True(t, got.Retryable())
	})
}

func TestClassifyIsTotal(t *testing.T) {
	// Every status in 0..599 must resolve to some known kind; Classify
	// must never panic or return the zero value.
	for status := 0; status < 600; status++ {
		got := Classify(ClassifyInput{HTTPStatus: status})
		require.NotEmpty(t, got.Kind)
	}
}

func TestErrorMessage(t *testing.T) {
	c := Classify(ClassifyInput{
		HTTPStatus: 429,
		Body:       map[string]any{"error": map[string]any{"message": "rate limit exceeded"}},
	})
	err := New(c, "openai", "gpt-4o", 1)
	msg := err.Error()
	assert.Contains(t, msg, "rate_limited")
	assert.Contains(t, msg, "openai")
	assert.Contains(t, msg, "gpt-4o")
}
