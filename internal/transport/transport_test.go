package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do_ReturnsBodyForNormalRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(Config{ConnectTimeout: time.Second, RequestTimeout: 5 * time.Second, IdleChunkTimeout: time.Second})
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestClient_DoStream_IdleTimeoutAbortsHangingBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.Write([]byte("data: first\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("data: second\n\n"))
	}))
	defer server.Close()

	c := New(Config{ConnectTimeout: time.Second, RequestTimeout: 5 * time.Second, IdleChunkTimeout: 50 * time.Millisecond})
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := c.DoStream(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "data: first\n\n", string(buf[:n]))

	_, err = resp.Body.Read(buf)
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("AI_HTTP_TIMEOUT_SECS", "")
	t.Setenv("AI_HTTP_TRUST_ENV", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.True(t, cfg.TrustEnv)
}

func TestConfigFromEnv_OverridesFromEnvironment(t *testing.T) {
	t.Setenv("AI_HTTP_TIMEOUT_SECS", "5")
	t.Setenv("AI_HTTP_TRUST_ENV", "0")

	cfg := ConfigFromEnv()
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.TrustEnv)
}
