package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"})
	assert.Error(t, err)

	c, err := NewClient(Config{Endpoint: "http://x", Model: "m", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.Timeout)
}

func TestNewClient_APIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	c, err := NewClient(Config{Endpoint: "http://x", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.APIKey)
}

func TestGenerate_SendsSystemAndUser(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL + "/v1/", Model: "test-model", APIKey: "secret"})
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "you are terse", "classify this")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "classify this", got.Messages[1].Content)
}

func TestGenerate_Errors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   string
	}{
		"http status":  {http.StatusTooManyRequests, `slow down`, "429 Too Many Requests: slow down"},
		"api error":    {http.StatusOK, `{"error":{"message":"bad model"}}`, "llm error: bad model"},
		"no choices":   {http.StatusOK, `{"choices":[]}`, "no choices in response"},
		"invalid json": {http.StatusOK, `not json`, "decode response"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(Config{Endpoint: srv.URL, Model: "m", APIKey: "k"})
			require.NoError(t, err)

			_, err = c.Generate(context.Background(), "", "hi")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoint: srv.URL, Model: "m", APIKey: "k", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "", "hi")
	assert.Error(t, err)
}

func TestGenerate_RateLimitHonoursContext(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "http://127.0.0.1:1", Model: "m", APIKey: "k", RequestsPerSecond: 0.001})
	require.NoError(t, err)
	// consume the single burst token
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}
