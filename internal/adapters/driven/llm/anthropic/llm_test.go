package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

func newTestCompleter(t *testing.T, handler http.Handler) *Completer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{APIKey: "key", BaseURL: server.URL})
	require.NoError(t, err)
	return c
}

func TestComplete_SendsMessagesRequest(t *testing.T) {
	var captured messagesRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "first "}, {"type": "text", "text": "second"}]}`)
	})

	c := newTestCompleter(t, handler)
	out, err := c.Complete(context.Background(), driven.CompletionRequest{
		System:    "terse",
		Prompt:    "go",
		MaxTokens: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "first second", out, "text blocks concatenated")
	assert.Equal(t, "terse", captured.System)
	assert.Equal(t, 50, captured.MaxTokens)
}

func TestComplete_DefaultsMaxTokens(t *testing.T) {
	var captured messagesRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "ok"}]}`)
	})

	c := newTestCompleter(t, handler)
	_, err := c.Complete(context.Background(), driven.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxTokens, captured.MaxTokens, "messages API requires a budget")
}

func TestComplete_OverloadedIsTransient(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(529)
	})

	c := newTestCompleter(t, handler)
	_, err := c.Complete(context.Background(), driven.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, c.Classify(err))
}

func TestComplete_RateLimited(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := newTestCompleter(t, handler)
	_, err := c.Complete(context.Background(), driven.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, domain.KindRateLimited, c.Classify(err))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
