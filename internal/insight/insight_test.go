package insight

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = log.New(io.Discard, "", 0)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestSelector_FirstSuccessWins(t *testing.T) {
	a := &stubProvider{name: "a", err: errors.New("rate limited")}
	b := &stubProvider{name: "b", text: "  drink water  "}
	c := &stubProvider{name: "c", text: "never asked"}

	res := NewSelector(quiet, a, b, c).Generate(context.Background(), "hi")
	assert.Equal(t, Result{Text: "drink water", Provider: "b"}, res)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, c.calls)
}

func TestSelector_Fallback(t *testing.T) {
	empty := &stubProvider{name: "empty", text: "   "}
	broken := &stubProvider{name: "broken", err: errors.New("down")}

	res := NewSelector(quiet, empty, broken).Generate(context.Background(), "hi")
	assert.Equal(t, Fallback, res.Text)
	assert.Empty(t, res.Provider)

	res = NewSelector(quiet).Generate(context.Background(), "hi")
	assert.Equal(t, Fallback, res.Text, "no providers configured")
}

func TestSelector_CanceledContext(t *testing.T) {
	p := &stubProvider{name: "p", text: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewSelector(quiet, p).Generate(ctx, "hi")
	assert.Equal(t, Fallback, res.Text)
	assert.Equal(t, 0, p.calls)
}

func TestProviders(t *testing.T) {
	assert.Empty(t, Providers(Keys{}))

	ps := Providers(Keys{Anthropic: "a", OpenRouter: "r"})
	require.Len(t, ps, 2)
	assert.Equal(t, "anthropic", ps[0].Name())
	assert.Equal(t, "openrouter", ps[1].Name())
}

func TestProviders_ModelOverridesStayWithTheirProvider(t *testing.T) {
	ps := Providers(Keys{
		Anthropic:      "a",
		OpenAI:         "o",
		OpenRouter:     "r",
		AnthropicModel: "claude-haiku-4-5",
	})
	require.Len(t, ps, 3)
	assert.Equal(t, "claude-haiku-4-5", ps[0].(*Anthropic).model)
	assert.Equal(t, defaultOpenAIModel, ps[1].(*ChatCompletions).model)
	assert.Equal(t, defaultOpenRouterModel, ps[2].(*ChatCompletions).model)

	ps = Providers(Keys{OpenAI: "o", OpenRouter: "r", OpenRouterModel: "meta-llama/llama-3-8b"})
	assert.Equal(t, defaultOpenAIModel, ps[0].(*ChatCompletions).model)
	assert.Equal(t, "meta-llama/llama-3-8b", ps[1].(*ChatCompletions).model)
}

func TestChatCompletions(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1740819600,
			"model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "sleep earlier"}}]
		}`))
	}))
	defer ts.Close()

	p := NewChatCompletions("openai", ts.URL+"/", "sk-test", "gpt-test")
	text, err := p.Complete(context.Background(), "how do I rest?")
	require.NoError(t, err)
	assert.Equal(t, "sleep earlier", text)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, maxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "how do I rest?", got.Messages[0].Content)
}

func TestChatCompletions_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	_, err := NewChatCompletions("openrouter", ts.URL, "k", "m").Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter")
	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-2","object":"chat.completion","choices":[]}`))
	}))
	defer empty.Close()

	_, err = NewChatCompletions("openai", empty.URL, "k", "m").Complete(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropic(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "take a walk"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 3}
		}`))
	}))
	defer ts.Close()

	p := NewAnthropic("sk-ant", "claude-test", option.WithBaseURL(ts.URL))
	text, err := p.Complete(context.Background(), "suggest something")
	require.NoError(t, err)
	assert.Equal(t, "take a walk", text)
}

func TestAnthropic_FallsThroughOnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`))
	}))
	defer ts.Close()

	backup := &stubProvider{name: "backup", text: "stretch"}
	sel := NewSelector(quiet, NewAnthropic("k", "", option.WithBaseURL(ts.URL)), backup)

	res := sel.Generate(context.Background(), "x")
	assert.Equal(t, "backup", res.Provider)
}
