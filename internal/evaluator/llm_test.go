package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers from a list of replies; an empty reply with a
// non-nil error is a failure.
type scriptedClient struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
}

type scriptedReply struct {
	text string
	err  error
}

func (s *scriptedClient) Generate(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.text, r.err
}

func (s *scriptedClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func fastRetry() LLM {
	return LLM{RequestsPerMinute: 60000, RetryAttempts: 3, RetryDelay: time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	fake := &scriptedClient{replies: []scriptedReply{
		{err: errors.New("503")},
		{err: errors.New("503")},
		{text: "ok"},
	}}

	out, err := WithRetry(fake, fastRetry()).Generate(context.Background(), "p", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, fake.calls())
}

func TestRetryExhaustedReturnsErrorText(t *testing.T) {
	fake := &scriptedClient{replies: []scriptedReply{{err: errors.New("quota exceeded")}}}

	out, err := WithRetry(fake, fastRetry()).Generate(context.Background(), "p", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Error: quota exceeded", out)
	assert.Equal(t, 3, fake.calls())
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &scriptedClient{replies: []scriptedReply{{err: errors.New("boom")}}}
	cfg := fastRetry()
	cfg.RetryDelay = time.Hour

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = WithRetry(fake, cfg).Generate(ctx, "p", GenerateOptions{})
	}()

	require.Eventually(t, func() bool { return fake.calls() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.calls())
}

func TestGeminiClientGenerate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"| Security | 8/10 |"},{"text":"\n"}]}}]}`))
	}))
	defer srv.Close()

	g := &geminiClient{apiKey: "k", model: "gemini-2.0-flash", endpoint: srv.URL, http: srv.Client()}
	out, err := g.Generate(context.Background(), "analyze this", GenerateOptions{Temperature: 0.2, MaxOutputTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "| Security | 8/10 |\n", out)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "analyze this", got.Contents[0].Parts[0].Text)
	assert.Equal(t, 0.2, got.GenerationConfig.Temperature)
	assert.Equal(t, 100, got.GenerationConfig.MaxOutputTokens)
}

func TestGeminiClientErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		g := &geminiClient{apiKey: "k", model: "m", endpoint: srv.URL, http: srv.Client()}
		_, err := g.Generate(context.Background(), "p", GenerateOptions{})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "429"))
	})

	t.Run("no candidates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		}))
		defer srv.Close()

		g := &geminiClient{apiKey: "k", model: "m", endpoint: srv.URL, http: srv.Client()}
		_, err := g.Generate(context.Background(), "p", GenerateOptions{})
		assert.Error(t, err)
	})
}

func TestNewLLMClient(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := DefaultConfig()
	_, err := NewLLMClient(cfg)
	assert.Error(t, err)

	t.Setenv("GEMINI_API_KEY", "g")
	c, err := NewLLMClient(cfg)
	require.NoError(t, err)
	rc, ok := c.(*retryingClient)
	require.True(t, ok)
	assert.IsType(t, &geminiClient{}, rc.next)

	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk"
	c, err = NewLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &openAIClient{}, c.(*retryingClient).next)

	cfg.LLM.Provider = "claude"
	_, err = NewLLMClient(cfg)
	assert.Error(t, err)
}
