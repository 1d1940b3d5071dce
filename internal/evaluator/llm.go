package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
}

// Client generates a completion for a single prompt.
type Client interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type openAIClient struct {
	sdk   openai.Client
	model string
}

func (c *openAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	req := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       c.model,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(opts.MaxOutputTokens))
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}

	return resp.Choices[0].Message.Content, nil
}

type geminiClient struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *geminiClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.endpoint, "/"), url.PathEscape(g.model), url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini decode: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no candidates from gemini")
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// NewLLMClient builds the provider client named in cfg, wrapped with the
// configured rate limit and retry policy.
func NewLLMClient(cfg *Config) (Client, error) {
	var base Client

	switch cfg.LLM.Provider {
	case "", "gemini":
		apiKey := firstNonEmpty(cfg.LLM.APIKey, os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
		if apiKey == "" {
			return nil, errors.New("missing Gemini API key (set GOOGLE_API_KEY)")
		}
		endpoint := cfg.LLM.Endpoint
		if endpoint == "" {
			endpoint = geminiEndpoint
		}
		base = &geminiClient{
			apiKey:   apiKey,
			model:    cfg.LLM.Model,
			endpoint: endpoint,
			http:     &http.Client{Timeout: 10 * time.Minute},
		}
	case "openai":
		apiKey := firstNonEmpty(cfg.LLM.APIKey, os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, errors.New("missing OpenAI API key")
		}
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if cfg.LLM.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(cfg.LLM.Endpoint))
		}
		base = &openAIClient{
			sdk:   openai.NewClient(opts...),
			model: cfg.LLM.Model,
		}
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.LLM.Provider)
	}

	return WithRetry(base, cfg.LLM), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
