package evaluator

import (
	"context"
	"strings"
	"time"

	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/adrianpk/celoeval/internal/report"
)

// Analyzer turns one repository digest into an analysis result.
type Analyzer interface {
	Analyze(ctx context.Context, repository, digest string, metrics *MetricsRecord) (report.AnalysisResult, error)
}

// LLMAnalyzer prompts a Client with the template, the formatted metrics and
// the digest. Generation failures come back as "Error: ..." text results;
// the returned error is only set when ctx is done.
type LLMAnalyzer struct {
	client          Client
	template        string
	opts            GenerateOptions
	maxPromptTokens int
	jsonMode        bool
}

func NewLLMAnalyzer(client Client, template string, cfg *Config) *LLMAnalyzer {
	return &LLMAnalyzer{
		client:   client,
		template: template,
		opts: GenerateOptions{
			Temperature:     cfg.LLM.Temperature,
			MaxOutputTokens: cfg.LLM.MaxTokens,
		},
		maxPromptTokens: cfg.LLM.MaxPromptTokens,
		jsonMode:        cfg.App.JSON,
	}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, repository, digest string, metrics *MetricsRecord) (report.AnalysisResult, error) {
	start := time.Now()

	prompt := buildPrompt(a.template, FormatMetrics(metrics), truncateDigest(digest, a.maxPromptTokens), a.jsonMode)

	logger.Log.Infof("Running LLM analysis for %s", repository)
	out, err := a.client.Generate(ctx, prompt, a.opts)
	if err != nil {
		if ctx.Err() != nil {
			return report.AnalysisResult{}, ctx.Err()
		}
		out = report.ErrorPrefix + " " + err.Error()
	}

	if strings.HasPrefix(out, report.ErrorPrefix) {
		logger.Log.Errorf("Analysis failed for %s: %s", repository, out)
		return report.Text(out), nil
	}

	logger.Log.Infof("Analysis complete for %s in %.2f seconds", repository, time.Since(start).Seconds())

	if a.jsonMode {
		return parseJSONReply(out), nil
	}
	return report.Text(out), nil
}
