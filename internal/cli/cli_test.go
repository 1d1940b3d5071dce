package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrianpk/celoeval/internal/evaluator"
	"github.com/adrianpk/celoeval/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClient struct {
	reply string
}

func (c fixedClient) Generate(context.Context, string, evaluator.GenerateOptions) (string, error) {
	return c.reply, nil
}

type fakeFetcher struct {
	fail map[string]bool
}

func (f fakeFetcher) Fetch(_ context.Context, url string, _ bool) (evaluator.FetchResult, error) {
	res := evaluator.FetchResult{Repository: evaluator.RepoName(url), URL: url}
	if f.fail[res.Repository] {
		res.Content = "Error fetching repository: not found"
		return res, evaluator.ErrFetch
	}
	res.Content = "Repository: " + res.Repository
	return res, nil
}

func testApp(fetcher evaluator.Fetcher, reply string) *app {
	return &app{
		newClient: func(*evaluator.Config) (evaluator.Client, error) {
			return fixedClient{reply: reply}, nil
		},
		buildService: func(cfg *evaluator.Config, client evaluator.Client, _ fs.FS, sink report.Sink, opts ...evaluator.Option) (*evaluator.Service, error) {
			analyzer := evaluator.NewLLMAnalyzer(client, "Score it.", cfg)
			return evaluator.New(fetcher, analyzer, report.NewStore(sink), opts...), nil
		},
	}
}

func execute(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd(a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	base := []string{"--config", filepath.Join(t.TempDir(), "missing.yml"), "--log-level", "error"}
	if len(args) > 0 && args[0] == "analyze" {
		args = append(args[:1:1], append(base, args[1:]...)...)
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, newApp(nil), "version")
	require.NoError(t, err)
	assert.Equal(t, "celoeval dev (none, unknown)\n", out)
}

func TestAnalyzeRequiresInput(t *testing.T) {
	_, _, err := execute(t, testApp(fakeFetcher{}, ""), "analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--github-urls or --input-file")
}

func TestAnalyzeExclusiveInputs(t *testing.T) {
	_, _, err := execute(t, testApp(fakeFetcher{}, ""), "analyze", "--github-urls", "a/b", "--input-file", "x.csv")
	assert.Error(t, err)
}

func TestAnalyzeWritesReports(t *testing.T) {
	outDir := t.TempDir()
	a := testApp(fakeFetcher{fail: map[string]bool{"acme/broken": true}}, "| Security | 9/10 |\n| Overall | 4/10 |")

	out, _, err := execute(t, a, "analyze",
		"--github-urls", "acme/one,acme/broken,acme/two",
		"--output", outDir,
		"--no-metrics",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Analyzing repository 1/3: https://github.com/acme/one")
	assert.Contains(t, out, "Completed analysis of: acme/one")
	assert.Contains(t, out, "Skipped https://github.com/acme/broken")
	assert.Contains(t, out, "["+strings.Repeat("#", 40)+"] 3/3 (100.0%)")
	assert.Contains(t, out, "Summary report: ")
	assert.Contains(t, out, "Total execution time: 0 minutes, ")
	assert.Contains(t, strings.ToUpper(out), "SECURITY")

	runs, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	dir := filepath.Join(outDir, runs[0].Name())
	assert.FileExists(t, filepath.Join(dir, "acme-one-analysis.md"))
	assert.FileExists(t, filepath.Join(dir, "acme-two-analysis.json"))
	assert.NoFileExists(t, filepath.Join(dir, "acme-broken-analysis.md"))

	summary, err := os.ReadFile(filepath.Join(dir, report.SummaryFileName))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "## Progress: 2/3 Repositories Analyzed")
}

func TestAnalyzeInMemory(t *testing.T) {
	a := testApp(fakeFetcher{}, "| Security | 7/10 |")

	out, errOut, err := execute(t, a, "analyze", "--github-urls", "acme/one,acme/two", "--in-memory", "--no-metrics")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, 2.0, resp["total_repos"])
	assert.Equal(t, 2.0, resp["completed_repos"])
	assert.Contains(t, resp["summary"], "2/2 Repositories Analyzed")

	analyses, ok := resp["analyses"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "| Security | 7/10 |", analyses["acme/one"])

	assert.Contains(t, errOut, "Completed analysis of: acme/two")
}

func TestAnalyzeInMemoryFailure(t *testing.T) {
	a := testApp(fakeFetcher{fail: map[string]bool{"acme/one": true}}, "")

	out, _, err := execute(t, a, "analyze", "--github-urls", "acme/one", "--in-memory")
	assert.ErrorIs(t, err, evaluator.ErrNoRepositoriesAnalyzed)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, 0.0, resp["completed_repos"])
	assert.Contains(t, resp["error"], "no repositories were successfully analyzed")
}

func TestAnalyzeClientError(t *testing.T) {
	a := testApp(fakeFetcher{}, "")
	a.newClient = func(*evaluator.Config) (evaluator.Client, error) {
		return nil, errors.New("missing api key")
	}

	_, _, err := execute(t, a, "analyze", "--github-urls", "a/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing api key")
}

func TestAnalyzeOptionsApply(t *testing.T) {
	cmd := newAnalyzeCmd(testApp(fakeFetcher{}, ""))
	require.NoError(t, cmd.ParseFlags([]string{"--temperature", "3", "--no-metrics", "--model", "gpt-4o", "--json"}))

	var opts analyzeOptions
	opts.temperature, _ = cmd.Flags().GetFloat64("temperature")
	opts.noMetrics, _ = cmd.Flags().GetBool("no-metrics")
	opts.model, _ = cmd.Flags().GetString("model")
	opts.json, _ = cmd.Flags().GetBool("json")

	cfg := evaluator.DefaultConfig()
	opts.apply(cmd, cfg)

	assert.Equal(t, 1.0, cfg.LLM.Temperature)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.True(t, cfg.App.JSON)
	assert.Equal(t, evaluator.DefaultOutDir, cfg.App.OutDir)
}

func TestProgressLine(t *testing.T) {
	assert.Equal(t, "["+strings.Repeat("-", 40)+"] 0/0 (0.0%)", progressLine(0, 0))
	assert.Equal(t, "["+strings.Repeat("#", 10)+strings.Repeat("-", 30)+"] 1/4 (25.0%)", progressLine(1, 4))
	assert.Equal(t, "["+strings.Repeat("#", 40)+"] 3/3 (100.0%)", progressLine(3, 3))
}

func TestTimeFormatting(t *testing.T) {
	assert.Equal(t, "2m 5s", formatETA(125*time.Second))
	assert.Equal(t, "1 minutes, 30 seconds", formatExecutionTime(90500*time.Millisecond))

	assert.Equal(t, 20*time.Second, estimateRemaining(10*time.Second, 1, 3))
	assert.Zero(t, estimateRemaining(10*time.Second, 3, 3))
	assert.Zero(t, estimateRemaining(0, 0, 3))
}
