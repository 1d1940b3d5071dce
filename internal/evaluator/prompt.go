package evaluator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/adrianpk/celoeval/internal/report"
)

// EmbeddedPromptPath is the built-in template inside the embedded FS.
const EmbeddedPromptPath = "prompts/default.txt"

const charsPerToken = 4

const truncationMarker = "\n\n[Content truncated due to length]"

const metricsInstruction = `
## GitHub Metrics
I've included GitHub metrics for this repository that you should incorporate into your analysis:
%s

When analyzing the repository, please consider these metrics and include them in your report under appropriate sections.
Include a 'Repository Metrics' section with all the stats, a 'Top Contributor Profile' section, and a 'Language Distribution' section in your report.
Also add a 'Codebase Breakdown' section based on the strengths, weaknesses, and missing features from the codebase analysis.
`

const jsonInstruction = "\n\nPlease format your response as a valid JSON object containing the analysis results. " +
	"Include scores for each category (readability, standards, complexity, testing, security) and provide an overall analysis."

var (
	jsonFenceRe  = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	rawTextLimit = 500
)

// loadPrompt reads the template from diskPath, falling back to embedPath in
// fsys. It also returns a label naming the source used.
func loadPrompt(fsys fs.FS, diskPath, embedPath string) (string, string, error) {
	if diskPath != "" {
		b, err := os.ReadFile(filepath.Clean(diskPath))
		if err == nil {
			return string(b), "file:" + diskPath, nil
		}
		logger.Log.Debugf("Prompt file %s not readable, using embedded template: %v", diskPath, err)
	}

	if fsys != nil {
		b, err := fs.ReadFile(fsys, embedPath)
		if err != nil {
			return "", "", err
		}
		return string(b), "embed:" + embedPath, nil
	}

	return "", "", errors.New("no prompt source available")
}

// buildPrompt appends the metrics block (when present), the code digest
// and, in JSON mode, the output format instruction.
func buildPrompt(template, metrics, digest string, jsonMode bool) string {
	var b strings.Builder
	b.WriteString(template)
	if metrics != "" {
		fmt.Fprintf(&b, metricsInstruction, metrics)
	}
	b.WriteString("\n\n")
	b.WriteString(digest)
	if jsonMode {
		b.WriteString(jsonInstruction)
	}
	return b.String()
}

// truncateDigest caps text at roughly maxTokens tokens.
func truncateDigest(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	maxChars := maxTokens * charsPerToken
	if len(text) <= maxChars {
		return text
	}
	logger.Log.Warn("Code digest exceeds estimated token limit, truncating...")
	return cutAtRune(text, maxChars) + truncationMarker
}

// cutAtRune returns at most n bytes of s without splitting a rune.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseJSONReply turns a model reply into a structured result. It tries a
// fenced block, then the whole reply, then the outermost brace span. A
// reply that never parses becomes an object carrying the error and the
// head of the raw text.
func parseJSONReply(text string) report.AnalysisResult {
	candidate := strings.TrimSpace(text)
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	res, err := report.ParseStructured([]byte(candidate))
	if err == nil {
		return res
	}

	if js, jerr := extractJSON(candidate); jerr == nil {
		res, err = report.ParseStructured([]byte(js))
		if err == nil {
			return res
		}
	}

	logger.Log.Errorf("Failed to parse JSON: %v", err)

	raw := text
	if len(raw) > rawTextLimit {
		raw = cutAtRune(raw, rawTextLimit) + "..."
	}
	fields := report.NewFields()
	fields.Set("error", fmt.Sprintf("Failed to parse JSON: %v", err))
	fields.Set("raw_text", raw)
	return report.Structured(fields)
}

func extractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", errors.New("no json braces found")
	}

	return s[start : end+1], nil
}
