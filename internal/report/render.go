package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const displayTime = "2006-01-02 15:04:05"

type structuredPayload struct {
	Repository  string  `json:"repository"`
	GeneratedAt string  `json:"generated_at"`
	Analysis    *Fields `json:"analysis"`
}

type textPayload struct {
	Repository  string       `json:"repository"`
	GeneratedAt string       `json:"generated_at"`
	Analysis    textAnalysis `json:"analysis"`
}

type textAnalysis struct {
	Content   string `json:"content"`
	Scores    Scores `json:"scores"`
	Timestamp string `json:"timestamp"`
}

// Render produces the markdown and JSON report for one repository. It has
// no side effects; persisting the artifact is up to the caller.
func Render(repository string, r AnalysisResult, now time.Time) (Artifact, error) {
	scores := Extract(r)

	var (
		md      string
		payload any
	)
	stamp := now.Format(time.RFC3339)

	switch r.Kind() {
	case KindText:
		md = renderTextMarkdown(repository, r.Text(), now)
		payload = textPayload{
			Repository:  repository,
			GeneratedAt: stamp,
			Analysis: textAnalysis{
				Content:   r.Text(),
				Scores:    scores,
				Timestamp: stamp,
			},
		}
	case KindStructured:
		md = renderFieldsMarkdown(repository, r.Fields(), now)
		payload = structuredPayload{
			Repository:  repository,
			GeneratedAt: stamp,
			Analysis:    r.Fields(),
		}
	default:
		return Artifact{}, fmt.Errorf("render %s: %w", repository, ErrUnknownResult)
	}

	js, err := marshalPretty(payload)
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s json: %w", repository, err)
	}

	return Artifact{
		Repository:  repository,
		Markdown:    md,
		JSON:        js,
		GeneratedAt: now,
		Scores:      scores,
	}, nil
}

func header(repository string, now time.Time) string {
	return fmt.Sprintf("# Analysis Report: %s\n\nGenerated: %s\n\n", repository, now.Format(displayTime))
}

func renderTextMarkdown(repository, text string, now time.Time) string {
	h := header(repository, now)
	if strings.HasPrefix(text, ErrorPrefix) {
		return h + "\n## Error\n\n" + text + "\n"
	}
	return h + text
}

func renderFieldsMarkdown(repository string, fields *Fields, now time.Time) string {
	var b strings.Builder
	b.WriteString(header(repository, now))

	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(&b, "## %s\n\n", TitleKey(pair.Key))
		writeValue(&b, pair.Value)
		b.WriteString("\n")
	}
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case *Fields:
		for p := t.Oldest(); p != nil; p = p.Next() {
			fmt.Fprintf(b, "- %s: %s\n", p.Key, scalar(p.Value))
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			fmt.Fprintf(b, "- %s: %s\n", k, scalar(t[k]))
		}
	case []any:
		for _, item := range t {
			fmt.Fprintf(b, "- %s\n", scalar(item))
		}
	default:
		b.WriteString(scalar(v))
		b.WriteString("\n")
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// TitleKey turns "code_quality" into "Code Quality".
func TitleKey(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func marshalPretty(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
