package report

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrianpk/celoeval/internal/logger"
)

// Legacy keys some JSON-mode prompts ask the model to score.
const (
	Standards  = "standards"
	Complexity = "complexity"
	Testing    = "testing"
)

// minTableHits is the number of table categories below which the phrase
// patterns are tried as well.
const minTableHits = 5

// minForOverall is how many categories must be known to derive overall.
const minForOverall = 3

var tableRowRe = regexp.MustCompile(`\|\s*([^|]+)\s*\|\s*(\d+(?:\.\d+)?)(?:/10)?\s*\|`)

const scoreTail = `:?\s+(?:score)?\s*[:-]?\s*(\d+(?:\.\d+)?)(?:/10)?`

type phrasePattern struct {
	category string
	re       *regexp.Regexp
}

var phrasePatterns = []phrasePattern{
	{Security, regexp.MustCompile(`(?i)Security` + scoreTail)},
	{Functionality, regexp.MustCompile(`(?i)Functionality\s*(?:&|and)\s*Correctness` + scoreTail)},
	{Readability, regexp.MustCompile(`(?i)Readability` + scoreTail + `|Readability\s*(?:&|and)\s*Understandability` + scoreTail)},
	{Dependencies, regexp.MustCompile(`(?i)Dependencies\s*(?:&|and)\s*Setup` + scoreTail)},
	{Evidence, regexp.MustCompile(`(?i)Evidence\s+of\s+(?:Technical|Celo)\s+Usage` + scoreTail)},
	{Overall, regexp.MustCompile(`(?i)Overall\s*(?:Score)?` + scoreTail)},
}

type labelRule struct {
	category string
	terms    []string
}

// First matching rule wins.
var labelRules = []labelRule{
	{Security, []string{"security"}},
	{Functionality, []string{"function", "correct"}},
	{Readability, []string{"read", "understand"}},
	{Dependencies, []string{"depend", "setup"}},
	{Evidence, []string{"evidence", "technical", "usage", "celo"}},
	{Overall, []string{"overall"}},
}

var structuredKeys = []string{
	Security, Functionality, Readability, Dependencies, Evidence,
	Standards, Complexity, Testing, Overall,
}

// Extract turns an analysis into normalized scores. It never fails: when
// nothing can be parsed the returned Scores is empty.
func Extract(r AnalysisResult) Scores {
	scores, err := extract(r)
	if err != nil {
		logger.Log.Debugf("score extraction: %v", err)
	}
	if scores == nil {
		return Scores{}
	}
	return scores
}

func extract(r AnalysisResult) (Scores, error) {
	switch r.Kind() {
	case KindText:
		return extractText(r.Text())
	case KindStructured:
		return extractStructured(r.Fields())
	default:
		return nil, ErrUnknownResult
	}
}

func extractText(raw string) (Scores, error) {
	content := unwrapFence(raw)
	scores := Scores{}

	for _, m := range tableRowRe.FindAllStringSubmatch(content, -1) {
		label := strings.ToLower(strings.TrimSpace(m[1]))
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		category, ok := categoryForLabel(label)
		if !ok {
			logger.Log.Debugf("unmapped score label %q", label)
			continue
		}
		scores[category] = v
	}

	if len(scores) < minTableHits {
		for _, p := range phrasePatterns {
			if _, found := scores[p.category]; found {
				continue
			}
			if v, ok := firstNumber(p.re, content); ok {
				scores[p.category] = v
			}
		}
	}

	normalize(scores)
	if len(scores) == 0 {
		return scores, ErrNoScores
	}
	return scores, nil
}

func extractStructured(fields *Fields) (Scores, error) {
	if fields == nil {
		return Scores{}, ErrNoScores
	}

	source := fields
	if inner, ok := fields.Get("analysis"); ok {
		if nested := asFields(inner); nested != nil {
			source = nested
		}
	}

	scores := Scores{}
	for _, key := range structuredKeys {
		val, ok := source.Get(key)
		if !ok {
			continue
		}
		if v, ok := scoreValue(val); ok {
			scores[key] = v
		}
	}

	normalize(scores)
	if len(scores) == 0 {
		return scores, ErrNoScores
	}
	return scores, nil
}

// unwrapFence returns the inner text when the whole input sits inside a
// ``` fenced block, otherwise the input unchanged.
func unwrapFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	lines := strings.Split(trimmed, "\n")
	end := -1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	if end <= 0 {
		return s
	}
	for _, tail := range lines[end+1:] {
		if strings.TrimSpace(tail) != "" {
			return s
		}
	}

	inner := strings.Join(lines[1:end], "\n")
	if strings.TrimSpace(inner) == "" {
		return s
	}
	return inner
}

func categoryForLabel(label string) (string, bool) {
	for _, rule := range labelRules {
		for _, term := range rule.terms {
			if strings.Contains(label, term) {
				return rule.category, true
			}
		}
	}
	return "", false
}

func firstNumber(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g == "" {
			continue
		}
		v, err := strconv.ParseFloat(g, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// normalize rescales 0-100 values and derives overall when enough
// categories are known.
func normalize(s Scores) {
	for k, v := range s {
		if v > 10 {
			s[k] = round1(v / 10)
		}
	}

	if _, ok := s[Overall]; ok || len(s) < minForOverall {
		return
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	s[Overall] = round1(sum / float64(len(s)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func scoreValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "/10"), 64)
		return f, err == nil
	case map[string]any:
		if inner, ok := t["score"]; ok {
			return scoreValue(inner)
		}
	case *Fields:
		if inner, ok := t.Get("score"); ok {
			return scoreValue(inner)
		}
	}
	return 0, false
}

func asFields(v any) *Fields {
	switch t := v.(type) {
	case *Fields:
		return t
	case map[string]any:
		out := NewFields()
		for _, k := range sortedKeys(t) {
			out.Set(k, t[k])
		}
		return out
	}
	return nil
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.1f/10", v)
}
