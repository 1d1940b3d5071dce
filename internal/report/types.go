package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Score categories, in the order they appear in summary tables.
const (
	Security      = "security"
	Functionality = "functionality"
	Readability   = "readability"
	Dependencies  = "dependencies"
	Evidence      = "evidence"
	Overall       = "overall"
)

// Categories is the fixed category set rendered in summaries.
var Categories = []string{Security, Functionality, Readability, Dependencies, Evidence, Overall}

// ErrorPrefix marks a text result produced by a failed LLM call.
const ErrorPrefix = "Error:"

var (
	ErrNoScores      = errors.New("no scores found")
	ErrUnknownResult = errors.New("unknown analysis result")
)

// Scores maps a category to a value on a 0-10 scale. Categories the
// analysis did not mention are absent, never zero.
type Scores map[string]float64

func (s Scores) Get(category string) (float64, bool) {
	v, ok := s[category]
	return v, ok
}

func (s Scores) Clone() Scores {
	out := make(Scores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Fields is an ordered JSON object as returned by the model in JSON mode.
type Fields = orderedmap.OrderedMap[string, any]

// NewFields returns an empty ordered field set.
func NewFields() *Fields {
	return orderedmap.New[string, any]()
}

type Kind int

const (
	KindText Kind = iota + 1
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// AnalysisResult is what the model produced for one repository: either raw
// text (usually markdown) or an ordered structured object. The zero value is
// invalid.
type AnalysisResult struct {
	kind   Kind
	text   string
	fields *Fields
}

func Text(raw string) AnalysisResult {
	return AnalysisResult{kind: KindText, text: raw}
}

func Structured(fields *Fields) AnalysisResult {
	if fields == nil {
		fields = NewFields()
	}
	return AnalysisResult{kind: KindStructured, fields: fields}
}

// ParseStructured decodes a JSON object keeping its key order.
func ParseStructured(data []byte) (AnalysisResult, error) {
	fields := NewFields()
	if err := json.Unmarshal(data, fields); err != nil {
		return AnalysisResult{}, fmt.Errorf("decode structured result: %w", err)
	}
	return Structured(fields), nil
}

func (r AnalysisResult) Kind() Kind { return r.kind }
func (r AnalysisResult) Text() string { return r.text }
func (r AnalysisResult) Fields() *Fields { return r.fields }
func (r AnalysisResult) IsText() bool { return r.kind == KindText }
func (r AnalysisResult) IsStructured() bool { return r.kind == KindStructured }

// IsError reports whether the result is the sentinel text of a failed
// analysis.
func (r AnalysisResult) IsError() bool {
	return r.kind == KindText && strings.HasPrefix(r.text, ErrorPrefix)
}

// Artifact is one repository's rendered report.
type Artifact struct {
	Repository  string
	Markdown    string
	JSON        string
	GeneratedAt time.Time
	Scores      Scores
}

// SafeName turns "owner/repo" into a file-system friendly "owner-repo".
func SafeName(repository string) string {
	return strings.ReplaceAll(repository, "/", "-")
}

// ReportFileName is the base name of a repository's report, without extension.
func ReportFileName(repository string) string {
	return SafeName(repository) + "-analysis"
}
