package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryFoldUpsert(t *testing.T) {
	s := NewSummary(3, fixedNow)

	s1 := s.Fold("a/one", Scores{Security: 5})
	s2 := s1.Fold("b/two", Scores{Security: 7})
	s3 := s2.Fold("a/one", Scores{Security: 9, Overall: 8})

	assert.Equal(t, 0, s.Completed)
	assert.Equal(t, 1, s1.Completed)
	assert.Equal(t, 2, s3.Completed)

	got, ok := s3.Lookup("a/one")
	require.True(t, ok)
	assert.Equal(t, Scores{Security: 9, Overall: 8}, got)

	// the earlier value is untouched and position is kept
	old, _ := s2.Lookup("a/one")
	assert.Equal(t, Scores{Security: 5}, old)
	entries := s3.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a/one", entries[0].Repository)
	assert.Equal(t, "b/two", entries[1].Repository)
}

func TestSummaryFoldCopiesScores(t *testing.T) {
	in := Scores{Security: 5}
	s := NewSummary(1, fixedNow).Fold("a/b", in)
	in[Security] = 1

	got, _ := s.Lookup("a/b")
	assert.Equal(t, 5.0, got[Security])
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 30), ProgressBar(0, 0, 30))
	assert.Equal(t, strings.Repeat("█", 10)+strings.Repeat("░", 20), ProgressBar(1, 3, 30))
	assert.Equal(t, strings.Repeat("█", 13)+strings.Repeat("░", 7), ProgressBar(2, 3, 20))
	assert.Equal(t, strings.Repeat("█", 30), ProgressBar(5, 3, 30))
}

func TestSummaryMarkdownZeroTotal(t *testing.T) {
	var md string
	require.NotPanics(t, func() { md = NewSummary(0, fixedNow).Markdown(fixedNow) })

	assert.Contains(t, md, "## Progress: 0/0 Repositories Analyzed (0.0%)")
	assert.Contains(t, md, "["+strings.Repeat("░", ProgressWidth)+"]")
	assert.NotContains(t, md, "## Average Scores")
}

func TestSummaryMarkdown(t *testing.T) {
	s := NewSummary(3, fixedNow).
		Fold("org/alpha", Scores{Security: 8, Readability: 6, Overall: 7}).
		Fold("org/beta", Scores{Security: 6, Overall: 9}).
		Fold("org/gamma", Scores{})

	md := s.Markdown(fixedNow)

	assert.Contains(t, md, "# Analysis Summary Report\n\nGenerated: 2025-03-14 09:26:53\n")
	assert.Contains(t, md, "## Progress: 3/3 Repositories Analyzed (100.0%)")
	assert.Contains(t, md, "- Analysis completed: 2025-03-14 09:26:53")
	assert.Contains(t, md, "| Repository | Security | Functionality | Readability | Dependencies | Evidence | Overall |")
	assert.Contains(t, md, "| org/alpha | 8.0/10 | N/A | 6.0/10 | N/A | N/A | 7.0/10 |")
	assert.Contains(t, md, "| org/beta | 6.0/10 | N/A | N/A | N/A | N/A | 9.0/10 |")
	assert.Contains(t, md, "| org/gamma | N/A | N/A | N/A | N/A | N/A | N/A |")

	assert.Contains(t, md, "- **Security**: 7.0/10")
	assert.Contains(t, md, "- **Readability**: 6.0/10")
	assert.Contains(t, md, "- **Overall**: 8.0/10")
	assert.NotContains(t, md, "**Functionality**")
	assert.NotContains(t, md, "**Dependencies**")
	assert.NotContains(t, md, "**Evidence**")

	assert.Contains(t, md, "- [org/alpha](./org-alpha-analysis.md)")
	assert.NotContains(t, md, "Pending Repositories")

	// rows follow completion order
	assert.Less(t, strings.Index(md, "| org/alpha |"), strings.Index(md, "| org/beta |"))
	assert.Less(t, strings.Index(md, "| org/beta |"), strings.Index(md, "| org/gamma |"))
}

func TestSummaryMarkdownInProgress(t *testing.T) {
	s := NewSummary(4, fixedNow).Fold("org/alpha", Scores{Security: 8})

	md := s.Markdown(fixedNow)

	assert.Contains(t, md, "## Progress: 1/4 Repositories Analyzed (25.0%)")
	assert.Contains(t, md, "- Analysis in progress: 1 of 4 repositories analyzed")
	assert.Contains(t, md, "There are 3 repositories pending analysis.")
}

func TestSummaryAverages(t *testing.T) {
	s := NewSummary(2, fixedNow).
		Fold("a", Scores{Security: 8, Evidence: 3}).
		Fold("b", Scores{Security: 5})

	avgs := s.Averages()

	require.Len(t, avgs, 2)
	assert.Equal(t, Average{Category: Security, Value: 6.5, Count: 2}, avgs[0])
	assert.Equal(t, Average{Category: Evidence, Value: 3, Count: 1}, avgs[1])
}
