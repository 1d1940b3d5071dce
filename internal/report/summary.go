package report

import (
	"fmt"
	"strings"
	"time"
)

// ProgressWidth is the number of glyphs in the summary progress bar.
const ProgressWidth = 30

const (
	barFilled = "█"
	barEmpty  = "░"
)

// Entry is one repository's row in a summary, in completion order.
type Entry struct {
	Repository string
	Scores     Scores
}

// Average is the mean of one category over the repositories reporting it.
type Average struct {
	Category string
	Value    float64
	Count    int
}

// Summary is the running aggregate of a batch. It is a value: Fold returns
// an updated copy and leaves the receiver untouched, so a Summary can be
// rendered at any point of the run.
type Summary struct {
	Total     int
	Completed int
	StartedAt time.Time

	entries []Entry
	index   map[string]int
}

// NewSummary starts an empty summary for a batch of total repositories.
func NewSummary(total int, startedAt time.Time) Summary {
	return Summary{
		Total:     total,
		StartedAt: startedAt,
		index:     map[string]int{},
	}
}

// Fold inserts or replaces the scores of repository. Completed only grows
// the first time a repository is seen; a replaced entry keeps its position.
func (s Summary) Fold(repository string, scores Scores) Summary {
	next := s.clone()
	if scores == nil {
		scores = Scores{}
	}

	if i, ok := next.index[repository]; ok {
		next.entries[i] = Entry{Repository: repository, Scores: scores.Clone()}
		return next
	}

	next.index[repository] = len(next.entries)
	next.entries = append(next.entries, Entry{Repository: repository, Scores: scores.Clone()})
	next.Completed++
	return next
}

func (s Summary) clone() Summary {
	out := s
	out.entries = make([]Entry, len(s.entries), len(s.entries)+1)
	copy(out.entries, s.entries)
	out.index = make(map[string]int, len(s.index)+1)
	for k, v := range s.index {
		out.index[k] = v
	}
	return out
}

// Entries returns the folded repositories in completion order.
func (s Summary) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s Summary) Len() int {
	return len(s.entries)
}

func (s Summary) Lookup(repository string) (Scores, bool) {
	i, ok := s.index[repository]
	if !ok {
		return nil, false
	}
	return s.entries[i].Scores, true
}

// Done reports whether every expected repository has been folded.
func (s Summary) Done() bool {
	return s.Total > 0 && s.Completed >= s.Total
}

// Percent is the completed share in [0,100]; zero when Total is zero.
func (s Summary) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	p := float64(s.Completed) / float64(s.Total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Averages returns one value per fixed category that at least one
// repository reported. Categories nobody reported are left out.
func (s Summary) Averages() []Average {
	var out []Average
	for _, c := range Categories {
		var sum float64
		var n int
		for _, e := range s.entries {
			if v, ok := e.Scores[c]; ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		out = append(out, Average{Category: c, Value: sum / float64(n), Count: n})
	}
	return out
}

// ProgressBar draws width glyphs with floor(width*completed/total) filled.
func ProgressBar(completed, total, width int) string {
	filled := 0
	if total > 0 {
		filled = width * completed / total
	}
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
}

// Cell formats a category value for a summary table, "N/A" when absent.
func Cell(s Scores, category string) string {
	v, ok := s[category]
	if !ok {
		return "N/A"
	}
	return formatScore(v)
}

// Markdown renders the summary report. It only reads s.
func (s Summary) Markdown(now time.Time) string {
	var b strings.Builder

	b.WriteString("# Analysis Summary Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", now.Format(displayTime))

	fmt.Fprintf(&b, "## Progress: %d/%d Repositories Analyzed (%.1f%%)\n", s.Completed, s.Total, s.Percent())
	fmt.Fprintf(&b, "```\n[%s]\n```\n\n", ProgressBar(s.Completed, s.Total, ProgressWidth))

	started := s.StartedAt
	if started.IsZero() {
		started = now
	}
	fmt.Fprintf(&b, "- Analysis started: %s\n", started.Format(displayTime))
	if s.Done() {
		fmt.Fprintf(&b, "- Analysis completed: %s\n", now.Format(displayTime))
	} else {
		fmt.Fprintf(&b, "- Analysis in progress: %d of %d repositories analyzed\n", s.Completed, s.Total)
	}
	b.WriteString("\n")

	b.WriteString("## Score Summary\n\n")
	b.WriteString("| Repository |")
	for _, c := range Categories {
		fmt.Fprintf(&b, " %s |", TitleKey(c))
	}
	b.WriteString("\n|------------|")
	for range Categories {
		b.WriteString("----------|")
	}
	b.WriteString("\n")
	for _, e := range s.entries {
		fmt.Fprintf(&b, "| %s |", e.Repository)
		for _, c := range Categories {
			fmt.Fprintf(&b, " %s |", Cell(e.Scores, c))
		}
		b.WriteString("\n")
	}

	if avgs := s.Averages(); len(avgs) > 0 {
		b.WriteString("\n## Average Scores\n\n")
		for _, a := range avgs {
			fmt.Fprintf(&b, "- **%s**: %s\n", TitleKey(a.Category), formatScore(a.Value))
		}
	}

	if len(s.entries) > 0 {
		b.WriteString("\n## Individual Reports\n\n")
		for _, e := range s.entries {
			fmt.Fprintf(&b, "- [%s](./%s.md)\n", e.Repository, ReportFileName(e.Repository))
		}
	}

	if pending := s.Total - s.Completed; pending > 0 {
		b.WriteString("\n## Pending Repositories\n\n")
		fmt.Fprintf(&b, "There are %d repositories pending analysis.\n", pending)
	}

	return b.String()
}
