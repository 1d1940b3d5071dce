package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/adrianpk/celoeval/internal/evaluator"
	"github.com/adrianpk/celoeval/internal/report"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const consoleBarWidth = 40

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed, color.Bold)
)

// console prints batch progress and the end-of-run summary.
type console struct {
	w io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) banner(total int, cfg *evaluator.Config) {
	headingColor.Fprintf(c.w, "Analyzing %d repositories with %s (%s)\n", total, cfg.LLM.Model, cfg.LLM.Provider)
}

func (c *console) observe(e evaluator.Event) {
	switch e.Kind {
	case evaluator.EventStarted:
		fmt.Fprintf(c.w, "\nAnalyzing repository %d/%d: %s\n", e.Index, e.Total, e.URL)
		return
	case evaluator.EventCompleted:
		okColor.Fprintf(c.w, "Completed analysis of: %s\n", e.Repository)
	case evaluator.EventSkipped:
		failColor.Fprintf(c.w, "Skipped %s: %v\n", e.URL, e.Err)
	}

	fmt.Fprintln(c.w, progressLine(e.Index, e.Total))
	if eta := estimateRemaining(e.Elapsed, e.Index, e.Total); eta > 0 {
		fmt.Fprintf(c.w, "Estimated time remaining: %s\n", formatETA(eta))
	}
}

// progressLine renders "[####----] done/total (p%)".
func progressLine(done, total int) string {
	filled, pct := 0, 0.0
	if total > 0 {
		filled = consoleBarWidth * done / total
		pct = float64(done) / float64(total) * 100
	}
	filled = max(0, min(filled, consoleBarWidth))
	bar := strings.Repeat("#", filled) + strings.Repeat("-", consoleBarWidth-filled)
	return fmt.Sprintf("[%s] %d/%d (%.1f%%)", bar, done, total, pct)
}

func estimateRemaining(elapsed time.Duration, done, total int) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	return elapsed / time.Duration(done) * time.Duration(total-done)
}

func formatETA(d time.Duration) string {
	secs := int(math.Round(d.Seconds()))
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

func formatExecutionTime(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%d minutes, %d seconds", secs/60, secs%60)
}

func scoreColor(v float64) *color.Color {
	switch {
	case v >= 8:
		return okColor
	case v >= 5:
		return warnColor
	default:
		return failColor
	}
}

func (c *console) scoreTable(s report.Summary) error {
	table := tablewriter.NewWriter(c.w)

	headers := []string{"Repository"}
	for _, cat := range report.Categories {
		headers = append(headers, report.TitleKey(cat))
	}
	table.Header(headers)

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, e := range s.Entries() {
		row := []string{e.Repository}
		for _, cat := range report.Categories {
			cell := report.Cell(e.Scores, cat)
			if v, ok := e.Scores.Get(cat); ok {
				cell = scoreColor(v).Sprint(cell)
			}
			row = append(row, cell)
		}
		data = append(data, row)
	}

	fmt.Fprintln(c.w)
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func (c *console) reportPaths(res evaluator.BatchResult) {
	if p := res.SummaryPath(); p != "" {
		fmt.Fprintf(c.w, "\nSummary report: %s\n", p)
	}

	var paths []string
	for _, o := range res.Outcomes {
		for _, p := range o.Save.Paths {
			if strings.HasSuffix(p, ".md") {
				paths = append(paths, p)
			}
		}
	}
	if len(paths) == 0 {
		return
	}
	fmt.Fprintln(c.w, "Individual reports:")
	for _, p := range paths {
		fmt.Fprintf(c.w, "  - %s\n", p)
	}
}

func (c *console) interrupted(res evaluator.BatchResult) {
	warnColor.Fprintf(c.w, "\nAnalysis interrupted: %d of %d repositories analyzed\n",
		res.Summary.Completed, res.Summary.Total)
}

func (c *console) executionTime(d time.Duration) {
	fmt.Fprintf(c.w, "\nTotal execution time: %s\n", formatExecutionTime(d))
}

type inMemoryResponse struct {
	Success        bool                                `json:"success"`
	Analyses       *orderedmap.OrderedMap[string, any] `json:"analyses"`
	Summary        string                              `json:"summary,omitempty"`
	TotalRepos     int                                 `json:"total_repos"`
	CompletedRepos int                                 `json:"completed_repos"`
	ExecutionTime  string                              `json:"execution_time"`
	Error          string                              `json:"error,omitempty"`
}

// writeInMemoryResponse prints the batch as one JSON document. Text results
// are strings and structured results keep their key order.
func writeInMemoryResponse(w io.Writer, res evaluator.BatchResult, mem *report.MemorySink, runErr error) error {
	analyses := orderedmap.New[string, any]()
	for _, o := range res.Outcomes {
		if o.Result.IsStructured() {
			analyses.Set(o.Repository, o.Result.Fields())
			continue
		}
		analyses.Set(o.Repository, o.Result.Text())
	}

	resp := inMemoryResponse{
		Success:        runErr == nil,
		Analyses:       analyses,
		TotalRepos:     res.Summary.Total,
		CompletedRepos: res.Summary.Completed,
		ExecutionTime:  fmt.Sprintf("%.2f seconds", res.Elapsed.Seconds()),
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	if mem != nil && mem.SummaryMarkdown() != "" {
		resp.Summary = mem.SummaryMarkdown()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
