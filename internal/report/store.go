package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrianpk/celoeval/internal/logger"
)

// RunDirLayout names a run directory after its start time.
const RunDirLayout = "01-02-2006-1504"

// SummaryFileName is the summary report written next to the per-repository reports.
const SummaryFileName = "summary-report.md"

// Sink decides where rendered reports live. Implementations return the
// locations they wrote to, if any.
type Sink interface {
	WriteArtifact(a Artifact) ([]string, error)
	WriteSummary(markdown string, s Summary) (string, error)
}

// SaveResult is the outcome of saving one repository.
type SaveResult struct {
	Artifact Artifact
	Paths    []string

	// Summary is the state after folding this repository.
	Summary Summary

	// SummaryMarkdown is empty for single-repository runs.
	SummaryMarkdown string
	SummaryPath     string
}

func (r SaveResult) HasSummary() bool {
	return r.SummaryMarkdown != ""
}

// Store renders, persists and folds one repository at a time. It holds no
// batch state of its own.
type Store struct {
	sink Sink
	now  func() time.Time
}

type StoreOption func(*Store)

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(sink Sink, opts ...StoreOption) *Store {
	s := &Store{sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveOne renders the analysis, hands it to the sink and folds its scores
// into state. On error the returned state is the one passed in, so the rest
// of the batch stays valid.
func (s *Store) SaveOne(repository string, r AnalysisResult, state Summary) (res SaveResult, err error) {
	res.Summary = state

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("save %s: %v", repository, rec)
			res = SaveResult{Summary: state}
		}
	}()

	art, err := Render(repository, r, s.now())
	if err != nil {
		return res, err
	}

	paths, err := s.sink.WriteArtifact(art)
	if err != nil {
		return res, fmt.Errorf("save %s: %w", repository, err)
	}
	for _, p := range paths {
		logger.Log.Infof("Saved report to %s", p)
	}

	next := state.Fold(repository, art.Scores)
	res = SaveResult{Artifact: art, Paths: paths, Summary: next}

	if next.Total <= 1 && next.Completed <= 1 {
		return res, nil
	}

	md := next.Markdown(s.now())
	res.SummaryMarkdown = md
	path, err := s.sink.WriteSummary(md, next)
	if err != nil {
		logger.Log.Errorf("Error updating summary report: %v", err)
		return res, nil
	}
	res.SummaryPath = path
	if path != "" {
		logger.Log.Infof("Updated summary report at %s", path)
	}

	return res, nil
}

// Batch serializes saves for one run so that folds never interleave.
type Batch struct {
	mu    sync.Mutex
	store *Store
	state Summary
}

// NewBatch starts a run expecting total repositories.
func (s *Store) NewBatch(total int) *Batch {
	return &Batch{store: s, state: NewSummary(total, s.now())}
}

func (b *Batch) Save(repository string, r AnalysisResult) (SaveResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.store.SaveOne(repository, r, b.state)
	b.state = res.Summary
	return res, err
}

// Summary returns a snapshot of the running aggregate.
func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FileSink writes reports into one run directory.
type FileSink struct {
	Dir string
}

// NewFileSink creates <baseDir>/<MM-DD-YYYY-HHMM> and writes there.
func NewFileSink(baseDir string, startedAt time.Time) (*FileSink, error) {
	dir := filepath.Join(baseDir, startedAt.Format(RunDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &FileSink{Dir: dir}, nil
}

func (f *FileSink) WriteArtifact(a Artifact) ([]string, error) {
	base := filepath.Join(f.Dir, ReportFileName(a.Repository))
	mdPath := base + ".md"
	jsonPath := base + ".json"

	if err := os.WriteFile(mdPath, []byte(a.Markdown), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(jsonPath, []byte(a.JSON+"\n"), 0o644); err != nil {
		return []string{mdPath}, err
	}
	return []string{mdPath, jsonPath}, nil
}

func (f *FileSink) WriteSummary(markdown string, _ Summary) (string, error) {
	path := filepath.Join(f.Dir, SummaryFileName)
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// MemorySink keeps reports in memory for callers that return them directly.
type MemorySink struct {
	mu        sync.RWMutex
	order     []string
	artifacts map[string]Artifact
	summary   string
}

func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: map[string]Artifact{}}
}

func (m *MemorySink) WriteArtifact(a Artifact) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.artifacts[a.Repository]; !ok {
		m.order = append(m.order, a.Repository)
	}
	m.artifacts[a.Repository] = a
	return nil, nil
}

func (m *MemorySink) WriteSummary(markdown string, _ Summary) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summary = markdown
	return "", nil
}

// Artifacts returns the latest artifact per repository in first-save order.
func (m *MemorySink) Artifacts() []Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Artifact, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.artifacts[name])
	}
	return out
}

func (m *MemorySink) Artifact(repository string) (Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.artifacts[repository]
	return a, ok
}

func (m *MemorySink) SummaryMarkdown() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}
