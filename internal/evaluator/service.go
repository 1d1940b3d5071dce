package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/adrianpk/celoeval/internal/report"
)

// ErrNoRepositoriesAnalyzed is returned when a batch ends without a single
// saved report.
var ErrNoRepositoriesAnalyzed = errors.New("no repositories were successfully analyzed")

type EventKind int

const (
	EventStarted EventKind = iota
	EventCompleted
	EventSkipped
)

// Event reports batch progress. Index is 1-based.
type Event struct {
	Kind       EventKind
	URL        string
	Repository string
	Index      int
	Total      int
	Elapsed    time.Duration
	Save       report.SaveResult
	Err        error
}

// Outcome is one analyzed repository.
type Outcome struct {
	Repository string
	URL        string
	Result     report.AnalysisResult
	Save       report.SaveResult
}

type BatchResult struct {
	Summary  report.Summary
	Outcomes []Outcome
	Skipped  []string
	Elapsed  time.Duration
}

// SummaryPath is the last summary location written, if any.
func (b BatchResult) SummaryPath() string {
	for i := len(b.Outcomes) - 1; i >= 0; i-- {
		if p := b.Outcomes[i].Save.SummaryPath; p != "" {
			return p
		}
	}
	return ""
}

// Service runs a batch: fetch, analyze and save, one repository at a time
// in submission order.
type Service struct {
	fetcher        Fetcher
	analyzer       Analyzer
	store          *report.Store
	includeMetrics bool
	observe        func(Event)
	now            func() time.Time
}

type Option func(*Service)

func WithMetrics(enabled bool) Option {
	return func(s *Service) { s.includeMetrics = enabled }
}

func WithObserver(fn func(Event)) Option {
	return func(s *Service) { s.observe = fn }
}

func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(fetcher Fetcher, analyzer Analyzer, store *report.Store, opts ...Option) *Service {
	s := &Service{
		fetcher:        fetcher,
		analyzer:       analyzer,
		store:          store,
		includeMetrics: true,
		observe:        func(Event) {},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewService wires the production collaborators from cfg.
func NewService(cfg *Config, client Client, fsys fs.FS, sink report.Sink, opts ...Option) (*Service, error) {
	template, src, err := loadPrompt(fsys, cfg.App.PromptPath, EmbeddedPromptPath)
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	logger.Log.Infof("Using prompt from %s", src)

	var metrics MetricsSource
	if cfg.Metrics.Enabled {
		metrics = NewMetricsCollector(cfg.Auth.GithubToken, cfg.Metrics)
	}

	opts = append([]Option{WithMetrics(cfg.Metrics.Enabled)}, opts...)

	return New(
		NewGitFetcher(cfg.Auth.GithubToken, metrics),
		NewLLMAnalyzer(client, template, cfg),
		report.NewStore(sink),
		opts...,
	), nil
}

// Run processes urls sequentially. Repositories that cannot be fetched,
// analyzed or saved are skipped. If ctx is canceled the partial result is
// returned with ctx's error.
func (s *Service) Run(ctx context.Context, urls []string) (BatchResult, error) {
	start := s.now()
	if unique := uniqueRepositories(urls); len(unique) < len(urls) {
		logger.Log.Warnf("Dropped %d repeated repository URLs", len(urls)-len(unique))
		urls = unique
	}
	batch := s.store.NewBatch(len(urls))
	var res BatchResult

	finish := func(err error) (BatchResult, error) {
		res.Summary = batch.Summary()
		res.Elapsed = s.now().Sub(start)
		return res, err
	}

	for i, raw := range urls {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		url := NormalizeRepoURL(raw)
		ev := Event{URL: url, Index: i + 1, Total: len(urls)}

		ev.Kind = EventStarted
		s.observe(ev)

		out, err := s.process(ctx, batch, url)
		ev.Repository = out.Repository
		ev.Elapsed = s.now().Sub(start)
		if err != nil {
			if ctx.Err() != nil {
				return finish(ctx.Err())
			}
			logger.Log.Errorf("Skipping %s: %v", url, err)
			res.Skipped = append(res.Skipped, url)
			ev.Kind, ev.Err = EventSkipped, err
			s.observe(ev)
			continue
		}

		res.Outcomes = append(res.Outcomes, out)
		logger.Log.Infof("Completed analysis of: %s", out.Repository)
		ev.Kind, ev.Save = EventCompleted, out.Save
		s.observe(ev)
	}

	if batch.Summary().Completed == 0 {
		return finish(ErrNoRepositoriesAnalyzed)
	}
	return finish(nil)
}

func (s *Service) process(ctx context.Context, batch *report.Batch, url string) (Outcome, error) {
	out := Outcome{URL: url, Repository: RepoName(url)}

	fr, err := s.fetcher.Fetch(ctx, url, s.includeMetrics)
	if fr.Repository != "" {
		out.Repository = fr.Repository
	}
	if err == nil && strings.HasPrefix(fr.Content, fetchErrorPrefix) {
		err = fmt.Errorf("%w: %s", ErrFetch, fr.Content)
	}
	if err != nil {
		return out, err
	}

	ar, err := s.analyzer.Analyze(ctx, out.Repository, fr.Content, fr.Metrics)
	if err != nil {
		return out, fmt.Errorf("analyze: %w", err)
	}
	out.Result = ar

	saved, err := batch.Save(out.Repository, ar)
	if err != nil {
		return out, err
	}
	out.Save = saved
	return out, nil
}
