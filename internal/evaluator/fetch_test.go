package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcluded(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"src/app.ts", false},
		{"node_modules/react/index.js", true},
		{"web/node_modules/x.js", true},
		{"assets/logo.png", true},
		{"package-lock.json", true},
		{"web/yarn.lock", true},
		{"bin/tool", true},
		{"src/bin", false},
		{"app/App.xcodeproj/project.pbxproj", true},
		{"vendor/bundle/gems/x.rb", true},
		{"tools/jsdoc-automation/run.js", true},
		{"artifacts/build-info/abc.json", true},
		{"contracts/Token.sol", false},
		{"terraform.tfstate.backup", true},
		{"docs/CONTRIBUTING.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, excluded(tt.path, DefaultExcludePatterns))
		})
	}
}

func TestDirectoryTree(t *testing.T) {
	got := directoryTree([]string{"README.md", "src/a/x.go", "src/a/y.go", "src/b.go"})
	assert.Equal(t, "README.md\nsrc/\n    a/\n        x.go\n        y.go\n    b.go\n", got)
}

func newMemoryRepo(t *testing.T, files map[string]string) *git.Repository {
	t.Helper()

	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	_, err = wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return repo
}

type stubMetrics struct {
	rec   *MetricsRecord
	err   error
	owner string
	name  string
}

func (s *stubMetrics) Collect(_ context.Context, owner, name string) (*MetricsRecord, error) {
	s.owner, s.name = owner, name
	return s.rec, s.err
}

func TestGitFetcherFetch(t *testing.T) {
	repo := newMemoryRepo(t, map[string]string{
		"README.md":                   "# Demo",
		"src/main.go":                 "package main",
		"node_modules/left-pad/i.js":  "module.exports = 1",
		"assets/logo.png":             "png",
		"data/blob.bin":               "a\x00b",
		"contracts/big/Generated.sol": strings.Repeat("x", 64),
	})

	metrics := &stubMetrics{rec: &MetricsRecord{Repository: RepositoryMetrics{Stars: 9}}}
	f := &GitFetcher{
		patterns:    DefaultExcludePatterns,
		maxFileSize: 32,
		metrics:     metrics,
		clone: func(ctx context.Context, url string) (*git.Repository, error) {
			assert.Equal(t, "https://github.com/acme/demo", url)
			return repo, nil
		},
	}

	res, err := f.Fetch(context.Background(), "acme/demo/", true)
	require.NoError(t, err)

	assert.Equal(t, "acme/demo", res.Repository)
	assert.Equal(t, "https://github.com/acme/demo", res.URL)
	assert.True(t, strings.HasPrefix(res.Content, "Repository: acme/demo\nFiles analyzed: 2\n\nDirectory structure:\nREADME.md\nsrc/\n    main.go\n"))
	assert.Contains(t, res.Content, digestRule+"\nFILE: src/main.go\n"+digestRule+"\npackage main\n")
	assert.Less(t, strings.Index(res.Content, "FILE: README.md"), strings.Index(res.Content, "FILE: src/main.go"))
	assert.NotContains(t, res.Content, "node_modules")
	assert.NotContains(t, res.Content, "logo.png")
	assert.NotContains(t, res.Content, "blob.bin")
	assert.NotContains(t, res.Content, "Generated.sol")

	require.NotNil(t, res.Metrics)
	assert.Equal(t, 9, res.Metrics.Repository.Stars)
	assert.Equal(t, "acme", metrics.owner)
	assert.Equal(t, "demo", metrics.name)
}

func TestGitFetcherMetricsOptional(t *testing.T) {
	repo := newMemoryRepo(t, map[string]string{"main.go": "package main"})
	clone := func(context.Context, string) (*git.Repository, error) { return repo, nil }

	t.Run("not requested", func(t *testing.T) {
		metrics := &stubMetrics{rec: &MetricsRecord{}}
		f := &GitFetcher{maxFileSize: maxDigestFile, metrics: metrics, clone: clone}

		res, err := f.Fetch(context.Background(), "a/b", false)
		require.NoError(t, err)
		assert.Nil(t, res.Metrics)
		assert.Empty(t, metrics.owner)
	})

	t.Run("collector failure", func(t *testing.T) {
		f := &GitFetcher{maxFileSize: maxDigestFile, metrics: &stubMetrics{err: errors.New("rate limited")}, clone: clone}

		res, err := f.Fetch(context.Background(), "a/b", true)
		require.NoError(t, err)
		assert.Nil(t, res.Metrics)
		assert.Contains(t, res.Content, "FILE: main.go")
	})
}

func TestGitFetcherCloneFailure(t *testing.T) {
	f := &GitFetcher{
		clone: func(context.Context, string) (*git.Repository, error) {
			return nil, errors.New("repository not found")
		},
	}

	res, err := f.Fetch(context.Background(), "https://github.com/a/missing", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetch)
	assert.True(t, strings.HasPrefix(res.Content, "Error fetching repository:"))
	assert.Contains(t, res.Content, "repository not found")
	assert.Equal(t, "a/missing", res.Repository)
}
