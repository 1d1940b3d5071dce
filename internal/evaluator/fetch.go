package evaluator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

const (
	fetchErrorPrefix = "Error fetching repository:"
	maxDigestFile    = 1 << 20
	digestRule       = "================================================"
)

// ErrFetch marks a repository whose content could not be retrieved.
var ErrFetch = errors.New("fetch failed")

// DefaultExcludePatterns drops lockfiles, build output, vendored
// dependencies, editor state and media from the digest. Patterns ending in
// "/" match directories only; a leading "**/" is implied.
var DefaultExcludePatterns = []string{
	// python
	"*.pyc", "*.pyo", "*.pyd", "__pycache__", ".pytest_cache", ".coverage",
	".tox", ".nox", ".mypy_cache", ".ruff_cache", ".hypothesis",
	"poetry.lock", "Pipfile.lock", "venv", ".venv", "env", "virtualenv",
	"*.egg-info", "*.egg", "*.whl", "site-packages",
	// js
	"node_modules", "bower_components", "package-lock.json", "yarn.lock",
	"pnpm-lock.yaml", "bun.lock", "bun.lockb", ".npm", ".yarn", ".pnpm-store",
	"*.min.js", "*.min.css", "*.map", ".docusaurus", ".next", ".nuxt",
	".eslintcache", "jsdoc-automation/*",
	// jvm
	"*.class", "*.jar", "*.war", "*.ear", "*.nar", ".gradle/", ".settings/",
	".classpath", "gradle-app.setting", "*.gradle", ".project",
	// native
	"*.o", "*.obj", "*.dll", "*.dylib", "*.exe", "*.lib", "*.out", "*.a",
	"*.pdb", "*.so",
	// apple
	".build/", "*.xcodeproj/", "*.xcworkspace/", "*.pbxuser", "*.mode1v3",
	"*.mode2v3", "*.perspectivev3", "*.xcuserstate", "xcuserdata/", ".swiftpm/",
	// ruby
	"*.gem", ".bundle/", "vendor/bundle", "Gemfile.lock", ".ruby-version",
	".ruby-gemset", ".rvmrc",
	// rust
	"Cargo.lock", "*.rs.bk",
	// dotnet
	"*.suo", "*.user", "*.userosscache", "*.sln.docstates", "packages/", "*.nupkg",
	// vcs
	".git", ".svn", ".hg", ".gitignore", ".gitattributes", ".gitmodules",
	// media
	"*.svg", "*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.webp", "*.heic",
	"*.heif", "*.hevc", "*.pdf", "*.mov", "*.mp4", "*.mp3", "*.wav",
	// editors and os
	".idea", ".vscode", ".vs", "*.swo", "*.swn", "*.swp", "*.sublime-*",
	".DS_Store", "Thumbs.db", "desktop.ini",
	// build output and caches
	"build", "dist", "target", "out", "bin/", "obj/", "pkg/", "lib/", "vendor/",
	".cache", ".sass-cache", ".terraform", "*.tfstate*",
	"build-info/*", "solcInputs/*",
	// misc
	"*.lock", "*.log", "*.bak", "*.tmp", "*.temp", ".env", "digest.txt",
	"CHANGELOG.md", "CONTRIBUTING.md",
}

// Fetcher produces the code digest (and optionally metrics) for one
// repository URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string, includeMetrics bool) (FetchResult, error)
}

type cloneFunc func(ctx context.Context, url string) (*git.Repository, error)

// GitFetcher builds digests from a shallow in-memory clone.
type GitFetcher struct {
	patterns    []string
	maxFileSize int64
	metrics     MetricsSource
	clone       cloneFunc
}

func NewGitFetcher(token string, metrics MetricsSource) *GitFetcher {
	return &GitFetcher{
		patterns:    DefaultExcludePatterns,
		maxFileSize: maxDigestFile,
		metrics:     metrics,
		clone:       shallowClone(token),
	}
}

func shallowClone(token string) cloneFunc {
	return func(ctx context.Context, url string) (*git.Repository, error) {
		opts := &git.CloneOptions{
			URL:          url,
			Depth:        1,
			SingleBranch: true,
			Tags:         git.NoTags,
		}
		if token != "" {
			opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
		}
		return git.CloneContext(ctx, memory.NewStorage(), nil, opts)
	}
}

func (f *GitFetcher) Fetch(ctx context.Context, rawURL string, includeMetrics bool) (FetchResult, error) {
	url := NormalizeRepoURL(rawURL)
	res := FetchResult{
		Repository: RepoName(url),
		URL:        url,
	}

	logger.Log.Infof("Fetching code from %s", url)

	digest, err := f.digest(ctx, url, res.Repository)
	if err != nil {
		res.Content = fmt.Sprintf("%s %v", fetchErrorPrefix, err)
		return res, fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}
	res.Content = digest
	logger.Log.Infof("Successfully fetched code from %s", url)

	if includeMetrics && f.metrics != nil {
		owner, name, ok := SplitRepoName(res.Repository)
		if !ok {
			logger.Log.Warnf("Cannot collect metrics for %s: not an owner/repo URL", url)
			return res, nil
		}
		m, err := f.metrics.Collect(ctx, owner, name)
		if err != nil {
			logger.Log.Warnf("Error fetching GitHub metrics for %s: %v", res.Repository, err)
		} else {
			res.Metrics = m
		}
	}

	return res, nil
}

type digestFile struct {
	path    string
	content string
}

func (f *GitFetcher) digest(ctx context.Context, url, name string) (string, error) {
	repo, err := f.clone(ctx, url)
	if err != nil {
		return "", fmt.Errorf("clone: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("getting HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("reading HEAD commit: %w", err)
	}
	iter, err := commit.Files()
	if err != nil {
		return "", fmt.Errorf("listing files: %w", err)
	}

	var files []digestFile
	err = iter.ForEach(func(file *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if excluded(file.Name, f.patterns) || file.Size > f.maxFileSize {
			return nil
		}
		if bin, err := file.IsBinary(); err != nil || bin {
			return nil
		}
		content, err := file.Contents()
		if err != nil {
			logger.Log.Debugf("Skipping %s: %v", file.Name, err)
			return nil
		}
		files = append(files, digestFile{path: file.Name, content: content})
		return nil
	})
	if err != nil {
		return "", err
	}

	return renderDigest(name, files), nil
}

func renderDigest(name string, files []digestFile) string {
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", name)
	fmt.Fprintf(&b, "Files analyzed: %d\n\n", len(files))
	b.WriteString("Directory structure:\n")
	b.WriteString(directoryTree(paths))

	for _, f := range files {
		fmt.Fprintf(&b, "\n%s\nFILE: %s\n%s\n%s\n", digestRule, f.path, digestRule, f.content)
	}
	return b.String()
}

// directoryTree lists sorted paths with each directory printed once and
// entries indented by depth.
func directoryTree(paths []string) string {
	var b strings.Builder
	seen := map[string]bool{}
	for _, p := range paths {
		segs := strings.Split(p, "/")
		for i := 1; i < len(segs); i++ {
			dir := strings.Join(segs[:i], "/")
			if seen[dir] {
				continue
			}
			seen[dir] = true
			fmt.Fprintf(&b, "%s%s/\n", strings.Repeat("    ", i-1), segs[i-1])
		}
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("    ", len(segs)-1), segs[len(segs)-1])
	}
	return b.String()
}

// excluded reports whether any pattern matches a run of consecutive path
// segments. Directory patterns never match the final segment.
func excluded(name string, patterns []string) bool {
	segs := strings.Split(name, "/")
	for _, p := range patterns {
		p = strings.TrimPrefix(p, "**/")
		dirOnly := strings.HasSuffix(p, "/")
		p = strings.TrimSuffix(p, "/")

		width := strings.Count(p, "/") + 1
		limit := len(segs)
		if dirOnly {
			limit--
		}
		for i := 0; i+width <= limit; i++ {
			if ok, _ := path.Match(p, strings.Join(segs[i:i+width], "/")); ok {
				return true
			}
		}
	}
	return false
}
