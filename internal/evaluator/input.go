package evaluator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	githubColumnRe = regexp.MustCompile(`(?i)github`)
	githubURLRe    = regexp.MustCompile(`https?://(?:www\.)?github\.com/[\w.-]+/[\w.-]+/?`)
)

var (
	ErrInputNotFound    = errors.New("input file not found")
	ErrInputUnsupported = errors.New("unsupported input file type")
	ErrNoGithubColumns  = errors.New("no columns containing 'github' found")
	ErrNoGithubURLs     = errors.New("no GitHub URLs found")
)

// NormalizeRepoURL accepts owner/repo, github.com/owner/repo or a full URL
// and returns an https URL without a trailing slash.
func NormalizeRepoURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}

	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		if strings.Contains(u, "/") && !strings.HasPrefix(u, "github.com") {
			u = "https://github.com/" + u
		} else {
			u = "https://" + u
		}
	}

	return strings.TrimRight(u, "/")
}

// RepoName returns "owner/repo" for a GitHub URL. URLs that do not name a
// repository fall back to the scheme-less URL with slashes replaced.
func RepoName(rawURL string) string {
	u := NormalizeRepoURL(rawURL)

	if _, rest, ok := strings.Cut(u, "github.com/"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git")
		}
	}

	s := strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	return strings.ReplaceAll(s, "/", "_")
}

// SplitRepoName splits "owner/repo".
func SplitRepoName(name string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(name, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// ParseURLList splits a comma separated list, dropping blanks and
// repeated repositories while keeping first-seen order.
func ParseURLList(list string) []string {
	var urls []string
	for _, part := range strings.Split(list, ",") {
		if u := strings.TrimSpace(part); u != "" {
			urls = append(urls, u)
		}
	}
	return uniqueRepositories(urls)
}

// uniqueRepositories keeps the first URL naming each repository, so
// "acme/dapp" and "https://github.com/acme/dapp.git" count once.
func uniqueRepositories(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		name := RepoName(u)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, u)
	}
	return out
}

// ReadInputFile extracts GitHub repository URLs from the columns of a CSV
// file whose header mentions github.
func ReadInputFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
	case ".xlsx", ".xls":
		return nil, fmt.Errorf("%w: %s (spreadsheets are not supported, export to CSV)", ErrInputUnsupported, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInputUnsupported, path)
	}

	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	return parseCSVURLs(f)
}

func parseCSVURLs(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoGithubColumns
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var cols []int
	for i, h := range header {
		if githubColumnRe.MatchString(h) {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return nil, ErrNoGithubColumns
	}

	var urls []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		for _, c := range cols {
			if c >= len(rec) {
				continue
			}
			for _, m := range githubURLRe.FindAllString(rec[c], -1) {
				urls = append(urls, cleanMatchedURL(m))
			}
		}
	}

	urls = uniqueRepositories(urls)
	if len(urls) == 0 {
		return nil, ErrNoGithubURLs
	}
	return urls, nil
}

func cleanMatchedURL(u string) string {
	if strings.HasSuffix(u, ")") && !strings.Contains(u, "(") {
		u = strings.TrimSuffix(u, ")")
	}
	return strings.TrimRight(u, "/")
}
