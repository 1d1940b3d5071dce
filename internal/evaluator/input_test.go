package evaluator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"owner/repo", "https://github.com/owner/repo"},
		{"github.com/owner/repo", "https://github.com/owner/repo"},
		{"  https://github.com/owner/repo/  ", "https://github.com/owner/repo"},
		{"http://github.com/owner/repo", "http://github.com/owner/repo"},
		{"example.com", "https://example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRepoURL(tt.in))
		})
	}
}

func TestRepoName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/celo-org/celo-monorepo", "celo-org/celo-monorepo"},
		{"https://github.com/owner/repo.git", "owner/repo"},
		{"https://github.com/owner/repo/tree/main/src", "owner/repo"},
		{"owner/repo/", "owner/repo"},
		{"https://gitlab.com/owner/repo", "gitlab.com_owner_repo"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RepoName(tt.in))
		})
	}
}

func TestSplitRepoName(t *testing.T) {
	owner, repo, ok := SplitRepoName("a/b")
	require.True(t, ok)
	assert.Equal(t, "a", owner)
	assert.Equal(t, "b", repo)

	for _, bad := range []string{"ab", "/b", "a/", "a/b/c"} {
		_, _, ok := SplitRepoName(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseURLList(t *testing.T) {
	got := ParseURLList(" a/b, ,c/d,a/b ,")
	assert.Equal(t, []string{"a/b", "c/d"}, got)
	assert.Empty(t, ParseURLList(""))

	got = ParseURLList("acme/dapp, https://github.com/acme/dapp,https://github.com/acme/dapp.git/")
	assert.Equal(t, []string{"acme/dapp"}, got)
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestReadInputFile(t *testing.T) {
	t.Run("github columns only", func(t *testing.T) {
		csv := strings.Join([]string{
			"Project,GitHub Repo,Website,Github (backend)",
			"One,https://github.com/a/one/,https://github.com/x/ignored,",
			"Two,\"see https://github.com/b/two and https://github.com/a/one\",,https://www.github.com/b/api",
			"Three,not a url,,",
			"Four,https://github.com/b/two.git,,",
		}, "\n")

		urls, err := ReadInputFile(writeInput(t, "projects.csv", csv))
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://github.com/a/one",
			"https://github.com/b/two",
			"https://www.github.com/b/api",
		}, urls)
	})

	t.Run("no github columns", func(t *testing.T) {
		_, err := ReadInputFile(writeInput(t, "p.csv", "name,url\nx,https://github.com/a/b\n"))
		assert.ErrorIs(t, err, ErrNoGithubColumns)
	})

	t.Run("no urls", func(t *testing.T) {
		_, err := ReadInputFile(writeInput(t, "p.csv", "github\nnope\n"))
		assert.ErrorIs(t, err, ErrNoGithubURLs)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadInputFile(filepath.Join(t.TempDir(), "missing.csv"))
		assert.ErrorIs(t, err, ErrInputNotFound)
	})

	t.Run("spreadsheet", func(t *testing.T) {
		_, err := ReadInputFile("projects.xlsx")
		assert.ErrorIs(t, err, ErrInputUnsupported)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ReadInputFile("projects.txt")
		assert.ErrorIs(t, err, ErrInputUnsupported)
	})
}
