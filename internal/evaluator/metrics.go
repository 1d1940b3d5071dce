package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/google/go-github/v61/github"
	"github.com/shurcooL/graphql"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	githubGraphQLURL  = "https://api.github.com/graphql"
	maxEvidenceSize   = 100000
	maxAddressesShown = 5
)

var (
	addressRe     = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	celoContextRe = regexp.MustCompile(`(?i)(?:celo|alfajores|baklava|contract|deploy|address).{0,100}(0x[a-fA-F0-9]{40})`)

	evidencePaths = []string{
		"contracts",
		"src/contracts",
		"src/utils",
		"src/lib",
		"src/helpers",
		"src/services",
		"config",
		"src/config",
	}

	configFiles = []string{".env.example", "config.json", "config.js", "config.py", ".env.sample"}
)

// MetricsSource collects the metrics record of one repository.
type MetricsSource interface {
	Collect(ctx context.Context, owner, name string) (*MetricsRecord, error)
}

// MetricsCollector reads repository metrics from the GitHub REST and
// GraphQL APIs. Sections are fetched on a bounded worker pool and a failing
// section never cancels its siblings.
type MetricsCollector struct {
	rest    *github.Client
	gql     *graphql.Client
	workers int
	cache   *diskCache
	now     func() time.Time
}

func newGitHubClients(ctx context.Context, token string) (*github.Client, *graphql.Client) {
	httpClient := http.DefaultClient
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, src)
	} else {
		logger.Log.Warn("GitHub client initialized without token (rate-limited)")
	}
	return github.NewClient(httpClient), graphql.NewClient(githubGraphQLURL, httpClient)
}

func NewMetricsCollector(token string, cfg Metrics) *MetricsCollector {
	rest, gql := newGitHubClients(context.Background(), token)

	cache, err := newDiskCache(cfg.CacheTTL)
	if err != nil {
		logger.Log.Warnf("Metrics cache disabled: %v", err)
		cache = nil
	}

	return &MetricsCollector{
		rest:    rest,
		gql:     gql,
		workers: clampInt(cfg.Workers, 1, maxMetricsWorkers),
		cache:   cache,
		now:     time.Now,
	}
}

func (m *MetricsCollector) Collect(ctx context.Context, owner, name string) (*MetricsRecord, error) {
	key := []string{"metrics", owner, name + ".json"}
	if m.cache != nil {
		var cached MetricsRecord
		hit, err := m.cache.get(&cached, key...)
		if err != nil {
			logger.Log.Warnf("Cache read error: %v", err)
		}
		if hit {
			logger.Log.Debugf("Metrics cache hit for %s/%s", owner, name)
			return &cached, nil
		}
	}

	repo, _, err := m.rest.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}

	rec := &MetricsRecord{
		Repository: RepositoryMetrics{
			Stars:      repo.GetStargazersCount(),
			Watchers:   repo.GetSubscribersCount(),
			Forks:      repo.GetForksCount(),
			OpenIssues: repo.GetOpenIssuesCount(),
		},
		Links: RepositoryLinks{
			GithubRepository: repo.GetHTMLURL(),
			OwnerWebsite:     repo.GetOwner().GetHTMLURL(),
			Created:          formatTimestamp(repo.GetCreatedAt()),
			LastUpdated:      formatTimestamp(repo.GetUpdatedAt()),
		},
	}

	readme, readmeErr := m.readme(ctx, owner, name)
	if readmeErr != nil {
		logger.Log.Debugf("No README for %s/%s: %v", owner, name, readmeErr)
	}

	g := new(errgroup.Group)
	g.SetLimit(m.workers)

	run := func(section string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				logger.Log.Warnf("Error getting %s for %s/%s: %v", section, owner, name, err)
			}
			return nil
		})
	}

	run("contributors", func() error {
		n, top, err := m.contributors(ctx, owner, name)
		rec.Repository.TotalContributors = n
		rec.TopContributor = top
		return err
	})
	run("language distribution", func() error {
		langs, _, err := m.rest.Repositories.ListLanguages(ctx, owner, name)
		if err != nil {
			return err
		}
		rec.Languages = languageShares(langs)
		return nil
	})
	run("PR metrics", func() error {
		pr, err := m.pullRequests(ctx, owner, name)
		rec.PullRequests = pr
		return err
	})
	run("codebase analysis", func() error {
		rec.Codebase = analyzeCodebase(m.codebaseFacts(ctx, repo, readme, readmeErr == nil))
		return nil
	})
	run("Celo evidence", func() error {
		rec.Celo = m.celoEvidence(ctx, owner, name, readme, readmeErr == nil)
		return nil
	})

	_ = g.Wait()

	if m.cache != nil {
		if err := m.cache.put(rec, key...); err != nil {
			logger.Log.Warnf("Cache write error: %v", err)
		}
	}

	return rec, nil
}

func (m *MetricsCollector) readme(ctx context.Context, owner, name string) (string, error) {
	rc, _, err := m.rest.Repositories.GetReadme(ctx, owner, name, nil)
	if err != nil {
		return "", err
	}
	return rc.GetContent()
}

func (m *MetricsCollector) contributors(ctx context.Context, owner, name string) (int, *Contributor, error) {
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: 100}}

	var all []*github.Contributor
	for {
		page, resp, err := m.rest.Repositories.ListContributors(ctx, owner, name, opts)
		if err != nil {
			return len(all), nil, err
		}
		all = append(all, page...)
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(all) == 0 {
		return 0, nil, nil
	}

	login := all[0].GetLogin()
	top := &Contributor{
		Name:     login,
		Github:   all[0].GetHTMLURL(),
		Company:  "N/A",
		Location: "N/A",
		Twitter:  "N/A",
		Website:  "N/A",
	}

	user, _, err := m.rest.Users.Get(ctx, login)
	if err != nil {
		return len(all), top, err
	}
	top.Name = orNA(user.GetName(), login)
	top.Github = orNA(user.GetHTMLURL(), top.Github)
	top.Company = orNA(user.GetCompany(), "N/A")
	top.Location = orNA(user.GetLocation(), "N/A")
	top.Twitter = orNA(user.GetTwitterUsername(), "N/A")
	top.Website = orNA(user.GetBlog(), "N/A")

	return len(all), top, nil
}

type prCountQuery struct {
	Repository struct {
		Open struct {
			TotalCount int
		} `graphql:"open: pullRequests(states: OPEN)"`
		Closed struct {
			TotalCount int
		} `graphql:"closed: pullRequests(states: CLOSED)"`
		Merged struct {
			TotalCount int
		} `graphql:"merged: pullRequests(states: MERGED)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// pullRequests counts PRs by state. Closed includes merged PRs.
func (m *MetricsCollector) pullRequests(ctx context.Context, owner, name string) (PRStatus, error) {
	var q prCountQuery
	vars := map[string]interface{}{
		"owner": graphql.String(owner),
		"name":  graphql.String(name),
	}
	if err := m.gql.Query(ctx, &q, vars); err != nil {
		return PRStatus{}, fmt.Errorf("graphql query: %w", err)
	}
	return prStatus(q.Repository.Open.TotalCount, q.Repository.Closed.TotalCount, q.Repository.Merged.TotalCount), nil
}

func prStatus(open, closedOnly, merged int) PRStatus {
	closed := closedOnly + merged
	return PRStatus{
		OpenPRs:   open,
		ClosedPRs: closed,
		MergedPRs: merged,
		TotalPRs:  open + closed,
	}
}

func (m *MetricsCollector) exists(ctx context.Context, owner, name, path string) bool {
	_, _, _, err := m.rest.Repositories.GetContents(ctx, owner, name, path, nil)
	return err == nil
}

func (m *MetricsCollector) codebaseFacts(ctx context.Context, repo *github.Repository, readme string, hasReadme bool) codebaseFacts {
	owner, name := repo.GetOwner().GetLogin(), repo.GetName()
	has := func(paths ...string) string {
		for _, p := range paths {
			if m.exists(ctx, owner, name, p) {
				return p
			}
		}
		return ""
	}

	f := codebaseFacts{
		Stars:        repo.GetStargazersCount(),
		Forks:        repo.GetForksCount(),
		OpenIssues:   repo.GetOpenIssuesCount(),
		HasReadme:    hasReadme,
		ReadmeLen:    len(readme),
		HasDocs:      has("docs", "documentation") != "",
		Contributing: has("CONTRIBUTING.md") != "",
		Tests:        has("tests", "test", "__tests__") != "",
		CI:           has(".github/workflows", ".travis.yml", ".circleci"),
		Config:       has(configFiles...) != "",
		Container:    has("Dockerfile", "docker-compose.yml") != "",
	}
	if ts := repo.GetUpdatedAt(); !ts.IsZero() {
		f.DaysSinceUpdate = int(m.now().Sub(ts.Time).Hours() / 24)
		f.KnownUpdate = true
	}
	if _, _, err := m.rest.Repositories.License(ctx, owner, name); err == nil {
		f.License = true
	}
	return f
}

func (m *MetricsCollector) fileText(ctx context.Context, owner, name, path string) (string, error) {
	fc, _, _, err := m.rest.Repositories.GetContents(ctx, owner, name, path, nil)
	if err != nil {
		return "", err
	}
	if fc == nil {
		return "", errors.New("not a file: " + path)
	}
	return fc.GetContent()
}

func (m *MetricsCollector) celoEvidence(ctx context.Context, owner, name, readme string, hasReadme bool) CeloEvidence {
	var ev CeloEvidence

	if hasReadme {
		scanEvidence("README.md", readme, &ev)
	}

	if pkg, err := m.fileText(ctx, owner, name, "package.json"); err == nil {
		ev.CeloPackages = celoPackages([]byte(pkg))
	} else {
		logger.Log.Debugf("Error checking package.json: %v", err)
	}

	for _, dir := range evidencePaths {
		file, entries, _, err := m.rest.Repositories.GetContents(ctx, owner, name, dir, nil)
		if err != nil {
			continue
		}
		if file != nil {
			entries = []*github.RepositoryContent{file}
		}
		for _, e := range entries {
			if e.GetType() != "file" || e.GetSize() >= maxEvidenceSize {
				continue
			}
			text, err := m.fileText(ctx, owner, name, e.GetPath())
			if err != nil {
				continue
			}
			scanEvidence(e.GetPath(), text, &ev)
		}
	}

	ev.Summary = celoSummary(ev)
	return ev
}

// scanEvidence records Celo and Alfajores mentions and contract-like
// addresses found in one file.
func scanEvidence(path, content string, ev *CeloEvidence) {
	text := strings.ToLower(content)

	if strings.Contains(text, "celo") && !slices.Contains(ev.CeloReferences, path) {
		ev.CeloReferences = append(ev.CeloReferences, path)
	}
	if strings.Contains(text, "alfajores") && !slices.Contains(ev.AlfajoresReferences, path) {
		ev.AlfajoresReferences = append(ev.AlfajoresReferences, path)
	}

	all := addressRe.FindAllString(text, -1)
	if len(all) == 0 {
		return
	}

	var contextual []string
	for _, m := range celoContextRe.FindAllStringSubmatch(text, -1) {
		contextual = append(contextual, m[1])
	}

	addrs := dedupe(append(contextual, all...))
	if len(addrs) > maxAddressesShown {
		addrs = addrs[:maxAddressesShown]
	}
	ev.ContractAddresses = append(ev.ContractAddresses, AddressHit{
		File:        path,
		Addresses:   addrs,
		CeloContext: len(contextual) > 0,
	})
}

func celoSummary(ev CeloEvidence) string {
	var parts []string
	if n := len(ev.CeloReferences); n > 0 {
		parts = append(parts, fmt.Sprintf("Celo references found in %d files", n))
	}
	if n := len(ev.AlfajoresReferences); n > 0 {
		parts = append(parts, fmt.Sprintf("Alfajores testnet references found in %d files", n))
	}
	if n := len(ev.ContractAddresses); n > 0 {
		parts = append(parts, fmt.Sprintf("Contract addresses found in %d files", n))
	}
	if len(ev.CeloPackages) > 0 {
		parts = append(parts, "Celo packages found: "+strings.Join(ev.CeloPackages, ", "))
	}
	if len(parts) == 0 {
		return "No direct evidence of Celo integration found"
	}
	return strings.Join(parts, ". ")
}

// celoPackages lists dependency names mentioning celo, sorted.
func celoPackages(packageJSON []byte) []string {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(packageJSON, &pkg); err != nil {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	for _, deps := range []map[string]string{pkg.Dependencies, pkg.DevDependencies} {
		for dep := range deps {
			if strings.Contains(strings.ToLower(dep), "celo") && !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
			}
		}
	}
	sort.Strings(out)
	return out
}

// languageShares converts byte counts into percentages rounded to two
// decimals, largest first.
func languageShares(bytesByLang map[string]int) []LanguageShare {
	total := 0
	for _, n := range bytesByLang {
		total += n
	}
	if total == 0 {
		return nil
	}

	out := make([]LanguageShare, 0, len(bytesByLang))
	for lang, n := range bytesByLang {
		pct := math.Round(float64(n)/float64(total)*100*100) / 100
		out = append(out, LanguageShare{Language: lang, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percent != out[j].Percent {
			return out[i].Percent > out[j].Percent
		}
		return out[i].Language < out[j].Language
	})
	return out
}

type codebaseFacts struct {
	KnownUpdate     bool
	DaysSinceUpdate int
	Stars           int
	Forks           int
	OpenIssues      int
	HasReadme       bool
	ReadmeLen       int
	HasDocs         bool
	Contributing    bool
	License         bool
	Tests           bool
	CI              string // the CI marker found, empty when none
	Config          bool
	Container       bool
}

func analyzeCodebase(f codebaseFacts) CodebaseAnalysis {
	a := CodebaseAnalysis{}
	strength := func(s string) { a.Strengths = append(a.Strengths, s) }
	weakness := func(s string) { a.Weaknesses = append(a.Weaknesses, s) }
	missing := func(s string) { a.MissingFeatures = append(a.MissingFeatures, s) }

	if f.KnownUpdate {
		switch {
		case f.DaysSinceUpdate < 30:
			strength("Active development (updated within the last month)")
		case f.DaysSinceUpdate < 180:
			strength("Maintained (updated within the last 6 months)")
		default:
			weakness(fmt.Sprintf("Limited recent activity (last updated %d days ago)", f.DaysSinceUpdate))
		}
	}

	switch {
	case f.Stars > 100:
		strength(fmt.Sprintf("Strong community interest (%d stars)", f.Stars))
	case f.Stars < 10:
		weakness("Limited community adoption")
	}
	if f.Forks > 50 {
		strength(fmt.Sprintf("Active collaboration (%d forks)", f.Forks))
	}

	switch {
	case f.OpenIssues > 50:
		weakness(fmt.Sprintf("Large number of open issues (%d)", f.OpenIssues))
	case f.OpenIssues > 0 && f.OpenIssues < 5:
		strength("Few open issues")
	}

	switch {
	case !f.HasReadme:
		weakness("Missing README")
	case f.ReadmeLen > 2000:
		strength("Comprehensive README documentation")
	case f.ReadmeLen < 500:
		weakness("Minimal README documentation")
	}

	if f.HasDocs {
		strength("Dedicated documentation directory")
	} else {
		weakness("No dedicated documentation directory")
	}

	if f.Contributing {
		strength("Clear contribution guidelines")
	} else {
		weakness("Missing contribution guidelines")
	}

	if f.License {
		strength("Properly licensed")
	} else {
		weakness("Missing license information")
	}

	if f.Tests {
		strength("Includes test suite")
	} else {
		weakness("Missing tests")
		missing("Test suite implementation")
	}

	switch f.CI {
	case ".github/workflows":
		strength("GitHub Actions CI/CD integration")
	case ".travis.yml":
		strength("Travis CI integration")
	case ".circleci":
		strength("CircleCI integration")
	default:
		weakness("No CI/CD configuration")
		missing("CI/CD pipeline integration")
	}

	if f.Config {
		strength("Configuration management")
	} else {
		missing("Configuration file examples")
	}

	if f.Container {
		strength("Docker containerization")
	} else {
		missing("Containerization")
	}

	a.Summary = codebaseSummary(a, f)
	return a
}

func codebaseSummary(a CodebaseAnalysis, f codebaseFacts) string {
	good := len(a.Strengths)

	var b strings.Builder
	b.WriteString("The repository shows ")
	switch {
	case good > 7:
		b.WriteString("strong development practices with ")
	case good > 4:
		b.WriteString("decent development practices with ")
	default:
		b.WriteString("basic development practices with ")
	}

	var with []string
	if f.HasReadme {
		with = append(with, "documentation")
	}
	if f.Tests {
		with = append(with, "testing")
	}
	if f.CI != "" {
		with = append(with, "CI/CD integration")
	}
	s := strings.TrimRight(b.String()+strings.Join(with, ", "), ", ")
	s += ". "

	if len(a.Weaknesses) > 0 {
		s += fmt.Sprintf("Areas for improvement include %s. ", strings.Join(capList(a.Weaknesses, 3), ", "))
	}
	if f.Stars > 0 || f.Forks > 0 {
		s += fmt.Sprintf("The project has gained community interest with %d stars and %d forks.", f.Stars, f.Forks)
	}
	return s
}

func formatTimestamp(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339)
}

func orNA(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
