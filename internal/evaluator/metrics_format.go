package evaluator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adrianpk/celoeval/internal/report"
)

const (
	maxReferenceFiles = 10
	maxAddressFiles   = 5
	maxReadmeAddrs    = 5
	maxOtherAddrFiles = 4
	maxOtherAddrs     = 3
	readmeFile        = "readme.md"
)

type kv struct {
	key   string
	value any
}

// FormatMetrics renders m as the markdown block appended to the prompt.
// Keys are title-cased with underscores turned into spaces; evidence lists
// are capped to keep the prompt bounded. A nil record renders as "".
func FormatMetrics(m *MetricsRecord) string {
	if m == nil {
		return ""
	}

	var lines []string
	section := func(title string, pairs []kv) {
		if len(lines) > 0 {
			title = "\n" + title
		}
		lines = append(lines, title)
		for _, p := range pairs {
			lines = append(lines, fmt.Sprintf("- %s: %v", report.TitleKey(p.key), p.value))
		}
	}

	r := m.Repository
	section("### Repository Metrics", []kv{
		{"stars", r.Stars},
		{"watchers", r.Watchers},
		{"forks", r.Forks},
		{"open_issues", r.OpenIssues},
		{"total_contributors", r.TotalContributors},
	})

	l := m.Links
	section("### Repository Links", []kv{
		{"github_repository", orNone(l.GithubRepository)},
		{"owner_website", orNone(l.OwnerWebsite)},
		{"created", orNone(l.Created)},
		{"last_updated", orNone(l.LastUpdated)},
	})

	if c := m.TopContributor; c != nil {
		section("### Top Contributor", []kv{
			{"name", c.Name},
			{"github", c.Github},
			{"company", c.Company},
			{"location", c.Location},
			{"twitter", c.Twitter},
			{"website", c.Website},
		})
	}

	p := m.PullRequests
	section("### Pull Request Status", []kv{
		{"open_prs", p.OpenPRs},
		{"closed_prs", p.ClosedPRs},
		{"merged_prs", p.MergedPRs},
		{"total_prs", p.TotalPRs},
	})

	if len(m.Languages) > 0 {
		lines = append(lines, "\n### Language Distribution")
		for _, ls := range m.Languages {
			lines = append(lines, fmt.Sprintf("- %s: %s%%", ls.Language, strconv.FormatFloat(ls.Percent, 'f', -1, 64)))
		}
	}

	lines = append(lines, formatEvidence(m.Celo)...)
	lines = append(lines, formatCodebase(m.Codebase)...)

	return strings.Join(lines, "\n")
}

func formatEvidence(ev CeloEvidence) []string {
	if ev.Summary == "" {
		return nil
	}

	lines := []string{"\n### Celo Integration Evidence", ev.Summary}

	refs := func(title string, files []string) {
		if len(files) == 0 {
			return
		}
		lines = append(lines, "\n#### "+title)
		for _, f := range capList(files, maxReferenceFiles) {
			lines = append(lines, fmt.Sprintf("- `%s`", f))
		}
	}
	refs("Files with Celo References:", ev.CeloReferences)
	refs("Files with Alfajores References:", ev.AlfajoresReferences)

	if len(ev.ContractAddresses) > 0 {
		lines = append(lines, "\n#### Contract Addresses Found:")

		var readme *AddressHit
		var others []AddressHit
		for i, hit := range ev.ContractAddresses {
			if i >= maxAddressFiles {
				break
			}
			if strings.EqualFold(hit.File, readmeFile) {
				readme = &ev.ContractAddresses[i]
				continue
			}
			others = append(others, hit)
		}

		if readme != nil {
			if readme.CeloContext {
				lines = append(lines, "- **README.md Contains Celo Contract Addresses:**")
			} else {
				lines = append(lines, "- **README.md Contains Contract Addresses:**")
			}
			for _, a := range capList(readme.Addresses, maxReadmeAddrs) {
				lines = append(lines, fmt.Sprintf("  - `%s`", a))
			}
		}

		for i, hit := range others {
			if i >= maxOtherAddrFiles {
				break
			}
			if hit.CeloContext {
				lines = append(lines, fmt.Sprintf("- File: `%s` (Celo context detected)", hit.File))
			} else {
				lines = append(lines, fmt.Sprintf("- File: `%s`", hit.File))
			}
			for _, a := range capList(hit.Addresses, maxOtherAddrs) {
				lines = append(lines, fmt.Sprintf("  - `%s`", a))
			}
		}
	}

	if len(ev.CeloPackages) > 0 {
		lines = append(lines, "\n#### Celo Packages:")
		for _, p := range ev.CeloPackages {
			lines = append(lines, fmt.Sprintf("- `%s`", p))
		}
	}

	return lines
}

func formatCodebase(c CodebaseAnalysis) []string {
	var lines []string
	list := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		lines = append(lines, "\n### "+title)
		for _, it := range items {
			lines = append(lines, "- "+it)
		}
	}
	list("Codebase Strengths", c.Strengths)
	list("Codebase Weaknesses", c.Weaknesses)
	list("Missing or Buggy Features", c.MissingFeatures)
	if c.Summary != "" {
		lines = append(lines, "\n### Codebase Summary", c.Summary)
	}
	return lines
}

func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
