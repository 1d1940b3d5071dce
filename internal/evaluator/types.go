package evaluator

// MetricsRecord is the fixed-shape metrics snapshot of one repository.
// Sections a collector could not fetch are left at their zero value.
type MetricsRecord struct {
	Repository     RepositoryMetrics `json:"repository_metrics"`
	Links          RepositoryLinks   `json:"repository_links"`
	TopContributor *Contributor      `json:"top_contributor,omitempty"`
	PullRequests   PRStatus          `json:"pr_status"`
	Languages      []LanguageShare   `json:"language_distribution"`
	Celo           CeloEvidence      `json:"celo_evidence"`
	Codebase       CodebaseAnalysis  `json:"codebase_analysis"`
}

type RepositoryMetrics struct {
	Stars             int `json:"stars"`
	Watchers          int `json:"watchers"`
	Forks             int `json:"forks"`
	OpenIssues        int `json:"open_issues"`
	TotalContributors int `json:"total_contributors"`
}

type RepositoryLinks struct {
	GithubRepository string `json:"github_repository"`
	OwnerWebsite     string `json:"owner_website"`
	Created          string `json:"created"`
	LastUpdated      string `json:"last_updated"`
}

type Contributor struct {
	Name     string `json:"name"`
	Github   string `json:"github"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Twitter  string `json:"twitter"`
	Website  string `json:"website"`
}

type PRStatus struct {
	OpenPRs   int `json:"open_prs"`
	ClosedPRs int `json:"closed_prs"`
	MergedPRs int `json:"merged_prs"`
	TotalPRs  int `json:"total_prs"`
}

// LanguageShare is a language's share of the repository in percent.
type LanguageShare struct {
	Language string  `json:"language"`
	Percent  float64 `json:"percent"`
}

type CeloEvidence struct {
	CeloReferences      []string     `json:"celo_references"`
	AlfajoresReferences []string     `json:"alfajores_references"`
	ContractAddresses   []AddressHit `json:"contract_addresses"`
	CeloPackages        []string     `json:"celo_packages"`
	Summary             string       `json:"summary"`
}

// AddressHit lists the contract-like addresses found in one file. Addresses
// seen near a Celo keyword come first.
type AddressHit struct {
	File        string   `json:"file"`
	Addresses   []string `json:"addresses"`
	CeloContext bool     `json:"celo_context"`
}

type CodebaseAnalysis struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	MissingFeatures []string `json:"missing_features"`
	Summary         string   `json:"summary"`
}

// FetchResult is what the fetch collaborator hands to the analysis step.
type FetchResult struct {
	Repository string
	URL        string
	Content    string
	Metrics    *MetricsRecord
}
