package cli

import (
	"io/fs"

	"github.com/adrianpk/celoeval/internal/evaluator"
	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/adrianpk/celoeval/internal/report"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the collaborators commands build on. Tests swap the
// constructors to avoid network access.
type app struct {
	prompts      fs.FS
	configPath   string
	logLevel     string
	logFile      string
	newClient    func(cfg *evaluator.Config) (evaluator.Client, error)
	buildService func(cfg *evaluator.Config, client evaluator.Client, fsys fs.FS, sink report.Sink, opts ...evaluator.Option) (*evaluator.Service, error)
}

func newApp(prompts fs.FS) *app {
	return &app{
		prompts:      prompts,
		newClient:    evaluator.NewLLMClient,
		buildService: evaluator.NewService,
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "celoeval",
		Short: "Score GitHub repositories with an LLM",
		Long: "celoeval fetches GitHub repositories, asks a language model to score them " +
			"on security, functionality, readability, dependencies and Celo usage, and " +
			"writes per-repository reports plus a running summary.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "./config.yml", "path to YAML config")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also append logs to this file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAnalyzeCmd(a))
	return cmd
}

// setupLogging applies flag values over the config file's log section.
func (a *app) setupLogging(cfg *evaluator.Config) error {
	level := a.logLevel
	if level == "" {
		level = cfg.Log.Level
	}
	file := a.logFile
	if file == "" {
		file = cfg.Log.File
	}
	return logger.Init(level, file)
}

// Execute runs the CLI. prompts holds the embedded prompt templates.
func Execute(prompts fs.FS) error {
	return newRootCmd(newApp(prompts)).Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show celoeval version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("celoeval %s (%s, %s)\n", version, commit, date)
		},
	}
}
