package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrianpk/celoeval/internal/evaluator"
	"github.com/adrianpk/celoeval/internal/logger"
	"github.com/adrianpk/celoeval/internal/report"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	githubURLs  string
	inputFile   string
	prompt      string
	output      string
	provider    string
	model       string
	temperature float64
	json        bool
	noMetrics   bool
	inMemory    bool
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze GitHub repositories and write score reports",
		Long: "Analyze one or more GitHub repositories. Repositories come from a " +
			"comma-separated --github-urls list or from the github columns of a CSV --input-file.",
		Example: "  celoeval analyze --github-urls celo-org/celo-composer,https://github.com/acme/dapp\n" +
			"  celoeval analyze --input-file projects.csv --output reports",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := evaluator.LoadConfig(a.configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			opts.apply(cmd, cfg)

			if err := a.setupLogging(cfg); err != nil {
				return fmt.Errorf("logging: %w", err)
			}

			urls, err := opts.repositories()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.runAnalyze(ctx, cmd, cfg, urls)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.githubURLs, "github-urls", "", "comma-separated GitHub repository URLs")
	f.StringVar(&opts.inputFile, "input-file", "", "CSV file with GitHub URLs in columns whose header contains 'github'")
	f.StringVar(&opts.prompt, "prompt", "", "path to a prompt template file")
	f.StringVar(&opts.output, "output", "", "directory for reports")
	f.StringVar(&opts.provider, "provider", "", "LLM provider: gemini or openai")
	f.StringVar(&opts.model, "model", "", "LLM model name")
	f.Float64Var(&opts.temperature, "temperature", 0, "sampling temperature (0.0 to 1.0)")
	f.BoolVar(&opts.json, "json", false, "request JSON output from the model")
	f.BoolVar(&opts.noMetrics, "no-metrics", false, "skip GitHub metrics collection")
	f.BoolVar(&opts.inMemory, "in-memory", false, "keep reports in memory and print a JSON response")
	cmd.MarkFlagsMutuallyExclusive("github-urls", "input-file")

	return cmd
}

// apply overrides cfg with the flags the user set.
func (o *analyzeOptions) apply(cmd *cobra.Command, cfg *evaluator.Config) {
	f := cmd.Flags()
	if f.Changed("prompt") {
		cfg.App.PromptPath = o.prompt
	}
	if f.Changed("output") {
		cfg.App.OutDir = o.output
	}
	if f.Changed("provider") {
		cfg.LLM.Provider = o.provider
	}
	if f.Changed("model") {
		cfg.LLM.Model = o.model
	}
	if f.Changed("temperature") {
		cfg.LLM.Temperature = o.temperature
	}
	if f.Changed("json") {
		cfg.App.JSON = o.json
	}
	if f.Changed("no-metrics") {
		cfg.Metrics.Enabled = !o.noMetrics
	}
	if f.Changed("in-memory") {
		cfg.App.InMemory = o.inMemory
	}
	cfg.Normalize()
}

func (o *analyzeOptions) repositories() ([]string, error) {
	var urls []string
	switch {
	case o.githubURLs != "":
		urls = evaluator.ParseURLList(o.githubURLs)
	case o.inputFile != "":
		read, err := evaluator.ReadInputFile(o.inputFile)
		if err != nil {
			return nil, fmt.Errorf("input file: %w", err)
		}
		urls = read
	default:
		return nil, errors.New("provide --github-urls or --input-file")
	}

	if len(urls) == 0 {
		return nil, errors.New("no repository URLs provided")
	}
	return urls, nil
}

func (a *app) runAnalyze(ctx context.Context, cmd *cobra.Command, cfg *evaluator.Config, urls []string) error {
	start := time.Now()

	client, err := a.newClient(cfg)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	var sink report.Sink
	var mem *report.MemorySink
	if cfg.App.InMemory {
		mem = report.NewMemorySink()
		sink = mem
	} else {
		fsink, err := report.NewFileSink(cfg.App.OutDir, start)
		if err != nil {
			return err
		}
		logger.Log.Infof("Reports will be written to %s", fsink.Dir)
		sink = fsink
	}

	// In-memory mode keeps stdout for the JSON response.
	progressOut := cmd.OutOrStdout()
	if cfg.App.InMemory {
		progressOut = cmd.ErrOrStderr()
	}
	con := newConsole(progressOut)

	svc, err := a.buildService(cfg, client, a.prompts, sink, evaluator.WithObserver(con.observe))
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}

	con.banner(len(urls), cfg)
	res, runErr := svc.Run(ctx, urls)

	if cfg.App.InMemory {
		if err := writeInMemoryResponse(cmd.OutOrStdout(), res, mem, runErr); err != nil {
			return err
		}
		return runErr
	}

	if errors.Is(runErr, context.Canceled) {
		con.interrupted(res)
	}
	if res.Summary.Completed > 0 {
		if err := con.scoreTable(res.Summary); err != nil {
			return err
		}
		con.reportPaths(res)
	}
	con.executionTime(time.Since(start))

	return runErr
}
