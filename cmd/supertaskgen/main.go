// Command supertaskgen is the thin CLI collaborator (§6): it only
// calls pipeline.Preprocess/Generate/Pipeline and maps the returned
// report to the exit codes the external-interfaces section names. It
// is not part of the pipeline's core implementation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/llm"
	"github.com/alebairos/supertask-pipeline/internal/pipeline"
	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/platform/logger"
	"github.com/alebairos/supertask-pipeline/internal/preprocess"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

const (
	exitOK                 = 0
	exitFailure            = 1
	exitConfigInvalid      = 2
	exitEnvironmentMissing = 3
)

var (
	configDir        string
	outputDir        string
	referenceDir     string
	dimension        string
	targetDifficulty string
	targetAudience   string
	difficulties     []string
	parallelWorkers  int
	enableAudit      bool
	auditPath        string
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:   "supertaskgen",
		Short: "Generate mobile-optimized supertask documents from raw educational content",
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory holding persona.yaml, prompt templates, and schema")
	root.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "directory to write generated files into")
	root.PersistentFlags().StringVar(&referenceDir, "reference-dir", "", "directory of reference-data catalogs (optional)")
	root.PersistentFlags().StringVar(&dimension, "dimension", "", "life-area dimension for this input (physicalHealth, mentalHealth, relationships, work, spirituality)")
	root.PersistentFlags().StringVar(&targetDifficulty, "target-difficulty", "beginner", "difficulty the Stage 1 prompt targets")
	root.PersistentFlags().StringVar(&targetAudience, "target-audience", "general adult audience", "audience description injected into prompts")
	root.PersistentFlags().StringSliceVar(&difficulties, "difficulty", []string{"beginner", "advanced"}, "difficulty variants to generate (repeatable)")
	root.PersistentFlags().IntVar(&parallelWorkers, "parallel-workers", 1, "batch worker count (preprocess directory mode only)")
	root.PersistentFlags().BoolVar(&enableAudit, "enable-prompt-audit", false, "append every prompt/response pair to --audit-path")
	root.PersistentFlags().StringVar(&auditPath, "audit-path", "audit.jsonl", "prompt-audit sink path")

	exitCode := exitOK
	root.AddCommand(
		newPreprocessCommand(&exitCode),
		newGenerateCommand(&exitCode),
		newPipelineCommand(&exitCode),
	)

	if err := root.Execute(); err != nil {
		if exitCode == exitOK {
			exitCode = exitFailure
		}
	}
	return exitCode
}

func newPreprocessCommand(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess <input>",
		Short: "Stage 1: turn raw content into a filled template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, log, err := newRunner()
			if err != nil {
				*exitCode = classify(err)
				return err
			}
			defer log.Sync()

			opts := commonOptions()
			info, statErr := os.Stat(args[0])
			if statErr == nil && info.IsDir() {
				batch, err := runner.PreprocessDir(context.Background(), args[0], outputDir, opts)
				if err != nil {
					*exitCode = classify(err)
					return err
				}
				for _, f := range batch.Files {
					fmt.Printf("%s: %s -> %s\n", f.Status, f.InputPath, f.OutputPath)
				}
				if !batch.OK() {
					*exitCode = exitFailure
				}
				return nil
			}

			r, err := runner.Preprocess(context.Background(), args[0], outputDir, opts)
			if err != nil {
				*exitCode = classify(err)
				return err
			}
			fmt.Printf("%s: %s -> %s\n", r.Status, r.InputPath, r.OutputPath)
			if r.Status == preprocess.StatusFailed {
				*exitCode = exitFailure
			}
			return nil
		},
	}
}

func newGenerateCommand(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <filled-template>",
		Short: "Stage 3: turn a filled template into supertask JSON documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, log, err := newRunner()
			if err != nil {
				*exitCode = classify(err)
				return err
			}
			defer log.Sync()

			diffs, err := parseDifficulties(difficulties)
			if err != nil {
				*exitCode = exitConfigInvalid
				return err
			}

			batch, err := runner.Generate(context.Background(), args[0], outputDir, diffs, commonOptions())
			if err != nil {
				*exitCode = classify(err)
				return err
			}
			for _, r := range batch.Results {
				fmt.Printf("%s: %s -> %s\n", r.Status, r.Difficulty, r.OutputPath)
			}
			if !batch.OK() {
				*exitCode = exitFailure
			}
			return nil
		},
	}
}

func newPipelineCommand(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline <input>",
		Short: "Stage 1 then Stage 3 end to end for one input file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, log, err := newRunner()
			if err != nil {
				*exitCode = classify(err)
				return err
			}
			defer log.Sync()

			diffs, err := parseDifficulties(difficulties)
			if err != nil {
				*exitCode = exitConfigInvalid
				return err
			}

			report, err := runner.Pipeline(context.Background(), args[0], outputDir, diffs, commonOptions())
			if err != nil {
				*exitCode = classify(err)
				return err
			}
			fmt.Printf("preprocess: %s -> %s\n", report.Preprocess.Status, report.Preprocess.OutputPath)
			for _, r := range report.Generate.Results {
				fmt.Printf("generate: %s -> %s\n", r.Status, r.Difficulty)
			}
			if !report.OK() {
				*exitCode = exitFailure
			}
			return nil
		},
	}
}

// newRunner loads configuration and environment overrides through a
// config.Store (surfacing ConfigInvalid as-is, §4.1/§6) and constructs
// the shared pipeline.Runner, failing with errEnvironmentMissing when
// the LLM endpoint or credentials are absent (§6).
func newRunner() (*pipeline.Runner, *logger.Logger, error) {
	log, err := logger.New("production")
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	store := config.NewStore(configDir)
	env, err := store.EnvOverrides()
	if err != nil {
		return nil, nil, err
	}

	endpoint := strings.TrimSpace(env.LLMEndpoint)
	apiKey := strings.TrimSpace(env.LLMAPIKey)
	if endpoint == "" || apiKey == "" {
		return nil, nil, errEnvironmentMissing
	}
	if referenceDir == "" {
		referenceDir = env.ReferenceDir
	}
	if !enableAudit {
		enableAudit = env.PromptAuditEnabled
	}

	var sink *llm.AuditSink
	if enableAudit {
		sink = llm.NewAuditSink(auditPath)
	}

	return pipeline.NewRunner(configDir, endpoint, apiKey, sink, log), log, nil
}

var errEnvironmentMissing = errors.New("LLM endpoint/credentials not configured: set SUPERTASK_LLM_ENDPOINT and SUPERTASK_LLM_API_KEY")

func commonOptions() pipeline.Options {
	return pipeline.Options{
		Dimension:        supertask.Dimension(dimension),
		TargetDifficulty: supertask.Difficulty(targetDifficulty),
		TargetAudience:   targetAudience,
		ReferenceDir:     referenceDir,
		ParallelWorkers:  parallelWorkers,
		ProgressSink: func(ev pipeline.Event) {
			fmt.Printf("[%s] %s %s %s\n", ev.Stage, ev.Path, ev.Status, ev.Detail)
		},
	}
}

func parseDifficulties(raw []string) ([]supertask.Difficulty, error) {
	var out []supertask.Difficulty
	for _, d := range raw {
		switch strings.ToLower(strings.TrimSpace(d)) {
		case "beginner":
			out = append(out, supertask.Beginner)
		case "advanced":
			out = append(out, supertask.Advanced)
		default:
			return nil, fmt.Errorf("unknown difficulty %q (want beginner or advanced)", d)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no difficulties requested")
	}
	return out, nil
}

// classify maps a returned pipeline error to its exit code (§6).
func classify(err error) int {
	if errors.Is(err, errEnvironmentMissing) {
		return exitEnvironmentMissing
	}
	var pe *pipelineerr.Error
	if errors.As(err, &pe) && pe.Kind == pipelineerr.ConfigInvalid {
		return exitConfigInvalid
	}
	return exitFailure
}

