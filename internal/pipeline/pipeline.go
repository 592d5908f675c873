// Package pipeline is the thin command surface the CLI collaborator
// calls (§6): Preprocess, Generate, and Pipeline, each wrapping the
// Preprocessing Orchestrator (C6) and Generation Orchestrator (C10)
// behind the three operations named in the external-interfaces section.
package pipeline

import (
	"context"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/generate"
	"github.com/alebairos/supertask-pipeline/internal/llm"
	"github.com/alebairos/supertask-pipeline/internal/platform/logger"
	"github.com/alebairos/supertask-pipeline/internal/preprocess"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

// Options is the enumerated configuration bag passed to every
// operation (§6 "options is an enumerated configuration bag").
// Prompt-audit enablement is a Runner-construction-time concern (see
// NewRunner's auditSink parameter), not a per-call one, so it has no
// field here.
type Options struct {
	Dimension        supertask.Dimension
	TargetDifficulty supertask.Difficulty
	TargetAudience   string
	ReferenceDir     string
	ParallelWorkers  int
	ProgressSink     func(Event)
}

// Event unifies the preprocess and generate progress notifications
// into the one callback shape §6 exposes to the CLI collaborator.
type Event struct {
	Stage  string // "preprocess" or "generate"
	Path   string
	Status string
	Detail string
}

// Runner holds the shared config store and LLM client used by every
// operation, so the CLI collaborator constructs one Runner at startup
// from its environment overrides.
type Runner struct {
	store  *config.Store
	client *llm.Client
	log    *logger.Logger
}

// NewRunner returns a Runner backed by the config documents under
// configDir and an LLM client hitting endpoint with apiKey.
func NewRunner(configDir, endpoint, apiKey string, auditSink *llm.AuditSink, log *logger.Logger) *Runner {
	var opts []llm.Option
	if auditSink != nil {
		opts = append(opts, llm.WithAuditSink(auditSink))
	}
	return &Runner{
		store:  config.NewStore(configDir),
		client: llm.NewClient(endpoint, apiKey, opts...),
		log:    log,
	}
}

// Preprocess runs Stage 1 over a single input file (§6
// "preprocess(input_path, output_dir, options) -> report").
func (r *Runner) Preprocess(ctx context.Context, inputPath, outputDir string, opts Options) (preprocess.Report, error) {
	o := preprocess.NewOrchestrator(r.store, r.client, r.log)
	return o.Preprocess(ctx, inputPath, outputDir, toPreprocessOptions(opts))
}

// PreprocessDir runs Stage 1 over every file directly under dir.
func (r *Runner) PreprocessDir(ctx context.Context, dir, outputDir string, opts Options) (preprocess.BatchReport, error) {
	o := preprocess.NewOrchestrator(r.store, r.client, r.log)
	return o.PreprocessDir(ctx, dir, outputDir, toPreprocessOptions(opts))
}

// Generate runs Stage 3 over a single filled template (§6
// "generate(template_path, output_dir, difficulties, options) -> report").
func (r *Runner) Generate(ctx context.Context, templatePath, outputDir string, difficulties []supertask.Difficulty, opts Options) (generate.BatchReport, error) {
	o := generate.NewOrchestrator(r.store, r.client, r.log)
	return o.Generate(ctx, templatePath, outputDir, difficulties, toGenerateOptions(opts))
}

// PipelineReport is the combined outcome of running Preprocess then
// Generate against one input file.
type PipelineReport struct {
	Preprocess preprocess.Report
	Generate   generate.BatchReport
}

// OK reports whether every stage of the combined run succeeded.
func (r PipelineReport) OK() bool {
	if r.Preprocess.Status == preprocess.StatusFailed {
		return false
	}
	return r.Generate.OK()
}

// Pipeline runs Stage 1 then Stage 3 end to end for one input file
// (§6 "pipeline(input_path, output_dir, difficulties, options) -> report").
func (r *Runner) Pipeline(ctx context.Context, inputPath, outputDir string, difficulties []supertask.Difficulty, opts Options) (PipelineReport, error) {
	var report PipelineReport

	preReport, err := r.Preprocess(ctx, inputPath, outputDir, opts)
	report.Preprocess = preReport
	if err != nil {
		return report, err
	}

	genBatch, err := r.Generate(ctx, preReport.OutputPath, outputDir, difficulties, opts)
	report.Generate = genBatch
	if err != nil {
		return report, err
	}
	return report, nil
}

func toPreprocessOptions(opts Options) preprocess.Options {
	var sink func(preprocess.Event)
	if opts.ProgressSink != nil {
		sink = func(ev preprocess.Event) {
			opts.ProgressSink(Event{Stage: "preprocess", Path: ev.Path, Status: string(ev.Status), Detail: ev.Detail})
		}
	}
	return preprocess.Options{
		Dimension:        opts.Dimension,
		TargetDifficulty: opts.TargetDifficulty,
		TargetAudience:   opts.TargetAudience,
		ReferenceDir:     opts.ReferenceDir,
		ParallelWorkers:  opts.ParallelWorkers,
		ProgressSink:     sink,
	}
}

func toGenerateOptions(opts Options) generate.Options {
	var sink func(generate.Event)
	if opts.ProgressSink != nil {
		sink = func(ev generate.Event) {
			opts.ProgressSink(Event{Stage: "generate", Path: string(ev.Difficulty), Status: string(ev.Status), Detail: ev.Detail})
		}
	}
	return generate.Options{
		TargetAudience: opts.TargetAudience,
		ProgressSink:   sink,
	}
}
