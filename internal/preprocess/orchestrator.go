// Package preprocess implements the Preprocessing Orchestrator (C6):
// driving one input file through extraction, prompt composition, the
// LLM call, and template validation to produce a filled intermediate
// template (§4.6).
package preprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/extract"
	"github.com/alebairos/supertask-pipeline/internal/llm"
	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/platform/logger"
	"github.com/alebairos/supertask-pipeline/internal/promptcompose"
	"github.com/alebairos/supertask-pipeline/internal/refdata"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
	"github.com/alebairos/supertask-pipeline/internal/template"
)

const minContentSections = 3
const minQuizItems = 2
const maxQuizItems = 4

// Status is the per-file disposition reported for one Preprocess call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusRepaired Status = "repaired"
	StatusFailed   Status = "failed"
)

// Options carries the caller-supplied parameters C6 needs but cannot
// infer from the input file alone (§4.4 step 4's dimension/difficulty
// targets; the spec leaves dimension/audience detection to the caller).
type Options struct {
	Dimension        supertask.Dimension
	TargetDifficulty supertask.Difficulty
	TargetAudience   string
	ReferenceDir     string // optional; empty skips reference-digest injection
	ParallelWorkers  int    // batch mode only; <=1 runs sequentially
	ProgressSink     func(Event)
}

// Event is one progress notification emitted during Preprocess/PreprocessDir.
type Event struct {
	Path   string
	Status Status
	Detail string
}

// Report is the outcome of preprocessing a single file.
type Report struct {
	InputPath  string
	OutputPath string
	Status     Status
	Detail     string
}

// BatchReport aggregates one Report per file processed by PreprocessDir.
type BatchReport struct {
	Files []Report
}

// OK reports whether every file in the batch succeeded (ok or repaired).
func (b BatchReport) OK() bool {
	for _, f := range b.Files {
		if f.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Orchestrator wires C3/C4/C5/C7 together to preprocess one or many files.
type Orchestrator struct {
	store  *config.Store
	client *llm.Client
	log    *logger.Logger
}

// NewOrchestrator returns an Orchestrator reading config from store and
// calling the LLM through client.
func NewOrchestrator(store *config.Store, client *llm.Client, log *logger.Logger) *Orchestrator {
	return &Orchestrator{store: store, client: client, log: log}
}

// Preprocess drives §4.6's per-file steps 1-5 for a single input path,
// writing the filled template to a stable path under outputDir.
func (o *Orchestrator) Preprocess(ctx context.Context, inputPath, outputDir string, opts Options) (Report, error) {
	report := Report{InputPath: inputPath}

	filled, status, detail, err := o.preprocessOne(ctx, inputPath, opts)
	report.Status = status
	report.Detail = detail
	if err != nil {
		o.notify(opts, Event{Path: inputPath, Status: StatusFailed, Detail: err.Error()})
		return report, err
	}

	outPath := derivedOutputPath(inputPath, outputDir)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		perr := pipelineerr.New(pipelineerr.ExtractionFailed, "cannot create output directory", err).WithFile(inputPath)
		report.Status = StatusFailed
		o.notify(opts, Event{Path: inputPath, Status: StatusFailed, Detail: perr.Error()})
		return report, perr
	}
	if err := os.WriteFile(outPath, []byte(filled), 0o644); err != nil {
		perr := pipelineerr.New(pipelineerr.ExtractionFailed, "cannot write filled template", err).WithFile(inputPath)
		report.Status = StatusFailed
		o.notify(opts, Event{Path: inputPath, Status: StatusFailed, Detail: perr.Error()})
		return report, perr
	}
	report.OutputPath = outPath
	o.notify(opts, Event{Path: inputPath, Status: report.Status, Detail: detail})
	return report, nil
}

// PreprocessDir runs Preprocess over every regular file directly under
// dir. When opts.ParallelWorkers > 1 it fans out via a bounded
// errgroup-limited worker pool; either way, a single file's failure is
// reported but never aborts its siblings (§4.6 "best-effort").
func (o *Orchestrator) PreprocessDir(ctx context.Context, dir, outputDir string, opts Options) (BatchReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return BatchReport{}, pipelineerr.New(pipelineerr.ExtractionFailed, "cannot list input directory", err).WithFile(dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	reports := make([]Report, len(paths))

	if opts.ParallelWorkers <= 1 {
		for i, p := range paths {
			r, _ := o.Preprocess(ctx, p, outputDir, opts)
			reports[i] = r
		}
		return BatchReport{Files: reports}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.ParallelWorkers)
	var mu sync.Mutex

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				reports[i] = Report{InputPath: p, Status: StatusFailed, Detail: gctx.Err().Error()}
				mu.Unlock()
				return nil
			}
			r, _ := o.Preprocess(gctx, p, outputDir, opts)
			mu.Lock()
			reports[i] = r
			mu.Unlock()
			return nil // never propagate: one file's failure must not cancel siblings
		})
	}
	_ = g.Wait()

	return BatchReport{Files: reports}, nil
}

// preprocessOne runs §4.6 steps 1-4 and returns the filled template
// text (frontmatter + body, as returned by the LLM) on success.
func (o *Orchestrator) preprocessOne(ctx context.Context, inputPath string, opts Options) (string, Status, string, error) {
	persona, err := o.store.GetPersona()
	if err != nil {
		return "", StatusFailed, "", err
	}
	prompts, err := o.store.GetPreprocessingPrompts()
	if err != nil {
		return "", StatusFailed, "", err
	}

	raw, err := extract.Extract(ctx, inputPath)
	if err != nil {
		return "", StatusFailed, "", err
	}

	var digest *refdata.Digest
	if opts.ReferenceDir != "" {
		digest, err = refdata.NewFilter(opts.ReferenceDir).Digest()
		if err != nil {
			return "", StatusFailed, "", err
		}
	}

	composer := promptcompose.NewComposer(persona, prompts, nil)
	prompt, err := composer.ComposePreprocessing(promptcompose.PreprocessingInput{
		RawContent:         raw.Text,
		FileType:           string(detectFormat(inputPath)),
		SuggestedDimension: opts.Dimension,
		TargetDifficulty:   opts.TargetDifficulty,
		TargetAudience:     opts.TargetAudience,
		Digest:             digest,
	})
	if err != nil {
		return "", StatusFailed, "", err
	}

	text, err := o.client.Complete(ctx, prompt.System, prompt.User, completionMaxTokens, completionTemperature)
	if err != nil {
		return "", StatusFailed, "", err
	}

	if violations := validateFilledTemplate(text, persona, opts.TargetDifficulty); len(violations) > 0 {
		repairPrompt := prompt.User + "\n\n" + repairSuffix(violations)
		repairedText, rerr := o.client.Complete(ctx, prompt.System, repairPrompt, completionMaxTokens, completionTemperature)
		if rerr != nil {
			return "", StatusFailed, "", rerr
		}
		if again := validateFilledTemplate(repairedText, persona, opts.TargetDifficulty); len(again) > 0 {
			msg := fmt.Sprintf("template still invalid after repair: %s", strings.Join(again, "; "))
			return "", StatusFailed, msg, pipelineerr.New(pipelineerr.TemplateInvalid, msg, nil).WithFile(inputPath)
		}
		return repairedText, StatusRepaired, strings.Join(violations, "; "), nil
	}

	return text, StatusOK, "", nil
}

// validateFilledTemplate runs the §4.6 step 4 content checks against a
// candidate filled template, returning a human-readable violation per
// defect (empty when the template is valid).
func validateFilledTemplate(text string, persona *config.PersonaConfig, diff supertask.Difficulty) []string {
	ft, err := template.Parse(text, "")
	if err != nil {
		return []string{err.Error()}
	}

	var violations []string
	if len(ft.MainContent) < minContentSections {
		violations = append(violations, fmt.Sprintf("main content has %d sections, need at least %d", len(ft.MainContent), minContentSections))
	}
	if n := len(ft.Quiz); n < minQuizItems || n > maxQuizItems {
		violations = append(violations, fmt.Sprintf("quiz has %d items, need %d-%d", n, minQuizItems, maxQuizItems))
	}
	suffix := persona.DifficultySuffix(ft.FrontMatter.Language, diff)
	if suffix != "" && !strings.HasSuffix(strings.TrimSpace(ft.FrontMatter.Title), suffix) {
		violations = append(violations, fmt.Sprintf("title %q does not end with difficulty suffix %q", ft.FrontMatter.Title, suffix))
	}
	if ft.FrontMatter.Title == "" {
		violations = append(violations, "frontmatter title is empty")
	}
	if ft.FrontMatter.Dimension == "" {
		violations = append(violations, "frontmatter dimension is empty")
	}
	return violations
}

func repairSuffix(violations []string) string {
	var b strings.Builder
	b.WriteString("The previous response had these defects. Fix them and return the complete corrected template:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	return b.String()
}

func (o *Orchestrator) notify(opts Options, ev Event) {
	if opts.ProgressSink != nil {
		opts.ProgressSink(ev)
	}
	if o.log != nil {
		o.log.Info("preprocess file", "path", ev.Path, "status", ev.Status, "detail", ev.Detail)
	}
}

func derivedOutputPath(inputPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(outputDir, base+".template.md")
}

func detectFormat(path string) supertask.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return supertask.FormatMarkdown
	case ".txt":
		return supertask.FormatText
	case ".json":
		return supertask.FormatJSON
	case ".pdf":
		return supertask.FormatPDF
	case ".docx":
		return supertask.FormatDOCX
	default:
		return supertask.FormatText
	}
}

const (
	completionMaxTokens   = 4096
	completionTemperature = 0.7
)
