// Package generate implements the Generation Orchestrator (C10):
// driving one FilledTemplate through parsing, splitting, per-difficulty
// specialization, assembly, validation and bounded repair to emit one
// SupertaskDocument JSON file per requested difficulty (§4.10).
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/difficulty"
	"github.com/alebairos/supertask-pipeline/internal/llm"
	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/platform/logger"
	"github.com/alebairos/supertask-pipeline/internal/schema"
	"github.com/alebairos/supertask-pipeline/internal/splitter"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
	"github.com/alebairos/supertask-pipeline/internal/template"
)

// Status is the per-difficulty disposition reported for one Generate call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusRepaired Status = "repaired"
	StatusFailed   Status = "failed"
)

// Event is one progress notification emitted during Generate.
type Event struct {
	Difficulty supertask.Difficulty
	Status     Status
	Detail     string
}

// Options carries caller-supplied generation parameters.
type Options struct {
	TargetAudience string
	ProgressSink   func(Event)
}

// Report is the outcome of generating one difficulty variant.
type Report struct {
	Difficulty supertask.Difficulty
	OutputPath string
	Status     Status
	Detail     string
}

// BatchReport aggregates one Report per requested difficulty.
type BatchReport struct {
	TemplatePath string
	Results      []Report
}

// OK reports whether every requested difficulty succeeded.
func (b BatchReport) OK() bool {
	for _, r := range b.Results {
		if r.Status == StatusFailed {
			return false
		}
	}
	return true
}

const repairMaxTokens = 4096
const repairTemperature = 0.3
const schemaVersion = "1.1"

// Orchestrator wires C7/C8/C9/C11 together to generate one or more
// difficulty variants from a single filled template file.
type Orchestrator struct {
	store  *config.Store
	client *llm.Client
	log    *logger.Logger
}

// NewOrchestrator returns an Orchestrator reading config from store and
// calling the LLM through client for repair escalation.
func NewOrchestrator(store *config.Store, client *llm.Client, log *logger.Logger) *Orchestrator {
	return &Orchestrator{store: store, client: client, log: log}
}

// Generate reads the filled template at templatePath and emits one JSON
// document per requested difficulty under outputDir (§4.10 steps 1-6).
func (o *Orchestrator) Generate(ctx context.Context, templatePath, outputDir string, difficulties []supertask.Difficulty, opts Options) (BatchReport, error) {
	batch := BatchReport{TemplatePath: templatePath}
	if len(difficulties) == 0 {
		return batch, pipelineerr.New(pipelineerr.GenerationFailed, "no difficulties requested", nil).WithFile(templatePath)
	}

	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return batch, pipelineerr.New(pipelineerr.ExtractionFailed, "cannot read filled template", err).WithFile(templatePath)
	}

	persona, err := o.store.GetPersona()
	if err != nil {
		return batch, err
	}

	ft, err := template.Parse(string(raw), templatePath)
	if err != nil {
		return batch, err
	}

	// Split once (C8); each difficulty specializes (C11) its own independent
	// copy below. Split's difficulty parameter is inert (its policy does
	// not branch on difficulty), so the first requested difficulty is
	// passed as a representative value.
	baseItems, err := splitter.Split(ft, difficulties[0], persona)
	if errors.Is(err, splitter.ErrInsufficientQuiz) {
		if repairErr := o.repairInsufficientQuiz(ctx, ft, opts.TargetAudience); repairErr != nil {
			return batch, repairErr
		}
		baseItems, err = splitter.Split(ft, difficulties[0], persona)
	}
	if err != nil {
		return batch, err
	}

	spec := difficulty.NewSpecializer(persona)
	for _, diff := range difficulties {
		items := spec.Specialize(baseItems, diff)
		doc := assembleDocument(ft, items, diff, templatePath, persona)

		status, detail, verr := o.validateAndRepair(ctx, doc, persona, diff, opts.TargetAudience)
		report := Report{Difficulty: diff, Status: status, Detail: detail}
		if verr != nil {
			o.notify(opts, Event{Difficulty: diff, Status: StatusFailed, Detail: verr.Error()})
			batch.Results = append(batch.Results, report)
			continue
		}

		outPath := derivedOutputPath(templatePath, outputDir, diff)
		if err := writeDocument(outPath, doc); err != nil {
			report.Status = StatusFailed
			report.Detail = err.Error()
			o.notify(opts, Event{Difficulty: diff, Status: StatusFailed, Detail: err.Error()})
			batch.Results = append(batch.Results, report)
			continue
		}
		report.OutputPath = outPath
		o.notify(opts, Event{Difficulty: diff, Status: status, Detail: detail})
		batch.Results = append(batch.Results, report)
	}

	return batch, nil
}

// validateAndRepair runs the §4.10 step 5 state machine:
// validate -> repair-clip -> validate -> repair-llm -> validate -> fail.
func (o *Orchestrator) validateAndRepair(ctx context.Context, doc *supertask.Document, persona *config.PersonaConfig, diff supertask.Difficulty, targetAudience string) (Status, string, error) {
	if err := schema.Validate(doc, persona, diff); err == nil {
		return StatusOK, "", nil
	} else if o.log != nil {
		o.log.Info("generation validation failed, attempting repair", "stage", "repair", "difficulty", diff, "detail", err.Error())
	}

	violations := pipelineerr.Violations(schema.Validate(doc, persona, diff))
	clipToBands(doc)
	if err := schema.Validate(doc, persona, diff); err == nil {
		return StatusRepaired, summarize(violations), nil
	}

	violations = pipelineerr.Violations(schema.Validate(doc, persona, diff))
	if o.log != nil {
		o.log.Info("clip repair insufficient, escalating to LLM repair", "stage", "repair", "difficulty", diff)
	}
	if err := o.llmRepair(ctx, doc, violations, targetAudience); err != nil {
		return StatusFailed, err.Error(), err
	}
	if err := schema.Validate(doc, persona, diff); err != nil {
		msg := fmt.Sprintf("document still invalid after LLM repair: %s", err.Error())
		return StatusFailed, msg, pipelineerr.New(pipelineerr.GenerationFailed, msg, err)
	}
	return StatusRepaired, summarize(violations), nil
}

// llmRepair asks C5 to return a corrected document as JSON, quoting the
// violations and the offending document (§4.10 step 5b).
func (o *Orchestrator) llmRepair(ctx context.Context, doc *supertask.Document, violations []pipelineerr.FieldViolation, targetAudience string) error {
	docJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return pipelineerr.New(pipelineerr.GenerationFailed, "cannot marshal document for repair", err)
	}

	var b strings.Builder
	b.WriteString("The following supertask JSON document fails schema validation. ")
	if targetAudience != "" {
		fmt.Fprintf(&b, "Write for this audience: %s. ", targetAudience)
	}
	b.WriteString("Return the complete corrected JSON document only, fixing every violation below:\n\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s: %s\n", v.Path, v.Message)
	}
	b.WriteString("\nDocument:\n")
	b.Write(docJSON)

	text, err := o.client.Complete(ctx, "You are a precise JSON repair assistant.", b.String(), repairMaxTokens, repairTemperature)
	if err != nil {
		return err
	}

	var repaired supertask.Document
	if err := json.Unmarshal([]byte(text), &repaired); err != nil {
		return pipelineerr.New(pipelineerr.GenerationFailed, "LLM repair response is not valid JSON", err)
	}
	*doc = repaired
	return nil
}

// repairInsufficientQuiz asks C5 to synthesize additional quiz items
// grounded in ft's content pool when C8 surfaces fewer than 2 usable
// quiz candidates, appending them to ft.Quiz so the caller can retry
// Split once more (§4.8 edge-case policy; §8 Scenario 2).
func (o *Orchestrator) repairInsufficientQuiz(ctx context.Context, ft *supertask.FilledTemplate, targetAudience string) error {
	var pool strings.Builder
	for _, c := range ft.MainContent {
		pool.WriteString(strings.TrimSpace(c.Body))
		pool.WriteString("\n\n")
	}

	var b strings.Builder
	b.WriteString("This content has too few usable quiz items. Generate exactly 2 new quiz items grounded only in the content below. ")
	if targetAudience != "" {
		fmt.Fprintf(&b, "Write for this audience: %s. ", targetAudience)
	}
	b.WriteString("Return a JSON array of exactly 2 objects, each with fields \"question\" (15-120 characters), " +
		"\"options\" (an array of 2-4 short strings, each 3-60 characters), \"correctAnswer\" (0-based index into " +
		"options), and \"explanation\" (30-250 characters). Return JSON only, no surrounding prose.\n\nContent:\n")
	b.WriteString(pool.String())

	text, err := o.client.Complete(ctx, "You are a precise quiz-writing assistant.", b.String(), repairMaxTokens, repairTemperature)
	if err != nil {
		return err
	}

	var synthesized []supertask.QuizItem
	if err := json.Unmarshal([]byte(text), &synthesized); err != nil {
		return pipelineerr.New(pipelineerr.GenerationFailed, "quiz-repair response is not valid JSON", err)
	}
	ft.Quiz = append(ft.Quiz, synthesized...)
	return nil
}

// assembleDocument copies frontmatter fields to the document top level
// and sets the metadata provenance fields (§4.10 step 4).
func assembleDocument(ft *supertask.FilledTemplate, items []supertask.FlexibleItem, diff supertask.Difficulty, templatePath string, persona *config.PersonaConfig) *supertask.Document {
	now := time.Now()
	fm := ft.FrontMatter

	durMin, durMax := difficulty.DurationBand(diff)
	duration := clampInt(fm.EstimatedDuration, durMin, durMax)
	coinMin, coinMax := difficulty.CoinsBand(diff)
	coins := clampInt(fm.Reward, coinMin, coinMax)

	score := mobileOptimizationScore(items)

	return &supertask.Document{
		Title:             retitle(fm.Title, fm.Language, diff, persona),
		Dimension:         fm.Dimension,
		Archetype:         fm.Archetype,
		RelatedToType:     fm.RelationType,
		RelatedToID:       fm.RelationID,
		EstimatedDuration: duration,
		CoinsReward:       coins,
		FlexibleItems:     items,
		Metadata: supertask.Metadata{
			Language:                fm.Language,
			Region:                  fm.Region,
			CreatedAt:               now,
			UpdatedAt:               now,
			Version:                 schemaVersion,
			GeneratedBy:             "supertaskgen",
			GenerationTimestamp:     now,
			DifficultyLevel:         diff,
			AriPersonaApplied:       true,
			SourceTemplate:          templatePath,
			MobileOptimizationScore: &score,
		},
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// retitle strips any difficulty suffix already present (in any
// configured language) and appends the one matching diff/lang, so the
// same source template can generate both variants with a correct,
// non-duplicated suffix (§4.11 "titles differ by the difficulty suffix").
func retitle(title string, lang supertask.Language, diff supertask.Difficulty, persona *config.PersonaConfig) string {
	title = strings.TrimSpace(title)
	if persona != nil {
		for _, byDiff := range persona.DifficultySuffixes {
			for _, suffix := range byDiff {
				if suffix == "" {
					continue
				}
				title = strings.TrimSpace(strings.TrimSuffix(title, suffix))
			}
		}
	}
	if persona != nil {
		if suffix := persona.DifficultySuffix(lang, diff); suffix != "" {
			title = title + " " + suffix
		}
	}
	return title
}

// mobileOptimizationScore is the fraction of items whose primary text
// length sits at least 10% inside its character band (GLOSSARY).
func mobileOptimizationScore(items []supertask.FlexibleItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var compliant int
	for _, it := range items {
		lo, hi := bandFor(it)
		if lo == 0 && hi == 0 {
			continue
		}
		n := len(primaryText(it))
		margin := float64(hi-lo) * 0.1
		if float64(n) >= float64(lo)+margin && float64(n) <= float64(hi)-margin {
			compliant++
		}
	}
	return float64(compliant) / float64(len(items))
}

func primaryText(it supertask.FlexibleItem) string {
	if it.Type == supertask.ItemQuiz {
		return it.Question
	}
	return it.Content
}

func bandFor(it supertask.FlexibleItem) (int, int) {
	switch it.Type {
	case supertask.ItemContent:
		return 50, 300
	case supertask.ItemQuote:
		return 20, 200
	case supertask.ItemQuiz:
		return 15, 120
	default:
		return 0, 0
	}
}

// clipToBands hard-truncates any field exceeding its character band
// back into range (§4.10 step 5a "clipping to exact bands"). It cannot
// repair a field that is too short, nor a type-budget violation; those
// require LLM escalation.
func clipToBands(doc *supertask.Document) {
	for i := range doc.FlexibleItems {
		it := &doc.FlexibleItems[i]
		switch it.Type {
		case supertask.ItemContent:
			it.Content = truncateAtWord(it.Content, 300)
			it.Author = truncateAtWord(it.Author, 100)
			if len(it.Tips) > 5 {
				it.Tips = it.Tips[:5]
			}
			for j := range it.Tips {
				it.Tips[j] = truncateAtWord(it.Tips[j], 150)
			}
		case supertask.ItemQuote:
			it.Content = truncateAtWord(it.Content, 200)
			it.Author = truncateAtWord(it.Author, 100)
		case supertask.ItemQuiz:
			it.Question = truncateAtWord(it.Question, 120)
			it.Explanation = truncateAtWord(it.Explanation, 250)
			for j := range it.Options {
				it.Options[j] = truncateAtWord(it.Options[j], 60)
			}
		}
	}
}

func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.TrimSpace(s[:max])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

func summarize(violations []pipelineerr.FieldViolation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return strings.Join(parts, "; ")
}

func writeDocument(path string, doc *supertask.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pipelineerr.New(pipelineerr.GenerationFailed, "cannot create output directory", err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return pipelineerr.New(pipelineerr.GenerationFailed, "cannot marshal document", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return pipelineerr.New(pipelineerr.GenerationFailed, "cannot write document", err)
	}
	return nil
}

// derivedOutputPath follows §6's "<stem>_<difficulty>.json" filename
// pattern, deriving stem from the input template's base name.
func derivedOutputPath(templatePath, outputDir string, diff supertask.Difficulty) string {
	base := strings.TrimSuffix(filepath.Base(templatePath), filepath.Ext(templatePath))
	base = strings.TrimSuffix(base, ".template")
	base = strings.TrimSuffix(base, ".filled")
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.json", base, diff))
}

func (o *Orchestrator) notify(opts Options, ev Event) {
	if opts.ProgressSink != nil {
		opts.ProgressSink(ev)
	}
	if o.log != nil {
		o.log.Info("generate difficulty", "difficulty", ev.Difficulty, "status", ev.Status, "detail", ev.Detail)
	}
}
