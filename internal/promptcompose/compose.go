// Package promptcompose implements the Prompt Composer (C4): building
// the system/user message pair for each pipeline stage from persona
// config, selected frameworks, and a reference digest. Pure function
// of its inputs; no I/O.
package promptcompose

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/refdata"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

const maxFrameworks = 2

// Prompt is the rendered system/user message pair (§3 PromptPack).
type Prompt struct {
	System string
	User   string
}

// Composer builds PromptPacks for both pipeline stages. It holds no
// per-call state; every Compose* call is a pure function of its inputs
// plus the persona/prompt config it was constructed with.
type Composer struct {
	persona  *config.PersonaConfig
	preproc  *config.StagePrompts
	generate *config.StagePrompts
}

// NewComposer returns a Composer bound to the given persona and stage
// prompt configuration.
func NewComposer(persona *config.PersonaConfig, preproc, generate *config.StagePrompts) *Composer {
	return &Composer{persona: persona, preproc: preproc, generate: generate}
}

// PreprocessingInput carries everything Stage 1 needs to fill in the
// named substitution slots (§4.4 step 4).
type PreprocessingInput struct {
	RawContent         string
	FileType           string
	SuggestedDimension supertask.Dimension
	TargetDifficulty   supertask.Difficulty
	TargetAudience     string
	Digest             *refdata.Digest
}

// preprocessingVars is the text/template rendering context for the
// Stage-1 system and user templates.
type preprocessingVars struct {
	PersonaIdentity    string
	FileType           string
	SuggestedDimension string
	TargetDifficulty   string
	TargetAudience     string
	FrameworkSection   string
	ReferenceSection   string
	RawContent         string
	TemplateContent    string
}

// ComposePreprocessing builds the Stage-1 PromptPack (§4.4).
func (c *Composer) ComposePreprocessing(in PreprocessingInput) (Prompt, error) {
	frameworks := selectFrameworks(c.persona, in.RawContent)
	vars := preprocessingVars{
		PersonaIdentity:    personaIdentityBlock(c.persona),
		FileType:           in.FileType,
		SuggestedDimension: string(in.SuggestedDimension),
		TargetDifficulty:   string(in.TargetDifficulty),
		TargetAudience:     in.TargetAudience,
		FrameworkSection:   frameworkSection(frameworks),
		ReferenceSection:   referenceSection(in.Digest, in.SuggestedDimension),
		RawContent:         in.RawContent,
		TemplateContent:    c.preproc.TemplateSkeleton,
	}
	return c.render(c.preproc, vars)
}

// GenerationInput carries everything Stage 3 needs (§4.4 step 4).
type GenerationInput struct {
	FilledTemplate    string
	TargetDifficulty  supertask.Difficulty
	TargetAudience    string
	EstimatedDuration int
	SuggestedCoins    int
}

type generationVars struct {
	PersonaIdentity     string
	TargetDifficulty    string
	TargetAudience      string
	EstimatedDuration   int
	SuggestedCoins      int
	FilledTemplate      string
	TargetJSONStructure string
}

// ComposeGeneration builds the Stage-3 PromptPack (§4.4).
func (c *Composer) ComposeGeneration(in GenerationInput) (Prompt, error) {
	skeleton, err := config.ExampleSkeleton()
	if err != nil {
		return Prompt{}, pipelineerr.New(pipelineerr.TemplateInvalid, "cannot build target JSON skeleton", err)
	}
	skeletonJSON, err := json.MarshalIndent(skeleton, "", "  ")
	if err != nil {
		return Prompt{}, pipelineerr.New(pipelineerr.TemplateInvalid, "cannot serialize target JSON skeleton", err)
	}

	vars := generationVars{
		PersonaIdentity:     personaIdentityBlock(c.persona),
		TargetDifficulty:    string(in.TargetDifficulty),
		TargetAudience:      in.TargetAudience,
		EstimatedDuration:   in.EstimatedDuration,
		SuggestedCoins:      in.SuggestedCoins,
		FilledTemplate:      in.FilledTemplate,
		TargetJSONStructure: string(skeletonJSON),
	}
	return c.render(c.generate, vars)
}

func (c *Composer) render(sp *config.StagePrompts, vars any) (Prompt, error) {
	system, err := renderTemplate("system", sp.SystemTemplate, vars)
	if err != nil {
		return Prompt{}, err
	}
	user, err := renderTemplate("user", sp.UserTemplate, vars)
	if err != nil {
		return Prompt{}, err
	}

	prompt := Prompt{System: strings.TrimSpace(system), User: strings.TrimSpace(user)}
	if violation := firstForbiddenMatch(c.persona, prompt); violation != "" {
		return Prompt{}, pipelineerr.New(pipelineerr.PromptPolicyViolation,
			fmt.Sprintf("composed prompt contains forbidden phrase %q", violation), nil)
	}
	return prompt, nil
}

func renderTemplate(name, tmpl string, vars any) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", pipelineerr.New(pipelineerr.TemplateInvalid, fmt.Sprintf("cannot parse %s template", name), err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", pipelineerr.New(pipelineerr.TemplateInvalid, fmt.Sprintf("cannot render %s template", name), err)
	}
	return buf.String(), nil
}

// personaIdentityBlock renders the persona identity verbatim, with the
// masculine-form marker explicit so downstream review can see it was
// carried through (§4.4 step 1).
func personaIdentityBlock(p *config.PersonaConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", p.Identity.Name, p.Identity.Role)
	if p.Identity.CulturalContext != "" {
		fmt.Fprintf(&b, "Cultural context: %s.\n", p.Identity.CulturalContext)
	}
	fmt.Fprintf(&b, "Language form: %s.\n", p.Identity.LanguageForm)
	if len(p.Identity.PreferredPhrasings) > 0 {
		fmt.Fprintf(&b, "Prefer phrasings like: %s.\n", strings.Join(p.Identity.PreferredPhrasings, "; "))
	}
	return b.String()
}

// selectFrameworks scans raw for each framework's keyword triggers and
// returns up to maxFrameworks frameworks with the highest trigger
// counts, defaulting to "tiny_habits" when nothing fires (§4.4 step 2).
func selectFrameworks(p *config.PersonaConfig, raw string) []config.Framework {
	lower := strings.ToLower(raw)

	type scored struct {
		fw    config.Framework
		count int
	}
	var candidates []scored
	for _, fw := range p.Frameworks {
		count := 0
		for _, kw := range fw.KeywordTriggers {
			count += strings.Count(lower, strings.ToLower(kw))
		}
		if count > 0 {
			candidates = append(candidates, scored{fw, count})
		}
	}

	if len(candidates) == 0 {
		if fw, ok := p.FrameworkByName("tiny_habits"); ok {
			return []config.Framework{fw}
		}
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })
	out := make([]config.Framework, 0, maxFrameworks)
	for i := 0; i < len(candidates) && i < maxFrameworks; i++ {
		out = append(out, candidates[i].fw)
	}
	return out
}

func frameworkSection(frameworks []config.Framework) string {
	var b strings.Builder
	b.WriteString("FRAMEWORKS TO APPLY:\n")
	for _, fw := range frameworks {
		fmt.Fprintf(&b, "- %s\n", fw.Name)
		for _, rule := range fw.ApplicationRules {
			fmt.Fprintf(&b, "  rule: %s\n", rule)
		}
		if len(fw.SamplePrompts) > 0 {
			fmt.Fprintf(&b, "  sample question: %s\n", fw.SamplePrompts[0])
		}
	}
	return b.String()
}

func referenceSection(d *refdata.Digest, dim supertask.Dimension) string {
	if d == nil {
		return "REFERENCE MATERIAL:\n(none available)"
	}
	sub := d.ForDimension(dim)

	var b strings.Builder
	b.WriteString("REFERENCE MATERIAL:\n")
	b.WriteString("Relevant habits:\n")
	for _, h := range sub.HabitInventory {
		fmt.Fprintf(&b, "- %s (score %.1f)\n", h.Name, h.Score)
	}
	b.WriteString("Progression exemplars:\n")
	for _, pe := range sub.PathExemplars {
		fmt.Fprintf(&b, "- %s -> %s -> %s\n", pe.Levels[0], pe.Levels[1], pe.Levels[2])
	}
	if d.ObjectiveMapping != "" {
		fmt.Fprintf(&b, "Objective mapping:\n%s\n", d.ObjectiveMapping)
	}
	if d.CoachDocument != "" {
		fmt.Fprintf(&b, "Coach voice notes:\n%s\n", d.CoachDocument)
	}
	return b.String()
}

func firstForbiddenMatch(p *config.PersonaConfig, prompt Prompt) string {
	combined := prompt.System + "\n" + prompt.User
	for _, re := range p.CompiledForbidden() {
		if loc := re.FindString(combined); loc != "" {
			return loc
		}
	}
	return ""
}
