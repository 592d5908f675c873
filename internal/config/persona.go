package config

import (
	"fmt"
	"regexp"

	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

// EngagementStageOrder orders the word-count budgets that must be
// monotonically nondecreasing (§3 PersonaConfig invariant).
var EngagementStageOrder = []string{"opening", "body", "closing"}

// Identity is the persona's voice and vocabulary guardrails.
type Identity struct {
	Name               string   `yaml:"name" validate:"required"`
	Role               string   `yaml:"role" validate:"required"`
	LanguageForm       string   `yaml:"language_form" validate:"required,oneof=masculine"`
	CulturalContext    string   `yaml:"cultural_context"`
	ForbiddenPhrasings []string `yaml:"forbidden_phrasings"`
	PreferredPhrasings []string `yaml:"preferred_phrasings"`
}

// CommunicationRules carries per-stage word budgets and the minimum
// question ratio the composed prompts must encourage.
type CommunicationRules struct {
	WordBudgets       map[string]int `yaml:"word_budgets"`
	QuestionRatioMin  float64        `yaml:"question_ratio_min"`
}

// Framework is one of the nine named coaching lenses (§3/GLOSSARY).
type Framework struct {
	Name             string   `yaml:"name" validate:"required"`
	KeywordTriggers  []string `yaml:"keyword_triggers"`
	ApplicationRules []string `yaml:"application_rules"`
	SamplePrompts    []string `yaml:"sample_prompts"`
}

// ReferenceDataPolicy names which catalogs are included whole vs. filtered,
// and the target digest size C2 should aim for.
type ReferenceDataPolicy struct {
	WholeCatalogs         []string `yaml:"whole_catalogs"`
	FilteredCatalogs      []string `yaml:"filtered_catalogs"`
	TargetDigestSizeBytes int      `yaml:"target_digest_size_bytes"`
}

// PersonaConfig is the full persona document loaded by the Configuration
// Store (§3, §4.1).
type PersonaConfig struct {
	Identity              Identity             `yaml:"identity"`
	Communication         CommunicationRules   `yaml:"communication"`
	Frameworks            []Framework          `yaml:"frameworks"`
	ReferenceDataPolicy   ReferenceDataPolicy  `yaml:"reference_data_policy"`
	DifficultySuffixes    map[supertask.Language]map[supertask.Difficulty]string `yaml:"difficulty_suffixes"`
	JargonSubstitutions   map[string]string    `yaml:"jargon_substitutions"`

	// LexicalComplexity maps a common-register word to its more
	// technical synonym. The advanced variant substitutes common→technical;
	// the beginner variant substitutes technical→common (§4.11).
	LexicalComplexity map[string]string `yaml:"lexical_complexity"`

	compiledForbidden []*regexp.Regexp
}

const requiredFrameworkCount = 9

// Validate runs the §3 invariants and the §4.1 cross-field checks,
// returning one human-readable description per defect found (empty when
// valid); the caller wraps them as ConfigInvalid.
func (p *PersonaConfig) Validate() []string {
	var problems []string

	if p.Identity.Name == "" {
		problems = append(problems, "identity.name is required")
	}
	if p.Identity.LanguageForm != "masculine" {
		problems = append(problems, "identity.language_form must be 'masculine' (masculine-form language markers required)")
	}

	if len(p.Frameworks) != requiredFrameworkCount {
		problems = append(problems, fmt.Sprintf("exactly %d frameworks are required, found %d", requiredFrameworkCount, len(p.Frameworks)))
	}
	for _, fw := range p.Frameworks {
		if fw.Name == "" {
			problems = append(problems, "framework missing name")
			continue
		}
		if len(fw.KeywordTriggers) == 0 {
			problems = append(problems, fmt.Sprintf("framework %q missing keyword_triggers", fw.Name))
		}
		if len(fw.ApplicationRules) == 0 {
			problems = append(problems, fmt.Sprintf("framework %q missing application_rules", fw.Name))
		}
		if len(fw.SamplePrompts) == 0 {
			problems = append(problems, fmt.Sprintf("framework %q requires at least one sample coaching prompt", fw.Name))
		}
	}
	if !p.hasFramework("tiny_habits") {
		problems = append(problems, "persona must define a 'tiny_habits' framework as the no-trigger default")
	}

	problems = append(problems, p.validateWordBudgetMonotonicity()...)

	for lang, m := range p.DifficultySuffixes {
		if _, ok := m[supertask.Beginner]; !ok {
			problems = append(problems, fmt.Sprintf("difficulty_suffixes[%s] missing 'beginner'", lang))
		}
		if _, ok := m[supertask.Advanced]; !ok {
			problems = append(problems, fmt.Sprintf("difficulty_suffixes[%s] missing 'advanced'", lang))
		}
	}

	return problems
}

func (p *PersonaConfig) hasFramework(name string) bool {
	for _, fw := range p.Frameworks {
		if fw.Name == name {
			return true
		}
	}
	return false
}

func (p *PersonaConfig) validateWordBudgetMonotonicity() []string {
	var problems []string
	prev := -1
	for _, stage := range EngagementStageOrder {
		v, ok := p.Communication.WordBudgets[stage]
		if !ok {
			continue
		}
		if v < prev {
			problems = append(problems, fmt.Sprintf("word budget for stage %q (%d) must be >= previous stage (%d)", stage, v, prev))
		}
		prev = v
	}
	return problems
}

// CompiledForbidden lazily compiles and caches the forbidden-phrase
// regexes used by the Prompt Composer's policy guard (§4.4 step 5).
func (p *PersonaConfig) CompiledForbidden() []*regexp.Regexp {
	if p.compiledForbidden != nil {
		return p.compiledForbidden
	}
	out := make([]*regexp.Regexp, 0, len(p.Identity.ForbiddenPhrasings))
	for _, phrase := range p.Identity.ForbiddenPhrasings {
		out = append(out, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(phrase)))
	}
	p.compiledForbidden = out
	return out
}

// FrameworkByName returns the framework with the given name, if any.
func (p *PersonaConfig) FrameworkByName(name string) (Framework, bool) {
	for _, fw := range p.Frameworks {
		if fw.Name == name {
			return fw, true
		}
	}
	return Framework{}, false
}

// DifficultySuffix returns the localized title suffix for lang/diff,
// falling back to English if the language isn't configured.
func (p *PersonaConfig) DifficultySuffix(lang supertask.Language, diff supertask.Difficulty) string {
	if m, ok := p.DifficultySuffixes[lang]; ok {
		if s, ok := m[diff]; ok {
			return s
		}
	}
	if m, ok := p.DifficultySuffixes[supertask.LanguageEnglish]; ok {
		if s, ok := m[diff]; ok {
			return s
		}
	}
	if diff == supertask.Advanced {
		return "(Advanced)"
	}
	return "(Beginner)"
}
