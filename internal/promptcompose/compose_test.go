package promptcompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

func testPersona() *config.PersonaConfig {
	return &config.PersonaConfig{
		Identity: config.Identity{
			Name:               "Ari",
			Role:               "behavior-change coach",
			LanguageForm:       "masculine",
			ForbiddenPhrasings: []string{"as an AI language model"},
		},
		Frameworks: []config.Framework{
			{Name: "tiny_habits", KeywordTriggers: []string{"habit"}, ApplicationRules: []string{"keep it small"}, SamplePrompts: []string{"smallest step?"}},
			{Name: "behavioral_design", KeywordTriggers: []string{"friction"}, ApplicationRules: []string{"reduce friction"}, SamplePrompts: []string{"what's in your way?"}},
		},
	}
}

func testPreprocPrompts() *config.StagePrompts {
	return &config.StagePrompts{
		SystemTemplate:   "{{.PersonaIdentity}}\nCompose a template.",
		UserTemplate:     "FILE TYPE: {{.FileType}}\n{{.FrameworkSection}}\n{{.ReferenceSection}}\nRAW:\n{{.RawContent}}\nTEMPLATE:\n{{.TemplateContent}}",
		TemplateSkeleton: "---\ntitle: \"\"\n---",
	}
}

func testGenPrompts() *config.StagePrompts {
	return &config.StagePrompts{
		SystemTemplate: "{{.PersonaIdentity}}\nGenerate JSON.",
		UserTemplate:   "DIFFICULTY: {{.TargetDifficulty}}\nTEMPLATE:\n{{.FilledTemplate}}\nSTRUCTURE:\n{{.TargetJSONStructure}}",
	}
}

func TestComposePreprocessingDefaultsToTinyHabits(t *testing.T) {
	c := NewComposer(testPersona(), testPreprocPrompts(), testGenPrompts())
	p, err := c.ComposePreprocessing(PreprocessingInput{
		RawContent:         "just some neutral paragraph with no triggers",
		FileType:           "markdown",
		SuggestedDimension: supertask.DimensionPhysicalHealth,
		TargetDifficulty:   supertask.Beginner,
	})
	require.NoError(t, err)
	assert.Contains(t, p.User, "tiny_habits")
}

func TestComposePreprocessingSelectsUpToTwoTriggeredFrameworks(t *testing.T) {
	c := NewComposer(testPersona(), testPreprocPrompts(), testGenPrompts())
	p, err := c.ComposePreprocessing(PreprocessingInput{
		RawContent:         "reduce friction friction friction and build a habit habit",
		FileType:           "markdown",
		SuggestedDimension: supertask.DimensionPhysicalHealth,
		TargetDifficulty:   supertask.Beginner,
	})
	require.NoError(t, err)
	assert.Contains(t, p.User, "behavioral_design")
	assert.Contains(t, p.User, "tiny_habits")
}

func TestComposePreprocessingRejectsForbiddenPhrase(t *testing.T) {
	persona := testPersona()
	prompts := testPreprocPrompts()
	prompts.SystemTemplate = "{{.PersonaIdentity}}\nas an AI language model, compose a template."

	c := NewComposer(persona, prompts, testGenPrompts())
	_, err := c.ComposePreprocessing(PreprocessingInput{
		RawContent:       "plain text",
		TargetDifficulty: supertask.Beginner,
	})
	require.Error(t, err)
}

func TestComposeGenerationSubstitutesTargetJSONStructure(t *testing.T) {
	c := NewComposer(testPersona(), testPreprocPrompts(), testGenPrompts())
	p, err := c.ComposeGeneration(GenerationInput{
		FilledTemplate:   "filled content here",
		TargetDifficulty: supertask.Advanced,
	})
	require.NoError(t, err)
	assert.Contains(t, p.User, "filled content here")
	assert.Contains(t, p.User, "{")
}
