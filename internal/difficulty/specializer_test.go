package difficulty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

func testPersona() *config.PersonaConfig {
	return &config.PersonaConfig{
		DifficultySuffixes: map[supertask.Language]map[supertask.Difficulty]string{
			supertask.LanguageEnglish: {
				supertask.Beginner: "(Beginner)",
				supertask.Advanced: "(Advanced)",
			},
		},
		LexicalComplexity: map[string]string{
			"habit":   "behavioral pattern",
			"trigger": "discriminative stimulus",
		},
	}
}

func sampleItems() []supertask.FlexibleItem {
	return []supertask.FlexibleItem{
		{Type: supertask.ItemContent, Content: "Anchor the new habit to an existing trigger each morning."},
		{Type: supertask.ItemQuiz, Question: "What keeps a habit going? (Beginner)", Options: []string{"A trigger", "Luck"}, CorrectAnswer: 0, Explanation: "A consistent habit needs a reliable trigger."},
		{Type: supertask.ItemQuiz, Question: "How do habits form?", Options: []string{"Repetition", "Magic"}, CorrectAnswer: 0, Explanation: "Habits form through repetition anchored to a trigger."},
	}
}

func TestSpecializeAdvancedUsesTechnicalVocabulary(t *testing.T) {
	s := NewSpecializer(testPersona())
	out := s.Specialize(sampleItems(), supertask.Advanced)
	assert.Contains(t, out[0].Content, "behavioral pattern")
	assert.Contains(t, out[0].Content, "discriminative stimulus")
}

func TestSpecializeBeginnerUsesCommonVocabulary(t *testing.T) {
	s := NewSpecializer(testPersona())
	advanced := s.Specialize(sampleItems(), supertask.Advanced)
	beginnerFromAdvanced := s.Specialize(advanced, supertask.Beginner)
	assert.Contains(t, beginnerFromAdvanced[0].Content, "habit")
	assert.NotContains(t, beginnerFromAdvanced[0].Content, "behavioral pattern")
}

func TestSpecializeDoesNotMutateSourceItems(t *testing.T) {
	items := sampleItems()
	original := items[0].Content

	s := NewSpecializer(testPersona())
	_ = s.Specialize(items, supertask.Advanced)

	assert.Equal(t, original, items[0].Content)
}

func TestSpecializeStripsDifficultyTokenFromQuizQuestion(t *testing.T) {
	s := NewSpecializer(testPersona())
	out := s.Specialize(sampleItems(), supertask.Beginner)
	assert.NotContains(t, out[1].Question, "(Beginner)")
	assert.NotContains(t, out[1].Question, "(Advanced)")
}

func TestSpecializeTruncatesToPerDifficultyItemCap(t *testing.T) {
	var items []supertask.FlexibleItem
	for i := 0; i < 10; i++ {
		items = append(items, supertask.FlexibleItem{Type: supertask.ItemContent, Content: "filler content item"})
	}

	s := NewSpecializer(testPersona())
	beginner := s.Specialize(items, supertask.Beginner)
	advanced := s.Specialize(items, supertask.Advanced)

	assert.LessOrEqual(t, len(beginner), beginnerMaxItems)
	assert.LessOrEqual(t, len(advanced), advancedMaxItems)
	assert.Greater(t, len(advanced), len(beginner))
}

func TestDurationAndCoinsBandsAreDifficultyKeyed(t *testing.T) {
	bMin, bMax := DurationBand(supertask.Beginner)
	aMin, aMax := DurationBand(supertask.Advanced)
	assert.Equal(t, 180, bMin)
	assert.Equal(t, 360, bMax)
	assert.Equal(t, 360, aMin)
	assert.Equal(t, 600, aMax)

	cMin, cMax := CoinsBand(supertask.Beginner)
	assert.Equal(t, 10, cMin)
	assert.Equal(t, 15, cMax)

	cMin, cMax = CoinsBand(supertask.Advanced)
	assert.Equal(t, 15, cMin)
	assert.Equal(t, 25, cMax)
}

func TestJaccardDistanceMeasuresDifferentiation(t *testing.T) {
	same := JaccardDistance("the quick brown fox", "the quick brown fox")
	assert.Equal(t, 0.0, same)

	different := JaccardDistance("the quick brown fox", "a slow lazy dog")
	assert.Greater(t, different, 0.7)
}

func TestJaccardDistanceHandlesEmptyStrings(t *testing.T) {
	require.Equal(t, 0.0, JaccardDistance("", ""))
}
