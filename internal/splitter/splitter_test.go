package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

func testPersona() *config.PersonaConfig {
	return &config.PersonaConfig{
		JargonSubstitutions: map[string]string{
			"supertask": "session",
		},
	}
}

func sampleTemplate() *supertask.FilledTemplate {
	return &supertask.FilledTemplate{
		MainContent: []supertask.ContentItem{
			{
				Body:   "Start with one glass of water before anything else. It costs nothing and takes ten seconds.",
				Author: "James Clear",
				Tips:   []string{"Keep the glass visible the night before", "Never skip the first rep"},
			},
			{
				Body: "Lace up your shoes before checking your phone in the morning.",
			},
			{
				Body: "Keep the first version of any new habit boringly small and easy to repeat daily.",
			},
		},
		Quotes: []supertask.QuoteItem{
			{Content: "Small habits don't add up. They compound over time into something remarkable.", Author: "James Clear"},
		},
		Quiz: []supertask.QuizItem{
			{
				Question:      "What should you do before checking your phone each morning?",
				Options:       []string{"Check email", "Drink water", "Nothing"},
				CorrectAnswer: 1,
				Explanation:   "Anchoring the new habit to an existing morning trigger increases adherence substantially.",
			},
			{
				Question:      "How small should the first version of a habit be?",
				Options:       []string{"One minute", "One hour", "All day"},
				CorrectAnswer: 0,
				Explanation:   "Small versions are dramatically easier to repeat consistently than ambitious ones.",
			},
		},
	}
}

func TestSplitProducesItemsWithinCountBand(t *testing.T) {
	items, err := Split(sampleTemplate(), supertask.Beginner, testPersona())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(items), 3)
	assert.LessOrEqual(t, len(items), 8)
}

func TestSplitOrdersContentFirstWithQuizPresent(t *testing.T) {
	items, err := Split(sampleTemplate(), supertask.Beginner, testPersona())
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, supertask.ItemContent, items[0].Type)

	var sawQuiz bool
	for _, it := range items {
		if it.Type == supertask.ItemQuiz {
			sawQuiz = true
		}
	}
	assert.True(t, sawQuiz)
}

func TestSplitRejectsEmptyMainContent(t *testing.T) {
	ft := sampleTemplate()
	ft.MainContent = nil
	_, err := Split(ft, supertask.Beginner, testPersona())
	require.Error(t, err)
}

func TestSplitRejectsInsufficientQuiz(t *testing.T) {
	ft := sampleTemplate()
	ft.Quiz = ft.Quiz[:1]
	_, err := Split(ft, supertask.Beginner, testPersona())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientQuiz)
}

func TestSplitAdmitsQuoteOnlyWithAuthor(t *testing.T) {
	ft := sampleTemplate()
	ft.Quotes = append(ft.Quotes, supertask.QuoteItem{Content: "An unattributed line that is definitely long enough to pass the band."})
	items, err := Split(ft, supertask.Beginner, testPersona())
	require.NoError(t, err)

	var quoteCount int
	for _, it := range items {
		if it.Type == supertask.ItemQuote {
			quoteCount++
			assert.NotEmpty(t, it.Author)
		}
	}
	assert.Equal(t, 1, quoteCount)
}

func TestWindowBodySplitsLongContentWithoutBreakingSentences(t *testing.T) {
	long := strings.Repeat("This is one sentence of moderate length that adds some bulk. ", 10)
	windows := windowBody(strings.TrimSpace(long))
	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.LessOrEqual(t, len(w), contentMax)
		assert.False(t, strings.HasSuffix(strings.TrimSpace(w), "This is one sentence of moderate length that adds some bulk"))
	}
}

func TestSplitSentencesIgnoresAbbreviationsAndDecimals(t *testing.T) {
	body := "Dr. Smith studies habits. A 3.5 percent gain compounds fast. It really does add up over time."
	sentences := splitSentences(body)

	// "Dr." must not be treated as a sentence boundary, so it stays
	// joined with what follows rather than starting its own fragment.
	assert.Contains(t, sentences[0], "Dr. Smith studies habits")

	joined := strings.Join(sentences, " ")
	assert.Contains(t, joined, "3.5 percent")
}

func TestShortenQuestionStripsParentheticalsWhenTooLong(t *testing.T) {
	q := "What is the single most effective first step to take each morning (according to behavioral science research on habit formation)?"
	shortened := shortenQuestion(q)
	assert.LessOrEqual(t, len(shortened), questionMax)
}

func TestClipOptionEllipsisClipsOverlongOptions(t *testing.T) {
	opt := strings.Repeat("word ", 30)
	clipped := clipOption(opt)
	assert.LessOrEqual(t, len(clipped), optionMax)
	assert.True(t, strings.HasSuffix(clipped, "..."))
}

func TestScrubRemovesLeadingTypeLabelAndJargon(t *testing.T) {
	items := []supertask.FlexibleItem{
		{Type: supertask.ItemContent, Content: "Content: this supertask teaches tiny habits."},
	}
	scrub(items, testPersona())
	assert.NotContains(t, items[0].Content, "Content:")
	assert.Contains(t, strings.ToLower(items[0].Content), "session")
}

func TestMaximizeAlternationKeepsWithinLimitAndAlternates(t *testing.T) {
	items := []supertask.FlexibleItem{
		{Type: supertask.ItemContent}, {Type: supertask.ItemContent}, {Type: supertask.ItemContent},
		{Type: supertask.ItemContent}, {Type: supertask.ItemContent},
		{Type: supertask.ItemQuiz}, {Type: supertask.ItemQuiz},
	}
	out := maximizeAlternation(items, 4)
	assert.Len(t, out, 4)

	var contentCount, quizCount int
	for _, it := range out {
		if it.Type == supertask.ItemContent {
			contentCount++
		}
		if it.Type == supertask.ItemQuiz {
			quizCount++
		}
	}
	assert.Equal(t, 2, quizCount)
	assert.Equal(t, 2, contentCount)
}
