// Package schema implements the Schema Validator (C9): checking a
// candidate SupertaskDocument against schema v1.1 and aggregating
// every defect found into a single error (§4.9).
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

const (
	titleMin = 1
	titleMax = 200

	durationBeginnerMin = 180
	durationBeginnerMax = 360
	durationAdvancedMin = 360
	durationAdvancedMax = 600

	coinsMin = 1
	coinsMax = 1000

	itemsMin = 3
	itemsMax = 8

	contentMin = 50
	contentMax = 300
	authorMin  = 1
	authorMax  = 100
	tipsMin    = 20
	tipsMax    = 150
	maxTips    = 5

	quoteMin = 20
	quoteMax = 200

	questionMin = 15
	questionMax = 120
	optionsMin  = 2
	optionsMax  = 5
	optionMin   = 3
	optionMax   = 60

	explanationMin = 30
	explanationMax = 250
)

var versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

var validArchetypes = map[supertask.Archetype]bool{
	supertask.ArchetypeWarrior:  true,
	supertask.ArchetypeExplorer: true,
	supertask.ArchetypeSage:     true,
	supertask.ArchetypeRuler:    true,
}

var validDimensions = func() map[supertask.Dimension]bool {
	m := make(map[supertask.Dimension]bool, len(supertask.Dimensions))
	for _, d := range supertask.Dimensions {
		m[d] = true
	}
	return m
}()

var validRelatedTo = map[supertask.RelatedToType]bool{
	supertask.RelatedHabitBlueprint: true,
	supertask.RelatedGeneric:        true,
}

var validLanguages = map[supertask.Language]bool{
	supertask.LanguagePortuguese: true,
	supertask.LanguageEnglish:    true,
	supertask.LanguageSpanish:    true,
}

// Validate checks doc against every §4.9 constraint for the given
// target difficulty, returning nil when the document is valid or a
// *pipelineerr.Error wrapping a *pipelineerr.ValidationError with one
// FieldViolation per defect found.
func Validate(doc *supertask.Document, persona *config.PersonaConfig, diff supertask.Difficulty) error {
	var v []pipelineerr.FieldViolation
	add := func(path, format string, args ...any) {
		v = append(v, pipelineerr.FieldViolation{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if n := len(doc.Title); n < titleMin || n > titleMax {
		add("title", "length must be in [%d, %d], got %d", titleMin, titleMax, n)
	}
	if persona != nil {
		suffix := persona.DifficultySuffix(doc.Metadata.Language, diff)
		if suffix != "" && !strings.HasSuffix(strings.TrimSpace(doc.Title), suffix) {
			add("title", "must end with difficulty suffix %q, got %q", suffix, doc.Title)
		}
	}

	if !validDimensions[doc.Dimension] {
		add("dimension", "invalid value %q", doc.Dimension)
	}
	if !validArchetypes[doc.Archetype] {
		add("archetype", "invalid value %q", doc.Archetype)
	}
	if !validRelatedTo[doc.RelatedToType] {
		add("relatedToType", "invalid value %q", doc.RelatedToType)
	}
	if strings.TrimSpace(doc.RelatedToID) == "" {
		add("relatedToId", "must not be empty")
	}

	durMin, durMax := durationBeginnerMin, durationBeginnerMax
	if diff == supertask.Advanced {
		durMin, durMax = durationAdvancedMin, durationAdvancedMax
	}
	if doc.EstimatedDuration < durMin || doc.EstimatedDuration > durMax {
		add("estimatedDuration", "must be in [%d, %d] for %s, got %d", durMin, durMax, diff, doc.EstimatedDuration)
	}

	if doc.CoinsReward < coinsMin || doc.CoinsReward > coinsMax {
		add("coinsReward", "must be in [%d, %d], got %d", coinsMin, coinsMax, doc.CoinsReward)
	}

	n := len(doc.FlexibleItems)
	if n < itemsMin || n > itemsMax {
		add("flexibleItems", "length must be in [%d, %d], got %d", itemsMin, itemsMax, n)
	}
	var contentCount, quizCount int
	for i, item := range doc.FlexibleItems {
		path := fmt.Sprintf("flexibleItems[%d]", i)
		switch item.Type {
		case supertask.ItemContent:
			contentCount++
			validateContentItem(path, item, add)
		case supertask.ItemQuote:
			validateQuoteItem(path, item, add)
		case supertask.ItemQuiz:
			quizCount++
			validateQuizItem(path, item, add)
		default:
			add(path+".type", "unrecognized item type %q", item.Type)
		}
	}
	if contentCount < 1 {
		add("flexibleItems", "must contain at least 1 content item, got %d", contentCount)
	}
	if quizCount < 2 {
		add("flexibleItems", "must contain at least 2 quiz items, got %d", quizCount)
	}

	if !validLanguages[doc.Metadata.Language] {
		add("metadata.language", "invalid value %q", doc.Metadata.Language)
	}
	if doc.Metadata.Version != "" && !versionPattern.MatchString(doc.Metadata.Version) {
		add("metadata.version", "must match ^\\d+\\.\\d+(\\.\\d+)?$, got %q", doc.Metadata.Version)
	}
	if doc.Metadata.CreatedAt.IsZero() {
		add("metadata.created_at", "must be set")
	}
	if doc.Metadata.UpdatedAt.IsZero() {
		add("metadata.updated_at", "must be set")
	}
	if s := doc.Metadata.MobileOptimizationScore; s != nil && (*s < 0.0 || *s > 1.0) {
		add("metadata.mobile_optimization_score", "must be in [0.0, 1.0], got %v", *s)
	}

	if len(v) == 0 {
		return nil
	}
	return (&pipelineerr.ValidationError{Violations: v}).AsPipelineError()
}

func validateContentItem(path string, item supertask.FlexibleItem, add func(string, string, ...any)) {
	if n := len(item.Content); n < contentMin || n > contentMax {
		add(path+".content", "length must be in [%d, %d], got %d", contentMin, contentMax, n)
	}
	if item.Author != "" {
		if n := len(item.Author); n < authorMin || n > authorMax {
			add(path+".author", "length must be in [%d, %d], got %d", authorMin, authorMax, n)
		}
	}
	if len(item.Tips) > maxTips {
		add(path+".tips", "must have at most %d items, got %d", maxTips, len(item.Tips))
	}
	for i, tip := range item.Tips {
		if n := len(tip); n < tipsMin || n > tipsMax {
			add(fmt.Sprintf("%s.tips[%d]", path, i), "length must be in [%d, %d], got %d", tipsMin, tipsMax, n)
		}
	}
}

func validateQuoteItem(path string, item supertask.FlexibleItem, add func(string, string, ...any)) {
	if n := len(item.Content); n < quoteMin || n > quoteMax {
		add(path+".content", "length must be in [%d, %d], got %d", quoteMin, quoteMax, n)
	}
	if n := len(item.Author); n < authorMin || n > authorMax {
		add(path+".author", "length must be in [%d, %d], got %d", authorMin, authorMax, n)
	}
}

func validateQuizItem(path string, item supertask.FlexibleItem, add func(string, string, ...any)) {
	if n := len(item.Question); n < questionMin || n > questionMax {
		add(path+".question", "length must be in [%d, %d], got %d", questionMin, questionMax, n)
	}
	if n := len(item.Options); n < optionsMin || n > optionsMax {
		add(path+".options", "count must be in [%d, %d], got %d", optionsMin, optionsMax, n)
	}
	for i, opt := range item.Options {
		if n := len(opt); n < optionMin || n > optionMax {
			add(fmt.Sprintf("%s.options[%d]", path, i), "length must be in [%d, %d], got %d", optionMin, optionMax, n)
		}
	}
	if item.CorrectAnswer < 0 || item.CorrectAnswer >= len(item.Options) {
		add(path+".correctAnswer", "index %d out of range for %d options", item.CorrectAnswer, len(item.Options))
	}
	if n := len(item.Explanation); n < explanationMin || n > explanationMax {
		add(path+".explanation", "length must be in [%d, %d], got %d", explanationMin, explanationMax, n)
	}
}
