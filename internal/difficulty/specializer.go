// Package difficulty implements the Difficulty Specializer (C11):
// rewriting a shared item list into a beginner or advanced variant
// that differs meaningfully in duration, reward, item count, and
// lexical register while preserving the underlying concepts (§4.11).
package difficulty

import (
	"regexp"
	"strings"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

const (
	BeginnerDurationMin = 180
	BeginnerDurationMax = 360
	AdvancedDurationMin = 360
	AdvancedDurationMax = 600

	BeginnerCoinsMin = 10
	BeginnerCoinsMax = 15
	AdvancedCoinsMin = 15
	AdvancedCoinsMax = 25

	beginnerMaxItems = 6
	advancedMaxItems = 8
)

// Specializer rewrites an item list for a target difficulty using the
// persona's configured lexical-complexity substitution table.
type Specializer struct {
	persona *config.PersonaConfig
}

// NewSpecializer returns a Specializer reading substitutions from persona.
func NewSpecializer(persona *config.PersonaConfig) *Specializer {
	return &Specializer{persona: persona}
}

// Specialize returns a new item list adapted for diff: it never mutates
// items, so calling it twice with different difficulties on the same
// source list yields two independent variants (§4.10 step 3's "shallow
// copy" requirement made safe by a real copy here, since FlexibleItem
// carries slice fields that a true shallow copy would still alias).
func (s *Specializer) Specialize(items []supertask.FlexibleItem, diff supertask.Difficulty) []supertask.FlexibleItem {
	out := make([]supertask.FlexibleItem, len(items))
	for i, it := range items {
		out[i] = cloneItem(it)
	}

	limit := advancedMaxItems
	if diff == supertask.Beginner {
		limit = beginnerMaxItems
	}
	out = truncateToCap(out, limit)

	for i := range out {
		out[i].Content = s.substitute(out[i].Content, diff)
		out[i].Question = stripDifficultyTokens(s.substitute(out[i].Question, diff), s.persona)
		out[i].Explanation = s.substitute(out[i].Explanation, diff)
		for j := range out[i].Options {
			out[i].Options[j] = s.substitute(out[i].Options[j], diff)
		}
	}
	return out
}

// DurationBand returns the [min, max] seconds band for diff.
func DurationBand(diff supertask.Difficulty) (int, int) {
	if diff == supertask.Advanced {
		return AdvancedDurationMin, AdvancedDurationMax
	}
	return BeginnerDurationMin, BeginnerDurationMax
}

// CoinsBand returns the [min, max] coin band for diff.
func CoinsBand(diff supertask.Difficulty) (int, int) {
	if diff == supertask.Advanced {
		return AdvancedCoinsMin, AdvancedCoinsMax
	}
	return BeginnerCoinsMin, BeginnerCoinsMax
}

func cloneItem(it supertask.FlexibleItem) supertask.FlexibleItem {
	cp := it
	if it.Tips != nil {
		cp.Tips = append([]string(nil), it.Tips...)
	}
	if it.Options != nil {
		cp.Options = append([]string(nil), it.Options...)
	}
	return cp
}

// truncateToCap keeps the first limit items, relying on the
// content-first, alternating order already established by the
// Structural Splitter (C8) to keep a healthy type mix in the prefix.
func truncateToCap(items []supertask.FlexibleItem, limit int) []supertask.FlexibleItem {
	if len(items) <= limit {
		return items
	}
	return items[:limit]
}

// substitute applies the persona's lexical-complexity table: advanced
// moves common terms to their technical synonym; beginner reverses
// that, replacing the technical synonym with the common term.
func (s *Specializer) substitute(text string, diff supertask.Difficulty) string {
	if text == "" || s.persona == nil || len(s.persona.LexicalComplexity) == 0 {
		return text
	}
	for common, technical := range s.persona.LexicalComplexity {
		if diff == supertask.Advanced {
			text = replaceWord(text, common, technical)
		} else {
			text = replaceWord(text, technical, common)
		}
	}
	return text
}

func replaceWord(s, old, new string) string {
	if old == "" || new == "" {
		return s
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(old) + `\b`)
	return re.ReplaceAllString(s, new)
}

// stripDifficultyTokens removes any configured difficulty title suffix
// (in any configured language) that may already appear in text, so a
// quiz question carried over from a prior variant doesn't leak the
// other variant's difficulty token (§4.11 "titles" rule, applied here
// to quiz questions as the spec directs).
func stripDifficultyTokens(text string, persona *config.PersonaConfig) string {
	if persona == nil {
		return text
	}
	for _, byDiff := range persona.DifficultySuffixes {
		for _, suffix := range byDiff {
			if suffix == "" {
				continue
			}
			text = strings.ReplaceAll(text, suffix, "")
		}
	}
	return strings.TrimSpace(text)
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9]+(?:'[A-Za-z0-9]+)?`)

// JaccardDistance reports the token-level Jaccard distance between a
// and b (1 - |intersection|/|union|), used to measure the beginner/
// advanced differentiation target from §4.11 (at least 0.7).
func JaccardDistance(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	union := map[string]bool{}
	for k := range setA {
		union[k] = true
	}
	for k := range setB {
		union[k] = true
	}
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	return 1 - float64(intersection)/float64(len(union))
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		set[w] = true
	}
	return set
}
