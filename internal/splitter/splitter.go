// Package splitter implements the Structural Splitter (C8): turning a
// parsed FilledTemplate into an ordered list of 3-8 character-bounded
// FlexibleItem candidates (§4.8).
package splitter

import (
	"errors"
	"regexp"
	"strings"

	"github.com/alebairos/supertask-pipeline/internal/config"
	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

// ErrInsufficientQuiz is the cause Split wraps when fewer than 2 quiz
// candidates survive normalization. The caller already has the
// template's content pool and can synthesize additional quiz items via
// the LLM client and retry Split (§4.8 edge-case policy: "request LLM
// repair to generate additional quiz items from the content pool").
var ErrInsufficientQuiz = errors.New("fewer than 2 quiz candidates survive normalization")

const (
	contentMin = 50
	contentMax = 300

	windowMin = 150
	windowMax = 300

	tipsMin = 20
	tipsMax = 150
	maxTips = 5

	authorMin = 1
	authorMax = 100

	quoteMin = 20
	quoteMax = 200

	questionMin = 15
	questionMax = 120

	optionMin = 3
	optionMax = 60

	explanationMin = 30
	explanationMax = 250

	minItems = 3
	maxItems = 8

	minContentType = 1
	minQuizType    = 2
)

var wordRE = regexp.MustCompile(`[A-Za-z0-9]+(?:'[A-Za-z0-9]+)?`)

// sentenceEnd matches a sentence boundary: one of .!? followed by
// whitespace, guarded against decimal numbers and short abbreviations.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"etc": true, "vs": true, "e.g": true, "i.e": true, "sr": true,
}

var leadingTypeLabel = regexp.MustCompile(`(?i)^\s*(content|quiz|quote)\s*[:\-]?\s*`)

// Split turns ft's body into 3-8 FlexibleItem candidates for diff,
// per §4.8's numbered policy. persona supplies the jargon substitution
// table used by the forbidden-substring scrub (step 7).
func Split(ft *supertask.FilledTemplate, diff supertask.Difficulty, persona *config.PersonaConfig) ([]supertask.FlexibleItem, error) {
	if len(ft.MainContent) == 0 {
		return nil, pipelineerr.New(pipelineerr.InsufficientContent, "main content is empty, cannot split", nil)
	}

	contentItems := splitContentItems(ft.MainContent)
	if len(contentItems) < minContentType {
		return nil, pipelineerr.New(pipelineerr.InsufficientContent, "no content items survive splitting", nil)
	}
	quoteItems := admitQuotes(ft.Quotes)
	quizItems := normalizeQuiz(ft.Quiz)
	if len(quizItems) < minQuizType {
		return nil, pipelineerr.New(pipelineerr.InsufficientContent,
			"fewer than 2 quiz candidates survive normalization, LLM repair required", ErrInsufficientQuiz)
	}

	scrub(contentItems, persona)
	scrub(quoteItems, persona)
	scrub(quizItems, persona)

	ordered := order(contentItems, quizItems, quoteItems)
	if len(ordered) < minItems {
		return nil, pipelineerr.New(pipelineerr.InsufficientContent,
			"fewer than 3 items survive splitting and ordering", nil)
	}
	if len(ordered) > maxItems {
		ordered = maximizeAlternation(ordered, maxItems)
	}
	return ordered, nil
}

// splitContentItems applies §4.8 step 2: windows content bodies over
// 300 characters at sentence boundaries into 150-300 character chunks,
// carrying author/tips only on the first resulting window.
func splitContentItems(items []supertask.ContentItem) []supertask.FlexibleItem {
	var out []supertask.FlexibleItem
	for _, item := range items {
		body := strings.TrimSpace(item.Body)
		if body == "" {
			continue
		}
		windows := windowBody(body)
		for i, w := range windows {
			fi := supertask.FlexibleItem{Type: supertask.ItemContent, Content: w}
			if i == 0 {
				fi.Author = clampLen(item.Author, authorMin, authorMax)
				fi.Tips = clampTips(item.Tips)
			}
			out = append(out, fi)
		}
	}
	return out
}

// windowBody greedily fills 150-300 character windows at sentence
// boundaries, never breaking mid-sentence. A trailing window shorter
// than 50 chars merges into the previous window when that keeps it
// within 300 chars, otherwise it is dropped (§4.8 step 2).
func windowBody(body string) []string {
	if len(body) <= contentMax {
		return []string{body}
	}

	sentences := splitSentences(body)
	var windows []string
	var cur strings.Builder

	flush := func() {
		w := strings.TrimSpace(cur.String())
		if w != "" {
			windows = append(windows, w)
		}
		cur.Reset()
	}

	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+len(s)+1 > windowMax {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
		if cur.Len() >= windowMin {
			flush()
		}
	}
	flush()

	if len(windows) > 1 {
		last := windows[len(windows)-1]
		if len(last) < contentMin {
			prev := windows[len(windows)-2]
			if len(prev)+1+len(last) <= contentMax {
				windows[len(windows)-2] = prev + " " + last
				windows = windows[:len(windows)-1]
			} else {
				windows = windows[:len(windows)-1]
			}
		}
	}
	return windows
}

// splitSentences breaks body on sentence-ending punctuation followed
// by whitespace, folding back splits that landed on a decimal number
// or a known abbreviation.
func splitSentences(body string) []string {
	idx := sentenceEnd.FindAllStringIndex(body, -1)
	if len(idx) == 0 {
		return []string{body}
	}

	var sentences []string
	start := 0
	for _, loc := range idx {
		end := loc[1]
		candidate := body[start : loc[0]+1] // keep the sentence's own punctuation
		if isFalseBoundary(body, loc[0]) {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(candidate))
		start = end
	}
	if start < len(body) {
		sentences = append(sentences, strings.TrimSpace(body[start:]))
	}

	out := sentences[:0]
	for _, s := range sentences {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isFalseBoundary reports whether the punctuation at idx in body is a
// decimal point or trails a recognized abbreviation rather than a real
// sentence end.
func isFalseBoundary(body string, idx int) bool {
	if idx > 0 && idx+1 < len(body) {
		prev, next := body[idx-1], body[idx+1]
		if body[idx] == '.' && isDigit(prev) && isDigit(next) {
			return true
		}
	}
	word := lastWord(body[:idx])
	return abbreviations[strings.ToLower(word)]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func lastWord(s string) string {
	s = strings.TrimRight(s, ".")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func clampLen(s string, min, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		s = strings.TrimSpace(s[:max])
	}
	if len(s) < min {
		return ""
	}
	return s
}

func clampTips(tips []string) []string {
	var out []string
	for _, t := range tips {
		t = clampLen(t, tipsMin, tipsMax)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) >= maxTips {
			break
		}
	}
	return out
}

// admitQuotes applies §4.8 step 4: a quote is kept only if its content
// fits [20, 200] and an attributed author is present.
func admitQuotes(quotes []supertask.QuoteItem) []supertask.FlexibleItem {
	var out []supertask.FlexibleItem
	for _, q := range quotes {
		content := strings.TrimSpace(q.Content)
		author := strings.TrimSpace(q.Author)
		if len(content) < quoteMin || len(content) > quoteMax || author == "" {
			continue
		}
		out = append(out, supertask.FlexibleItem{
			Type:    supertask.ItemQuote,
			Content: content,
			Author:  clampLen(author, authorMin, authorMax),
		})
	}
	return out
}

// normalizeQuiz applies §4.8 step 3: questions shortened to fit
// 15-120 chars by stripping parentheticals, options ellipsis-clipped
// to 60 chars, explanations clipped to 30-250.
func normalizeQuiz(items []supertask.QuizItem) []supertask.FlexibleItem {
	var out []supertask.FlexibleItem
	for _, q := range items {
		question := shortenQuestion(q.Question)
		if len(question) < questionMin {
			continue // too short even after shortening; drop the candidate
		}

		var options []string
		reject := false
		for _, opt := range q.Options {
			o := clipOption(opt)
			if len(o) < optionMin {
				reject = true
				break
			}
			options = append(options, o)
		}
		if reject || len(options) < 2 {
			continue
		}

		explanation := clampLen(q.Explanation, explanationMin, explanationMax)
		if explanation == "" {
			continue // too short even before clipping; drop the candidate
		}

		answer := q.CorrectAnswer
		if answer < 0 || answer >= len(options) {
			continue
		}

		out = append(out, supertask.FlexibleItem{
			Type:          supertask.ItemQuiz,
			Question:      question,
			Options:       options,
			CorrectAnswer: answer,
			Explanation:   explanation,
		})
	}
	return out
}

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)

func shortenQuestion(q string) string {
	q = strings.TrimSpace(q)
	if len(q) <= questionMax {
		return q
	}
	q = strings.TrimSpace(parenthetical.ReplaceAllString(q, ""))
	if len(q) > questionMax {
		q = strings.TrimSpace(q[:questionMax])
	}
	return q
}

func clipOption(opt string) string {
	opt = strings.TrimSpace(opt)
	if len(opt) <= optionMax {
		return opt
	}
	return strings.TrimSpace(opt[:optionMax-3]) + "..."
}

// order arranges items into the default narrative pattern (content,
// quiz, content, quote, content, quiz), then appends leftover content,
// quiz and quote items, in that order, up to the 8-item cap, while
// preserving a content-first opening and at least one quiz
// (§4.8 step 5).
func order(content, quiz, quote []supertask.FlexibleItem) []supertask.FlexibleItem {
	var out []supertask.FlexibleItem
	ci, qi, qo := 0, 0, 0

	pattern := []string{"content", "quiz", "content", "quote", "content", "quiz"}
	for _, kind := range pattern {
		switch kind {
		case "content":
			if ci < len(content) {
				out = append(out, content[ci])
				ci++
			}
		case "quiz":
			if qi < len(quiz) {
				out = append(out, quiz[qi])
				qi++
			}
		case "quote":
			if qo < len(quote) {
				out = append(out, quote[qo])
				qo++
			}
		}
	}

	for ci < len(content) && len(out) < maxItems {
		out = append(out, content[ci])
		ci++
	}
	for qi < len(quiz) && len(out) < maxItems {
		out = append(out, quiz[qi])
		qi++
	}
	for qo < len(quote) && len(out) < maxItems {
		out = append(out, quote[qo])
		qo++
	}
	return out
}

// maximizeAlternation trims items to cap when the default ordering
// overflows it, keeping the type sequence maximally alternating and
// preferring earlier source-order items among equal priority (§4.8
// step 6).
func maximizeAlternation(items []supertask.FlexibleItem, limit int) []supertask.FlexibleItem {
	if len(items) <= limit {
		return items
	}

	byType := map[supertask.ItemKind][]supertask.FlexibleItem{}
	var typeOrder []supertask.ItemKind
	for _, it := range items {
		if _, seen := byType[it.Type]; !seen {
			typeOrder = append(typeOrder, it.Type)
		}
		byType[it.Type] = append(byType[it.Type], it)
	}

	var out []supertask.FlexibleItem
	idx := map[supertask.ItemKind]int{}
	for len(out) < limit {
		progressed := false
		for _, t := range typeOrder {
			if len(out) >= limit {
				break
			}
			list := byType[t]
			i := idx[t]
			if i < len(list) {
				out = append(out, list[i])
				idx[t] = i + 1
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

// scrub applies §4.8 step 7: strips a leading type-label that may have
// bled in from the LLM, and replaces jargon substrings per persona's
// configured table.
func scrub(items []supertask.FlexibleItem, persona *config.PersonaConfig) {
	for i := range items {
		items[i].Content = scrubText(items[i].Content, persona)
		items[i].Question = scrubText(items[i].Question, persona)
		items[i].Explanation = scrubText(items[i].Explanation, persona)
		for j := range items[i].Options {
			items[i].Options[j] = scrubText(items[i].Options[j], persona)
		}
	}
}

func scrubText(s string, persona *config.PersonaConfig) string {
	if s == "" {
		return s
	}
	s = leadingTypeLabel.ReplaceAllString(s, "")
	if persona != nil {
		for jargon, replacement := range persona.JargonSubstitutions {
			s = replaceCaseInsensitive(s, jargon, replacement)
		}
	}
	return s
}

func replaceCaseInsensitive(s, old, new string) string {
	if old == "" {
		return s
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))
	return re.ReplaceAllString(s, new)
}

// WordCount mirrors the teacher's helper of the same purpose: it counts
// the wordRE matches in s. No other package calls it.
func WordCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(wordRE.FindAllString(s, -1))
}
