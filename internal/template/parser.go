// Package template implements the Template Parser (C7): splitting a
// FilledTemplate into typed frontmatter and body sections recognized
// by well-known headings, tolerant of unknown sections.
package template

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

// Parse splits raw into a typed FrontMatter and a structured body
// (§4.7). Unknown headings are preserved verbatim in RawSections.
func Parse(raw, sourcePath string) (*supertask.FilledTemplate, error) {
	fm, body, err := splitFrontMatter(raw)
	if err != nil {
		return nil, err
	}

	sections, err := splitSections(body)
	if err != nil {
		return nil, err
	}

	ft := &supertask.FilledTemplate{
		Source:      sourcePath,
		FrontMatter: fm,
		RawSections: map[string]string{},
	}

	for heading, text := range sections {
		key := strings.ToLower(strings.TrimSpace(heading))
		switch key {
		case "overview":
			ft.Overview = strings.TrimSpace(text)
		case "key concepts":
			ft.KeyConcepts = strings.TrimSpace(text)
		case "examples":
			ft.Examples = strings.TrimSpace(text)
		case "summary":
			ft.Summary = strings.TrimSpace(text)
		case "main content":
			items, quotes := parseMainContent(text)
			ft.MainContent = items
			ft.Quotes = quotes
		case "quiz":
			ft.Quiz = parseQuiz(text)
		default:
			ft.RawSections[heading] = strings.TrimSpace(text)
		}
	}

	return ft, nil
}

var frontMatterDelim = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n?`)

func splitFrontMatter(raw string) (supertask.FrontMatter, string, error) {
	match := frontMatterDelim.FindStringSubmatch(raw)
	if match == nil {
		return supertask.FrontMatter{}, "", pipelineerr.New(pipelineerr.TemplateInvalid, "missing frontmatter delimiters", nil)
	}

	var fm supertask.FrontMatter
	if err := yaml.Unmarshal([]byte(match[1]), &fm); err != nil {
		return supertask.FrontMatter{}, "", pipelineerr.New(pipelineerr.TemplateInvalid, "cannot parse frontmatter", err)
	}

	body := raw[len(match[0]):]
	return fm, body, nil
}

// splitSections walks the body's goldmark AST, grouping text under
// each top-level (##) heading. Sub-headings (###) stay inside their
// parent section's raw text so Main Content's "Content Item N" blocks
// remain available to parseMainContent.
// splitSections locates level-2 headings twice, by two complementary
// means, and reconciles them: goldmark's AST walk gives a
// markup-robust ordered list of heading titles (resilient to inline
// emphasis like "## **Quiz**"), while a line-anchored regex gives the
// exact byte ranges between headings so sub-structure ("### Content
// Item N", quote/quiz blocks) survives untouched for the section-body
// parsers below.
func splitSections(body string) (map[string]string, error) {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var astTitles []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 2 {
			astTitles = append(astTitles, headingText(h, src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.TemplateInvalid, "cannot walk template body", err)
	}

	matches := h2Pattern.FindAllStringSubmatchIndex(body, -1)
	sections := make(map[string]string, len(matches))
	for i, m := range matches {
		heading := strings.TrimSpace(body[m[2]:m[3]])
		if i < len(astTitles) && astTitles[i] != "" {
			heading = astTitles[i]
		}
		start := m[1]
		end := len(body)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[heading] = body[start:end]
	}
	return sections, nil
}

// headingText recursively concatenates every Text descendant of a
// heading node, so inline emphasis ("**Quiz**") doesn't hide the title.
func headingText(h *ast.Heading, src []byte) string {
	var b bytes.Buffer
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if tn, ok := n.(*ast.Text); ok {
				b.Write(tn.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

var h2Pattern = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

var contentItemHeading = regexp.MustCompile(`(?m)^###\s+Content Item\s+\d+\s*$`)
var quoteLine = regexp.MustCompile(`(?m)^\s*"([^"]+)"\s*$`)
var authorLine = regexp.MustCompile(`(?m)^Author:\s*(.+)$`)
var tipsLine = regexp.MustCompile(`(?m)^\s*-\s+(.+)$`)

// parseMainContent splits the Main Content section into "Content Item
// N" blocks and inline quote blocks (a line wholly wrapped in
// quotation marks followed by an Author: line), per §4.7.
func parseMainContent(body string) ([]supertask.ContentItem, []supertask.QuoteItem) {
	blocks := splitByHeading(body, contentItemHeading)

	var items []supertask.ContentItem
	var quotes []supertask.QuoteItem

	for _, block := range blocks {
		if qm := quoteLine.FindStringSubmatch(block); qm != nil {
			author := firstMatch(authorLine, block)
			quotes = append(quotes, supertask.QuoteItem{
				Content: strings.TrimSpace(qm[1]),
				Author:  strings.TrimSpace(author),
			})
			continue
		}

		item := supertask.ContentItem{
			Author: strings.TrimSpace(firstMatch(authorLine, block)),
		}
		for _, tm := range tipsLine.FindAllStringSubmatch(block, -1) {
			item.Tips = append(item.Tips, strings.TrimSpace(tm[1]))
		}
		item.Body = strings.TrimSpace(stripAnnotationLines(block))
		if item.Body != "" {
			items = append(items, item)
		}
	}
	return items, quotes
}

func stripAnnotationLines(block string) string {
	lines := strings.Split(block, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if authorLine.MatchString(line) || tipsLine.MatchString(line) || contentItemHeading.MatchString(line) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}

func splitByHeading(body string, heading *regexp.Regexp) []string {
	idx := heading.FindAllStringIndex(body, -1)
	if len(idx) == 0 {
		return splitByBlankLine(body)
	}
	var blocks []string
	for i, loc := range idx {
		start := loc[1]
		end := len(body)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		blocks = append(blocks, body[start:end])
	}
	return blocks
}

func splitByBlankLine(body string) []string {
	raw := regexp.MustCompile(`\n\s*\n`).Split(strings.TrimSpace(body), -1)
	var out []string
	for _, b := range raw {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out
}

var (
	questionLine = regexp.MustCompile(`(?m)^Question:\s*(.+)$`)
	optionLine   = regexp.MustCompile(`(?m)^\s*[A-Za-z][).]\s*(.+)$`)
	correctLine  = regexp.MustCompile(`(?m)^Correct Answer:\s*([A-Za-z0-9]+)\s*$`)
	explainLine  = regexp.MustCompile(`(?m)^Explanation:\s*(.+)$`)
)

// parseQuiz splits the Quiz section into blocks (blank-line separated)
// each carrying Question/Options/Correct Answer/Explanation (§4.7).
func parseQuiz(body string) []supertask.QuizItem {
	blocks := splitByBlankLine(body)
	var quiz []supertask.QuizItem
	for _, block := range blocks {
		q := firstMatch(questionLine, block)
		if q == "" {
			continue
		}
		var options []string
		for _, om := range optionLine.FindAllStringSubmatch(block, -1) {
			options = append(options, strings.TrimSpace(om[1]))
		}
		correctTok := firstMatch(correctLine, block)
		explanation := firstMatch(explainLine, block)

		quiz = append(quiz, supertask.QuizItem{
			Question:      strings.TrimSpace(q),
			Options:       options,
			CorrectAnswer: optionIndex(correctTok, options),
			Explanation:   strings.TrimSpace(explanation),
		})
	}
	return quiz
}

// optionIndex resolves a "Correct Answer:" token (a letter like "B" or
// a 0-based/1-based number) to a 0-based index into options.
func optionIndex(tok string, options []string) int {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return -1
	}
	if n, err := strconv.Atoi(tok); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1
		}
		if n >= 0 && n < len(options) {
			return n
		}
	}
	r := []rune(strings.ToUpper(tok))[0]
	idx := int(r - 'A')
	if idx >= 0 && idx < len(options) {
		return idx
	}
	return -1
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}
