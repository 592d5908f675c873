// Package supertask holds the data model shared by every pipeline stage:
// the raw ingestion record, the filled intermediate template, and the
// mobile-optimized supertask document the pipeline ultimately emits.
package supertask

import "time"

// Format is a declared or detected input file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// Difficulty is the requested/emitted variant.
type Difficulty string

const (
	Beginner Difficulty = "beginner"
	Advanced Difficulty = "advanced"
)

// Dimension is the fixed five-valued life-area tag.
type Dimension string

const (
	DimensionPhysicalHealth Dimension = "physicalHealth"
	DimensionMentalHealth   Dimension = "mentalHealth"
	DimensionRelationships  Dimension = "relationships"
	DimensionWork           Dimension = "work"
	DimensionSpirituality   Dimension = "spirituality"
)

// Dimensions lists every valid Dimension, in a stable order.
var Dimensions = []Dimension{
	DimensionPhysicalHealth,
	DimensionMentalHealth,
	DimensionRelationships,
	DimensionWork,
	DimensionSpirituality,
}

// Archetype is the fixed four-valued audience-style tag.
type Archetype string

const (
	ArchetypeWarrior  Archetype = "warrior"
	ArchetypeExplorer Archetype = "explorer"
	ArchetypeSage     Archetype = "sage"
	ArchetypeRuler    Archetype = "ruler"
)

// RelatedToType is the enum for SupertaskDocument.RelatedToType.
type RelatedToType string

const (
	RelatedHabitBlueprint RelatedToType = "HABITBP"
	RelatedGeneric        RelatedToType = "GENERIC"
)

// Language is the enum for SupertaskDocument.Metadata.Language.
type Language string

const (
	LanguagePortuguese Language = "portuguese"
	LanguageEnglish    Language = "english"
	LanguageSpanish    Language = "spanish"
)

// RawSource is an immutable record of one ingested input file.
type RawSource struct {
	Path            string
	DeclaredFormat  Format
	RawBytes        []byte
	Text            string
	Metadata        RawSourceMetadata
}

// RawSourceMetadata is the extraction metadata attached to a RawSource.
type RawSourceMetadata struct {
	SourcePath     string
	ByteSize       int
	ModTime        time.Time
	LanguageHint   string
}

// ContentItem is one "Content Item N" block parsed from Main Content.
type ContentItem struct {
	Body   string
	Author string
	Tips   []string
}

// QuoteItem is a quote block parsed from the template body.
type QuoteItem struct {
	Content string
	Author  string
}

// QuizItem is a quiz block parsed from the template body.
type QuizItem struct {
	Question      string
	Options       []string
	CorrectAnswer int
	Explanation   string
}

// FrontMatter is the typed frontmatter header of a FilledTemplate (§3).
type FrontMatter struct {
	Title               string     `yaml:"title"`
	Description         string     `yaml:"description"`
	TargetDifficulty    Difficulty `yaml:"target_difficulty"`
	Dimension           Dimension  `yaml:"dimension"`
	Archetype           Archetype  `yaml:"archetype"`
	RelationType        RelatedToType `yaml:"relation_type"`
	RelationID          string     `yaml:"relation_id"`
	EstimatedDuration   int        `yaml:"estimated_duration"`
	Reward              int        `yaml:"reward"`
	Language            Language   `yaml:"language"`
	Region              string     `yaml:"region"`
	LearningObjectives  []string   `yaml:"learning_objectives"`
	Prerequisites       []string   `yaml:"prerequisites"`
	Tags                []string   `yaml:"tags"`
}

// FilledTemplate is the Stage 1 output: typed frontmatter plus sectioned body.
type FilledTemplate struct {
	Source       string
	FrontMatter  FrontMatter
	Overview     string
	MainContent  []ContentItem
	Quotes       []QuoteItem
	KeyConcepts  string
	Examples     string
	Summary      string
	Quiz         []QuizItem
	// RawSections preserves any heading not recognized above, addressable
	// by heading text, per §4.7's "tolerant, preserve unknown" contract.
	RawSections map[string]string
}

// ItemKind tags a FlexibleItem's variant.
type ItemKind string

const (
	ItemContent ItemKind = "content"
	ItemQuote   ItemKind = "quote"
	ItemQuiz    ItemKind = "quiz"
)

// FlexibleItem is the closed, tagged-variant sum type described in §3/§9.
// Exactly one of Content, Quote, Quiz is populated, selected by Type.
type FlexibleItem struct {
	Type ItemKind `json:"type"`

	// content variant
	Content string   `json:"content,omitempty"`
	Author  string   `json:"author,omitempty"`
	Tips    []string `json:"tips,omitempty"`

	// quote variant reuses Content+Author above.

	// quiz variant
	Question      string   `json:"question,omitempty"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Metadata is SupertaskDocument.Metadata (§3).
type Metadata struct {
	Language               Language  `json:"language"`
	Region                 string    `json:"region,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	Version                string    `json:"version"`
	GeneratedBy            string    `json:"generated_by,omitempty"`
	GenerationTimestamp    time.Time `json:"generation_timestamp,omitzero"`
	DifficultyLevel        Difficulty `json:"difficulty_level,omitempty"`
	AriPersonaApplied      bool      `json:"ari_persona_applied,omitempty"`
	SourceTemplate         string    `json:"source_template,omitempty"`
	MobileOptimizationScore *float64 `json:"mobile_optimization_score,omitempty"`
}

// Document is the Stage 3 output: one supertask JSON document (§3).
type Document struct {
	Title             string         `json:"title"`
	Dimension         Dimension      `json:"dimension"`
	Archetype         Archetype      `json:"archetype"`
	RelatedToType     RelatedToType  `json:"relatedToType"`
	RelatedToID       string         `json:"relatedToId"`
	EstimatedDuration int            `json:"estimatedDuration"`
	CoinsReward       int            `json:"coinsReward"`
	FlexibleItems     []FlexibleItem `json:"flexibleItems"`
	Metadata          Metadata       `json:"metadata"`
}
