package config

// StagePrompts is a pair of named-slot string templates for one stage
// (§3 PromptPack, §4.1). Templates use Go's text/template slot syntax
// ({{.RawContent}}) so composition can substitute named variables.
type StagePrompts struct {
	SystemTemplate string `yaml:"system_template" validate:"required"`
	UserTemplate   string `yaml:"user_template" validate:"required"`
	// TemplateSkeleton is the canonical Stage-1 template skeleton
	// substituted as {template_content} (§4.4 step 4).
	TemplateSkeleton string `yaml:"template_skeleton"`
}

// SchemaConfig names the schema version this deployment targets (§4.1
// get_schema(version); Open Question (a) pins v1.1 only).
type SchemaConfig struct {
	Version string `yaml:"version" validate:"required,eq=1.1"`
}
