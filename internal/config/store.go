// Package config implements the Configuration Store (C1): loading,
// validating, and caching the persona, prompt, and schema configuration
// documents that drive the rest of the pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
)

// EnvOverrides are the environment-variable overrides read once at
// process startup (§6 "Environment overrides").
type EnvOverrides struct {
	LLMEndpoint        string
	LLMAPIKey          string
	ReferenceDir       string
	PromptAuditEnabled bool
}

// Store loads, validates, and caches the three human-edited
// configuration documents plus the schema descriptor (§4.1). It is
// safe for concurrent reads once loaded.
type Store struct {
	dir string

	once     sync.Once
	loadErr  error
	persona  *PersonaConfig
	preproc  *StagePrompts
	generate *StagePrompts
	schema   *SchemaConfig
	env      EnvOverrides

	mu sync.RWMutex
}

// NewStore returns a Store reading configuration documents from dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ClearCache drops the cached configuration so the next accessor call
// reloads from disk. Exists to keep tests hermetic (§4.1).
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.once = sync.Once{}
	s.loadErr = nil
	s.persona = nil
	s.preproc = nil
	s.generate = nil
	s.schema = nil
}

func (s *Store) ensureLoaded() error {
	s.once.Do(func() {
		s.loadErr = s.load()
	})
	return s.loadErr
}

func (s *Store) load() error {
	s.env = loadEnvOverrides()

	persona, err := loadPersona(filepath.Join(s.dir, "persona.yaml"))
	if err != nil {
		return err
	}
	if problems := persona.Validate(); len(problems) > 0 {
		return pipelineerr.New(pipelineerr.ConfigInvalid,
			fmt.Sprintf("persona config invalid: %s", strings.Join(problems, "; ")), nil)
	}

	preproc, err := loadStagePrompts(filepath.Join(s.dir, "preprocessing_prompts.yaml"))
	if err != nil {
		return err
	}
	generate, err := loadStagePrompts(filepath.Join(s.dir, "generation_prompts.yaml"))
	if err != nil {
		return err
	}
	schema, err := loadSchemaConfig(filepath.Join(s.dir, "schema.yaml"))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = persona
	s.preproc = preproc
	s.generate = generate
	s.schema = schema
	return nil
}

// GetPersona returns the cached, validated persona configuration.
func (s *Store) GetPersona() (*PersonaConfig, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona, nil
}

// GetPreprocessingPrompts returns the cached Stage-1 prompt templates.
func (s *Store) GetPreprocessingPrompts() (*StagePrompts, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preproc, nil
}

// GetGenerationPrompts returns the cached Stage-3 prompt templates.
func (s *Store) GetGenerationPrompts() (*StagePrompts, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generate, nil
}

// GetSchema returns the schema descriptor if it matches the requested
// version. Only "1.1" is supported; v1.0 is explicitly deprecated
// (spec.md Open Question (a)).
func (s *Store) GetSchema(version string) (*SchemaConfig, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version != "" && version != s.schema.Version {
		return nil, pipelineerr.New(pipelineerr.ConfigInvalid,
			fmt.Sprintf("unsupported schema version %q; only %q is served", version, s.schema.Version), nil)
	}
	return s.schema, nil
}

// EnvOverrides returns the environment overrides read at load time.
func (s *Store) EnvOverrides() (EnvOverrides, error) {
	if err := s.ensureLoaded(); err != nil {
		return EnvOverrides{}, err
	}
	return s.env, nil
}

func loadPersona(path string) (*PersonaConfig, error) {
	var p PersonaConfig
	if err := decodeYAML(path, &p); err != nil {
		return nil, err
	}
	if err := structValidate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadStagePrompts(path string) (*StagePrompts, error) {
	var sp StagePrompts
	if err := decodeYAML(path, &sp); err != nil {
		return nil, err
	}
	if err := structValidate(&sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

func loadSchemaConfig(path string) (*SchemaConfig, error) {
	var sc SchemaConfig
	if err := decodeYAML(path, &sc); err != nil {
		return nil, err
	}
	if err := structValidate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func decodeYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pipelineerr.New(pipelineerr.ConfigInvalid, fmt.Sprintf("cannot read %s", path), err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return pipelineerr.New(pipelineerr.ConfigInvalid, fmt.Sprintf("cannot parse %s", path), err)
	}
	return nil
}

var structValidator = validator.New()

func structValidate(v any) error {
	if err := structValidator.Struct(v); err != nil {
		return pipelineerr.New(pipelineerr.ConfigInvalid, "struct-level validation failed", err)
	}
	return nil
}

// loadEnvOverrides reads the four startup environment overrides via
// viper, matching the teacher CLI's env-overlay pattern.
func loadEnvOverrides() EnvOverrides {
	v := viper.New()
	v.SetEnvPrefix("SUPERTASK")
	v.AutomaticEnv()
	v.BindEnv("llm_endpoint", "SUPERTASK_LLM_ENDPOINT", "LLM_ENDPOINT")
	v.BindEnv("llm_api_key", "SUPERTASK_LLM_API_KEY", "LLM_API_KEY")
	v.BindEnv("reference_dir", "SUPERTASK_REFERENCE_DIR", "REFERENCE_DIR")
	v.BindEnv("prompt_audit_enabled", "SUPERTASK_PROMPT_AUDIT_ENABLED", "PROMPT_AUDIT_ENABLED")

	audit := false
	if raw := strings.TrimSpace(v.GetString("prompt_audit_enabled")); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			audit = b
		}
	}

	return EnvOverrides{
		LLMEndpoint:        v.GetString("llm_endpoint"),
		LLMAPIKey:          v.GetString("llm_api_key"),
		ReferenceDir:       v.GetString("reference_dir"),
		PromptAuditEnabled: audit,
	}
}
