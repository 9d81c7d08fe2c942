package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the LLM provider names speakerfmt knows about.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path, decodes it over
// [Default] and returns the validated result. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeInto(cfg, r); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Tables
	if err := cfg.Patterns.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Normalization.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("normalization: %w", err))
	}
	if err := resolve.ValidatePrompts(cfg.Prompts); err != nil {
		errs = append(errs, fmt.Errorf("prompts: %w", err))
	}

	// Processing
	p := cfg.Processing
	if !p.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("processing.mode %q is invalid; valid values: fast, balanced, thorough", p.Mode))
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("processing.confidence_threshold %.2f is out of range [0, 1]", p.ConfidenceThreshold))
	}
	if p.MaxSpeakers <= 0 {
		errs = append(errs, fmt.Errorf("processing.max_speakers must be positive, got %d", p.MaxSpeakers))
	}
	if !p.ValidationLevel.IsValid() {
		errs = append(errs, fmt.Errorf("processing.validation_level %q is invalid; valid values: strict, moderate, lenient", p.ValidationLevel))
	}
	if p.SplitLongStatements < 0 {
		errs = append(errs, fmt.Errorf("processing.split_long_statements must not be negative, got %d", p.SplitLongStatements))
	}
	if p.BatchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("processing.batch_concurrency must not be negative, got %d", p.BatchConcurrency))
	}

	// LLM
	l := cfg.LLM
	if l.Temperature < 0 || l.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", l.Temperature))
	}
	if l.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must not be negative, got %d", l.MaxTokens))
	}
	if l.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must not be negative, got %s", l.Timeout))
	}
	if l.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("llm.rate_limit must not be negative, got %.2f", l.RateLimit))
	}
	if l.AcceptThreshold < 0 || l.AcceptThreshold > 1 {
		errs = append(errs, fmt.Errorf("llm.accept_threshold %.2f is out of range [0, 1]", l.AcceptThreshold))
	}
	if l.ContextWindow < 0 || l.ChunkLines < 0 || l.Concurrency < 0 {
		errs = append(errs, errors.New("llm.context_window, llm.chunk_lines and llm.concurrency must not be negative"))
	}
	validateProviderName("llm.provider", l.Provider.Name)
	for i, fb := range l.Fallbacks {
		prefix := fmt.Sprintf("llm.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}
	if len(l.Fallbacks) > 0 && l.Provider.Name == "" {
		errs = append(errs, errors.New("llm.fallbacks requires llm.provider.name"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
