// Package config provides the configuration schema, embedded defaults, loader
// and LLM provider registry of speakerfmt.
//
// A [Config] starts from the defaults compiled into the binary ([Default]).
// [Load] and [LoadFromReader] decode a user YAML file over those defaults, so
// a file only needs the keys it changes. Lists such as speaker_patterns are
// replaced wholesale; maps such as prompts are merged per key.
package config

import (
	"time"

	"github.com/MrWong99/speakerfmt/internal/resilience"
	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/pattern"
	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
	"github.com/MrWong99/speakerfmt/internal/transcript/speaker"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects how much of the pipeline may call the language model.
type Mode string

const (
	// ModeFast never calls the language model.
	ModeFast Mode = "fast"

	// ModeBalanced escalates only low-confidence matches.
	ModeBalanced Mode = "balanced"

	// ModeThorough additionally validates the final transcript with the model.
	ModeThorough Mode = "thorough"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeFast, ModeBalanced, ModeThorough:
		return true
	}
	return false
}

// Config is the root configuration. The pattern tables sit at the top level
// of the YAML document.
type Config struct {
	Patterns      pattern.Rules                   `yaml:",inline"`
	Normalization speaker.Rules                   `yaml:"normalization"`
	Prompts       map[resolve.Task]resolve.Prompt `yaml:"prompts"`
	Processing    ProcessingConfig                `yaml:"processing"`
	LLM           LLMConfig                       `yaml:"llm"`
	LogLevel      LogLevel                        `yaml:"log_level"`
}

// ProcessingConfig controls the transcript pipeline.
type ProcessingConfig struct {
	Mode Mode `yaml:"mode"`

	// ConfidenceThreshold separates confident matches from those escalated
	// to the language model.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// UseLLM enables the resolver. Without a configured provider it is
	// ignored with a warning.
	UseLLM bool `yaml:"use_llm"`

	// MaxSpeakers is the distinct speaker count above which validation warns.
	MaxSpeakers int `yaml:"max_speakers"`

	ValidationLevel            format.Level `yaml:"validation_level"`
	EnableSpeakerNormalization bool         `yaml:"enable_speaker_normalization"`
	EnableFormatEnforcement    bool         `yaml:"enable_format_enforcement"`
	OutputNumberedSpeakers     bool         `yaml:"output_numbered_speakers"`

	// IncludeEdgeCases adds joint and continuation edge-case matches for
	// lines no speaker rule matched.
	IncludeEdgeCases bool `yaml:"include_edge_cases"`

	// SplitLongStatements re-wraps statements longer than this many runes at
	// sentence boundaries. Zero disables wrapping.
	SplitLongStatements int `yaml:"split_long_statements"`

	// BatchConcurrency bounds how many files a batch run processes at once.
	BatchConcurrency int `yaml:"batch_concurrency"`
}

// ProviderEntry configures one LLM backend. The Name field is used to look
// up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "gemini").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// LLMConfig configures the resolver and its providers.
type LLMConfig struct {
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary provider fails or its
	// circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`

	// RateLimit is the sustained request rate per second. Zero disables
	// limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	Cache bool `yaml:"cache"`

	// AcceptThreshold is the confidence a model answer must exceed to
	// replace a regex speaker.
	AcceptThreshold float64 `yaml:"accept_threshold"`

	// ContextWindow is the number of bytes around an escalated match sent as
	// context.
	ContextWindow int `yaml:"context_window"`

	// ChunkLines is the chunk size of final transcript validation.
	ChunkLines int `yaml:"chunk_lines"`

	// Concurrency bounds parallel model calls within one transcript.
	Concurrency int `yaml:"concurrency"`

	CircuitBreaker resilience.CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Enabled reports whether the configuration asks for a resolver and names a
// provider for it.
func (c *Config) Enabled() bool {
	return c.Processing.UseLLM && c.Processing.Mode != ModeFast && c.LLM.Provider.Name != ""
}
