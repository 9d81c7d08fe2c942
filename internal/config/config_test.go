package config_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/resilience"
	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm/mock"
)

// ── Defaults ─────────────────────────────────────────────────────────────────

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("embedded defaults are invalid: %v", err)
	}
}

func TestDefault_Values(t *testing.T) {
	t.Parallel()
	cfg := config.Default()

	if cfg.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	p := cfg.Processing
	if p.Mode != config.ModeBalanced || p.ConfidenceThreshold != 0.8 || !p.UseLLM || p.MaxSpeakers != 30 {
		t.Errorf("processing = %+v", p)
	}
	if p.ValidationLevel != format.LevelStrict || !p.EnableSpeakerNormalization || !p.EnableFormatEnforcement {
		t.Errorf("processing = %+v", p)
	}
	if cfg.LLM.Timeout != 30*time.Second || cfg.LLM.MaxTokens != 500 || !cfg.LLM.Cache {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.CircuitBreaker.MaxFailures != 5 || cfg.LLM.CircuitBreaker.ResetTimeout != 30*time.Second {
		t.Errorf("circuit breaker = %+v", cfg.LLM.CircuitBreaker)
	}
	if len(cfg.Patterns.Speaker) != 13 || cfg.Patterns.Speaker[0].Name != "timestamped_with_role" {
		t.Errorf("got %d speaker rules, first %q", len(cfg.Patterns.Speaker), cfg.Patterns.Speaker[0].Name)
	}
	if len(cfg.Patterns.Edge) != 4 || len(cfg.Patterns.NonSpeakers) == 0 {
		t.Errorf("edge rules = %d, non-speakers = %d", len(cfg.Patterns.Edge), len(cfg.Patterns.NonSpeakers))
	}
	if len(cfg.Prompts) != len(resolve.DefaultPrompts()) {
		t.Errorf("got %d prompts, want %d", len(cfg.Prompts), len(resolve.DefaultPrompts()))
	}
	if cfg.Enabled() {
		t.Error("Enabled() = true without a provider")
	}
}

func TestDefault_ReturnsIndependentCopies(t *testing.T) {
	t.Parallel()
	a := config.Default()
	a.Patterns.Speaker[0].Name = "changed"
	a.Prompts[resolve.TaskValidation] = resolve.Prompt{}
	b := config.Default()
	if b.Patterns.Speaker[0].Name == "changed" || b.Prompts[resolve.TaskValidation].System == "" {
		t.Error("Default shares state between calls")
	}
}

func TestDefaultYAML_RoundTrips(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(bytes.NewReader(config.DefaultYAML()))
	if err != nil {
		t.Fatalf("LoadFromReader(DefaultYAML()) error: %v", err)
	}
	if len(cfg.Patterns.Speaker) != 13 {
		t.Errorf("got %d speaker rules, want 13", len(cfg.Patterns.Speaker))
	}
}

func TestEnabled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		mode     config.Mode
		useLLM   bool
		provider string
		want     bool
	}{
		{"balanced with provider", config.ModeBalanced, true, "openai", true},
		{"thorough with provider", config.ModeThorough, true, "gemini", true},
		{"fast", config.ModeFast, true, "openai", false},
		{"disabled", config.ModeBalanced, false, "openai", false},
		{"no provider", config.ModeThorough, true, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Processing.Mode = tc.mode
			cfg.Processing.UseLLM = tc.useLLM
			cfg.LLM.Provider.Name = tc.provider
			if got := cfg.Enabled(); got != tc.want {
				t.Errorf("Enabled() = %v, want %v", got, tc.want)
			}
		})
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &mock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return want, nil
	})
	got, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received %+v", gotEntry)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, n := range []string{"openai", "anthropic", "gemini"} {
		reg.RegisterLLM(n, func(config.ProviderEntry) (llm.Provider, error) { return &mock.Provider{}, nil })
	}
	got := reg.Names()
	if len(got) != 3 || got[0] != "anthropic" || got[2] != "openai" {
		t.Errorf("Names() = %v", got)
	}
}

func TestRegistry_BuildLLM(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{CompleteErr: errors.New("primary down")}
	backup := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	reg := config.NewRegistry()
	reg.RegisterLLM("primary", func(config.ProviderEntry) (llm.Provider, error) { return primary, nil })
	reg.RegisterLLM("backup", func(config.ProviderEntry) (llm.Provider, error) { return backup, nil })

	t.Run("no provider", func(t *testing.T) {
		t.Parallel()
		if _, err := reg.BuildLLM(config.LLMConfig{}); !errors.Is(err, config.ErrNoProvider) {
			t.Errorf("expected ErrNoProvider, got %v", err)
		}
	})

	t.Run("primary only", func(t *testing.T) {
		t.Parallel()
		p, err := reg.BuildLLM(config.LLMConfig{Provider: config.ProviderEntry{Name: "primary"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != primary {
			t.Error("expected the primary provider unwrapped")
		}
	})

	t.Run("unknown fallback", func(t *testing.T) {
		t.Parallel()
		_, err := reg.BuildLLM(config.LLMConfig{
			Provider:  config.ProviderEntry{Name: "primary"},
			Fallbacks: []config.ProviderEntry{{Name: "missing"}},
		})
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("expected ErrProviderNotRegistered, got %v", err)
		}
	})

	t.Run("fails over", func(t *testing.T) {
		t.Parallel()
		p, err := reg.BuildLLM(config.LLMConfig{
			Provider:       config.ProviderEntry{Name: "primary"},
			Fallbacks:      []config.ProviderEntry{{Name: "backup"}},
			CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 3},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fb, ok := p.(*resilience.LLMFallback)
		if !ok {
			t.Fatalf("BuildLLM returned %T, want *resilience.LLMFallback", p)
		}
		if names := fb.Names(); len(names) != 2 || names[0] != "primary" || names[1] != "backup" {
			t.Errorf("Names() = %v", names)
		}
		resp, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
		if err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		if resp.Content != "ok" {
			t.Errorf("Content = %q, want ok", resp.Content)
		}
	})
}
