package openai

import (
	"testing"

	"github.com/MrWong99/speakerfmt/pkg/provider/llm"
)

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role  string
		check func(t *testing.T, m llm.Message)
	}{
		{"system", func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfSystem == nil {
				t.Fatal("expected OfSystem to be set")
			}
		}},
		{"user", func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfUser == nil {
				t.Fatal("expected OfUser to be set")
			}
		}},
		{"assistant", func(t *testing.T, m llm.Message) {
			p, err := convertMessage(m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.OfAssistant == nil {
				t.Fatal("expected OfAssistant to be set")
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			tc.check(t, llm.Message{Role: tc.role, Content: "Who is speaking?"})
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty api key")
	}
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), DefaultModel)
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You analyse meeting transcripts.",
		Messages:     []llm.Message{llm.UserMessage("Who is speaking?")},
		Temperature:  0.1,
		MaxTokens:    500,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if got := params.Temperature.Value; got != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", got)
	}
	if got := params.MaxCompletionTokens.Value; got != 500 {
		t.Errorf("MaxCompletionTokens = %v, want 500", got)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for request without messages")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	if got := modelCapabilities("gpt-3.5-turbo").ContextWindow; got != 16_385 {
		t.Errorf("gpt-3.5-turbo ContextWindow = %d, want 16385", got)
	}
	if !modelCapabilities("gpt-4o").SupportsJSONMode {
		t.Error("gpt-4o should report JSON mode support")
	}
	if modelCapabilities("my-finetune").SupportsJSONMode {
		t.Error("unknown models should not claim JSON mode support")
	}
}
