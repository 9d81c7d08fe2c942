package resolve_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/MrWong99/speakerfmt/internal/transcript/pattern"
	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm/mock"
)

const enhanceText = "John: Hello there everyone.\nj: yes I agree with that.\nMary: Good."

func enhanceMatches() []pattern.Match {
	return []pattern.Match{
		{Speaker: "John", Statement: "Hello there everyone.", Confidence: 0.95, PatternName: "single_name", StartPos: 0, EndPos: 27},
		{Speaker: "j", Statement: "yes I agree with that.", Confidence: 0.4, PatternName: "single_letter", StartPos: 28, EndPos: 53},
		{Speaker: "Mary", Statement: "Good.", Confidence: 0.85, PatternName: "single_name", StartPos: 54, EndPos: 65},
	}
}

func TestEnhance_AcceptsAndSnapsAnswer(t *testing.T) {
	t.Parallel()

	p := reply(`{"speaker": "john", "confidence": 0.9, "reasoning": "continues the greeting"}`)
	r := newResolver(t, p)

	in := enhanceMatches()
	got, stats := r.Enhance(context.Background(), enhanceText, in, 0.8)

	if stats != (resolve.EnhanceStats{Escalated: 1, Accepted: 1}) {
		t.Errorf("stats = %+v", stats)
	}
	if got[1].Speaker != "John" || got[1].Confidence != 0.9 || got[1].PatternName != "llm_enhanced_single_letter" {
		t.Errorf("enhanced match = %+v", got[1])
	}
	if got[0] != in[0] || got[2] != in[2] {
		t.Errorf("high-confidence matches changed: %+v", got)
	}
	if in[1].Speaker != "j" {
		t.Error("input slice was modified")
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(calls))
	}
	user := calls[0].Req.Messages[0].Content
	if !strings.Contains(user, "Possible speakers: John, Mary") {
		t.Errorf("candidates missing from prompt:\n%s", user)
	}
	if !strings.Contains(user, "'j: yes I agree with that.'") {
		t.Errorf("ambiguous text missing from prompt:\n%s", user)
	}
}

func TestEnhance_KeepsRegexMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider *mock.Provider
		want     resolve.EnhanceStats
	}{
		{"provider error", &mock.Provider{CompleteErr: errors.New("network down")}, resolve.EnhanceStats{Escalated: 1, Failed: 1}},
		{"low confidence", reply(`{"speaker": "John", "confidence": 0.5}`), resolve.EnhanceStats{Escalated: 1, Rejected: 1}},
		{"prose answer", reply("I think the speaker here is most likely John because of context."), resolve.EnhanceStats{Escalated: 1, Rejected: 1}},
		{"unknown answer", reply(`{"speaker": "Unknown", "confidence": 0.95}`), resolve.EnhanceStats{Escalated: 1, Rejected: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := newResolver(t, tc.provider)
			in := enhanceMatches()
			got, stats := r.Enhance(context.Background(), enhanceText, in, 0.8)
			if stats != tc.want {
				t.Errorf("stats = %+v, want %+v", stats, tc.want)
			}
			for i := range in {
				if got[i] != in[i] {
					t.Errorf("match %d = %+v, want unchanged %+v", i, got[i], in[i])
				}
			}
		})
	}
}

func TestEnhance_NewNameIsKept(t *testing.T) {
	t.Parallel()

	r := newResolver(t, reply(`{"speaker": "Dr. Watson", "confidence": 0.8}`))
	got, _ := r.Enhance(context.Background(), enhanceText, enhanceMatches(), 0.8)
	if got[1].Speaker != "Dr. Watson" {
		t.Errorf("speaker = %q, want Dr. Watson", got[1].Speaker)
	}
}

func TestEnhance_NothingBelowThreshold(t *testing.T) {
	t.Parallel()

	p := reply(`{"speaker": "X"}`)
	r := newResolver(t, p)
	got, stats := r.Enhance(context.Background(), enhanceText, enhanceMatches(), 0.3)
	if stats.Escalated != 0 || len(p.Calls()) != 0 {
		t.Errorf("escalated %d matches with %d calls, want none", stats.Escalated, len(p.Calls()))
	}
	if len(got) != 3 {
		t.Errorf("got %d matches, want 3", len(got))
	}
}

func TestValidateFinalTranscript(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := range 45 {
		lines = append(lines, fmt.Sprintf("Speaker %d: line %d.", i%3+1, i))
	}
	text := strings.Join(lines, "\n")

	t.Run("all valid", func(t *testing.T) {
		t.Parallel()
		p := reply(`{"is_valid": true, "issues": [], "confidence": 0.9}`)
		r := newResolver(t, p, resolve.WithCache(false))
		fv := r.ValidateFinalTranscript(context.Background(), text)
		if !fv.OverallValid || fv.TotalChunks != 3 || len(fv.Chunks) != 3 {
			t.Fatalf("validation = %+v, want 3 valid chunks", fv)
		}
		if math.Abs(fv.AverageConfidence-0.9) > 1e-9 {
			t.Errorf("average confidence = %v, want 0.9", fv.AverageConfidence)
		}
		for i, c := range fv.Chunks {
			if c.Index != i {
				t.Errorf("chunk %d has index %d", i, c.Index)
			}
		}
		if n := len(p.Calls()); n != 3 {
			t.Errorf("provider called %d times, want 3", n)
		}
	})

	t.Run("one invalid chunk", func(t *testing.T) {
		t.Parallel()
		p := &mock.Provider{
			CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				if strings.Contains(req.Messages[0].Content, "line 44.") {
					return &llm.CompletionResponse{Content: `{"is_valid": false, "issues": ["missing punctuation"], "confidence": 0.6}`}, nil
				}
				return &llm.CompletionResponse{Content: `{"is_valid": true, "confidence": 0.9}`}, nil
			},
		}
		r := newResolver(t, p)
		fv := r.ValidateFinalTranscript(context.Background(), text)
		if fv.OverallValid {
			t.Error("OverallValid = true with an invalid chunk")
		}
		if len(fv.Issues) != 1 || fv.Issues[0] != "missing punctuation" {
			t.Errorf("issues = %v", fv.Issues)
		}
		if fv.Chunks[2].IsValid || !fv.Chunks[0].IsValid {
			t.Errorf("chunk verdicts = %+v", fv.Chunks)
		}
	})

	t.Run("plain text verdict", func(t *testing.T) {
		t.Parallel()
		r := newResolver(t, reply("The segment is valid."))
		if fv := r.ValidateFinalTranscript(context.Background(), "John: Hi."); !fv.OverallValid {
			t.Errorf("plain valid verdict rejected: %+v", fv)
		}
		r = newResolver(t, reply("This is invalid."))
		if fv := r.ValidateFinalTranscript(context.Background(), "John: Hi."); fv.OverallValid {
			t.Errorf("plain invalid verdict accepted: %+v", fv)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		r := newResolver(t, &mock.Provider{CompleteErr: errors.New("down")})
		fv := r.ValidateFinalTranscript(context.Background(), "John: Hi.")
		if fv.OverallValid || len(fv.Issues) != 1 {
			t.Errorf("validation = %+v, want invalid with one issue", fv)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		p := reply(`{"is_valid": true}`)
		r := newResolver(t, p)
		fv := r.ValidateFinalTranscript(context.Background(), "  \n ")
		if fv.OverallValid || len(fv.Issues) == 0 || len(p.Calls()) != 0 {
			t.Errorf("empty transcript = %+v with %d calls", fv, len(p.Calls()))
		}
	})
}
