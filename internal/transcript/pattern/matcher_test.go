package pattern_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/transcript/pattern"
)

func newDefaultMatcher(t *testing.T) *pattern.Matcher {
	t.Helper()
	m, err := pattern.New(config.Default().Patterns)
	if err != nil {
		t.Fatalf("New with default rules: %v", err)
	}
	return m
}

func TestNew_RejectsBadRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rules pattern.Rules
		want  string
	}{
		{
			name:  "no speaker rules",
			rules: pattern.Rules{},
			want:  "at least one rule",
		},
		{
			name: "bad regex",
			rules: pattern.Rules{Speaker: []pattern.Rule{
				{Name: "broken", Pattern: `^([A-Z]+:\s*(.+)$`, Confidence: 0.5},
			}},
			want: "speaker_patterns[0].pattern",
		},
		{
			name: "too few groups",
			rules: pattern.Rules{Speaker: []pattern.Rule{
				{Name: "one", Pattern: `^([A-Z]+):`, Confidence: 0.5},
			}},
			want: "capture groups",
		},
		{
			name: "confidence out of range",
			rules: pattern.Rules{Speaker: []pattern.Rule{
				{Name: "hot", Pattern: `^(\w+):\s*(.+)$`, Confidence: 1.5},
			}},
			want: "out of range",
		},
		{
			name: "duplicate names",
			rules: pattern.Rules{Speaker: []pattern.Rule{
				{Name: "dup", Pattern: `^(\w+):\s*(.+)$`, Confidence: 0.5},
				{Name: "dup", Pattern: `^(\w+)>\s*(.+)$`, Confidence: 0.5},
			}},
			want: "duplicate",
		},
		{
			name: "joint edge rule needs three groups",
			rules: pattern.Rules{
				Speaker: []pattern.Rule{{Name: "ok", Pattern: `^(\w+):\s*(.+)$`, Confidence: 0.5}},
				Edge:    []pattern.Rule{{Name: "pair", Pattern: `^(\w+) and \w+:\s*(.+)$`, Confidence: 0.5, Kind: pattern.EdgeJoint}},
			},
			want: "needs at least 3",
		},
		{
			name: "bad noise pattern",
			rules: pattern.Rules{
				Speaker: []pattern.Rule{{Name: "ok", Pattern: `^(\w+):\s*(.+)$`, Confidence: 0.5}},
				Noise:   []string{`(`},
			},
			want: "noise_patterns[0]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := pattern.New(tc.rules)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestCleanText_DropsNoiseLines(t *testing.T) {
	t.Parallel()

	m := newDefaultMatcher(t)
	in := "John: Hello there.\n[Background noise]\n   \n(Coughing)\nMary:   Hi John.  \n---\n[00:12] Bob: Timestamped lines survive."
	got := m.CleanText(in)
	want := "John: Hello there.\nMary:   Hi John.\n[00:12] Bob: Timestamped lines survive."
	if got != want {
		t.Errorf("CleanText =\n%q\nwant\n%q", got, want)
	}
}

func TestFindSpeakerPatterns_Scenarios(t *testing.T) {
	t.Parallel()

	m := newDefaultMatcher(t)

	tests := []struct {
		name     string
		text     string
		speakers []string
	}{
		{
			name:     "simple names",
			text:     "John: Hello, how are you today?\nMary: I'm doing well, thank you for asking.",
			speakers: []string{"John", "Mary"},
		},
		{
			name:     "numbered speakers",
			text:     "Speaker 1: Welcome.\nSpeaker 2: Thanks.\nSpeaker 1: Let's continue.",
			speakers: []string{"Speaker 1", "Speaker 2", "Speaker 1"},
		},
		{
			name:     "no colon is not a turn",
			text:     "John: First line.\nmaybe john said something\nMary: Last line.",
			speakers: []string{"John", "Mary"},
		},
		{
			name:     "timestamps and roles",
			text:     "[00:01] Alice (Host): Welcome to the show.\n[00:05] Bob: Glad to be here.",
			speakers: []string{"Alice", "Bob"},
		},
		{
			name:     "titled speaker",
			text:     "Dr. Smith: The results are in.",
			speakers: []string{"Dr. Smith"},
		},
		{
			name:     "uppercase speaker",
			text:     "INTERVIEWER: Tell me about yourself.",
			speakers: []string{"INTERVIEWER"},
		},
		{
			name:     "stop words are not speakers",
			text:     "Note: this is not a speaker.\nThe: neither is this.",
			speakers: nil,
		},
		{
			name:     "two turns on one line",
			text:     "John: How are you today? Mary: I'm fine, thanks.",
			speakers: []string{"John", "Mary"},
		},
		{
			name:     "honorific does not split",
			text:     "Anna: I spoke to Mr. Brown: he agreed.",
			speakers: []string{"Anna"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			matches := m.FindSpeakerPatterns(tc.text)
			if len(matches) != len(tc.speakers) {
				t.Fatalf("got %d matches (%+v), want %d", len(matches), matches, len(tc.speakers))
			}
			for i, match := range matches {
				if match.Speaker != tc.speakers[i] {
					t.Errorf("matches[%d].Speaker = %q, want %q", i, match.Speaker, tc.speakers[i])
				}
			}
		})
	}
}

func TestFindSpeakerPatterns_PositionsAndOrder(t *testing.T) {
	t.Parallel()

	m := newDefaultMatcher(t)
	text := "John: How are you today? Mary: I'm fine, thanks.\nBob: Good to hear."
	matches := m.FindSpeakerPatterns(text)
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	prevEnd := -1
	for i, match := range matches {
		if match.StartPos < prevEnd {
			t.Errorf("matches[%d] overlaps previous: start %d < end %d", i, match.StartPos, prevEnd)
		}
		if got := text[match.StartPos:match.EndPos]; !strings.HasPrefix(got, match.Speaker) {
			t.Errorf("matches[%d] span %q does not start with speaker %q", i, got, match.Speaker)
		}
		prevEnd = match.EndPos
	}
	if matches[0].Statement != "How are you today?" {
		t.Errorf("first statement = %q", matches[0].Statement)
	}
}

func TestFindSpeakerPatterns_ConfidenceBounds(t *testing.T) {
	t.Parallel()

	m := newDefaultMatcher(t)
	text := strings.Join([]string{
		"John: Hi.",
		"Speaker 1: Welcome everyone to the meeting.",
		"[00:01] Alice (Host): Welcome.",
		"ALICE: ok",
		"x: y",
		"Agent007: Shaken, not stirred.",
		"Averyveryveryverylongnamethatgoesonandonandonandonandonandon: hi",
		"李明: 你好",
	}, "\n")
	for _, match := range m.FindSpeakerPatterns(text) {
		if match.Confidence < 0 || match.Confidence > 1 {
			t.Errorf("match %q confidence %v out of [0, 1]", match.Speaker, match.Confidence)
		}
		if match.PatternName == "" {
			t.Errorf("match %q has no pattern name", match.Speaker)
		}
	}
}

func TestFindEdgeCases(t *testing.T) {
	t.Parallel()

	m := newDefaultMatcher(t)
	text := "Intro line.\nJohn and Mary: We agree.\n(Laughing): That was funny.\nBob continues: As I was saying."
	matches := m.FindEdgeCases(text)

	want := map[string]string{
		"multiple_speakers":  "John and Mary",
		"action_description": "*Laughing*",
		"continuation":       "Bob",
	}
	got := make(map[string]string)
	for _, match := range matches {
		got[match.PatternName] = match.Speaker
	}
	for rule, speaker := range want {
		if got[rule] != speaker {
			t.Errorf("rule %s speaker = %q, want %q", rule, got[rule], speaker)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].StartPos < matches[i-1].StartPos {
			t.Errorf("edge matches not in document order: %+v", matches)
		}
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		speaker   string
		statement string
		base      float64
		want      float64
	}{
		{"title case and punctuation", "John", "Hello, how are you?", 0.8, 0.95},
		{"lowercase speaker", "john", "Hello, how are you", 0.7, 0.7},
		{"short statement", "john", "Hi", 0.7, 0.6},
		{"speaker number", "speaker 2", "Hello, how are you", 0.5, 0.6},
		{"stray digit", "agent7", "Hello, how are you", 0.5, 0.35},
		{"long speaker", strings.Repeat("a", 51), "Hello, how are you", 0.5, 0.3},
		{"clamped high", "Speaker 1", "Welcome, everyone.", 0.95, 1},
		{"clamped low", "x1", "hi", 0.1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := pattern.Score(tc.speaker, tc.statement, tc.base)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Score(%q, %q, %v) = %v, want %v", tc.speaker, tc.statement, tc.base, got, tc.want)
			}
			if again := pattern.Score(tc.speaker, tc.statement, tc.base); again != got {
				t.Errorf("Score is not deterministic: %v then %v", got, again)
			}
		})
	}
}

func TestPartition_ExactForAnyThreshold(t *testing.T) {
	t.Parallel()

	matches := []pattern.Match{
		{Speaker: "A", Confidence: 0},
		{Speaker: "B", Confidence: 0.5},
		{Speaker: "C", Confidence: 0.8},
		{Speaker: "D", Confidence: 0.79},
		{Speaker: "E", Confidence: 1},
	}
	for _, threshold := range []float64{-1, 0, 0.3, 0.5, 0.79, 0.8, 0.95, 1, 2} {
		high := pattern.HighConfidence(matches, threshold)
		low := pattern.Ambiguous(matches, threshold)
		if len(high)+len(low) != len(matches) {
			t.Errorf("threshold %v: %d + %d != %d", threshold, len(high), len(low), len(matches))
		}
		seen := make(map[string]bool)
		for _, m := range high {
			if m.Confidence < threshold {
				t.Errorf("threshold %v: %s in high with %v", threshold, m.Speaker, m.Confidence)
			}
			seen[m.Speaker] = true
		}
		for _, m := range low {
			if m.Confidence >= threshold {
				t.Errorf("threshold %v: %s in low with %v", threshold, m.Speaker, m.Confidence)
			}
			if seen[m.Speaker] {
				t.Errorf("threshold %v: %s in both partitions", threshold, m.Speaker)
			}
		}
	}
}

func TestUsageAndSpeakers(t *testing.T) {
	t.Parallel()

	matches := []pattern.Match{
		{Speaker: "John", PatternName: "single_name", Confidence: 0.9},
		{Speaker: "Mary", PatternName: "single_name", Confidence: 0.7},
		{Speaker: "John", PatternName: "timestamped", Confidence: 0.8},
	}
	usage := pattern.Usage(matches)
	if usage["single_name"] != 2 || usage["timestamped"] != 1 {
		t.Errorf("Usage = %v", usage)
	}
	speakers := pattern.Speakers(matches)
	if len(speakers) != 2 || speakers[0] != "John" || speakers[1] != "Mary" {
		t.Errorf("Speakers = %v", speakers)
	}
	if got := pattern.AverageConfidence(matches); got < 0.7999 || got > 0.8001 {
		t.Errorf("AverageConfidence = %v, want 0.8", got)
	}
	if got := pattern.AverageConfidence(nil); got != 0 {
		t.Errorf("AverageConfidence(nil) = %v", got)
	}
}
