package format_test

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want format.LineClass
	}{
		{"John: Hello there.", format.LineConformant},
		{"Speaker 1: Welcome.", format.LineConformant},
		{"John:", format.LineHeader},
		{"Dr. Smith:", format.LineHeader},
		{"李明: 你好", format.LineRepairable},
		{"John - hello there", format.LineRepairable},
		{"John Smith said hello to everyone", format.LineRepairable},
		{"maybe john said something", format.LineInvalid},
		{"", format.LineInvalid},
		{"   ", format.LineInvalid},
	}
	for _, tc := range tests {
		if got := format.Classify(tc.line); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"strict", "Moderate", " LENIENT "} {
		if _, err := format.ParseLevel(in); err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
		}
	}
	if _, err := format.ParseLevel("pedantic"); err == nil {
		t.Error("ParseLevel(pedantic) should fail")
	}
}

func TestCleanSpeaker(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"john smith":      "John Smith",
		"speaker2":        "Speaker 2",
		"SPEAKER  3":      "Speaker 3",
		"CEO":             "CEO",
		"JOHN":            "John",
		"CEO of ACME":     "CEO of Acme",
		"DJ KHALED":       "DJ Khaled",
		"John::":          "John",
		"  ":              label.UnknownSpeaker,
		"bank of america": "Bank of America",
	}
	for in, want := range tests {
		if got := format.CleanSpeaker(in); got != want {
			t.Errorf("CleanSpeaker(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanStatement(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  hello world  ":   "hello world.",
		": leading colon":   "leading colon.",
		"Wait . What ?":     "Wait. What?",
		"Hi.There":          "Hi. There.",
		"example.com rocks": "example.com rocks.",
		"Really!":           "Really!",
		"multi\n  line":     "multi line.",
		"":                  "",
		" : ":               "",
	}
	for in, want := range tests {
		if got := format.CleanStatement(in); got != want {
			t.Errorf("CleanStatement(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTranscript(t *testing.T) {
	t.Parallel()

	got := format.FormatTranscript([]format.Pair{
		{Speaker: "john", Statement: "Hello, how are you today?"},
		{Speaker: "Mary", Statement: "I'm doing well"},
		{Speaker: "Bob", Statement: "   "},
	})
	want := "John:\nHello, how are you today?\nMary:\nI'm doing well."
	if got != want {
		t.Errorf("FormatTranscript =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatTranscript_RoundTrip(t *testing.T) {
	t.Parallel()

	pairs := []format.Pair{
		{Speaker: "john", Statement: "hello there"},
		{Speaker: "MARY", Statement: "I'm fine"},
		{Speaker: "speaker 2", Statement: "ok"},
		{Speaker: "bank of america", Statement: "we agree"},
		{Speaker: "John", Statement: "again"},
	}
	var want []string
	for _, p := range pairs {
		if s := format.CleanSpeaker(p.Speaker); !slices.Contains(want, s) {
			want = append(want, s)
		}
	}
	slices.Sort(want)

	got := format.ExtractSpeakers(format.FormatTranscript(pairs))
	if !slices.Equal(got, want) {
		t.Errorf("ExtractSpeakers(FormatTranscript) = %q, want %q", got, want)
	}
}

func TestCleanSpeaker_LongLabel(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Bartholomew ", 5) + "Mary"
	got := format.CleanSpeaker(long)
	if n := len([]rune(got)); n > format.MaxSpeakerLength {
		t.Errorf("CleanSpeaker(long) has %d runes, want at most %d", n, format.MaxSpeakerLength)
	}
	if got != strings.TrimSpace(got) {
		t.Errorf("CleanSpeaker(long) = %q has edge whitespace", got)
	}
	if again := format.CleanSpeaker(got); again != got {
		t.Errorf("CleanSpeaker not stable: %q -> %q", got, again)
	}
}

func TestFormatTranscript_RoundTripLongLabel(t *testing.T) {
	t.Parallel()

	pairs := []format.Pair{
		{Speaker: strings.Repeat("Bartholomew ", 5) + "Mary", Statement: "a very long introduction"},
		{Speaker: "Mary", Statement: "thanks"},
	}
	text := format.FormatTranscript(pairs)
	got := format.ExtractSpeakers(text)
	if len(got) != 2 || !slices.Contains(got, "Mary") {
		t.Errorf("ExtractSpeakers = %q, want the long label and Mary\n%s", got, text)
	}
	if r := format.Validate(text, format.LevelStrict); !r.IsValid {
		t.Errorf("strict validation failed: %+v", r)
	}
}

func TestFormatTranscript_StatementsTerminated(t *testing.T) {
	t.Parallel()

	pairs := []format.Pair{
		{Speaker: "A", Statement: "what?"},
		{Speaker: "B", Statement: "wow!"},
		{Speaker: "C", Statement: "trailing spaces   "},
		{Speaker: "D", Statement: ": colon lead"},
		{Speaker: "E", Statement: `he said "hi"`},
		{Speaker: "F", Statement: "ellipsis..."},
	}
	turns := format.Parse(format.FormatTranscript(pairs))
	if len(turns) != len(pairs) {
		t.Fatalf("parsed %d turns, want %d", len(turns), len(pairs))
	}
	for _, turn := range turns {
		if !label.EndsSentence(turn.Statement) {
			t.Errorf("statement %q of %s is not terminated", turn.Statement, turn.Speaker)
		}
	}
}

func TestValidate_Empty(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "  \n\n "} {
		r := format.Validate(in, format.LevelStrict)
		if r.IsValid {
			t.Errorf("Validate(%q) should be invalid", in)
		}
		if len(r.Errors) == 0 || r.Errors[0] != "Transcript is empty" {
			t.Errorf("Validate(%q).Errors = %v", in, r.Errors)
		}
		if r.LineCount != 0 || r.SpeakerCount != 0 {
			t.Errorf("Validate(%q) counts = %d/%d, want 0/0", in, r.LineCount, r.SpeakerCount)
		}
	}
}

func TestValidate_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		level     format.Level
		valid     bool
		speakers  int
		wantError string
		wantWarn  string
	}{
		{
			name:     "two-line strict",
			text:     "John:\nHello there.\nMary:\nI'm fine.",
			level:    format.LevelStrict,
			valid:    true,
			speakers: 2,
		},
		{
			name:     "single-line strict",
			text:     "John: Hello there.\nSpeaker 2: Hi.",
			level:    format.LevelStrict,
			valid:    true,
			speakers: 2,
		},
		{
			name:      "lowercase speaker strict",
			text:      "john: hello",
			level:     format.LevelStrict,
			speakers:  1,
			wantError: "not title case",
		},
		{
			name:     "lowercase speaker moderate",
			text:     "john: hello",
			level:    format.LevelModerate,
			valid:    true,
			speakers: 1,
			wantWarn: "punctuation",
		},
		{
			name:     "lenient",
			text:     "john: hello\nsome stray prose",
			level:    format.LevelLenient,
			valid:    true,
			speakers: 1,
			wantWarn: "Line 2",
		},
		{
			name:      "prose only",
			text:      "just prose without a separator",
			level:     format.LevelModerate,
			wantError: "No speakers found",
		},
		{
			name:      "non-ascii label",
			text:      "李明: 你好.",
			level:     format.LevelLenient,
			speakers:  1,
			wantError: "invalid characters",
		},
		{
			name:      "header without statement",
			text:      "John:\nMary:\nHello.",
			level:     format.LevelModerate,
			speakers:  2,
			wantError: "has no statement",
		},
		{
			name:      "blank line strict",
			text:      "John: Hi.\n\nMary: Hello.",
			level:     format.LevelStrict,
			speakers:  2,
			wantError: "Line 2: empty line",
		},
		{
			name:     "blank line moderate",
			text:     "John: Hi.\n\nMary: Hello.",
			level:    format.LevelModerate,
			valid:    true,
			speakers: 2,
		},
		{
			name:     "double spaces",
			text:     "John: Hi  there.",
			level:    format.LevelStrict,
			valid:    true,
			speakers: 1,
			wantWarn: "consecutive spaces",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := format.Validate(tc.text, tc.level)
			if r.IsValid != tc.valid {
				t.Errorf("IsValid = %v, want %v (errors %v)", r.IsValid, tc.valid, r.Errors)
			}
			if r.SpeakerCount != tc.speakers {
				t.Errorf("SpeakerCount = %d, want %d", r.SpeakerCount, tc.speakers)
			}
			if tc.wantError != "" && !containsSubstring(r.Errors, tc.wantError) {
				t.Errorf("Errors = %v, want one containing %q", r.Errors, tc.wantError)
			}
			if tc.wantWarn != "" && !containsSubstring(r.Warnings, tc.wantWarn) {
				t.Errorf("Warnings = %v, want one containing %q", r.Warnings, tc.wantWarn)
			}
		})
	}
}

func TestValidate_ManySpeakersIsWarning(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := range 31 {
		fmt.Fprintf(&sb, "Speaker %d: Line number %d.\n", i+1, i+1)
	}
	r := format.Validate(sb.String(), format.LevelStrict)
	if !r.IsValid {
		t.Fatalf("31 speakers should be valid, errors %v", r.Errors)
	}
	if !containsSubstring(r.Warnings, "many speakers") {
		t.Errorf("Warnings = %v, want a speaker-count warning", r.Warnings)
	}

	r = format.Validate(sb.String(), format.LevelStrict, format.WithMaxSpeakers(40))
	if containsSubstring(r.Warnings, "many speakers") {
		t.Errorf("WithMaxSpeakers(40) still warns: %v", r.Warnings)
	}
}

func containsSubstring(list []string, sub string) bool {
	return slices.ContainsFunc(list, func(s string) bool { return strings.Contains(s, sub) })
}
