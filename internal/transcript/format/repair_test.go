package format_test

import (
	"testing"

	"github.com/MrWong99/speakerfmt/internal/transcript/format"
)

func TestFixCommonIssues(t *testing.T) {
	t.Parallel()

	in := "John - Hello there.\nMARY | Hi\nrandom lowercase line\nBob: Fine.\nAlice:\nGreat.\nCarol Smith told everyone the news"
	want := "John: Hello there.\nMARY: Hi\nBob: Fine.\nAlice:\nGreat.\nCarol Smith: told everyone the news"
	if got := format.FixCommonIssues(in); got != want {
		t.Errorf("FixCommonIssues =\n%q\nwant\n%q", got, want)
	}
}

func TestFixCommonIssues_ConjunctionBlocksHeuristic(t *testing.T) {
	t.Parallel()

	if got := format.FixCommonIssues("Later and then we left the building"); got != "" {
		t.Errorf("FixCommonIssues = %q, want the line dropped", got)
	}
}

func TestConvertToNumbered(t *testing.T) {
	t.Parallel()

	in := "John: Hi.\nMary: Hello.\n\nnoise line here\nJohn:\nBye."
	want := "Speaker 1: Hi.\nSpeaker 2: Hello.\n\nnoise line here\nSpeaker 1:\nBye."
	if got := format.ConvertToNumbered(in); got != want {
		t.Errorf("ConvertToNumbered =\n%q\nwant\n%q", got, want)
	}
}

func TestSplitLongStatements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{
			name:   "one sentence per piece",
			in:     "John:\nFirst sentence here. Second sentence here. Third one.",
			maxLen: 30,
			want:   "John:\nFirst sentence here.\nJohn:\nSecond sentence here.\nJohn:\nThird one.",
		},
		{
			name:   "packs sentences",
			in:     "John:\nFirst sentence here. Second sentence here. Third one.",
			maxLen: 45,
			want:   "John:\nFirst sentence here. Second sentence here.\nJohn:\nThird one.",
		},
		{
			name:   "single-line form",
			in:     "Bob: One. Two.",
			maxLen: 5,
			want:   "Bob: One.\nBob: Two.",
		},
		{
			name:   "long sentence kept whole",
			in:     "Bob: This single sentence is far longer than the limit.",
			maxLen: 10,
			want:   "Bob: This single sentence is far longer than the limit.",
		},
		{
			name:   "short statements untouched",
			in:     "Ann:\nShort.\nBen: Also short.",
			maxLen: 100,
			want:   "Ann:\nShort.\nBen: Also short.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := format.SplitLongStatements(tc.in, tc.maxLen); got != tc.want {
				t.Errorf("SplitLongStatements =\n%q\nwant\n%q", got, tc.want)
			}
		})
	}
}

func TestStatistics(t *testing.T) {
	t.Parallel()

	s := format.Statistics("John:\nHello.\nMary:\nHi there.\nJohn:\nBye.", format.LevelStrict)
	if s.Lines != 6 || s.Statements != 3 || s.Speakers != 2 {
		t.Errorf("Statistics = %+v", s)
	}
	if !s.IsValid || s.Errors != 0 {
		t.Errorf("Statistics validity = %+v", s)
	}
	if s.AverageStatementLength < 6.33 || s.AverageStatementLength > 6.34 {
		t.Errorf("AverageStatementLength = %v, want 19/3", s.AverageStatementLength)
	}
}
