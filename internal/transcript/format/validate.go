package format

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

// Report is the result of [Validate]. An invalid report is a normal outcome,
// not an error.
type Report struct {
	IsValid      bool     `json:"is_valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	LineCount    int      `json:"line_count"`
	SpeakerCount int      `json:"speaker_count"`
}

// ValidateOption tunes [Validate].
type ValidateOption func(*validateConfig)

type validateConfig struct {
	maxSpeakers int
}

// WithMaxSpeakers sets the distinct-speaker count above which Validate warns.
// Default: [DefaultMaxSpeakers].
func WithMaxSpeakers(n int) ValidateOption {
	return func(c *validateConfig) {
		c.maxSpeakers = n
	}
}

// Validate checks text against the canonical grammar at the given level.
//
// At every level the speaker label must be 1 to [MaxSpeakerLength] runes from
// the label character set and statements must not start with a colon.
// Strict additionally rejects blank lines, speakers that are not title case,
// all caps or "Speaker N", and statements without terminal punctuation;
// moderate only warns about the latter. Repeated spaces are always a warning.
func Validate(text string, level Level, opts ...ValidateOption) Report {
	cfg := validateConfig{maxSpeakers: DefaultMaxSpeakers}
	for _, o := range opts {
		o(&cfg)
	}

	if strings.TrimSpace(text) == "" {
		return Report{Errors: []string{"Transcript is empty"}}
	}

	lines := splitLines(text)
	r := Report{LineCount: len(lines)}
	errorf := func(format string, args ...any) { r.Errors = append(r.Errors, fmt.Sprintf(format, args...)) }
	warnf := func(format string, args ...any) { r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...)) }

	if level == LevelStrict {
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				errorf("Line %d: empty line", i+1)
			}
		}
	}

	speakers := make(map[string]struct{})
	for _, b := range scan(lines) {
		t := b.turn
		if !b.ok {
			if level == LevelLenient {
				warnf("Line %d: not in 'Speaker: statement' format", t.Line)
			} else {
				errorf("Line %d: not in 'Speaker: statement' format", t.Line)
			}
			continue
		}
		speakers[t.Speaker] = struct{}{}

		n := utf8.RuneCountInString(t.Speaker)
		switch {
		case n < 1 || n > MaxSpeakerLength:
			errorf("Line %d: speaker name length %d is outside 1-%d", t.Line, n, MaxSpeakerLength)
		case !labelCharset.MatchString(t.Speaker):
			errorf("Line %d: speaker %q contains invalid characters", t.Line, t.Speaker)
		}
		if level == LevelStrict && !wellCapitalised(t.Speaker) {
			errorf("Line %d: speaker %q is not title case", t.Line, t.Speaker)
		}

		if t.Statement == "" {
			errorf("Line %d: speaker %q has no statement", t.Line, t.Speaker)
			continue
		}
		if strings.HasPrefix(t.Statement, ":") {
			errorf("Line %d: statement starts with a colon", t.Line)
		}
		if !label.EndsSentence(t.Statement) {
			switch level {
			case LevelStrict:
				errorf("Line %d: statement does not end with punctuation", t.Line)
			case LevelModerate:
				warnf("Line %d: statement does not end with punctuation", t.Line)
			}
		}
		for _, raw := range t.Original {
			if strings.Contains(strings.TrimSpace(raw), "  ") {
				warnf("Line %d: multiple consecutive spaces", t.Line)
				break
			}
		}
	}

	r.SpeakerCount = len(speakers)
	if r.SpeakerCount == 0 {
		errorf("No speakers found")
	} else if cfg.maxSpeakers > 0 && r.SpeakerCount > cfg.maxSpeakers {
		warnf("Unusually many speakers: %d (more than %d)", r.SpeakerCount, cfg.maxSpeakers)
	}

	r.IsValid = len(r.Errors) == 0
	return r
}

// wellCapitalised accepts "Speaker N" and labels whose words are each title
// case, all caps, uncased, or an inner function word.
func wellCapitalised(name string) bool {
	if label.IsSpeakerNumber(name) {
		return true
	}
	for i, w := range strings.Fields(name) {
		if i > 0 && label.FunctionWord(w) && w == strings.ToLower(w) {
			continue
		}
		if label.IsTitle(w) || label.IsUpper(w) || !hasCased(w) {
			continue
		}
		return false
	}
	return true
}

func hasCased(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return unicode.IsUpper(r) || unicode.IsLower(r) }) >= 0
}

// ExtractSpeakers returns the distinct speaker labels of text in sorted
// order. Both the single-line and the two-line form are recognised.
func ExtractSpeakers(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range Parse(text) {
		if _, ok := seen[t.Speaker]; ok {
			continue
		}
		seen[t.Speaker] = struct{}{}
		out = append(out, t.Speaker)
	}
	slices.Sort(out)
	return out
}

// Stats summarises a formatted transcript.
type Stats struct {
	Lines                  int     `json:"lines"`
	Statements             int     `json:"statements"`
	Speakers               int     `json:"speakers"`
	AverageStatementLength float64 `json:"average_statement_length"`
	IsValid                bool    `json:"is_valid"`
	Errors                 int     `json:"errors"`
	Warnings               int     `json:"warnings"`
}

// Statistics counts turns in text and validates it at level.
func Statistics(text string, level Level) Stats {
	turns := Parse(text)
	report := Validate(text, level)
	s := Stats{
		Lines:      len(splitLines(text)),
		Statements: len(turns),
		Speakers:   len(ExtractSpeakers(text)),
		IsValid:    report.IsValid,
		Errors:     len(report.Errors),
		Warnings:   len(report.Warnings),
	}
	if len(turns) > 0 {
		var total int
		for _, t := range turns {
			total += utf8.RuneCountInString(t.Statement)
		}
		s.AverageStatementLength = float64(total) / float64(len(turns))
	}
	return s
}
