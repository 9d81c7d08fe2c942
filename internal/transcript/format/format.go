// Package format defines the canonical output grammar of a formatted
// transcript and validates or repairs text against it.
//
// A conformant turn is a speaker label, a colon and a non-empty statement.
// The formatter renders every turn in the two-line form
//
//	Speaker:
//	Statement.
//
// and the scanner, validator and converters accept both the single-line and
// the two-line form. Every line is classified on its own by [Classify]; no
// state crosses line boundaries except the header-owns-next-line rule of the
// two-line form.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

// Level selects how strictly [Validate] judges a transcript.
type Level string

const (
	LevelStrict   Level = "strict"
	LevelModerate Level = "moderate"
	LevelLenient  Level = "lenient"
)

// IsValid reports whether l is a known level.
func (l Level) IsValid() bool {
	switch l {
	case LevelStrict, LevelModerate, LevelLenient:
		return true
	}
	return false
}

// ParseLevel parses s case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", fmt.Errorf("format: unknown validation level %q; valid values: strict, moderate, lenient", s)
	}
	return l, nil
}

// LineClass is the verdict of [Classify] on one line.
type LineClass int

const (
	// LineInvalid cannot be turned into a speaker turn.
	LineInvalid LineClass = iota

	// LineConformant matches the canonical single-line grammar.
	LineConformant

	// LineHeader is the label line of the two-line form.
	LineHeader

	// LineRepairable does not conform but [FixCommonIssues] can split it.
	LineRepairable
)

func (c LineClass) String() string {
	switch c {
	case LineConformant:
		return "conformant"
	case LineHeader:
		return "header"
	case LineRepairable:
		return "repairable"
	default:
		return "invalid"
	}
}

const (
	// MaxSpeakerLength bounds a speaker label in runes.
	MaxSpeakerLength = 50

	// DefaultMaxSpeakers is the distinct-speaker count above which
	// [Validate] warns.
	DefaultMaxSpeakers = 30

	// acronymMaxLetters is the longest all-caps word kept as written.
	acronymMaxLetters = 3
)

var (
	// grammar is the canonical single-line form with its restricted label
	// character set.
	grammar      = regexp.MustCompile(`^([A-Za-z0-9\s\-'.()\[\]]+):\s*(.+)$`)
	labelCharset = regexp.MustCompile(`^[A-Za-z0-9\s\-'.()\[\]]+$`)

	// turnLine is the structural form used for extraction. It accepts any
	// script in the label.
	turnLine = regexp.MustCompile(`^([\p{L}\p{M}\p{N}\s\-'.()\[\]]+):\s*(.+)$`)

	repeatedColons = regexp.MustCompile(`:+`)
	leadingColon   = regexp.MustCompile(`^:\s*`)
	spaceBeforeEnd = regexp.MustCompile(`\s+([.!?,;])`)
	missingSpace   = regexp.MustCompile(`([.!?])(\p{Lu})`)
)

// Classify returns the class of a single line. Blank lines are invalid.
func Classify(line string) LineClass {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineInvalid
	case grammar.MatchString(line):
		return LineConformant
	case isHeader(line):
		return LineHeader
	case turnLine.MatchString(line):
		return LineRepairable
	}
	if _, _, ok := splitLine(line); ok {
		return LineRepairable
	}
	return LineInvalid
}

// isHeader reports whether line is the label line of the two-line form.
func isHeader(line string) bool {
	name, ok := strings.CutSuffix(line, ":")
	if !ok {
		return false
	}
	name = strings.TrimSpace(name)
	return name != "" &&
		!strings.Contains(name, ":") &&
		utf8.RuneCountInString(name) <= MaxSpeakerLength
}

// Pair is a speaker and what they said, before cleaning.
type Pair struct {
	Speaker   string `json:"speaker"`
	Statement string `json:"statement"`
}

// CleanSpeaker renders a label for output: colons removed, "Speaker N" in
// canonical spacing, otherwise title case with short acronyms and inner
// function words kept. The result is cut to [MaxSpeakerLength] runes so it
// always reads back as a header. An empty label becomes "Unknown Speaker".
func CleanSpeaker(s string) string {
	s = strings.Join(strings.Fields(repeatedColons.ReplaceAllString(s, " ")), " ")
	if s == "" {
		return label.UnknownSpeaker
	}
	if label.IsSpeakerNumber(s) {
		return label.CanonicalSpeakerNumber(s)
	}
	words := strings.Fields(s)
	for i, w := range words {
		switch {
		case i > 0 && label.FunctionWord(w):
			words[i] = strings.ToLower(w)
		case label.HasDigit(w), label.IsUpper(w) && label.LetterCount(w) <= acronymMaxLetters:
		default:
			words[i] = label.TitleWord(w)
		}
	}
	s = strings.Join(words, " ")
	if utf8.RuneCountInString(s) > MaxSpeakerLength {
		s = strings.TrimSpace(string([]rune(s)[:MaxSpeakerLength]))
	}
	return s
}

// CleanStatement trims s, drops a leading stray colon, normalises spacing
// around sentence punctuation and guarantees a terminal '.', '!' or '?'.
// It returns "" when nothing is left.
func CleanStatement(s string) string {
	s = leadingColon.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	s = spaceBeforeEnd.ReplaceAllString(s, "$1")
	s = missingSpace.ReplaceAllString(s, "$1 $2")
	if !label.EndsSentence(s) {
		s += "."
	}
	return s
}

// FormatStatement renders one turn in the two-line form. ok is false when
// the statement is empty after cleaning.
func FormatStatement(speaker, statement string) (out string, ok bool) {
	statement = CleanStatement(statement)
	if statement == "" {
		return "", false
	}
	return CleanSpeaker(speaker) + ":\n" + statement, true
}

// FormatTranscript renders pairs in order, skipping pairs whose statement is
// empty.
func FormatTranscript(pairs []Pair) string {
	blocks := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if block, ok := FormatStatement(p.Speaker, p.Statement); ok {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n")
}
