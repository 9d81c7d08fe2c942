package format

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
	"github.com/MrWong99/speakerfmt/internal/transcript/speaker"
)

// separators are tried in order when a line has no usable colon.
var separators = []string{": ", ":", " - ", " – ", " — ", " | "}

var conjunctions = map[string]struct{}{
	"and": {}, "but": {}, "or": {}, "so": {}, "because": {}, "then": {},
	"if": {}, "when": {}, "while": {}, "although": {}, "that": {}, "which": {},
}

const heuristicSpeakerWords = 3

// splitLine finds a speaker/statement split in a non-conformant line.
func splitLine(line string) (spk, statement string, ok bool) {
	for _, sep := range separators {
		before, after, found := strings.Cut(line, sep)
		if !found {
			continue
		}
		before, after = strings.TrimSpace(before), strings.TrimSpace(after)
		if before == "" || after == "" || utf8.RuneCountInString(before) > MaxSpeakerLength {
			continue
		}
		return before, after, true
	}

	// Heuristic: up to three leading capitalised words name the speaker when
	// more words follow than the label has and the rest does not open with a
	// conjunction.
	words := strings.Fields(line)
	n := 0
	for n < len(words) && n < heuristicSpeakerWords && label.StartsUpper(words[n]) {
		n++
	}
	if n == 0 || len(words)-n <= n {
		return "", "", false
	}
	if _, conj := conjunctions[strings.ToLower(words[n])]; conj {
		return "", "", false
	}
	return strings.Join(words[:n], " "), strings.Join(words[n:], " "), true
}

// FixCommonIssues repairs what it can line by line. Recognised turns are kept
// as written; other lines are split on the first usable separator, or by the
// leading-words heuristic, and rewritten as "Speaker: statement". Lines that
// cannot be repaired are dropped.
func FixCommonIssues(text string) string {
	lines := splitLines(text)
	out := make([]string, 0, len(lines))
	for _, b := range scan(lines) {
		if b.ok {
			for _, l := range b.turn.Original {
				out = append(out, strings.TrimSpace(l))
			}
			continue
		}
		line := strings.TrimSpace(b.turn.Original[0])
		if spk, stmt, ok := splitLine(line); ok {
			out = append(out, spk+": "+stmt)
		}
	}
	return strings.Join(out, "\n")
}

// ConvertToNumbered replaces every speaker with "Speaker N" in first-seen
// order. Lines that are not part of a turn are left untouched.
func ConvertToNumbered(text string) string {
	lines := splitLines(text)
	blocks := scan(lines)

	order := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.ok {
			order = append(order, b.turn.Speaker)
		}
	}
	numbers := speaker.AssignNumbers(order, 1)

	var out []string
	next := 0
	for _, b := range blocks {
		// Blank lines between blocks are kept.
		for ; next < b.turn.Line-1; next++ {
			out = append(out, lines[next])
		}
		next = b.turn.Line - 1 + len(b.turn.Original)
		if !b.ok {
			out = append(out, b.turn.Original...)
			continue
		}
		out = append(out, b.turn.render(numbers[b.turn.Speaker], b.turn.Statement)...)
	}
	out = append(out, lines[min(next, len(lines)):]...)
	return strings.Join(out, "\n")
}

// SplitLongStatements re-wraps statements longer than maxLen runes at
// sentence boundaries, repeating the speaker for each piece. A single
// sentence longer than maxLen is kept whole.
func SplitLongStatements(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	lines := splitLines(text)
	var out []string
	next := 0
	for _, b := range scan(lines) {
		for ; next < b.turn.Line-1; next++ {
			out = append(out, lines[next])
		}
		next = b.turn.Line - 1 + len(b.turn.Original)
		if !b.ok || utf8.RuneCountInString(b.turn.Statement) <= maxLen {
			out = append(out, b.turn.Original...)
			continue
		}
		for _, chunk := range packSentences(Sentences(b.turn.Statement), maxLen) {
			out = append(out, b.turn.render(b.turn.Speaker, chunk)...)
		}
	}
	out = append(out, lines[min(next, len(lines)):]...)
	return strings.Join(out, "\n")
}

// Sentences splits s after '.', '!' or '?' followed by whitespace.
func Sentences(s string) []string {
	var (
		out   []string
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 < len(s) && (s[i+1] == ' ' || s[i+1] == '\t') {
				out = append(out, strings.TrimSpace(s[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func packSentences(sentences []string, maxLen int) []string {
	var (
		chunks []string
		cur    string
	)
	for _, s := range sentences {
		switch {
		case cur == "":
			cur = s
		case utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(s) <= maxLen:
			cur += " " + s
		default:
			chunks = append(chunks, cur)
			cur = s
		}
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}
