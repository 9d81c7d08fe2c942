package format

import (
	"strings"
)

// Statement is one speaker turn found by the scanner.
type Statement struct {
	Speaker   string `json:"speaker"`
	Statement string `json:"statement"`

	// Line is the 1-based line of the speaker label.
	Line int `json:"line"`

	// Original holds the source lines of the block, untrimmed.
	Original []string `json:"original"`

	// TwoLine is set when the turn was written as a header line followed by
	// a statement line.
	TwoLine bool `json:"two_line"`
}

// block is a scanner unit: either a recognised turn or an unrecognised line.
type block struct {
	turn Statement
	ok   bool
}

// splitLines splits text into lines, tolerating \r\n and a trailing newline.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// scan walks lines once. A header line owns the following line as its
// statement unless that line is itself a header; a header with nothing to own
// yields a turn with an empty statement. Blank lines produce no block.
func scan(lines []string) []block {
	var blocks []block
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if isHeader(line) {
			turn := Statement{
				Speaker:  strings.TrimSpace(strings.TrimSuffix(line, ":")),
				Line:     i + 1,
				Original: []string{lines[i]},
				TwoLine:  true,
			}
			if i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if next != "" && !isHeader(next) {
					turn.Statement = next
					turn.Original = append(turn.Original, lines[i+1])
					i++
				}
			}
			blocks = append(blocks, block{turn: turn, ok: true})
			continue
		}

		if m := turnLine.FindStringSubmatch(line); m != nil {
			blocks = append(blocks, block{ok: true, turn: Statement{
				Speaker:   strings.TrimSpace(m[1]),
				Statement: strings.TrimSpace(m[2]),
				Line:      i + 1,
				Original:  []string{lines[i]},
			}})
			continue
		}

		blocks = append(blocks, block{turn: Statement{Line: i + 1, Original: []string{lines[i]}}})
	}
	return blocks
}

// Parse returns the speaker turns of text in document order. Lines that are
// not part of a turn are skipped.
func Parse(text string) []Statement {
	var out []Statement
	for _, b := range scan(splitLines(text)) {
		if b.ok {
			out = append(out, b.turn)
		}
	}
	return out
}

// render writes a turn in the form it was read in.
func (s Statement) render(speaker, statement string) []string {
	if s.TwoLine {
		if statement == "" {
			return []string{speaker + ":"}
		}
		return []string{speaker + ":", statement}
	}
	return []string{speaker + ": " + statement}
}
