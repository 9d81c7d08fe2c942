package pattern

import (
	"regexp"
	"strings"
)

// turnBoundary finds a second speaker label after sentence punctuation on the
// same physical line, e.g. "... today? Mary: I'm fine". Group 1 is the
// punctuation and group 2 the label.
var turnBoundary = regexp.MustCompile(`([.!?])\s+(\p{Lu}\p{Ll}+(?:\s+\d+)?|SPEAKER\s*\d+|\p{Lu}):`)

// honorifics never end a sentence, so "Dr. Smith: ..." is not split after "Dr.".
var honorifics = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "st": {}, "jr": {}, "sr": {},
}

type segment struct {
	text   string
	offset int
}

// splitTurns cuts a physical line into per-turn segments. A line is only
// split when the text before the boundary already carries a "label:" prefix,
// which keeps prose such as "It ended. Result: fine" in one piece.
func splitTurns(line string) []segment {
	var (
		segs  []segment
		start int
	)
	for _, loc := range turnBoundary.FindAllStringSubmatchIndex(line, -1) {
		cut := loc[3] // just after the punctuation
		prefix := line[start:cut]
		if !strings.Contains(prefix, ":") || endsWithHonorific(line[start:loc[2]]) {
			continue
		}
		segs = append(segs, segment{text: prefix, offset: start})
		start = cut
	}
	return append(segs, segment{text: line[start:], offset: start})
}

func endsWithHonorific(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	_, ok := honorifics[strings.ToLower(fields[len(fields)-1])]
	return ok
}
