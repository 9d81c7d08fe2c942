// Package pattern implements the regex-driven speaker detector at the front of
// the formatting pipeline.
//
// A [Matcher] is built from declarative [Rules]: an ordered list of named
// speaker patterns, a separate list of edge-case patterns, noise filters and
// a stop-word list. It scans cleaned text line by line and proposes [Match]
// candidates, each carrying a confidence produced by the pure [Score]
// function. Lines that match nothing produce no candidate; there is no
// per-line error path.
//
// A Matcher is read-only after construction and safe for concurrent use.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

// DefaultThreshold is the confidence at or above which a match needs no
// escalation.
const DefaultThreshold = 0.8

// Match is a candidate attribution of a line, or part of a line, to a
// speaker.
type Match struct {
	// Speaker is the raw speaker label as written in the transcript.
	Speaker string `json:"speaker"`

	// Statement is the raw statement text.
	Statement string `json:"statement"`

	// Confidence is always within [0, 1].
	Confidence float64 `json:"confidence"`

	// PatternName names the rule that produced the match.
	PatternName string `json:"pattern_name"`

	// StartPos and EndPos are byte offsets into the cleaned text. Segments
	// split out of one physical line share that line's coordinate space.
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
}

// Matcher detects speaker turns.
type Matcher struct {
	speaker         []compiledRule
	edge            []compiledRule
	noise           []*regexp.Regexp
	noiseExceptions []*regexp.Regexp
	nonSpeakers     map[string]struct{}
}

// New compiles rules into a [Matcher]. Any invalid expression, missing or
// duplicate rule name, or out-of-range confidence is returned as an error.
func New(rules Rules) (*Matcher, error) {
	speaker, edge, errs := rules.compile()
	if len(errs) > 0 {
		return nil, fmt.Errorf("pattern: %w", errors.Join(errs...))
	}

	m := &Matcher{
		speaker:     speaker,
		edge:        edge,
		nonSpeakers: make(map[string]struct{}, len(rules.NonSpeakers)),
	}
	for _, p := range rules.Noise {
		m.noise = append(m.noise, regexp.MustCompile("(?i)"+p))
	}
	for _, p := range rules.NoiseExceptions {
		m.noiseExceptions = append(m.noiseExceptions, regexp.MustCompile("(?i)"+p))
	}
	for _, w := range rules.NonSpeakers {
		m.nonSpeakers[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return m, nil
}

// Rules returns the speaker rule names in priority order.
func (m *Matcher) Rules() []string {
	names := make([]string, len(m.speaker))
	for i, r := range m.speaker {
		names[i] = r.Name
	}
	return names
}

// CleanText trims every line and drops empty lines and noise lines such as
// "[Background noise]" or "(Coughing)".
func (m *Matcher) CleanText(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || m.IsNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// IsNoise reports whether a trimmed line is a noise line.
func (m *Matcher) IsNoise(line string) bool {
	for _, ex := range m.noiseExceptions {
		if ex.MatchString(line) {
			return false
		}
	}
	for _, re := range m.noise {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// FindSpeakerPatterns returns the speaker turns found in text, in document
// order. Physical lines carrying several turns are split first.
func (m *Matcher) FindSpeakerPatterns(text string) []Match {
	var (
		matches []Match
		offset  int
	)
	for _, line := range strings.Split(text, "\n") {
		lineStart := offset
		offset += len(line) + 1

		for _, seg := range splitTurns(line) {
			trimmed := strings.TrimSpace(seg.text)
			if trimmed == "" {
				continue
			}
			match, ok := m.matchLine(trimmed)
			if !ok {
				continue
			}
			match.StartPos = lineStart + seg.offset + strings.Index(seg.text, trimmed)
			match.EndPos = match.StartPos + len(trimmed)
			matches = append(matches, match)
		}
	}
	return matches
}

// matchLine tries the speaker rules in priority order.
func (m *Matcher) matchLine(line string) (Match, bool) {
	for _, rule := range m.speaker {
		sm := rule.re.FindStringSubmatch(line)
		if sm == nil {
			continue
		}
		speaker := strings.TrimSpace(sm[1])
		statement := strings.TrimSpace(sm[len(sm)-1])
		if statement == "" || !m.acceptSpeaker(speaker) {
			continue
		}
		return Match{
			Speaker:     speaker,
			Statement:   statement,
			Confidence:  Score(speaker, statement, rule.Confidence),
			PatternName: rule.Name,
		}, true
	}
	return Match{}, false
}

// acceptSpeaker applies the stop-word and minimal shape checks.
func (m *Matcher) acceptSpeaker(speaker string) bool {
	if speaker == "" {
		return false
	}
	if utf8.RuneCountInString(speaker) < 2 && !label.IsUpper(speaker) {
		return false
	}
	_, stop := m.nonSpeakers[strings.ToLower(speaker)]
	return !stop
}

// FindEdgeCases runs the edge-case rules over the whole text and returns the
// synthetic matches in document order.
func (m *Matcher) FindEdgeCases(text string) []Match {
	var matches []Match
	for _, rule := range m.edge {
		for _, loc := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			group := func(i int) string {
				if loc[2*i] < 0 {
					return ""
				}
				return strings.TrimSpace(text[loc[2*i]:loc[2*i+1]])
			}
			last := len(loc)/2 - 1

			var speaker string
			switch rule.Kind {
			case EdgeJoint:
				speaker = group(1) + " and " + group(2)
			case EdgeAction:
				speaker = "*" + group(1) + "*"
			default:
				speaker = group(1)
			}
			statement := group(last)
			if speaker == "" || statement == "" {
				continue
			}
			matches = append(matches, Match{
				Speaker:     speaker,
				Statement:   statement,
				Confidence:  clamp(rule.Confidence),
				PatternName: rule.Name,
				StartPos:    loc[0],
				EndPos:      loc[1],
			})
		}
	}
	slices.SortStableFunc(matches, func(a, b Match) int { return a.StartPos - b.StartPos })
	return matches
}

// Usage returns how many matches each rule produced.
func Usage(matches []Match) map[string]int {
	usage := make(map[string]int)
	for _, m := range matches {
		usage[m.PatternName]++
	}
	return usage
}

// AverageConfidence returns the mean confidence of matches, or 0 for none.
func AverageConfidence(matches []Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Confidence
	}
	return sum / float64(len(matches))
}

// Speakers returns the distinct raw speakers in first-seen order.
func Speakers(matches []Match) []string {
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, ok := seen[m.Speaker]; ok {
			continue
		}
		seen[m.Speaker] = struct{}{}
		out = append(out, m.Speaker)
	}
	return out
}
