package resolve

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/label"
	"github.com/MrWong99/speakerfmt/internal/transcript/pattern"
)

// EnhancedPrefix is prepended to the pattern name of a match whose speaker
// was replaced by a model answer.
const EnhancedPrefix = "llm_enhanced_"

// maxAnswerWords bounds how many words a speaker answer may have before it
// is treated as prose.
const maxAnswerWords = 5

// Escalation outcomes, as recorded in metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// EnhanceStats counts what happened to escalated matches.
type EnhanceStats struct {
	Escalated int `json:"escalated"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

// Enhance re-resolves the speaker of every match below threshold. Matches at
// or above threshold are returned unchanged and their speakers are offered
// to the model as candidates. A match keeps its regex speaker unless the
// model answers successfully, with confidence above the accept threshold,
// and with a plausible label. matches is not modified.
func (r *Resolver) Enhance(ctx context.Context, text string, matches []pattern.Match, threshold float64) ([]pattern.Match, EnhanceStats) {
	out := slices.Clone(matches)
	var stats EnhanceStats

	high, low := pattern.Partition(matches, threshold)
	if len(low) == 0 {
		return out, stats
	}
	candidates := pattern.Speakers(high)
	slices.Sort(candidates)

	for i, m := range matches {
		if m.Confidence >= threshold {
			continue
		}
		stats.Escalated++

		window := contextWindow(text, m.StartPos, m.EndPos, r.contextWindow)
		resp := r.IdentifySpeaker(ctx, window, m.Speaker+": "+m.Statement, candidates)

		name, outcome := r.judge(resp, candidates)
		r.metrics.RecordEscalation(ctx, outcome)
		switch outcome {
		case OutcomeAccepted:
			stats.Accepted++
			out[i].Speaker = name
			out[i].Confidence = resp.Confidence
			out[i].PatternName = EnhancedPrefix + m.PatternName
		case OutcomeRejected:
			stats.Rejected++
		default:
			stats.Failed++
		}
	}
	return out, stats
}

// judge decides whether resp may replace a regex speaker.
func (r *Resolver) judge(resp Response, candidates []string) (string, string) {
	if !resp.Success {
		return "", OutcomeFailed
	}
	if resp.Confidence <= r.acceptThreshold {
		return "", OutcomeRejected
	}
	name, ok := plausibleLabel(resp.Result)
	if !ok {
		return "", OutcomeRejected
	}
	if snapped, _, ok := r.snapper.Snap(name, candidates); ok {
		name = snapped
	}
	return name, OutcomeAccepted
}

// plausibleLabel cleans a model answer and reports whether it can serve as
// a speaker label.
func plausibleLabel(answer string) (string, bool) {
	name := strings.TrimLeft(answer, " \t\"'`*")
	name = strings.TrimRight(name, " \t\"'`*.!?,;")

	switch {
	case name == "",
		strings.ContainsAny(name, "\n:{}[]"),
		utf8.RuneCountInString(name) > format.MaxSpeakerLength,
		len(strings.Fields(name)) > maxAnswerWords,
		label.LetterCount(name) == 0,
		strings.EqualFold(name, "unknown"),
		strings.EqualFold(name, label.UnknownSpeaker):
		return "", false
	}
	return name, true
}

// contextWindow returns text from window bytes before start to window bytes
// after end, widened to rune boundaries.
func contextWindow(text string, start, end, window int) string {
	start = min(max(start-window, 0), len(text))
	end = min(max(end+window, start), len(text))
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return text[start:end]
}
