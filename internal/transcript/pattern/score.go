package pattern

import (
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

// Scoring weights applied by [Score].
const (
	bonusStartsUpper    = 0.05
	bonusTitleCase      = 0.05
	bonusSpeakerNumber  = 0.1
	bonusTerminated     = 0.05
	penaltyShortStmt    = 0.1
	penaltyLongSpeaker  = 0.2
	penaltyStrayDigit   = 0.15
	shortStatementRunes = 10
	longSpeakerRunes    = 50
)

// Score adjusts a rule's base confidence for one candidate and clamps the
// result to [0, 1]. It is pure: equal inputs give equal outputs.
func Score(speaker, statement string, base float64) float64 {
	score := base

	if label.StartsUpper(speaker) {
		score += bonusStartsUpper
	}
	if label.IsTitle(speaker) {
		score += bonusTitleCase
	}
	if utf8.RuneCountInString(statement) < shortStatementRunes {
		score -= penaltyShortStmt
	}
	if utf8.RuneCountInString(speaker) > longSpeakerRunes {
		score -= penaltyLongSpeaker
	}
	if label.IsSpeakerNumber(speaker) {
		score += bonusSpeakerNumber
	} else if label.HasDigit(speaker) {
		score -= penaltyStrayDigit
	}
	if label.EndsSentence(statement) {
		score += bonusTerminated
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// HighConfidence returns the matches whose confidence is at least threshold.
func HighConfidence(matches []Match, threshold float64) []Match {
	high, _ := Partition(matches, threshold)
	return high
}

// Ambiguous returns the matches whose confidence is below threshold.
func Ambiguous(matches []Match, threshold float64) []Match {
	_, low := Partition(matches, threshold)
	return low
}

// Partition splits matches at threshold. Every match lands in exactly one of
// the two slices and relative order is preserved in both.
func Partition(matches []Match, threshold float64) (high, low []Match) {
	for _, m := range matches {
		if m.Confidence >= threshold {
			high = append(high, m)
		} else {
			low = append(low, m)
		}
	}
	return high, low
}
