// Package phonetic snaps a free-form speaker name onto one of a known set of
// speaker labels.
//
// A language model asked "who said this?" often answers with a near miss of a
// label already present in the transcript: "Jon" for "John", "dr smith" for
// "Dr. Smith". [Matcher.Snap] maps such answers onto the existing label so a
// transcript does not grow spurious identities. It works in three steps:
//
//  1. A case-insensitive exact match wins outright with score 1.
//  2. Candidates whose words share a Double Metaphone code with the answer
//     are ranked by Jaro-Winkler similarity and accepted above the phonetic
//     threshold.
//  3. Without a phonetic candidate, plain Jaro-Winkler similarity must clear
//     the higher fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the Jaro-Winkler score a phonetically related
// candidate must reach. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the Jaro-Winkler score required when no candidate
// is phonetically related. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Snap returns the candidate name closest to name. When nothing is close
// enough, snapped is name unchanged, score is 0 and ok is false.
func (m *Matcher) Snap(name string, candidates []string) (snapped string, score float64, ok bool) {
	key := fold(name)
	if key == "" || len(candidates) == 0 {
		return name, 0, false
	}
	for _, c := range candidates {
		if fold(c) == key {
			return c, 1, true
		}
	}

	tokens := strings.Fields(key)
	codes := metaphoneCodes(tokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, c := range candidates {
		ck := fold(c)
		if ck == "" {
			continue
		}
		cTokens := strings.Fields(ck)
		s := similarity(tokens, cTokens, key, ck)
		phonetic := sharesCode(codes, metaphoneCodes(cTokens))

		switch {
		case phonetic && s >= m.phoneticThreshold:
			if !bestPhonetic || s > bestScore {
				best, bestScore, bestPhonetic = c, s, true
			}
		case !phonetic && !bestPhonetic && s >= m.fuzzyThreshold && s > bestScore:
			best, bestScore = c, s
		}
	}
	if best == "" {
		return name, 0, false
	}
	return best, bestScore, true
}

// fold lowercases s, drops dots and collapses whitespace so "Dr. Smith" and
// "dr smith" compare equal.
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, ".", " "))), " ")
}

func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func sharesCode(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings and the
// strings with spaces removed. A one-word answer naming a word of a
// multi-word candidate ("smith" for "dr smith") scores partialWordScore.
// Two multi-word names never match on one shared word, so "John Smith" does
// not snap to "Jane Smith".
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false))
	}
	if (len(aTokens) == 1) != (len(bTokens) == 1) {
		short, long := aTokens, bTokens
		if len(short) != 1 {
			short, long = long, short
		}
		for _, w := range long {
			if w == short[0] {
				score = max(score, partialWordScore)
			}
		}
	}
	return score
}

const partialWordScore = 0.9
