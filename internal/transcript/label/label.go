// Package label holds the small speaker-label predicates shared by the
// matcher, the normalizer and the format enforcer: title-case and upper-case
// detection, "Speaker N" recognition and word-wise title casing.
//
// The predicates follow the usual "cased character" rules: a label is title
// case when every uppercase letter follows an uncased character and every
// lowercase letter follows a cased one, so "Speaker 1" and "O'Brien" are
// title case while "McDonald" and "CEO Smith" are not.
package label

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownSpeaker is the display label used for turns whose speaker could not
// be determined.
const UnknownSpeaker = "Unknown Speaker"

var speakerNumber = regexp.MustCompile(`(?i)^speaker\s*(\d+)$`)

var functionWords = map[string]struct{}{
	"and": {}, "the": {}, "of": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "with": {}, "by": {},
}

// FunctionWord reports whether w is a short connective kept lower case
// inside a name, as in "Bank of America".
func FunctionWord(w string) bool {
	_, ok := functionWords[strings.ToLower(w)]
	return ok
}

// SpeakerNumber reports whether s has the "Speaker N" shape (any case, any
// spacing) and returns N.
func SpeakerNumber(s string) (string, bool) {
	m := speakerNumber.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsSpeakerNumber reports whether s has the "Speaker N" shape.
func IsSpeakerNumber(s string) bool {
	_, ok := SpeakerNumber(s)
	return ok
}

// CanonicalSpeakerNumber renders "speaker2" or "SPEAKER  2" as "Speaker 2".
// Other labels are returned unchanged.
func CanonicalSpeakerNumber(s string) string {
	if n, ok := SpeakerNumber(s); ok {
		return "Speaker " + n
	}
	return s
}

// IsTitle reports whether s is title case. A string without cased letters is
// not title case.
func IsTitle(s string) bool {
	cased, prevCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}

// IsUpper reports whether s has at least one cased letter and no lowercase
// letters.
func IsUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

// StartsUpper reports whether the first rune of s is an uppercase letter.
func StartsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r) || unicode.IsTitle(r)
	}
	return false
}

// HasDigit reports whether s contains a decimal digit.
func HasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// LetterCount returns the number of letters in s.
func LetterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// EndsSentence reports whether s ends in '.', '!' or '?'.
func EndsSentence(s string) bool {
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// TitleWord capitalises the first letter of w and lowercases the rest, the
// way x/text title-cases a single word.
func TitleWord(w string) string {
	// cases.Caser keeps state between calls, so each call gets its own.
	return cases.Title(language.Und).String(w)
}

// TitleWords title-cases every whitespace-separated word of s, keeping words
// for which keep returns true as they are. Runs of whitespace collapse to one
// space.
func TitleWords(s string, keep func(i int, word string) bool) string {
	words := strings.Fields(s)
	for i, w := range words {
		if keep != nil && keep(i, w) {
			continue
		}
		words[i] = TitleWord(w)
	}
	return strings.Join(words, " ")
}
