package speaker

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Validation sorts speaker names into buckets. Each name lands in exactly one
// bucket, checked in field order.
type Validation struct {
	TooLong           []string `json:"too_long"`
	TooShort          []string `json:"too_short"`
	InvalidCharacters []string `json:"invalid_characters"`
	LikelyNoise       []string `json:"likely_noise"`
	Valid             []string `json:"valid"`
}

// Invalid returns how many names were not valid.
func (v Validation) Invalid() int {
	return len(v.TooLong) + len(v.TooShort) + len(v.InvalidCharacters) + len(v.LikelyNoise)
}

var (
	validCharset = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s\-'.]+$`)
	noise        = []*regexp.Regexp{
		regexp.MustCompile(`^\d+$`),
		regexp.MustCompile(`^[^\p{L}\p{N}\s]+$`),
		regexp.MustCompile(`(?i)\b(?:transcript|recording|audio|video|meeting|page|line|time|minute|second)\b`),
	}
)

// Validate buckets names by the length bounds, the label character set and a
// noise heuristic (bare numbers, bare punctuation, transcript metadata words,
// or two runes or fewer).
func (n *Normalizer) Validate(names []string) Validation {
	var v Validation
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		length := utf8.RuneCountInString(trimmed)
		switch {
		case n.rules.MaxNameLength > 0 && length > n.rules.MaxNameLength:
			v.TooLong = append(v.TooLong, name)
		case length == 0 || length < n.rules.MinNameLength:
			v.TooShort = append(v.TooShort, name)
		case !validCharset.MatchString(trimmed):
			v.InvalidCharacters = append(v.InvalidCharacters, name)
		case isNoise(trimmed):
			v.LikelyNoise = append(v.LikelyNoise, name)
		default:
			v.Valid = append(v.Valid, name)
		}
	}
	return v
}

func isNoise(name string) bool {
	if utf8.RuneCountInString(name) <= 2 {
		return true
	}
	for _, re := range noise {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// NameCount is one entry of [Stats.MostCommon].
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats summarises the raw speaker labels of a transcript.
type Stats struct {
	Total         int         `json:"total"`
	Unique        int         `json:"unique"`
	MostCommon    []NameCount `json:"most_common"`
	AverageLength float64     `json:"average_length"`
}

const mostCommonLimit = 5

// Statistics counts raw labels. MostCommon holds up to five labels, most
// frequent first, ties in first-seen order.
func Statistics(raw []string) Stats {
	if len(raw) == 0 {
		return Stats{}
	}
	var (
		counts  []NameCount
		index   = make(map[string]int)
		runeSum int
	)
	for _, r := range raw {
		runeSum += utf8.RuneCountInString(r)
		if i, ok := index[r]; ok {
			counts[i].Count++
			continue
		}
		index[r] = len(counts)
		counts = append(counts, NameCount{Name: r, Count: 1})
	}
	stats := Stats{
		Total:         len(raw),
		Unique:        len(counts),
		AverageLength: float64(runeSum) / float64(len(raw)),
	}
	slices.SortStableFunc(counts, func(a, b NameCount) int { return b.Count - a.Count })
	stats.MostCommon = counts[:min(len(counts), mostCommonLimit)]
	return stats
}
