package speaker

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

var (
	trailingNumber = regexp.MustCompile(`(\d+)$`)
	cleanCharset   = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\s\-'.]+$`)
)

// Similarity scores how likely a and b name the same speaker, in [0, 1].
// Labels ending in different numbers ("Speaker 1", "Speaker 2") never match.
func (n *Normalizer) Similarity(a, b string) float64 {
	na := strings.ToLower(n.Normalize(a))
	nb := strings.ToLower(n.Normalize(b))
	if na == nb {
		return 1
	}

	ma := trailingNumber.FindString(na)
	mb := trailingNumber.FindString(nb)
	if ma != "" && mb != "" && ma != mb {
		return 0
	}

	total := utf8.RuneCountInString(na) + utf8.RuneCountInString(nb)
	if total == 0 {
		return 0
	}
	score := 2 * float64(matchr.LongestCommonSubsequence(na, nb)) / float64(total)

	if numA, ok := label.SpeakerNumber(na); ok {
		if numB, ok := label.SpeakerNumber(nb); ok && numA == numB {
			score += 0.3
		}
	}

	wa, wb := strings.Fields(na), strings.Fields(nb)
	if len(wa) >= 2 && len(wb) >= 2 && initials(wa) == initials(wb) {
		score += 0.1
	}
	if shared := sharedWords(wa, wb); shared > 0 {
		score += 0.2 * float64(shared) / float64(max(len(wa), len(wb)))
	}

	return min(score, 1)
}

func initials(words []string) string {
	var sb strings.Builder
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		sb.WriteRune(r)
	}
	return sb.String()
}

func sharedWords(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	shared := 0
	seen := make(map[string]struct{}, len(b))
	for _, w := range b {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := set[w]; ok {
			shared++
		}
	}
	return shared
}

// Candidate is a ranked result of [Normalizer.FindSimilar].
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// FindSimilar returns the candidates scoring at least threshold against
// name, best first. Equal scores keep their input order.
func (n *Normalizer) FindSimilar(name string, candidates []string, threshold float64) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if s := n.Similarity(name, c); s >= threshold {
			out = append(out, Candidate{Name: c, Score: s})
		}
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

// BuildMapping maps every raw label to its canonical label. Labels are
// normalised, then grouped single-link in first-seen order: a label joins the
// first group holding a member at least SimilarityThreshold similar to it.
// Each group is represented by its best-scoring member; ties go to the
// earliest. [Unknown] always maps to itself.
func (n *Normalizer) BuildMapping(raw []string) map[string]string {
	var (
		groups  [][]string
		groupOf = make(map[string]int)
	)
	for _, r := range raw {
		norm := n.Normalize(r)
		if _, ok := groupOf[norm]; ok || norm == Unknown {
			continue
		}
		joined := -1
		for gi, g := range groups {
			if slices.ContainsFunc(g, func(member string) bool {
				return n.Similarity(member, norm) >= n.rules.SimilarityThreshold
			}) {
				joined = gi
				break
			}
		}
		if joined < 0 {
			groups = append(groups, nil)
			joined = len(groups) - 1
		}
		groups[joined] = append(groups[joined], norm)
		groupOf[norm] = joined
	}

	canonical := make([]string, len(groups))
	for gi, g := range groups {
		best, bestScore := g[0], canonicalScore(g[0])
		for _, member := range g[1:] {
			if s := canonicalScore(member); s > bestScore {
				best, bestScore = member, s
			}
		}
		canonical[gi] = best
	}

	mapping := make(map[string]string, len(raw))
	for _, r := range raw {
		norm := n.Normalize(r)
		if norm == Unknown {
			mapping[r] = Unknown
			continue
		}
		mapping[r] = canonical[groupOf[norm]]
	}
	return mapping
}

// canonicalScore ranks the members of a group as display labels.
func canonicalScore(name string) int {
	score := max(0, 20-utf8.RuneCountInString(name))
	isNumbered := label.IsSpeakerNumber(name)
	if label.IsTitle(name) {
		score += 10
	}
	if !label.HasDigit(name) || isNumbered {
		score += 5
	}
	if cleanCharset.MatchString(name) {
		score += 5
	}
	if isNumbered {
		score += 15
	}
	return score
}

// AssignNumbers maps each distinct speaker to "Speaker K" in first-seen order
// starting at start. Empty and unknown speakers map to "Unknown Speaker"
// without consuming a number.
func AssignNumbers(speakers []string, start int) map[string]string {
	out := make(map[string]string, len(speakers))
	next := start
	for _, s := range speakers {
		if _, ok := out[s]; ok {
			continue
		}
		trimmed := strings.TrimSpace(s)
		if trimmed == "" || trimmed == Unknown || trimmed == label.UnknownSpeaker {
			out[s] = label.UnknownSpeaker
			continue
		}
		out[s] = "Speaker " + strconv.Itoa(next)
		next++
	}
	return out
}
