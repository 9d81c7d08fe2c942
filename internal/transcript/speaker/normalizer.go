// Package speaker collapses speaker-label variants into one canonical
// identity per transcript.
//
// [Normalizer.Normalize] cleans a single raw label. [Normalizer.BuildMapping]
// groups the labels of a whole transcript by [Normalizer.Similarity] and
// picks one canonical label per group. Both are deterministic: the same
// input list and rules always yield the same mapping.
package speaker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/speakerfmt/internal/transcript/label"
)

// Unknown is the sentinel returned for labels that normalise to nothing.
const Unknown = "UNKNOWN"

// Rules configures a [Normalizer].
type Rules struct {
	TitleCase              bool `yaml:"title_case"`
	RemoveExtraSpaces      bool `yaml:"remove_extra_spaces"`
	RemovePunctuation      bool `yaml:"remove_punctuation"`
	HandleCommonVariations bool `yaml:"handle_common_variations"`
	StripHonorifics        bool `yaml:"strip_honorifics"`

	// PreserveUppercaseMax keeps all-caps words with at most this many
	// letters (CEO, FBI) instead of title-casing them.
	PreserveUppercaseMax int `yaml:"preserve_uppercase_max"`

	MaxNameLength int `yaml:"max_name_length"`
	MinNameLength int `yaml:"min_name_length"`

	// SimilarityThreshold is the score at which two labels are grouped.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// Validate checks that the rules are internally consistent.
func (r Rules) Validate() error {
	var errs []error
	if r.MaxNameLength <= 0 {
		errs = append(errs, fmt.Errorf("max_name_length must be > 0, got %d", r.MaxNameLength))
	}
	if r.MinNameLength < 0 {
		errs = append(errs, fmt.Errorf("min_name_length must be >= 0, got %d", r.MinNameLength))
	}
	if r.MaxNameLength > 0 && r.MinNameLength > r.MaxNameLength {
		errs = append(errs, fmt.Errorf("min_name_length %d exceeds max_name_length %d", r.MinNameLength, r.MaxNameLength))
	}
	if r.PreserveUppercaseMax < 0 {
		errs = append(errs, fmt.Errorf("preserve_uppercase_max must be >= 0, got %d", r.PreserveUppercaseMax))
	}
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold %.2f is out of range [0, 1]", r.SimilarityThreshold))
	}
	return errors.Join(errs...)
}

var (
	outerPunct = regexp.MustCompile(`^[^\p{L}\p{N}_\s\-'.]+|[^\p{L}\p{N}_\s\-'.]+$`)
	variation  = regexp.MustCompile(`(?i)\b(?:speaker|spekaer|speker|speeker)[\s_]*(\d+)\b`)
	honorific  = regexp.MustCompile(`(?i)^(?:dr|mr|mrs|ms|miss|prof|rev|sir)\.?\s+`)
	suffix     = regexp.MustCompile(`(?i),?\s+(?:jr|sr|phd|md|esq|ii|iii)\.?$`)
	aside      = regexp.MustCompile(`\s*[(\[][^)\]]*(?:[)\]]|$)`)
)

// Normalizer cleans and groups speaker labels. It is read-only after
// construction and safe for concurrent use.
type Normalizer struct {
	rules Rules
}

// New returns a [Normalizer] applying rules. A zero MaxNameLength means no
// length cap.
func New(rules Rules) *Normalizer {
	return &Normalizer{rules: rules}
}

// Rules returns the rules n was built with.
func (n *Normalizer) Rules() Rules { return n.rules }

// Normalize returns the canonical form of one raw label, or [Unknown] when
// nothing usable remains. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" || name == Unknown {
		return Unknown
	}

	if stripped := strings.TrimSpace(aside.ReplaceAllString(name, " ")); stripped != "" {
		name = stripped
	}
	name = n.trimPunct(name)
	if n.rules.HandleCommonVariations {
		name = variation.ReplaceAllString(name, "Speaker $1")
	}
	if n.rules.StripHonorifics {
		name = stripRepeated(name, honorific)
		name = stripRepeated(name, suffix)
		name = n.trimPunct(name)
	}
	if n.rules.RemoveExtraSpaces {
		name = strings.Join(strings.Fields(name), " ")
	}
	if n.rules.TitleCase {
		name = n.titleCase(name)
	}
	if n.rules.MaxNameLength > 0 && utf8.RuneCountInString(name) > n.rules.MaxNameLength {
		name = n.trimPunct(string([]rune(name)[:n.rules.MaxNameLength]))
	}

	if name == "" || utf8.RuneCountInString(name) < n.rules.MinNameLength {
		return Unknown
	}
	return name
}

// trimPunct drops stray punctuation at either end of name when punctuation
// removal is enabled. It runs after every step that can expose a new edge.
func (n *Normalizer) trimPunct(name string) string {
	name = strings.TrimSpace(name)
	if !n.rules.RemovePunctuation {
		return name
	}
	return strings.TrimSpace(outerPunct.ReplaceAllString(name, ""))
}

func stripRepeated(s string, re *regexp.Regexp) string {
	for {
		next := strings.TrimSpace(re.ReplaceAllString(s, ""))
		if next == s || next == "" {
			return s
		}
		s = next
	}
}

func (n *Normalizer) titleCase(name string) string {
	if label.IsSpeakerNumber(name) {
		return label.CanonicalSpeakerNumber(name)
	}
	words := strings.Fields(name)
	for i, w := range words {
		if i > 0 && label.FunctionWord(w) {
			words[i] = strings.ToLower(w)
			continue
		}
		if label.HasDigit(w) {
			continue
		}
		if label.IsUpper(w) && label.LetterCount(w) <= n.rules.PreserveUppercaseMax {
			continue
		}
		words[i] = label.TitleWord(w)
	}
	return strings.Join(words, " ")
}
