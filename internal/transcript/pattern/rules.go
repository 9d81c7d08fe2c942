package pattern

import (
	"errors"
	"fmt"
	"regexp"
)

// EdgeKind selects how an edge-case rule turns its capture groups into a
// speaker label.
type EdgeKind string

const (
	// EdgePlain uses capture group 1 as the speaker.
	EdgePlain EdgeKind = ""

	// EdgeJoint joins groups 1 and 2 into "A and B".
	EdgeJoint EdgeKind = "joint"

	// EdgeAction wraps group 1 in asterisks, e.g. "*laughing*".
	EdgeAction EdgeKind = "action"
)

// IsValid reports whether k is a recognised edge kind.
func (k EdgeKind) IsValid() bool {
	switch k {
	case EdgePlain, EdgeJoint, EdgeAction:
		return true
	}
	return false
}

// Rule is a named regular expression with a base confidence. The speaker is
// capture group 1 and the statement is the last capture group.
type Rule struct {
	// Name identifies the rule in match results and statistics.
	Name string `yaml:"name"`

	// Pattern is an RE2 expression matched against one trimmed line.
	Pattern string `yaml:"pattern"`

	// Confidence is the base confidence in [0, 1] before scoring adjustments.
	Confidence float64 `yaml:"confidence"`

	// Description is free text for humans.
	Description string `yaml:"description,omitempty"`

	// IgnoreCase compiles the pattern case-insensitively.
	IgnoreCase bool `yaml:"ignore_case,omitempty"`

	// Kind is only meaningful for edge-case rules.
	Kind EdgeKind `yaml:"kind,omitempty"`
}

// Rules is the declarative configuration of a [Matcher].
type Rules struct {
	// Speaker rules are tried in order; the first rule yielding an accepted
	// speaker wins the line.
	Speaker []Rule `yaml:"speaker_patterns"`

	// Edge rules run separately over the whole text.
	Edge []Rule `yaml:"edge_cases"`

	// Noise lines are removed by [Matcher.CleanText].
	Noise []string `yaml:"noise_patterns"`

	// NoiseExceptions rescue lines that would otherwise count as noise.
	NoiseExceptions []string `yaml:"noise_exceptions"`

	// NonSpeakers are lower-case words never accepted as a speaker.
	NonSpeakers []string `yaml:"non_speakers"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Validate compiles every expression in r and checks names and confidences.
// All problems are reported together.
func (r Rules) Validate() error {
	_, _, errs := r.compile()
	return errors.Join(errs...)
}

func (r Rules) compile() (speaker, edge []compiledRule, errs []error) {
	speaker, errs = compileRules("speaker_patterns", r.Speaker, 2, false)
	edge, edgeErrs := compileRules("edge_cases", r.Edge, 2, true)
	errs = append(errs, edgeErrs...)
	if len(r.Speaker) == 0 {
		errs = append(errs, errors.New("speaker_patterns: at least one rule is required"))
	}
	for i, p := range r.Noise {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("noise_patterns[%d]: %w", i, err))
		}
	}
	for i, p := range r.NoiseExceptions {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("noise_exceptions[%d]: %w", i, err))
		}
	}
	return speaker, edge, errs
}

func compileRules(section string, rules []Rule, minGroups int, multiline bool) ([]compiledRule, []error) {
	var (
		out  []compiledRule
		errs []error
		seen = make(map[string]int, len(rules))
	)
	for i, rule := range rules {
		prefix := fmt.Sprintf("%s[%d]", section, i)
		if rule.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[rule.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s[%d]", prefix, rule.Name, section, prev))
		} else {
			seen[rule.Name] = i
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			errs = append(errs, fmt.Errorf("%s.confidence %.2f is out of range [0, 1]", prefix, rule.Confidence))
		}
		if !rule.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: joint, action, or empty", prefix, rule.Kind))
		}

		expr := rule.Pattern
		flags := ""
		if rule.IgnoreCase {
			flags += "i"
		}
		if multiline {
			flags += "m"
		}
		if flags != "" {
			expr = "(?" + flags + ")" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.pattern: %w", prefix, err))
			continue
		}
		groups := minGroups
		if rule.Kind == EdgeJoint {
			groups = 3
		}
		if re.NumSubexp() < groups {
			errs = append(errs, fmt.Errorf("%s.pattern needs at least %d capture groups, has %d", prefix, groups, re.NumSubexp()))
			continue
		}
		out = append(out, compiledRule{Rule: rule, re: re})
	}
	return out, errs
}
