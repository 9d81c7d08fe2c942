// Package transcript turns raw, inconsistently formatted transcript text into
// the canonical "Speaker:\nStatement." form.
//
// A [Processor] runs six phases per call:
//
//  1. preprocess: trim, collapse blank lines and repeated spaces, drop noise
//  2. detect: find speaker turns with the [pattern.Matcher]
//  3. normalize: collapse speaker variants with the [speaker.Normalizer]
//  4. enhance: re-resolve low-confidence turns with the [resolve.Resolver]
//  5. enforce: render the turns in the canonical grammar
//  6. validate: check the rendered text, and in thorough mode ask the model
//
// Each phase produces new values and never modifies the output of an earlier
// phase. [Processor.Process] is the single error boundary: it never panics
// and never returns an error, a failure is reported in the [Result].
package transcript

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/observe"
	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/label"
	"github.com/MrWong99/speakerfmt/internal/transcript/pattern"
	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
	"github.com/MrWong99/speakerfmt/internal/transcript/speaker"
)

// Phase names, as recorded in spans and metrics.
const (
	PhasePreprocess = "preprocess"
	PhaseDetect     = "detect"
	PhaseNormalize  = "normalize"
	PhaseEnhance    = "enhance"
	PhaseEnforce    = "enforce"
	PhaseValidate   = "validate"
)

var (
	blankRuns  = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Option is a functional option for configuring a [Processor].
type Option func(*Processor)

// WithResolver attaches the LLM resolver used by the enhance phase and by
// thorough validation. Without one the processor is regex only.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Processor) {
		p.resolver = r
	}
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// Processor runs the transcript pipeline. It holds no per-call state and is
// safe for concurrent use; the only shared mutable state is inside the
// resolver.
type Processor struct {
	cfg        *config.Config
	matcher    *pattern.Matcher
	normalizer *speaker.Normalizer
	resolver   *resolve.Resolver
	metrics    *observe.Metrics
	actionRule map[string]struct{}
}

// New builds a [Processor] from cfg. A nil cfg uses [config.Default]. An
// invalid configuration is returned as an error.
func New(cfg *config.Config, opts ...Option) (*Processor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("transcript: invalid config: %w", err)
	}
	matcher, err := pattern.New(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("transcript: build matcher: %w", err)
	}

	p := &Processor{
		cfg:        cfg,
		matcher:    matcher,
		normalizer: speaker.New(cfg.Normalization),
		actionRule: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	for _, r := range cfg.Patterns.Edge {
		if r.Kind == pattern.EdgeAction {
			p.actionRule[r.Name] = struct{}{}
		}
	}
	return p, nil
}

// Config returns the configuration the processor was built with.
func (p *Processor) Config() *config.Config { return p.cfg }

// Resolver returns the attached resolver, or nil.
func (p *Processor) Resolver() *resolve.Resolver { return p.resolver }

// Process runs all phases over raw. It always returns a non-nil [Result].
func (p *Processor) Process(ctx context.Context, raw string) (res *Result) {
	start := time.Now()
	mode := p.cfg.Processing.Mode
	ctx, span := observe.StartSpan(ctx, "transcript.process",
		trace.WithAttributes(attribute.String("mode", string(mode))))
	defer span.End()

	p.metrics.InFlight.Add(ctx, 1)
	defer func() {
		if rec := recover(); rec != nil {
			res = failed(fmt.Errorf("transcript: panic: %v", rec))
		}
		res.Stats.Mode = mode
		res.Stats.DurationMS = float64(time.Since(start).Microseconds()) / 1000

		status := "ok"
		if !res.Success {
			status = "error"
			span.SetStatus(codes.Error, strings.Join(res.Errors, "; "))
			observe.Logger(ctx).Error("transcript: processing failed", "errors", res.Errors)
		}
		p.metrics.InFlight.Add(ctx, -1)
		p.metrics.RecordTranscript(ctx, string(mode), status)
	}()

	res, err := p.run(ctx, raw)
	if err != nil {
		return failed(err)
	}
	observe.Logger(ctx).Info("transcript: processed",
		"matches", res.Stats.FinalMatches,
		"speakers", len(res.Speakers),
		"valid", res.Validation.Format.IsValid,
	)
	return res
}

// failed returns the result of a pipeline that could not complete.
func failed(err error) *Result {
	return &Result{
		Speakers: []string{},
		Stats:    Stats{PatternUsage: map[string]int{}},
		Errors:   []string{err.Error()},
		Warnings: []string{},
	}
}

func (p *Processor) run(ctx context.Context, raw string) (*Result, error) {
	res := &Result{Errors: []string{}, Warnings: []string{}}
	warnf := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	// 1. Preprocess.
	_, done := p.startPhase(ctx, PhasePreprocess)
	cleaned := p.preprocess(raw)
	done()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transcript: %s: %w", PhasePreprocess, err)
	}

	// 2. Detect.
	pctx, done := p.startPhase(ctx, PhaseDetect)
	detected, edges := p.detect(cleaned)
	done()
	observe.Logger(pctx).Debug("transcript: detected turns", "matches", len(detected), "edge_cases", edges)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transcript: %s: %w", PhaseDetect, err)
	}

	// 3. Normalize.
	matches := detected
	if p.cfg.Processing.EnableSpeakerNormalization {
		_, done = p.startPhase(ctx, PhaseNormalize)
		matches = p.normalize(detected)
		done()
	}

	// 4. Enhance.
	var escalation resolve.EnhanceStats
	if p.llmEnabled() {
		pctx, done = p.startPhase(ctx, PhaseEnhance)
		matches, escalation = p.enhance(pctx, cleaned, matches)
		done()
		if escalation.Failed > 0 {
			warnf("%d of %d resolver requests failed; kept the pattern matches", escalation.Failed, escalation.Escalated)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transcript: %s: %w", PhaseEnhance, err)
	}

	// 5. Enforce.
	_, done = p.startPhase(ctx, PhaseEnforce)
	formatted := p.enforce(matches)
	if len(matches) == 0 && cleaned != "" {
		formatted = format.FixCommonIssues(cleaned)
		warnf("no speaker turns detected; applied best-effort line repair")
	}
	done()

	// 6. Validate.
	pctx, done = p.startPhase(ctx, PhaseValidate)
	validation := p.validate(pctx, formatted)
	done()
	if !validation.Format.IsValid {
		warnf("format validation failed with %d errors", len(validation.Format.Errors))
	}
	if validation.LLM != nil && !validation.LLM.OverallValid {
		warnf("model validation reported %d issues", len(validation.LLM.Issues))
	}

	res.Success = true
	res.FormattedTranscript = formatted
	res.Speakers = format.ExtractSpeakers(formatted)
	if res.Speakers == nil {
		res.Speakers = []string{}
	}
	res.Validation = validation
	res.Stats = p.statistics(raw, formatted, detected, matches)
	res.Stats.EdgeCaseMatches = edges
	res.Stats.Escalation = escalation
	return res, nil
}

// startPhase opens a span for one phase and returns a function that closes
// it and records the phase duration.
func (p *Processor) startPhase(ctx context.Context, name string) (context.Context, func()) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "transcript."+name)
	return ctx, func() {
		p.metrics.RecordPhase(ctx, name, time.Since(start))
		span.End()
	}
}

func (p *Processor) llmEnabled() bool {
	return p.resolver != nil && p.cfg.Processing.UseLLM && p.cfg.Processing.Mode != config.ModeFast
}

// preprocess trims raw, collapses blank-line runs and repeated spaces and
// removes noise lines.
func (p *Processor) preprocess(raw string) string {
	text := strings.TrimSpace(lineBreaks.Replace(raw))
	text = blankRuns.ReplaceAllString(text, "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return p.matcher.CleanText(text)
}

// detect returns the speaker turns of cleaned in document order, and how
// many of them came from edge-case rules.
func (p *Processor) detect(cleaned string) ([]pattern.Match, int) {
	matches := p.matcher.FindSpeakerPatterns(cleaned)
	if !p.cfg.Processing.IncludeEdgeCases {
		return matches, 0
	}

	var added int
	for _, e := range p.matcher.FindEdgeCases(cleaned) {
		if _, action := p.actionRule[e.PatternName]; action {
			continue
		}
		if overlaps(matches, e) {
			continue
		}
		matches = insertOrdered(matches, e)
		added++
	}
	return matches, added
}

func overlaps(matches []pattern.Match, m pattern.Match) bool {
	for _, o := range matches {
		if m.StartPos < o.EndPos && o.StartPos < m.EndPos {
			return true
		}
	}
	return false
}

func insertOrdered(matches []pattern.Match, m pattern.Match) []pattern.Match {
	i := len(matches)
	for i > 0 && matches[i-1].StartPos > m.StartPos {
		i--
	}
	out := make([]pattern.Match, 0, len(matches)+1)
	out = append(out, matches[:i]...)
	out = append(out, m)
	return append(out, matches[i:]...)
}

// normalize rewrites every speaker through one mapping built from all
// detected speakers.
func (p *Processor) normalize(matches []pattern.Match) []pattern.Match {
	mapping := p.normalizer.BuildMapping(pattern.Speakers(matches))
	out := make([]pattern.Match, len(matches))
	for i, m := range matches {
		out[i] = m
		out[i].Speaker = displayName(mapping[m.Speaker])
	}
	return out
}

func displayName(canonical string) string {
	if canonical == speaker.Unknown || canonical == "" {
		return label.UnknownSpeaker
	}
	return canonical
}

func (p *Processor) enhance(ctx context.Context, cleaned string, matches []pattern.Match) ([]pattern.Match, resolve.EnhanceStats) {
	out, stats := p.resolver.Enhance(ctx, cleaned, matches, p.cfg.Processing.ConfidenceThreshold)
	if !p.cfg.Processing.EnableSpeakerNormalization {
		return out, stats
	}
	for i, m := range out {
		if strings.HasPrefix(m.PatternName, resolve.EnhancedPrefix) {
			out[i].Speaker = displayName(p.normalizer.Normalize(m.Speaker))
		}
	}
	return out, stats
}

// enforce renders matches in the canonical grammar, or as plain
// "Speaker: Statement" lines when enforcement is disabled.
func (p *Processor) enforce(matches []pattern.Match) string {
	proc := p.cfg.Processing
	if !proc.EnableFormatEnforcement {
		lines := make([]string, len(matches))
		for i, m := range matches {
			lines[i] = m.Speaker + ": " + m.Statement
		}
		return strings.Join(lines, "\n")
	}

	pairs := make([]format.Pair, len(matches))
	for i, m := range matches {
		pairs[i] = format.Pair{Speaker: m.Speaker, Statement: m.Statement}
	}
	text := format.FormatTranscript(pairs)
	if proc.SplitLongStatements > 0 {
		text = format.SplitLongStatements(text, proc.SplitLongStatements)
	}
	if proc.OutputNumberedSpeakers {
		text = format.ConvertToNumbered(text)
	}
	return text
}

func (p *Processor) validate(ctx context.Context, formatted string) *Validation {
	proc := p.cfg.Processing
	v := &Validation{
		Format: format.Validate(formatted, proc.ValidationLevel, format.WithMaxSpeakers(proc.MaxSpeakers)),
	}
	if p.llmEnabled() && proc.Mode == config.ModeThorough {
		final := p.resolver.ValidateFinalTranscript(ctx, formatted)
		v.LLM = &final
	}
	return v
}

func (p *Processor) statistics(raw, formatted string, detected, final []pattern.Match) Stats {
	inputLines := 0
	if raw != "" {
		inputLines = strings.Count(raw, "\n") + 1
	}
	outputLines := 0
	for line := range strings.SplitSeq(formatted, "\n") {
		if strings.TrimSpace(line) != "" {
			outputLines++
		}
	}
	return Stats{
		InputLength:       utf8.RuneCountInString(raw),
		OutputLength:      utf8.RuneCountInString(formatted),
		InputLines:        inputLines,
		OutputLines:       outputLines,
		OriginalMatches:   len(detected),
		FinalMatches:      len(final),
		UniqueSpeakers:    len(pattern.Speakers(final)),
		AverageConfidence: pattern.AverageConfidence(final),
		PatternUsage:      pattern.Usage(detected),
		LLMUsed:           p.llmEnabled(),
	}
}
