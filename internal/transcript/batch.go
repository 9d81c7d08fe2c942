package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/observe"
	"github.com/MrWong99/speakerfmt/internal/transcript/format"
	"github.com/MrWong99/speakerfmt/internal/transcript/speaker"
)

const defaultBatchConcurrency = 4

// OutputSuffix is appended to the input stem to name batch output files.
const OutputSuffix = "_formatted.txt"

// ProcessFile reads the transcript at in, processes it and, when out is not
// empty and processing succeeded, writes the formatted transcript to out.
// Read and write failures are reported in the returned [Result].
func (p *Processor) ProcessFile(ctx context.Context, in, out string) *Result {
	data, err := os.ReadFile(in)
	if err != nil {
		return failed(fmt.Errorf("transcript: read %q: %w", in, err))
	}

	res := p.Process(ctx, string(data))
	if out == "" || !res.Success {
		return res
	}
	if err := os.WriteFile(out, []byte(res.FormattedTranscript), 0o644); err != nil {
		res.Success = false
		res.Errors = append(res.Errors, fmt.Sprintf("transcript: write %q: %v", out, err))
		return res
	}
	observe.Logger(ctx).Info("transcript: output written", "in", in, "out", out)
	return res
}

// OutputPath returns the batch output file for in inside dir.
func OutputPath(in, dir string) string {
	base := filepath.Base(in)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+OutputSuffix)
}

// Batch processes inputs concurrently, at most processing.batch_concurrency
// at a time. results[i] always belongs to inputs[i], and a failing file does
// not affect the others. With a non-empty outDir, which is created if
// needed, each formatted transcript is written to [OutputPath].
func (p *Processor) Batch(ctx context.Context, inputs []string, outDir string) []*Result {
	results := make([]*Result, len(inputs))
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			for i := range results {
				results[i] = failed(fmt.Errorf("transcript: create output dir: %w", err))
			}
			return results
		}
	}

	limit := p.cfg.Processing.BatchConcurrency
	if limit <= 0 {
		limit = defaultBatchConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, in := range inputs {
		g.Go(func() error {
			out := ""
			if outDir != "" {
				out = OutputPath(in, outDir)
			}
			results[i] = p.ProcessFile(ctx, in, out)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Summary aggregates a batch run.
type Summary struct {
	TotalFiles        int         `json:"total_files"`
	Successful        int         `json:"successful"`
	Failed            int         `json:"failed"`
	SuccessRate       float64     `json:"success_rate"`
	AverageSpeakers   float64     `json:"average_speakers_per_file"`
	AverageConfidence float64     `json:"average_confidence"`
	TotalSpeakers     int         `json:"total_speakers"`
	Mode              config.Mode `json:"processing_mode"`
}

// String reports partial success, e.g. "3/4 succeeded".
func (s Summary) String() string {
	return fmt.Sprintf("%d/%d succeeded", s.Successful, s.TotalFiles)
}

// Summarize aggregates results. Averages are over successful results only.
func (p *Processor) Summarize(results []*Result) Summary {
	s := Summary{TotalFiles: len(results), Mode: p.cfg.Processing.Mode}
	var confidence float64
	for _, r := range results {
		if r == nil || !r.Success {
			s.Failed++
			continue
		}
		s.Successful++
		s.TotalSpeakers += len(r.Speakers)
		confidence += r.Stats.AverageConfidence
	}
	if s.TotalFiles > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalFiles)
	}
	if s.Successful > 0 {
		s.AverageSpeakers = float64(s.TotalSpeakers) / float64(s.Successful)
		s.AverageConfidence = confidence / float64(s.Successful)
	}
	return s
}

// Component names reported by [Processor.SelfTest].
const (
	ComponentPatternMatcher    = "pattern_matcher"
	ComponentSpeakerNormalizer = "speaker_normalizer"
	ComponentFormatEnforcer    = "format_enforcer"
	ComponentResolver          = "llm_resolver"
)

// SelfTest exercises every component on a fixed sample and pings the
// resolver's provider. A component without a resolver reports false.
func (p *Processor) SelfTest(ctx context.Context) map[string]bool {
	const sample = "Speaker 1: Hello world"
	results := map[string]bool{
		ComponentPatternMatcher: check(func() bool {
			return len(p.matcher.FindSpeakerPatterns(sample)) == 1
		}),
		ComponentSpeakerNormalizer: check(func() bool {
			return p.normalizer.Normalize("Speaker 1") != speaker.Unknown
		}),
		ComponentFormatEnforcer: check(func() bool {
			return format.FormatTranscript([]format.Pair{{Speaker: "Speaker 1", Statement: "Hello world"}}) == "Speaker 1:\nHello world."
		}),
		ComponentResolver: false,
	}
	if p.resolver != nil {
		err := p.resolver.Ping(ctx)
		if err != nil {
			observe.Logger(ctx).Warn("transcript: resolver ping failed", "provider", p.resolver.ProviderName(), "err", err)
		}
		results[ComponentResolver] = err == nil
	}
	return results
}

// check runs fn and converts a panic into false.
func check(fn func() bool) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn()
}
