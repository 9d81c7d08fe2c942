package transcript

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/observe"
	"github.com/MrWong99/speakerfmt/internal/transcript/resolve"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm"
)

// NewResolver builds a [resolve.Resolver] for provider from the llm and
// prompts sections of cfg. m may be nil.
func NewResolver(cfg *config.Config, provider llm.Provider, m *observe.Metrics) (*resolve.Resolver, error) {
	l := cfg.LLM
	name := l.Provider.Name
	if name == "" {
		name = "llm"
	}
	opts := []resolve.Option{
		resolve.WithPrompts(cfg.Prompts),
		resolve.WithTemperature(l.Temperature),
		resolve.WithMaxTokens(l.MaxTokens),
		resolve.WithTimeout(l.Timeout),
		resolve.WithCache(l.Cache),
		resolve.WithBreaker(l.CircuitBreaker),
		resolve.WithAcceptThreshold(l.AcceptThreshold),
		resolve.WithProviderName(name),
		resolve.WithContextWindow(l.ContextWindow),
		resolve.WithChunkLines(l.ChunkLines),
		resolve.WithConcurrency(l.Concurrency),
	}
	if l.RateLimit > 0 {
		opts = append(opts, resolve.WithRateLimit(rate.Limit(l.RateLimit), l.RateBurst))
	}
	if m != nil {
		opts = append(opts, resolve.WithMetrics(m))
	}
	r, err := resolve.New(provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("transcript: build resolver: %w", err)
	}
	return r, nil
}
