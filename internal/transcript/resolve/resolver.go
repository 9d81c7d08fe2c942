// Package resolve escalates ambiguous transcript questions to a language
// model and parses its answer into a structured [Response].
//
// A [Resolver] renders one of its prompt templates, calls the configured
// [llm.Provider] under a timeout, an instance-scoped rate limiter and a
// circuit breaker, and parses the reply. Models are asked for JSON but are
// not trusted to comply: a reply that does not parse is kept as plain text
// with a lower confidence. Provider failures never surface as Go errors from
// the resolution methods; they are reported through [Response.Success] and
// [Response.Error] so the caller can keep its regex result.
package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MrWong99/speakerfmt/internal/observe"
	"github.com/MrWong99/speakerfmt/internal/resilience"
	"github.com/MrWong99/speakerfmt/internal/transcript/phonetic"
	"github.com/MrWong99/speakerfmt/pkg/provider/llm"
)

const (
	defaultTemperature     = 0.1
	defaultMaxTokens       = 500
	defaultTimeout         = 30 * time.Second
	defaultAcceptThreshold = 0.5
	defaultContextWindow   = 200
	defaultChunkLines      = 20
	defaultConcurrency     = 4
	defaultProviderName    = "llm"

	// jsonDefaultConfidence applies to JSON replies without a confidence.
	jsonDefaultConfidence = 0.8
	// plainTextConfidence applies to replies that are not JSON.
	plainTextConfidence = 0.7
	plainTextReasoning  = "Plain text response"

	suggestionSampleRunes = 2000
)

// ErrEmptyResponse is returned by [Resolver.Ping] when the provider answers
// without content.
var ErrEmptyResponse = errors.New("resolve: empty response")

// Request is a single question for the model. Options lists candidate
// answers, usually the speakers already known.
type Request struct {
	Task     Task
	Context  string
	Question string
	Options  []string
	Metadata map[string]any
}

// Response is the parsed model answer. Metadata holds the decoded JSON
// object, or the raw reply under "raw_response" for plain text answers.
type Response struct {
	Success    bool           `json:"success"`
	Result     string         `json:"result"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Stats are cumulative counters of a [Resolver].
type Stats struct {
	Requests  int64 `json:"requests"`
	Failures  int64 `json:"failures"`
	CacheHits int64 `json:"cache_hits"`
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithPrompts replaces the prompt set. Every required task must be present.
func WithPrompts(prompts map[Task]Prompt) Option {
	return func(r *Resolver) {
		r.prompts = prompts
	}
}

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(r *Resolver) {
		r.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 500.
func WithMaxTokens(n int) Option {
	return func(r *Resolver) {
		r.maxTokens = n
	}
}

// WithTimeout bounds every provider call. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithRateLimit limits provider calls to limit per second with the given
// burst. Unlimited by default.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(r *Resolver) {
		r.limiter = rate.NewLimiter(limit, max(burst, 1))
	}
}

// WithCache enables or disables the response cache. Default: enabled.
func WithCache(enabled bool) Option {
	return func(r *Resolver) {
		r.cacheEnabled = enabled
	}
}

// WithBreaker configures the circuit breaker wrapped around the provider.
// An empty Name is replaced by the provider name.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(r *Resolver) {
		r.breakerCfg = cfg
	}
}

// WithAcceptThreshold sets the confidence an enhancement answer must exceed.
// Default: 0.5.
func WithAcceptThreshold(threshold float64) Option {
	return func(r *Resolver) {
		r.acceptThreshold = threshold
	}
}

// WithSpeakerMatcher sets the matcher used to snap answers onto known
// speakers. Default: [phonetic.New] with default thresholds.
func WithSpeakerMatcher(m *phonetic.Matcher) Option {
	return func(r *Resolver) {
		r.snapper = m
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithProviderName labels metrics, logs and the breaker. Default: "llm".
func WithProviderName(name string) Option {
	return func(r *Resolver) {
		r.providerName = name
	}
}

// WithContextWindow sets how many bytes around an escalated match are sent
// as context. Default: 200.
func WithContextWindow(n int) Option {
	return func(r *Resolver) {
		r.contextWindow = n
	}
}

// WithChunkLines sets the chunk size of [Resolver.ValidateFinalTranscript].
// Default: 20.
func WithChunkLines(n int) Option {
	return func(r *Resolver) {
		r.chunkLines = n
	}
}

// WithConcurrency bounds parallel provider calls issued by batch methods.
// Default: 4.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		r.concurrency = n
	}
}

// Resolver is safe for concurrent use. Its cache and rate limiter belong to
// the instance.
type Resolver struct {
	llm             llm.Provider
	prompts         map[Task]Prompt
	temperature     float64
	maxTokens       int
	timeout         time.Duration
	limiter         *rate.Limiter
	cacheEnabled    bool
	breakerCfg      resilience.CircuitBreakerConfig
	breaker         *resilience.CircuitBreaker
	acceptThreshold float64
	snapper         *phonetic.Matcher
	metrics         *observe.Metrics
	providerName    string
	contextWindow   int
	chunkLines      int
	concurrency     int

	mu    sync.Mutex
	cache map[string]Response

	requests  atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
}

// New returns a [Resolver] backed by provider. It fails when provider is nil
// or the prompt set is incomplete.
func New(provider llm.Provider, opts ...Option) (*Resolver, error) {
	if provider == nil {
		return nil, errors.New("resolve: nil provider")
	}
	r := &Resolver{
		llm:             provider,
		prompts:         DefaultPrompts(),
		temperature:     defaultTemperature,
		maxTokens:       defaultMaxTokens,
		timeout:         defaultTimeout,
		cacheEnabled:    true,
		acceptThreshold: defaultAcceptThreshold,
		providerName:    defaultProviderName,
		contextWindow:   defaultContextWindow,
		chunkLines:      defaultChunkLines,
		concurrency:     defaultConcurrency,
		cache:           make(map[string]Response),
	}
	for _, o := range opts {
		o(r)
	}
	if err := ValidatePrompts(r.prompts); err != nil {
		return nil, fmt.Errorf("resolve: prompts: %w", err)
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	if r.chunkLines <= 0 {
		r.chunkLines = defaultChunkLines
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	if limit := provider.Capabilities().MaxOutputTokens; limit > 0 && r.maxTokens > limit {
		r.maxTokens = limit
	}
	if r.snapper == nil {
		r.snapper = phonetic.New()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}

	cfg := r.breakerCfg
	if cfg.Name == "" {
		cfg.Name = r.providerName
	}
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		slog.Warn("resolve: circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		r.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	r.breaker = resilience.NewCircuitBreaker(cfg)
	return r, nil
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Requests:  r.requests.Load(),
		Failures:  r.failures.Load(),
		CacheHits: r.cacheHits.Load(),
	}
}

// ProviderName returns the label used in metrics and logs.
func (r *Resolver) ProviderName() string { return r.providerName }

// Resolve renders the template for req.Task, queries the model and parses
// the reply. An unknown task uses the speaker identification template.
// Failures, including panics inside the provider, are returned as a
// response with Success false.
func (r *Resolver) Resolve(ctx context.Context, req Request) (resp Response) {
	task := req.Task
	prompt, ok := r.prompts[task]
	if !ok {
		task = TaskSpeakerIdentification
		prompt = r.prompts[task]
	}

	ctx, span := observe.StartSpan(ctx, "resolve."+string(task))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			r.failures.Add(1)
			resp = Response{Error: fmt.Sprintf("resolve: panic: %v", p)}
		}
	}()

	user := prompt.render(req.Context, req.Question)
	key := cacheKey(task, prompt.System, user)
	if r.cacheEnabled {
		if cached, ok := r.lookup(key); ok {
			r.cacheHits.Add(1)
			return cached
		}
	}

	r.requests.Add(1)
	start := time.Now()
	content, err := r.complete(ctx, prompt.System, user)
	if err != nil {
		r.failures.Add(1)
		r.metrics.RecordResolverRequest(ctx, r.providerName, string(task), "error", time.Since(start))
		observe.Logger(ctx).Warn("resolve: request failed", "task", task, "provider", r.providerName, "err", err)
		return Response{Error: err.Error()}
	}
	r.metrics.RecordResolverRequest(ctx, r.providerName, string(task), "ok", time.Since(start))

	resp = parseResponse(content)
	if r.cacheEnabled {
		r.store(key, resp)
	}
	return resp
}

// complete issues one provider call under the timeout, rate limiter and
// circuit breaker.
func (r *Resolver) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("resolve: rate limit: %w", err)
		}
	}

	var content string
	err := r.breaker.Execute(func() error {
		out, err := r.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: system,
			Messages:     []llm.Message{llm.UserMessage(user)},
			Temperature:  r.temperature,
			MaxTokens:    r.maxTokens,
		})
		if err != nil {
			return err
		}
		if out == nil {
			return ErrEmptyResponse
		}
		content = out.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolve: complete: %w", err)
	}
	return content, nil
}

func (r *Resolver) lookup(key string) (Response, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.cache[key]
	return resp, ok
}

func (r *Resolver) store(key string, resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = resp
}

// ClearCache drops every cached response.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

func cacheKey(task Task, system, user string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil))
}

// parseResponse decodes a JSON object reply, falling back to plain text.
func parseResponse(content string) Response {
	var fields map[string]any
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &fields); err != nil || fields == nil {
		return Response{
			Success:    true,
			Result:     content,
			Confidence: plainTextConfidence,
			Reasoning:  plainTextReasoning,
			Metadata:   map[string]any{"raw_response": content},
		}
	}

	result := content
	for _, key := range []string{"speaker", "result"} {
		if v, ok := fields[key]; ok && v != nil {
			result = stringify(v)
			break
		}
	}
	reasoning, _ := fields["reasoning"].(string)
	return Response{
		Success:    true,
		Result:     result,
		Confidence: confidence(fields["confidence"]),
		Reasoning:  reasoning,
		Metadata:   fields,
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// confidence reads a reported confidence, clamped to [0,1].
func confidence(v any) float64 {
	c := jsonDefaultConfidence
	switch x := v.(type) {
	case float64:
		c = x
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			c = f
		}
	}
	return min(max(c, 0), 1)
}

// stripMarkdown removes the code fences some models wrap JSON in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// IdentifySpeaker asks who speaks the ambiguous text, optionally listing
// candidate speakers.
func (r *Resolver) IdentifySpeaker(ctx context.Context, surrounding, ambiguous string, candidates []string) Response {
	question := fmt.Sprintf("Who is speaking in this text: '%s'", ambiguous)
	if len(candidates) > 0 {
		question += "\n\nPossible speakers: " + strings.Join(candidates, ", ")
	}
	return r.Resolve(ctx, Request{
		Task:     TaskSpeakerIdentification,
		Context:  surrounding,
		Question: question,
		Options:  candidates,
	})
}

// DetectBoundaries asks where speaker changes occur in mixed text.
func (r *Resolver) DetectBoundaries(ctx context.Context, surrounding, mixed string) Response {
	return r.Resolve(ctx, Request{
		Task:     TaskBoundaryDetection,
		Context:  surrounding,
		Question: fmt.Sprintf("Where do speaker changes occur in this text: '%s'", mixed),
	})
}

// ValidateSegment asks whether a segment follows the "Speaker: Statement"
// format.
func (r *Resolver) ValidateSegment(ctx context.Context, segment string) Response {
	return r.Resolve(ctx, Request{
		Task:     TaskValidation,
		Context:  segment,
		Question: "Is this transcript segment properly formatted according to 'Speaker: Statement' format? Identify any issues.",
	})
}

// ResolveMany resolves reqs concurrently. Responses are in request order.
func (r *Resolver) ResolveMany(ctx context.Context, reqs []Request) []Response {
	out := make([]Response, len(reqs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			out[i] = r.Resolve(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

var suggestedSpeaker = regexp.MustCompile(`speaker\s+(\d+)`)

// SuggestSpeakers asks the model for numbered speakers missing from current.
// Only "Speaker N" answers are recognised. Failures yield nil.
func (r *Resolver) SuggestSpeakers(ctx context.Context, text string, current []string) []string {
	if runes := []rune(text); len(runes) > suggestionSampleRunes {
		text = string(runes[:suggestionSampleRunes]) + "..."
	}
	resp := r.Resolve(ctx, Request{
		Task:    TaskSpeakerIdentification,
		Context: text,
		Question: fmt.Sprintf("Are there any additional speakers in this transcript that are not in this list: %s? List any missing speakers.",
			strings.Join(current, ", ")),
	})
	if !resp.Success {
		return nil
	}

	known := make(map[string]bool, len(current))
	for _, c := range current {
		known[c] = true
	}
	var suggested []string
	for _, sm := range suggestedSpeaker.FindAllStringSubmatch(strings.ToLower(resp.Result), -1) {
		name := "Speaker " + sm[1]
		if !known[name] {
			known[name] = true
			suggested = append(suggested, name)
		}
	}
	return suggested
}

// Ping sends a minimal prompt directly to the provider, bypassing the cache
// and the circuit breaker.
func (r *Resolver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{llm.UserMessage("Hello")},
		MaxTokens: 5,
	})
	if err != nil {
		return fmt.Errorf("resolve: ping %s: %w", r.providerName, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return fmt.Errorf("resolve: ping %s: %w", r.providerName, ErrEmptyResponse)
	}
	return nil
}
