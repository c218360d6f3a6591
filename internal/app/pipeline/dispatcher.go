package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/internal/infra/llm"
	"github.com/auditflow/api/internal/metrics"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/logger"
	"github.com/auditflow/api/pkg/tracing"
)

// ErrMalformedResponse is returned when the analysis response is not a JSON
// object keyed by file path.
var ErrMalformedResponse = errors.New("malformed analysis response")

// Dispatcher sends one analysis request per batch, concurrently, and
// collects validated raw findings.
type Dispatcher struct {
	provider    llm.Provider
	limiter     *rate.Limiter
	maxTokens   int
	temperature float64
	tracer      trace.Tracer
	logger      *logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRateLimiter throttles request starts.
func WithRateLimiter(l *rate.Limiter) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = l
	}
}

// WithCompletionLimits sets max tokens and temperature of each request.
func WithCompletionLimits(maxTokens int, temperature float64) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxTokens = maxTokens
		d.temperature = temperature
	}
}

// NewDispatcher creates a Dispatcher. A nil provider means no analysis
// credential is configured; Analyze then returns no findings.
func NewDispatcher(provider llm.Provider, log *logger.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		provider:    provider,
		maxTokens:   4096,
		temperature: 0.1,
		tracer:      tracing.Tracer(),
		logger:      log.With("component", "dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDispatcherFromConfig builds the provider selected by cfg and a
// Dispatcher with the configured completion limits and throttling. Without
// a credential the Dispatcher is disabled and scans report no findings.
func NewDispatcherFromConfig(cfg *config.AnalysisConfig, log *logger.Logger) (*Dispatcher, error) {
	provider, err := llm.NewProvider(*cfg)
	if err != nil {
		return nil, fmt.Errorf("analysis provider: %w", err)
	}
	if provider == nil {
		log.Warn("analysis provider not configured, scans will report no findings")
	} else {
		log.Info("analysis provider initialized", "provider", provider.Name(), "model", provider.Model())
	}

	opts := []DispatcherOption{WithCompletionLimits(cfg.MaxTokens, cfg.Temperature)}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))))
	}
	return NewDispatcher(provider, log, opts...), nil
}

// Enabled reports whether an analysis provider is configured.
func (d *Dispatcher) Enabled() bool {
	return d.provider != nil
}

// Analyze dispatches all batches concurrently and waits for every one of
// them. A failed batch contributes a single analysis_error finding and never
// affects its siblings. Result order across batches is not significant.
func (d *Dispatcher) Analyze(ctx context.Context, batches []Batch) []finding.Raw {
	if d.provider == nil {
		d.logger.Info("analysis provider not configured, skipping analysis", "batches", len(batches))
		return []finding.Raw{}
	}

	results := make([][]finding.Raw, len(batches))
	var g errgroup.Group
	for i, b := range batches {
		g.Go(func() error {
			results[i] = d.analyzeBatch(ctx, i, b)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]finding.Raw, 0, len(batches))
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (d *Dispatcher) analyzeBatch(ctx context.Context, index int, b Batch) []finding.Raw {
	ctx, span := d.tracer.Start(ctx, "pipeline.analyze_batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.files", len(b.Files)),
		attribute.Int("batch.bytes", b.TotalBytes),
	))
	defer span.End()

	start := time.Now()
	raw, err := d.requestBatch(ctx, index, b)
	metrics.AnalysisBatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		d.logger.Error("batch analysis failed",
			"batch", index,
			"files", len(b.Files),
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch analysis failed")
		metrics.AnalysisBatchesTotal.WithLabelValues("failed").Inc()
		return []finding.Raw{finding.NewAnalysisError(index, err)}
	}

	span.SetAttributes(attribute.Int("batch.findings", len(raw)))
	metrics.AnalysisBatchesTotal.WithLabelValues("succeeded").Inc()
	return raw
}

func (d *Dispatcher) requestBatch(ctx context.Context, index int, b Batch) ([]finding.Raw, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analysisSystemPrompt,
		UserPrompt:   buildUserPrompt(b),
		MaxTokens:    d.maxTokens,
		Temperature:  d.temperature,
		JSONMode:     true,
		Metadata:     map[string]string{"batch": strconv.Itoa(index)},
	})
	if err != nil {
		return nil, err
	}
	d.logger.Debug("batch answered",
		"batch", index,
		"files", len(b.Files),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"finish_reason", resp.FinishReason,
	)

	return d.parseResponse(index, resp.Content)
}

// wireFinding is the finding shape requested from the analysis service.
type wireFinding struct {
	Type           string `json:"type"`
	Category       string `json:"category"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Location       struct {
		Line int `json:"line"`
	} `json:"location"`
}

// parseResponse decodes a path-keyed response. Findings that fail schema
// validation are dropped with a warning; a response that is not an object
// fails the whole batch.
func (d *Dispatcher) parseResponse(index int, content string) ([]finding.Raw, error) {
	schema, err := compiledFindingSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stripCodeFence(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	byPath, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object keyed by file path", ErrMalformedResponse)
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []finding.Raw
	for _, path := range paths {
		items, ok := byPath[path].([]any)
		if !ok {
			d.logger.Warn("findings for path are not an array, dropped", "batch", index, "path", path)
			continue
		}
		for i, item := range items {
			if err := schema.Validate(item); err != nil {
				d.logger.Warn("malformed finding dropped",
					"batch", index,
					"path", path,
					"item", i,
					"error", err,
				)
				continue
			}
			raw, err := toRaw(path, item)
			if err != nil {
				d.logger.Warn("malformed finding dropped", "batch", index, "path", path, "item", i, "error", err)
				continue
			}
			out = append(out, raw)
		}
	}
	return out, nil
}

func toRaw(path string, item any) (finding.Raw, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return finding.Raw{}, err
	}
	var w wireFinding
	if err := json.Unmarshal(data, &w); err != nil {
		return finding.Raw{}, err
	}
	return finding.Raw{
		Type:           sanitizeText(w.Type),
		Category:       strings.ToLower(strings.TrimSpace(w.Category)),
		Severity:       finding.ParseSeverity(w.Severity),
		Description:    sanitizeText(w.Description),
		Recommendation: sanitizeText(w.Recommendation),
		Location:       path,
		Line:           w.Location.Line,
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models add even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
