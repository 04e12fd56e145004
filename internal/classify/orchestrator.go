// Package classify turns document blocks into style decisions: cache, learned
// rules, chunked model calls with self-healing, a quality-governed retry
// ladder and a low-confidence fallback pass.
package classify

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/styletag-backend/internal/cache"
	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/platform/envutil"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/quality"
	"github.com/yungbote/styletag-backend/internal/rules"
	"github.com/yungbote/styletag-backend/internal/styles"
)

type Options struct {
	ChunkSize           int
	FallbackThreshold   float64
	FallbackBatch       int
	FallbackConcurrency int
	MaxAttempts         int
	RuleFloor           float64
	// FewShot is how many grounded examples go into each chunk prompt.
	FewShot             int
}

func OptionsFromEnv() Options {
	return Options{
		ChunkSize:           envutil.Int("CLASSIFY_CHUNK_SIZE", 75),
		FallbackThreshold:   envutil.Float("CLASSIFY_FALLBACK_THRESHOLD", 0.75),
		FallbackBatch:       envutil.Int("CLASSIFY_FALLBACK_BATCH", 30),
		FallbackConcurrency: envutil.Int("CLASSIFY_FALLBACK_CONCURRENCY", 4),
		MaxAttempts:         envutil.Int("CLASSIFY_MAX_ATTEMPTS", 3),
		RuleFloor:           envutil.Float("RULES_MIN_CONFIDENCE", rules.DefaultFloor),
		FewShot:             envutil.Int("CLASSIFY_FEW_SHOT", 10),
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 75
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = 0.75
	}
	if o.FallbackBatch <= 0 {
		o.FallbackBatch = 30
	}
	if o.FallbackConcurrency <= 0 {
		o.FallbackConcurrency = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RuleFloor <= 0 {
		o.RuleFloor = rules.DefaultFloor
	}
	if o.FewShot <= 0 {
		o.FewShot = 10
	}
	return o
}

// RefineFunc post-processes a full, index-aligned result set before it is
// scored. The pipeline passes the repair engine here.
type RefineFunc func(results []document.ClassificationResult, blocks []document.Block) []document.ClassificationResult

// Config wires an Orchestrator. Taxonomy and Client are required.
type Config struct {
	Taxonomy   *styles.Taxonomy
	Rules      *rules.RuleSet
	Cache      cache.Cache
	Client     llm.Client
	Fallback   llm.Client
	Escalation llm.Client
	Refine     RefineFunc
	Options    Options

	// Retriever supplies grounded few-shot examples and rescues tags the
	// vocabulary cannot place. Optional.
	Retriever *Retriever
}

type Orchestrator struct {
	log            *logger.Logger
	tax            *styles.Taxonomy
	rules          *rules.RuleSet
	cache          cache.Cache
	client         llm.Client
	fallbackClient llm.Client
	escalation     llm.Client
	refine         RefineFunc
	retriever      *Retriever
	opts           Options
}

func New(log *logger.Logger, cfg Config) (*Orchestrator, error) {
	if cfg.Taxonomy == nil {
		return nil, errors.New("classify: taxonomy required")
	}
	if cfg.Client == nil {
		return nil, errors.New("classify: llm client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	refine := cfg.Refine
	if refine == nil {
		refine = func(r []document.ClassificationResult, _ []document.Block) []document.ClassificationResult { return r }
	}
	return &Orchestrator{
		log:            log.With("service", "Classifier"),
		tax:            cfg.Taxonomy,
		rules:          cfg.Rules,
		cache:          cfg.Cache,
		client:         cfg.Client,
		fallbackClient: cfg.Fallback,
		escalation:     cfg.Escalation,
		refine:         refine,
		retriever:      cfg.Retriever,
		opts:           cfg.Options.withDefaults(),
	}, nil
}

// Result is the classification of one document. Results are in block order,
// one per block, before repair.
type Result struct {
	Results          []document.ClassificationResult `json:"results"`
	Quality          quality.Report                  `json:"quality"`
	Profile          quality.Profile                 `json:"profile"`
	Model            string                          `json:"model,omitempty"`
	Attempts         int                             `json:"attempts"`
	Review           bool                            `json:"review"`
	CacheHits        int                             `json:"cache_hits"`
	RuleHits         int                             `json:"rule_hits"`
	FallbackReplaced int                             `json:"fallback_replaced"`
	Usage            llm.Usage                       `json:"usage"`
	Calls            int64                           `json:"calls"`
}

type candidate struct {
	results []document.ClassificationResult
	report  quality.Report
	profile quality.Profile
	model   string
}

// Classify resolves a tag for every block.
func (o *Orchestrator) Classify(ctx context.Context, docID string, blocks []document.Block) (Result, error) {
	meter := &llm.UsageMeter{}
	resolved := make([]document.ClassificationResult, len(blocks))
	known := make([]bool, len(blocks))

	out := Result{Profile: quality.ProfileDefault}
	out.CacheHits = o.lookupCache(ctx, docID, blocks, resolved, known)
	out.RuleHits = o.applyRules(blocks, resolved, known)

	var pending []document.Block
	for i, b := range blocks {
		if !known[i] {
			pending = append(pending, b)
		}
	}
	o.log.Info("classify start",
		"doc_id", docID, "blocks", len(blocks), "cache_hits", out.CacheHits,
		"rule_hits", out.RuleHits, "pending", len(pending))

	best := candidate{results: resolved, profile: quality.ProfileDefault}
	if len(pending) == 0 {
		best.report = quality.Score(o.refine(resolved, blocks), blocks, o.tax.Allowed)
	} else {
		var err error
		best, out.Attempts, out.Review, err = o.ladder(ctx, docID, blocks, pending, resolved, known, meter)
		if err != nil {
			return Result{}, err
		}
		replaced, n, err := o.fallback(ctx, best.results, blocks, meter)
		if err != nil {
			return Result{}, fmt.Errorf("classify %s: %w", docID, err)
		}
		best.results = replaced
		out.FallbackReplaced = n
	}

	o.writeCache(ctx, docID, blocks, best.results, best.model)

	out.Results = best.results
	out.Quality = best.report
	out.Profile = best.profile
	out.Model = best.model
	out.Usage = meter.Total()
	out.Calls = meter.Calls()
	o.log.Info("classify done",
		"doc_id", docID, "score", out.Quality.Score, "action", string(out.Quality.Action),
		"attempts", out.Attempts, "fallback_replaced", out.FallbackReplaced, "llm_calls", out.Calls)
	return out, nil
}

func cacheKey(docID string, b document.Block) cache.Key {
	return cache.Key{DocID: docID, ParagraphID: b.ID, Text: b.Text, Zone: string(b.Meta.Zone)}
}

func (o *Orchestrator) lookupCache(ctx context.Context, docID string, blocks []document.Block, resolved []document.ClassificationResult, known []bool) int {
	if o.cache == nil {
		return 0
	}
	hits := 0
	for i, b := range blocks {
		p, ok, err := o.cache.Get(ctx, cacheKey(docID, b))
		if err != nil {
			o.log.Warn("cache lookup failed", "doc_id", docID, "id", b.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		resolved[i] = document.ClassificationResult{
			ID: b.ID, Tag: p.Tag, Confidence: p.Confidence, Reasoning: p.Reasoning,
			RuleBased: p.RuleBased, Cached: true,
		}
		known[i] = true
		hits++
	}
	return hits
}

// applyRules predicts blocks in order so each sees the previous block's tag
// when it is already known.
func (o *Orchestrator) applyRules(blocks []document.Block, resolved []document.ClassificationResult, known []bool) int {
	if o.rules.Len() == 0 {
		return 0
	}
	hits := 0
	prev := rules.StartTag
	for i, b := range blocks {
		if !known[i] {
			f := rules.Features(b.Text, b.Meta, prev, "")
			if r, ok := o.rules.Predict(f, o.opts.RuleFloor); ok {
				tag, _ := o.canonical(r.Tag, b)
				resolved[i] = document.ClassificationResult{
					ID: b.ID, Tag: tag, Confidence: r.Confidence,
					Reasoning: "Rule: " + r.Condition, RuleBased: true,
				}
				known[i] = true
				hits++
			}
		}
		prev = ""
		if known[i] {
			prev = resolved[i].Tag
		}
	}
	return hits
}

// step picks the prompt profile and client for attempt n (1-based).
func (o *Orchestrator) step(n int, blocks []document.Block) (quality.Profile, llm.Client) {
	profile, client := quality.ProfileDefault, o.client
	if n >= 2 {
		profile = quality.RouteProfile(blocks)
	}
	if n >= 3 && o.escalation != nil {
		client = o.escalation
	}
	return profile, client
}

// ladder classifies the pending blocks until an attempt passes, one lands in
// review, or attempts run out. The best-scoring attempt wins.
func (o *Orchestrator) ladder(ctx context.Context, docID string, blocks, pending []document.Block, resolved []document.ClassificationResult, known []bool, meter *llm.UsageMeter) (candidate, int, bool, error) {
	var best candidate
	haveBest := false
	attempts := 0
	review := false
	for n := 1; n <= o.opts.MaxAttempts; n++ {
		profile, client := o.step(n, blocks)
		attempts = n

		actx, span := otel.Tracer("styletag/classify").Start(ctx, "classify.attempt")
		span.SetAttributes(
			attribute.Int("classify.attempt", n),
			attribute.String("classify.profile", string(profile)),
			attribute.String("llm.model", client.Model()),
		)
		modelResults, err := o.classifyPending(actx, client, docID, pending, profile, meter)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "attempt failed")
			span.End()
			return candidate{}, attempts, false, fmt.Errorf("classify %s attempt %d: %w", docID, n, err)
		}

		full := merge(blocks, resolved, known, modelResults)
		report := quality.Score(o.refine(full, blocks), blocks, o.tax.Allowed)
		span.SetAttributes(attribute.Int("quality.score", report.Score), attribute.String("quality.action", string(report.Action)))
		span.End()
		o.log.Info("classify attempt",
			"doc_id", docID, "attempt", n, "profile", string(profile), "model", client.Model(),
			"score", report.Score, "action", string(report.Action))

		if !haveBest || report.Score > best.report.Score {
			best = candidate{results: full, report: report, profile: profile, model: client.Model()}
			haveBest = true
		}
		if report.Action == quality.ActionPass {
			break
		}
		if report.Action == quality.ActionReview {
			review = true
			break
		}
	}
	return best, attempts, review, nil
}

func (o *Orchestrator) classifyPending(ctx context.Context, client llm.Client, docID string, pending []document.Block, profile quality.Profile, meter *llm.UsageMeter) (map[int]document.ClassificationResult, error) {
	out := make(map[int]document.ClassificationResult, len(pending))
	for start := 0; start < len(pending); start += o.opts.ChunkSize {
		end := start + o.opts.ChunkSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]
		results, err := o.classifyChunk(ctx, client, o.userPrompt(docID, chunk, profile), chunk, meter)
		if err != nil {
			return nil, fmt.Errorf("chunk %d-%d: %w", chunk[0].ID, chunk[len(chunk)-1].ID, err)
		}
		for _, r := range results {
			out[r.ID] = r
		}
	}
	return out, nil
}

func merge(blocks []document.Block, resolved []document.ClassificationResult, known []bool, model map[int]document.ClassificationResult) []document.ClassificationResult {
	out := make([]document.ClassificationResult, len(blocks))
	for i, b := range blocks {
		if known[i] {
			out[i] = resolved[i]
			continue
		}
		out[i] = model[b.ID]
	}
	return out
}

func (o *Orchestrator) writeCache(ctx context.Context, docID string, blocks []document.Block, results []document.ClassificationResult, model string) {
	if o.cache == nil {
		return
	}
	written := 0
	for i, r := range results {
		if r.Cached || r.Tag == "" {
			continue
		}
		p := cache.Prediction{Tag: r.Tag, Confidence: r.Confidence, Reasoning: r.Reasoning, RuleBased: r.RuleBased}
		if !r.RuleBased {
			p.Model = model
		}
		if err := o.cache.Set(ctx, cacheKey(docID, blocks[i]), p); err != nil {
			o.log.Warn("cache write failed", "doc_id", docID, "id", r.ID, "error", err)
			continue
		}
		written++
	}
	o.log.Debug("cache write-back", "doc_id", docID, "written", written)
}
