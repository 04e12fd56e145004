// Package pipeline runs one document through ingestion, classification,
// repair, scoring and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/styletag-backend/internal/classify"
	"github.com/yungbote/styletag-backend/internal/clients/redis"
	"github.com/yungbote/styletag-backend/internal/data/repos"
	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/domain/runs"
	"github.com/yungbote/styletag-backend/internal/ingestion"
	"github.com/yungbote/styletag-backend/internal/ingestion/blocks"
	"github.com/yungbote/styletag-backend/internal/ingestion/refzone"
	"github.com/yungbote/styletag-backend/internal/observability"
	"github.com/yungbote/styletag-backend/internal/pkg/dbctx"
	"github.com/yungbote/styletag-backend/internal/platform/ctxutil"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/quality"
	"github.com/yungbote/styletag-backend/internal/repair"
	"github.com/yungbote/styletag-backend/internal/styles"
)

const (
	previewRunes    = 80
	suspiciousLimit = 25
)

var tracer = otel.Tracer("styletag/pipeline")

// Classifier resolves a tag for every block. *classify.Orchestrator satisfies it.
type Classifier interface {
	Classify(ctx context.Context, docID string, blocks []document.Block) (classify.Result, error)
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, ev redis.RunEvent) error
}

// Config wires a Service. Taxonomy and Classifier are required; the rest are optional.
type Config struct {
	Taxonomy   *styles.Taxonomy
	Classifier Classifier
	Runs       repos.RunRepo
	Decisions  repos.DecisionRepo
	Events     Publisher
	Metrics    *observability.Metrics
	RefZone    refzone.Options

	// AutoApplyThreshold splits decisions into auto-apply and review queues.
	// Zero uses quality.DefaultAutoApplyThreshold.
	AutoApplyThreshold float64
}

type Service struct {
	log        *logger.Logger
	tax        *styles.Taxonomy
	classifier Classifier
	runs       repos.RunRepo
	decisions  repos.DecisionRepo
	events     Publisher
	metrics    *observability.Metrics
	refzone    refzone.Options
	autoApply  float64
	now        func() time.Time
}

func New(log *logger.Logger, cfg Config) (*Service, error) {
	if cfg.Taxonomy == nil {
		return nil, errors.New("pipeline: taxonomy required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("pipeline: classifier required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		log:        log.With("service", "Pipeline"),
		tax:        cfg.Taxonomy,
		classifier: cfg.Classifier,
		runs:       cfg.Runs,
		decisions:  cfg.Decisions,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		refzone:    cfg.RefZone,
		autoApply:  cfg.AutoApplyThreshold,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// RepairFunc adapts the repair engine to the classifier's refine hook. The
// reference span is read from the blocks' IsReferenceZone flags.
func RepairFunc(tax *styles.Taxonomy) classify.RefineFunc {
	return func(results []document.ClassificationResult, bs []document.Block) []document.ClassificationResult {
		return repair.Repair(results, bs, repair.Options{Taxonomy: tax})
	}
}

// Report is the outcome of one run. Results are repaired and in block order.
type Report struct {
	RunID            uuid.UUID                       `json:"run_id"`
	DocID            string                          `json:"doc_id"`
	Paragraphs       int                             `json:"paragraphs"`
	Results          []document.ClassificationResult `json:"results"`
	Quality          quality.Report                  `json:"quality"`
	Usage            llm.Usage                       `json:"usage"`
	Profile          quality.Profile                 `json:"profile"`
	Model            string                          `json:"model,omitempty"`
	Attempts         int                             `json:"attempts"`
	Review           bool                            `json:"review"`
	ReferenceZone    document.ReferenceZoneSpan      `json:"reference_zone"`
	CacheHits        int                             `json:"cache_hits"`
	RuleHits         int                             `json:"rule_hits"`
	FallbackReplaced int                             `json:"fallback_replaced"`
	Repaired         int                             `json:"repaired"`
	Suspicious       []quality.SuspiciousItem        `json:"suspicious,omitempty"`
	Confidence       quality.ConfidenceSplit         `json:"confidence"`
	Seconds          float64                         `json:"seconds"`
}

// Prepare turns doc into feature-complete blocks and finds the reference span.
func (s *Service) Prepare(ctx context.Context, doc ingestion.Document) ([]document.Block, document.ReferenceZoneSpan, error) {
	_, span := tracer.Start(ctx, "pipeline.ingest")
	defer span.End()

	asm := ingestion.Assembler{PrefixFor: s.tax.BoxPrefixFor}
	bs, err := asm.Assemble(doc)
	if err != nil {
		fail(span, err)
		return nil, document.EmptySpan(), err
	}
	bs = blocks.Extract(bs)
	ref := refzone.Detect(bs, s.refzone)
	bs = refzone.MarkBlocks(bs, ref)
	span.SetAttributes(attribute.Int("pipeline.paragraphs", len(bs)), attribute.Int("pipeline.reference_ids", len(ref.IDs)))
	return bs, ref, nil
}

// Run classifies doc end to end. A failed classification is still recorded as
// a failed run when persistence is configured.
func (s *Service) Run(ctx context.Context, doc ingestion.Document) (Report, error) {
	start := s.now()
	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = uuid.NewString()
	}
	ctxutil.SetDocID(ctx, doc.ID)
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("doc.id", doc.ID)))
	defer span.End()

	bs, ref, err := s.Prepare(ctx, doc)
	if err != nil {
		fail(span, err)
		return Report{}, fmt.Errorf("ingest %s: %w", doc.ID, err)
	}

	cctx, cspan := tracer.Start(ctx, "pipeline.classify")
	res, err := s.classifier.Classify(cctx, doc.ID, bs)
	if err != nil {
		fail(cspan, err)
		cspan.End()
		fail(span, err)
		s.recordFailure(ctx, doc.ID, len(bs), err)
		s.metrics.ObserveRun(observability.RunObservation{
			Status: runs.RunStatusFailed, Paragraphs: len(bs), Duration: s.now().Sub(start),
		})
		return Report{}, err
	}
	cspan.End()

	_, rspan := tracer.Start(ctx, "pipeline.repair")
	final := repair.Repair(res.Results, bs, repair.Options{Taxonomy: s.tax, Span: ref})
	report := quality.Score(final, bs, s.tax.Allowed)
	repaired := 0
	for _, r := range final {
		if r.Repaired {
			repaired++
		}
	}
	rspan.SetAttributes(
		attribute.Int("repair.count", repaired),
		attribute.Int("quality.score", report.Score),
		attribute.String("quality.action", string(report.Action)),
	)
	rspan.End()

	out := Report{
		DocID:            doc.ID,
		Paragraphs:       len(bs),
		Results:          final,
		Quality:          report,
		Usage:            res.Usage,
		Profile:          res.Profile,
		Model:            res.Model,
		Attempts:         res.Attempts,
		Review:           res.Review || report.Action == quality.ActionReview,
		ReferenceZone:    ref,
		CacheHits:        res.CacheHits,
		RuleHits:         res.RuleHits,
		FallbackReplaced: res.FallbackReplaced,
		Repaired:         repaired,
		Confidence:       quality.SplitByConfidence(final, bs, s.tax.Allowed, s.autoApply),
	}
	if out.Review {
		out.Suspicious = quality.Suspicious(final, bs, suspiciousLimit)
	}

	runID, err := s.persist(ctx, out, bs)
	if err != nil {
		fail(span, err)
		return Report{}, err
	}
	out.RunID = runID
	out.Seconds = s.now().Sub(start).Seconds()
	s.publish(ctx, out)
	s.metrics.ObserveRun(observability.RunObservation{
		Status:           runs.RunStatusSucceeded,
		Action:           string(report.Action),
		Score:            report.Score,
		Paragraphs:       len(bs),
		CacheHits:        res.CacheHits,
		RuleHits:         res.RuleHits,
		FallbackReplaced: res.FallbackReplaced,
		Reasons:          reasons(final),
		Duration:         s.now().Sub(start),
	})

	s.log.Info("pipeline done",
		"doc_id", doc.ID, "run_id", runID.String(), "paragraphs", len(bs), "score", report.Score,
		"action", string(report.Action), "repaired", repaired,
		"auto_applied", out.Confidence.Summary.AutoApplied, "needs_review", out.Confidence.Summary.NeedsReview,
		"seconds", out.Seconds)
	return out, nil
}

func (s *Service) persist(ctx context.Context, rep Report, bs []document.Block) (uuid.UUID, error) {
	if s.runs == nil {
		return uuid.New(), nil
	}
	ctx, span := tracer.Start(ctx, "pipeline.persist")
	defer span.End()

	metrics, err := json.Marshal(rep.Quality.Metrics)
	if err != nil {
		fail(span, err)
		return uuid.Nil, fmt.Errorf("encode metrics: %w", err)
	}
	run := &runs.ClassificationRun{
		DocID:        rep.DocID,
		Status:       runs.RunStatusSucceeded,
		Score:        rep.Quality.Score,
		Action:       string(rep.Quality.Action),
		Profile:      string(rep.Profile),
		Model:        rep.Model,
		Attempts:     rep.Attempts,
		Paragraphs:   rep.Paragraphs,
		InputTokens:  rep.Usage.InputTokens,
		OutputTokens: rep.Usage.OutputTokens,
		Metrics:      datatypes.JSON(metrics),
	}
	dbc := dbctx.New(ctx)
	if err := s.runs.Create(dbc, run); err != nil {
		fail(span, err)
		return uuid.Nil, fmt.Errorf("persist run %s: %w", rep.DocID, err)
	}
	if s.decisions != nil {
		if err := s.decisions.UpsertBatch(dbc, decisions(run.ID, rep.Results, bs)); err != nil {
			fail(span, err)
			return uuid.Nil, fmt.Errorf("persist decisions %s: %w", run.ID, err)
		}
	}
	span.SetAttributes(attribute.String("run.id", run.ID.String()))
	return run.ID, nil
}

func decisions(runID uuid.UUID, results []document.ClassificationResult, bs []document.Block) []*runs.ClassificationDecision {
	idx := document.Index(bs)
	out := make([]*runs.ClassificationDecision, 0, len(results))
	for _, r := range results {
		d := &runs.ClassificationDecision{
			RunID:        runID,
			ParagraphID:  r.ID,
			Tag:          r.Tag,
			Confidence:   r.Confidence,
			Repaired:     r.Repaired,
			RepairReason: r.RepairReason,
			RuleBased:    r.RuleBased,
			FallbackUsed: r.FallbackUsed,
			OriginalTag:  r.OriginalTag,
		}
		if i, ok := idx[r.ID]; ok {
			d.Zone = string(bs[i].Meta.Zone)
			d.TextPreview = preview(bs[i].Text)
		}
		out = append(out, d)
	}
	return out
}

func (s *Service) recordFailure(ctx context.Context, docID string, paragraphs int, cause error) {
	if s.runs == nil {
		return
	}
	run := &runs.ClassificationRun{
		DocID:      docID,
		Status:     runs.RunStatusFailed,
		Action:     string(quality.ActionReview),
		Paragraphs: paragraphs,
		Error:      cause.Error(),
	}
	if err := s.runs.Create(dbctx.New(ctx), run); err != nil {
		s.log.Warn("record failed run", "doc_id", docID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, rep Report) {
	if s.events == nil {
		return
	}
	ev := redis.RunEvent{
		RunID:    rep.RunID.String(),
		DocID:    rep.DocID,
		Score:    rep.Quality.Score,
		Action:   string(rep.Quality.Action),
		Attempts: rep.Attempts,
		At:       s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("run event not published", "run_id", ev.RunID, "error", err)
	}
}

func reasons(results []document.ClassificationResult) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.Reasons()...)
	}
	return out
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	r := []rune(text)
	return string(r[:previewRunes]) + "…"
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
