package classify

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
	"github.com/yungbote/styletag-backend/internal/styles"
)

// Outcome is the state of one chunk after a model call.
type Outcome string

const (
	Resolved   Outcome = "resolved"
	NeedsRetry Outcome = "needs_retry"
	Failed     Outcome = "failed"
)

const (
	healedConfidenceCap = 0.60
	missingReason       = "Missing from API response"
)

// attempt is the result of one call over a chunk.
type attempt struct {
	Outcome Outcome
	Results []document.ClassificationResult
	// Raw holds the sanitized model tag of each result that failed membership, by id.
	Raw     map[int]string
	Invalid []string
	Err     error
}

// call sends one prompt and evaluates the response against the chunk.
func (o *Orchestrator) call(ctx context.Context, client llm.Client, user string, chunk []document.Block, meter *llm.UsageMeter) attempt {
	comp, err := client.Generate(ctx, llm.Request{System: systemPrompt, User: user, JSON: true})
	if err != nil {
		return attempt{Outcome: Failed, Err: fmt.Errorf("generate: %w", err)}
	}
	meter.Add(comp.Usage)
	items, stage, err := decode(comp.Text)
	if err != nil {
		return attempt{Outcome: Failed, Err: err}
	}
	if stage != StageDirect {
		o.log.Debug("model response repaired", "stage", string(stage), "items", len(items))
	}
	return o.evaluate(items, chunk)
}

// evaluate maps decoded items onto the chunk. Ids outside the chunk are
// dropped, missing ids become the universal fallback at zero confidence.
func (o *Orchestrator) evaluate(items []item, chunk []document.Block) attempt {
	byID := make(map[int]item, len(items))
	for _, it := range items {
		if _, dup := byID[it.ID]; !dup {
			byID[it.ID] = it
		}
	}
	out := attempt{Outcome: Resolved, Raw: map[int]string{}}
	seen := map[string]bool{}
	for _, b := range chunk {
		it, ok := byID[b.ID]
		if !ok {
			out.Results = append(out.Results, document.ClassificationResult{
				ID: b.ID, Tag: o.tax.UniversalFallback, Confidence: 0, Reasoning: missingReason,
			})
			continue
		}
		tag := o.mapTag(it.Tag, b)
		out.Results = append(out.Results, document.ClassificationResult{
			ID: b.ID, Tag: tag, Confidence: it.Confidence, Reasoning: it.Reasoning,
		})
		if !o.tax.Allowed.Has(tag) {
			out.Raw[b.ID] = tag
			if !seen[tag] {
				seen[tag] = true
				out.Invalid = append(out.Invalid, tag)
			}
		}
	}
	if len(out.Invalid) > 0 {
		sort.Strings(out.Invalid)
		out.Outcome = NeedsRetry
	}
	return out
}

// classifyChunk runs one chunk through the model with a single corrective
// re-prompt. Tags still invalid afterwards are forced into the vocabulary.
func (o *Orchestrator) classifyChunk(ctx context.Context, client llm.Client, user string, chunk []document.Block, meter *llm.UsageMeter) ([]document.ClassificationResult, error) {
	first := o.call(ctx, client, user, chunk, meter)
	switch first.Outcome {
	case Failed:
		return nil, first.Err
	case Resolved:
		return first.Results, nil
	}

	o.log.Warn("invalid tags in model response, re-prompting", "invalid", first.Invalid, "chunk_size", len(chunk))
	second := o.call(ctx, client, user+correctionSuffix(first.Invalid), chunk, meter)
	switch second.Outcome {
	case Failed:
		return nil, second.Err
	case Resolved:
		return second.Results, nil
	}
	return o.forceNormalize(second, chunk), nil
}

// forceNormalize resolves every remaining invalid tag through the membership
// resolver, restricted to the block's zone when the zone is constrained. When
// the resolver can only offer its fallback, a close enough grounded example
// supplies the tag instead.
func (o *Orchestrator) forceNormalize(a attempt, chunk []document.Block) []document.ClassificationResult {
	idx := document.Index(chunk)
	out := make([]document.ClassificationResult, len(a.Results))
	copy(out, a.Results)
	for i, r := range out {
		raw, bad := a.Raw[r.ID]
		if !bad {
			continue
		}
		b := chunk[idx[r.ID]]
		allowed := o.tax.Allowed
		if zone := string(b.Meta.Zone); o.tax.Constraints.Constrained(zone) {
			if restricted := o.tax.Constraints.Restrict(zone, o.tax.Allowed); len(restricted) > 0 {
				allowed = restricted
			}
		}
		tag, step := o.tax.EnforceIn(raw, allowed)
		reason := fmt.Sprintf("Normalized '%s' -> '%s'", raw, tag)
		if step == styles.StepFallback {
			if m, ok := o.retriever.Nearest(b.Text, b.Meta.Zone, groundedMinScore); ok && allowed.Has(m.Tag) {
				tag = m.Tag
				reason = fmt.Sprintf("Grounded '%s' -> '%s' (similarity %.2f)", raw, tag, m.Score)
			}
		}
		out[i].Tag = tag
		out[i].Confidence = math.Min(r.Confidence, healedConfidenceCap)
		out[i].Reasoning = reason
	}
	return out
}

// canonical resolves a mapped tag for a block without a corrective call.
func (o *Orchestrator) canonical(raw string, b document.Block) (string, styles.Step) {
	return o.tax.EnforceMembership(o.mapTag(raw, b))
}
