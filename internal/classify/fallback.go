package classify

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/styletag-backend/internal/domain/document"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
)

// fallback re-asks the fallback model about model decisions under the
// threshold. results and blocks are index-aligned; the returned slice is a copy.
func (o *Orchestrator) fallback(ctx context.Context, results []document.ClassificationResult, blocks []document.Block, meter *llm.UsageMeter) ([]document.ClassificationResult, int, error) {
	out := make([]document.ClassificationResult, len(results))
	copy(out, results)
	if o.fallbackClient == nil {
		return out, 0, nil
	}

	var low []int
	for i, r := range out {
		if r.Cached || r.RuleBased || r.Confidence >= o.opts.FallbackThreshold {
			continue
		}
		low = append(low, i)
	}
	if len(low) == 0 {
		return out, 0, nil
	}

	var batches [][]int
	for start := 0; start < len(low); start += o.opts.FallbackBatch {
		end := start + o.opts.FallbackBatch
		if end > len(low) {
			end = len(low)
		}
		batches = append(batches, low[start:end])
	}
	o.log.Info("fallback classification", "paragraphs", len(low), "batches", len(batches), "model", o.fallbackClient.Model())

	answers := make([][]item, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FallbackConcurrency)
	for bi, batch := range batches {
		g.Go(func() error {
			user := o.fallbackPrompt(batch, results, blocks)
			comp, err := o.fallbackClient.Generate(gctx, llm.Request{System: fallbackSystemPrompt, User: user, JSON: true})
			if err != nil {
				return fmt.Errorf("fallback batch %d: %w", bi, err)
			}
			meter.Add(comp.Usage)
			items, _, err := decode(comp.Text)
			if err != nil {
				return fmt.Errorf("fallback batch %d: %w", bi, err)
			}
			answers[bi] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	byID := document.Index(blocks)
	replaced := 0
	for bi, batch := range batches {
		inBatch := make(map[int]bool, len(batch))
		for _, idx := range batch {
			inBatch[blocks[idx].ID] = true
		}
		for _, it := range answers[bi] {
			if !inBatch[it.ID] {
				continue
			}
			idx := byID[it.ID]
			prev := out[idx]
			tag, _ := o.canonical(it.Tag, blocks[idx])
			if it.Confidence <= prev.Confidence && tag == prev.Tag {
				continue
			}
			out[idx] = document.ClassificationResult{
				ID:                 prev.ID,
				Tag:                tag,
				Confidence:         it.Confidence,
				Reasoning:          "[fallback] " + it.Reasoning,
				FallbackUsed:       true,
				OriginalTag:        prev.Tag,
				OriginalConfidence: prev.Confidence,
			}
			replaced++
		}
	}
	return out, replaced, nil
}
