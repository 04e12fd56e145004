package app

import (
	"fmt"
	"time"

	"github.com/yungbote/styletag-backend/internal/cache"
	"github.com/yungbote/styletag-backend/internal/classify"
	"github.com/yungbote/styletag-backend/internal/observability"
	"github.com/yungbote/styletag-backend/internal/pipeline"
	"github.com/yungbote/styletag-backend/internal/platform/llm"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/rules"
	"github.com/yungbote/styletag-backend/internal/styles"
)

type Services struct {
	Taxonomy  *styles.Taxonomy
	Rules     *rules.RuleSet
	Retriever *classify.Retriever

	// Cache is the tiered lookup used by the classifier. Store is its durable
	// bottom tier, exposed for pruning and stats.
	Cache cache.Cache
	Store *cache.Store

	Classifier *classify.Orchestrator
	Pipeline   *pipeline.Service
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	tax, err := styles.LoadDefault()
	if err != nil {
		return Services{}, fmt.Errorf("load styles: %w", err)
	}
	log.Info("style vocabulary loaded", "version", tax.Version, "tags", len(tax.Tags()))

	var ruleSet *rules.RuleSet
	if cfg.RulesPath != "" {
		ruleSet, err = rules.Load(cfg.RulesPath)
		if err != nil {
			return Services{}, fmt.Errorf("load rules: %w", err)
		}
		log.Info("learned rules loaded", "path", cfg.RulesPath, "rules", ruleSet.Len())
	}

	var retriever *classify.Retriever
	if cfg.GroundTruthPath != "" {
		entries, err := rules.LoadGroundTruth(cfg.GroundTruthPath)
		if err != nil {
			return Services{}, fmt.Errorf("load ground truth: %w", err)
		}
		retriever = classify.NewRetriever(entries)
		log.Info("grounded examples indexed", "path", cfg.GroundTruthPath, "entries", len(entries), "examples", retriever.Len())
	}

	store := cache.NewStore(repos.Predictions, cfg.CacheTTL)
	var back cache.Cache = store
	if clients.Redis != nil {
		back = cache.NewTiered(cache.NewRedis(log, clients.Redis, cfg.CacheTTL), store)
	}
	tiered := cache.NewTiered(cache.NewMemory(cfg.CacheTTL), back)

	out := Services{Taxonomy: tax, Rules: ruleSet, Retriever: retriever, Cache: tiered, Store: store}
	if clients.LLM == nil {
		return out, nil
	}

	obs := llmObserver(metrics)
	primary := llm.Observed(clients.LLM, obs)
	fallback := primary
	if cfg.LLM.FallbackModel != "" {
		fallback = llm.Observed(llm.WithModel(clients.LLM, cfg.LLM.FallbackModel), obs)
	}
	var escalation llm.Client
	if cfg.LLM.EscalationModel != "" {
		escalation = llm.Observed(llm.WithModel(clients.LLM, cfg.LLM.EscalationModel), obs)
	}

	orch, err := classify.New(log, classify.Config{
		Taxonomy:   tax,
		Rules:      ruleSet,
		Cache:      tiered,
		Client:     primary,
		Fallback:   fallback,
		Escalation: escalation,
		Refine:     pipeline.RepairFunc(tax),
		Options:    cfg.Classify,
		Retriever:  retriever,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init classifier: %w", err)
	}

	pcfg := pipeline.Config{
		Taxonomy:   tax,
		Classifier: orch,
		Runs:       repos.Runs,
		Decisions:  repos.Decisions,
		Metrics:    metrics,
		RefZone:    cfg.RefZone,

		AutoApplyThreshold: cfg.AutoApplyThreshold,
	}
	if clients.Events != nil {
		pcfg.Events = clients.Events
	}
	svc, err := pipeline.New(log, pcfg)
	if err != nil {
		return Services{}, fmt.Errorf("init pipeline: %w", err)
	}

	out.Classifier = orch
	out.Pipeline = svc
	return out, nil
}

func llmObserver(metrics *observability.Metrics) llm.Observer {
	if metrics == nil {
		return nil
	}
	return func(model string, err error, dur time.Duration, usage llm.Usage) {
		metrics.ObserveLLMRequest(model, err, dur, usage.InputTokens, usage.OutputTokens)
	}
}
