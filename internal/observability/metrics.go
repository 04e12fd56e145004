package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/styletag-backend/internal/platform/envutil"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

// Metrics is the process-wide registry rendered in Prometheus text format.
// All methods are safe on a nil receiver.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	runs            *CounterVec
	runScore        *HistogramVec
	runDuration     *HistogramVec
	runParagraphs   *Counter
	cacheHits       *Counter
	ruleHits        *Counter
	fallbackReplace *Counter
	repairs         *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

func Current() *Metrics { return instance }

// Init creates the global registry when METRICS_ENABLED is set. It returns nil otherwise.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func NewMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("styletag_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"styletag_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		),
		apiInflight: NewGauge("styletag_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("styletag_llm_requests_total", "LLM calls by model/status.", []string{"model", "status"}),
		llmLatency: NewHistogramVec(
			"styletag_llm_request_duration_seconds",
			"LLM call latency in seconds by model.",
			[]string{"model"},
			[]float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		),
		llmTokens: NewCounterVec("styletag_llm_tokens_total", "LLM tokens by model/kind.", []string{"model", "kind"}),

		runs: NewCounterVec("styletag_runs_total", "Classification runs by status/action.", []string{"status", "action"}),
		runScore: NewHistogramVec(
			"styletag_run_quality_score",
			"Final quality score per run.",
			nil,
			[]float64{40, 50, 60, 70, 80, 85, 90, 95, 100},
		),
		runDuration: NewHistogramVec(
			"styletag_run_duration_seconds",
			"Wall time per run.",
			nil,
			[]float64{1, 5, 10, 30, 60, 120, 300, 600},
		),
		runParagraphs:   NewCounter("styletag_paragraphs_total", "Paragraphs classified."),
		cacheHits:       NewCounter("styletag_cache_hits_total", "Paragraphs answered from the prediction cache."),
		ruleHits:        NewCounter("styletag_rule_hits_total", "Paragraphs answered by learned rules."),
		fallbackReplace: NewCounter("styletag_fallback_replaced_total", "Results replaced by the fallback pass."),
		repairs:         NewCounterVec("styletag_repairs_total", "Repair rewrites by reason code.", []string{"reason"}),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.runs, m.runScore, m.runDuration, m.runParagraphs,
		m.cacheHits, m.ruleHits, m.fallbackReplace, m.repairs,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveLLMRequest records one model call. err == nil counts as "ok".
func (m *Metrics) ObserveLLMRequest(model string, err error, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.llmRequests.Inc(model, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

// RunObservation is what the pipeline reports about one finished run.
type RunObservation struct {
	Status           string
	Action           string
	Score            int
	Paragraphs       int
	CacheHits        int
	RuleHits         int
	FallbackReplaced int
	Reasons          []string
	Duration         time.Duration
}

func (m *Metrics) ObserveRun(o RunObservation) {
	if m == nil {
		return
	}
	action := o.Action
	if action == "" {
		action = "none"
	}
	m.runs.Inc(o.Status, action)
	if o.Status != "failed" {
		m.runScore.Observe(float64(o.Score))
	}
	if o.Duration > 0 {
		m.runDuration.Observe(o.Duration.Seconds())
	}
	m.runParagraphs.Add(float64(o.Paragraphs))
	m.cacheHits.Add(float64(o.CacheHits))
	m.ruleHits.Add(float64(o.RuleHits))
	m.fallbackReplace.Add(float64(o.FallbackReplaced))
	for _, r := range o.Reasons {
		if r = strings.TrimSpace(r); r != "" {
			m.repairs.Inc(r)
		}
	}
}

// StatusLabel renders an HTTP status for metric labels.
func StatusLabel(code int) string { return strconv.Itoa(code) }
