package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/styletag-backend/internal/platform/envutil"
	"github.com/yungbote/styletag-backend/internal/platform/httpx"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
	"github.com/yungbote/styletag-backend/internal/platform/promptstyle"
)

// Request is one model call. An empty Model uses the client default.
type Request struct {
	System string
	User   string
	Model  string
	JSON   bool
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Client generates text completions.
type Client interface {
	Generate(ctx context.Context, req Request) (Completion, error)
	Model() string
}

// UsageMeter accumulates token usage across calls. The zero value is ready.
type UsageMeter struct {
	calls  atomic.Int64
	input  atomic.Int64
	output atomic.Int64
}

func (m *UsageMeter) Add(u Usage) {
	if m == nil {
		return
	}
	m.calls.Add(1)
	m.input.Add(int64(u.InputTokens))
	m.output.Add(int64(u.OutputTokens))
}

func (m *UsageMeter) Calls() int64 {
	if m == nil {
		return 0
	}
	return m.calls.Load()
}

func (m *UsageMeter) Total() Usage {
	if m == nil {
		return Usage{}
	}
	return Usage{InputTokens: int(m.input.Load()), OutputTokens: int(m.output.Load())}
}

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	FallbackModel   string
	EscalationModel string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:          envutil.String("OPENAI_API_KEY", ""),
		BaseURL:         envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:           envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		FallbackModel:   envutil.String("OPENAI_FALLBACK_MODEL", ""),
		EscalationModel: envutil.String("OPENAI_ESCALATION_MODEL", ""),
		Timeout:         envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 120*time.Second),
		MaxRetries:      envutil.Int("OPENAI_MAX_RETRIES", 3),
		RetryDelay:      envutil.Seconds("OPENAI_RETRY_DELAY_SECONDS", 5*time.Second),
		MaxRetryDelay:   60 * time.Second,
	}
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// OpenAI calls the Responses API.
type OpenAI struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

func NewOpenAI(log *logger.Logger, cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("missing OPENAI_MODEL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 60 * time.Second
	}
	return &OpenAI{
		log:        log.With("service", "LLMClient", "model", cfg.Model),
		cfg:        cfg,
		httpClient: &http.Client{},
		sleep:      httpx.Sleep,
	}, nil
}

func (c *OpenAI) Model() string { return c.cfg.Model }

// WithModel returns a client whose default model is model. Empty model or a
// client that cannot be cloned returns base unchanged.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*OpenAI); ok {
		clone := *c
		clone.cfg.Model = model
		clone.log = c.log.With("model", model)
		return &clone
	}
	return base
}

type inputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string      `json:"model"`
	Input []inputItem `json:"input"`
	Text  *struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens      int `json:"input_tokens"`
		OutputTokens     int `json:"output_tokens"`
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (r responsesResponse) text() string {
	var out strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				out.WriteString(c.Text)
			}
		}
	}
	return out.String()
}

func (r responsesResponse) usage() Usage {
	u := Usage{InputTokens: r.Usage.InputTokens, OutputTokens: r.Usage.OutputTokens}
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		u = Usage{InputTokens: r.Usage.PromptTokens, OutputTokens: r.Usage.CompletionTokens}
	}
	return u
}

func (c *OpenAI) Generate(ctx context.Context, req Request) (Completion, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.Model
	}
	mode := "text"
	if req.JSON {
		mode = "json"
	}
	body := responsesRequest{
		Model: model,
		Input: []inputItem{
			{Role: "system", Content: promptstyle.ApplySystem(req.System, mode)},
			{Role: "user", Content: req.User},
		},
	}
	if req.JSON {
		body.Text = &struct {
			Format map[string]any `json:"format,omitempty"`
		}{Format: map[string]any{"type": "json_object"}}
	}

	ctx, span := otel.Tracer("styletag/llm").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model), attribute.Bool("llm.json", req.JSON))

	var resp responsesResponse
	if err := c.do(ctx, "/v1/responses", body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return Completion{}, err
	}
	if resp.Refusal != "" {
		return Completion{}, fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := resp.text()
	if strings.TrimSpace(text) == "" {
		return Completion{}, errors.New("no output_text found in response")
	}
	u := resp.usage()
	span.SetAttributes(attribute.Int("llm.input_tokens", u.InputTokens), attribute.Int("llm.output_tokens", u.OutputTokens))
	return Completion{Text: text, Model: model, Usage: u}, nil
}

func (c *OpenAI) doOnce(ctx context.Context, path string, payload []byte) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *OpenAI) do(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm encode: %w", err)
	}
	backoff := httpx.Backoff{Base: c.cfg.RetryDelay, Max: c.cfg.MaxRetryDelay, RateLimitFactor: 2}

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, path, payload)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("llm decode error: %w", uErr)
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || ctx.Err() != nil {
			return err
		}
		if attempt == c.cfg.MaxRetries {
			return fmt.Errorf("llm request failed after %d retries: %w", c.cfg.MaxRetries, err)
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff.Delay(attempt, err), c.cfg.MaxRetryDelay)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("llm request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, sleepFor); err != nil {
			return err
		}
	}
	return errors.New("unreachable retry loop")
}
