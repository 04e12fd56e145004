package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/styletag-backend/internal/classify"
	"github.com/yungbote/styletag-backend/internal/data/repos"
	"github.com/yungbote/styletag-backend/internal/data/repos/testutil"
	"github.com/yungbote/styletag-backend/internal/domain/document"
	httpH "github.com/yungbote/styletag-backend/internal/http/handlers"
	"github.com/yungbote/styletag-backend/internal/ingestion"
	"github.com/yungbote/styletag-backend/internal/observability"
	"github.com/yungbote/styletag-backend/internal/pipeline"
	"github.com/yungbote/styletag-backend/internal/platform/logger"
)

type fakeRunner struct {
	got ingestion.Document
	err error
}

func (f *fakeRunner) Run(_ context.Context, doc ingestion.Document) (pipeline.Report, error) {
	f.got = doc
	if f.err != nil {
		return pipeline.Report{}, f.err
	}
	return pipeline.Report{
		RunID:      uuid.New(),
		DocID:      doc.ID,
		Paragraphs: len(doc.Paragraphs),
		Results:    []document.ClassificationResult{{ID: 1, Tag: "H1", Confidence: 0.9}},
	}, nil
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, runner httpH.Runner, extra func(*RouterConfig)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := RouterConfig{
		Log:             logger.Nop(),
		Metrics:         observability.NewMetrics(),
		HealthHandler:   httpH.NewHealthHandler(nil),
		ClassifyHandler: httpH.NewClassifyHandler(runner, 1<<10),
	}
	if extra != nil {
		extra(&cfg)
	}
	return NewRouter(cfg)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, &fakeRunner{}, nil)
	rec := do(r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	r := newTestRouter(t, &fakeRunner{}, func(cfg *RouterConfig) {
		cfg.HealthHandler = httpH.NewHealthHandler(map[string]httpH.Pinger{
			"db": func(context.Context) error { return errors.New("down") },
		})
	})
	rec := do(r, http.MethodGet, "/healthz", "")
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusServiceUnavailable || body.Error.Code != "db_unavailable" {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestClassifyDocument(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(t, runner, nil)
	rec := do(r, http.MethodPost, "/v1/documents/classify", `{"id":"ch1","paragraphs":[{"text":"Overview"},{"text":"Body."}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var rep pipeline.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.DocID != "ch1" || rep.Paragraphs != 2 || len(rep.Results) != 1 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestClassifyPlainText(t *testing.T) {
	runner := &fakeRunner{}
	r := newTestRouter(t, runner, nil)
	rec := do(r, http.MethodPost, "/v1/documents/classify", `{"id":"ch2","text":"Overview\n\nBody one.\nBody two.\n"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.got.Paragraphs) != 3 || runner.got.ID != "ch2" {
		t.Fatalf("document: %+v", runner.got)
	}
}

func TestClassifyErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"bad json", `{"paragraphs":`, nil, http.StatusBadRequest, "invalid_json"},
		{"too large", fmt.Sprintf(`{"text":%q}`, strings.Repeat("x", 2048)), nil, http.StatusRequestEntityTooLarge, "body_too_large"},
		{"empty", `{"paragraphs":[]}`, fmt.Errorf("ingest: %w", ingestion.ErrEmptyDocument), http.StatusBadRequest, "empty_document"},
		{"unparseable", `{"text":"x"}`, fmt.Errorf("attempt 1: %w", classify.ErrUnparseable), http.StatusBadGateway, "model_unparseable"},
		{"internal", `{"text":"x"}`, errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, &fakeRunner{err: tc.err}, nil)
			rec := do(r, http.MethodPost, "/v1/documents/classify", tc.body)
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode %q: %v", rec.Body.String(), err)
			}
			if rec.Code != tc.status || body.Error.Code != tc.code {
				t.Fatalf("got %d %q, want %d %q", rec.Code, body.Error.Code, tc.status, tc.code)
			}
			if tc.code == "internal" && strings.Contains(body.Error.Message, "disk") {
				t.Fatalf("internal error leaked: %q", body.Error.Message)
			}
		})
	}
}

func TestRunEndpoints(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	runRepo := repos.NewRunRepo(db, log)
	decisionRepo := repos.NewDecisionRepo(db, log)
	seeded := testutil.SeedRun(t, context.Background(), db, "ch9", 91, "PASS")

	r := newTestRouter(t, &fakeRunner{}, func(cfg *RouterConfig) {
		cfg.RunHandler = httpH.NewRunHandler(runRepo, decisionRepo)
	})

	rec := do(r, http.MethodGet, "/v1/runs/"+seeded.ID.String(), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"doc_id":"ch9"`) {
		t.Fatalf("get run: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(r, http.MethodGet, "/v1/runs/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", rec.Code)
	}
	rec = do(r, http.MethodGet, "/v1/runs/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", rec.Code)
	}
	rec = do(r, http.MethodGet, "/v1/documents/ch9/runs", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), seeded.ID.String()) {
		t.Fatalf("list runs: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, &fakeRunner{}, nil)
	do(r, http.MethodGet, "/healthz", "")
	rec := do(r, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`route="/healthz"`)) {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(r, http.MethodGet, "/metrics", "")
	if bytes.Contains(rec.Body.Bytes(), []byte(`route="/metrics"`)) {
		t.Fatalf("scrapes must not be counted:\n%s", rec.Body.String())
	}
}
