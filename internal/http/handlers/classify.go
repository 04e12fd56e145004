package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/styletag-backend/internal/classify"
	"github.com/yungbote/styletag-backend/internal/http/response"
	"github.com/yungbote/styletag-backend/internal/ingestion"
	"github.com/yungbote/styletag-backend/internal/pipeline"
	"github.com/yungbote/styletag-backend/internal/platform/apierr"
)

const defaultMaxBody = 32 << 20

// Runner executes the classification pipeline. *pipeline.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, doc ingestion.Document) (pipeline.Report, error)
}

type ClassifyHandler struct {
	runner  Runner
	maxBody int64
}

func NewClassifyHandler(runner Runner, maxBody int64) *ClassifyHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &ClassifyHandler{runner: runner, maxBody: maxBody}
}

// classifyRequest is an ingestion document, or plain text with one paragraph per line.
type classifyRequest struct {
	ingestion.Document
	Text string `json:"text,omitempty"`
}

// Classify handles POST /v1/documents/classify.
func (h *ClassifyHandler) Classify(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, apierr.New(http.StatusRequestEntityTooLarge, "body_too_large", err))
			return
		}
		response.RespondError(c, apierr.BadRequest("invalid_json", err))
		return
	}
	doc := req.Document
	if len(doc.Paragraphs) == 0 && len(doc.Tables) == 0 && strings.TrimSpace(req.Text) != "" {
		doc = ingestion.FromText(doc.ID, req.Text)
	}

	rep, err := h.runner.Run(c.Request.Context(), doc)
	if err != nil {
		response.RespondError(c, classifyError(err))
		return
	}
	response.RespondOK(c, rep)
}

func classifyError(err error) error {
	switch {
	case errors.Is(err, ingestion.ErrEmptyDocument):
		return apierr.BadRequest("empty_document", err)
	case errors.Is(err, classify.ErrUnparseable):
		return apierr.New(http.StatusBadGateway, "model_unparseable", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		return apierr.New(http.StatusBadGateway, "model_unavailable", fmt.Errorf("upstream %d: %w", status.HTTPStatusCode(), err))
	}
	return err
}
