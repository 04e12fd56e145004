package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/styletag-backend/internal/data/repos"
	"github.com/yungbote/styletag-backend/internal/http/response"
	"github.com/yungbote/styletag-backend/internal/pkg/dbctx"
	"github.com/yungbote/styletag-backend/internal/platform/apierr"
)

// RunHandler serves the run audit trail.
type RunHandler struct {
	runs      repos.RunRepo
	decisions repos.DecisionRepo
}

func NewRunHandler(runs repos.RunRepo, decisions repos.DecisionRepo) *RunHandler {
	return &RunHandler{runs: runs, decisions: decisions}
}

// GetRun handles GET /v1/runs/:id.
func (h *RunHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.BadRequest("invalid_run_id", err))
		return
	}
	dbc := dbctx.New(c.Request.Context())
	run, err := h.runs.GetByID(dbc, id)
	if err != nil {
		response.RespondError(c, repoError(err))
		return
	}
	decs, err := h.decisions.ListByRun(dbc, id)
	if err != nil {
		response.RespondError(c, repoError(err))
		return
	}
	response.RespondOK(c, gin.H{"run": run, "decisions": decs})
}

// ListDocumentRuns handles GET /v1/documents/:id/runs?limit=N.
func (h *RunHandler) ListDocumentRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.runs.ListByDoc(dbctx.New(c.Request.Context()), c.Param("id"), limit)
	if err != nil {
		response.RespondError(c, repoError(err))
		return
	}
	response.RespondOK(c, gin.H{"runs": list})
}

func repoError(err error) error {
	switch {
	case errors.Is(err, repos.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, repos.ErrRetryable):
		return apierr.Unavailable("retryable", err)
	}
	return err
}
