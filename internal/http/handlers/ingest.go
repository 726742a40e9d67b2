package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/http/response"
	"github.com/yungbote/mensa-backend/internal/services"
)

type IngestHandler struct {
	ingest services.IngestService
	loc    *time.Location
}

func NewIngestHandler(ingest services.IngestService, loc *time.Location) *IngestHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &IngestHandler{ingest: ingest, loc: loc}
}

type triggerIngestRequest struct {
	Date string `json:"date"`
}

// POST /api/ingest
func (h *IngestHandler) Trigger(c *gin.Context) {
	var req triggerIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	day := menu.DayOf(time.Now().In(h.loc))
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := menu.ParseDay(req.Date)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
			return
		}
		day = parsed
	}
	run, err := h.ingest.Trigger(c.Request.Context(), day)
	if err != nil {
		response.RespondServiceError(c, "ingest_locked", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID, "run": run})
}

// GET /api/ingest/runs?limit=
func (h *IngestHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.ingest.ListRuns(c.Request.Context(), limit)
	if err != nil {
		response.RespondServiceError(c, "list_runs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}

// GET /api/ingest/runs/:id
func (h *IngestHandler) GetRun(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.ingest.GetRun(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "get_run_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"run": run, "sources": run.Outcomes()})
}
