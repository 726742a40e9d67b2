package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/http/response"
	"github.com/yungbote/mensa-backend/internal/services"
)

type RecommendationHandler struct {
	recs services.RecommendationService
	loc  *time.Location
}

func NewRecommendationHandler(recs services.RecommendationService, loc *time.Location) *RecommendationHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &RecommendationHandler{recs: recs, loc: loc}
}

type recommendRequest struct {
	Meals []string `json:"meals"`
	Date  string   `json:"date"`
	Venue string   `json:"venue"`
}

// GET /api/recommendations
func (h *RecommendationHandler) ListPersonas(c *gin.Context) {
	response.RespondOK(c, gin.H{"personas": h.recs.Personas()})
}

// POST /api/recommendations/:persona
func (h *RecommendationHandler) Recommend(c *gin.Context) {
	var req recommendRequest
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
	var venue *string
	if v := strings.TrimSpace(req.Venue); v != "" {
		venue = &v
	}
	rec, err := h.recs.Recommend(c.Request.Context(), c.Param("persona"), day, venue, req.Meals)
	if err != nil {
		response.RespondServiceError(c, "invalid_recommendation_request", err)
		return
	}
	response.RespondOK(c, gin.H{"recommendation": rec})
}
