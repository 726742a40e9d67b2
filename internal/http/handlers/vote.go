package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mensa-backend/internal/http/response"
	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/services"
)

type VoteHandler struct {
	votes services.VoteService
}

func NewVoteHandler(votes services.VoteService) *VoteHandler {
	return &VoteHandler{votes: votes}
}

type castVoteRequest struct {
	Direction string `json:"direction" binding:"required"`
}

// POST /api/meals/:id/vote
func (h *VoteHandler) CastVote(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	voter := ctxutil.Voter(c.Request.Context())
	if voter == "" {
		response.RespondError(c, http.StatusUnauthorized, "voter_required", errors.New("voter cookie required"))
		return
	}
	tally, err := h.votes.Cast(c.Request.Context(), id, voter, req.Direction)
	if err != nil {
		response.RespondServiceError(c, "invalid_vote", err)
		return
	}
	response.RespondOK(c, gin.H{"meal_id": id, "tally": tally})
}

// GET /api/meals/:id/votes
func (h *VoteHandler) GetVotes(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	state, err := h.votes.Tally(c.Request.Context(), id, ctxutil.Voter(c.Request.Context()))
	if err != nil {
		response.RespondServiceError(c, "get_votes_failed", err)
		return
	}
	response.RespondOK(c, state)
}
