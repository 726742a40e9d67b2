package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/http/response"
	"github.com/yungbote/mensa-backend/internal/services"
)

type MealHandler struct {
	meals  services.MealService
	badges services.BadgeService
	loc    *time.Location
}

func NewMealHandler(meals services.MealService, badges services.BadgeService, loc *time.Location) *MealHandler {
	return &MealHandler{meals: meals, badges: badges, loc: loc}
}

// GET /api/meals?date=YYYY-MM-DD&venue=
func (h *MealHandler) ListMeals(c *gin.Context) {
	day, err := dayParam(c, h.loc)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}
	var venue *string
	if v, ok := c.GetQuery("venue"); ok && v != "" {
		venue = &v
	}
	meals, err := h.meals.ListByDate(c.Request.Context(), day, venue)
	if err != nil {
		response.RespondServiceError(c, "list_meals_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"date": day.Format(menu.DayLayout), "meals": meals})
}

// GET /api/meals/:id
func (h *MealHandler) GetMeal(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	meal, err := h.meals.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "get_meal_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"meal": meal})
}

// GET /api/venues?date=YYYY-MM-DD
func (h *MealHandler) ListVenues(c *gin.Context) {
	day, err := dayParam(c, h.loc)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}
	venues, err := h.meals.Venues(c.Request.Context(), day)
	if err != nil {
		response.RespondServiceError(c, "list_venues_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"date": day.Format(menu.DayLayout), "venues": venues})
}

// GET /api/meals/:id/badge.png
func (h *MealHandler) Badge(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}
	meal, err := h.meals.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, "get_meal_failed", err)
		return
	}
	png, err := h.badges.Render(meal)
	if err != nil {
		response.RespondServiceError(c, "badge_failed", err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}
