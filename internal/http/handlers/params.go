package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
)

// dayParam reads ?date=YYYY-MM-DD, defaulting to today in loc.
func dayParam(c *gin.Context, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		if loc == nil {
			loc = time.UTC
		}
		return menu.DayOf(time.Now().In(loc)), nil
	}
	day, err := menu.ParseDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidArgument, err)
	}
	return day, nil
}

func idParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", c.Param("id"), pkgerrors.ErrInvalidArgument)
	}
	return id, nil
}
