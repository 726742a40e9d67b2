package services

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const (
	badgeHeight   = 40
	badgeIcon     = 18
	badgeGap      = 4
	badgePad      = 10
	badgeMaxIcons = 20
)

// BadgeService renders the primary value score as a small PNG: the value
// followed by one icon per 100 units, the last one cropped to the
// remainder.
type BadgeService interface {
	Render(meal *types.Meal) ([]byte, error)
}

type badgeService struct {
	log      *logger.Logger
	fontFace font.Face
	bg       color.NRGBA
	fg       color.NRGBA
	accent   color.NRGBA
}

func NewBadgeService(log *logger.Logger) (BadgeService, error) {
	parsed, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse badge font: %w", err)
	}
	face := truetype.NewFace(parsed, &truetype.Options{
		Size:    18,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return &badgeService{
		log:      log.With("service", "BadgeService"),
		fontFace: face,
		bg:       color.NRGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff},
		fg:       color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		accent:   color.NRGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
	}, nil
}

// BadgeLabel formats a primary score the way the menu prints prices:
// two decimals with a decimal comma.
func BadgeLabel(primary *float64) string {
	if primary == nil {
		return "n/a"
	}
	return strings.Replace(fmt.Sprintf("%.2f kcal/€", *primary), ".", ",", 1)
}

// BadgeIcons splits a score into whole icons and the fraction of the next.
func BadgeIcons(primary *float64) (full int, partial float64) {
	if primary == nil || *primary <= 0 {
		return 0, 0
	}
	v := *primary
	full = int(v / 100)
	partial = math.Mod(v, 100) / 100
	if full >= badgeMaxIcons {
		return badgeMaxIcons, 0
	}
	return full, partial
}

func (s *badgeService) Render(meal *types.Meal) ([]byte, error) {
	if meal == nil {
		return nil, fmt.Errorf("meal required")
	}
	label := BadgeLabel(meal.PrimaryScore)
	full, partial := BadgeIcons(meal.PrimaryScore)

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(s.fontFace)
	tw, th := measure.MeasureString(label)

	icons := full
	if partial > 0 {
		icons++
	}
	width := badgePad*2 + int(math.Ceil(tw))
	if icons > 0 {
		width += badgeGap*2 + icons*(badgeIcon+badgeGap)
	}

	dc := gg.NewContext(width, badgeHeight)
	dc.SetColor(s.bg)
	dc.DrawRoundedRectangle(0, 0, float64(width), badgeHeight, 8)
	dc.Fill()

	dc.SetFontFace(s.fontFace)
	dc.SetColor(s.fg)
	dc.DrawString(label, badgePad, badgeHeight/2+th/2-2)

	x := float64(badgePad) + tw + badgeGap*2
	y := float64(badgeHeight-badgeIcon) / 2
	for i := 0; i < full; i++ {
		s.drawIcon(dc, x, y, 1)
		x += badgeIcon + badgeGap
	}
	if partial > 0 {
		s.drawIcon(dc, x, y, partial)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// drawIcon paints one coin-shaped icon, clipped horizontally to fraction.
func (s *badgeService) drawIcon(dc *gg.Context, x, y, fraction float64) {
	dc.Push()
	defer dc.Pop()
	dc.DrawRectangle(x, y, badgeIcon*fraction, badgeIcon)
	dc.Clip()
	r := float64(badgeIcon) / 2
	dc.SetColor(s.accent)
	dc.DrawCircle(x+r, y+r, r)
	dc.Fill()
	dc.SetColor(s.bg)
	dc.DrawCircle(x+r, y+r, r*0.45)
	dc.Fill()
	dc.ResetClip()
}
