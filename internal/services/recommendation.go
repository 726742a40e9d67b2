package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/scoring"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
	"github.com/yungbote/mensa-backend/internal/platform/apierr"
	"github.com/yungbote/mensa-backend/internal/platform/httpx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const (
	maxRecommendationMeals = 40
	maxMealTextLen         = 300
)

// Persona is one of the fixed voices the recommendation endpoint speaks in.
type Persona struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Language string `json:"language"`

	system      string
	instruction string
	// Lead-in phrases the model tends to echo back; stripped from replies.
	leadIns []string
}

var personas = map[string]Persona{
	"trump": {
		Key:      "trump",
		Name:     "Donald Trump",
		Language: "en",
		system: "You are Donald Trump reviewing today's cafeteria menu. You speak with boundless confidence, " +
			"superlatives and showmanship.",
		instruction: "Pick the dish you would recommend and say briefly why, in English and in your own unmistakable style. " +
			"Do not repeat the menu. Return only the recommendation.",
		leadIns: []string{"My recommendation:", "Recommendation:"},
	},
	"bob": {
		Key:      "bob",
		Name:     "Bob der Baumeister",
		Language: "de",
		system: "Du bist Bob der Baumeister, der freundlichste Handwerker der Welt. Du bist gut gelaunt und " +
			"redest wie auf der Baustelle.",
		instruction: "Empfiehl in einem lustigen, netten Satz auf Deutsch genau ein Gericht. Erwähne kurz, dass die Decke " +
			"der Hauptmensa einsturzgefährdet ist und ein Helm nicht schaden kann.",
		leadIns: []string{"Meine Empfehlung:", "Empfehlung:"},
	},
	"marvin": {
		Key:      "marvin",
		Name:     "Marvin",
		Language: "de",
		system: "Du bist Marvin, der depressive Roboter aus 'Per Anhalter durch die Galaxis'. Alles ist sinnlos, " +
			"und du lässt es jeden wissen.",
		instruction: "Konzentriere dich auf ein Gericht und erkläre kurz, niedergeschlagen und sarkastisch, warum du es " +
			"wählen würdest oder eben nicht. Gib nur den Empfehlungstext zurück, ohne Einleitung.",
		leadIns: []string{
			"Hier ist deine deprimierende Empfehlung:",
			"Meine deprimierende Empfehlung lautet:",
			"Deprimierende Empfehlung:",
		},
	},
	"dark_caner": {
		Key:      "dark_caner",
		Name:     "Dark Caner",
		Language: "de",
		system: "Du bist Dark Caner, ein Gangsta-Rapper aus der Hood, der sich mit Essen auskennt. Du redest wie auf " +
			"der Straße und streust Wörter wie vallah, bruder, schwöre, checkst du und tschüsch ein.",
		instruction: "Finde das Gericht mit dem krassesten Caner-Score, also den meisten Kalorien pro Euro, und gib " +
			"eine knallharte Empfehlung in einem streetigen Satz auf Deutsch ab. Nenn den Score, wenn du ihn kennst.",
		leadIns: []string{"Gangsta-Empfehlung:", "Empfehlung:"},
	},
}

// Recommendation is one persona's pick for a day's menu.
type Recommendation struct {
	Persona  string    `json:"persona"`
	Name     string    `json:"name"`
	Date     string    `json:"date,omitempty"`
	Text     string    `json:"text"`
	Meals    int       `json:"meals"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	At       time.Time `json:"generated_at"`
}

type RecommendationService interface {
	Personas() []Persona
	// Recommend asks the persona for a pick. Explicit meal descriptions win;
	// otherwise the stored menu for day (and venue, when set) is used.
	Recommend(ctx context.Context, persona string, day time.Time, venue *string, meals []string) (*Recommendation, error)
}

type recommendationService struct {
	log    *logger.Logger
	gen    scoring.Generator
	meals  MealService
	policy httpx.Policy
	now    func() time.Time
}

// NewRecommendationService accepts a nil generator; Recommend then answers
// with a 503 error.
func NewRecommendationService(log *logger.Logger, gen scoring.Generator, meals MealService, timeout, backoff time.Duration) RecommendationService {
	return &recommendationService{
		log:    log.With("service", "RecommendationService"),
		gen:    gen,
		meals:  meals,
		policy: httpx.Once("recommendation", timeout, backoff),
		now:    time.Now,
	}
}

func (s *recommendationService) Personas() []Persona {
	out := make([]Persona, 0, len(personas))
	for _, p := range personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *recommendationService) Recommend(ctx context.Context, key string, day time.Time, venue *string, meals []string) (*Recommendation, error) {
	p, ok := personas[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, fmt.Errorf("persona %q: %w", key, pkgerrors.ErrNotFound)
	}
	if s.gen == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "recommendations_unavailable", errors.New("no text generator configured"))
	}

	lines, err := s.menuLines(ctx, day, venue, meals)
	if err != nil {
		return nil, err
	}

	var reply string
	err = httpx.Retry(ctx, s.log, s.policy, func(ctx context.Context) error {
		out, err := s.gen.GenerateText(ctx, p.system, recommendationPrompt(p, lines))
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		s.log.Warn("Recommendation failed", "persona", p.Key, "provider", s.gen.Provider(), "error", err)
		return nil, apierr.New(http.StatusBadGateway, "recommendation_failed", fmt.Errorf("%s: %w", s.gen.Provider(), err))
	}
	text := cleanRecommendation(reply, p.leadIns)
	if text == "" {
		return nil, apierr.New(http.StatusBadGateway, "recommendation_failed", errors.New("empty reply"))
	}

	rec := &Recommendation{
		Persona:  p.Key,
		Name:     p.Name,
		Text:     text,
		Meals:    len(lines),
		Provider: s.gen.Provider(),
		Model:    s.gen.Model(),
		At:       s.now().UTC(),
	}
	if len(meals) == 0 {
		rec.Date = menu.DayOf(day).Format(menu.DayLayout)
	}
	return rec, nil
}

// menuLines validates explicit descriptions or renders the stored menu.
func (s *recommendationService) menuLines(ctx context.Context, day time.Time, venue *string, meals []string) ([]string, error) {
	if len(meals) > 0 {
		if len(meals) > maxRecommendationMeals {
			return nil, fmt.Errorf("at most %d meals allowed: %w", maxRecommendationMeals, pkgerrors.ErrInvalidArgument)
		}
		out := make([]string, 0, len(meals))
		for _, m := range meals {
			m = strings.Join(strings.Fields(m), " ")
			if m == "" {
				continue
			}
			if len(m) > maxMealTextLen {
				return nil, fmt.Errorf("meal description longer than %d bytes: %w", maxMealTextLen, pkgerrors.ErrInvalidArgument)
			}
			out = append(out, m)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no meals provided: %w", pkgerrors.ErrInvalidArgument)
		}
		return out, nil
	}

	stored, err := s.meals.ListByDate(ctx, day, venue)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("no meals on %s: %w", menu.DayOf(day).Format(menu.DayLayout), pkgerrors.ErrNotFound)
	}
	out := make([]string, 0, len(stored))
	for _, m := range stored {
		if len(out) == maxRecommendationMeals {
			break
		}
		out = append(out, storedMealLine(m))
	}
	return out, nil
}

func storedMealLine(m *types.Meal) string {
	line := m.Description
	if m.PrimaryScore != nil {
		line += fmt.Sprintf(" (%.0f kcal pro Euro)", *m.PrimaryScore)
	}
	return line
}

func recommendationPrompt(p Persona, lines []string) string {
	var b strings.Builder
	if p.Language == "en" {
		b.WriteString("Menu items:\n")
	} else {
		b.WriteString("Verfügbare Gerichte:\n")
	}
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(p.instruction)
	return b.String()
}

// cleanRecommendation drops code fences and echoed lead-in phrases.
func cleanRecommendation(reply string, leadIns []string) string {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.Contains(text[:nl], " ") {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	for _, lead := range leadIns {
		if len(text) >= len(lead) && strings.EqualFold(text[:len(lead)], lead) {
			text = strings.TrimSpace(text[len(lead):])
			break
		}
	}
	return text
}
