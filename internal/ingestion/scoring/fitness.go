package scoring

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/platform/httpx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Generator is the text-generation surface the fitness scorer needs. Both
// the Responses API client and the chat-completions client satisfy it.
type Generator interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	Provider() string
	Model() string
}

const fitnessPersona = "Du bist Max, ein Fitness-Enthusiast, der sich strikt an eine bestimmte Ernährung hält. " +
	"Max meidet konsequent Gemüse und Obst, auch versteckt in Salat, Zwiebeln, Pilzen oder Beeren, und lehnt Fisch komplett ab. " +
	"Er isst gerne herzhafte, proteinreiche Speisen wie Schwein, Rind, Huhn, Käse oder Eier und legt wegen seines Trainings Wert auf viel Eiweiß. " +
	"Reis, Kartoffeln oder Pasta sind in Ordnung, solange kein Gemüse dabei ist. Süßspeisen ohne Obst sind gern gesehen."

var firstNumber = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// FitnessScorer asks an external model for a 0-100 preference score.
type FitnessScorer struct {
	log    *logger.Logger
	gen    Generator
	policy httpx.Policy
}

func NewFitnessScorer(log *logger.Logger, gen Generator, timeout, backoff time.Duration) *FitnessScorer {
	if log == nil {
		log = logger.Nop()
	}
	return &FitnessScorer{
		log:    log.With("component", "FitnessScorer"),
		gen:    gen,
		policy: httpx.Once("fitness_score", timeout, backoff),
	}
}

func (f *FitnessScorer) Provider() string { return f.gen.Provider() }
func (f *FitnessScorer) Model() string    { return f.gen.Model() }

// Score returns nil and an ErrExternalService error when the call fails or
// the reply holds no number.
func (f *FitnessScorer) Score(ctx context.Context, m *menu.Meal) (*float64, error) {
	if f == nil || f.gen == nil {
		return nil, ingesterr.ExternalService("ai", "score", errors.New("no generator configured"))
	}
	var reply string
	err := httpx.Retry(ctx, f.log, f.policy, func(ctx context.Context) error {
		out, err := f.gen.GenerateText(ctx, fitnessPersona, fitnessPrompt(m))
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return nil, ingesterr.ExternalService(f.gen.Provider(), "score", err)
	}
	v, err := ParseFitnessReply(reply)
	if err != nil {
		return nil, ingesterr.ExternalService(f.gen.Provider(), "parse_reply", err)
	}
	return &v, nil
}

func fitnessPrompt(m *menu.Meal) string {
	var b strings.Builder
	b.WriteString("Bewerte das folgende Gericht auf einer Skala von 0 bis 100, wobei 100 die perfekte Übereinstimmung mit Max' Vorlieben darstellt.\n\n")
	fmt.Fprintf(&b, "Gericht: %s\n", m.Description)
	if m.EnergyKcal != nil {
		fmt.Fprintf(&b, "Energie: %.0f kcal\n", *m.EnergyKcal)
	}
	if m.ProteinG != nil {
		fmt.Fprintf(&b, "Eiweiß: %.1f g\n", *m.ProteinG)
	}
	b.WriteString("\nGib nur eine Zahl zwischen 0 und 100 zurück. Kein zusätzlicher Text.")
	return b.String()
}

// ParseFitnessReply takes the first number in reply, clamped to 0..100.
func ParseFitnessReply(reply string) (float64, error) {
	lit := firstNumber.FindString(reply)
	if lit == "" {
		return 0, fmt.Errorf("no number in reply %q", truncate(reply, 80))
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(lit, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("reply %q: %w", truncate(reply, 80), err)
	}
	switch {
	case v < 0:
		v = 0
	case v > 100:
		v = 100
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
