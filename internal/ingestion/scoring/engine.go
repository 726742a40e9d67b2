package scoring

import (
	"fmt"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
)

// Engine computes the value scores. It holds no mutable state.
type Engine struct {
	rules *RuleTable
}

func NewEngine(rules *RuleTable) *Engine {
	return &Engine{rules: rules}
}

type Scores struct {
	Primary   *float64
	Secondary *float64
	Rule      *Rule
}

// Score returns kcal per currency unit and the rule-adjusted protein per
// currency unit at the reference price. Negative inputs are a scoring
// error and yield no scores.
func (e *Engine) Score(m *menu.Meal) (Scores, error) {
	if m == nil {
		return Scores{}, ingesterr.Scoring("score", fmt.Errorf("nil meal"))
	}
	prices := m.PriceTiers()
	for tier, c := range prices {
		if c < 0 {
			return Scores{}, ingesterr.Scoring("score", fmt.Errorf("negative %s price %d for %q", tier, c, m.Description))
		}
	}
	if m.EnergyKcal != nil && *m.EnergyKcal < 0 {
		return Scores{}, ingesterr.Scoring("score", fmt.Errorf("negative energy for %q", m.Description))
	}
	if m.ProteinG != nil && *m.ProteinG < 0 {
		return Scores{}, ingesterr.Scoring("score", fmt.Errorf("negative protein for %q", m.Description))
	}

	cents, ok := prices.Reference()
	if !ok || cents <= 0 {
		return Scores{}, nil
	}
	price := menu.Units(cents)

	var out Scores
	if m.EnergyKcal != nil {
		v := *m.EnergyKcal / price
		out.Primary = &v
	}
	if m.ProteinG != nil {
		v := *m.ProteinG / price
		if r, ok := e.rules.Match(m.Description); ok {
			v = r.apply(v)
			out.Rule = &r
		}
		out.Secondary = &v
	}
	return out, nil
}

// Apply stores fresh primary and secondary scores on m. On error both are
// cleared and the error is returned for the caller to log.
func (e *Engine) Apply(m *menu.Meal, now time.Time) error {
	s, err := e.Score(m)
	m.PrimaryScore, m.SecondaryScore = s.Primary, s.Secondary
	if err != nil {
		return err
	}
	t := now.UTC().Truncate(time.Microsecond)
	m.ScoredAt = &t
	return nil
}
