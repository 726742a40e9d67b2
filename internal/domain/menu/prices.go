package menu

import (
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
)

type Tier string

const (
	TierStudent     Tier = "student"
	TierStaff       Tier = "staff"
	TierGuest       Tier = "guest"
	TierStudentCard Tier = "student_card"
	TierStaffCard   Tier = "staff_card"
	TierGuestCard   Tier = "guest_card"
)

var knownTiers = map[Tier]bool{
	TierStudent: true, TierStaff: true, TierGuest: true,
	TierStudentCard: true, TierStaffCard: true, TierGuestCard: true,
}

func ParseTier(s string) (Tier, bool) {
	t := Tier(s)
	return t, knownTiers[t]
}

// PriceTiers maps a tier to its amount in cents.
type PriceTiers map[Tier]int64

// Reference is the price used for value scores: the student tier when the
// venue publishes one, otherwise the cheapest tier present.
func (p PriceTiers) Reference() (int64, bool) {
	if len(p) == 0 {
		return 0, false
	}
	if c, ok := p[TierStudent]; ok {
		return c, true
	}
	keys := p.sortedTiers()
	low := p[keys[0]]
	for _, k := range keys[1:] {
		if p[k] < low {
			low = p[k]
		}
	}
	return low, true
}

func (p PriceTiers) Equal(o PriceTiers) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (p PriceTiers) sortedTiers() []Tier {
	out := make([]Tier, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Units converts cents to currency units.
func Units(cents int64) float64 { return float64(cents) / 100 }

func (m *Meal) PriceTiers() PriceTiers {
	out := PriceTiers{}
	if m == nil || len(m.Prices) == 0 {
		return out
	}
	_ = json.Unmarshal(m.Prices, &out)
	return out
}

func (m *Meal) SetPriceTiers(p PriceTiers) {
	if p == nil {
		p = PriceTiers{}
	}
	b, _ := json.Marshal(p)
	m.Prices = datatypes.JSON(b)
}
