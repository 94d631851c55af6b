package budget

import (
	"fmt"
	"sort"
)

const (
	MinLowBudget     = 10_000
	DefaultLowBudget = 20_000
)

// Tier is one model option. HighBudget is the token pool reserved for HIGH
// priority documents; the rest of the context window bounds the LOW pool.
type Tier struct {
	Name          string `yaml:"name" json:"name"`
	Model         string `yaml:"model" json:"model"`
	ContextWindow int    `yaml:"context_window" json:"context_window"`
	HighBudget    int    `yaml:"high_budget" json:"high_budget"`
}

func (t Tier) LowCap() int { return t.ContextWindow - t.HighBudget }

type Tiers []Tier

func DefaultTiers() Tiers {
	return Tiers{
		{Name: "standard", Model: "gpt-4.1-mini", ContextWindow: 128_000, HighBudget: 80_000},
		{Name: "extended", Model: "gpt-4.1", ContextWindow: 1_000_000, HighBudget: 400_000},
	}
}

// Validate sorts by context window and checks that HIGH budgets grow with it,
// which keeps tier selection monotonic in the HIGH total.
func (ts Tiers) Validate() (Tiers, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("budget: at least one tier is required")
	}
	out := make(Tiers, len(ts))
	copy(out, ts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ContextWindow < out[j].ContextWindow })

	seen := map[string]bool{}
	for i, t := range out {
		switch {
		case t.Name == "":
			return nil, fmt.Errorf("budget: tier %d has no name", i)
		case seen[t.Name]:
			return nil, fmt.Errorf("budget: duplicate tier %q", t.Name)
		case t.Model == "":
			return nil, fmt.Errorf("budget: tier %q has no model", t.Name)
		case t.HighBudget <= 0 || t.ContextWindow <= 0:
			return nil, fmt.Errorf("budget: tier %q needs positive window and budget", t.Name)
		case t.LowCap() < DefaultLowBudget:
			return nil, fmt.Errorf("budget: tier %q leaves %d tokens for LOW documents, need at least %d", t.Name, t.LowCap(), DefaultLowBudget)
		}
		if i > 0 {
			prev := out[i-1]
			if t.ContextWindow == prev.ContextWindow || t.HighBudget <= prev.HighBudget {
				return nil, fmt.Errorf("budget: tier %q must have a larger window and HIGH budget than %q", t.Name, prev.Name)
			}
		}
		seen[t.Name] = true
	}
	return out, nil
}

// Select returns the smallest tier whose HIGH budget holds totalHigh, or the
// largest tier when none does. ts must be validated.
func (ts Tiers) Select(totalHigh int) Tier {
	for _, t := range ts {
		if totalHigh <= t.HighBudget {
			return t
		}
	}
	return ts[len(ts)-1]
}

// LowBudget sizes the LOW pool: the floor for small sets, the default for
// medium ones, otherwise the actual total capped by the tier.
func LowBudget(totalLow int, tier Tier) int {
	switch {
	case totalLow <= MinLowBudget:
		return MinLowBudget
	case totalLow <= DefaultLowBudget:
		return DefaultLowBudget
	default:
		return min(totalLow, tier.LowCap())
	}
}
