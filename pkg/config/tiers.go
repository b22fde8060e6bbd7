package config

import "fmt"

// Canonical cost multipliers per tier. A catalog entry whose declared cost
// factor disagrees with these is rejected.
const (
	CostFactorFrugal   = 1
	CostFactorStandard = 10
	CostFactorFrontier = 30
)

// ModelRef identifies one candidate model within a tier.
type ModelRef struct {
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" json:"model" mapstructure:"model"`
}

// TierEntry is the catalog entry for a single tier.
type TierEntry struct {
	// CostFactor must match the tier's canonical multiplier.
	CostFactor int `yaml:"cost_factor" json:"cost_factor" mapstructure:"cost_factor"`

	// Models are the candidate models; selection is uniform random.
	Models []ModelRef `yaml:"models" json:"models" mapstructure:"models"`

	// UseCases are free-form labels describing what the tier is for.
	UseCases []string `yaml:"use_cases,omitempty" json:"use_cases,omitempty" mapstructure:"use_cases"`
}

// TierCatalogConfig maps tier names to entries.
// Keys are "frugal", "standard", "frontier".
type TierCatalogConfig struct {
	Tiers map[string]TierEntry `yaml:"tiers" json:"tiers" mapstructure:"tiers"`
}

var tierNames = []string{"frugal", "standard", "frontier"}

func canonicalCostFactor(tier string) int {
	switch tier {
	case "frugal":
		return CostFactorFrugal
	case "standard":
		return CostFactorStandard
	case "frontier":
		return CostFactorFrontier
	}
	return 0
}

// SetDefaults fills an empty catalog with a single-model placeholder per
// tier so a zero-config run is routable.
func (c *TierCatalogConfig) SetDefaults() {
	if len(c.Tiers) > 0 {
		return
	}
	c.Tiers = map[string]TierEntry{
		"frugal": {
			CostFactor: CostFactorFrugal,
			Models:     []ModelRef{{Provider: "openai", Model: "gpt-4o-mini"}},
			UseCases:   []string{"trivial edits", "formatting", "lookups"},
		},
		"standard": {
			CostFactor: CostFactorStandard,
			Models:     []ModelRef{{Provider: "anthropic", Model: "claude-sonnet-4-5"}},
			UseCases:   []string{"implementation", "refactoring"},
		},
		"frontier": {
			CostFactor: CostFactorFrontier,
			Models:     []ModelRef{{Provider: "anthropic", Model: "claude-opus-4-1"}},
			UseCases:   []string{"architecture", "deep debugging"},
		},
	}
}

// Validate collects every catalog inconsistency rather than stopping at the
// first, so operators can fix a config in one pass.
func (c *TierCatalogConfig) Validate() []error {
	var errs []error
	for _, name := range tierNames {
		entry, ok := c.Tiers[name]
		if !ok {
			errs = append(errs, fmt.Errorf("tier %q is missing from catalog", name))
			continue
		}
		if len(entry.Models) == 0 {
			errs = append(errs, fmt.Errorf("tier %q has no models", name))
		}
		if want := canonicalCostFactor(name); entry.CostFactor != want {
			errs = append(errs, fmt.Errorf("tier %q declares cost factor %d, canonical is %d",
				name, entry.CostFactor, want))
		}
		for i, m := range entry.Models {
			if m.Provider == "" || m.Model == "" {
				errs = append(errs, fmt.Errorf("tier %q model %d is missing provider or model", name, i))
			}
		}
	}
	return errs
}
