package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/config"
)

func TestCatalogDefaults(t *testing.T) {
	c, err := NewCatalog(nil)
	require.NoError(t, err)
	assert.Empty(t, c.ValidateConfiguration())

	for _, tier := range []Tier{TierFrugal, TierStandard, TierFrontier} {
		entry, err := c.TierConfig(tier)
		require.NoError(t, err)
		assert.NotEmpty(t, entry.Models)
		assert.Equal(t, tier.CostMultiplier(), entry.CostFactor)
	}
}

func TestCatalogSingletonIsDeterministic(t *testing.T) {
	c, err := NewCatalog(nil)
	require.NoError(t, err)

	first, err := c.ModelForTier(TierStandard)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := c.ModelForTier(TierStandard)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestCatalogUniformSelection(t *testing.T) {
	cfg := &config.TierCatalogConfig{
		Tiers: map[string]config.TierEntry{
			"frugal": {
				CostFactor: config.CostFactorFrugal,
				Models: []config.ModelRef{
					{Provider: "openai", Model: "gpt-4o-mini"},
					{Provider: "anthropic", Model: "claude-haiku-4-5"},
				},
			},
			"standard": {
				CostFactor: config.CostFactorStandard,
				Models:     []config.ModelRef{{Provider: "anthropic", Model: "claude-sonnet-4-5"}},
			},
			"frontier": {
				CostFactor: config.CostFactorFrontier,
				Models:     []config.ModelRef{{Provider: "anthropic", Model: "claude-opus-4-1"}},
			},
		},
	}
	c, err := NewCatalogSeeded(cfg, 42)
	require.NoError(t, err)

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		m, err := c.ModelForTier(TierFrugal)
		require.NoError(t, err)
		seen[m.Model]++
	}
	assert.Len(t, seen, 2, "both candidates get selected")
	for model, n := range seen {
		assert.Greater(t, n, 50, "selection is roughly uniform for %s", model)
	}
}

func TestCatalogValidationCollectsAllErrors(t *testing.T) {
	cfg := &config.TierCatalogConfig{
		Tiers: map[string]config.TierEntry{
			"frugal": {
				CostFactor: 99, // wrong multiplier
				Models:     []config.ModelRef{{Provider: "openai", Model: "gpt-4o-mini"}},
			},
			"standard": {
				CostFactor: config.CostFactorStandard,
				Models:     nil, // empty
			},
			// frontier missing entirely
		},
	}

	errs := cfg.Validate()
	assert.Len(t, errs, 3)

	_, err := NewCatalog(cfg)
	assert.Error(t, err)
}
