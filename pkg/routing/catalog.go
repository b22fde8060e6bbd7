package routing

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Catalog maps tiers to candidate models. Selection within a tier is uniform
// random; with a single candidate the choice is deterministic.
type Catalog struct {
	cfg *config.TierCatalogConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewCatalog builds a catalog from config. The configuration is validated up
// front; a broken catalog is rejected with the full error list.
func NewCatalog(cfg *config.TierCatalogConfig) (*Catalog, error) {
	if cfg == nil {
		cfg = &config.TierCatalogConfig{}
	}
	cfg.SetDefaults()
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, retry.Wrap(retry.KindConfig, "invalid tier catalog", errors.Join(errs...))
	}
	return &Catalog{
		cfg: cfg,
		rng: rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

// NewCatalogSeeded is NewCatalog with a fixed random source, for tests.
func NewCatalogSeeded(cfg *config.TierCatalogConfig, seed int64) (*Catalog, error) {
	c, err := NewCatalog(cfg)
	if err != nil {
		return nil, err
	}
	c.rng = rand.New(rand.NewSource(seed))
	return c, nil
}

// TierConfig returns the catalog entry for a tier.
func (c *Catalog) TierConfig(tier Tier) (config.TierEntry, error) {
	entry, ok := c.cfg.Tiers[tier.String()]
	if !ok {
		return config.TierEntry{}, retry.Newf(retry.KindConfig, "tier %s is not in the catalog", tier)
	}
	if len(entry.Models) == 0 {
		return config.TierEntry{}, retry.Newf(retry.KindConfig, "tier %s has no models", tier)
	}
	if entry.CostFactor != tier.CostMultiplier() {
		return config.TierEntry{}, retry.Newf(retry.KindConfig,
			"tier %s declares cost factor %d, canonical is %d", tier, entry.CostFactor, tier.CostMultiplier())
	}
	return entry, nil
}

// ModelForTier picks one candidate model, uniformly at random when the tier
// lists more than one.
func (c *Catalog) ModelForTier(tier Tier) (config.ModelRef, error) {
	entry, err := c.TierConfig(tier)
	if err != nil {
		return config.ModelRef{}, err
	}
	if len(entry.Models) == 1 {
		return entry.Models[0], nil
	}

	c.mu.Lock()
	idx := c.rng.Intn(len(entry.Models))
	c.mu.Unlock()
	return entry.Models[idx], nil
}

// ValidateConfiguration re-checks the catalog, returning every problem.
func (c *Catalog) ValidateConfiguration() []error {
	return c.cfg.Validate()
}
