package config

import "fmt"

// RoutingConfig controls tier selection, escalation and pattern learning.
type RoutingConfig struct {
	// EscalationAfterFailures is the trailing-failure run that forces the
	// next tier on the ladder.
	EscalationAfterFailures int `yaml:"escalation_after_failures,omitempty" json:"escalation_after_failures,omitempty" mapstructure:"escalation_after_failures"`

	// DowngradeThreshold is the consecutive-success count that recommends
	// the next-lower tier.
	DowngradeThreshold int `yaml:"downgrade_threshold,omitempty" json:"downgrade_threshold,omitempty" mapstructure:"downgrade_threshold"`

	// SimilarityThreshold is the Jaccard similarity above which a new task
	// inherits the tier of an already-learned pattern.
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty" json:"similarity_threshold,omitempty" mapstructure:"similarity_threshold"`

	// MaxHistoryPerHash bounds routing records kept per fingerprint.
	MaxHistoryPerHash int `yaml:"max_history_per_hash,omitempty" json:"max_history_per_hash,omitempty" mapstructure:"max_history_per_hash"`

	// MaxTotalHistory bounds routing records across all fingerprints.
	// Oldest fingerprints are evicted first.
	MaxTotalHistory int `yaml:"max_total_history,omitempty" json:"max_total_history,omitempty" mapstructure:"max_total_history"`

	// CostOptimization biases the initial choice one tier down for the two
	// lower tiers when no history exists.
	CostOptimization *bool `yaml:"cost_optimization,omitempty" json:"cost_optimization,omitempty" mapstructure:"cost_optimization"`
}

// SetDefaults sets default values for RoutingConfig.
func (c *RoutingConfig) SetDefaults() {
	if c.EscalationAfterFailures == 0 {
		c.EscalationAfterFailures = 2
	}
	if c.DowngradeThreshold == 0 {
		c.DowngradeThreshold = 5
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.80
	}
	if c.MaxHistoryPerHash == 0 {
		c.MaxHistoryPerHash = 50
	}
	if c.MaxTotalHistory == 0 {
		c.MaxTotalHistory = 10_000
	}
	if c.CostOptimization == nil {
		c.CostOptimization = BoolPtr(false)
	}
}

// Validate validates the RoutingConfig.
func (c *RoutingConfig) Validate() error {
	if c.EscalationAfterFailures < 1 {
		return fmt.Errorf("escalation_after_failures must be >= 1, got %d", c.EscalationAfterFailures)
	}
	if c.DowngradeThreshold < 1 {
		return fmt.Errorf("downgrade_threshold must be >= 1, got %d", c.DowngradeThreshold)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %f", c.SimilarityThreshold)
	}
	if c.MaxHistoryPerHash < 1 {
		return fmt.Errorf("max_history_per_hash must be >= 1, got %d", c.MaxHistoryPerHash)
	}
	if c.MaxTotalHistory < c.MaxHistoryPerHash {
		return fmt.Errorf("max_total_history (%d) must be >= max_history_per_hash (%d)",
			c.MaxTotalHistory, c.MaxHistoryPerHash)
	}
	return nil
}
