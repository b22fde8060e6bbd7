package config

import "fmt"

// CheckpointConfig controls the hash-verified snapshot store.
type CheckpointConfig struct {
	// Dir is where checkpoint files live.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" mapstructure:"dir"`

	// MaxRollbackDepth is the number of rotated rollback files kept beside
	// the canonical file.
	MaxRollbackDepth int `yaml:"max_rollback_depth,omitempty" json:"max_rollback_depth,omitempty" mapstructure:"max_rollback_depth"`
}

// SetDefaults sets default values for CheckpointConfig.
func (c *CheckpointConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = ".maestro/checkpoints"
	}
	if c.MaxRollbackDepth == 0 {
		c.MaxRollbackDepth = 3
	}
}

// Validate validates the CheckpointConfig.
func (c *CheckpointConfig) Validate() error {
	if c.MaxRollbackDepth < 1 {
		return fmt.Errorf("max_rollback_depth must be >= 1, got %d", c.MaxRollbackDepth)
	}
	return nil
}

// ContextConfig bounds the workflow context handed to workers.
type ContextConfig struct {
	// MaxTokens triggers compression when the workflow context exceeds it.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// MaxAgeHours triggers compression when the context is older than this.
	MaxAgeHours int `yaml:"max_age_hours,omitempty" json:"max_age_hours,omitempty" mapstructure:"max_age_hours"`

	// RecentHistoryCount is how many trailing history items a worker sees.
	RecentHistoryCount int `yaml:"recent_history_count,omitempty" json:"recent_history_count,omitempty" mapstructure:"recent_history_count"`
}

// SetDefaults sets default values for ContextConfig.
func (c *ContextConfig) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 100_000
	}
	if c.MaxAgeHours == 0 {
		c.MaxAgeHours = 6
	}
	if c.RecentHistoryCount == 0 {
		c.RecentHistoryCount = 3
	}
}

// Validate validates the ContextConfig.
func (c *ContextConfig) Validate() error {
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be >= 1, got %d", c.MaxTokens)
	}
	if c.RecentHistoryCount < 0 {
		return fmt.Errorf("recent_history_count must be >= 0, got %d", c.RecentHistoryCount)
	}
	return nil
}

// AtomicityConfig are the criteria under which an acceptance criterion counts
// as atomic.
type AtomicityConfig struct {
	// MaxComplexity in [0,1].
	MaxComplexity float64 `yaml:"max_complexity,omitempty" json:"max_complexity,omitempty" mapstructure:"max_complexity"`

	// MaxToolCount an atomic criterion may reference.
	MaxToolCount int `yaml:"max_tool_count,omitempty" json:"max_tool_count,omitempty" mapstructure:"max_tool_count"`

	// MaxDurationSeconds an atomic criterion may take.
	MaxDurationSeconds int `yaml:"max_duration_seconds,omitempty" json:"max_duration_seconds,omitempty" mapstructure:"max_duration_seconds"`
}

// SetDefaults sets default values for AtomicityConfig.
func (c *AtomicityConfig) SetDefaults() {
	if c.MaxComplexity == 0 {
		c.MaxComplexity = 0.5
	}
	if c.MaxToolCount == 0 {
		c.MaxToolCount = 3
	}
	if c.MaxDurationSeconds == 0 {
		c.MaxDurationSeconds = 300
	}
}

// Validate validates the AtomicityConfig.
func (c *AtomicityConfig) Validate() error {
	if c.MaxComplexity < 0 || c.MaxComplexity > 1 {
		return fmt.Errorf("max_complexity must be in [0,1], got %f", c.MaxComplexity)
	}
	if c.MaxToolCount < 1 {
		return fmt.Errorf("max_tool_count must be >= 1, got %d", c.MaxToolCount)
	}
	if c.MaxDurationSeconds < 1 {
		return fmt.Errorf("max_duration_seconds must be >= 1, got %d", c.MaxDurationSeconds)
	}
	return nil
}
