package config

import (
	"fmt"
	"time"
)

// PoolConfig controls the agent pool.
type PoolConfig struct {
	// MinInstances is the number of workers kept alive even when idle.
	MinInstances int `yaml:"min_instances,omitempty" json:"min_instances,omitempty" mapstructure:"min_instances"`

	// MaxInstances bounds worker parallelism.
	MaxInstances int `yaml:"max_instances,omitempty" json:"max_instances,omitempty" mapstructure:"max_instances"`

	// IdleTimeout retires idle workers above MinInstances.
	IdleTimeout time.Duration `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitempty" mapstructure:"idle_timeout"`

	// HealthCheckInterval is how often worker liveness is probed.
	HealthCheckInterval time.Duration `yaml:"health_check_interval,omitempty" json:"health_check_interval,omitempty" mapstructure:"health_check_interval"`

	// AutoScale enables spawn-on-backlog scaling.
	AutoScale *bool `yaml:"auto_scale,omitempty" json:"auto_scale,omitempty" mapstructure:"auto_scale"`

	// ScaleFactor k: a new worker is spawned when pending >= k * active.
	ScaleFactor int `yaml:"scale_factor,omitempty" json:"scale_factor,omitempty" mapstructure:"scale_factor"`

	// TaskTimeout is the default per-task execution deadline.
	TaskTimeout time.Duration `yaml:"task_timeout,omitempty" json:"task_timeout,omitempty" mapstructure:"task_timeout"`
}

// SetDefaults sets default values for PoolConfig.
func (c *PoolConfig) SetDefaults() {
	if c.MinInstances == 0 {
		c.MinInstances = 1
	}
	if c.MaxInstances == 0 {
		c.MaxInstances = 4
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.AutoScale == nil {
		c.AutoScale = BoolPtr(true)
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = 2
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = 10 * time.Minute
	}
}

// Validate validates the PoolConfig.
func (c *PoolConfig) Validate() error {
	if c.MinInstances < 0 {
		return fmt.Errorf("min_instances must be >= 0, got %d", c.MinInstances)
	}
	if c.MaxInstances < 1 {
		return fmt.Errorf("max_instances must be >= 1, got %d", c.MaxInstances)
	}
	if c.MinInstances > c.MaxInstances {
		return fmt.Errorf("min_instances (%d) must be <= max_instances (%d)",
			c.MinInstances, c.MaxInstances)
	}
	if c.ScaleFactor < 1 {
		return fmt.Errorf("scale_factor must be >= 1, got %d", c.ScaleFactor)
	}
	return nil
}
