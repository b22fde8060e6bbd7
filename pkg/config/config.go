package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// EventStoreConfig selects and configures the event log backend.
type EventStoreConfig struct {
	// Backend is "memory" or "sql".
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty" mapstructure:"backend"`

	// Driver is "sqlite", "postgres" or "mysql" when backend is sql.
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty" mapstructure:"driver"`

	// DSN is the driver connection string.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty" mapstructure:"dsn"`

	// MaxConns and MaxIdle size the connection pool.
	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" mapstructure:"max_conns"`
	MaxIdle  int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" mapstructure:"max_idle"`
}

// SetDefaults sets default values for EventStoreConfig.
func (c *EventStoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Backend == "sql" {
		if c.Driver == "" {
			c.Driver = "sqlite"
		}
		if c.Driver == "sqlite" && c.DSN == "" {
			c.DSN = ".maestro/events.db"
		}
		if c.MaxConns == 0 {
			c.MaxConns = 10
		}
		if c.MaxIdle == 0 {
			c.MaxIdle = 2
		}
	}
}

// Validate validates the EventStoreConfig.
func (c *EventStoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sql":
	default:
		return fmt.Errorf("unsupported event store backend: %s (supported: memory, sql)", c.Backend)
	}
	switch c.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported driver: %s (supported: sqlite, postgres, mysql)", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required for sql backend")
	}
	return nil
}

// Config is the root configuration for the maestro core.
type Config struct {
	Routing    RoutingConfig     `yaml:"routing,omitempty" json:"routing,omitempty" mapstructure:"routing"`
	Tiers      TierCatalogConfig `yaml:"tier_catalog,omitempty" json:"tier_catalog,omitempty" mapstructure:"tier_catalog"`
	Pool       PoolConfig        `yaml:"pool,omitempty" json:"pool,omitempty" mapstructure:"pool"`
	Security   SecurityConfig    `yaml:"security,omitempty" json:"security,omitempty" mapstructure:"security"`
	Checkpoint CheckpointConfig  `yaml:"checkpoint,omitempty" json:"checkpoint,omitempty" mapstructure:"checkpoint"`
	Context    ContextConfig     `yaml:"context,omitempty" json:"context,omitempty" mapstructure:"context"`
	Atomicity  AtomicityConfig   `yaml:"atomicity,omitempty" json:"atomicity,omitempty" mapstructure:"atomicity"`
	Events     EventStoreConfig  `yaml:"events,omitempty" json:"events,omitempty" mapstructure:"events"`
	Tools      ToolsConfig       `yaml:"tools,omitempty" json:"tools,omitempty" mapstructure:"tools"`

	// Providers maps a provider name, as referenced by tier catalog model
	// entries, to its endpoint configuration.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty" mapstructure:"providers"`
}

// SetDefaults sets default values on every section.
func (c *Config) SetDefaults() {
	c.Routing.SetDefaults()
	c.Tiers.SetDefaults()
	c.Pool.SetDefaults()
	c.Security.SetDefaults()
	c.Checkpoint.SetDefaults()
	c.Context.SetDefaults()
	c.Atomicity.SetDefaults()
	c.Events.SetDefaults()
	c.Tools.SetDefaults()
	for name, p := range c.Providers {
		p.SetDefaults()
		c.Providers[name] = p
	}
}

// Validate validates every section and returns the first failure.
func (c *Config) Validate() error {
	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if errs := c.Tiers.Validate(); len(errs) > 0 {
		return fmt.Errorf("tier_catalog: %v", errs[0])
	}
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("security: %w", err)
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := c.Context.Validate(); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	if err := c.Atomicity.Validate(); err != nil {
		return fmt.Errorf("atomicity: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	for name, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}
	return nil
}

// Decode builds a Config from a free-form map, rejecting unknown keys.
func Decode(raw map[string]any) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted Config.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}
