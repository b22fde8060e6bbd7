package config

import "fmt"

// ProviderConfig describes one LLM provider endpoint. All providers speak
// the OpenAI-compatible chat-completions wire format.
type ProviderConfig struct {
	// APIKey authenticates against the endpoint. ${VAR} references are
	// expanded from the environment when the config file is loaded.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the endpoint, for compatible servers.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty" mapstructure:"base_url"`

	// TimeoutSeconds bounds a single completion call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
}

// SetDefaults sets default values for ProviderConfig.
func (c *ProviderConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
}

// Validate validates the ProviderConfig.
func (c *ProviderConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.TimeoutSeconds < 1 {
		return fmt.Errorf("timeout_seconds must be >= 1, got %d", c.TimeoutSeconds)
	}
	return nil
}

// MCPToolServerConfig describes one MCP tool server connection.
type MCPToolServerConfig struct {
	Name      string            `yaml:"name" json:"name" mapstructure:"name"`
	Transport string            `yaml:"transport,omitempty" json:"transport,omitempty" mapstructure:"transport"`
	Command   string            `yaml:"command,omitempty" json:"command,omitempty" mapstructure:"command"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty" mapstructure:"args"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty" mapstructure:"env"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url"`
	Prefix    string            `yaml:"prefix,omitempty" json:"prefix,omitempty" mapstructure:"prefix"`
}

// Validate validates the MCPToolServerConfig.
func (c *MCPToolServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp server name is required")
	}
	if c.Command == "" && c.URL == "" {
		return fmt.Errorf("mcp server %s needs a command or url", c.Name)
	}
	return nil
}

// ToolsConfig configures the worker tool surface.
type ToolsConfig struct {
	// Workdir roots the built-in file and command tools. Empty disables
	// the built-ins.
	Workdir string `yaml:"workdir,omitempty" json:"workdir,omitempty" mapstructure:"workdir"`

	// MCPServers are external tool servers merged into the registry.
	MCPServers []MCPToolServerConfig `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty" mapstructure:"mcp_servers"`
}

// SetDefaults sets default values for ToolsConfig.
func (c *ToolsConfig) SetDefaults() {}

// Validate validates the ToolsConfig.
func (c *ToolsConfig) Validate() error {
	for i := range c.MCPServers {
		if err := c.MCPServers[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
