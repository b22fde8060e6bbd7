package config

import "fmt"

// AuthMethod selects how tool-call clients authenticate.
type AuthMethod string

const (
	AuthNone        AuthMethod = "none"
	AuthAPIKey      AuthMethod = "api_key"
	AuthBearerToken AuthMethod = "bearer_token"
	AuthJWT         AuthMethod = "jwt"
)

// ToolPermission declares what a tool call requires from the caller.
type ToolPermission struct {
	// Permissions required to invoke the tool.
	Permissions []string `yaml:"permissions,omitempty" json:"permissions,omitempty" mapstructure:"permissions"`

	// Roles of which the caller must hold at least one.
	Roles []string `yaml:"roles,omitempty" json:"roles,omitempty" mapstructure:"roles"`
}

// SecurityConfig guards every tool invocation.
type SecurityConfig struct {
	// AuthMethod is one of none, api_key, bearer_token, jwt.
	AuthMethod AuthMethod `yaml:"auth_method,omitempty" json:"auth_method,omitempty" mapstructure:"auth_method"`

	// SharedSecret signs bearer tokens (HMAC-SHA256).
	SharedSecret string `yaml:"shared_secret,omitempty" json:"shared_secret,omitempty" mapstructure:"shared_secret"`

	// APIKeyHashes are SHA-256 hex digests of accepted API keys, keyed by
	// client id. Raw keys are never stored.
	APIKeyHashes map[string]string `yaml:"api_key_hashes,omitempty" json:"api_key_hashes,omitempty" mapstructure:"api_key_hashes"`

	// JWKSURL is the key-set endpoint for jwt auth.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty" mapstructure:"jwks_url"`

	// Issuer and Audience restrict accepted JWTs.
	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty" mapstructure:"issuer"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty" mapstructure:"audience"`

	// RequestsPerMinute refills each client bucket at rpm/60 tokens/sec.
	RequestsPerMinute float64 `yaml:"requests_per_minute,omitempty" json:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`

	// BurstSize is the bucket capacity.
	BurstSize int `yaml:"burst_size,omitempty" json:"burst_size,omitempty" mapstructure:"burst_size"`

	// ToolPermissions maps tool name to its requirements.
	ToolPermissions map[string]ToolPermission `yaml:"tool_permissions,omitempty" json:"tool_permissions,omitempty" mapstructure:"tool_permissions"`

	// DeniedSubstrings extends the built-in input deny list.
	DeniedSubstrings []string `yaml:"denied_substrings,omitempty" json:"denied_substrings,omitempty" mapstructure:"denied_substrings"`
}

// SetDefaults sets default values for SecurityConfig.
func (c *SecurityConfig) SetDefaults() {
	if c.AuthMethod == "" {
		c.AuthMethod = AuthNone
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 120
	}
	if c.BurstSize == 0 {
		c.BurstSize = 20
	}
}

// Validate validates the SecurityConfig.
func (c *SecurityConfig) Validate() error {
	switch c.AuthMethod {
	case AuthNone:
	case AuthAPIKey:
		if len(c.APIKeyHashes) == 0 {
			return fmt.Errorf("auth_method api_key requires api_key_hashes")
		}
	case AuthBearerToken:
		if c.SharedSecret == "" {
			return fmt.Errorf("auth_method bearer_token requires shared_secret")
		}
	case AuthJWT:
		if c.JWKSURL == "" {
			return fmt.Errorf("auth_method jwt requires jwks_url")
		}
	default:
		return fmt.Errorf("unsupported auth_method: %s", c.AuthMethod)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be > 0, got %f", c.RequestsPerMinute)
	}
	if c.BurstSize < 1 {
		return fmt.Errorf("burst_size must be >= 1, got %d", c.BurstSize)
	}
	return nil
}
