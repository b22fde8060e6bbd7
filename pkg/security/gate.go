package security

import (
	"context"
	"log/slog"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Request is one guarded tool invocation.
type Request struct {
	Credential string
	Tool       string
	Arguments  map[string]any
}

// Gate runs the full security sequence for each request:
// authenticate, rate-limit, authorize, validate.
type Gate struct {
	cfg       *config.SecurityConfig
	auth      authenticator
	limiter   *rateLimiter
	validator *InputValidator
}

// NewGate builds a gate from config.
func NewGate(cfg *config.SecurityConfig) (*Gate, error) {
	if cfg == nil {
		cfg = &config.SecurityConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, retry.Wrap(retry.KindConfig, "invalid security config", err)
	}

	auth, err := newAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	return &Gate{
		cfg:       cfg,
		auth:      auth,
		limiter:   newRateLimiter(cfg.RequestsPerMinute, cfg.BurstSize),
		validator: NewInputValidator(cfg.DeniedSubstrings),
	}, nil
}

// RegisterToolValidator installs a per-tool argument validator.
func (g *Gate) RegisterToolValidator(tool string, fn func(args map[string]any) error) {
	g.validator.RegisterToolValidator(tool, fn)
}

// Authorize runs the sequence up to input validation and returns the
// authenticated principal. Any step short-circuits with a typed error.
func (g *Gate) Authorize(ctx context.Context, req Request) (*Principal, error) {
	principal, err := g.auth.Authenticate(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	if !g.limiter.Allow(principal.ClientID) {
		slog.Warn("Tool call rate limited",
			"client_id", principal.ClientID,
			"tool", req.Tool)
		return nil, retry.Newf(retry.KindAuth, "rate limit exceeded for client %s", principal.ClientID)
	}

	if err := g.checkPermissions(principal, req.Tool); err != nil {
		return nil, err
	}

	if err := g.validator.Validate(req.Tool, req.Arguments); err != nil {
		return nil, err
	}

	return principal, nil
}

func (g *Gate) checkPermissions(p *Principal, tool string) error {
	required, ok := g.cfg.ToolPermissions[tool]
	if !ok {
		return nil
	}

	for _, perm := range required.Permissions {
		if !contains(p.Permissions, perm) {
			return retry.Newf(retry.KindAuth, "client %s lacks permission %s for tool %s",
				p.ClientID, perm, tool)
		}
	}

	if len(required.Roles) > 0 {
		ok := false
		for _, role := range required.Roles {
			if contains(p.Roles, role) {
				ok = true
				break
			}
		}
		if !ok {
			return retry.Newf(retry.KindAuth, "client %s holds none of the roles required for tool %s",
				p.ClientID, tool)
		}
	}
	return nil
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
