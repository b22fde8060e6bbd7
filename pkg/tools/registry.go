package tools

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/maestro/pkg/observability"
	"github.com/kadirpekel/maestro/pkg/registry"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// DefaultCallTimeout bounds a tool call when the caller gives none.
const DefaultCallTimeout = 30 * time.Second

// Source supplies discoverable tools. MCPServer is the production
// implementation.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]Tool, error)
	Close() error
}

// Registry merges built-in and discovered tools. The active tool set is
// swapped atomically on each discovery, so callers never observe a
// partially merged view.
type Registry struct {
	active   *registry.BaseRegistry[Tool]
	builtins []Tool
	sources  []Source
	policy   retry.Policy
	tracer   trace.Tracer
}

// NewRegistry creates a registry over the given built-ins and sources.
func NewRegistry(builtins []Tool, sources ...Source) *Registry {
	r := &Registry{
		active:   registry.NewBaseRegistry[Tool](),
		builtins: builtins,
		sources:  sources,
		policy:   retry.DefaultPolicy(),
		tracer:   observability.GetTracer("maestro/tools"),
	}
	for _, t := range builtins {
		_ = r.active.Register(t.Name(), t)
	}
	return r
}

// Discover lists tools from every source, resolves conflicts, and installs
// the merged set. Built-ins always shadow discovered tools; between servers
// the first-seen name wins.
func (r *Registry) Discover(ctx context.Context) ([]Definition, []Conflict, error) {
	builtinNames := make(map[string]bool, len(r.builtins))
	merged := make(map[string]Tool, len(r.builtins))
	order := make([]string, 0, len(r.builtins))

	for _, t := range r.builtins {
		builtinNames[t.Name()] = true
		merged[t.Name()] = t
		order = append(order, t.Name())
	}

	var conflicts []Conflict
	for _, source := range r.sources {
		discovered, err := source.Discover(ctx)
		if err != nil {
			slog.Warn("MCP discovery failed, skipping server",
				"server", source.Name(),
				"error", err)
			continue
		}

		for _, t := range discovered {
			name := t.Name()
			if builtinNames[name] {
				conflicts = append(conflicts, Conflict{
					Name:       name,
					Source:     source.Name(),
					ShadowedBy: "built-in",
					Resolution: "skipped",
				})
				continue
			}
			if existing, ok := merged[name]; ok {
				conflicts = append(conflicts, Conflict{
					Name:       name,
					Source:     source.Name(),
					ShadowedBy: existing.ServerName(),
					Resolution: "first server wins",
				})
				continue
			}
			merged[name] = t
			order = append(order, name)
		}
	}

	r.active.ReplaceAll(merged)

	defs := make([]Definition, 0, len(order))
	for _, name := range order {
		defs = append(defs, Describe(merged[name]))
	}

	slog.Info("Tool discovery complete",
		"tools", len(defs),
		"conflicts", len(conflicts))
	return defs, conflicts, nil
}

// Definitions returns the active tool set.
func (r *Registry) Definitions() []Definition {
	tools := r.active.List()
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Describe(t))
	}
	return defs
}

// Call executes a tool by name with retry and a per-call timeout.
// An unknown tool is a non-retriable not-found error.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*Result, error) {
	tool, ok := r.active.Get(name)
	if !ok {
		return nil, retry.Newf(retry.KindNotFound, "tool not found: %s", name)
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	ctx, span := r.tracer.Start(ctx, "tools.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.server", tool.ServerName()),
	)

	start := time.Now()
	var result *Result
	err := r.policy.Do(ctx, "tool "+name, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var callErr error
		result, callErr = tool.Call(callCtx, args)
		return callErr
	})

	observability.GetGlobalMetrics().RecordToolCall(ctx, name, time.Since(start), err)
	if err != nil {
		if retry.KindOf(err) != "" {
			return nil, err
		}
		return nil, retry.Wrap(retry.KindTool, "tool call failed: "+name, err)
	}
	return result, nil
}

// Close shuts down every source.
func (r *Registry) Close() error {
	var firstErr error
	for _, s := range r.sources {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
