package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/maestro/pkg/retry"
)

const mcpProtocolVersion = "2024-11-05"

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name" mapstructure:"name"`
	Transport string            `yaml:"transport,omitempty" json:"transport,omitempty" mapstructure:"transport"` // "stdio" or "sse"
	Command   string            `yaml:"command,omitempty" json:"command,omitempty" mapstructure:"command"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty" mapstructure:"args"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty" mapstructure:"env"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty" mapstructure:"url"`

	// Prefix, when set, namespaces discovered tool names as "<prefix>_<name>".
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty" mapstructure:"prefix"`
}

// MCPServer is a connected MCP tool server. Connection is lazy: the client
// is established on first discovery.
type MCPServer struct {
	cfg MCPServerConfig

	mu        sync.Mutex
	client    *client.Client
	connected bool
}

// NewMCPServer creates an unconnected server handle.
func NewMCPServer(cfg MCPServerConfig) (*MCPServer, error) {
	if cfg.Name == "" {
		return nil, retry.New(retry.KindConfig, "mcp server name is required")
	}
	if cfg.Command == "" && cfg.URL == "" {
		return nil, retry.New(retry.KindConfig, "mcp server needs a command or url")
	}
	return &MCPServer{cfg: cfg}, nil
}

// Name returns the configured server name.
func (s *MCPServer) Name() string {
	return s.cfg.Name
}

func (s *MCPServer) connectLocked(ctx context.Context) error {
	if s.connected {
		return nil
	}

	var (
		c   *client.Client
		err error
	)
	if s.cfg.Command != "" || s.cfg.Transport == "stdio" {
		c, err = client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	} else {
		c, err = client.NewSSEMCPClient(s.cfg.URL)
	}
	if err != nil {
		return retry.Wrap(retry.KindConnection, "failed to create mcp client", err)
	}

	if err := c.Start(ctx); err != nil {
		return retry.Wrap(retry.KindConnection, "failed to start mcp client", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "maestro", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = mcpProtocolVersion

	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return retry.Wrap(retry.KindConnection, "failed to initialize mcp session", err)
	}

	s.client = c
	s.connected = true
	return nil
}

// Discover connects if needed and lists the server's tools. Returned tools
// carry the configured prefix.
func (s *MCPServer) Discover(ctx context.Context) ([]Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, retry.Wrap(retry.KindConnection, "failed to list mcp tools", err)
	}

	tools := make([]Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		name := t.Name
		if s.cfg.Prefix != "" {
			name = s.cfg.Prefix + "_" + t.Name
		}
		tools = append(tools, &mcpTool{
			server:     s,
			name:       name,
			remoteName: t.Name,
			desc:       t.Description,
			schema:     convertSchema(t.InputSchema),
		})
	}

	slog.Info("Discovered MCP tools",
		"server", s.cfg.Name,
		"count", len(tools))
	return tools, nil
}

// call invokes the named tool on this server.
func (s *MCPServer) call(ctx context.Context, remoteName string, args map[string]any) (*Result, error) {
	s.mu.Lock()
	c := s.client
	connected := s.connected
	s.mu.Unlock()

	if !connected || c == nil {
		return nil, retry.New(retry.KindConnection, "mcp server is not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = remoteName
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, retry.Wrap(retry.KindConnection, "mcp tool call failed", err)
	}
	return parseCallResult(resp), nil
}

// Close tears down the connection.
func (s *MCPServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		s.connected = false
		return err
	}
	return nil
}

// mcpTool is a discovered tool bound to its origin server.
type mcpTool struct {
	server     *MCPServer
	name       string
	remoteName string
	desc       string
	schema     map[string]any
}

func (t *mcpTool) Name() string                { return t.name }
func (t *mcpTool) Description() string         { return t.desc }
func (t *mcpTool) ServerName() string          { return t.server.Name() }
func (t *mcpTool) InputSchema() map[string]any { return t.schema }

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	return t.server.call(ctx, t.remoteName, args)
}

func parseCallResult(resp *mcp.CallToolResult) *Result {
	var texts []string
	for _, content := range resp.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}

	out := &Result{IsError: resp.IsError}
	switch len(texts) {
	case 0:
		if resp.IsError {
			out.Content = "unknown error"
		}
	case 1:
		out.Content = texts[0]
	default:
		joined, err := json.Marshal(texts)
		if err == nil {
			out.Content = string(joined)
		} else {
			out.Content = texts[0]
		}
	}
	return out
}

func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}
