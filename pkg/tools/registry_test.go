package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/retry"
)

// fakeTool is a scripted in-process tool.
type fakeTool struct {
	name    string
	server  string
	result  *Result
	err     error
	calls   int
	failFor int // first N calls fail with a retriable error
}

func (t *fakeTool) Name() string                { return t.name }
func (t *fakeTool) Description() string         { return "fake tool" }
func (t *fakeTool) ServerName() string          { return t.server }
func (t *fakeTool) InputSchema() map[string]any { return map[string]any{"type": "object"} }

func (t *fakeTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	t.calls++
	if t.calls <= t.failFor {
		return nil, retry.New(retry.KindConnection, "transient failure")
	}
	if t.err != nil {
		return nil, t.err
	}
	if t.result != nil {
		return t.result, nil
	}
	return &Result{Content: "ok"}, nil
}

// fakeSource serves a fixed tool list.
type fakeSource struct {
	name  string
	tools []Tool
	err   error
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Discover(ctx context.Context) ([]Tool, error) {
	return s.tools, s.err
}
func (s *fakeSource) Close() error { return nil }

func TestDiscoveryMergesAndResolvesConflicts(t *testing.T) {
	builtin := &fakeTool{name: "read_file"}
	serverA := &fakeSource{name: "server-a", tools: []Tool{
		&fakeTool{name: "read_file", server: "server-a"}, // shadowed by built-in
		&fakeTool{name: "fetch_url", server: "server-a"},
	}}
	serverB := &fakeSource{name: "server-b", tools: []Tool{
		&fakeTool{name: "fetch_url", server: "server-b"}, // first server wins
		&fakeTool{name: "query_db", server: "server-b"},
	}}

	r := NewRegistry([]Tool{builtin}, serverA, serverB)
	defs, conflicts, err := r.Discover(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"read_file", "fetch_url", "query_db"}, names)

	require.Len(t, conflicts, 2)
	assert.Equal(t, "built-in", conflicts[0].ShadowedBy)
	assert.Equal(t, "server-a", conflicts[0].Source)
	assert.Equal(t, "server-a", conflicts[1].ShadowedBy)
	assert.Equal(t, "server-b", conflicts[1].Source)

	// The winning fetch_url comes from server-a.
	res, err := r.Call(context.Background(), "fetch_url", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
}

func TestDiscoverySkipsFailingServer(t *testing.T) {
	bad := &fakeSource{name: "down", err: retry.New(retry.KindConnection, "refused")}
	good := &fakeSource{name: "up", tools: []Tool{&fakeTool{name: "ping", server: "up"}}}

	r := NewRegistry(nil, bad, good)
	defs, _, err := r.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "ping", defs[0].Name)
}

func TestCallUnknownToolNotRetriable(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Call(context.Background(), "nope", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, retry.KindNotFound, retry.KindOf(err))
	assert.False(t, retry.IsRetryable(err))
}

func TestCallRetriesTransientFailures(t *testing.T) {
	tool := &fakeTool{name: "flaky", failFor: 2}
	r := NewRegistry([]Tool{tool})
	r.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	res, err := r.Call(context.Background(), "flaky", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 3, tool.calls)
}

func TestBuiltinFileTools(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644))

	r := NewRegistry(Builtins(dir))
	ctx := context.Background()

	res, err := r.Call(ctx, "read_file", map[string]any{"path": "hello.txt"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Content)

	_, err = r.Call(ctx, "write_file", map[string]any{"path": "sub/out.txt", "content": "data"}, time.Second)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "sub", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	res, err = r.Call(ctx, "list_dir", map[string]any{}, time.Second)
	require.NoError(t, err)
	assert.Contains(t, res.Content, "hello.txt")
	assert.Contains(t, res.Content, "sub/")

	res, err = r.Call(ctx, "search_text", map[string]any{"query": "world"}, time.Second)
	require.NoError(t, err)
	assert.Contains(t, res.Content, "hello.txt:1")
}

func TestBuiltinPathConfinement(t *testing.T) {
	r := NewRegistry(Builtins(t.TempDir()))
	_, err := r.Call(context.Background(), "read_file", map[string]any{"path": "../outside"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, retry.KindValidation, retry.KindOf(err))
}

func TestBuiltinSchemas(t *testing.T) {
	for _, tool := range Builtins(t.TempDir()) {
		schema := tool.InputSchema()
		require.NotNil(t, schema, tool.Name())
		assert.Equal(t, "object", schema["type"], tool.Name())
	}
}
