package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(&config.CheckpointConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	cp, err := New("seed-A", "planning", map[string]any{"step": float64(3)})
	require.NoError(t, err)
	require.NoError(t, s.Save(cp))

	loaded, level, err := s.Load("seed-A")
	require.NoError(t, err)
	assert.Equal(t, 0, level)
	assert.Equal(t, "planning", loaded.Phase)
	assert.Equal(t, float64(3), loaded.State["step"])
	assert.NoError(t, loaded.Verify())
}

func TestHashCoversAllFields(t *testing.T) {
	cp, err := New("seed-A", "planning", map[string]any{"k": "v"})
	require.NoError(t, err)

	tamper := *cp
	tamper.SeedID = "seed-B"
	assert.Error(t, tamper.Verify())

	tamper = *cp
	tamper.State = map[string]any{"k": "tampered"}
	assert.Error(t, tamper.Verify())
}

func TestRotationKeepsThreeLevels(t *testing.T) {
	s := newTestStore(t)

	phases := []string{"p0", "p1", "p2", "p3", "p4"}
	for _, phase := range phases {
		cp, err := New("seed-A", phase, nil)
		require.NoError(t, err)
		require.NoError(t, s.Save(cp))
	}

	assert.Equal(t, 4, s.StatsFor("seed-A").Levels, "canonical plus three rollbacks")

	loaded, level, err := s.Load("seed-A")
	require.NoError(t, err)
	assert.Equal(t, 0, level)
	assert.Equal(t, "p4", loaded.Phase)
}

func corrupt(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cp map[string]any
	require.NoError(t, json.Unmarshal(data, &cp))
	cp["hash"] = "0000000000000000000000000000000000000000000000000000000000000000"
	out, err := json.Marshal(cp)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func TestRollbackOnCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(&config.CheckpointConfig{Dir: dir})
	require.NoError(t, err)

	for _, phase := range []string{"first", "second", "third"} {
		cp, err := New("seed-A", phase, nil)
		require.NoError(t, err)
		require.NoError(t, s.Save(cp))
	}

	// Corrupt the canonical file; load must fall back to .1, which holds
	// the previous save.
	corrupt(t, filepath.Join(dir, "seed-A.json"))

	loaded, level, err := s.Load("seed-A")
	require.NoError(t, err)
	assert.Equal(t, 1, level)
	assert.Equal(t, "second", loaded.Phase)
}

func TestAllLevelsCorruptFails(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(&config.CheckpointConfig{Dir: dir})
	require.NoError(t, err)

	for _, phase := range []string{"a", "b", "c"} {
		cp, err := New("seed-A", phase, nil)
		require.NoError(t, err)
		require.NoError(t, s.Save(cp))
	}

	corrupt(t, filepath.Join(dir, "seed-A.json"))
	corrupt(t, filepath.Join(dir, "seed-A.json.1"))
	corrupt(t, filepath.Join(dir, "seed-A.json.2"))

	_, _, err = s.Load("seed-A")
	require.Error(t, err)
	assert.Equal(t, retry.KindPersistence, retry.KindOf(err))
	assert.Contains(t, err.Error(), "no valid checkpoint")
}

func TestLoadMissingSeed(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Load("seed-unknown")
	assert.Error(t, err)
}
