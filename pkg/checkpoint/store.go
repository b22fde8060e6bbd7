package checkpoint

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Store persists checkpoints to disk with rotation and rollback.
//
// Layout per seed: <dir>/<seed_id>.json (canonical), plus rollback files
// <seed_id>.json.1 .. .N, newest first. Locks are per seed path and live
// only inside this component.
type Store struct {
	dir      string
	maxDepth int

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewStore creates a checkpoint store rooted at cfg.Dir.
func NewStore(cfg *config.CheckpointConfig) (*Store, error) {
	if cfg == nil {
		cfg = &config.CheckpointConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, retry.Wrap(retry.KindConfig, "invalid checkpoint config", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, retry.Wrap(retry.KindPersistence, "failed to create checkpoint dir", err)
	}

	return &Store{
		dir:      cfg.Dir,
		maxDepth: cfg.MaxRollbackDepth,
		locks:    make(map[string]*sync.RWMutex),
	}, nil
}

func (s *Store) lockFor(seedID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[seedID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[seedID] = l
	}
	return l
}

func (s *Store) path(seedID string, level int) string {
	base := filepath.Join(s.dir, seedID+".json")
	if level == 0 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, level)
}

// Save rotates existing files one level deeper and writes the new
// checkpoint atomically to the canonical path.
func (s *Store) Save(cp *Checkpoint) error {
	if cp == nil {
		return retry.New(retry.KindValidation, "checkpoint cannot be nil")
	}
	if cp.SeedID == "" {
		return retry.New(retry.KindValidation, "seed_id is required for checkpoint")
	}
	if cp.Hash == "" {
		hash, err := cp.ComputeHash()
		if err != nil {
			return retry.Wrap(retry.KindPersistence, "failed to hash checkpoint", err)
		}
		cp.Hash = hash
	}

	data, err := cp.Serialize()
	if err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to serialize checkpoint", err)
	}

	lock := s.lockFor(cp.SeedID)
	lock.Lock()
	defer lock.Unlock()

	s.rotate(cp.SeedID)

	if err := s.writeAtomic(s.path(cp.SeedID, 0), data); err != nil {
		return retry.Wrap(retry.KindPersistence, "failed to write checkpoint", err)
	}

	slog.Debug("Saved checkpoint",
		"seed_id", cp.SeedID,
		"phase", cp.Phase)
	return nil
}

// rotate shifts .N-1 -> .N for all levels and drops anything beyond depth.
func (s *Store) rotate(seedID string) {
	// Remove the file that would fall off the end.
	_ = os.Remove(s.path(seedID, s.maxDepth))

	for level := s.maxDepth - 1; level >= 0; level-- {
		src := s.path(seedID, level)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, s.path(seedID, level+1)); err != nil {
			slog.Warn("Failed to rotate checkpoint level",
				"seed_id", seedID,
				"level", level,
				"error", err)
		}
	}
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Load returns the newest checkpoint whose hash verifies, together with the
// level it was recovered from (0 = canonical). Corrupt levels are skipped.
func (s *Store) Load(seedID string) (*Checkpoint, int, error) {
	lock := s.lockFor(seedID)
	lock.RLock()
	defer lock.RUnlock()

	for level := 0; level <= s.maxDepth; level++ {
		path := s.path(seedID, level)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		cp, err := Deserialize(data)
		if err != nil {
			slog.Warn("Checkpoint parse failure, trying older level",
				"seed_id", seedID,
				"level", level,
				"error", err)
			continue
		}

		if err := cp.Verify(); err != nil {
			slog.Warn("Checkpoint corruption detected, trying older level",
				"seed_id", seedID,
				"level", level,
				"error", err)
			continue
		}

		if level > 0 {
			slog.Info("Recovered checkpoint from rollback level",
				"seed_id", seedID,
				"level", level)
		}
		return cp, level, nil
	}

	return nil, -1, retry.Newf(retry.KindPersistence, "no valid checkpoint for seed %s", seedID)
}

// Stats reports how many levels exist for a seed.
type Stats struct {
	SeedID string
	Levels int
}

// StatsFor counts the present checkpoint files for a seed.
func (s *Store) StatsFor(seedID string) Stats {
	lock := s.lockFor(seedID)
	lock.RLock()
	defer lock.RUnlock()

	st := Stats{SeedID: seedID}
	for level := 0; level <= s.maxDepth; level++ {
		if _, err := os.Stat(s.path(seedID, level)); err == nil {
			st.Levels++
		}
	}
	return st
}
