// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package checkpoint provides hash-verified snapshots with bounded rollback.
//
// Each seed has one canonical checkpoint file plus up to N rotated rollback
// files (.1 oldest-first newest). Every save rotates; every load verifies
// the embedded SHA-256 and falls through to the next older level on
// corruption. Writers use temp-file + fsync + atomic rename, so readers see
// either the old or the new canonical file, never a torn one.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/maestro/pkg/jsonx"
)

// Checkpoint is one snapshot of derived state for a seed.
type Checkpoint struct {
	SeedID    string         `json:"seed_id"`
	Phase     string         `json:"phase"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// hashEnvelope is what the hash covers: everything except the hash itself.
type hashEnvelope struct {
	SeedID    string         `json:"seed_id"`
	Phase     string         `json:"phase"`
	State     map[string]any `json:"state"`
	Timestamp string         `json:"timestamp"`
}

// New builds a checkpoint with a fresh timestamp and computed hash.
func New(seedID, phase string, state map[string]any) (*Checkpoint, error) {
	cp := &Checkpoint{
		SeedID:    seedID,
		Phase:     phase,
		State:     state,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	hash, err := cp.ComputeHash()
	if err != nil {
		return nil, err
	}
	cp.Hash = hash
	return cp, nil
}

// ComputeHash returns the lowercase hex SHA-256 of the canonical JSON of
// {seed_id, phase, state, timestamp} with sorted keys.
func (c *Checkpoint) ComputeHash() (string, error) {
	env := hashEnvelope{
		SeedID:    c.SeedID,
		Phase:     c.Phase,
		State:     c.State,
		Timestamp: c.Timestamp.UTC().Format(time.RFC3339),
	}
	canonical, err := jsonx.CanonicalMarshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize checkpoint: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the hash and compares it to the stored one.
func (c *Checkpoint) Verify() error {
	want, err := c.ComputeHash()
	if err != nil {
		return err
	}
	if want != c.Hash {
		return fmt.Errorf("checkpoint hash mismatch: stored %s, computed %s", c.Hash, want)
	}
	return nil
}

// Serialize encodes the checkpoint file form.
func (c *Checkpoint) Serialize() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Deserialize decodes a checkpoint file. The hash is NOT verified here;
// the store verifies during load so corruption triggers rollback.
func Deserialize(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}
