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

// Package routing selects a model tier per task: complexity scoring for the
// initial choice, escalation on repeated failure, downgrade on sustained
// success, and per-fingerprint memory of prior outcomes.
package routing

import (
	"fmt"

	"github.com/kadirpekel/maestro/pkg/config"
)

// Tier is the model cost class, strictly ordered.
type Tier int

const (
	TierFrugal Tier = iota
	TierStandard
	TierFrontier
)

// String returns the catalog key for the tier.
func (t Tier) String() string {
	switch t {
	case TierFrugal:
		return "frugal"
	case TierStandard:
		return "standard"
	case TierFrontier:
		return "frontier"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier maps a catalog key back to a tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "frugal":
		return TierFrugal, nil
	case "standard":
		return TierStandard, nil
	case "frontier":
		return TierFrontier, nil
	}
	return TierFrugal, fmt.Errorf("unknown tier: %q", s)
}

// CostMultiplier returns the canonical cost multiplier.
func (t Tier) CostMultiplier() int {
	switch t {
	case TierFrugal:
		return config.CostFactorFrugal
	case TierStandard:
		return config.CostFactorStandard
	case TierFrontier:
		return config.CostFactorFrontier
	}
	return 0
}

// Escalate returns the next tier up the ladder. Frontier has no next tier;
// the second return is false when already at the top.
func (t Tier) Escalate() (Tier, bool) {
	switch t {
	case TierFrugal:
		return TierStandard, true
	case TierStandard:
		return TierFrontier, true
	}
	return TierFrontier, false
}

// Downgrade returns the next tier down. Frugal stays Frugal.
func (t Tier) Downgrade() Tier {
	switch t {
	case TierFrontier:
		return TierStandard
	case TierStandard:
		return TierFrugal
	}
	return TierFrugal
}
