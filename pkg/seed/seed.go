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

// Package seed defines the immutable input to the orchestrator.
//
// A Seed is constructed once, validated, and never mutated. All accessors
// return copies, so downstream components cannot corrupt the orchestrator's
// view of the goal. Seeds round-trip losslessly through their document form
// (YAML or JSON); unknown document fields are rejected.
package seed

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FieldSpec describes one typed field of the ontology schema.
type FieldSpec struct {
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// Principle is a weighted evaluation rubric.
type Principle struct {
	Name        string  `yaml:"name" json:"name"`
	Weight      float64 `yaml:"weight" json:"weight"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// ExitCondition is a named predicate with textual evaluation criteria.
type ExitCondition struct {
	Name     string `yaml:"name" json:"name"`
	Criteria string `yaml:"criteria" json:"criteria"`
}

// Metadata carries generated identifiers for a seed.
type Metadata struct {
	SeedID         string    `yaml:"seed_id" json:"seed_id"`
	AmbiguityScore float64   `yaml:"ambiguity_score" json:"ambiguity_score"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at"`
	InterviewID    string    `yaml:"interview_id,omitempty" json:"interview_id,omitempty"`
}

// Seed is the validated, immutable orchestrator input.
type Seed struct {
	goal                 string
	constraints          []string
	acceptanceCriteria   []string
	ontologySchema       map[string]FieldSpec
	evaluationPrinciples []Principle
	exitConditions       []ExitCondition
	metadata             Metadata
}

// Spec is the mutable construction form of a Seed.
type Spec struct {
	Goal                 string
	Constraints          []string
	AcceptanceCriteria   []string
	OntologySchema       map[string]FieldSpec
	EvaluationPrinciples []Principle
	ExitConditions       []ExitCondition
	AmbiguityScore       float64
	InterviewID          string
}

// New validates the spec and freezes it into a Seed. Metadata is generated:
// a fresh seed id and creation timestamp.
func New(spec Spec) (*Seed, error) {
	s := &Seed{
		goal:                 spec.Goal,
		constraints:          copyStrings(spec.Constraints),
		acceptanceCriteria:   copyStrings(spec.AcceptanceCriteria),
		ontologySchema:       copySchema(spec.OntologySchema),
		evaluationPrinciples: copyPrinciples(spec.EvaluationPrinciples),
		exitConditions:       copyConditions(spec.ExitConditions),
		metadata: Metadata{
			SeedID:         "seed-" + uuid.NewString(),
			AmbiguityScore: spec.AmbiguityScore,
			CreatedAt:      time.Now().UTC().Truncate(time.Second),
			InterviewID:    spec.InterviewID,
		},
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Seed) validate() error {
	if s.goal == "" {
		return fmt.Errorf("goal cannot be empty")
	}
	for i, c := range s.acceptanceCriteria {
		if c == "" {
			return fmt.Errorf("acceptance criterion %d is empty", i)
		}
	}
	for _, p := range s.evaluationPrinciples {
		if p.Name == "" {
			return fmt.Errorf("evaluation principle with empty name")
		}
		if p.Weight < 0 || p.Weight > 1 {
			return fmt.Errorf("evaluation principle %q weight %f out of [0,1]", p.Name, p.Weight)
		}
	}
	if s.metadata.AmbiguityScore < 0 || s.metadata.AmbiguityScore > 1 {
		return fmt.Errorf("ambiguity_score %f out of [0,1]", s.metadata.AmbiguityScore)
	}
	if s.metadata.SeedID == "" {
		return fmt.Errorf("seed_id cannot be empty")
	}
	return nil
}

// Goal returns the seed's goal text.
func (s *Seed) Goal() string { return s.goal }

// Constraints returns a copy of the ordered constraint list.
func (s *Seed) Constraints() []string { return copyStrings(s.constraints) }

// AcceptanceCriteria returns a copy of the ordered criteria list.
func (s *Seed) AcceptanceCriteria() []string { return copyStrings(s.acceptanceCriteria) }

// OntologySchema returns a copy of the ontology schema.
func (s *Seed) OntologySchema() map[string]FieldSpec { return copySchema(s.ontologySchema) }

// EvaluationPrinciples returns a copy of the weighted rubrics.
func (s *Seed) EvaluationPrinciples() []Principle { return copyPrinciples(s.evaluationPrinciples) }

// ExitConditions returns a copy of the exit conditions.
func (s *Seed) ExitConditions() []ExitCondition { return copyConditions(s.exitConditions) }

// Metadata returns the seed metadata.
func (s *Seed) Metadata() Metadata { return s.metadata }

// ID returns the generated seed id.
func (s *Seed) ID() string { return s.metadata.SeedID }

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copySchema(in map[string]FieldSpec) map[string]FieldSpec {
	if in == nil {
		return nil
	}
	out := make(map[string]FieldSpec, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyPrinciples(in []Principle) []Principle {
	if in == nil {
		return nil
	}
	out := make([]Principle, len(in))
	copy(out, in)
	return out
}

func copyConditions(in []ExitCondition) []ExitCondition {
	if in == nil {
		return nil
	}
	out := make([]ExitCondition, len(in))
	copy(out, in)
	return out
}
