package seed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the wire form of a Seed. Field order and names match the seed
// document format; unknown fields are rejected on decode.
type Document struct {
	Goal                 string               `yaml:"goal" json:"goal"`
	Constraints          []string             `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	AcceptanceCriteria   []string             `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	OntologySchema       map[string]FieldSpec `yaml:"ontology_schema,omitempty" json:"ontology_schema,omitempty"`
	EvaluationPrinciples []Principle          `yaml:"evaluation_principles,omitempty" json:"evaluation_principles,omitempty"`
	ExitConditions       []ExitCondition      `yaml:"exit_conditions,omitempty" json:"exit_conditions,omitempty"`
	Metadata             Metadata             `yaml:"metadata" json:"metadata"`
}

// Document returns the wire form of the seed.
func (s *Seed) Document() Document {
	return Document{
		Goal:                 s.goal,
		Constraints:          copyStrings(s.constraints),
		AcceptanceCriteria:   copyStrings(s.acceptanceCriteria),
		OntologySchema:       copySchema(s.ontologySchema),
		EvaluationPrinciples: copyPrinciples(s.evaluationPrinciples),
		ExitConditions:       copyConditions(s.exitConditions),
		Metadata:             s.metadata,
	}
}

// FromDocument validates a decoded document and freezes it into a Seed,
// preserving the document's metadata (ids survive round trips).
func FromDocument(doc Document) (*Seed, error) {
	s := &Seed{
		goal:                 doc.Goal,
		constraints:          copyStrings(doc.Constraints),
		acceptanceCriteria:   copyStrings(doc.AcceptanceCriteria),
		ontologySchema:       copySchema(doc.OntologySchema),
		evaluationPrinciples: copyPrinciples(doc.EvaluationPrinciples),
		exitConditions:       copyConditions(doc.ExitConditions),
		metadata:             doc.Metadata,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MarshalJSON serializes the seed's document form.
func (s *Seed) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// MarshalYAML serializes the seed's document form.
func (s *Seed) MarshalYAML() (any, error) {
	return s.Document(), nil
}

// ParseJSON decodes a JSON seed document, rejecting unknown fields.
func ParseJSON(data []byte) (*Seed, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}
	return FromDocument(doc)
}

// ParseYAML decodes a YAML seed document, rejecting unknown fields.
func ParseYAML(data []byte) (*Seed, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}
	return FromDocument(doc)
}

// EncodeJSON serializes the seed as an indented JSON document.
func (s *Seed) EncodeJSON() ([]byte, error) {
	return json.MarshalIndent(s.Document(), "", "  ")
}

// EncodeYAML serializes the seed as a YAML document.
func (s *Seed) EncodeYAML() ([]byte, error) {
	return yaml.Marshal(s.Document())
}

// Equal reports whether two seeds carry identical documents.
func (s *Seed) Equal(other *Seed) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, err := json.Marshal(s.Document())
	if err != nil {
		return false
	}
	b, err := json.Marshal(other.Document())
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
