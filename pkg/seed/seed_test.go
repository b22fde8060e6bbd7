package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() Spec {
	return Spec{
		Goal:               "Build a URL shortener service",
		Constraints:        []string{"Go 1.24", "no external cache"},
		AcceptanceCriteria: []string{"shorten endpoint works", "redirect endpoint works"},
		OntologySchema: map[string]FieldSpec{
			"url": {Type: "string", Required: true},
		},
		EvaluationPrinciples: []Principle{
			{Name: "correctness", Weight: 0.7},
			{Name: "simplicity", Weight: 0.3},
		},
		ExitConditions: []ExitCondition{
			{Name: "all_tests_pass", Criteria: "test suite green"},
		},
		AmbiguityScore: 0.2,
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr bool
	}{
		{name: "valid spec", mutate: func(*Spec) {}, wantErr: false},
		{name: "empty goal", mutate: func(s *Spec) { s.Goal = "" }, wantErr: true},
		{name: "empty criterion", mutate: func(s *Spec) { s.AcceptanceCriteria = []string{""} }, wantErr: true},
		{name: "weight above one", mutate: func(s *Spec) { s.EvaluationPrinciples[0].Weight = 1.5 }, wantErr: true},
		{name: "negative ambiguity", mutate: func(s *Spec) { s.AmbiguityScore = -0.1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			_, err := New(spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	s, err := New(testSpec())
	require.NoError(t, err)

	s.Constraints()[0] = "mutated"
	assert.Equal(t, "Go 1.24", s.Constraints()[0])

	s.OntologySchema()["url"] = FieldSpec{Type: "int"}
	assert.Equal(t, "string", s.OntologySchema()["url"].Type)

	s.EvaluationPrinciples()[0].Weight = 0.0
	assert.Equal(t, 0.7, s.EvaluationPrinciples()[0].Weight)
}

func TestRoundTripJSON(t *testing.T) {
	s, err := New(testSpec())
	require.NoError(t, err)

	data, err := s.EncodeJSON()
	require.NoError(t, err)

	back, err := ParseJSON(data)
	require.NoError(t, err)

	assert.True(t, s.Equal(back))
	assert.Equal(t, s.ID(), back.ID())
	assert.Equal(t, s.Metadata().CreatedAt, back.Metadata().CreatedAt)
}

func TestRoundTripYAML(t *testing.T) {
	s, err := New(testSpec())
	require.NoError(t, err)

	data, err := s.EncodeYAML()
	require.NoError(t, err)

	back, err := ParseYAML(data)
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
}

func TestUnknownFieldsRejected(t *testing.T) {
	_, err := ParseJSON([]byte(`{"goal":"x","metadata":{"seed_id":"seed-1","created_at":"2026-01-01T00:00:00Z"},"surprise":1}`))
	assert.Error(t, err)

	_, err = ParseYAML([]byte("goal: x\nsurprise: 1\nmetadata:\n  seed_id: seed-1\n  created_at: 2026-01-01T00:00:00Z\n"))
	assert.Error(t, err)
}

func TestGeneratedMetadata(t *testing.T) {
	a, err := New(testSpec())
	require.NoError(t, err)
	b, err := New(testSpec())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Contains(t, a.ID(), "seed-")
	assert.False(t, a.Metadata().CreatedAt.IsZero())
}
