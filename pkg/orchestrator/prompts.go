package orchestrator

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/maestro/pkg/seed"
)

// BuildSystemPrompt assembles the top-level system prompt from the seed's
// goal, constraints and evaluation principles.
func BuildSystemPrompt(s *seed.Seed) string {
	var sb strings.Builder
	sb.WriteString("You are an autonomous software engineering agent.\n\n")
	fmt.Fprintf(&sb, "Goal: %s\n", s.Goal())

	if constraints := s.Constraints(); len(constraints) > 0 {
		sb.WriteString("\nConstraints:\n")
		for _, c := range constraints {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}

	if principles := s.EvaluationPrinciples(); len(principles) > 0 {
		sb.WriteString("\nYour work is evaluated against:\n")
		for _, p := range principles {
			fmt.Fprintf(&sb, "- %s (weight %.2f)", p.Name, p.Weight)
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// BuildTaskPrompt lists the numbered acceptance criteria.
func BuildTaskPrompt(s *seed.Seed) string {
	var sb strings.Builder
	sb.WriteString("Satisfy every acceptance criterion below:\n\n")
	for i, ac := range s.AcceptanceCriteria() {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, ac)
	}
	return sb.String()
}
