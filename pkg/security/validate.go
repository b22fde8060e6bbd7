package security

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/maestro/pkg/retry"
)

// defaultDeniedSubstrings rejects dangerous constructs, path traversal and
// shell metacharacters in tool arguments.
var defaultDeniedSubstrings = []string{
	"../",
	"..\\",
	"$(",
	"`",
	"&&",
	"||",
	";rm ",
	"; rm ",
	"rm -rf",
	"| sh",
	"| bash",
	"/etc/passwd",
	"/etc/shadow",
	"__import__",
	"eval(",
	"exec(",
}

// InputValidator rejects arguments containing denied substrings and runs
// optional per-tool validators.
type InputValidator struct {
	denied     []string
	perTool    map[string]func(args map[string]any) error
}

// NewInputValidator combines the built-in deny list with extra entries.
func NewInputValidator(extra []string) *InputValidator {
	denied := make([]string, 0, len(defaultDeniedSubstrings)+len(extra))
	denied = append(denied, defaultDeniedSubstrings...)
	denied = append(denied, extra...)
	return &InputValidator{
		denied:  denied,
		perTool: make(map[string]func(args map[string]any) error),
	}
}

// RegisterToolValidator installs a custom validator for one tool.
func (v *InputValidator) RegisterToolValidator(tool string, fn func(args map[string]any) error) {
	v.perTool[tool] = fn
}

// Validate checks every string value reachable from the arguments.
func (v *InputValidator) Validate(tool string, args map[string]any) error {
	if err := v.scanValue(args); err != nil {
		return err
	}
	if fn, ok := v.perTool[tool]; ok {
		if err := fn(args); err != nil {
			return retry.Wrap(retry.KindValidation, fmt.Sprintf("tool %s rejected arguments", tool), err)
		}
	}
	return nil
}

func (v *InputValidator) scanValue(value any) error {
	switch val := value.(type) {
	case string:
		lower := strings.ToLower(val)
		for _, denied := range v.denied {
			if strings.Contains(lower, strings.ToLower(denied)) {
				return retry.Newf(retry.KindValidation, "argument contains denied substring %q", denied)
			}
		}
	case map[string]any:
		for _, item := range val {
			if err := v.scanValue(item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			if err := v.scanValue(item); err != nil {
				return err
			}
		}
	}
	return nil
}
