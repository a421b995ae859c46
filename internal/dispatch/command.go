package dispatch

import (
	"fmt"
	"regexp"
	"strings"
)

// supportedPlaceholders are the tokens BuildToolCommand will substitute
// in a configured shell-tool's flag list. Anything else is rejected as
// a configuration error when BuildToolCommand builds the command.
var supportedPlaceholders = map[string]struct{}{
	"{object}":        {},
	"{filter}":        {},
	"{exposure_time}":  {},
	"{count}":         {},
	"{output_dir}":    {},
}

var placeholderMatcher = regexp.MustCompile(`\{[^}]+\}`)

// ToolInvocation names the external shell tool and its placeholder
// values for one Dark/Flat/analysis invocation (spec.md §4.8's
// "invoke the corresponding shell tool").
type ToolInvocation struct {
	Program    string
	Flags      []string
	Object     string
	Filter     string
	ExposureSecs float64
	Count      int
	OutputDir  string
}

// BuildToolCommand constructs an exec-compatible argv for inv,
// substituting placeholders into the configured flag list. Grounded on
// the teacher's provider-CLI command builder: same validation
// discipline (NUL-byte rejection, unsupported-placeholder rejection),
// retargeted from {prompt}/{model} to the acquisition-tool vocabulary.
func BuildToolCommand(inv ToolInvocation) ([]string, error) {
	program := strings.TrimSpace(inv.Program)
	if program == "" {
		return nil, fmt.Errorf("command builder: tool program is required")
	}
	if strings.ContainsRune(program, '\x00') {
		return nil, fmt.Errorf("command builder: tool program contains NUL byte")
	}
	if len(inv.Flags) == 0 {
		return []string{program}, nil
	}

	subst := map[string]string{
		"{object}":        inv.Object,
		"{filter}":        inv.Filter,
		"{exposure_time}":  fmt.Sprintf("%.3f", inv.ExposureSecs),
		"{count}":         fmt.Sprintf("%d", inv.Count),
		"{output_dir}":    inv.OutputDir,
	}

	argv := make([]string, 0, len(inv.Flags)+1)
	argv = append(argv, program)
	for i, raw := range inv.Flags {
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("command builder: empty flag at index %d", i)
		}
		if strings.ContainsRune(raw, '\x00') {
			return nil, fmt.Errorf("command builder: flag at index %d contains NUL byte", i)
		}
		if err := validatePlaceholders(raw); err != nil {
			return nil, fmt.Errorf("command builder: %w", err)
		}

		arg := raw
		for token, value := range subst {
			arg = strings.ReplaceAll(arg, token, value)
		}
		argv = append(argv, arg)
	}
	return argv, nil
}

func validatePlaceholders(raw string) error {
	matches := placeholderMatcher.FindAllString(raw, -1)
	for _, match := range matches {
		if _, ok := supportedPlaceholders[match]; !ok {
			return fmt.Errorf("unsupported placeholder %q in flag %q", match, raw)
		}
	}
	return nil
}
