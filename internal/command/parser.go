// Package command parses free-form "how to launch the target" strings into
// structured launch parameters. Parsing is pure: it never touches the
// filesystem, existence checks belong to the caller.
package command

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/mcp-probe/internal/domain"
)

// CommandSpec is the structured form of a target launch string. Immutable
// once parsed.
type CommandSpec struct {
	Executable string
	ScriptPath string
	Args       []string
}

// interpreters is the fixed allow-list of interpreter names recognized as
// the first token of a launch string. Matched case-insensitively.
var interpreters = map[string]bool{
	"python":  true,
	"python3": true,
	"python2": true,
	"node":    true,
	"deno":    true,
	"bun":     true,
	"ruby":    true,
	"perl":    true,
	"php":     true,
	"sh":      true,
	"bash":    true,
}

// DefaultInterpreter returns the platform-appropriate interpreter used when
// the launch string names only a script.
func DefaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Parse turns a raw launch string into a CommandSpec. Quoted segments may
// contain spaces and survive as single tokens; a single layer of surrounding
// quotes is stripped; directory separators are normalized to forward
// slashes. Returns domain.ErrInvalidCommand when the input is blank or
// tokenizes to zero parts.
func Parse(raw string) (*CommandSpec, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = stripSurroundingQuotes(trimmed)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty launch string", domain.ErrInvalidCommand)
	}

	// Handle Windows-style separators uniformly downstream.
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")

	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: launch string has no tokens", domain.ErrInvalidCommand)
	}

	spec := &CommandSpec{}
	if interpreters[strings.ToLower(tokens[0])] {
		if len(tokens) < 2 {
			return nil, fmt.Errorf("%w: interpreter %q given without a script path", domain.ErrInvalidCommand, tokens[0])
		}
		spec.Executable = tokens[0]
		spec.ScriptPath = tokens[1]
		spec.Args = tokens[2:]
	} else {
		spec.Executable = DefaultInterpreter()
		spec.ScriptPath = tokens[0]
		spec.Args = tokens[1:]
	}

	return spec, nil
}

// CommandLine returns the argv the process-launch primitive should spawn.
func (s *CommandSpec) CommandLine() []string {
	argv := make([]string, 0, len(s.Args)+2)
	argv = append(argv, s.Executable, s.ScriptPath)
	argv = append(argv, s.Args...)
	return argv
}

// String renders the parsed command for logging and reports.
func (s *CommandSpec) String() string {
	return strings.Join(s.CommandLine(), " ")
}

// stripSurroundingQuotes removes one layer of matching quotes wrapping the
// whole string.
func stripSurroundingQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// tokenize splits on spaces while keeping quoted substrings (which may
// contain spaces) as single tokens, with their quotes stripped.
func tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	var quote byte
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, current.String())
			current.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inToken = true
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteByte(c)
			inToken = true
		}
	}
	flush()

	return tokens
}
