package harness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcp-probe/internal/domain"
)

// NegativeCase is a deliberately invalid invocation together with the
// failure it is expected to trigger.
type NegativeCase struct {
	Label     string                 `json:"label,omitempty"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	// ExpectedErrorPattern, when set, must be found in the observed error
	// text. Empty means any detected error passes.
	ExpectedErrorPattern string `json:"expected_error_pattern,omitempty"`
	// Strict requires the observed text to equal the pattern exactly instead
	// of regex/substring matching.
	Strict bool `json:"strict,omitempty"`
}

// errorMarkers are case-insensitive substrings that make a protocol-level
// "successful" reply count as error-shaped.
var errorMarkers = []string{"error", "错误", "failed", "exception"}

// NegativeValidator executes invalid invocations and classifies whether the
// resulting failure matches expectations.
type NegativeValidator struct {
	logger *logrus.Logger
	inv    Invoker
}

// NewNegativeValidator creates a validator over the given session.
func NewNegativeValidator(logger *logrus.Logger, inv Invoker) *NegativeValidator {
	return &NegativeValidator{logger: logger, inv: inv}
}

// Run executes every case. Individual cases never raise; aggregate pass/fail
// counts are derived by the caller from the Passed fields.
func (v *NegativeValidator) Run(ctx context.Context, cases []NegativeCase) []domain.NegativeCaseResult {
	results := make([]domain.NegativeCaseResult, 0, len(cases))
	for _, nc := range cases {
		results = append(results, v.runCase(ctx, nc))
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	v.logger.WithFields(logrus.Fields{
		"total":  len(results),
		"passed": passed,
	}).Info("Negative-case validation complete")

	return results
}

func (v *NegativeValidator) runCase(ctx context.Context, nc NegativeCase) domain.NegativeCaseResult {
	result := domain.NegativeCaseResult{
		Label:           nc.Label,
		ToolName:        nc.ToolName,
		Arguments:       nc.Arguments,
		ExpectedPattern: nc.ExpectedErrorPattern,
	}

	start := time.Now()
	response, err := v.inv.CallTool(ctx, nc.ToolName, nc.Arguments)
	result.Elapsed = time.Since(start)

	var observed string
	switch {
	case err != nil:
		// Raised at the transport or protocol layer.
		observed = err.Error()
	default:
		shaped, text := errorShaped(response)
		if !shaped {
			// The presence of a negative case implies an error was expected.
			result.MatchReason = "expected a failure but none occurred"
			return result
		}
		observed = text
	}

	result.ObservedError = observed
	result.Passed, result.MatchReason = matchError(observed, nc.ExpectedErrorPattern, nc.Strict)
	return result
}

// errorShaped reports whether a successful response nonetheless signals an
// application error, and extracts its error text.
func errorShaped(res *domain.ToolResult) (bool, string) {
	text := res.Text()
	if res.IsError {
		if text == "" {
			text = "tool result carries the error flag"
		}
		return true, text
	}

	lower := strings.ToLower(text)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true, text
		}
	}
	return false, ""
}

// matchError applies the pattern policy: no pattern passes on any detected
// error; strict requires exact equality; otherwise the pattern is tried as a
// case-insensitive regular expression, falling back to case-insensitive
// substring containment when it does not compile.
func matchError(observed, pattern string, strict bool) (bool, string) {
	if pattern == "" {
		return true, "error detected, no pattern required"
	}

	if strict {
		if observed == pattern {
			return true, "exact match"
		}
		return false, fmt.Sprintf("expected exactly %q, observed %q", pattern, observed)
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err == nil {
		if re.MatchString(observed) {
			return true, "regex match"
		}
		return false, fmt.Sprintf("pattern %q did not match observed error", pattern)
	}

	if strings.Contains(strings.ToLower(observed), strings.ToLower(pattern)) {
		return true, "substring match"
	}
	return false, fmt.Sprintf("pattern %q not contained in observed error", pattern)
}
