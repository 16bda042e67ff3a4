package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mcp-probe/internal/domain"
)

// CheckResult records whether one tool's advertised input schema compiles as
// a JSON Schema and whether a generated example satisfies it.
type CheckResult struct {
	ToolName     string `json:"tool_name"`
	SchemaValid  bool   `json:"schema_valid"`
	SchemaError  string `json:"schema_error,omitempty"`
	ExampleValid bool   `json:"example_valid"`
	ExampleError string `json:"example_error,omitempty"`
}

// CheckTool validates the tool's input schema and, when it compiles, checks
// the example arguments against it. A tool advertising no schema is treated
// as trivially valid.
func CheckTool(tool domain.ToolDescriptor, example map[string]interface{}) CheckResult {
	result := CheckResult{ToolName: tool.Name}

	if len(tool.InputSchema) == 0 {
		result.SchemaValid = true
		result.ExampleValid = true
		return result
	}

	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	compiled, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		result.SchemaError = fmt.Sprintf("schema does not compile: %v", err)
		return result
	}
	result.SchemaValid = true

	if example == nil {
		example = map[string]interface{}{}
	}
	outcome, err := compiled.Validate(gojsonschema.NewGoLoader(example))
	if err != nil {
		result.ExampleError = fmt.Sprintf("example validation failed: %v", err)
		return result
	}
	if !outcome.Valid() {
		var reasons []string
		for _, desc := range outcome.Errors() {
			reasons = append(reasons, desc.String())
		}
		result.ExampleError = strings.Join(reasons, "; ")
		return result
	}

	result.ExampleValid = true
	return result
}
