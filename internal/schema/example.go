// Package schema derives plausible example arguments from a tool's input
// schema and checks discovered schemas for structural validity.
package schema

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/mcp-probe/internal/domain"
)

// Generator derives a plausible call payload from a tool's input schema.
// Generation is deterministic for a given schema; results are cached per
// tool name for the run's duration.
type Generator struct {
	logger *logrus.Logger
	cache  *lru.Cache[string, map[string]interface{}]
}

// NewGenerator creates a generator with an LRU cache of the given size.
func NewGenerator(logger *logrus.Logger, cacheSize int) (*Generator, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, map[string]interface{}](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create example cache: %w", err)
	}
	return &Generator{logger: logger, cache: cache}, nil
}

// ExampleArguments returns plausible arguments for the tool. Only required
// properties are populated; a tool without a usable object schema gets an
// empty argument map.
func (g *Generator) ExampleArguments(tool domain.ToolDescriptor) map[string]interface{} {
	if cached, ok := g.cache.Get(tool.Name); ok {
		return cached
	}

	args := g.fromObjectSchema(tool.InputSchema, 0)
	if args == nil {
		args = map[string]interface{}{}
	}

	g.cache.Add(tool.Name, args)
	g.logger.WithFields(logrus.Fields{
		"tool":      tool.Name,
		"arg_count": len(args),
	}).Debug("Generated example arguments")

	return args
}

const maxDepth = 6

func (g *Generator) fromObjectSchema(schema map[string]interface{}, depth int) map[string]interface{} {
	if schema == nil || depth > maxDepth {
		return nil
	}

	props, _ := schema["properties"].(map[string]interface{})
	if props == nil {
		return nil
	}

	required := map[string]bool{}
	if reqList, ok := schema["required"].([]interface{}); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	args := map[string]interface{}{}
	for name, raw := range props {
		propSchema, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		// Optional properties are omitted unless nothing is required at all.
		if len(required) > 0 && !required[name] {
			continue
		}
		args[name] = g.valueFor(name, propSchema, depth+1)
	}

	return args
}

// valueFor picks a plausible value: explicit examples and defaults win, then
// enum members, then a type-directed placeholder.
func (g *Generator) valueFor(name string, schema map[string]interface{}, depth int) interface{} {
	if examples, ok := schema["examples"].([]interface{}); ok && len(examples) > 0 {
		return examples[0]
	}
	if def, ok := schema["default"]; ok {
		return def
	}
	if enum, ok := schema["enum"].([]interface{}); ok && len(enum) > 0 {
		return enum[0]
	}

	switch schemaType(schema) {
	case "string":
		return stringPlaceholder(schema)
	case "integer":
		return 1
	case "number":
		return 1.0
	case "boolean":
		return true
	case "array":
		if items, ok := schema["items"].(map[string]interface{}); ok && depth <= maxDepth {
			return []interface{}{g.valueFor(name, items, depth+1)}
		}
		return []interface{}{}
	case "object":
		if nested := g.fromObjectSchema(schema, depth); nested != nil {
			return nested
		}
		return map[string]interface{}{}
	default:
		return "example"
	}
}

func schemaType(schema map[string]interface{}) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []interface{}:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func stringPlaceholder(schema map[string]interface{}) string {
	format, _ := schema["format"].(string)
	switch format {
	case "uri", "url":
		return "https://example.com"
	case "email":
		return "user@example.com"
	case "date":
		return "2024-01-01"
	case "date-time":
		return "2024-01-01T00:00:00Z"
	case "uuid":
		return "00000000-0000-0000-0000-000000000000"
	default:
		return "example"
	}
}
