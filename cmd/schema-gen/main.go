// Schema Generator
//
// Generates JSON Schema files from Go types: the workspace file format, for
// editor validation of workspace YAML, and the internal API types.
//
// Usage:
//
//	go run ./cmd/schema-gen [output-dir]
//
// Output:
//
//	schemas/workspace.json
//	schemas/api.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/kosarica/feed-service/internal/generator"
	"github.com/kosarica/feed-service/internal/handlers"
	"github.com/kosarica/feed-service/internal/scheduler"
	"github.com/kosarica/feed-service/internal/types"
	"github.com/kosarica/feed-service/internal/workspace"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name string
	// FieldNameTag selects the struct tag naming properties; yaml for files, json for the API
	FieldNameTag string
	Types        []any
	Output       string
}

func main() {
	outputDir := "schemas"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	groups := []SchemaGroup{
		{
			Name:         "workspace",
			FieldNameTag: "yaml",
			Types: []any{
				workspace.Workspace{},
			},
			Output: "workspace.json",
		},
		{
			Name:         "api",
			FieldNameTag: "json",
			Types: []any{
				// Request types
				handlers.ListFeedsRequest{},
				handlers.PreviewRequest{},
				handlers.ListLogsRequest{},
				// Response types
				handlers.FeedSummary{},
				handlers.ListFeedsResponse{},
				handlers.GenerateResponse{},
				handlers.ListLogsResponse{},
				handlers.RunSchedulerResponse{},
				handlers.HealthResponse{},
				generator.Status{},
				scheduler.Summary{},
				types.GenerationLog{},
			},
			Output: "api.json",
		},
	}

	for _, group := range groups {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{
		FieldNameTag: group.FieldNameTag,
	}

	definitions := make(map[string]any)
	root := ""

	for _, t := range group.Types {
		schema := reflector.Reflect(t)

		typeName := ""
		if schema.Ref != "" {
			// "#/$defs/Workspace" -> "Workspace"
			typeName = filepath.Base(schema.Ref)
		}
		if root == "" {
			root = schema.Ref
		}

		for name, def := range schema.Definitions {
			definitions[name] = def
		}
		if typeName != "" && schema.Definitions[typeName] != nil {
			definitions[typeName] = schema.Definitions[typeName]
		}
	}

	out := map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://kosarica.hr/schemas/feeds/%s.json", group.Name),
		"title":       fmt.Sprintf("%s Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
	// a single-type group validates documents directly
	if len(group.Types) == 1 && root != "" {
		out["$ref"] = root
	}
	return out
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
