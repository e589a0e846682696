package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doctrail-go/enrichment-engine/pkg/models"
)

// ModelSettings is one entry of the enrichment config file's `models:` map
// (spec.md §6): per-model call defaults.
type ModelSettings struct {
	MaxTokens   int
	Temperature float64
}

// EnrichmentFile is the parsed enrichment config file (spec.md §6): the
// top-level keys the core consumes (`exports` is out of scope, §1).
type EnrichmentFile struct {
	Database     string
	DefaultTable string
	DefaultModel string
	SQLQueries   map[string]string
	Models       map[string]ModelSettings
	Enrichments  []models.EnrichmentConfig
}

// LoadEnrichmentFile reads and parses an enrichment config file. Schema
// nodes are kept as *yaml.Node (see pkg/schema.Compile) rather than decoded
// here, so field declaration order survives into the Schema Compiler.
// Grounded on pkg/schema/compile.go's technique of walking yaml.Node
// mapping pairs directly instead of decoding into a plain map, for the same
// reason: a Go map scrambles key order and this file's `enrichments` list
// entries need their `schema:` sub-document preserved untouched.
func LoadEnrichmentFile(path string) (*EnrichmentFile, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read enrichment config %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("parse enrichment config %s: %w", path, err)
	}

	doc := &root
	for doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("enrichment config %s: top level must be a mapping", path)
	}

	file := &EnrichmentFile{
		SQLQueries: map[string]string{},
		Models:     map[string]ModelSettings{},
	}
	var warnings []string

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i].Value
		val := doc.Content[i+1]

		switch key {
		case "database":
			file.Database = val.Value
		case "default_table":
			file.DefaultTable = val.Value
		case "default_model":
			file.DefaultModel = val.Value
		case "sql_queries":
			if err := val.Decode(&file.SQLQueries); err != nil {
				return nil, nil, fmt.Errorf("enrichment config %s: sql_queries: %w", path, err)
			}
		case "models":
			var raw map[string]struct {
				MaxTokens   int     `yaml:"max_tokens"`
				Temperature float64 `yaml:"temperature"`
			}
			if err := val.Decode(&raw); err != nil {
				return nil, nil, fmt.Errorf("enrichment config %s: models: %w", path, err)
			}
			for name, m := range raw {
				file.Models[name] = ModelSettings{MaxTokens: m.MaxTokens, Temperature: m.Temperature}
			}
		case "enrichments":
			if val.Kind != yaml.SequenceNode {
				return nil, nil, fmt.Errorf("enrichment config %s: enrichments must be a list", path)
			}
			for _, item := range val.Content {
				cfg, cfgWarnings, err := parseEnrichmentNode(item, filepath.Dir(path))
				if err != nil {
					return nil, nil, fmt.Errorf("enrichment config %s: %w", path, err)
				}
				warnings = append(warnings, cfgWarnings...)
				file.Enrichments = append(file.Enrichments, *cfg)
			}
		case "exports":
			// Out of scope per spec.md §1 ("export rendering" is an external
			// collaborator); the key is accepted and ignored so a shared
			// config file doesn't need a separate enrichment-only copy.
		}
	}

	return file, warnings, nil
}

func parseEnrichmentNode(node *yaml.Node, configDir string) (*models.EnrichmentConfig, []string, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("enrichment entry must be a mapping")
	}

	cfg := &models.EnrichmentConfig{}
	var warnings []string
	var appendFilePath string

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch key {
		case "name":
			cfg.Name = val.Value
		case "prompt":
			cfg.Prompt = val.Value
		case "system_prompt":
			cfg.SystemPrompt = val.Value
		case "append_file":
			appendFilePath = val.Value
		case "table":
			cfg.Table = val.Value
		case "output_column":
			cfg.OutputColumn = val.Value
		case "output_table":
			cfg.OutputTable = val.Value
		case "output_columns":
			if err := val.Decode(&cfg.OutputColumns); err != nil {
				return nil, nil, fmt.Errorf("enrichment %q: output_columns: %w", cfg.Name, err)
			}
		case "key_column":
			// key_column is always "sha1" per spec.md §3; a declared value
			// other than "sha1" is accepted but has no effect, matching the
			// spec's fixed invariant rather than erroring on legacy configs.
		case "model":
			models_, err := decodeModelField(val)
			if err != nil {
				return nil, nil, fmt.Errorf("enrichment %q: model: %w", cfg.Name, err)
			}
			cfg.Models = models_
		case "input":
			if err := parseInputNode(val, cfg); err != nil {
				return nil, nil, fmt.Errorf("enrichment %q: input: %w", cfg.Name, err)
			}
		case "schema":
			cfg.SchemaNode = val
		case "truncate":
			// Carried on the run's flags (spec.md §6's `truncate` boolean);
			// no equivalent field on models.EnrichmentConfig since truncation
			// is a per-run, not per-enrichment, decision in this repo's CLI.
		}
	}

	if appendFilePath != "" {
		text, err := os.ReadFile(resolveRelative(configDir, appendFilePath))
		if err != nil {
			return nil, nil, fmt.Errorf("enrichment %q: append_file %s: %w", cfg.Name, appendFilePath, err)
		}
		cfg.AppendFile = string(text)
	}

	return cfg, warnings, nil
}

func parseInputNode(node *yaml.Node, cfg *models.EnrichmentConfig) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("input must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "query":
			cfg.Input.Query = val.Value
		case "input_columns":
			if err := val.Decode(&cfg.Input.InputColumns); err != nil {
				return fmt.Errorf("input_columns: %w", err)
			}
		}
	}
	return nil
}

// decodeModelField accepts spec.md §6's `model` key as either a single
// string or a list of strings.
func decodeModelField(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings")
	}
}

func resolveRelative(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
