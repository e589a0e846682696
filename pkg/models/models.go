// Package models is the Data Model of spec.md §3 as plain Go structs: no
// behavior, only the shapes the Schema Compiler, Strategy Resolver, Query
// Planner, Provider Adapter, Prompt Registry, Audit Log, and Output Store
// pass between each other.
package models

import "time"

// DocumentRow is one input row read by the Query Planner. The core treats
// it as opaque beyond the two identity columns; Columns holds whatever the
// enrichment declared as inputs (plus rowid/sha1), keyed by bare column
// name for the planner's primary SELECT and by "table.col" for every column
// merged in by the two-phase fetch.
type DocumentRow struct {
	SHA1    string
	RowID   *int64
	Columns map[string]interface{}
}

// EnrichmentConfig is one entry of the enrichment config file's
// `enrichments:` list (spec.md §3/§6), immutable for the run.
type EnrichmentConfig struct {
	Name          string
	Prompt        string
	SystemPrompt  string
	AppendFile    string
	Models        []string
	Table         string // overrides the config file's default_table; "" defers to it
	Input         InputSpec
	SchemaNode    interface{} // *yaml.Node; kept as interface{} to avoid an import cycle with pkg/schema
	OutputColumn  string
	OutputColumns []string
	OutputTable   string
}

// InputSpec names the row source and which columns to read.
type InputSpec struct {
	Query        string // a named query from sql_queries, or inline SQL
	InputColumns []string
}

// StorageMode is where a Strategy writes its projected output.
type StorageMode string

const (
	StorageDirectColumn  StorageMode = "direct_column"
	StorageSeparateTable StorageMode = "separate_table"
)

// Strategy is the Strategy Resolver's immutable output (spec.md §4.2).
type Strategy struct {
	InputTable    string
	InputColumns  []string
	StorageMode   StorageMode
	OutputTable   string
	OutputColumns []string
	KeyColumn     string // always "sha1"
}

// PromptRecord is the Prompt Registry's persisted row (spec.md §3).
// ContentHash is over "name|prompt|system_prompt" and is model-independent,
// so the same prompt_id is reused across every model a multi-model
// enrichment fans out to.
type PromptRecord struct {
	PromptID     string
	Enrichment   string
	PromptText   string
	SystemPrompt string
	ContentHash  string
	CreatedAt    time.Time
}

// ResponseRecord is one append-only row of the audit log (spec.md §3). It
// carries no uniqueness constraint on (sha1, enrichment_name, model_used):
// retries and overwrites append new rows, and the engine's skip decision
// treats the table's mere presence of a matching row as authoritative.
type ResponseRecord struct {
	ID           int64
	EnrichmentID string
	SHA1         string
	Enrichment   string
	RawJSON      string
	ModelUsed    string
	PromptID     string
	FullPrompt   string
	CreatedAt    time.Time
}

// DerivedOutputRow is one row of a schema-dependent derived table (spec.md
// §3), written when Strategy.StorageMode == StorageSeparateTable. Fields
// holds the validated, typed schema output keyed by field name; the Output
// Store expands it into the table's TEXT/derived columns.
type DerivedOutputRow struct {
	SHA1         string
	ModelUsed    string
	EnrichmentID string
	Fields       map[string]interface{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SkipReason explains why the engine did not re-run an enrichment for a row.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipAlreadyEnriched    SkipReason = "already_enriched"
	SkipNullInputColumns   SkipReason = "null_input_columns"
	SkipNotAppendEligible  SkipReason = "not_append_eligible"
)

// RowResult is the outcome the engine reports for one (row, model) pair.
type RowResult struct {
	SHA1       string
	Model      string
	Skipped    bool
	SkipReason SkipReason
	Err        error
}
