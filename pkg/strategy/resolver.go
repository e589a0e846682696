// Package strategy is the Strategy Resolver (spec.md §4.2): given an
// enrichment config and a compiled schema descriptor, it produces an
// immutable Strategy or fails with human-readable errors. Modeled on the
// teacher's config-resolution functions (pkg/config.Load): validate, then
// construct, never mutate after return.
package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/doctrail-go/enrichment-engine/pkg/engineerrors"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// ColumnRef is one parsed entry of an enrichment's input_columns list:
// `col[:N]` splits into (name, char limit), and `t.col` records a
// table-qualified reference consumed by the Query Planner's two-phase fetch.
type ColumnRef struct {
	Table     string // "" unless table-qualified
	Column    string
	CharLimit int // 0 means unlimited
}

// Qualified reports the column's fully-qualified form as it appears in a
// row dictionary key ("table.col" or bare "col").
func (c ColumnRef) Qualified() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// ParseColumnRef parses one input_columns entry per spec.md §4.2: an
// optional trailing ":N" char-limit suffix, and an optional leading
// "table." qualifier. A malformed limit (non-positive, non-numeric) is
// dropped with a warning rather than failing the whole resolution.
func ParseColumnRef(raw string) (ColumnRef, []string) {
	var warnings []string
	ref := ColumnRef{}

	name := raw
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		limitStr := raw[idx+1:]
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			ref.CharLimit = n
			name = raw[:idx]
		} else {
			warnings = append(warnings, fmt.Sprintf("input column %q: malformed char limit, treating as unlimited", raw))
		}
	}

	if dot := strings.Index(name, "."); dot >= 0 {
		ref.Table = name[:dot]
		ref.Column = name[dot+1:]
	} else {
		ref.Column = name
	}
	return ref, warnings
}

// ParseInputColumns parses every entry of an enrichment's input_columns list,
// aggregating warnings across entries. The engine and Query Planner both
// consume the resulting refs: unqualified ones read straight off the
// primary row, table-qualified ones drive the two-phase fetch.
func ParseInputColumns(columns []string) ([]ColumnRef, []string) {
	refs := make([]ColumnRef, 0, len(columns))
	var warnings []string
	for _, col := range columns {
		ref, warn := ParseColumnRef(col)
		refs = append(refs, ref)
		warnings = append(warnings, warn...)
	}
	return refs, warnings
}

// Resolve implements the rule table of spec.md §4.2.
func Resolve(cfg models.EnrichmentConfig, desc *schema.Descriptor, inputTable string) (*models.Strategy, []string, error) {
	if desc == nil || len(desc.Fields) == 0 {
		return nil, nil, engineerrors.NewConfigError(
			fmt.Sprintf("enrichment %q: schema is required", cfg.Name), nil)
	}

	var warnings []string

	inputColumns := cfg.Input.InputColumns
	if len(inputColumns) == 0 {
		inputColumns = []string{"raw_content"}
		warnings = append(warnings, fmt.Sprintf("enrichment %q: input_columns absent, defaulting to [\"raw_content\"]", cfg.Name))
	}

	multiModel := len(cfg.Models) > 1
	complex := desc.IsComplex()

	var mode models.StorageMode
	var outputTable string
	var outputColumns []string

	switch {
	case cfg.OutputTable != "":
		mode = models.StorageSeparateTable
		outputTable = cfg.OutputTable
		outputColumns = desc.FieldNames()

	case complex:
		return nil, nil, engineerrors.NewConfigError(
			fmt.Sprintf("enrichment %q: schema declares %d fields but no output_table", cfg.Name, len(desc.Fields)), nil)

	case multiModel:
		return nil, nil, engineerrors.NewConfigError(
			fmt.Sprintf("enrichment %q: multiple models require output_table (storage_mode=separate_table)", cfg.Name), nil)

	default:
		mode = models.StorageDirectColumn
		col := cfg.OutputColumn
		if col == "" {
			col = desc.Fields[0].Name
		}
		outputColumns = []string{col}
	}

	if mode == models.StorageDirectColumn && len(outputColumns) != 1 {
		return nil, nil, engineerrors.NewConfigError(
			fmt.Sprintf("enrichment %q: direct_column mode requires exactly one output column, got %d", cfg.Name, len(outputColumns)), nil)
	}

	return &models.Strategy{
		InputTable:    inputTable,
		InputColumns:  inputColumns,
		StorageMode:   mode,
		OutputTable:   outputTable,
		OutputColumns: outputColumns,
		KeyColumn:     "sha1",
	}, warnings, nil
}
