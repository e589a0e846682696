// Package queryplan is the Query Planner (spec.md §4.4): it turns the
// enrichment config's configured selection string into an executable
// statement and, for table-qualified input columns, a set of follow-up
// per-row fetches. Grounded on the teacher's repository query-building
// style (pkg/repositories/alert_repository.go): build a conditions slice,
// join with fmt.Sprintf, append modifiers in a fixed order.
package queryplan

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/doctrail-go/enrichment-engine/pkg/database"
	"github.com/doctrail-go/enrichment-engine/pkg/engineerrors"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
	"github.com/doctrail-go/enrichment-engine/pkg/strategy"
)

// Plan is the resolved, executable SELECT. Build sets only SQL; it leaves
// AuxiliaryRefs and CharLimits empty (the engine parses input_columns itself
// with strategy.ParseInputColumns for the two-phase fetch).
type Plan struct {
	SQL            string
	AuxiliaryRefs  []strategy.ColumnRef // table-qualified input_columns
	CharLimits     map[string]int       // qualified column name -> limit, 0 = unlimited
}

var (
	selectStarPattern  = regexp.MustCompile(`(?i)^\s*SELECT\s+\*`)
	orderByPattern     = regexp.MustCompile(`(?i)\bORDER\s+BY\b`)
	limitPattern       = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)
	wherePattern       = regexp.MustCompile(`(?i)\bWHERE\b`)
	rowidPattern       = regexp.MustCompile(`(?i)\browid\b`)
)

// nullFilterClause builds the "<col> IS NULL" conjunct the planner injects
// or strips in direct_column mode, per spec.md §4.4 step 3.
func nullFilterClause(outputColumn string) string {
	return fmt.Sprintf("%s IS NULL", outputColumn)
}

// Options carries the per-run flags and bypass selectors the planner needs.
type Options struct {
	NamedQueries map[string]string // sql_queries: name -> SQL, resolved by the config loader
	Overwrite    bool
	Limit        int  // 0 = no limit
	RowID        *int64
	SHA1         string
}

// Build resolves the enrichment's configured `query` (a named query or raw
// SQL) into an executable Plan per spec.md §4.4. strat.StorageMode governs
// whether the overwrite/append null-filter is applied (direct_column only).
func Build(cfg models.EnrichmentConfig, strat *models.Strategy, opts Options) (*Plan, error) {
	// --rowid / --sha1 bypass steps 1-5 entirely (spec.md §4.4 step 6).
	if opts.RowID != nil {
		return &Plan{SQL: fmt.Sprintf("SELECT rowid, * FROM %s WHERE rowid=%d", strat.InputTable, *opts.RowID)}, nil
	}
	if opts.SHA1 != "" {
		return &Plan{SQL: fmt.Sprintf("SELECT rowid, * FROM %s WHERE sha1='%s'", strat.InputTable, escapeSQLString(opts.SHA1))}, nil
	}

	sql, err := resolveQuery(cfg.Input.Query, opts.NamedQueries)
	if err != nil {
		return nil, err
	}

	sql = ensureRowID(sql)

	if strat.StorageMode == models.StorageDirectColumn {
		sql, err = applyOverwriteFilter(sql, strat.OutputColumns[0], opts.Overwrite)
		if err != nil {
			return nil, err
		}
	}

	sql = ensureOrderBy(sql)
	sql = applyLimit(sql, opts.Limit)

	return &Plan{SQL: sql}, nil
}

func resolveQuery(query string, named map[string]string) (string, error) {
	if sql, ok := named[query]; ok {
		return sql, nil
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", engineerrors.NewQueryError("input query is empty", nil)
	}
	return trimmed, nil
}

// ensureRowID implements spec.md §4.4 step 2: SELECT * becomes
// SELECT rowid, *; any other explicit projection is left to the caller to
// have included rowid (the planner does not attempt to parse an arbitrary
// column list).
func ensureRowID(sql string) string {
	if selectStarPattern.MatchString(sql) && !rowidPattern.MatchString(sql) {
		return selectStarPattern.ReplaceAllStringFunc(sql, func(m string) string {
			return strings.Replace(m, "*", "rowid, *", 1)
		})
	}
	return sql
}

// applyOverwriteFilter implements spec.md §4.4 step 3.
func applyOverwriteFilter(sql, outputColumn string, overwrite bool) (string, error) {
	clause := nullFilterClause(outputColumn)

	if overwrite {
		// Strip a pre-existing "<col> IS NULL" conjunct by replacing every
		// occurrence with 1=1, which keeps any surrounding WHERE/AND valid.
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(clause))
		if pattern.MatchString(sql) {
			sql = pattern.ReplaceAllString(sql, "1=1")
		}
		return sql, nil
	}

	alreadyPresent := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(clause)).MatchString(sql)
	if alreadyPresent {
		return sql, nil
	}

	if wherePattern.MatchString(sql) {
		return injectIntoWhere(sql, clause)
	}
	return insertBeforeModifiers(sql, "WHERE "+clause)
}

// injectIntoWhere ANDs clause onto an existing WHERE, inserted immediately
// before any trailing ORDER BY / LIMIT so the new conjunct binds to the
// WHERE clause and not a later modifier.
func injectIntoWhere(sql, clause string) (string, error) {
	loc := wherePattern.FindStringIndex(sql)
	if loc == nil {
		return "", engineerrors.NewQueryError("expected WHERE clause not found", nil)
	}
	insertAt := findModifierBoundary(sql)
	head := strings.TrimRight(sql[:insertAt], " \t\n")
	tail := sql[insertAt:]
	return fmt.Sprintf("%s AND %s %s", head, clause, tail), nil
}

// insertBeforeModifiers appends clause (already including its own WHERE
// keyword) to sql, immediately before any ORDER BY / LIMIT suffix.
func insertBeforeModifiers(sql, clause string) (string, error) {
	insertAt := findModifierBoundary(sql)
	head := strings.TrimRight(sql[:insertAt], " \t\n")
	tail := sql[insertAt:]
	if tail == "" {
		return fmt.Sprintf("%s %s", head, clause), nil
	}
	return fmt.Sprintf("%s %s %s", head, clause, tail), nil
}

// findModifierBoundary returns the byte offset where a trailing ORDER BY or
// LIMIT clause begins, or len(sql) if neither is present.
func findModifierBoundary(sql string) int {
	boundary := len(sql)
	if loc := orderByPattern.FindStringIndex(sql); loc != nil && loc[0] < boundary {
		boundary = loc[0]
	}
	if loc := limitPattern.FindStringIndex(sql); loc != nil && loc[0] < boundary {
		boundary = loc[0]
	}
	return boundary
}

// ensureOrderBy implements spec.md §4.4 step 4: append a deterministic
// ORDER BY rowid unless the caller's SQL already orders.
func ensureOrderBy(sql string) string {
	if orderByPattern.MatchString(sql) {
		return sql
	}
	if limitPattern.MatchString(sql) {
		loc := limitPattern.FindStringIndex(sql)
		return strings.TrimRight(sql[:loc[0]], " \t\n") + " ORDER BY rowid " + sql[loc[0]:]
	}
	return strings.TrimRight(sql, " \t\n;") + " ORDER BY rowid"
}

// applyLimit implements spec.md §4.4 step 5: an existing LIMIT is replaced;
// limit == 0 means "no limit requested", leaving any existing LIMIT intact.
func applyLimit(sql string, limit int) string {
	if limit <= 0 {
		return sql
	}
	replacement := fmt.Sprintf("LIMIT %d", limit)
	if limitPattern.MatchString(sql) {
		return limitPattern.ReplaceAllString(sql, replacement)
	}
	return strings.TrimRight(sql, " \t\n;") + " " + replacement
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ApplyCharLimits implements the tail of spec.md §4.4's two-phase fetch:
// truncate string values to their declared char bound, applied after all
// primary and auxiliary columns have been merged into the row.
func ApplyCharLimits(row map[string]interface{}, refs []strategy.ColumnRef) {
	for _, ref := range refs {
		if ref.CharLimit <= 0 {
			continue
		}
		key := ref.Qualified()
		val, ok := row[key]
		if !ok {
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		if r := []rune(s); len(r) > ref.CharLimit {
			row[key] = string(r[:ref.CharLimit])
		}
	}
}

// FetchAuxiliary implements the two-phase fetch of spec.md §4.4: for each
// distinct table-qualified input column, issue `SELECT <cols> FROM t WHERE
// sha1=?` per row and merge the result into the row dictionary. Absent
// tables/rows yield NULLs rather than failing the row.
func FetchAuxiliary(ctx context.Context, db *database.DB, sha1 string, refs []strategy.ColumnRef, row map[string]interface{}) error {
	byTable := make(map[string][]strategy.ColumnRef)
	for _, ref := range refs {
		if ref.Table == "" {
			continue
		}
		byTable[ref.Table] = append(byTable[ref.Table], ref)
	}

	for table, tableRefs := range byTable {
		cols := make([]string, len(tableRefs))
		for i, r := range tableRefs {
			cols[i] = r.Column
		}
		sqlText := fmt.Sprintf("SELECT %s FROM %s WHERE sha1=$1", strings.Join(cols, ", "), table)

		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		err := db.Pool.QueryRow(ctx, sqlText, sha1).Scan(ptrs...)
		for i, ref := range tableRefs {
			key := ref.Qualified()
			if err != nil {
				row[key] = nil
				continue
			}
			row[key] = values[i]
		}
	}
	return nil
}
