// Package outputstore is the Strategy-directed writer (spec.md §3/§4.3/§4.6
// step 5): it owns the two physical write shapes the engine's per-row
// pipeline can target — a single UPDATE on the source table's dedicated
// column (direct_column mode), or an upsert-by-(sha1, model_used) into a
// derived table whose columns are schema-dependent and therefore created on
// demand rather than migrated. Grounded on the teacher's repositories
// package for the interface/impl split, and on pkg/database for the pool.
package outputstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/database"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// Store writes projected enrichment output under at-most-once-per-key
// discipline (spec.md §8 "derived-table uniqueness").
type Store interface {
	// EnsureDerivedTable creates table if it doesn't already exist, with one
	// TEXT column per schema field plus the fixed id/sha1/model_used/
	// enrichment_id/created_at/updated_at columns and a UNIQUE(sha1,
	// model_used) constraint (spec.md §6). Idempotent: safe to call before
	// every run.
	EnsureDerivedTable(ctx context.Context, table string, desc *schema.Descriptor) error

	// WriteDerived upserts row into table by (sha1, model_used): slice
	// ([]string / []interface{}) field values are JSON-encoded, everything else is stored
	// as its natural text representation. A conflicting key is updated in
	// place and updated_at is refreshed (spec.md §3 derived output row
	// lifecycle).
	WriteDerived(ctx context.Context, table string, row models.DerivedOutputRow, fieldOrder []string) error

	// EnsureDirectColumn adds the enrichment's dedicated output column and
	// the metadata_updated tracking column to table if absent (spec.md
	// §4.3).
	EnsureDirectColumn(ctx context.Context, table, column string) error

	// WriteDirectColumn sets table.column = value for the row identified by
	// keyColumn = keyValue (always sha1 per spec.md §3's key_column
	// invariant) and refreshes metadata_updated.
	WriteDirectColumn(ctx context.Context, table, column, keyColumn, keyValue string, value interface{}) error

	// Checkpoint issues a Store-level checkpoint (spec.md §4.3: every ~1000
	// processed rows). Non-fatal on failure.
	Checkpoint(ctx context.Context)
}

type postgresStore struct {
	db     *database.DB
	logger *zap.Logger
}

// NewStore constructs a Postgres-backed Store.
func NewStore(db *database.DB, logger *zap.Logger) Store {
	return &postgresStore{db: db, logger: logger.Named("outputstore")}
}

var _ Store = (*postgresStore)(nil)

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (s *postgresStore) EnsureDerivedTable(ctx context.Context, table string, desc *schema.Descriptor) error {
	var cols strings.Builder
	for _, f := range desc.Fields {
		cols.WriteString(", ")
		cols.WriteString(quoteIdent(f.Name))
		cols.WriteString(" TEXT")
	}

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	sha1 TEXT NOT NULL,
	model_used TEXT NOT NULL,
	enrichment_id TEXT%s,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (sha1, model_used)
)`, quoteIdent(table), cols.String())

	if _, err := s.db.Pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("create derived table %s: %w", table, err)
	}

	indexStatements := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (sha1)`, quoteIdent("idx_"+table+"_sha1"), quoteIdent(table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (model_used)`, quoteIdent("idx_"+table+"_model_used"), quoteIdent(table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (sha1, model_used)`, quoteIdent("idx_"+table+"_sha1_model_used"), quoteIdent(table)),
	}
	for _, stmt := range indexStatements {
		if _, err := s.db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("index derived table %s: %w", table, err)
		}
	}
	return nil
}

func (s *postgresStore) WriteDerived(ctx context.Context, table string, row models.DerivedOutputRow, fieldOrder []string) error {
	cols := []string{"sha1", "model_used", "enrichment_id"}
	args := []interface{}{row.SHA1, row.ModelUsed, row.EnrichmentID}
	for _, name := range fieldOrder {
		cols = append(cols, name)
		args = append(args, encodeFieldValue(row.Fields[name]))
	}

	placeholders := make([]string, len(args))
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		quotedCols[i] = quoteIdent(c)
	}

	var updates strings.Builder
	for i, name := range fieldOrder {
		if i > 0 {
			updates.WriteString(", ")
		}
		updates.WriteString(fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(name), quoteIdent(name)))
	}
	if updates.Len() > 0 {
		updates.WriteString(", ")
	}
	updates.WriteString("enrichment_id = EXCLUDED.enrichment_id, updated_at = now()")

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (sha1, model_used) DO UPDATE SET %s",
		quoteIdent(table), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "), updates.String())

	if err := s.db.WithLockRetry(ctx, func() error {
		_, err := s.db.Pool.Exec(ctx, upsertSQL, args...)
		return err
	}); err != nil {
		return fmt.Errorf("upsert derived row into %s: %w", table, err)
	}
	return nil
}

// encodeFieldValue renders a validated schema value as the TEXT form the
// derived table stores it in: scalars via their natural string form,
// slices (enum_list / array output) JSON-encoded (spec.md §3 "complex
// values JSON-encoded").
func encodeFieldValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		b, _ := json.Marshal(val)
		return string(b)
	case []interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (s *postgresStore) EnsureDirectColumn(ctx context.Context, table, column string) error {
	alterSQL := fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT, ADD COLUMN IF NOT EXISTS metadata_updated TIMESTAMPTZ",
		quoteIdent(table), quoteIdent(column))
	if _, err := s.db.Pool.Exec(ctx, alterSQL); err != nil {
		return fmt.Errorf("ensure direct column %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *postgresStore) WriteDirectColumn(ctx context.Context, table, column, keyColumn, keyValue string, value interface{}) error {
	updateSQL := fmt.Sprintf(
		"UPDATE %s SET %s = $1, metadata_updated = now() WHERE %s = $2",
		quoteIdent(table), quoteIdent(column), quoteIdent(keyColumn))
	if err := s.db.WithLockRetry(ctx, func() error {
		_, err := s.db.Pool.Exec(ctx, updateSQL, encodeFieldValue(value), keyValue)
		return err
	}); err != nil {
		return fmt.Errorf("write direct column %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *postgresStore) Checkpoint(ctx context.Context) {
	start := time.Now()
	s.db.Checkpoint(ctx)
	s.logger.Debug("checkpoint issued", zap.Duration("elapsed", time.Since(start)))
}
