// Package audit is the Audit Log (spec.md §3/§7): the append-only table of
// every LLM call attempted. The engine treats it as the authoritative
// "already tried" record for resumption (spec.md §4.6 step 1) and writes
// exactly one row per call attempted, successful or not (spec.md §8 "audit
// completeness").
package audit

import (
	"context"
	"fmt"

	"github.com/doctrail-go/enrichment-engine/pkg/database"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
)

// Log appends response records and answers the engine's skip decision.
type Log interface {
	// Exists reports whether a response record already exists for
	// (sha1, enrichmentName, model). The engine's overwrite=false skip
	// decision (spec.md §4.6 step 1) treats this as authoritative,
	// independent of whatever the Query Planner already filtered out.
	Exists(ctx context.Context, sha1, enrichmentName, model string) (bool, error)

	// Append writes rec, filling in rec.ID and rec.CreatedAt from the
	// database. Called exactly once per provider call attempted, before any
	// projected write for the same row (spec.md §5 ordering guarantee).
	Append(ctx context.Context, rec *models.ResponseRecord) error
}

type postgresLog struct {
	db *database.DB
}

// NewLog constructs a Postgres-backed Log.
func NewLog(db *database.DB) Log {
	return &postgresLog{db: db}
}

var _ Log = (*postgresLog)(nil)

const existsSQL = `
SELECT EXISTS (
	SELECT 1 FROM enrichment_responses
	WHERE sha1 = $1 AND enrichment_name = $2 AND model_used = $3
)`

func (l *postgresLog) Exists(ctx context.Context, sha1, enrichmentName, model string) (bool, error) {
	var exists bool
	if err := l.db.Pool.QueryRow(ctx, existsSQL, sha1, enrichmentName, model).Scan(&exists); err != nil {
		return false, fmt.Errorf("check response record existence: %w", err)
	}
	return exists, nil
}

const appendSQL = `
INSERT INTO enrichment_responses
	(enrichment_id, sha1, enrichment_name, raw_json, model_used, prompt_id, full_prompt, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
RETURNING id, created_at`

func (l *postgresLog) Append(ctx context.Context, rec *models.ResponseRecord) error {
	// An empty PromptID is stored as NULL: prompt_id references prompts and
	// is optional on a response record.
	var promptID interface{}
	if rec.PromptID != "" {
		promptID = rec.PromptID
	}
	err := l.db.WithLockRetry(ctx, func() error {
		row := l.db.Pool.QueryRow(ctx, appendSQL,
			rec.EnrichmentID, rec.SHA1, rec.Enrichment, rec.RawJSON, rec.ModelUsed, promptID, rec.FullPrompt)
		return row.Scan(&rec.ID, &rec.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("append response record: %w", err)
	}
	return nil
}
