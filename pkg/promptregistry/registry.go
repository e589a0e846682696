// Package promptregistry is the Prompt Registry (spec.md §3/§8): it
// deduplicates prompts by content hash per enrichment name and assigns a
// stable prompt id, so every stored response can be linked back to the
// exact (enrichment, prompt, system_prompt) triple that produced it.
// Grounded on the teacher's repositories package (pkg/repositories):
// an interface next to a single Postgres-backed implementation, exercised
// through *database.DB.
package promptregistry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/doctrail-go/enrichment-engine/pkg/database"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
)

// Registry upserts and looks up prompt records.
type Registry interface {
	// Upsert records (enrichmentName, promptText, systemPrompt) under a
	// stable content hash, minting a fresh prompt_id only the first time
	// this triple is seen. Safe to call repeatedly: the prompt_id returned
	// for an already-seen triple never changes (spec.md §8 "prompt identity"
	// law), and this call makes no mutation on the already-seen path beyond
	// the harmless no-op UPDATE used to retrieve it.
	Upsert(ctx context.Context, enrichmentName, promptText, systemPrompt string) (*models.PromptRecord, error)
}

// ContentHash computes the spec.md §3 prompt content hash: sha256 over
// "name|prompt|system_prompt", hex-encoded. Model-independent by design —
// the same prompt_id is reused across every model a multi-model enrichment
// fans out to.
func ContentHash(enrichmentName, promptText, systemPrompt string) string {
	sum := sha256.Sum256([]byte(enrichmentName + "|" + promptText + "|" + systemPrompt))
	return hex.EncodeToString(sum[:])
}

type postgresRegistry struct {
	db *database.DB
}

// NewRegistry constructs a Postgres-backed Registry.
func NewRegistry(db *database.DB) Registry {
	return &postgresRegistry{db: db}
}

var _ Registry = (*postgresRegistry)(nil)

// upsertSQL mints a fresh prompt_id on INSERT; on conflict it performs a
// no-op SET (enrichment_name = EXCLUDED.enrichment_name, always true) purely
// so RETURNING yields the existing row's prompt_id and created_at rather
// than erroring or silently doing nothing.
const upsertSQL = `
INSERT INTO prompts (prompt_id, enrichment_name, prompt_text, system_prompt, prompt_hash, created_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (enrichment_name, prompt_hash) DO UPDATE
SET enrichment_name = EXCLUDED.enrichment_name
RETURNING prompt_id, created_at`

func (r *postgresRegistry) Upsert(ctx context.Context, enrichmentName, promptText, systemPrompt string) (*models.PromptRecord, error) {
	hash := ContentHash(enrichmentName, promptText, systemPrompt)
	candidateID := uuid.New().String()

	rec := &models.PromptRecord{
		Enrichment:   enrichmentName,
		PromptText:   promptText,
		SystemPrompt: systemPrompt,
		ContentHash:  hash,
	}

	err := r.db.WithLockRetry(ctx, func() error {
		row := r.db.Pool.QueryRow(ctx, upsertSQL, candidateID, enrichmentName, promptText, systemPrompt, hash)
		return row.Scan(&rec.PromptID, &rec.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert prompt record: %w", err)
	}
	return rec, nil
}
