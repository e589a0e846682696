// Package engine is the Enrichment Engine (spec.md §4.6): it drives the
// per-row pipeline — skip decision, prompt formatting, provider call,
// post-processing, durable write — over the row stream the Query Planner
// produces, bounded by the two semaphores of spec.md §5. Grounded on the
// teacher's pkg/llm/worker_pool.go: one goroutine per item, a buffered
// channel as the concurrency gate acquired inside the goroutine around the
// bounded section rather than around the whole task.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/audit"
	"github.com/doctrail-go/enrichment-engine/pkg/cost"
	"github.com/doctrail-go/enrichment-engine/pkg/database"
	"github.com/doctrail-go/enrichment-engine/pkg/engineerrors"
	"github.com/doctrail-go/enrichment-engine/pkg/jsonutil"
	"github.com/doctrail-go/enrichment-engine/pkg/llm"
	"github.com/doctrail-go/enrichment-engine/pkg/logging"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
	"github.com/doctrail-go/enrichment-engine/pkg/outputstore"
	"github.com/doctrail-go/enrichment-engine/pkg/promptregistry"
	"github.com/doctrail-go/enrichment-engine/pkg/queryplan"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
	"github.com/doctrail-go/enrichment-engine/pkg/strategy"
)

// safetyMarginTokens is spec.md §4.5's default truncation safety margin.
const safetyMarginTokens = 2000

// truncationMarker is the literal text spec.md §4.5/§8 requires appended to
// a truncated full_prompt.
const truncationMarker = " [TRUNCATED]"

// ModelCallSettings carries the per-model max_tokens/temperature defaults
// from the enrichment config file's `models:` map (spec.md §6). A model
// absent from that map uses defaultMaxTokens/defaultTemperature.
type ModelCallSettings struct {
	MaxTokens   int
	Temperature float64
}

// Options carries the per-run flags spec.md §4.6 names.
type Options struct {
	Overwrite     bool
	Truncate      bool
	Verbose       bool
	CostThreshold float64
	SkipCostCheck bool
	Limit         int
	RowID         *int64
	SHA1          string
}

// Task is everything the engine needs to run one enrichment: its resolved
// Strategy, compiled schema, and the already-constructed Provider per
// declared model.
type Task struct {
	Enrichment    models.EnrichmentConfig
	Strategy      *models.Strategy
	Descriptor    *schema.Descriptor
	WireSchema    *schema.WireSchema
	Validator     *schema.Validator
	Models        []string
	Providers     map[string]llm.Provider
	ModelSettings map[string]ModelCallSettings
	NamedQueries  map[string]string
	Options       Options
}

func (t Task) settingsFor(model string) ModelCallSettings {
	if s, ok := t.ModelSettings[model]; ok {
		if s.MaxTokens == 0 {
			s.MaxTokens = defaultMaxTokens
		}
		return s
	}
	return ModelCallSettings{MaxTokens: defaultMaxTokens, Temperature: defaultTemperature}
}

const defaultMaxTokens = 1024
const defaultTemperature = 0.0

// Summary is the engine's aggregate result for one Task (spec.md §7
// "the engine returns an aggregate result summary").
type Summary struct {
	Results    []models.RowResult
	Processed  int
	Skipped    int
	Errored    int
	RowCount   int
}

// Engine owns the shared Store-backed collaborators and the two
// process-wide semaphores of spec.md §5.
type Engine struct {
	db                 *database.DB
	audit              audit.Log
	prompts            promptregistry.Registry
	store              outputstore.Store
	logger             *zap.Logger
	apiSem             chan struct{}
	dbSem              chan struct{}
	checkpointInterval int
	processedCount     atomic.Int64
}

// New constructs an Engine. apiLimit/dbLimit/checkpointInterval of 0 fall
// back to spec.md §5's defaults (30, 2, 1000).
func New(db *database.DB, auditLog audit.Log, prompts promptregistry.Registry, store outputstore.Store, logger *zap.Logger, apiLimit, dbLimit, checkpointInterval int) *Engine {
	if apiLimit <= 0 {
		apiLimit = 30
	}
	if dbLimit <= 0 {
		dbLimit = 2
	}
	if checkpointInterval <= 0 {
		checkpointInterval = 1000
	}
	return &Engine{
		db:                 db,
		audit:              auditLog,
		prompts:            prompts,
		store:              store,
		logger:             logger.Named("engine"),
		apiSem:             make(chan struct{}, apiLimit),
		dbSem:              make(chan struct{}, dbLimit),
		checkpointInterval: checkpointInterval,
	}
}

// ConfirmFunc asks the operator whether to proceed past the cost
// threshold (spec.md §4.7). A nil ConfirmFunc means "always proceed"
// (non-interactive mode).
type ConfirmFunc func(cost.Breakdown) bool

// Run executes task end to end: resolves the plan, fetches and prepares
// the row stream once, then runs one pass per declared model over it
// (spec.md §4.6 "multi-model expansion").
func (e *Engine) Run(ctx context.Context, task Task, confirm ConfirmFunc) (*Summary, error) {
	wireValidator, err := schema.CompileJSONSchema(task.WireSchema)
	if err != nil {
		return nil, engineerrors.NewConfigError("wire schema does not compile", err)
	}

	plan, err := queryplan.Build(task.Enrichment, task.Strategy, queryplan.Options{
		NamedQueries: task.NamedQueries,
		Overwrite:    task.Options.Overwrite,
		Limit:        task.Options.Limit,
		RowID:        task.Options.RowID,
		SHA1:         task.Options.SHA1,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("resolved query plan", zap.String("sql", logging.SanitizeQuery(plan.SQL)))

	if task.Strategy.StorageMode == models.StorageSeparateTable {
		if err := e.store.EnsureDerivedTable(ctx, task.Strategy.OutputTable, task.Descriptor); err != nil {
			return nil, engineerrors.NewQueryError("ensure derived table failed", err)
		}
	} else {
		if err := e.store.EnsureDirectColumn(ctx, task.Strategy.InputTable, task.Strategy.OutputColumns[0]); err != nil {
			return nil, engineerrors.NewQueryError("ensure direct column failed", err)
		}
	}

	rows, err := e.fetchRows(ctx, plan.SQL)
	if err != nil {
		return nil, err
	}

	refs, warnings := strategy.ParseInputColumns(task.Enrichment.Input.InputColumns)
	for _, w := range warnings {
		e.logger.Warn(w)
	}
	for i := range rows {
		if err := queryplan.FetchAuxiliary(ctx, e.db, rows[i].SHA1, refs, rows[i].Columns); err != nil {
			return nil, engineerrors.NewQueryError("auxiliary fetch failed", err)
		}
		queryplan.ApplyCharLimits(rows[i].Columns, refs)
	}

	promptRec, err := e.prompts.Upsert(ctx, task.Enrichment.Name, task.Enrichment.Prompt, task.Enrichment.SystemPrompt)
	if err != nil {
		return nil, engineerrors.NewQueryError("prompt registry upsert failed", err)
	}

	if len(rows) > 0 && !task.Options.SkipCostCheck && len(task.Models) > 0 {
		model := task.Models[0]
		provider := task.Providers[model]
		sampleUser := substitutePlaceholders(task.Enrichment.Prompt, rows[0].Columns, e.logger)
		if task.Enrichment.AppendFile != "" {
			sampleUser = sampleUser + "\n" + task.Enrichment.AppendFile
		}
		breakdown := cost.Estimate(provider, sampleUser, task.Descriptor, len(rows)*len(task.Models))
		if cost.RequiresConfirmation(breakdown.TotalCost, task.Options.CostThreshold) {
			if confirm != nil && !confirm(breakdown) {
				return nil, fmt.Errorf("run aborted: estimated cost $%.2f exceeds threshold", breakdown.TotalCost)
			}
		}
	}

	summary := &Summary{RowCount: len(rows)}
	for _, model := range task.Models {
		provider, ok := task.Providers[model]
		if !ok {
			return nil, engineerrors.NewConfigError(fmt.Sprintf("no provider constructed for model %q", model), nil)
		}
		results := e.runPass(ctx, task, model, provider, task.settingsFor(model), rows, promptRec.PromptID, wireValidator)
		for _, r := range results {
			summary.Results = append(summary.Results, r)
			switch {
			case r.Skipped:
				summary.Skipped++
			case r.Err != nil:
				summary.Errored++
			default:
				summary.Processed++
			}
		}
	}
	return summary, nil
}

func (e *Engine) runPass(ctx context.Context, task Task, model string, provider llm.Provider, settings ModelCallSettings, rows []models.DocumentRow, promptID string, wireValidator *jsonschema.Schema) []models.RowResult {
	results := make([]models.RowResult, len(rows))
	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row models.DocumentRow) {
			defer wg.Done()
			results[i] = e.processRow(ctx, task, model, provider, settings, row, promptID, wireValidator)
		}(i, row)
	}
	wg.Wait()
	return results
}

// processRow runs spec.md §4.6's six-step pipeline for one (row, model)
// pair.
func (e *Engine) processRow(ctx context.Context, task Task, model string, provider llm.Provider, settings ModelCallSettings, row models.DocumentRow, promptID string, wireValidator *jsonschema.Schema) models.RowResult {
	result := models.RowResult{SHA1: row.SHA1, Model: model}

	select {
	case <-ctx.Done():
		result.Skipped = true
		result.SkipReason = models.SkipReason("cancelled")
		return result
	default:
	}

	// Step 1: skip decision. Authoritative regardless of what the Query
	// Planner already filtered (spec.md §4.6 step 1).
	if !task.Options.Overwrite {
		exists, err := e.audit.Exists(ctx, row.SHA1, task.Enrichment.Name, model)
		if err != nil {
			result.Err = engineerrors.NewQueryError("audit lookup failed", err)
			return result
		}
		if exists {
			result.Skipped = true
			result.SkipReason = models.SkipAlreadyEnriched
			return result
		}
	}

	// Step 2: prompt formatting.
	systemPrompt := substitutePlaceholders(task.Enrichment.SystemPrompt, row.Columns, e.logger)
	userPrompt := substitutePlaceholders(task.Enrichment.Prompt, row.Columns, e.logger)
	if task.Enrichment.AppendFile != "" {
		userPrompt = userPrompt + "\n" + task.Enrichment.AppendFile
	}
	fullPrompt := joinFullPrompt(systemPrompt, userPrompt)

	available := provider.MaxContextTokens() - safetyMarginTokens
	if available > 0 && provider.CountTokens(fullPrompt) > available {
		if !task.Options.Truncate {
			result.Err = engineerrors.NewTruncationError("prompt exceeds model context window", nil)
			e.appendAuditError(ctx, task, model, promptID, row.SHA1, fullPrompt, result.Err)
			return result
		}
		systemTokens := provider.CountTokens(systemPrompt)
		truncated, didTruncate := truncateToFit(userPrompt, available-systemTokens, provider.CountTokens)
		userPrompt = truncated
		if didTruncate {
			fullPrompt = joinFullPrompt(systemPrompt, userPrompt)
		}
	}

	messages := buildMessages(systemPrompt, userPrompt)

	// Steps 3-4: provider call, with retry limited to language-validation
	// failures (spec.md §4.6 step 4).
	var validated map[string]interface{}
	var rawJSON string
	var callErr error

	for attempt := 1; attempt <= 3; attempt++ {
		if !acquire(ctx, e.apiSem) {
			result.Skipped = true
			result.SkipReason = models.SkipReason("cancelled")
			return result
		}
		genResult, genErr := provider.GenerateStructured(ctx, messages, task.WireSchema, settings.Temperature, settings.MaxTokens)
		release(e.apiSem)

		if genErr != nil {
			callErr = engineerrors.NewProviderError("provider call failed", genErr)
			break
		}

		content := llm.RepairMojibake(genResult.Content, e.logger)
		jsonStr, extractErr := llm.ExtractJSON(content)
		if extractErr != nil {
			callErr = engineerrors.NewSchemaValidationError("no JSON found in response", extractErr)
			break
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			callErr = engineerrors.NewSchemaValidationError("response is not valid JSON", err)
			break
		}

		// Structural guard ahead of the typed Validator (spec.md §4.5): a
		// provider without native structured output returns freeform JSON
		// that may not even have the right shape (wrong types, missing
		// required fields, extra fields) before the typed Validator's
		// per-field coercion runs. A provider with native structured output
		// should always pass this trivially.
		if wireValidator != nil {
			if err := wireValidator.Validate(raw); err != nil {
				callErr = engineerrors.NewSchemaValidationError("response does not match wire schema", err)
				rawJSON = jsonStr
				break
			}
		}

		out, validateErr := task.Validator.Validate(raw)
		if validateErr != nil {
			callErr = validateErr
			rawJSON = jsonStr
			if engineerrors.IsRecoverable(validateErr) && attempt < 3 {
				continue
			}
			break
		}

		validated = out
		rawJSON = jsonStr
		callErr = nil
		break
	}

	// Step 5: durable write. Audit append always precedes any projected
	// write (spec.md §5 ordering guarantee).
	enrichmentID := uuid.New().String()
	if !acquire(ctx, e.dbSem) {
		result.Skipped = true
		result.SkipReason = models.SkipReason("cancelled")
		return result
	}
	rec := &models.ResponseRecord{
		EnrichmentID: enrichmentID,
		SHA1:         row.SHA1,
		Enrichment:   task.Enrichment.Name,
		ModelUsed:    model,
		PromptID:     promptID,
		FullPrompt:   fullPrompt,
	}
	if callErr != nil {
		rec.RawJSON = fmt.Sprintf(`{"error": %q}`, callErr.Error())
	} else {
		rec.RawJSON = rawJSON
	}
	auditErr := e.audit.Append(ctx, rec)
	release(e.dbSem)

	if auditErr != nil {
		result.Err = engineerrors.NewQueryError("audit append failed", auditErr)
		return result
	}
	if callErr != nil {
		result.Err = callErr
		return result
	}

	if hasContent(validated, task.Strategy) {
		if !acquire(ctx, e.dbSem) {
			// The audit row for this call is already durable; cancellation
			// here only drops the projected write, not the whole attempt.
			result.Err = ctx.Err()
			return result
		}
		var writeErr error
		if task.Strategy.StorageMode == models.StorageSeparateTable {
			writeErr = e.store.WriteDerived(ctx, task.Strategy.OutputTable, models.DerivedOutputRow{
				SHA1:         row.SHA1,
				ModelUsed:    model,
				EnrichmentID: enrichmentID,
				Fields:       validated,
			}, task.Descriptor.FieldNames())
		} else {
			col := task.Strategy.OutputColumns[0]
			writeErr = e.store.WriteDirectColumn(ctx, task.Strategy.InputTable, col, "sha1", row.SHA1, validated[col])
		}
		release(e.dbSem)
		if writeErr != nil {
			result.Err = engineerrors.NewQueryError("projected write failed", writeErr)
			return result
		}
	}

	// Step 6: progress / checkpoint.
	if n := e.processedCount.Add(1); n%int64(e.checkpointInterval) == 0 {
		e.store.Checkpoint(ctx)
	}
	return result
}

// acquire blocks until sem yields a free permit or ctx is cancelled first.
// Returning false means the caller must return without performing the
// guarded operation at all (spec.md §5: "a task suspended on a semaphore
// returns immediately without side effects").
func acquire(ctx context.Context, sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func release(sem chan struct{}) {
	<-sem
}

// appendAuditError records a fatal-for-the-row error (e.g. TruncationError)
// as its own audit row, matching spec.md §7's TruncationError handling.
func (e *Engine) appendAuditError(ctx context.Context, task Task, model, promptID, sha1, fullPrompt string, rowErr error) {
	if !acquire(ctx, e.dbSem) {
		return
	}
	defer release(e.dbSem)
	rec := &models.ResponseRecord{
		EnrichmentID: uuid.New().String(),
		SHA1:         sha1,
		Enrichment:   task.Enrichment.Name,
		ModelUsed:    model,
		PromptID:     promptID,
		FullPrompt:   fullPrompt,
		RawJSON:      fmt.Sprintf(`{"error": %q}`, rowErr.Error()),
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		e.logger.Warn("failed to record truncation audit row", zap.Error(err))
	}
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// substitutePlaceholders replaces `{col}` and `{table.col}` with the row's
// value, keyed the same way queryplan/strategy key a merged row dictionary.
// An unreplaced placeholder (no matching key) is left as literal braces
// (spec.md §4.6 step 2); every successful replacement is logged.
func substitutePlaceholders(text string, row map[string]interface{}, logger *zap.Logger) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := match[1 : len(match)-1]
		val, ok := row[key]
		if !ok {
			return match
		}
		logger.Debug("substituted prompt placeholder", zap.String("column", key))
		return jsonutil.FlexibleValue(val)
	})
}

// joinFullPrompt mirrors spec.md §4.5's role-collapse prefixes to build the
// single string stored as full_prompt in the audit log.
func joinFullPrompt(systemPrompt, userPrompt string) string {
	if systemPrompt == "" {
		return "User: " + userPrompt
	}
	return "Instructions: " + systemPrompt + "\n\nUser: " + userPrompt
}

func buildMessages(systemPrompt, userPrompt string) []llm.Message {
	var msgs []llm.Message
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userPrompt})
	return msgs
}

// truncateToFit shortens s so that countTokens(result) fits within
// maxTokens once truncationMarker is appended, preferring a cut at a
// trailing word boundary within the last 20% of the surviving text
// (spec.md §4.5). Returns the original string unmodified if it already
// fits.
func truncateToFit(s string, maxTokens int, countTokens func(string) int) (string, bool) {
	if maxTokens <= 0 {
		return truncationMarker, true
	}
	if countTokens(s) <= maxTokens {
		return s, false
	}

	lo, hi := 0, len(s)
	cut := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if countTokens(s[:mid]+truncationMarker) <= maxTokens {
			cut = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	windowStart := cut - cut/5
	if windowStart < 0 {
		windowStart = 0
	}
	if idx := strings.LastIndexAny(s[windowStart:cut], " \n\t"); idx >= 0 {
		cut = windowStart + idx
	}
	return s[:cut] + truncationMarker, true
}

// hasContent implements spec.md §4.6 step 5's "non-empty, non-null,
// non-'null'-string, non-empty-collection" gate on whether a successful
// call still produces a projected write.
func hasContent(validated map[string]interface{}, strat *models.Strategy) bool {
	if validated == nil {
		return false
	}
	if strat.StorageMode == models.StorageDirectColumn {
		return !isEmptyValue(validated[strat.OutputColumns[0]])
	}
	for _, v := range validated {
		if !isEmptyValue(v) {
			return true
		}
	}
	return false
}

func isEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == "" || strings.EqualFold(val, "null")
	case []string:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	default:
		return false
	}
}

// fetchRows executes sql and materializes every row into a DocumentRow,
// keyed the way queryplan/strategy expect (bare column name; "rowid" and
// "sha1" are also copied into their dedicated fields).
func (e *Engine) fetchRows(ctx context.Context, sql string) ([]models.DocumentRow, error) {
	rows, err := e.db.Pool.Query(ctx, sql)
	if err != nil {
		return nil, engineerrors.NewQueryError("query failed; run ingest first or check the configured query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []models.DocumentRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, engineerrors.NewQueryError("failed reading row values", err)
		}
		doc := models.DocumentRow{Columns: make(map[string]interface{}, len(fields))}
		for i, fd := range fields {
			name := string(fd.Name)
			doc.Columns[name] = values[i]
			switch name {
			case "sha1":
				if s, ok := values[i].(string); ok {
					doc.SHA1 = s
				}
			case "rowid":
				if n, ok := toInt64(values[i]); ok {
					doc.RowID = &n
				}
			}
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerrors.NewQueryError("error iterating result set; check column names", err)
	}
	return out, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
