package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/doctrail-go/enrichment-engine/pkg/audit"
	"github.com/doctrail-go/enrichment-engine/pkg/config"
	"github.com/doctrail-go/enrichment-engine/pkg/cost"
	"github.com/doctrail-go/enrichment-engine/pkg/database"
	"github.com/doctrail-go/enrichment-engine/pkg/engine"
	"github.com/doctrail-go/enrichment-engine/pkg/engineerrors"
	"github.com/doctrail-go/enrichment-engine/pkg/llm"
	"github.com/doctrail-go/enrichment-engine/pkg/models"
	"github.com/doctrail-go/enrichment-engine/pkg/outputstore"
	"github.com/doctrail-go/enrichment-engine/pkg/promptregistry"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
	"github.com/doctrail-go/enrichment-engine/pkg/strategy"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	os.Exit(run())
}

// cliFlags is the `enrich` wrapper's external interface (spec.md §6).
type cliFlags struct {
	configPath    string
	enrichments   string
	model         string
	limit         int
	rowID         string
	sha1          string
	overwrite     bool
	truncate      bool
	skipCostCheck bool
	costThreshold float64
	dbPath        string
	verbose       bool
}

func parseFlags(args []string) (*cliFlags, error) {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "path to the enrichment config YAML file")
	fs.StringVar(&f.enrichments, "enrichments", "", "comma-separated enrichment names to run")
	fs.StringVar(&f.model, "model", "", "override the model for every selected enrichment")
	fs.IntVar(&f.limit, "limit", 0, "limit the number of input rows")
	fs.StringVar(&f.rowID, "rowid", "", "process exactly one row by rowid")
	fs.StringVar(&f.sha1, "sha1", "", "process exactly one row by sha1")
	fs.BoolVar(&f.overwrite, "overwrite", false, "re-run rows that already have an audit record")
	fs.BoolVar(&f.truncate, "truncate", false, "truncate oversize inputs instead of failing the row")
	fs.BoolVar(&f.skipCostCheck, "skip-cost-check", false, "skip the pre-flight cost confirmation")
	fs.Float64Var(&f.costThreshold, "cost-threshold", cost.DefaultThreshold, "dollar threshold above which cost confirmation is requested")
	fs.StringVar(&f.dbPath, "db-path", "", "full Postgres connection string, overriding PG* environment variables")
	fs.BoolVar(&f.verbose, "verbose", false, "enable debug-level logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	exclusive := 0
	if f.limit > 0 {
		exclusive++
	}
	if f.rowID != "" {
		exclusive++
	}
	if f.sha1 != "" {
		exclusive++
	}
	if exclusive > 1 {
		return nil, errors.New("--limit, --rowid, and --sha1 are mutually exclusive")
	}
	if f.configPath == "" {
		return nil, errors.New("--config is required")
	}
	if f.enrichments == "" {
		return nil, errors.New("--enrichments is required")
	}
	return f, nil
}

// run returns the process exit code (spec.md §6: 0 success, 1 error, 130
// user interrupt).
func run() int {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "enrich: %v\n", err)
		return 1
	}

	var logger *zap.Logger
	if flags.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "enrich: failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runEnrichment(ctx, flags, logger); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Warn("interrupted", zap.Error(err))
			return 130
		}
		fmt.Fprintf(os.Stderr, "enrich: %v\n", err)
		return 1
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return 130
	}
	return 0
}

func runEnrichment(ctx context.Context, flags *cliFlags, logger *zap.Logger) error {
	processCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load process configuration: %w", err)
	}

	ef, warnings, err := config.LoadEnrichmentFile(flags.configPath)
	if err != nil {
		return fmt.Errorf("load enrichment config: %w", err)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	dsn := processCfg.Database.ConnectionString()
	if flags.dbPath != "" {
		dsn = flags.dbPath
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dsn,
		MaxConnections: processCfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer migrationDB.Close()
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	selected, err := selectEnrichments(ef, flags.enrichments)
	if err != nil {
		return err
	}

	providers, err := buildProviders(ctx, selected, flags.model, ef.DefaultModel, processCfg.Provider, logger)
	if err != nil {
		return err
	}

	auditLog := audit.NewLog(db)
	prompts := promptregistry.NewRegistry(db)
	store := outputstore.NewStore(db, logger)
	eng := engine.New(db, auditLog, prompts, store, logger,
		processCfg.Run.APISemaphoreLimit, processCfg.Run.DBSemaphoreLimit, processCfg.Run.CheckpointInterval)

	var rowIDPtr *int64
	if flags.rowID != "" {
		n, err := strconv.ParseInt(flags.rowID, 10, 64)
		if err != nil {
			return fmt.Errorf("--rowid: %w", err)
		}
		rowIDPtr = &n
	}

	confirm := buildConfirmFunc()

	for _, cfg := range selected {
		task, err := buildTask(cfg, ef, flags, providers, rowIDPtr)
		if err != nil {
			return fmt.Errorf("enrichment %q: %w", cfg.Name, err)
		}

		summary, err := eng.Run(ctx, *task, confirm)
		if err != nil {
			return fmt.Errorf("enrichment %q: %w", cfg.Name, err)
		}

		logger.Info("enrichment complete",
			zap.String("enrichment", cfg.Name),
			zap.Int("rows", summary.RowCount),
			zap.Int("processed", summary.Processed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("errored", summary.Errored),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

func selectEnrichments(ef *config.EnrichmentFile, requested string) ([]models.EnrichmentConfig, error) {
	names := strings.Split(requested, ",")
	byName := make(map[string]models.EnrichmentConfig, len(ef.Enrichments))
	for _, e := range ef.Enrichments {
		byName[e.Name] = e
	}

	var out []models.EnrichmentConfig
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		cfg, ok := byName[name]
		if !ok {
			return nil, engineerrors.NewConfigError(fmt.Sprintf("unknown enrichment %q", name), nil)
		}
		out = append(out, cfg)
	}
	if len(out) == 0 {
		return nil, engineerrors.NewConfigError("no valid enrichment names given", nil)
	}
	return out, nil
}

// buildProviders constructs one Provider per distinct model across every
// selected enrichment, respecting a run-wide --model override.
func buildProviders(ctx context.Context, selected []models.EnrichmentConfig, modelOverride, defaultModel string, providerCfg config.ProviderConfig, logger *zap.Logger) (map[string]llm.Provider, error) {
	distinct := map[string]bool{}
	for _, cfg := range selected {
		for _, m := range resolveModels(cfg, modelOverride, defaultModel) {
			distinct[m] = true
		}
	}

	providers := make(map[string]llm.Provider, len(distinct))
	for model := range distinct {
		breaker := llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig())
		provider, err := llm.NewProvider(ctx, model, providerCfg, breaker, logger)
		if err != nil {
			return nil, fmt.Errorf("construct provider for model %q: %w", model, err)
		}
		providers[model] = provider
	}
	return providers, nil
}

func resolveModels(cfg models.EnrichmentConfig, modelOverride, defaultModel string) []string {
	if modelOverride != "" {
		return []string{modelOverride}
	}
	if len(cfg.Models) > 0 {
		return cfg.Models
	}
	return []string{defaultModel}
}

func buildTask(cfg models.EnrichmentConfig, ef *config.EnrichmentFile, flags *cliFlags, providers map[string]llm.Provider, rowIDPtr *int64) (*engine.Task, error) {
	schemaNode, ok := cfg.SchemaNode.(*yaml.Node)
	if !ok || schemaNode == nil {
		return nil, engineerrors.NewConfigError("missing schema", nil)
	}
	desc, wireSchema, _, err := schema.Compile(schemaNode)
	if err != nil {
		return nil, engineerrors.NewConfigError("schema compilation failed", err)
	}

	inputTable := cfg.Table
	if inputTable == "" {
		inputTable = ef.DefaultTable
	}
	if cfg.Input.Query == "" {
		cfg.Input.Query = fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{inputTable}.Sanitize())
	}

	strat, _, err := strategy.Resolve(cfg, desc, inputTable)
	if err != nil {
		return nil, err
	}

	modelList := resolveModels(cfg, flags.model, ef.DefaultModel)
	modelSettings := make(map[string]engine.ModelCallSettings, len(modelList))
	for _, m := range modelList {
		if s, ok := ef.Models[m]; ok {
			modelSettings[m] = engine.ModelCallSettings{MaxTokens: s.MaxTokens, Temperature: s.Temperature}
		}
	}

	return &engine.Task{
		Enrichment:    cfg,
		Strategy:      strat,
		Descriptor:    desc,
		WireSchema:    wireSchema,
		Validator:     schema.NewValidator(desc),
		Models:        modelList,
		Providers:     providers,
		ModelSettings: modelSettings,
		NamedQueries:  ef.SQLQueries,
		Options: engine.Options{
			Overwrite:     flags.overwrite,
			Truncate:      flags.truncate,
			Verbose:       flags.verbose,
			CostThreshold: flags.costThreshold,
			SkipCostCheck: flags.skipCostCheck,
			Limit:         flags.limit,
			RowID:         rowIDPtr,
			SHA1:          flags.sha1,
		},
	}, nil
}

// buildConfirmFunc prompts on the controlling terminal before a run whose
// estimated cost exceeds the threshold (spec.md §4.7); a non-interactive
// stdin always proceeds.
func buildConfirmFunc() engine.ConfirmFunc {
	return func(breakdown cost.Breakdown) bool {
		stat, err := os.Stdin.Stat()
		if err != nil || (stat.Mode()&os.ModeCharDevice) == 0 {
			return true
		}
		fmt.Fprintf(os.Stderr, "Estimated cost for model %s over %d rows: $%.2f. Proceed? [y/N] ",
			breakdown.Model, breakdown.RowCount, breakdown.TotalCost)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
