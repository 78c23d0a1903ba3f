package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/syncframe/internal/compiler"
	"github.com/roach88/syncframe/internal/engine"
	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/querysql"
	"github.com/roach88/syncframe/internal/store"
	"github.com/roach88/syncframe/internal/testutil"
)

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	dbPath string
}

// WithLogger sends engine logs to l. By default they are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithDatabase runs the scenario against the SQLite file at path instead of
// a private in-memory database, leaving the audit trail behind for the
// trace command.
func WithDatabase(path string) Option {
	return func(c *runConfig) {
		c.dbPath = path
	}
}

// Run executes a scenario against the real engine.
//
// Each run gets a fresh store (in memory unless WithDatabase is given) that
// serves as the engine's recorder and as the host for seeded tables. Flow
// tokens and seq numbers are deterministic, so the trace of a scenario is
// stable across runs.
//
// The returned error covers setup problems only (specs that do not compile,
// unscripted concepts, bad seed data). Failed expectations are reported in
// Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dbPath: ":memory:",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	specs, errs := compiler.LoadSpecs(scenario.Specs...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("load specs: %w", errors.Join(errs...))
	}

	st, err := store.Open(cfg.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := seedTables(ctx, st, scenario.Tables); err != nil {
		return nil, err
	}

	queries, err := buildQueries(st, specs.SQLQueries, scenario.Queries)
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(scenario.Concepts)
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.EngineOption{
		engine.WithRecorder(st),
		engine.WithQueries(queries),
		engine.WithFlowGenerator(testutil.NewFixedFlowGenerator(scenario.FlowToken)),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithLogger(cfg.logger),
	}
	if scenario.MaxPasses > 0 {
		engineOpts = append(engineOpts, engine.WithMaxPasses(scenario.MaxPasses))
	}
	eng, err := engine.New(registry, engine.Rules(specs.Syncs...), engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	request, err := ir.ObjectFromGo(scenario.Request)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, herr := eng.Handle(ctx, request)

	result := NewResult()
	result.FlowToken = resp.FlowToken
	result.Response = resp.Body
	result.Trace = traceFromLog(resp.Log)
	if herr != nil {
		var de *engine.DispatchError
		if !errors.As(herr, &de) {
			return nil, herr
		}
		result.ErrorCode = string(de.Code)
	}

	firings, err := st.ReadFirings(ctx, resp.FlowToken)
	if err != nil {
		return nil, fmt.Errorf("read firings: %w", err)
	}
	for _, f := range firings {
		result.Firings = append(result.Firings, FiringEvent{
			SyncID:   f.SyncID,
			Pass:     f.Pass,
			Trail:    f.Trail,
			Produced: f.Produced,
		})
	}

	if scenario.Expect != nil {
		for _, msg := range checkExpect(scenario.Expect, result) {
			result.AddError(msg)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func checkExpect(expect *Expect, result *Result) []string {
	if expect.Error != "" {
		if result.ErrorCode == "" {
			return []string{fmt.Sprintf("expected error %s, got response %s", expect.Error, ir.String(result.Response))}
		}
		if result.ErrorCode != expect.Error {
			return []string{fmt.Sprintf("expected error %s, got %s", expect.Error, result.ErrorCode)}
		}
		return nil
	}

	if result.ErrorCode != "" {
		return []string{fmt.Sprintf("expected a response, got error %s", result.ErrorCode)}
	}
	want, err := ir.ObjectFromGo(expect.Response)
	if err != nil {
		return []string{fmt.Sprintf("expect.response: %v", err)}
	}
	if !subsetMatch(result.Response, want) {
		return []string{fmt.Sprintf("response %s does not contain %s", ir.String(result.Response), ir.String(want))}
	}
	return nil
}

// buildQueries compiles sql_query definitions into adapters over the
// store's database and adds the scripted queries. A name defined both ways
// is an error.
func buildQueries(st *store.Store, defs []compiler.SQLQuery, scripted map[string][]QueryCase) (map[string]engine.QueryFunc, error) {
	queries := make(map[string]engine.QueryFunc, len(defs)+len(scripted))
	for _, def := range defs {
		fn, err := querysql.Adapter(st.DB(), def.Query)
		if err != nil {
			return nil, fmt.Errorf("sql_query %s: %w", def.Name, err)
		}
		queries[def.Name] = fn
	}
	for name, cases := range scripted {
		if _, dup := queries[name]; dup {
			return nil, fmt.Errorf("query %s is defined by both a sql_query and the scenario", name)
		}
		fn, err := scriptedQuery(name, cases)
		if err != nil {
			return nil, err
		}
		queries[name] = fn
	}
	return queries, nil
}

// seedTables creates each table with the union of its rows' columns and
// inserts the rows. Columns are untyped; SQLite stores what it is given.
func seedTables(ctx context.Context, st *store.Store, tables map[string][]map[string]any) error {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	db := st.DB()
	for _, name := range names {
		rows := tables[name]
		colSet := make(map[string]bool)
		for _, row := range rows {
			for col := range row {
				colSet[col] = true
			}
		}
		cols := make([]string, 0, len(colSet))
		for col := range colSet {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		if len(cols) == 0 {
			return fmt.Errorf("tables.%s: at least one column is required", name)
		}

		// Names were checked by validateScenario.
		ddl := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(cols, ", "))
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("tables.%s: %w", name, err)
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(cols, ", "), placeholders)
		for i, row := range rows {
			args := make([]any, len(cols))
			for j, col := range cols {
				v, ok := row[col]
				if !ok {
					continue
				}
				param, err := seedValue(v)
				if err != nil {
					return fmt.Errorf("tables.%s[%d].%s: %w", name, i, col, err)
				}
				args[j] = param
			}
			if _, err := db.ExecContext(ctx, insert, args...); err != nil {
				return fmt.Errorf("tables.%s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

func seedValue(v any) (any, error) {
	val, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	switch val := val.(type) {
	case ir.IRArray, ir.IRObject:
		return nil, fmt.Errorf("nested values cannot be stored in a column")
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return ir.ToGo(val), nil
	}
}
