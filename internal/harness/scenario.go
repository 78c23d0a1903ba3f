package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/queryir"
)

// Scenario is one request run against a rule set with scripted concepts.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Specs lists CUE files or directories holding sync and sql_query
	// definitions. Relative paths resolve against the scenario file.
	Specs []string `yaml:"specs"`

	// FlowToken fixes the request's token. Defaults to
	// testutil.DefaultFlowToken.
	FlowToken string `yaml:"flow_token,omitempty"`

	// MaxPasses overrides the engine's pass budget when positive.
	MaxPasses int `yaml:"max_passes,omitempty"`

	// Request is the Requesting.request input.
	Request map[string]any `yaml:"request"`

	// Concepts scripts each "Concept.method" the rules call. Cases are
	// tried in order; the first whose When is a subset of the input wins.
	Concepts map[string][]ConceptCase `yaml:"concepts,omitempty"`

	// Queries scripts named where-clause lookups.
	Queries map[string][]QueryCase `yaml:"queries,omitempty"`

	// Tables seeds rows read by sql_query definitions.
	Tables map[string][]map[string]any `yaml:"tables,omitempty"`

	Expect     *Expect     `yaml:"expect,omitempty"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ConceptCase is one scripted concept response.
type ConceptCase struct {
	// When is matched as a subset of the call's input. Empty matches all.
	When map[string]any `yaml:"when,omitempty"`

	// Output is returned on success. An output carrying an "error" field
	// is an error shape, as a real concept would return.
	Output map[string]any `yaml:"output,omitempty"`

	// Fail makes the call return a Go error with this message.
	Fail string `yaml:"fail,omitempty"`
}

// QueryCase is one scripted lookup result.
type QueryCase struct {
	When map[string]any   `yaml:"when,omitempty"`
	Rows []map[string]any `yaml:"rows,omitempty"`
	Fail string           `yaml:"fail,omitempty"`
}

// Expect checks the request's terminal result: a response body (subset
// match) or a dispatch error code.
type Expect struct {
	Response map[string]any `yaml:"response,omitempty"`
	Error    string         `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final database state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is "Concept.method" (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Input and Output are subset-matched against entries (trace_contains).
	Input  map[string]any `yaml:"input,omitempty"`
	Output map[string]any `yaml:"output,omitempty"`

	// Actions must appear in this order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the exact number of entries for Action (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect select one row and subset-match it
	// (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// reservedTables belong to the audit store and cannot be seeded.
var reservedTables = map[string]bool{
	"entries":    true,
	"firings":    true,
	"provenance": true,
	"outcomes":   true,
}

// LoadScenario reads a scenario file. Unknown fields are rejected so a
// typo such as "assertion:" fails loudly. Spec paths are resolved against
// the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// FindScenarios returns the *.yaml and *.yml files directly inside dir,
// sorted by name.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); err != nil {
			return fmt.Errorf("spec path not found: %s", specPath)
		}
	}
	if s.MaxPasses < 0 {
		return fmt.Errorf("max_passes must be non-negative")
	}
	if _, err := ir.ObjectFromGo(s.Request); err != nil {
		return fmt.Errorf("request: %w", err)
	}

	for ref := range s.Concepts {
		if _, _, ok := ir.SplitActionRef(ref); !ok {
			return fmt.Errorf("concepts: %q is not Concept.method", ref)
		}
	}
	for table, rows := range s.Tables {
		if !queryir.ValidIdent(table) || reservedTables[table] {
			return fmt.Errorf("tables: invalid table name %q", table)
		}
		for i, row := range rows {
			for col := range row {
				if !queryir.ValidIdent(col) {
					return fmt.Errorf("tables.%s[%d]: invalid column name %q", table, i, col)
				}
			}
		}
	}

	if s.Expect != nil && s.Expect.Error != "" && s.Expect.Response != nil {
		return fmt.Errorf("expect: response and error are mutually exclusive")
	}
	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
