package querysql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/syncframe/internal/ir"
	"github.com/roach88/syncframe/internal/queryir"
)

// ErrMissingArg is returned when an ArgEquals predicate names an arg the
// call did not provide.
var ErrMissingArg = errors.New("missing query arg")

// Compile converts a query into parameterized SQLite, reading ArgEquals
// values from args.
//
// Every statement ends in ORDER BY with rowid tiebreakers so results are
// deterministic. Values are always parameters; identifiers are checked by
// queryir.Validate before they reach the SQL text.
func Compile(q queryir.Query, args ir.IRObject) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	c := &compiler{args: args}
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case queryir.Join:
		return c.compileJoin(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

type compiler struct {
	args   ir.IRObject
	params []any
}

func (c *compiler) compileSelect(q queryir.Select) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(compileBindings(q.Bindings))
	b.WriteString(" FROM ")
	b.WriteString(q.From)

	if q.Filter != nil {
		where, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy(q.OrderBy, "rowid"))
	return b.String(), c.params, nil
}

func (c *compiler) compileJoin(j queryir.Join) (string, []any, error) {
	left := j.Left.(queryir.Select)
	right := j.Right.(queryir.Select)

	bindings := make(map[string]string, len(left.Bindings)+len(right.Bindings))
	for col, field := range left.Bindings {
		bindings[col] = field
	}
	for col, field := range right.Bindings {
		bindings[col] = field
	}

	on, err := c.compilePredicate(j.On)
	if err != nil {
		return "", nil, fmt.Errorf("compile join ON: %w", err)
	}

	var filters []string
	for _, side := range []queryir.Select{left, right} {
		if side.Filter == nil {
			continue
		}
		sql, err := c.compilePredicate(side.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile %s filter: %w", side.From, err)
		}
		filters = append(filters, sql)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s INNER JOIN %s ON %s",
		compileBindings(bindings), left.From, right.From, on)
	if len(filters) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(filters, " AND "))
	}

	order := append(slices.Clone(left.OrderBy), right.OrderBy...)
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy(order, left.From+".rowid", right.From+".rowid"))
	return b.String(), c.params, nil
}

// compileBindings renders the column list with quoted field aliases.
// Columns are sorted for deterministic output.
func compileBindings(bindings map[string]string) string {
	cols := make([]string, 0, len(bindings))
	for col := range bindings {
		cols = append(cols, col)
	}
	slices.Sort(cols)

	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + " AS " + quoteIdent(bindings[col])
	}
	return strings.Join(parts, ", ")
}

func orderBy(cols []string, tiebreakers ...string) string {
	parts := make([]string, 0, len(cols)+len(tiebreakers))
	for _, col := range cols {
		parts = append(parts, col+" ASC")
	}
	for _, col := range tiebreakers {
		parts = append(parts, col+" ASC")
	}
	return strings.Join(parts, ", ")
}

// quoteIdent quotes a row field name for use as a column alias.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (c *compiler) compilePredicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil
	case queryir.Equals:
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", pred.Field, err)
		}
		c.params = append(c.params, param)
		return pred.Field + " = ?", nil
	case queryir.ArgEquals:
		v, ok := c.args[pred.Arg]
		if !ok {
			return "", fmt.Errorf("%w %q", ErrMissingArg, pred.Arg)
		}
		param, err := irValueToParam(v)
		if err != nil {
			return "", fmt.Errorf("arg %q: %w", pred.Arg, err)
		}
		c.params = append(c.params, param)
		return pred.Field + " = ?", nil
	case queryir.FieldsEqual:
		return pred.Left + " = " + pred.Right, nil
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		for _, sub := range pred.Predicates {
			sql, err := c.compilePredicate(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, sql)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// irValueToParam converts a scalar IRValue to a SQL parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
