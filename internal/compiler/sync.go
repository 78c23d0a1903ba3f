package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/syncframe/internal/ir"
)

// CompileSync parses a CUE value into a SyncRule.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the sync struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`sync: "create-pet": { ... }`)
//	rule, err := CompileSync(v.LookupPath(cue.ParsePath(`sync."create-pet"`)))
//
// Strings beginning with "$" in input, output and then templates are
// variables; "$$" escapes a literal dollar.
func CompileSync(v cue.Value) (*ir.SyncRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.SyncRule{}

	// The ID is the struct label, e.g. `sync: "create-pet": {...}`.
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	rule.When, err = parseWhen(v)
	if err != nil {
		return nil, err
	}

	whereVal := v.LookupPath(cue.ParsePath("where"))
	if whereVal.Exists() {
		rule.Where, err = parseWhere(whereVal)
		if err != nil {
			return nil, err
		}
	}

	rule.Then, err = parseThen(v)
	if err != nil {
		return nil, err
	}

	return rule, nil
}

// parseWhen extracts the ordered when patterns.
func parseWhen(v cue.Value) ([]ir.Pattern, error) {
	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return nil, &CompileError{
			Field:   "when",
			Message: "when clause is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := whenVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "when",
			Message: "when must be a list of patterns",
			Pos:     whenVal.Pos(),
		}
	}

	var patterns []ir.Pattern
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("when[%d]", i)
		p := iter.Value()

		ref, err := parseString(p, "action", field)
		if err != nil {
			return nil, err
		}
		concept, method, ok := ir.SplitActionRef(ref)
		if !ok {
			return nil, &CompileError{
				Field:   field + ".action",
				Message: fmt.Sprintf("invalid action reference %q, expected \"Concept.method\"", ref),
				Pos:     p.Pos(),
			}
		}

		input, err := parseTemplate(p.LookupPath(cue.ParsePath("input")), field+".input")
		if err != nil {
			return nil, err
		}
		output, err := parseTemplate(p.LookupPath(cue.ParsePath("output")), field+".output")
		if err != nil {
			return nil, err
		}

		patterns = append(patterns, ir.Pattern{
			Concept: concept,
			Method:  method,
			Input:   input,
			Output:  output,
		})
	}

	if len(patterns) == 0 {
		return nil, &CompileError{
			Field:   "when",
			Message: "when clause needs at least one pattern",
			Pos:     whenVal.Pos(),
		}
	}
	return patterns, nil
}

// whereKeys maps the CUE key that selects a step kind.
var whereKeys = []ir.WhereKind{
	ir.WhereQuery,
	ir.WhereOptionalQuery,
	ir.WhereFilter,
	ir.WhereDedupe,
	ir.WhereCoerceTime,
	ir.WhereCollect,
}

// parseWhere extracts the ordered where steps. Each step is a struct with
// exactly one of the kind keys:
//
//	{query: "Sessioning.user", in: {session: "$session"}, out: {user: "$user"}}
//	{optional_query: "Pets.photo", in: {pet: "$pet"}, out: {url: "$photo"}}
//	{filter: "born > 0"}
//	{dedupe: ["$pet"]}
//	{coerce_time: ["$born"]}
//	{collect: {by: ["$owner"], fields: ["$pet"], as: "$pets"}}
func parseWhere(v cue.Value) ([]ir.WhereStep, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "where",
			Message: "where must be a list of steps",
			Pos:     v.Pos(),
		}
	}

	var steps []ir.WhereStep
	for i := 0; iter.Next(); i++ {
		step, err := parseWhereStep(iter.Value(), fmt.Sprintf("where[%d]", i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseWhereStep(v cue.Value, field string) (ir.WhereStep, error) {
	var kinds []ir.WhereKind
	for _, k := range whereKeys {
		if v.LookupPath(cue.ParsePath(string(k))).Exists() {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) != 1 {
		return ir.WhereStep{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("step needs exactly one of query, optional_query, filter, dedupe, coerce_time, collect (found %d)", len(kinds)),
			Pos:     v.Pos(),
		}
	}

	step := ir.WhereStep{Kind: kinds[0]}
	body := v.LookupPath(cue.ParsePath(string(step.Kind)))
	path := field + "." + string(step.Kind)

	switch step.Kind {
	case ir.WhereQuery, ir.WhereOptionalQuery:
		name, err := body.String()
		if err != nil {
			return step, &CompileError{Field: path, Message: "query name must be a string", Pos: body.Pos()}
		}
		step.Query = name

		if step.In, err = parseTemplate(v.LookupPath(cue.ParsePath("in")), field+".in"); err != nil {
			return step, err
		}

		outVal := v.LookupPath(cue.ParsePath("out"))
		if !outVal.Exists() {
			return step, &CompileError{Field: field + ".out", Message: "query step requires out bindings", Pos: v.Pos()}
		}
		outIter, err := outVal.Fields()
		if err != nil {
			return step, &CompileError{Field: field + ".out", Message: "out must be a struct", Pos: outVal.Pos()}
		}
		step.Out = make(map[string]ir.Var)
		for outIter.Next() {
			name := outIter.Selector().Unquoted()
			bound, err := parseVar(outIter.Value(), field+".out."+name)
			if err != nil {
				return step, err
			}
			step.Out[name] = bound
		}

	case ir.WhereFilter:
		expr, err := body.String()
		if err != nil {
			return step, &CompileError{Field: path, Message: "filter must be a string expression", Pos: body.Pos()}
		}
		step.Expr = expr

	case ir.WhereDedupe, ir.WhereCoerceTime:
		vars, err := parseVarList(body, path)
		if err != nil {
			return step, err
		}
		step.Vars = vars

	case ir.WhereCollect:
		if by := body.LookupPath(cue.ParsePath("by")); by.Exists() {
			vars, err := parseVarList(by, path+".by")
			if err != nil {
				return step, err
			}
			step.Vars = vars
		}
		fields := body.LookupPath(cue.ParsePath("fields"))
		if !fields.Exists() {
			return step, &CompileError{Field: path + ".fields", Message: "collect requires fields", Pos: body.Pos()}
		}
		vars, err := parseVarList(fields, path+".fields")
		if err != nil {
			return step, err
		}
		step.Fields = vars

		as := body.LookupPath(cue.ParsePath("as"))
		if !as.Exists() {
			return step, &CompileError{Field: path + ".as", Message: "collect requires as", Pos: body.Pos()}
		}
		if step.As, err = parseVar(as, path+".as"); err != nil {
			return step, err
		}
	}

	return step, nil
}

// parseThen extracts the ordered then actions.
func parseThen(v cue.Value) ([]ir.ActionCall, error) {
	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   "then",
			Message: "then clause is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := thenVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "then",
			Message: "then must be a list of actions",
			Pos:     thenVal.Pos(),
		}
	}

	var calls []ir.ActionCall
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("then[%d]", i)
		c := iter.Value()

		ref, err := parseString(c, "action", field)
		if err != nil {
			return nil, err
		}
		concept, method, ok := ir.SplitActionRef(ref)
		if !ok {
			return nil, &CompileError{
				Field:   field + ".action",
				Message: fmt.Sprintf("invalid action reference %q, expected \"Concept.method\"", ref),
				Pos:     c.Pos(),
			}
		}

		input, err := parseTemplate(c.LookupPath(cue.ParsePath("input")), field+".input")
		if err != nil {
			return nil, err
		}
		calls = append(calls, ir.ActionCall{Concept: concept, Method: method, Input: input})
	}

	if len(calls) == 0 {
		return nil, &CompileError{
			Field:   "then",
			Message: "then clause needs at least one action",
			Pos:     thenVal.Pos(),
		}
	}
	return calls, nil
}
