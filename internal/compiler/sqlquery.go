package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/syncframe/internal/queryir"
)

// SQLQuery is a named table lookup declared next to the rules:
//
//	sql_query: "Pets.byOwner": {
//		from:     "pets"
//		where:    {owner: "$user", status: "active"}
//		select:   {id: "pet", name: "name"}
//		order_by: ["name"]
//	}
//
// A "$arg" value in where reads that field of the query's args; anything
// else is a literal. select maps columns to row fields.
type SQLQuery struct {
	Name  string
	Query queryir.Select
}

// CompileSQLQuery parses a sql_query struct.
func CompileSQLQuery(v cue.Value) (*SQLQuery, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	q := &SQLQuery{}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		q.Name = sels[len(sels)-1].Unquoted()
	}

	from, err := parseString(v, "from", "from")
	if err != nil {
		return nil, err
	}
	q.Query.From = from

	selectVal := v.LookupPath(cue.ParsePath("select"))
	if !selectVal.Exists() {
		return nil, &CompileError{Field: "select", Message: "select is required", Pos: v.Pos()}
	}
	iter, err := selectVal.Fields()
	if err != nil {
		return nil, &CompileError{Field: "select", Message: "select must be a struct of column: field", Pos: selectVal.Pos()}
	}
	q.Query.Bindings = make(map[string]string)
	for iter.Next() {
		col := iter.Selector().Unquoted()
		field, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: "select." + col, Message: "field name must be a string", Pos: iter.Value().Pos()}
		}
		q.Query.Bindings[col] = field
	}

	if whereVal := v.LookupPath(cue.ParsePath("where")); whereVal.Exists() {
		tpl, err := parseTemplate(whereVal, "where")
		if err != nil {
			return nil, err
		}
		var preds []queryir.Predicate
		for _, col := range tpl.SortedFields() {
			term := tpl[col]
			if term.IsVar() {
				preds = append(preds, queryir.ArgEquals{Field: col, Arg: string(term.Var)})
			} else {
				preds = append(preds, queryir.Equals{Field: col, Value: term.Value})
			}
		}
		if len(preds) == 1 {
			q.Query.Filter = preds[0]
		} else if len(preds) > 1 {
			q.Query.Filter = queryir.And{Predicates: preds}
		}
	}

	if orderVal := v.LookupPath(cue.ParsePath("order_by")); orderVal.Exists() {
		list, err := orderVal.List()
		if err != nil {
			return nil, &CompileError{Field: "order_by", Message: "order_by must be a list of columns", Pos: orderVal.Pos()}
		}
		for i := 0; list.Next(); i++ {
			col, err := list.Value().String()
			if err != nil {
				return nil, &CompileError{Field: fmt.Sprintf("order_by[%d]", i), Message: "column must be a string", Pos: list.Value().Pos()}
			}
			q.Query.OrderBy = append(q.Query.OrderBy, col)
		}
	}

	if err := queryir.Validate(q.Query); err != nil {
		return nil, &CompileError{Field: "sql_query." + q.Name, Message: err.Error(), Pos: v.Pos()}
	}
	return q, nil
}
