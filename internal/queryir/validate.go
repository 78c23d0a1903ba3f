package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/syncframe/internal/ir"
)

// identPattern accepts column or table.column. Identifiers are
// interpolated into SQL, so anything else is rejected.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// tablePattern accepts a bare table name.
var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a query's structure. All problems are reported, joined.
func Validate(q Query) error {
	v := &validator{}
	v.query(q)
	return errors.Join(v.errs...)
}

// ValidIdent reports whether s can be used as a column reference.
func ValidIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Args returns the sorted, distinct arg names a query reads.
func Args(q Query) []string {
	var args []string
	var walkPred func(Predicate)
	walkPred = func(p Predicate) {
		switch pred := p.(type) {
		case ArgEquals:
			args = append(args, pred.Arg)
		case And:
			for _, sub := range pred.Predicates {
				walkPred(sub)
			}
		}
	}
	var walk func(Query)
	walk = func(q Query) {
		switch query := q.(type) {
		case Select:
			walkPred(query.Filter)
		case Join:
			walk(query.Left)
			walk(query.Right)
			walkPred(query.On)
		}
	}
	walk(q)
	slices.Sort(args)
	return slices.Compact(args)
}

// Fields returns the sorted row field names a query produces.
func Fields(q Query) []string {
	var fields []string
	var walk func(Query)
	walk = func(q Query) {
		switch query := q.(type) {
		case Select:
			for _, f := range query.Bindings {
				fields = append(fields, f)
			}
		case Join:
			walk(query.Left)
			walk(query.Right)
		}
	}
	walk(q)
	slices.Sort(fields)
	return slices.Compact(fields)
}

type validator struct {
	errs []error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf("nil query")
	case Select:
		v.selectNode(query)
	case Join:
		if _, ok := query.Left.(Select); !ok {
			v.addf("join left must be a Select, got %T", query.Left)
		}
		if _, ok := query.Right.(Select); !ok {
			v.addf("join right must be a Select, got %T", query.Right)
		}
		v.query(query.Left)
		v.query(query.Right)
		if query.On == nil {
			v.addf("join without ON condition")
		}
		v.predicate(query.On)
	default:
		v.addf("unknown query type %T", q)
	}
}

func (v *validator) selectNode(sel Select) {
	if !tablePattern.MatchString(sel.From) {
		v.addf("invalid table name %q", sel.From)
	}
	if len(sel.Bindings) == 0 {
		v.addf("select from %q has no bindings", sel.From)
	}
	seen := make(map[string]string, len(sel.Bindings))
	for col, field := range sel.Bindings {
		if !identPattern.MatchString(col) {
			v.addf("invalid column %q", col)
		}
		if field == "" {
			v.addf("column %q bound to empty field name", col)
		}
		if other, dup := seen[field]; dup {
			v.addf("field %q bound by both %q and %q", field, other, col)
		}
		seen[field] = col
	}
	for _, col := range sel.OrderBy {
		if !identPattern.MatchString(col) {
			v.addf("invalid order column %q", col)
		}
	}
	v.predicate(sel.Filter)
}

func (v *validator) predicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		if !identPattern.MatchString(pred.Field) {
			v.addf("invalid column %q", pred.Field)
		}
		switch pred.Value.(type) {
		case ir.IRString, ir.IRInt, ir.IRBool:
		case ir.IRNull:
			v.addf("column %q compared to null never matches", pred.Field)
		default:
			v.addf("column %q compared to unsupported value %T", pred.Field, pred.Value)
		}
	case ArgEquals:
		if !identPattern.MatchString(pred.Field) {
			v.addf("invalid column %q", pred.Field)
		}
		if pred.Arg == "" {
			v.addf("column %q compared to empty arg name", pred.Field)
		}
	case FieldsEqual:
		if !identPattern.MatchString(pred.Left) {
			v.addf("invalid column %q", pred.Left)
		}
		if !identPattern.MatchString(pred.Right) {
			v.addf("invalid column %q", pred.Right)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.predicate(sub)
		}
	default:
		v.addf("unknown predicate type %T", p)
	}
}
