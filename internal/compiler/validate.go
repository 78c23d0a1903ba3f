package compiler

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"github.com/roach88/syncframe/internal/ir"
)

// Validation error codes (E110-E119)
const (
	ErrInvalidActionRef       = "E110" // invalid action reference format
	ErrInvalidWhereStep       = "E112" // malformed where step
	ErrInvalidFilter          = "E113" // filter expression does not compile
	ErrUndefinedBoundVariable = "E114" // variable used before it is bound
	ErrMissingSyncClause      = "E115" // missing required clause
	ErrDuplicateSyncID        = "E117" // two rules share an ID
)

// ValidationError represents a rule validation error.
type ValidationError struct {
	SyncID  string `json:"sync_id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.SyncID != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.SyncID, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// actionRefPattern matches "Concept.method".
// Concept starts with an uppercase letter, method with a lowercase letter.
var actionRefPattern = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*\.[a-z][a-zA-Z0-9]*$`)

// ValidateSyncs checks a rule set without a concept registry: reference
// format, clause shape, filter syntax and variable scoping. Returns all
// errors found (does not fail-fast).
//
// The engine repeats the registry-dependent checks (registered actions,
// known queries) when the rules are loaded.
func ValidateSyncs(rules []ir.SyncRule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if seen[rule.ID] {
			errs = append(errs, ValidationError{
				SyncID:  rule.ID,
				Field:   "id",
				Message: "duplicate sync id",
				Code:    ErrDuplicateSyncID,
			})
		}
		seen[rule.ID] = true
		errs = append(errs, ValidateSync(rule)...)
	}
	return errs
}

// ValidateSync checks one rule.
func ValidateSync(rule ir.SyncRule) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			SyncID:  rule.ID,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	if rule.ID == "" {
		add("id", ErrMissingSyncClause, "sync id is required")
	}
	if len(rule.When) == 0 {
		add("when", ErrMissingSyncClause, "when clause needs at least one pattern")
	}
	if len(rule.Then) == 0 {
		add("then", ErrMissingSyncClause, "then clause needs at least one action")
	}

	bound := make(map[ir.Var]bool)
	for i, p := range rule.When {
		if !actionRefPattern.MatchString(p.ActionRef()) {
			add(fmt.Sprintf("when[%d].action", i), ErrInvalidActionRef,
				"invalid action reference %q, expected format \"Concept.method\"", p.ActionRef())
		}
		for _, v := range p.Vars() {
			bound[v] = true
		}
	}

	for i, step := range rule.Where {
		field := fmt.Sprintf("where[%d]", i)
		requireBound := func(vars ...ir.Var) {
			for _, v := range vars {
				if !bound[v] {
					add(field, ErrUndefinedBoundVariable, "variable $%s is not bound before %s", v, step.Kind)
				}
			}
		}

		switch step.Kind {
		case ir.WhereQuery, ir.WhereOptionalQuery:
			if step.Query == "" {
				add(field, ErrInvalidWhereStep, "query name is required")
			}
			if len(step.Out) == 0 {
				add(field, ErrInvalidWhereStep, "query %q binds nothing", step.Query)
			}
			requireBound(step.In.Vars()...)
			for _, v := range step.Binds() {
				bound[v] = true
			}
		case ir.WhereFilter:
			if _, err := expr.Compile(step.Expr, expr.AllowUndefinedVariables(), expr.AsBool()); err != nil {
				add(field, ErrInvalidFilter, "filter %q: %v", step.Expr, err)
			}
		case ir.WhereDedupe, ir.WhereCoerceTime:
			if len(step.Vars) == 0 {
				add(field, ErrInvalidWhereStep, "%s needs at least one variable", step.Kind)
			}
			requireBound(step.Vars...)
		case ir.WhereCollect:
			requireBound(step.Vars...)
			requireBound(step.Fields...)
			if step.As == "" {
				add(field, ErrInvalidWhereStep, "collect needs an as variable")
			}
			// Only the group keys and the collected array survive.
			next := map[ir.Var]bool{step.As: true}
			for _, v := range step.Vars {
				next[v] = true
			}
			bound = next
		default:
			add(field, ErrInvalidWhereStep, "unknown where step kind %q", step.Kind)
		}
	}

	for i, c := range rule.Then {
		field := fmt.Sprintf("then[%d]", i)
		if !actionRefPattern.MatchString(c.ActionRef()) {
			add(field+".action", ErrInvalidActionRef,
				"invalid action reference %q, expected format \"Concept.method\"", c.ActionRef())
		}
		for _, name := range c.Input.SortedFields() {
			term := c.Input[name]
			if term.IsVar() && !bound[term.Var] {
				add(field+".input."+name, ErrUndefinedBoundVariable, "variable $%s is never bound", term.Var)
			}
		}
	}

	return errs
}
