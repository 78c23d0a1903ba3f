package ir

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Var is a pattern variable, compared by value and scoped to one rule.
type Var string

// Term is either a variable or a literal value.
// The zero Term is invalid.
type Term struct {
	Var   Var
	Value IRValue
}

// V returns a variable term.
func V(name string) Term { return Term{Var: Var(name)} }

// Lit returns a literal term.
func Lit(v IRValue) Term { return Term{Value: v} }

// IsVar reports whether t is a variable.
func (t Term) IsVar() bool { return t.Var != "" }

func (t Term) String() string {
	if t.IsVar() {
		return "$" + string(t.Var)
	}
	return String(t.Value)
}

// ParseTerm interprets the rule-source encoding of a term: a string
// starting with "$" is a variable, "$$" escapes a literal dollar, and
// anything else is a literal.
func ParseTerm(v IRValue) (Term, error) {
	s, ok := v.(IRString)
	if !ok {
		return Lit(v), nil
	}
	switch {
	case strings.HasPrefix(string(s), "$$"):
		return Lit(IRString(s[1:])), nil
	case strings.HasPrefix(string(s), "$"):
		name := string(s[1:])
		if name == "" {
			return Term{}, fmt.Errorf("empty variable name")
		}
		return V(name), nil
	default:
		return Lit(s), nil
	}
}

// MarshalJSON writes the rule-source encoding, so compiled rules round-trip.
func (t Term) MarshalJSON() ([]byte, error) {
	if t.IsVar() {
		return json.Marshal("$" + string(t.Var))
	}
	if s, ok := t.Value.(IRString); ok && strings.HasPrefix(string(s), "$") {
		return json.Marshal("$" + string(s))
	}
	return MarshalIRValue(t.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Term) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	parsed, err := ParseTerm(v)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Template maps entry fields to terms.
type Template map[string]Term

// Vars returns the variables used in the template, sorted.
func (tpl Template) Vars() []Var {
	var out []Var
	for _, t := range tpl {
		if t.IsVar() {
			out = append(out, t.Var)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedFields returns template field names in lexical order.
func (tpl Template) SortedFields() []string {
	keys := make([]string, 0, len(tpl))
	for k := range tpl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pattern matches action entries by concept, method and field templates.
type Pattern struct {
	Concept string   `json:"concept"`
	Method  string   `json:"method"`
	Input   Template `json:"input,omitempty"`
	Output  Template `json:"output,omitempty"`
}

// ActionRef returns "Concept.method".
func (p Pattern) ActionRef() string { return ActionRefOf(p.Concept, p.Method) }

// Vars returns every variable the pattern binds.
func (p Pattern) Vars() []Var {
	return append(p.Input.Vars(), p.Output.Vars()...)
}

// ActionCall is a "then" invocation. Variable terms resolve from the frame.
type ActionCall struct {
	Concept string   `json:"concept"`
	Method  string   `json:"method"`
	Input   Template `json:"input,omitempty"`
}

// ActionRef returns "Concept.method".
func (c ActionCall) ActionRef() string { return ActionRefOf(c.Concept, c.Method) }
