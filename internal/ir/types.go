package ir

// SyncRule is a compiled when/where/then rule.
type SyncRule struct {
	ID    string       `json:"id"`
	When  []Pattern    `json:"when"`
	Where []WhereStep  `json:"where,omitempty"`
	Then  []ActionCall `json:"then"`
}

// WhereKind names a declarative frame transform.
type WhereKind string

const (
	// WhereQuery joins each frame with the rows of a named query (inner join).
	WhereQuery WhereKind = "query"
	// WhereOptionalQuery is the left-join variant: frames without rows pass through.
	WhereOptionalQuery WhereKind = "optional_query"
	// WhereFilter keeps frames for which Expr evaluates to true.
	WhereFilter WhereKind = "filter"
	// WhereDedupe drops frames whose values for Vars were already seen.
	WhereDedupe WhereKind = "dedupe"
	// WhereCoerceTime rewrites RFC 3339 strings in Vars to epoch milliseconds.
	WhereCoerceTime WhereKind = "coerce_time"
	// WhereCollect groups frames by Vars and binds As to an array of Fields.
	WhereCollect WhereKind = "collect"
)

// ValidWhereKinds lists the kinds the engine knows how to compile.
var ValidWhereKinds = map[WhereKind]bool{
	WhereQuery:         true,
	WhereOptionalQuery: true,
	WhereFilter:        true,
	WhereDedupe:        true,
	WhereCoerceTime:    true,
	WhereCollect:       true,
}

// WhereStep is one declarative transform in a rule's where clause.
// Which fields apply depends on Kind.
type WhereStep struct {
	Kind   WhereKind      `json:"kind"`
	Query  string         `json:"query,omitempty"`
	In     Template       `json:"in,omitempty"`
	Out    map[string]Var `json:"out,omitempty"`
	Expr   string         `json:"expr,omitempty"`
	Vars   []Var          `json:"vars,omitempty"`
	Fields []Var          `json:"fields,omitempty"`
	As     Var            `json:"as,omitempty"`
}

// Binds returns the variables this step adds to surviving frames.
func (s WhereStep) Binds() []Var {
	switch s.Kind {
	case WhereQuery, WhereOptionalQuery:
		out := make([]Var, 0, len(s.Out))
		for _, v := range s.Out {
			out = append(out, v)
		}
		return out
	case WhereCollect:
		if s.As != "" {
			return []Var{s.As}
		}
	}
	return nil
}
