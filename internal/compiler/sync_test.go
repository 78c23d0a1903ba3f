package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncframe/internal/ir"
)

func compileSyncSource(t *testing.T, src, id string) (*ir.SyncRule, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileSync(v.LookupPath(cue.ParsePath(`sync."` + id + `"`)))
}

func TestCompileSyncBasic(t *testing.T) {
	rule, err := compileSyncSource(t, `
		sync: "create-pet": {
			when: [{
				action: "Requesting.request"
				input:  {path: "/pets", name: "$name", session: "$session"}
				output: {request: "$request"}
			}]
			where: [{
				query: "Sessioning.user"
				in:    {session: "$session"}
				out:   {user: "$user"}
			}]
			then: [{
				action: "Pets.create"
				input:  {owner: "$user", name: "$name", price: "$$5", legs: 4}
			}]
		}
	`, "create-pet")
	require.NoError(t, err)

	assert.Equal(t, "create-pet", rule.ID)
	require.Len(t, rule.When, 1)
	assert.Equal(t, ir.Pattern{
		Concept: "Requesting",
		Method:  "request",
		Input: ir.Template{
			"path":    ir.Lit(ir.IRString("/pets")),
			"name":    ir.V("name"),
			"session": ir.V("session"),
		},
		Output: ir.Template{"request": ir.V("request")},
	}, rule.When[0])

	require.Len(t, rule.Where, 1)
	assert.Equal(t, ir.WhereStep{
		Kind:  ir.WhereQuery,
		Query: "Sessioning.user",
		In:    ir.Template{"session": ir.V("session")},
		Out:   map[string]ir.Var{"user": "user"},
	}, rule.Where[0])

	require.Len(t, rule.Then, 1)
	assert.Equal(t, ir.ActionCall{
		Concept: "Pets",
		Method:  "create",
		Input: ir.Template{
			"owner": ir.V("user"),
			"name":  ir.V("name"),
			"price": ir.Lit(ir.IRString("$5")),
			"legs":  ir.Lit(ir.IRInt(4)),
		},
	}, rule.Then[0])
}

func TestCompileSyncMultiPatternWhen(t *testing.T) {
	rule, err := compileSyncSource(t, `
		sync: "respond": {
			when: [
				{action: "Requesting.request", output: {request: "$request"}},
				{action: "Pets.create", output: {pet: "$pet"}},
			]
			then: [{action: "Requesting.respond", input: {request: "$request", pet: "$pet"}}]
		}
	`, "respond")
	require.NoError(t, err)

	require.Len(t, rule.When, 2)
	assert.Equal(t, "Requesting.request", rule.When[0].ActionRef())
	assert.Equal(t, "Pets.create", rule.When[1].ActionRef())
	assert.Nil(t, rule.When[1].Input)
	assert.Empty(t, rule.Where)
}

func TestCompileSyncWhereKinds(t *testing.T) {
	rule, err := compileSyncSource(t, `
		sync: "list": {
			when: [{action: "Requesting.request", input: {owner: "$owner"}, output: {request: "$request"}}]
			where: [
				{query: "Pets.byOwner", in: {owner: "$owner"}, out: {pet: "$pet", born: "$born"}},
				{optional_query: "Pets.photo", in: {pet: "$pet"}, out: {url: "$photo"}},
				{coerce_time: ["$born"]},
				{filter: "born > 0"},
				{dedupe: ["$pet"]},
				{collect: {by: ["$request"], fields: ["$pet", "$photo"], as: "$pets"}},
			]
			then: [{action: "Requesting.respond", input: {request: "$request", pets: "$pets"}}]
		}
	`, "list")
	require.NoError(t, err)

	require.Len(t, rule.Where, 6)
	kinds := make([]ir.WhereKind, len(rule.Where))
	for i, s := range rule.Where {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []ir.WhereKind{
		ir.WhereQuery, ir.WhereOptionalQuery, ir.WhereCoerceTime,
		ir.WhereFilter, ir.WhereDedupe, ir.WhereCollect,
	}, kinds)

	assert.Equal(t, "Pets.photo", rule.Where[1].Query)
	assert.Equal(t, []ir.Var{"born"}, rule.Where[2].Vars)
	assert.Equal(t, "born > 0", rule.Where[3].Expr)
	assert.Equal(t, []ir.Var{"pet"}, rule.Where[4].Vars)
	assert.Equal(t, ir.WhereStep{
		Kind:   ir.WhereCollect,
		Vars:   []ir.Var{"request"},
		Fields: []ir.Var{"pet", "photo"},
		As:     "pets",
	}, rule.Where[5])
}

func TestCompileSyncErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing when",
			body:    `then: [{action: "A.b"}]`,
			wantErr: "when clause is required",
		},
		{
			name:    "empty when",
			body:    `when: [], then: [{action: "A.b"}]`,
			wantErr: "at least one pattern",
		},
		{
			name:    "missing then",
			body:    `when: [{action: "A.b"}]`,
			wantErr: "then clause is required",
		},
		{
			name:    "bad action ref",
			body:    `when: [{action: "nodot"}], then: [{action: "A.b"}]`,
			wantErr: "invalid action reference",
		},
		{
			name:    "float literal",
			body:    `when: [{action: "A.b", input: {x: 1.5}}], then: [{action: "A.b"}]`,
			wantErr: "floats are not allowed",
		},
		{
			name:    "lone dollar",
			body:    `when: [{action: "A.b", input: {x: "$"}}], then: [{action: "A.b"}]`,
			wantErr: "empty variable name",
		},
		{
			name:    "two kinds in one step",
			body:    `when: [{action: "A.b"}], where: [{filter: "true", dedupe: ["$x"]}], then: [{action: "A.b"}]`,
			wantErr: "exactly one of",
		},
		{
			name:    "query without out",
			body:    `when: [{action: "A.b"}], where: [{query: "Q.q"}], then: [{action: "A.b"}]`,
			wantErr: "requires out bindings",
		},
		{
			name:    "dedupe literal",
			body:    `when: [{action: "A.b"}], where: [{dedupe: ["x"]}], then: [{action: "A.b"}]`,
			wantErr: "is not a variable",
		},
		{
			name:    "collect without as",
			body:    `when: [{action: "A.b"}], where: [{collect: {fields: ["$x"]}}], then: [{action: "A.b"}]`,
			wantErr: "collect requires as",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileSyncSource(t, `sync: "s": {`+tt.body+`}`, "s")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	err := &CompileError{Field: "when", Message: "when clause is required"}
	assert.Equal(t, "when: when clause is required", err.Error())
}
