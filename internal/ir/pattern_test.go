package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTerm(t *testing.T) {
	tests := []struct {
		name  string
		input IRValue
		want  Term
	}{
		{"variable", IRString("$user"), V("user")},
		{"escaped dollar", IRString("$$5"), Lit(IRString("$5"))},
		{"plain string", IRString("/pets"), Lit(IRString("/pets"))},
		{"int literal", IRInt(3), Lit(IRInt(3))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTerm(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseTerm(IRString("$"))
	assert.Error(t, err)
}

func TestTermJSONRoundTrip(t *testing.T) {
	tpl := Template{
		"path":  Lit(IRString("/x")),
		"id":    V("id"),
		"price": Lit(IRString("$5")),
	}

	data, err := json.Marshal(tpl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"$id","path":"/x","price":"$$5"}`, string(data))

	var back Template
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tpl, back)
}

func TestPatternVars(t *testing.T) {
	p := Pattern{
		Concept: "Requesting",
		Method:  "request",
		Input:   Template{"path": Lit(IRString("/x")), "id": V("id")},
		Output:  Template{"request": V("request")},
	}
	assert.Equal(t, []Var{"id", "request"}, p.Vars())
	assert.Equal(t, "Requesting.request", p.ActionRef())
}

func TestSplitActionRef(t *testing.T) {
	c, m, ok := SplitActionRef("Pets.create")
	assert.True(t, ok)
	assert.Equal(t, "Pets", c)
	assert.Equal(t, "create", m)

	_, _, ok = SplitActionRef("Pets")
	assert.False(t, ok)
	_, _, ok = SplitActionRef(".create")
	assert.False(t, ok)
}

func TestWhereStepBinds(t *testing.T) {
	q := WhereStep{Kind: WhereQuery, Out: map[string]Var{"user": "user"}}
	assert.Equal(t, []Var{"user"}, q.Binds())

	c := WhereStep{Kind: WhereCollect, As: "items"}
	assert.Equal(t, []Var{"items"}, c.Binds())

	f := WhereStep{Kind: WhereFilter, Expr: "true"}
	assert.Empty(t, f.Binds())
}
