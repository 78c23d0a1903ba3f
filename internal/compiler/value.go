package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/syncframe/internal/ir"
)

// toIR converts a concrete CUE value into an IRValue. Floats and
// incomplete values are rejected.
func toIR(v cue.Value, field string) (ir.IRValue, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	switch v.IncompleteKind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := toIR(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := toIR(iter.Value(), field+"."+iter.Selector().Unquoted())
			if err != nil {
				return nil, err
			}
			obj[iter.Selector().Unquoted()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{Field: field, Message: "floats are not allowed, use int", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()), Pos: v.Pos()}
	}
}

// parseTemplate reads a struct of field: term pairs.
func parseTemplate(v cue.Value, field string) (ir.Template, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a struct", Pos: v.Pos()}
	}
	tpl := ir.Template{}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		path := field + "." + name
		raw, err := toIR(iter.Value(), path)
		if err != nil {
			return nil, err
		}
		term, err := ir.ParseTerm(raw)
		if err != nil {
			return nil, &CompileError{Field: path, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		tpl[name] = term
	}
	return tpl, nil
}

// parseVar reads a "$name" string.
func parseVar(v cue.Value, field string) (ir.Var, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a \"$variable\" string", Pos: v.Pos()}
	}
	term, err := ir.ParseTerm(ir.IRString(s))
	if err != nil || !term.IsVar() {
		return "", &CompileError{Field: field, Message: fmt.Sprintf("%q is not a variable", s), Pos: v.Pos()}
	}
	return term.Var, nil
}

// parseVarList reads a list of "$name" strings.
func parseVarList(v cue.Value, field string) ([]ir.Var, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of \"$variable\" strings", Pos: v.Pos()}
	}
	var vars []ir.Var
	for i := 0; iter.Next(); i++ {
		name, err := parseVar(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		vars = append(vars, name)
	}
	return vars, nil
}

// parseString reads a required string field.
func parseString(v cue.Value, path, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", &CompileError{Field: field, Message: fmt.Sprintf("%q is required", path), Pos: v.Pos()}
	}
	s, err := val.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: fmt.Sprintf("%q must be a string", path), Pos: val.Pos()}
	}
	return s, nil
}
