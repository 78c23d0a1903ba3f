package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/syncframe/internal/ir"
)

// marshalObject converts an IRObject to canonical JSON TEXT. A nil object
// is stored as {}.
func marshalObject(obj ir.IRObject) (string, error) {
	if obj == nil {
		obj = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal object: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses stored JSON TEXT. Large integers keep their
// precision because IRObject decodes through json.Number.
func unmarshalObject(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return obj, nil
}

func marshalTrail(trail []int) string {
	if trail == nil {
		trail = []int{}
	}
	data, _ := json.Marshal(trail)
	return string(data)
}

func unmarshalTrail(data string) ([]int, error) {
	var trail []int
	if err := json.Unmarshal([]byte(data), &trail); err != nil {
		return nil, fmt.Errorf("unmarshal trail: %w", err)
	}
	return trail, nil
}
