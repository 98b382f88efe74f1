// Package jsondiff computes a key-level diff between two JSON objects.
package jsondiff

import (
	"encoding/json"
	"reflect"
)

// Change holds the before and after value of one modified key.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes is the diff of two objects. Nested objects are compared as whole
// values, not recursively.
type Changes struct {
	Added    map[string]any    `json:"added,omitempty"`
	Removed  map[string]any    `json:"removed,omitempty"`
	Modified map[string]Change `json:"modified,omitempty"`
}

// Empty reports whether no key differs.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Diff marshals old and new to JSON objects and compares them key by key.
// A nil side is treated as an empty object.
func Diff(old, new any) (Changes, error) {
	before, err := toObject(old)
	if err != nil {
		return Changes{}, err
	}
	after, err := toObject(new)
	if err != nil {
		return Changes{}, err
	}

	var c Changes
	for k, nv := range after {
		ov, ok := before[k]
		switch {
		case !ok:
			if c.Added == nil {
				c.Added = map[string]any{}
			}
			c.Added[k] = nv
		case !reflect.DeepEqual(ov, nv):
			if c.Modified == nil {
				c.Modified = map[string]Change{}
			}
			c.Modified[k] = Change{Old: ov, New: nv}
		}
	}
	for k, ov := range before {
		if _, ok := after[k]; !ok {
			if c.Removed == nil {
				c.Removed = map[string]any{}
			}
			c.Removed[k] = ov
		}
	}
	return c, nil
}

func toObject(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
