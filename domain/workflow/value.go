package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is the tagged variant backing the substitution binding tree (§4.2,
// §9): a leaf is either a string or an integer, and interior nodes are
// string-keyed maps of Value. This replaces the dynamically-typed
// map[string]interface{} tree the source uses with something a Go accessor
// can walk without runtime type assertions scattered across call sites.
type Value struct {
	kind  valueKind
	str   string
	num   int64
	child map[string]Value
}

type valueKind int

const (
	valueKindStr valueKind = iota
	valueKindInt
	valueKindMap
)

// Str wraps a string leaf.
func Str(s string) Value { return Value{kind: valueKindStr, str: s} }

// Int wraps an integer leaf.
func Int(n int64) Value { return Value{kind: valueKindInt, num: n} }

// MapValue wraps a nested binding map.
func MapValue(m map[string]Value) Value { return Value{kind: valueKindMap, child: m} }

// IsZero reports whether v is the zero Value (absent).
func (v Value) IsZero() bool {
	return v.kind == valueKindStr && v.str == "" && v.child == nil
}

// String renders a leaf value as text for substitution. Map values render
// as empty string since they are never directly substituted.
func (v Value) String() string {
	switch v.kind {
	case valueKindInt:
		return strconv.FormatInt(v.num, 10)
	case valueKindStr:
		return v.str
	default:
		return ""
	}
}

// Get navigates a dot-separated path through the binding tree, returning
// the leaf or map Value found and whether the full path resolved.
func (v Value) Get(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	components := strings.Split(path, ".")
	cur := v
	for _, c := range components {
		if cur.kind != valueKindMap {
			return Value{}, false
		}
		next, ok := cur.child[c]
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// StringMap converts a flat map[string]string into a binding Value tree,
// used for config/inputs maps loaded from YAML.
func StringMap(m map[string]string) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = Str(v)
	}
	return MapValue(out)
}

// wireValue is Value's JSON-serializable shape, used by the persistence
// layer to store a workflow's config tree as a single JSON column.
type wireValue struct {
	Kind  string               `json:"kind"`
	Str   string               `json:"str,omitempty"`
	Num   int64                `json:"num,omitempty"`
	Child map[string]wireValue `json:"child,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var w wireValue
	switch v.kind {
	case valueKindInt:
		w = wireValue{Kind: "int", Num: v.num}
	case valueKindMap:
		w.Kind = "map"
		w.Child = make(map[string]wireValue, len(v.child))
		for k, c := range v.child {
			b, err := c.MarshalJSON()
			if err != nil {
				return nil, err
			}
			var cw wireValue
			if err := json.Unmarshal(b, &cw); err != nil {
				return nil, err
			}
			w.Child[k] = cw
		}
	default:
		w = wireValue{Kind: "str", Str: v.str}
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "int":
		*v = Int(w.Num)
	case "map":
		child := make(map[string]Value, len(w.Child))
		for k, c := range w.Child {
			b, err := json.Marshal(c)
			if err != nil {
				return err
			}
			var cv Value
			if err := json.Unmarshal(b, &cv); err != nil {
				return err
			}
			child[k] = cv
		}
		*v = MapValue(child)
	default:
		*v = Str(w.Str)
	}
	return nil
}

// raw unwraps a Value into a plain Go value suitable for re-encoding with a
// generic marshaler (yaml.v3), used when snapshotting a workflow document.
func (v Value) raw() interface{} {
	switch v.kind {
	case valueKindInt:
		return v.num
	case valueKindMap:
		out := make(map[string]interface{}, len(v.child))
		for k, c := range v.child {
			out[k] = c.raw()
		}
		return out
	default:
		return v.str
	}
}

// GoString supports debugging output of a Value tree.
func (v Value) GoString() string {
	switch v.kind {
	case valueKindStr:
		return fmt.Sprintf("Str(%q)", v.str)
	case valueKindInt:
		return fmt.Sprintf("Int(%d)", v.num)
	default:
		return fmt.Sprintf("Map(%d keys)", len(v.child))
	}
}
