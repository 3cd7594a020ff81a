// Package model defines the data types that flow between pipeline stages:
// the untyped RawRow produced by the Extractor, and the strongly-typed
// CanonicalEvent produced by the Transformer and consumed by the Upserter.
package model

import "fmt"

// Value is a tagged union of the shapes a RawRow field may hold. The
// Extractor is the only stage that produces Values; the Validator (for its
// shape check) and the Transformer are the only stages that inspect their
// Kind — everything downstream works with CanonicalEvent instead.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

type ValueKind int

const (
	KindNil ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func List(vs []Value) Value  { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// AsString returns the string representation of v regardless of its kind,
// which RawRow consumers rely on for loosely-typed source fields.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func (v Value) IsZero() bool { return v.Kind == KindNil }

// RawRow is the untyped field-map a Source Driver's Extractor produces for
// one event candidate. Keys are source-defined.
type RawRow map[string]Value

func (r RawRow) Get(key string) (Value, bool) {
	v, ok := r[key]
	return v, ok
}

// GetString returns the string form of key, or "" if absent.
func (r RawRow) GetString(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	return v.AsString()
}

// GetList returns the list form of key, or nil if absent or not a list.
func (r RawRow) GetList(key string) []Value {
	v, ok := r[key]
	if !ok || v.Kind != KindList {
		return nil
	}
	return v.List
}
