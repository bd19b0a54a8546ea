// Package feature defines the machining instructions applied to a
// structural element: the element descriptor, the closed set of feature
// types with their application priority, the parameter bag, and the
// advisory validator run before processing.
package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Vec3 is a position in the element's local frame (mm).
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Array returns v as a fixed array.
func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Dist returns the Euclidean distance between v and o.
func (v Vec3) Dist(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Params is the type-specific parameter bag of a feature. Values are
// numbers, strings, booleans or lists of numbers.
type Params map[string]any

// Float returns a numeric parameter.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// FloatOr returns a numeric parameter or def when it is absent or not a
// number.
func (p Params) FloatOr(key string, def float64) float64 {
	if f, ok := p.Float(key); ok {
		return f
	}
	return def
}

// IntOr returns a numeric parameter rounded to the nearest integer.
func (p Params) IntOr(key string, def int) int {
	if f, ok := p.Float(key); ok {
		return int(math.Round(f))
	}
	return def
}

// Floats returns a list of numbers.
func (p Params) Floats(key string) ([]float64, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []float64:
		return vv, true
	case []int:
		out := make([]float64, len(vv))
		for i, n := range vv {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, len(vv))
		for i, e := range vv {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// String returns a string parameter.
func (p Params) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// StringOr returns a string parameter or def.
func (p Params) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Feature is one machining instruction. Features are values; nothing in
// this module mutates one after construction.
type Feature struct {
	ID       string `json:"id" yaml:"id"`
	Type     Type   `json:"type" yaml:"type"`
	Position Vec3   `json:"position" yaml:"position"`
	Params   Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// Label formats the feature for error and warning messages.
func (f Feature) Label() string {
	return fmt.Sprintf("feature %s (%s)", f.ID, f.Type)
}

// Canonical returns a deterministic encoding of the feature. Map keys are
// sorted by encoding/json.
func (f Feature) Canonical() ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("feature: encode %s: %w", f.ID, err)
	}
	return b, nil
}

// Rejected is a feature whose parameters have no canonical encoding, such
// as a NaN or infinite number.
type Rejected struct {
	Feature Feature
	Err     error
}

// SplitEncodable separates the features that cannot be encoded from the
// rest. The order of fs is kept in both results.
func SplitEncodable(fs []Feature) ([]Feature, []Rejected) {
	var rejected []Rejected
	ok := make([]Feature, 0, len(fs))
	for _, f := range fs {
		if _, err := f.Canonical(); err != nil {
			rejected = append(rejected, Rejected{Feature: f, Err: fmt.Errorf("unencodable parameters: %w", errors.Unwrap(err))})
			continue
		}
		ok = append(ok, f)
	}
	return ok, rejected
}

// Sorted returns a copy of fs in canonical order: type priority, type tag,
// id, then canonical encoding. The result does not depend on the input
// order.
func Sorted(fs []Feature) ([]Feature, error) {
	type keyed struct {
		f   Feature
		enc []byte
	}
	ks := make([]keyed, len(fs))
	for i, f := range fs {
		enc, err := f.Canonical()
		if err != nil {
			return nil, err
		}
		ks[i] = keyed{f: f, enc: enc}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.f.Type != b.f.Type {
			return Less(a.f.Type, b.f.Type)
		}
		if a.f.ID != b.f.ID {
			return a.f.ID < b.f.ID
		}
		return bytes.Compare(a.enc, b.enc) < 0
	})
	out := make([]Feature, len(ks))
	for i, k := range ks {
		out[i] = k.f
	}
	return out, nil
}

// Group is the features of one type in canonical order.
type Group struct {
	Type     Type
	Features []Feature
}

// GroupByType splits fs into one group per type, ordered by priority.
func GroupByType(fs []Feature) ([]Group, error) {
	sorted, err := Sorted(fs)
	if err != nil {
		return nil, err
	}
	var groups []Group
	for _, f := range sorted {
		if n := len(groups); n > 0 && groups[n-1].Type == f.Type {
			groups[n-1].Features = append(groups[n-1].Features, f)
			continue
		}
		groups = append(groups, Group{Type: f.Type, Features: []Feature{f}})
	}
	return groups, nil
}
