package engine

import (
	"fmt"
	"sort"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/kerf/pkg/feature"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms kerf script source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: butt-joint -> butt_joint
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a feature.Vec3.
type sexpVec3 struct {
	vec feature.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpFeatureRef is returned by the feature builtins.
type sexpFeatureRef struct {
	id  string
	typ feature.Type
}

func (r *sexpFeatureRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %q)", r.typ, r.id)
}
func (r *sexpFeatureRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value is a flag.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (feature.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return feature.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toParam converts a keyword argument into a feature parameter value.
// Lists are flattened into numbers so that outlines can be written either
// as a flat list or as nested pairs.
func toParam(s zygo.Sexp) (any, error) {
	if s == zygo.SexpNull {
		// A keyword with no value is a flag.
		return true, nil
	}
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpStr:
		return toKeywordString(v)
	case *sexpVec3:
		return []float64{v.vec.X, v.vec.Y, v.vec.Z}, nil
	}
	var out []float64
	if err := appendFloats(&out, s); err != nil {
		return nil, err
	}
	return out, nil
}

func appendFloats(out *[]float64, s zygo.Sexp) error {
	switch v := s.(type) {
	case *zygo.SexpInt, *zygo.SexpFloat:
		f, _ := toFloat64(v)
		*out = append(*out, f)
		return nil
	case *sexpVec3:
		*out = append(*out, v.vec.X, v.vec.Y, v.vec.Z)
		return nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return fmt.Errorf("unsupported value %s", s.SexpString(nil))
	}
	for _, item := range items {
		if err := appendFloats(out, item); err != nil {
			return err
		}
	}
	return nil
}

// paramName maps a keyword to its parameter key: sink-diameter becomes
// sink_diameter.
func paramName(kw string) string {
	return strings.ReplaceAll(kw, "-", "_")
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builder accumulates the declarations of one evaluation.
type builder struct {
	element  *feature.Element
	features []feature.Feature
}

func newBuilder() *builder { return &builder{} }

func (b *builder) script() *Script {
	return &Script{Element: b.element, Features: b.features}
}

func (b *builder) addFeature(f feature.Feature) (feature.Feature, error) {
	if f.ID == "" {
		id, err := DeriveID(f, len(b.features))
		if err != nil {
			return f, err
		}
		f.ID = id
	}
	b.features = append(b.features, f)
	return f, nil
}

// dimensionFields maps element keywords to dimension fields.
var dimensionFields = map[string]func(*feature.Dimensions) *float64{
	"length":           func(d *feature.Dimensions) *float64 { return &d.Length },
	"width":            func(d *feature.Dimensions) *float64 { return &d.Width },
	"height":           func(d *feature.Dimensions) *float64 { return &d.Height },
	"thickness":        func(d *feature.Dimensions) *float64 { return &d.Thickness },
	"flange_width":     func(d *feature.Dimensions) *float64 { return &d.FlangeWidth },
	"flange_thickness": func(d *feature.Dimensions) *float64 { return &d.FlangeThickness },
	"web_thickness":    func(d *feature.Dimensions) *float64 { return &d.WebThickness },
}

// registerBuiltins installs the script builtins into a zygomys environment.
// The builtins record declarations into b during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (element "b1" :profile :ibeam :length 6000 :height 300 :width 150)
	// -----------------------------------------------------------------------
	env.AddFunction("element", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if b.element != nil {
			return zygo.SexpNull, fmt.Errorf("element: already defined as %q", b.element.ID)
		}
		pa := parseArgs(args)
		el := feature.Element{}

		switch {
		case len(pa.positional) > 0:
			id, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("element: id: %w", err)
			}
			el.ID = id
		case pa.kw["id"] != nil:
			id, err := toString(pa.kw["id"])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("element: id: %w", err)
			}
			el.ID = id
		}
		if el.ID == "" {
			return zygo.SexpNull, fmt.Errorf("element: id is required")
		}

		for _, k := range sortedKeys(pa.kw) {
			v := pa.kw[k]
			switch key := paramName(k); key {
			case "id":
			case "profile":
				s, err := toKeywordString(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("element: profile: %w", err)
				}
				p, err := feature.ParseProfile(s)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("element: %w", err)
				}
				el.Profile = p
			default:
				field, ok := dimensionFields[key]
				if !ok {
					return zygo.SexpNull, fmt.Errorf("element: unknown keyword :%s", k)
				}
				f, err := toFloat64(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("element: %s: %w", k, err)
				}
				*field(&el.Dimensions) = f
			}
		}

		b.element = &el
		return &zygo.SexpStr{S: el.ID}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}

		return &sexpVec3{vec: feature.Vec3{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (hole :id "h1" :at (vec3 100 0 0) :diameter 18)
	// One builtin per feature type; tapped-hole is spelled tapped_hole after
	// preprocessing.
	// -----------------------------------------------------------------------
	for _, t := range feature.Types() {
		env.AddFunction(strings.ReplaceAll(t.String(), "-", "_"), featureBuiltin(b, t))
	}
}

func featureBuiltin(b *builder, t feature.Type) func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error) {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("%s: unexpected positional argument %s", t, pa.positional[0].SexpString(nil))
		}
		f := feature.Feature{Type: t, Params: feature.Params{}}

		for _, k := range sortedKeys(pa.kw) {
			v := pa.kw[k]
			switch key := paramName(k); key {
			case "id":
				id, err := toString(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: id: %w", t, err)
				}
				f.ID = id
			case "at":
				p, err := toVec3(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: at: %w", t, err)
				}
				f.Position = p
			default:
				pv, err := toParam(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: %s: %w", t, k, err)
				}
				f.Params[key] = pv
			}
		}
		if len(f.Params) == 0 {
			f.Params = nil
		}

		f, err := b.addFeature(f)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", t, err)
		}
		return &sexpFeatureRef{id: f.ID, typ: t}, nil
	}
}

func sortedKeys(m map[string]zygo.Sexp) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
