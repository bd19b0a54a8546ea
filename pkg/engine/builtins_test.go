package engine

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/kerf/pkg/feature"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(element "b1" :profile :ibeam)`,
			expect: `(element "b1" "__kw_profile" "__kw_ibeam")`,
		},
		{
			name:   "multiple keywords",
			input:  `(hole :diameter 18 :depth 10)`,
			expect: `(hole "__kw_diameter" 18 "__kw_depth" 10)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(tapped-hole :sink-diameter d)`,
			expect: `(tapped_hole "__kw_sink-diameter" d)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:flange-thickness`,
			expect: `"__kw_flange-thickness"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Builtin tests
// ---------------------------------------------------------------------------

func mustEvaluate(t *testing.T, source string) *Script {
	t.Helper()
	s, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if s == nil {
		t.Fatal("expected non-nil script")
	}
	return s
}

func TestElement(t *testing.T) {
	s := mustEvaluate(t, `
(element "b1" :profile :hea :length 6000 :height 300 :width 150
         :flange-thickness 10.7 :web-thickness 7.1)
`)
	if s.Element == nil {
		t.Fatal("expected element")
	}
	want := feature.Element{
		ID:      "b1",
		Profile: feature.ProfileIBeam,
		Dimensions: feature.Dimensions{
			Length: 6000, Height: 300, Width: 150,
			FlangeThickness: 10.7, WebThickness: 7.1,
		},
	}
	if !reflect.DeepEqual(*s.Element, want) {
		t.Errorf("element = %+v, want %+v", *s.Element, want)
	}
}

func TestElementIDKeyword(t *testing.T) {
	s := mustEvaluate(t, `(element :id "p1" :profile :plate :length 200 :thickness 10 :width 100)`)
	if s.Element.ID != "p1" {
		t.Errorf("id = %q, want p1", s.Element.ID)
	}
	if s.Element.Dimensions.Extent() != [3]float64{200, 10, 100} {
		t.Errorf("extent = %v", s.Element.Dimensions.Extent())
	}
}

func TestElementErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"missing id", `(element :length 100)`, "id is required"},
		{"defined twice", `(element "a" :length 1) (element "b" :length 1)`, "already defined"},
		{"unknown keyword", `(element "a" :colour :red)`, "unknown keyword"},
		{"unknown profile", `(element "a" :profile :zed)`, "unknown profile"},
		{"non-numeric length", `(element "a" :length "long")`, "expected number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, evalErrs, err := NewEngine().Evaluate(tt.source)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if s != nil {
				t.Fatal("expected nil script")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected an eval error")
			}
			if !strings.Contains(evalErrs[0].Message, tt.want) {
				t.Errorf("message = %q, want containing %q", evalErrs[0].Message, tt.want)
			}
		})
	}
}

func TestFeatureBuiltins(t *testing.T) {
	s := mustEvaluate(t, `
(element "b1" :profile :plate :length 200 :thickness 10 :width 100)
(hole :id "h1" :at (vec3 -50 0 0) :diameter 18 :depth 10)
(tapped-hole :id "t1" :at (vec3 50 0 0) :diameter 12 :pitch 1.75 :axis :y)
(countersink :id "c1" :at (vec3 0 0 20) :diameter 8 :sink-diameter 16)
`)
	if len(s.Features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(s.Features))
	}

	h := s.Features[0]
	if h.ID != "h1" || h.Type != feature.TypeHole {
		t.Errorf("first feature = %s", h.Label())
	}
	if h.Position != (feature.Vec3{X: -50}) {
		t.Errorf("hole position = %+v", h.Position)
	}
	if d, _ := h.Params.Float("diameter"); d != 18 {
		t.Errorf("diameter = %v, want 18", d)
	}

	th := s.Features[1]
	if th.Type != feature.TypeTappedHole {
		t.Errorf("expected tapped-hole, got %s", th.Type)
	}
	if axis := th.Params.StringOr("axis", ""); axis != "y" {
		t.Errorf("axis = %q, want y", axis)
	}
	if p, _ := th.Params.Float("pitch"); p != 1.75 {
		t.Errorf("pitch = %v, want 1.75", p)
	}

	if sd, ok := s.Features[2].Params.Float("sink_diameter"); !ok || sd != 16 {
		t.Errorf("sink_diameter = %v (%v), want 16", sd, ok)
	}
}

func TestFeatureVariables(t *testing.T) {
	s := mustEvaluate(t, `
(def d 22)
(def pos (vec3 10 0 5))
(hole :id "h1" :at pos :diameter d)
`)
	f := s.Features[0]
	if f.Position != (feature.Vec3{X: 10, Z: 5}) {
		t.Errorf("position = %+v", f.Position)
	}
	if d, _ := f.Params.Float("diameter"); d != 22 {
		t.Errorf("diameter = %v, want 22", d)
	}
	if s.Element != nil {
		t.Error("expected no element")
	}
}

func TestFeatureListParams(t *testing.T) {
	s := mustEvaluate(t, `
(inner-contour :id "ic" :points [0 0 40 0 40 20 0 20])
(outer-contour :id "oc" :points [[0 0] [100 0] [100 50]])
(marking :id "m" :through)
`)
	pts, ok := s.Features[0].Params.Floats("points")
	if !ok || !reflect.DeepEqual(pts, []float64{0, 0, 40, 0, 40, 20, 0, 20}) {
		t.Errorf("inner points = %v (%v)", pts, ok)
	}
	pts, ok = s.Features[1].Params.Floats("points")
	if !ok || !reflect.DeepEqual(pts, []float64{0, 0, 100, 0, 100, 50}) {
		t.Errorf("outer points = %v (%v)", pts, ok)
	}
	if v, _ := s.Features[2].Params["through"].(bool); !v {
		t.Errorf("expected trailing keyword to be a true flag, got %v", s.Features[2].Params["through"])
	}
}

func TestFeatureTextParam(t *testing.T) {
	s := mustEvaluate(t, `(text :id "tx" :text "B1-07" :height 12)`)
	if txt := s.Features[0].Params.StringOr("text", ""); txt != "B1-07" {
		t.Errorf("text = %q, want B1-07", txt)
	}
}

func TestEveryTypeHasBuiltin(t *testing.T) {
	var b strings.Builder
	for _, typ := range feature.Types() {
		b.WriteString("(" + typ.String() + ` :id "` + typ.String() + `")` + "\n")
	}
	s := mustEvaluate(t, b.String())
	if len(s.Features) != len(feature.Types()) {
		t.Fatalf("expected %d features, got %d", len(feature.Types()), len(s.Features))
	}
	for i, typ := range feature.Types() {
		if s.Features[i].Type != typ || s.Features[i].ID != typ.String() {
			t.Errorf("feature %d = %s, want %s", i, s.Features[i].Label(), typ)
		}
	}
}

func TestFeatureRejectsPositional(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate(`(hole 18)`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) == 0 || !strings.Contains(evalErrs[0].Message, "positional") {
		t.Errorf("expected positional argument error, got %v", evalErrs)
	}
}

// ---------------------------------------------------------------------------
// Derived id tests
// ---------------------------------------------------------------------------

func TestDerivedIDs(t *testing.T) {
	source := `
(hole :at (vec3 0 0 0) :diameter 10)
(hole :at (vec3 0 0 0) :diameter 10)
(hole :at (vec3 50 0 0) :diameter 10)
`
	first := mustEvaluate(t, source)
	second := mustEvaluate(t, source)

	seen := map[string]bool{}
	for i, f := range first.Features {
		if f.ID == "" {
			t.Fatalf("feature %d has no id", i)
		}
		if seen[f.ID] {
			t.Errorf("duplicate derived id %s", f.ID)
		}
		seen[f.ID] = true
		if second.Features[i].ID != f.ID {
			t.Errorf("feature %d id not stable: %s vs %s", i, f.ID, second.Features[i].ID)
		}
	}
}

func TestDeriveIDIgnoresExistingID(t *testing.T) {
	f := feature.Feature{Type: feature.TypeHole, Params: feature.Params{"diameter": 10.0}}
	a, err := DeriveID(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.ID = "named"
	b, err := DeriveID(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("derived id depends on existing id: %s vs %s", a, b)
	}
	c, _ := DeriveID(f, 1)
	if c == a {
		t.Error("ordinal should change the derived id")
	}
}

// ---------------------------------------------------------------------------
// Feature file tests
// ---------------------------------------------------------------------------

const beamYAML = `
element:
  id: b1
  profile: HEA
  dimensions: {length: 6000, height: 300, width: 150}
features:
  - id: h1
    type: hole
    position: {x: 100}
    params: {diameter: 18}
  - type: outer_contour
    params:
      points: [0, 0, 100, 0, 100, 50]
`

func TestDecodeYAML(t *testing.T) {
	s, err := DecodeYAML([]byte(beamYAML))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Element == nil || s.Element.ID != "b1" || s.Element.Profile != feature.ProfileIBeam {
		t.Fatalf("element = %+v", s.Element)
	}
	if len(s.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(s.Features))
	}
	if d, _ := s.Features[0].Params.Float("diameter"); d != 18 {
		t.Errorf("diameter = %v", d)
	}
	oc := s.Features[1]
	if oc.Type != feature.TypeOuterContour || oc.ID == "" {
		t.Errorf("second feature = %s", oc.Label())
	}
	if pts, ok := oc.Params.Floats("points"); !ok || len(pts) != 6 {
		t.Errorf("points = %v", pts)
	}
}

func TestDecodeYAMLErrors(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{"unknown field", "colour: red\n", "decode yaml"},
		{"unknown type", "features:\n  - {type: laser}\n", "unknown type"},
		{"missing type", "features:\n  - {id: x}\n", "unknown type"},
		{"element without id", "element: {profile: plate}\n", "id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeYAML([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestEvaluateFile(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "beam.yaml")
	if err := os.WriteFile(yml, []byte(beamYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	lisp := filepath.Join(dir, "beam.kerf")
	if err := os.WriteFile(lisp, []byte(`(element "b1" :length 100 :thickness 5 :width 20) (hole :id "h" :diameter 4)`), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := NewEngine()
	for _, path := range []string{yml, lisp} {
		s, evalErrs, err := eng.EvaluateFile(path)
		if err != nil || len(evalErrs) > 0 {
			t.Fatalf("%s: err=%v evalErrs=%v", path, err, evalErrs)
		}
		if s.Element == nil || s.Element.ID != "b1" {
			t.Errorf("%s: element = %+v", path, s.Element)
		}
	}

	if _, _, err := eng.EvaluateFile(filepath.Join(dir, "missing.kerf")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(bad, []byte("features: [{type: laser}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, evalErrs, err := eng.EvaluateFile(bad)
	if err != nil || s != nil || len(evalErrs) != 1 {
		t.Errorf("bad yaml: script=%v evalErrs=%v err=%v", s, evalErrs, err)
	}
}
