package tessellate_test

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/kerf/pkg/feature"
	"github.com/chazu/kerf/pkg/tessellate"
)

func ibeamElement() feature.Element {
	return feature.Element{
		ID:      "b1",
		Profile: feature.ProfileIBeam,
		Dimensions: feature.Dimensions{
			Length: 6000, Height: 300, Width: 150,
			FlangeThickness: 10, WebThickness: 8,
		},
	}
}

func TestPlate(t *testing.T) {
	el := feature.Element{
		ID:         "p1",
		Dimensions: feature.Dimensions{Length: 200, Thickness: 10, Width: 100},
	}
	m, err := tessellate.Profile(el)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if m.PartName != "p1" {
		t.Errorf("expected PartName %q, got %q", "p1", m.PartName)
	}
	if m.TriangleCount() != 12 {
		t.Errorf("expected 12 triangles, got %d", m.TriangleCount())
	}
	if got, want := m.BoundingBox(), el.Bounds(); got != want {
		t.Errorf("bounding box = %+v, want %+v", got, want)
	}
}

func TestSectionsMatchElementBounds(t *testing.T) {
	tests := []struct {
		name  string
		el    feature.Element
		boxes int
	}{
		{"ibeam", ibeamElement(), 3},
		{"channel", feature.Element{ID: "c", Profile: feature.ProfileChannel, Dimensions: feature.Dimensions{
			Length: 1000, Height: 200, Width: 75, Thickness: 8.5,
		}}, 3},
		{"angle", feature.Element{ID: "a", Profile: feature.ProfileAngle, Dimensions: feature.Dimensions{
			Length: 500, Height: 80, Width: 60, Thickness: 8,
		}}, 2},
		{"tube", feature.Element{ID: "t", Profile: feature.ProfileTube, Dimensions: feature.Dimensions{
			Length: 2000, Height: 100, Width: 100, Thickness: 5,
		}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tessellate.Profile(tt.el)
			if err != nil {
				t.Fatalf("Profile failed: %v", err)
			}
			if m.TriangleCount() != 12*tt.boxes {
				t.Errorf("expected %d triangles, got %d", 12*tt.boxes, m.TriangleCount())
			}
			got, want := m.BoundingBox(), tt.el.Bounds()
			for a := 0; a < 3; a++ {
				if math.Abs(got.Min[a]-want.Min[a]) > 1e-3 || math.Abs(got.Max[a]-want.Max[a]) > 1e-3 {
					t.Errorf("bounding box = %+v, want %+v", got, want)
					break
				}
			}
		})
	}
}

func TestIBeamWebIsCentered(t *testing.T) {
	m, err := tessellate.Profile(ibeamElement())
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	// Every vertex lies on a flange or on the web faces at z = ±4.
	for i := 0; i < m.VertexCount(); i++ {
		y := math.Abs(float64(m.Vertices[i*3+1]))
		z := math.Abs(float64(m.Vertices[i*3+2]))
		onFlange := y >= 140-1e-3
		onWeb := math.Abs(z-4) < 1e-3
		if !onFlange && !onWeb {
			t.Fatalf("vertex %d at y=%g z=%g is neither on a flange nor on the web", i, y, z)
		}
	}
}

func TestProfileErrors(t *testing.T) {
	tests := []struct {
		name string
		el   feature.Element
		want string
	}{
		{"zero length", feature.Element{ID: "x", Dimensions: feature.Dimensions{Thickness: 5, Width: 5}}, "length must be positive"},
		{"negative width", feature.Element{ID: "x", Dimensions: feature.Dimensions{Length: 10, Thickness: 5, Width: -1}}, "positive thickness and width"},
		{"ibeam without thickness", feature.Element{ID: "x", Profile: feature.ProfileIBeam, Dimensions: feature.Dimensions{
			Length: 10, Height: 100, Width: 50,
		}}, "thickness must be positive"},
		{"flanges too thick", feature.Element{ID: "x", Profile: feature.ProfileIBeam, Dimensions: feature.Dimensions{
			Length: 10, Height: 20, Width: 50, Thickness: 10,
		}}, "do not fit"},
		{"tube walls too thick", feature.Element{ID: "x", Profile: feature.ProfileTube, Dimensions: feature.Dimensions{
			Length: 10, Height: 20, Width: 20, Thickness: 10,
		}}, "does not fit"},
		{"unknown profile", feature.Element{ID: "x", Profile: "zed", Dimensions: feature.Dimensions{Length: 10}}, "unsupported profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tessellate.Profile(tt.el)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
			if !strings.Contains(err.Error(), "element x") {
				t.Errorf("error should name the element: %v", err)
			}
		})
	}
}
