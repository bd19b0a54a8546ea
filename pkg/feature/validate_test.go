package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beam() Element {
	return Element{
		ID:         "B1",
		Profile:    ProfileIBeam,
		Dimensions: Dimensions{Length: 1000, Height: 200, Width: 100},
	}
}

func hole(id string, x, d float64) Feature {
	return Feature{ID: id, Type: TypeHole, Position: Vec3{X: x}, Params: Params{"diameter": d}}
}

func TestValidateHoleOverlap(t *testing.T) {
	v := NewValidator(Tolerances{Position: 1, Hole: 0.5})
	warnings := v.Validate([]Feature{hole("h1", 0, 5), hole("h2", 3, 5)}, beam())
	require.Len(t, warnings, 1)
	assert.Equal(t, "features h1 and h2: holes overlap (distance 3.000 < required 5.500)", warnings[0])
}

func TestValidateHolesApart(t *testing.T) {
	v := NewValidator(DefaultTolerances())
	warnings := v.Validate([]Feature{hole("h1", 0, 5), hole("h2", 10, 5)}, beam())
	assert.Empty(t, warnings)
}

func TestValidateOnlyHolePairs(t *testing.T) {
	v := NewValidator(DefaultTolerances())
	slot := Feature{ID: "s1", Type: TypeSlot, Params: Params{"diameter": 50}}
	tapped := Feature{ID: "t1", Type: TypeTappedHole, Params: Params{"diameter": 50}}
	warnings := v.Validate([]Feature{hole("h1", 0, 5), slot, tapped}, beam())
	assert.Empty(t, warnings)
}

func TestValidateBounds(t *testing.T) {
	v := NewValidator(Tolerances{Position: 1})
	tests := []struct {
		name string
		pos  Vec3
		want int
	}{
		{"inside", Vec3{X: 100}, 0},
		{"on face", Vec3{X: 500}, 0},
		{"within tolerance", Vec3{X: 500.9}, 0},
		{"beyond tolerance", Vec3{X: 501.5}, 1},
		{"above", Vec3{Y: 150}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Feature{ID: "m1", Type: TypeMarking, Position: tt.pos}
			warnings := v.Validate([]Feature{f}, beam())
			assert.Len(t, warnings, tt.want)
		})
	}

	warnings := v.Validate([]Feature{{ID: "m1", Type: TypeMarking, Position: Vec3{Y: 150}}}, beam())
	require.Len(t, warnings, 1)
	assert.Equal(t, "feature m1 (marking): position (0, 150, 0) outside element bounds", warnings[0])
}

func TestValidateExtraRule(t *testing.T) {
	v := NewValidator(DefaultTolerances(), DuplicateID)
	fs := []Feature{
		{ID: "a", Type: TypeMarking},
		{ID: "a", Type: TypeText},
		{ID: "b", Type: TypeText},
	}
	warnings := v.Validate(fs, beam())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "duplicate id")
}
