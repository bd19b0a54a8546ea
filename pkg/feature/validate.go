package feature

import "fmt"

// Tolerances are the geometric slack values used by validation and by the
// processors. Lengths are in element units, Angle in radians.
type Tolerances struct {
	Position float64 `json:"position" yaml:"position" toml:"position" validate:"gte=0"`
	Angle    float64 `json:"angle" yaml:"angle" toml:"angle" validate:"gte=0"`
	Hole     float64 `json:"hole" yaml:"hole" toml:"hole" validate:"gte=0"`
	Cut      float64 `json:"cut" yaml:"cut" toml:"cut" validate:"gte=0"`
}

// DefaultTolerances returns position 1.0, angle 0.01, hole 0.5, cut 0.5.
func DefaultTolerances() Tolerances {
	return Tolerances{Position: 1.0, Angle: 0.01, Hole: 0.5, Cut: 0.5}
}

// ConflictRule inspects one unordered pair of features and returns a
// warning message when they conflict.
type ConflictRule func(a, b Feature, tol Tolerances) (string, bool)

// Validator checks feature positions against element bounds and runs
// pairwise conflict rules. Its findings are advisory.
type Validator struct {
	tol   Tolerances
	rules []ConflictRule
}

// NewValidator returns a validator with the hole overlap rule followed by
// any extra rules.
func NewValidator(tol Tolerances, extra ...ConflictRule) *Validator {
	rules := make([]ConflictRule, 0, 1+len(extra))
	rules = append(rules, HoleOverlap)
	rules = append(rules, extra...)
	return &Validator{tol: tol, rules: rules}
}

// Tolerances returns the configured tolerances.
func (v *Validator) Tolerances() Tolerances { return v.tol }

// Validate returns one warning per out-of-bounds feature and one per
// conflicting pair, in the order of fs.
func (v *Validator) Validate(fs []Feature, el Element) []string {
	var warnings []string

	bounds := el.Bounds().Expand(v.tol.Position)
	for _, f := range fs {
		if !bounds.Contains(f.Position.Array()) {
			warnings = append(warnings, fmt.Sprintf("%s: position (%g, %g, %g) outside element bounds",
				f.Label(), f.Position.X, f.Position.Y, f.Position.Z))
		}
	}

	for i := 0; i < len(fs); i++ {
		for j := i + 1; j < len(fs); j++ {
			for _, rule := range v.rules {
				if msg, bad := rule(fs[i], fs[j], v.tol); bad {
					warnings = append(warnings, msg)
				}
			}
		}
	}
	return warnings
}

// HoleOverlap flags two plain holes closer than the sum of their radii
// plus the hole tolerance.
func HoleOverlap(a, b Feature, tol Tolerances) (string, bool) {
	if a.Type != TypeHole || b.Type != TypeHole {
		return "", false
	}
	da := a.Params.FloatOr("diameter", 0)
	db := b.Params.FloatOr("diameter", 0)
	required := da/2 + db/2 + tol.Hole
	dist := a.Position.Dist(b.Position)
	if dist >= required {
		return "", false
	}
	return fmt.Sprintf("features %s and %s: holes overlap (distance %.3f < required %.3f)",
		a.ID, b.ID, dist, required), true
}

// DuplicateID flags two features sharing an id. It is not enabled by
// default.
func DuplicateID(a, b Feature, _ Tolerances) (string, bool) {
	if a.ID == "" || a.ID != b.ID {
		return "", false
	}
	return fmt.Sprintf("features %s (%s) and %s (%s): duplicate id", a.ID, a.Type, b.ID, b.Type), true
}
