package kernel

import "math"

// Box is an axis-aligned bounding box.
type Box struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// CenteredBox returns a box of the given size centered on the origin.
func CenteredBox(x, y, z float64) Box {
	return Box{
		Min: [3]float64{-x / 2, -y / 2, -z / 2},
		Max: [3]float64{x / 2, y / 2, z / 2},
	}
}

// Size returns the box extent along each axis.
func (b Box) Size() [3]float64 {
	return sub(b.Max, b.Min)
}

// Center returns the midpoint of the box.
func (b Box) Center() [3]float64 {
	return [3]float64{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Volume returns the box volume. Inverted boxes have zero volume.
func (b Box) Volume() float64 {
	s := b.Size()
	if s[0] <= 0 || s[1] <= 0 || s[2] <= 0 {
		return 0
	}
	return s[0] * s[1] * s[2]
}

// Expand grows the box by d on every side.
func (b Box) Expand(d float64) Box {
	return Box{
		Min: [3]float64{b.Min[0] - d, b.Min[1] - d, b.Min[2] - d},
		Max: [3]float64{b.Max[0] + d, b.Max[1] + d, b.Max[2] + d},
	}
}

// Contains reports whether p lies inside the box (boundary included).
func (b Box) Contains(p [3]float64) bool {
	for a := 0; a < 3; a++ {
		if p[a] < b.Min[a] || p[a] > b.Max[a] {
			return false
		}
	}
	return true
}

// Overlaps reports whether two boxes intersect (touching counts).
func (b Box) Overlaps(o Box) bool {
	for a := 0; a < 3; a++ {
		if b.Max[a] < o.Min[a] || o.Max[a] < b.Min[a] {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two boxes. Disjoint boxes give an
// inverted box with zero Volume.
func (b Box) Intersect(o Box) Box {
	var r Box
	for a := 0; a < 3; a++ {
		r.Min[a] = math.Max(b.Min[a], o.Min[a])
		r.Max[a] = math.Min(b.Max[a], o.Max[a])
	}
	return r
}

// Clamp returns the point of b closest to p.
func (b Box) Clamp(p [3]float64) [3]float64 {
	for a := 0; a < 3; a++ {
		p[a] = math.Min(math.Max(p[a], b.Min[a]), b.Max[a])
	}
	return p
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func length(a [3]float64) float64 {
	return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
}

func midpoint(a, b [3]float64) [3]float64 {
	return [3]float64{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2, (a[2] + b[2]) / 2}
}

func centroid(t [3][3]float64) [3]float64 {
	return [3]float64{
		(t[0][0] + t[1][0] + t[2][0]) / 3,
		(t[0][1] + t[1][1] + t[2][1]) / 3,
		(t[0][2] + t[1][2] + t[2][2]) / 3,
	}
}

func faceNormal(a, b, c [3]float64) [3]float64 {
	n := cross(sub(b, a), sub(c, a))
	l := length(n)
	if l < 1e-12 {
		return [3]float64{}
	}
	return [3]float64{n[0] / l, n[1] / l, n[2] / l}
}

func triangleBox(t [3][3]float64) Box {
	b := Box{Min: t[0], Max: t[0]}
	for _, p := range t[1:] {
		for a := 0; a < 3; a++ {
			b.Min[a] = math.Min(b.Min[a], p[a])
			b.Max[a] = math.Max(b.Max[a], p[a])
		}
	}
	return b
}

func longestEdge(t [3][3]float64) float64 {
	return math.Max(length(sub(t[1], t[0])),
		math.Max(length(sub(t[2], t[1])), length(sub(t[0], t[2]))))
}
