package kernel

import (
	"fmt"
	"math"
)

// maxRefineDepth bounds triangle subdivision around a tool surface.
const maxRefineDepth = 12

// Edge length limits for triangles that straddle a tool surface.
const (
	minEdge = 0.5
	maxEdge = 5.0
)

// Carve removes tool from m and returns a new mesh; m is not modified.
//
// Triangles of m that straddle the tool surface are subdivided until their
// edges are short relative to the tool footprint on that face. Triangles
// whose centroid lies inside the tool are dropped. The triangles of skin
// (the tessellated tool surface) that fall inside m's bounding box are
// added with reversed winding so they face into the cavity, their vertices
// clamped onto that box so cavity walls end flush with the faces they cut
// through. Skin triangles lying deep inside tool are taken to be clipping
// faces rather than tool surface and are skipped. skin may be nil.
func Carve(m *Mesh, tool Solid, skin *Mesh) (*Mesh, error) {
	if m == nil {
		return nil, fmt.Errorf("kernel: carve: nil mesh")
	}
	if m.Released() {
		return nil, fmt.Errorf("kernel: carve: %w", ErrReleased)
	}
	if tool == nil {
		return nil, fmt.Errorf("kernel: carve: nil tool")
	}

	tb := tool.BoundingBox()
	mb := m.BoundingBox()
	region := tb.Intersect(mb).Size()

	out := &Mesh{
		PartName: m.PartName,
		Vertices: append(make([]float32, 0, len(m.Vertices)), m.Vertices...),
		Normals:  append(make([]float32, 0, len(m.Vertices)), m.Normals...),
	}
	if len(out.Normals) != len(out.Vertices) {
		out.Normals = make([]float32, len(out.Vertices))
	}

	var refine func(t [3][3]float64, target float64, depth int)
	refine = func(t [3][3]float64, target float64, depth int) {
		if !triangleBox(t).Overlaps(tb) {
			out.appendTriangle(t[0], t[1], t[2])
			return
		}
		edge := longestEdge(t)
		d := tool.Evaluate(centroid(t))
		if math.Abs(d) <= edge && edge > target && depth < maxRefineDepth {
			ab := midpoint(t[0], t[1])
			bc := midpoint(t[1], t[2])
			ca := midpoint(t[2], t[0])
			refine([3][3]float64{t[0], ab, ca}, target, depth+1)
			refine([3][3]float64{ab, t[1], bc}, target, depth+1)
			refine([3][3]float64{ca, bc, t[2]}, target, depth+1)
			refine([3][3]float64{ab, bc, ca}, target, depth+1)
			return
		}
		if d < 0 {
			return
		}
		out.appendTriangle(t[0], t[1], t[2])
	}

	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		if !triangleBox(tri).Overlaps(tb) {
			out.Indices = append(out.Indices, m.Indices[t*3], m.Indices[t*3+1], m.Indices[t*3+2])
			continue
		}
		refine(tri, refineTarget(tri, region), 0)
	}

	if skin != nil && !skin.Released() {
		bounds := mb.Expand(1e-6)
		for t := 0; t < skin.TriangleCount(); t++ {
			tri := skin.Triangle(t)
			c := centroid(tri)
			if !bounds.Contains(c) || tool.Evaluate(c) < -longestEdge(tri) {
				continue
			}
			out.appendTriangle(mb.Clamp(tri[0]), mb.Clamp(tri[2]), mb.Clamp(tri[1]))
		}
	}

	out.compact()
	return out, nil
}

// refineTarget is the edge length to reach on triangle t: an eighth of the
// smaller in-plane extent of the tool region, clamped to [minEdge, maxEdge].
// The in-plane axes are the two not dominated by the face normal.
func refineTarget(t [3][3]float64, region [3]float64) float64 {
	n := faceNormal(t[0], t[1], t[2])
	axis := 0
	for a := 1; a < 3; a++ {
		if math.Abs(n[a]) > math.Abs(n[axis]) {
			axis = a
		}
	}
	smallest := math.Inf(1)
	for a := 0; a < 3; a++ {
		if a != axis && region[a] > 0 {
			smallest = math.Min(smallest, region[a])
		}
	}
	return math.Min(math.Max(smallest/8, minEdge), maxEdge)
}

// Merge returns a new mesh holding the triangles of m followed by those of
// addition. Neither input is modified.
func Merge(m, addition *Mesh) (*Mesh, error) {
	if m == nil {
		return nil, fmt.Errorf("kernel: merge: nil mesh")
	}
	if m.Released() {
		return nil, fmt.Errorf("kernel: merge: %w", ErrReleased)
	}
	out := m.Clone()
	out.Append(addition)
	return out, nil
}

// compact drops vertices that no triangle references.
func (m *Mesh) compact() {
	used := make([]bool, m.VertexCount())
	for _, idx := range m.Indices {
		used[idx] = true
	}
	remap := make([]uint32, len(used))
	vertices := make([]float32, 0, len(m.Vertices))
	normals := make([]float32, 0, len(m.Normals))
	for i, u := range used {
		if !u {
			continue
		}
		remap[i] = uint32(len(vertices) / 3)
		vertices = append(vertices, m.Vertices[i*3:i*3+3]...)
		if len(m.Normals) == len(m.Vertices) {
			normals = append(normals, m.Normals[i*3:i*3+3]...)
		}
	}
	for i, idx := range m.Indices {
		m.Indices[i] = remap[idx]
	}
	m.Vertices = vertices
	m.Normals = normals
}
