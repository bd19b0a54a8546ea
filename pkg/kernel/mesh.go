package kernel

import (
	"errors"
	"math"
)

// ErrReleased is returned when an operation is attempted on a mesh whose
// buffers have already been released.
var ErrReleased = errors.New("kernel: mesh has been released")

// Mesh is a triangle mesh. It is the solid that flows through the feature
// pipeline. All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // element the mesh belongs to

	released bool
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Clone returns a deep copy of the mesh. The copy shares no buffers with m.
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return nil
	}
	c := &Mesh{PartName: m.PartName, released: m.released}
	if m.Vertices != nil {
		c.Vertices = append(make([]float32, 0, len(m.Vertices)), m.Vertices...)
	}
	if m.Normals != nil {
		c.Normals = append(make([]float32, 0, len(m.Normals)), m.Normals...)
	}
	if m.Indices != nil {
		c.Indices = append(make([]uint32, 0, len(m.Indices)), m.Indices...)
	}
	return c
}

// Release drops the mesh buffers. A released mesh is empty and reports
// Released() == true. Releasing twice is a no-op.
func (m *Mesh) Release() {
	if m == nil {
		return
	}
	m.Vertices = nil
	m.Normals = nil
	m.Indices = nil
	m.released = true
}

// Released reports whether Release has been called.
func (m *Mesh) Released() bool {
	return m != nil && m.released
}

// Vertex returns vertex i as float64 coordinates.
func (m *Mesh) Vertex(i uint32) [3]float64 {
	return [3]float64{
		float64(m.Vertices[i*3]),
		float64(m.Vertices[i*3+1]),
		float64(m.Vertices[i*3+2]),
	}
}

// Triangle returns the three corners of triangle t.
func (m *Mesh) Triangle(t int) [3][3]float64 {
	return [3][3]float64{
		m.Vertex(m.Indices[t*3]),
		m.Vertex(m.Indices[t*3+1]),
		m.Vertex(m.Indices[t*3+2]),
	}
}

// BoundingBox returns the axis-aligned bounding box of the vertices.
// An empty mesh returns the zero box.
func (m *Mesh) BoundingBox() Box {
	if m.IsEmpty() {
		return Box{}
	}
	b := Box{
		Min: [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)},
		Max: [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)},
	}
	for i := 0; i < len(m.Vertices); i += 3 {
		for a := 0; a < 3; a++ {
			v := float64(m.Vertices[i+a])
			if v < b.Min[a] {
				b.Min[a] = v
			}
			if v > b.Max[a] {
				b.Max[a] = v
			}
		}
	}
	return b
}

// appendTriangle adds an unshared triangle with a flat face normal.
func (m *Mesh) appendTriangle(a, b, c [3]float64) {
	n := faceNormal(a, b, c)
	base := uint32(len(m.Vertices) / 3)
	for _, p := range [3][3]float64{a, b, c} {
		m.Vertices = append(m.Vertices, float32(p[0]), float32(p[1]), float32(p[2]))
		m.Normals = append(m.Normals, float32(n[0]), float32(n[1]), float32(n[2]))
	}
	m.Indices = append(m.Indices, base, base+1, base+2)
}

// Append copies every triangle of other into m.
func (m *Mesh) Append(other *Mesh) {
	if other == nil {
		return
	}
	base := uint32(len(m.Vertices) / 3)
	m.Vertices = append(m.Vertices, other.Vertices...)
	if len(other.Normals) == len(other.Vertices) {
		m.Normals = append(m.Normals, other.Normals...)
	} else {
		m.Normals = append(m.Normals, make([]float32, len(other.Vertices))...)
	}
	for _, idx := range other.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
}

// ComputeNormals regenerates per-vertex normals by averaging the face
// normals of all triangles incident on each vertex.
func (m *Mesh) ComputeNormals() {
	numVerts := len(m.Vertices) / 3
	normals := make([]float64, numVerts*3)

	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		e1 := sub(tri[1], tri[0])
		e2 := sub(tri[2], tri[0])
		// Unnormalized: larger faces weigh more.
		n := cross(e1, e2)
		for j := 0; j < 3; j++ {
			idx := m.Indices[t*3+j]
			normals[idx*3] += n[0]
			normals[idx*3+1] += n[1]
			normals[idx*3+2] += n[2]
		}
	}

	out := make([]float32, numVerts*3)
	for i := 0; i < numVerts; i++ {
		n := [3]float64{normals[i*3], normals[i*3+1], normals[i*3+2]}
		l := length(n)
		if l > 1e-12 {
			out[i*3] = float32(n[0] / l)
			out[i*3+1] = float32(n[1] / l)
			out[i*3+2] = float32(n[2] / l)
		}
	}
	m.Normals = out
}

// MergeVertices welds vertices closer than tol into one and drops
// triangles that become degenerate. Vertex order of first occurrence is
// preserved so the result is deterministic.
func (m *Mesh) MergeVertices(tol float64) {
	if m.IsEmpty() {
		return
	}
	if tol <= 0 {
		tol = 1e-6
	}

	type cell [3]int64
	quantize := func(p [3]float64) cell {
		return cell{
			int64(math.Floor(p[0]/tol + 0.5)),
			int64(math.Floor(p[1]/tol + 0.5)),
			int64(math.Floor(p[2]/tol + 0.5)),
		}
	}

	remap := make([]uint32, m.VertexCount())
	seen := make(map[cell]uint32, m.VertexCount())
	vertices := make([]float32, 0, len(m.Vertices))
	for i := 0; i < m.VertexCount(); i++ {
		p := m.Vertex(uint32(i))
		key := quantize(p)
		if idx, ok := seen[key]; ok {
			remap[i] = idx
			continue
		}
		idx := uint32(len(vertices) / 3)
		seen[key] = idx
		remap[i] = idx
		vertices = append(vertices, m.Vertices[i*3:i*3+3]...)
	}

	indices := make([]uint32, 0, len(m.Indices))
	for t := 0; t < m.TriangleCount(); t++ {
		a := remap[m.Indices[t*3]]
		b := remap[m.Indices[t*3+1]]
		c := remap[m.Indices[t*3+2]]
		if a == b || b == c || a == c {
			continue
		}
		indices = append(indices, a, b, c)
	}

	m.Vertices = vertices
	m.Indices = indices
	m.ComputeNormals()
}

// BoxMesh returns a closed axis-aligned box mesh with outward facing
// triangles and flat normals (36 unshared vertices, 12 triangles).
func BoxMesh(b Box) *Mesh {
	x0, y0, z0 := b.Min[0], b.Min[1], b.Min[2]
	x1, y1, z1 := b.Max[0], b.Max[1], b.Max[2]
	p := [8][3]float64{
		{x0, y0, z0}, {x1, y0, z0}, {x1, y1, z0}, {x0, y1, z0},
		{x0, y0, z1}, {x1, y0, z1}, {x1, y1, z1}, {x0, y1, z1},
	}
	// Counter-clockwise seen from outside.
	quads := [6][4]int{
		{0, 3, 2, 1}, // -Z
		{4, 5, 6, 7}, // +Z
		{0, 1, 5, 4}, // -Y
		{3, 7, 6, 2}, // +Y
		{0, 4, 7, 3}, // -X
		{1, 2, 6, 5}, // +X
	}
	m := &Mesh{}
	for _, q := range quads {
		m.appendTriangle(p[q[0]], p[q[1]], p[q[2]])
		m.appendTriangle(p[q[0]], p[q[2]], p[q[3]])
	}
	return m
}
