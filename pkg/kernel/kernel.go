// Package kernel defines the abstract geometry kernel used to build
// machining tools, and the triangle mesh that represents the solid being
// machined. Implementations (sdfx) provide solid modeling behind the Kernel
// interface; the mesh utilities in this package (Carve, Merge, optimization)
// are kernel-agnostic and only rely on Solid.Evaluate.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() Box
	// Evaluate returns the signed distance from p to the surface:
	// negative inside, positive outside.
	Evaluate(p [3]float64) float64
}

// Kernel is the abstract geometry kernel interface.
// Primitives are centered on the origin; cylinders and cones run along Z.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) Solid
	RoundBox(x, y, z, radius float64) Solid
	Cylinder(height, radius float64, segments int) Solid
	Cone(height, bottomRadius, topRadius float64) Solid
	Prism(outline [][2]float64, height float64) (Solid, error) // outline in XY, extruded along Z

	// Boolean operations
	Union(s ...Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
