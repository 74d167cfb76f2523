package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestHyperCube_Counts(t *testing.T) {
	tests := []struct {
		dim, refinement int
		cells, vertices int
		boundaryFaces   int
	}{
		{2, 0, 1, 4, 4},
		{2, 2, 16, 25, 16},
		{3, 1, 8, 27, 24},
		{3, 2, 64, 125, 96},
	}
	for _, tt := range tests {
		m := HyperCube(tt.dim, -1, 1, tt.refinement)
		if m.NumElements != tt.cells {
			t.Errorf("dim %d ref %d: expected %d cells, got %d", tt.dim, tt.refinement, tt.cells, m.NumElements)
		}
		if len(m.Vertices) != tt.vertices {
			t.Errorf("dim %d ref %d: expected %d vertices, got %d", tt.dim, tt.refinement, tt.vertices, len(m.Vertices))
		}
		if len(m.Boundary) != tt.boundaryFaces {
			t.Errorf("dim %d ref %d: expected %d boundary faces, got %d", tt.dim, tt.refinement, tt.boundaryFaces, len(m.Boundary))
		}
	}
}

func TestHyperCube_BoundaryNormalsPointOutward(t *testing.T) {
	m := HyperCube(3, -1, 1, 1)
	expected := map[int]r3.Vec{
		0: {X: -1}, 1: {X: 1},
		2: {Y: -1}, 3: {Y: 1},
		4: {Z: -1}, 5: {Z: 1},
	}
	for _, f := range m.Boundary {
		n, ok := expected[f.BoundaryID]
		if !ok {
			t.Fatalf("face %d has unexpected boundary id %d", f.ID, f.BoundaryID)
		}
		assert.InDelta(t, 1.0, r3.Dot(n, f.Normal), 1e-12, "face %d boundary %d", f.ID, f.BoundaryID)
		// The face centroid lies on the box surface
		assert.InDelta(t, 1.0, r3.Dot(n, f.Point), 1e-12)
	}
}

func TestHyperCube_Planes(t *testing.T) {
	m := HyperCube(3, -1, 1, 1)
	assert.Len(t, m.Planes, 6)
	for _, pl := range m.Planes {
		assert.Len(t, pl.Faces, 4)
		for _, id := range pl.Faces {
			f := m.Boundary[id]
			assert.Equal(t, pl.ID, f.Plane)
			assert.Equal(t, pl.Normal, f.Normal)
			// Every face of a plane shares its boundary id
			assert.Equal(t, m.Boundary[pl.Faces[0]].BoundaryID, f.BoundaryID)
		}
	}
}

func TestHyperCube_Locate(t *testing.T) {
	m := HyperCube(3, -1, 1, 2)
	tests := []struct {
		name string
		p    r3.Vec
		cell int
		ok   bool
	}{
		{"origin corner cell", r3.Vec{X: -0.9, Y: -0.9, Z: -0.9}, 0, true},
		{"upper face", r3.Vec{X: 1, Y: 1, Z: 1}, 63, true},
		{"interior", r3.Vec{X: 0.4, Y: 0, Z: 0}, 2 + 4*(2+4*2), true},
		{"outside", r3.Vec{X: 1.5}, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell, ok := m.Locate(tt.p)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cell, cell)
			if ok {
				lo, hi := m.CellBounds(cell)
				assert.True(t, inBox(lo, hi, tt.p, 3))
			}
		})
	}
}

func TestVertexNeighbors(t *testing.T) {
	m := HyperCube(2, 0, 1, 2) // 4x4 quads
	nb := m.VertexNeighbors()
	// Corner cell touches 3 cells, edge cell 5, interior cell 8
	assert.Len(t, nb[0], 3)
	assert.Len(t, nb[1], 5)
	assert.Len(t, nb[5], 8)
	for c, list := range nb {
		for _, other := range list {
			assert.Contains(t, nb[other], c, "neighbor relation must be symmetric")
		}
	}
}

func TestScanLocator_Tets(t *testing.T) {
	// Unit cube split into two tets sharing face (1,2,3)
	vertices := []r3.Vec{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1},
	}
	m := NewMesh(3, vertices, [][]int{{0, 1, 2, 3}, {1, 2, 3, 4}}, []CellType{Tet, Tet})

	cell, ok := m.Locate(r3.Vec{X: 0.1, Y: 0.1, Z: 0.1})
	assert.True(t, ok)
	assert.Equal(t, 0, cell)

	cell, ok = m.Locate(r3.Vec{X: 0.6, Y: 0.6, Z: 0.6})
	assert.True(t, ok)
	assert.Equal(t, 1, cell)

	_, ok = m.Locate(r3.Vec{X: 0.9, Y: 0.05, Z: 0.9})
	assert.False(t, ok)

	// 8 faces total, the shared one is interior
	assert.Len(t, m.Boundary, 6)
	assert.Equal(t, []int{1}, m.VertexNeighbors()[0])
}
