package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// CellType identifies the shape of a mesh cell
type CellType uint8

const (
	Quad CellType = iota // 2D, 4 vertices in lexicographic order
	Hex                  // 3D, 8 vertices in lexicographic order
	Tri                  // 2D simplex
	Tet                  // 3D simplex
)

// Local face definitions, as vertex indices within a cell
var faceTables = map[CellType][][]int{
	Quad: {{0, 2}, {1, 3}, {0, 1}, {2, 3}},
	Hex:  {{0, 2, 4, 6}, {1, 3, 5, 7}, {0, 1, 4, 5}, {2, 3, 6, 7}, {0, 1, 2, 3}, {4, 5, 6, 7}},
	Tri:  {{0, 1}, {1, 2}, {2, 0}},
	Tet:  {{0, 1, 2}, {0, 1, 3}, {1, 2, 3}, {0, 2, 3}},
}

var verticesPerCell = map[CellType]int{Quad: 4, Hex: 8, Tri: 3, Tet: 4}

// Face is a boundary face of the mesh, owned by exactly one cell
type Face struct {
	ID         int    // Index into Mesh.Boundary
	Cell       int    // Owning cell
	LocalFace  int    // Face index within the owning cell
	BoundaryID int    // Boundary indicator (colorized for generated boxes)
	Vertices   []int  // Global vertex ids
	Point      r3.Vec // Face centroid
	Normal     r3.Vec // Outward unit normal
	Plane      int    // Index into Mesh.Planes
}

// Plane is a set of coplanar boundary faces. Wall contacts are keyed by
// plane, not by face.
type Plane struct {
	ID     int
	Point  r3.Vec
	Normal r3.Vec // Outward unit normal
	Faces  []int
	Lo, Hi r3.Vec // Bounding box of the faces
}

// Mesh is the cell decomposition particles live in. Every process holds the
// full cell list; ownership of a cell is given by EToP.
type Mesh struct {
	Dim         int
	NumElements int
	Vertices    []r3.Vec
	EtoV        [][]int    // Cell to vertex connectivity
	Types       []CellType // Shape of each cell
	EToP        []int      // Cell to partition, nil until partitioned
	Boundary    []Face     // All boundary faces
	Planes      []Plane    // Distinct boundary planes
	Features    []Feature  // Reentrant boundary vertices and edges

	cellFaces    [][]int // [cell] -> indices into Boundary
	cellFeatures [][]int // [cell] -> indices into Features
	lo, hi    []r3.Vec
	locator   locator
}

type locator interface {
	locate(m *Mesh, p r3.Vec) (int, bool)
}

// NewMesh builds a mesh from raw connectivity and derives cell bounds and
// boundary faces. Inconsistent connectivity is a programming error.
func NewMesh(dim int, vertices []r3.Vec, etov [][]int, types []CellType) *Mesh {
	if dim != 2 && dim != 3 {
		panic(fmt.Errorf("mesh dimension must be 2 or 3, got %d", dim))
	}
	if len(etov) != len(types) {
		panic(fmt.Errorf("EtoV length %d does not match types length %d", len(etov), len(types)))
	}
	m := &Mesh{
		Dim:         dim,
		NumElements: len(etov),
		Vertices:    vertices,
		EtoV:        etov,
		Types:       types,
		locator:     scanLocator{},
	}
	for c, verts := range etov {
		if len(verts) != verticesPerCell[types[c]] {
			panic(fmt.Errorf("cell %d: expected %d vertices, got %d",
				c, verticesPerCell[types[c]], len(verts)))
		}
		for _, v := range verts {
			if v < 0 || v >= len(vertices) {
				panic(fmt.Errorf("cell %d references unknown vertex %d", c, v))
			}
		}
	}
	m.buildBounds()
	m.buildBoundary()
	m.buildPlanes()
	m.buildFeatures()
	return m
}

func (m *Mesh) buildBounds() {
	m.lo = make([]r3.Vec, m.NumElements)
	m.hi = make([]r3.Vec, m.NumElements)
	for c, verts := range m.EtoV {
		lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
		hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
		for _, v := range verts {
			lo, hi = utils.MinMax(lo, hi, m.Vertices[v])
		}
		m.lo[c], m.hi[c] = lo, hi
	}
}

type faceKey [4]int

func makeFaceKey(verts []int) faceKey {
	key := faceKey{-1, -1, -1, -1}
	sorted := append([]int(nil), verts...)
	sort.Ints(sorted)
	copy(key[:], sorted)
	return key
}

type faceOwner struct {
	cell, local int
}

// buildBoundary finds faces referenced by a single cell
func (m *Mesh) buildBoundary() {
	owners := make(map[faceKey][]faceOwner)
	for c, verts := range m.EtoV {
		for lf, local := range faceTables[m.Types[c]] {
			global := make([]int, len(local))
			for i, lv := range local {
				global[i] = verts[lv]
			}
			key := makeFaceKey(global)
			owners[key] = append(owners[key], faceOwner{cell: c, local: lf})
		}
	}

	m.cellFaces = make([][]int, m.NumElements)
	m.Boundary = m.Boundary[:0]
	// Traverse in cell order so face ids are deterministic
	for c, verts := range m.EtoV {
		for lf, local := range faceTables[m.Types[c]] {
			global := make([]int, len(local))
			for i, lv := range local {
				global[i] = verts[lv]
			}
			if len(owners[makeFaceKey(global)]) != 1 {
				continue
			}
			face := Face{
				ID:        len(m.Boundary),
				Cell:      c,
				LocalFace: lf,
				Vertices:  global,
			}
			m.orientFace(&face)
			m.Boundary = append(m.Boundary, face)
			m.cellFaces[c] = append(m.cellFaces[c], face.ID)
		}
	}
}

func (m *Mesh) orientFace(f *Face) {
	var center r3.Vec
	for _, v := range f.Vertices {
		center = r3.Add(center, m.Vertices[v])
	}
	center = r3.Scale(1/float64(len(f.Vertices)), center)
	f.Point = center

	v0 := m.Vertices[f.Vertices[0]]
	var n r3.Vec
	if len(f.Vertices) == 2 {
		e := r3.Sub(m.Vertices[f.Vertices[1]], v0)
		n = r3.Vec{X: e.Y, Y: -e.X}
	} else {
		n = r3.Cross(r3.Sub(m.Vertices[f.Vertices[1]], v0), r3.Sub(m.Vertices[f.Vertices[2]], v0))
	}
	n, _ = utils.SafeUnit(n)
	if r3.Dot(r3.Sub(center, m.Centroid(f.Cell)), n) < 0 {
		n = r3.Scale(-1, n)
	}
	f.Normal = n
}

type planeKey [4]int64

// buildPlanes groups boundary faces sharing a normal and a plane offset
func (m *Mesh) buildPlanes() {
	scale := 1.
	for _, v := range m.Vertices {
		scale = math.Max(scale, math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z))))
	}
	const resolution = 1e9
	round := func(x float64) int64 { return int64(math.Round(x * resolution)) }

	index := make(map[planeKey]int)
	m.Planes = m.Planes[:0]
	for i := range m.Boundary {
		f := &m.Boundary[i]
		n := f.Normal
		key := planeKey{round(n.X), round(n.Y), round(n.Z), round(r3.Dot(n, f.Point) / scale)}
		id, ok := index[key]
		if !ok {
			id = len(m.Planes)
			index[key] = id
			m.Planes = append(m.Planes, Plane{ID: id, Point: f.Point, Normal: n,
				Lo: m.Vertices[f.Vertices[0]], Hi: m.Vertices[f.Vertices[0]]})
		}
		f.Plane = id
		pl := &m.Planes[id]
		pl.Faces = append(pl.Faces, f.ID)
		for _, v := range f.Vertices {
			pl.Lo, pl.Hi = utils.MinMax(pl.Lo, pl.Hi, m.Vertices[v])
		}
	}
}

// Centroid returns the vertex average of cell c
func (m *Mesh) Centroid(c int) r3.Vec {
	var sum r3.Vec
	for _, v := range m.EtoV[c] {
		sum = r3.Add(sum, m.Vertices[v])
	}
	return r3.Scale(1/float64(len(m.EtoV[c])), sum)
}

// CellBounds returns the axis-aligned bounding box of cell c
func (m *Mesh) CellBounds(c int) (lo, hi r3.Vec) {
	return m.lo[c], m.hi[c]
}

// BoundaryFacesOf returns the boundary faces owned by cell c
func (m *Mesh) BoundaryFacesOf(c int) []Face {
	faces := make([]Face, len(m.cellFaces[c]))
	for i, id := range m.cellFaces[c] {
		faces[i] = m.Boundary[id]
	}
	return faces
}

// IsBoundaryCell returns true if cell c owns at least one boundary face
func (m *Mesh) IsBoundaryCell(c int) bool {
	return len(m.cellFaces[c]) > 0
}

// Locate returns the cell containing p
func (m *Mesh) Locate(p r3.Vec) (cell int, ok bool) {
	return m.locator.locate(m, p)
}

// VertexNeighbors returns, for every cell, the sorted list of other cells
// sharing at least one vertex with it.
func (m *Mesh) VertexNeighbors() [][]int {
	vertexCells := make([][]int, len(m.Vertices))
	for c, verts := range m.EtoV {
		for _, v := range verts {
			vertexCells[v] = append(vertexCells[v], c)
		}
	}
	neighbors := make([][]int, m.NumElements)
	for c, verts := range m.EtoV {
		seen := make(map[int]struct{})
		for _, v := range verts {
			for _, other := range vertexCells[v] {
				if other != c {
					seen[other] = struct{}{}
				}
			}
		}
		list := make([]int, 0, len(seen))
		for other := range seen {
			list = append(list, other)
		}
		sort.Ints(list)
		neighbors[c] = list
	}
	return neighbors
}

// MinCellSize returns the smallest bounding-box edge over all cells, ignoring
// the collapsed axis of 2D meshes.
func (m *Mesh) MinCellSize() float64 {
	size := math.Inf(1)
	for c := 0; c < m.NumElements; c++ {
		d := r3.Sub(m.hi[c], m.lo[c])
		for k := 0; k < m.Dim; k++ {
			size = math.Min(size, utils.Component(d, k))
		}
	}
	return size
}

// scanLocator tests every cell, with a bounding-box prefilter
type scanLocator struct{}

func (scanLocator) locate(m *Mesh, p r3.Vec) (int, bool) {
	for c := 0; c < m.NumElements; c++ {
		if !inBox(m.lo[c], m.hi[c], p, m.Dim) {
			continue
		}
		if m.contains(c, p) {
			return c, true
		}
	}
	return -1, false
}

const containTol = 1e-12

func inBox(lo, hi, p r3.Vec, dim int) bool {
	for k := 0; k < dim; k++ {
		x := utils.Component(p, k)
		span := utils.Component(hi, k) - utils.Component(lo, k)
		tol := containTol * math.Max(span, 1)
		if x < utils.Component(lo, k)-tol || x > utils.Component(hi, k)+tol {
			return false
		}
	}
	return true
}

func (m *Mesh) contains(c int, p r3.Vec) bool {
	v := m.EtoV[c]
	switch m.Types[c] {
	case Quad, Hex:
		// Generated boxes are axis aligned, the bounding box test is exact
		return true
	case Tri:
		a, b, d := m.Vertices[v[0]], m.Vertices[v[1]], m.Vertices[v[2]]
		return sameSide2D(a, b, d, p) && sameSide2D(b, d, a, p) && sameSide2D(d, a, b, p)
	case Tet:
		a, b, d, e := m.Vertices[v[0]], m.Vertices[v[1]], m.Vertices[v[2]], m.Vertices[v[3]]
		return sameSide3D(a, b, d, e, p) && sameSide3D(b, d, e, a, p) &&
			sameSide3D(d, e, a, b, p) && sameSide3D(e, a, b, d, p)
	}
	return false
}

// sameSide2D reports whether p lies on the same side of edge (a,b) as c
func sameSide2D(a, b, c, p r3.Vec) bool {
	e := r3.Sub(b, a)
	dc := e.X*(c.Y-a.Y) - e.Y*(c.X-a.X)
	dp := e.X*(p.Y-a.Y) - e.Y*(p.X-a.X)
	return dc*dp >= -containTol*math.Abs(dc)
}

// sameSide3D reports whether p lies on the same side of face (a,b,c) as d
func sameSide3D(a, b, c, d, p r3.Vec) bool {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	dd := r3.Dot(n, r3.Sub(d, a))
	dp := r3.Dot(n, r3.Sub(p, a))
	return dd*dp >= -containTol*math.Abs(dd)*r3.Norm(r3.Sub(d, a))
}
