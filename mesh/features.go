package mesh

import (
	"math"
	"sort"

	"github.com/notargets/DEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// FeatureKind tells a boundary vertex from a boundary edge line
type FeatureKind uint8

const (
	PointFeature FeatureKind = iota
	LineFeature
)

func (k FeatureKind) String() string {
	if k == LineFeature {
		return "line"
	}
	return "point"
}

// Feature is a reentrant corner of the boundary, where the solid juts into
// the domain: a vertex, or in 3D an edge line. Particles in its reach touch
// neither adjacent wall plane.
type Feature struct {
	ID        int
	Kind      FeatureKind
	Point     r3.Vec   // The vertex, or the line origin
	Direction r3.Vec   // Unit line direction, zero for points
	Lo, Hi    float64  // Extent of a line along Direction from Point
	Away      []r3.Vec // Reach is where dot(x-Point, a) <= 0 for every a
	Cells     []int    // Cells holding a vertex of the feature
}

// Closest returns the point of the feature nearest to x, if x lies in the
// feature's reach
func (f *Feature) Closest(x r3.Vec) (r3.Vec, bool) {
	d := r3.Sub(x, f.Point)
	for _, a := range f.Away {
		if r3.Dot(d, a) > featureTol*r3.Norm(d) {
			return r3.Vec{}, false
		}
	}
	if f.Kind == PointFeature {
		return f.Point, true
	}
	t := r3.Dot(d, f.Direction)
	span := f.Hi - f.Lo
	if t < f.Lo-featureTol*span || t > f.Hi+featureTol*span {
		return r3.Vec{}, false
	}
	return r3.Add(f.Point, r3.Scale(t, f.Direction)), true
}

// FeaturesOf returns the ids of the features touching cell c
func (m *Mesh) FeaturesOf(c int) []int {
	return m.cellFeatures[c]
}

const featureTol = 1e-9

// Edges of a boundary face, as index pairs into Face.Vertices. Quad faces
// list their vertices lexicographically.
var faceEdges = map[int][][2]int{
	3: {{0, 1}, {1, 2}, {2, 0}},
	4: {{0, 1}, {1, 3}, {3, 2}, {2, 0}},
}

// reentrant reports whether the boundary folds toward the domain between
// faces f and g, i.e. g lies outside the plane of f
func (m *Mesh) reentrant(f, g *Face, tol float64) bool {
	return f.Plane != g.Plane && r3.Dot(r3.Sub(g.Point, f.Point), f.Normal) > tol
}

// buildFeatures finds the reentrant vertices of 2D meshes, and the reentrant
// edge lines of 3D meshes together with their end vertices
func (m *Mesh) buildFeatures() {
	scale := 1.
	for _, v := range m.Vertices {
		scale = math.Max(scale, math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z))))
	}
	tol := featureTol * scale

	vertexCells := make([][]int, len(m.Vertices))
	for c, verts := range m.EtoV {
		for _, v := range verts {
			vertexCells[v] = append(vertexCells[v], c)
		}
	}

	m.Features = m.Features[:0]
	if m.Dim == 2 {
		m.buildPoints2D(vertexCells, tol)
	} else {
		m.buildLines3D(vertexCells, tol)
	}

	m.cellFeatures = make([][]int, m.NumElements)
	for _, f := range m.Features {
		for _, c := range f.Cells {
			m.cellFeatures[c] = append(m.cellFeatures[c], f.ID)
		}
	}
}

func (m *Mesh) buildPoints2D(vertexCells [][]int, tol float64) {
	vertexFaces := make(map[int][]int)
	for _, f := range m.Boundary {
		for _, v := range f.Vertices {
			vertexFaces[v] = append(vertexFaces[v], f.ID)
		}
	}
	verts := make([]int, 0, len(vertexFaces))
	for v := range vertexFaces {
		verts = append(verts, v)
	}
	sort.Ints(verts)

	for _, v := range verts {
		faces := vertexFaces[v]
		if len(faces) != 2 {
			continue
		}
		f, g := &m.Boundary[faces[0]], &m.Boundary[faces[1]]
		if !m.reentrant(f, g, tol) {
			continue
		}
		p := m.Vertices[v]
		feat := Feature{ID: len(m.Features), Kind: PointFeature, Point: p, Cells: vertexCells[v]}
		for _, face := range []*Face{f, g} {
			other := face.Vertices[0]
			if other == v {
				other = face.Vertices[1]
			}
			a, _ := utils.SafeUnit(r3.Sub(m.Vertices[other], p))
			feat.Away = append(feat.Away, a)
		}
		m.Features = append(m.Features, feat)
	}
}

func (m *Mesh) buildLines3D(vertexCells [][]int, tol float64) {
	edgeFaces := make(map[[2]int][]int)
	for _, f := range m.Boundary {
		for _, e := range faceEdges[len(f.Vertices)] {
			a, b := f.Vertices[e[0]], f.Vertices[e[1]]
			if b < a {
				a, b = b, a
			}
			edgeFaces[[2]int{a, b}] = append(edgeFaces[[2]int{a, b}], f.ID)
		}
	}
	edges := make([][2]int, 0, len(edgeFaces))
	for e := range edgeFaces {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})

	// Collinear edges between the same two planes form one line
	lines := make(map[[2]int]int)
	var lo, hi []int // End vertices per line
	for _, e := range edges {
		faces := edgeFaces[e]
		if len(faces) != 2 {
			continue
		}
		f, g := &m.Boundary[faces[0]], &m.Boundary[faces[1]]
		if !m.reentrant(f, g, tol) {
			continue
		}
		pk := [2]int{f.Plane, g.Plane}
		if pk[1] < pk[0] {
			pk[0], pk[1] = pk[1], pk[0]
		}
		id, ok := lines[pk]
		if !ok {
			id = len(m.Features)
			lines[pk] = id
			origin := m.Vertices[e[0]]
			dir, _ := utils.SafeUnit(r3.Sub(m.Vertices[e[1]], origin))
			feat := Feature{ID: id, Kind: LineFeature, Point: origin, Direction: dir,
				Lo: math.Inf(1), Hi: math.Inf(-1)}
			for _, face := range []*Face{f, g} {
				d := r3.Sub(face.Point, origin)
				d = r3.Sub(d, r3.Scale(r3.Dot(d, dir), dir))
				a, _ := utils.SafeUnit(d)
				// Reach is on the far side of the face
				feat.Away = append(feat.Away, a)
			}
			m.Features = append(m.Features, feat)
			lo, hi = append(lo, -1), append(hi, -1)
		}
		feat := &m.Features[id]
		for _, v := range e {
			t := r3.Dot(r3.Sub(m.Vertices[v], feat.Point), feat.Direction)
			if t < feat.Lo {
				feat.Lo, lo[id] = t, v
			}
			if t > feat.Hi {
				feat.Hi, hi[id] = t, v
			}
			feat.Cells = appendUnique(feat.Cells, vertexCells[v]...)
		}
	}

	// Line ends are point features reached from beyond every line ending there
	numLines := len(m.Features)
	points := make(map[int]int)
	addEnd := func(v int, away r3.Vec) {
		id, ok := points[v]
		if !ok {
			id = len(m.Features)
			points[v] = id
			m.Features = append(m.Features, Feature{ID: id, Kind: PointFeature,
				Point: m.Vertices[v], Cells: vertexCells[v]})
		}
		m.Features[id].Away = append(m.Features[id].Away, away)
	}
	for i := 0; i < numLines; i++ {
		dir := m.Features[i].Direction
		addEnd(lo[i], dir)
		addEnd(hi[i], r3.Scale(-1, dir))
	}
	for i := range m.Features[:numLines] {
		sort.Ints(m.Features[i].Cells)
	}
}

func appendUnique(list []int, values ...int) []int {
	for _, v := range values {
		found := false
		for _, w := range list {
			if w == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
