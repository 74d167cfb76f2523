package search

import (
	"math"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/neighbors"
	"gonum.org/v1/gonum/spatial/r3"
)

// FloatingWall is a plane inside the domain that exists during [Start, End].
// Particles may touch it from either side.
type FloatingWall struct {
	ID     int
	Point  r3.Vec
	Normal r3.Vec // Unit normal
	Start  float64
	End    float64
}

// Active returns true if the wall exists at time t
func (w FloatingWall) Active(t float64) bool {
	return t >= w.Start && t <= w.End
}

// FindParticleFloatingWallCandidates pairs the active floating walls with the
// particles of owned cells whose bounding box lies within margin of the wall
// plane
func FindParticleFloatingWallCandidates(m *mesh.Mesh, idx *neighbors.Index, occ Occupancy,
	walls []FloatingWall, time, margin float64) contact.WallCandidates {
	cand := make(contact.WallCandidates)
	for _, w := range walls {
		if !w.Active(time) {
			continue
		}
		plane := contact.Plane{Point: w.Point, Normal: w.Normal}
		for _, c := range idx.Cells {
			ids := occ[c]
			if len(ids) == 0 {
				continue
			}
			lo, hi := m.CellBounds(c)
			if !boxNearPlane(lo, hi, plane, margin) {
				continue
			}
			for _, id := range ids {
				cand.Add(id, w.ID, plane)
			}
		}
	}
	return cand
}

// boxNearPlane returns true if the plane crosses the box grown by margin
func boxNearPlane(lo, hi r3.Vec, p contact.Plane, margin float64) bool {
	dmin, dmax := math.Inf(1), math.Inf(-1)
	for corner := 0; corner < 8; corner++ {
		v := lo
		if corner&1 != 0 {
			v.X = hi.X
		}
		if corner&2 != 0 {
			v.Y = hi.Y
		}
		if corner&4 != 0 {
			v.Z = hi.Z
		}
		d := r3.Dot(r3.Sub(v, p.Point), p.Normal)
		dmin = math.Min(dmin, d)
		dmax = math.Max(dmax, d)
	}
	return dmin <= margin && dmax >= -margin
}
