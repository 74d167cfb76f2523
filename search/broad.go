package search

import (
	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/neighbors"
	"github.com/notargets/DEMKernel/particles"
)

// Occupancy maps a mesh cell to the ids of the particles it contains, in
// ascending order
type Occupancy map[int][]particles.ID

// FindParticleParticleCandidates pairs the particles of every owned cell
// with each other and with the particles of its neighbor cells. Each
// unordered local-local pair appears once, under its smaller id. Local-ghost
// pairs are listed under the local particle.
func FindParticleParticleCandidates(idx *neighbors.Index, occ Occupancy) (local, ghost contact.Candidates) {
	local = make(contact.Candidates)
	ghost = make(contact.Candidates)

	for _, c := range idx.Cells {
		own := occ[c]
		if len(own) == 0 {
			continue
		}

		// Self pairs, occupancy lists are sorted
		for i := 0; i < len(own); i++ {
			for j := i + 1; j < len(own); j++ {
				local.Add(own[i], own[j])
			}
		}

		// Local neighbors, each unordered cell pair once
		for _, nb := range idx.Local[c] {
			if nb < c {
				continue
			}
			for _, a := range own {
				for _, b := range occ[nb] {
					key := contact.OrderedKey(a, b)
					local.Add(key.One, key.Two)
				}
			}
		}

		for _, nb := range idx.Ghost[c] {
			for _, a := range own {
				for _, b := range occ[nb] {
					ghost.Add(a, b)
				}
			}
		}
	}
	return local, ghost
}

// FindParticleWallCandidates pairs the boundary planes of every owned cell
// with the particles of that cell and of its local neighbors. Walls are
// identified by plane id.
func FindParticleWallCandidates(m *mesh.Mesh, idx *neighbors.Index, occ Occupancy) contact.WallCandidates {
	cand := make(contact.WallCandidates)
	for _, c := range idx.Cells {
		if !m.IsBoundaryCell(c) {
			continue
		}
		faces := m.BoundaryFacesOf(c)
		add := func(cell int) {
			for _, id := range occ[cell] {
				for _, f := range faces {
					pl := m.Planes[f.Plane]
					cand.Add(id, pl.ID, contact.Plane{Point: pl.Point, Normal: pl.Normal,
						Lo: pl.Lo, Hi: pl.Hi, Bounded: true})
				}
			}
		}
		add(c)
		for _, nb := range idx.Local[c] {
			add(nb)
		}
	}
	return cand
}

// FindParticleFeatureCandidates pairs the particles of every owned cell with
// the reentrant boundary features of that cell and of all its neighbors
func FindParticleFeatureCandidates(m *mesh.Mesh, idx *neighbors.Index, occ Occupancy) contact.FeatureCandidates {
	cand := make(contact.FeatureCandidates)
	if len(m.Features) == 0 {
		return cand
	}
	for _, c := range idx.Cells {
		ids := occ[c]
		if len(ids) == 0 {
			continue
		}
		add := func(cell int) {
			for _, f := range m.FeaturesOf(cell) {
				for _, id := range ids {
					cand.Add(id, f)
				}
			}
		}
		add(c)
		for _, nb := range idx.Local[c] {
			add(nb)
		}
		for _, nb := range idx.Ghost[c] {
			add(nb)
		}
	}
	return cand
}
