package search

import (
	"math"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/particles"
	"github.com/notargets/DEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// ParticleParticleFineSearch creates a contact record for every candidate
// pair that overlaps and has none yet. Existing records keep their history
// and no record is ever removed here. Pairs further apart than threshold are
// skipped before the overlap test; a zero threshold disables that filter.
func ParticleParticleFineSearch(local, ghost contact.Candidates, store *particles.Store,
	contacts *contact.Store, threshold, time float64) error {
	if err := pairFineSearch(local, store, contacts.LocalLocal, threshold, time, true); err != nil {
		return err
	}
	return pairFineSearch(ghost, store, contacts.LocalGhost, threshold, time, false)
}

func pairFineSearch(cand contact.Candidates, store *particles.Store,
	records map[contact.PairKey]*contact.PairRecord, threshold, time float64, ordered bool) error {
	threshold2 := threshold * threshold
	for _, pk := range cand.Pairs() {
		key := pk
		if ordered {
			key = contact.OrderedKey(pk.One, pk.Two)
		}
		if _, ok := records[key]; ok {
			continue
		}

		one, err := store.Get(key.One)
		if err != nil {
			return err
		}
		two, err := store.Get(key.Two)
		if err != nil {
			return err
		}

		delta := r3.Sub(two.Position, one.Position)
		d2 := r3.Norm2(delta)
		if threshold > 0 && d2 > threshold2 {
			continue
		}
		d := math.Sqrt(d2)
		overlap := one.Radius + two.Radius - d
		if overlap <= 0 {
			continue
		}
		n, _ := utils.SafeUnit(delta)
		records[key] = &contact.PairRecord{
			IDOne:      key.One,
			IDTwo:      key.Two,
			Normal:     n,
			Overlap:    overlap,
			LastUpdate: time,
		}
	}
	return nil
}

// ParticleWallFineSearch creates records for particles penetrating a
// boundary face. The wall normal points out of the domain.
func ParticleWallFineSearch(cand contact.WallCandidates, store *particles.Store,
	contacts *contact.Store, time float64) error {
	return wallFineSearch(cand, store, contacts.Wall, time, false)
}

// ParticleFloatingWallFineSearch creates records for particles touching a
// floating wall from either side
func ParticleFloatingWallFineSearch(cand contact.WallCandidates, store *particles.Store,
	contacts *contact.Store, time float64) error {
	return wallFineSearch(cand, store, contacts.FloatingWall, time, true)
}

func wallFineSearch(cand contact.WallCandidates, store *particles.Store,
	records map[contact.WallKey]*contact.WallRecord, time float64, twoSided bool) error {
	for _, key := range cand.Keys() {
		if _, ok := records[key]; ok {
			continue
		}
		p, err := store.Get(key.Particle)
		if err != nil {
			return err
		}
		plane := cand[key.Particle][key.Wall]
		if !plane.Covers(p.Position) {
			continue
		}
		normal, dist := WallNormal(plane, p.Position, twoSided)
		overlap := p.Radius - dist
		if overlap <= 0 {
			continue
		}
		records[key] = &contact.WallRecord{
			Particle:   key.Particle,
			Wall:       key.Wall,
			Normal:     normal,
			Point:      plane.Point,
			Lo:         plane.Lo,
			Hi:         plane.Hi,
			Bounded:    plane.Bounded,
			Overlap:    overlap,
			LastUpdate: time,
		}
	}
	return nil
}

// ParticleFeatureFineSearch rebuilds the feature contacts from scratch: a
// candidate becomes a record when the particle lies in the feature's reach
// and overlaps its closest point
func ParticleFeatureFineSearch(cand contact.FeatureCandidates, features []mesh.Feature,
	store *particles.Store, contacts *contact.Store, time float64) error {
	clear(contacts.Feature)
	for _, key := range cand.Keys() {
		p, err := store.Get(key.Particle)
		if err != nil {
			return err
		}
		q, ok := features[key.Feature].Closest(p.Position)
		if !ok {
			continue
		}
		n, d := utils.SafeUnit(r3.Sub(q, p.Position))
		overlap := p.Radius - d
		if overlap <= 0 || d == 0 {
			continue
		}
		contacts.Feature[key] = &contact.FeatureRecord{
			Particle:   key.Particle,
			Feature:    key.Feature,
			Point:      q,
			Normal:     n,
			Overlap:    overlap,
			LastUpdate: time,
		}
	}
	return nil
}

// WallNormal returns the normal pointing from x toward the wall and the
// distance from x to the plane along it. One sided walls keep their own
// normal, so a center past the plane gives a negative distance.
func WallNormal(plane contact.Plane, x r3.Vec, twoSided bool) (normal r3.Vec, dist float64) {
	dist = r3.Dot(r3.Sub(plane.Point, x), plane.Normal)
	if twoSided && dist < 0 {
		return r3.Scale(-1, plane.Normal), -dist
	}
	return plane.Normal, dist
}
