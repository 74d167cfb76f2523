package contact

import (
	"sort"

	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// PairKey identifies a particle-particle contact. Local-local pairs use
// (smaller id, larger id); local-ghost pairs use (local id, ghost id).
type PairKey struct {
	One, Two particles.ID
}

// OrderedKey returns the local-local key of a pair
func OrderedKey(a, b particles.ID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{One: a, Two: b}
}

// PairRecord is the persistent state of one particle-particle contact. Its
// history fields live from the first positive overlap until the localizer
// drops the pair.
type PairRecord struct {
	IDOne particles.ID `json:"idOne"`
	IDTwo particles.ID `json:"idTwo"`

	Normal                 r3.Vec  `json:"normal"` // Unit vector from one to two
	TangentialDisplacement r3.Vec  `json:"tangentialDisplacement"`
	RollingDisplacement    r3.Vec  `json:"rollingDisplacement"`
	Overlap                float64 `json:"overlap"`
	LastUpdate             float64 `json:"lastUpdate"`
}

// Key returns the key the record is stored under
func (r *PairRecord) Key() PairKey {
	return PairKey{One: r.IDOne, Two: r.IDTwo}
}

// ResetHistory discards the spring state of the contact
func (r *PairRecord) ResetHistory() {
	r.TangentialDisplacement = r3.Vec{}
	r.RollingDisplacement = r3.Vec{}
}

// Flipped returns a copy of the record seen from its second particle
func (r *PairRecord) Flipped() *PairRecord {
	f := *r
	f.IDOne, f.IDTwo = r.IDTwo, r.IDOne
	f.Normal = r3.Scale(-1, r.Normal)
	f.TangentialDisplacement = r3.Scale(-1, r.TangentialDisplacement)
	f.RollingDisplacement = r3.Scale(-1, r.RollingDisplacement)
	return &f
}

// orientedTo returns the record with id as its first particle
func (r *PairRecord) orientedTo(id particles.ID) *PairRecord {
	if r.IDOne == id {
		c := *r
		return &c
	}
	return r.Flipped()
}

// WallKey identifies a particle-wall contact
type WallKey struct {
	Particle particles.ID
	Wall     int
}

// WallRecord is the persistent state of one particle-wall contact
type WallRecord struct {
	Particle particles.ID `json:"particle"`
	Wall     int          `json:"wall"`

	Normal                 r3.Vec  `json:"normal"` // Outward wall normal
	Point                  r3.Vec  `json:"point"`  // Any point on the wall plane
	Lo                     r3.Vec  `json:"lo"`
	Hi                     r3.Vec  `json:"hi"`
	Bounded                bool    `json:"bounded"`
	TangentialDisplacement r3.Vec  `json:"tangentialDisplacement"`
	RollingDisplacement    r3.Vec  `json:"rollingDisplacement"`
	Overlap                float64 `json:"overlap"`
	LastUpdate             float64 `json:"lastUpdate"`
}

func (r *WallRecord) Key() WallKey {
	return WallKey{Particle: r.Particle, Wall: r.Wall}
}

// Plane returns the wall geometry the record was created against
func (r *WallRecord) Plane() Plane {
	return Plane{Point: r.Point, Normal: r.Normal, Lo: r.Lo, Hi: r.Hi, Bounded: r.Bounded}
}

func (r *WallRecord) ResetHistory() {
	r.TangentialDisplacement = r3.Vec{}
	r.RollingDisplacement = r3.Vec{}
}

// FeatureKey identifies a particle contact with a boundary vertex or edge
type FeatureKey struct {
	Particle particles.ID
	Feature  int
}

// FeatureRecord is a particle contact with a reentrant boundary vertex or
// edge. It carries no history and is rebuilt every step.
type FeatureRecord struct {
	Particle   particles.ID `json:"particle"`
	Feature    int          `json:"feature"`
	Point      r3.Vec       `json:"point"`  // Closest point of the feature
	Normal     r3.Vec       `json:"normal"` // From the particle toward Point
	Overlap    float64      `json:"overlap"`
	LastUpdate float64      `json:"lastUpdate"`
}

func (r *FeatureRecord) Key() FeatureKey {
	return FeatureKey{Particle: r.Particle, Feature: r.Feature}
}

// Store holds the four persistent contact containers of a subdomain, and the
// feature contacts of the current step
type Store struct {
	LocalLocal   map[PairKey]*PairRecord
	LocalGhost   map[PairKey]*PairRecord
	Wall         map[WallKey]*WallRecord
	FloatingWall map[WallKey]*WallRecord
	Feature      map[FeatureKey]*FeatureRecord
}

func NewStore() *Store {
	return &Store{
		LocalLocal:   make(map[PairKey]*PairRecord),
		LocalGhost:   make(map[PairKey]*PairRecord),
		Wall:         make(map[WallKey]*WallRecord),
		FloatingWall: make(map[WallKey]*WallRecord),
		Feature:      make(map[FeatureKey]*FeatureRecord),
	}
}

// Len returns the number of records over all containers
func (s *Store) Len() int {
	return len(s.LocalLocal) + len(s.LocalGhost) + len(s.Wall) + len(s.FloatingWall) + len(s.Feature)
}

// HasPair returns true if any pair container holds a record of (a, b)
func (s *Store) HasPair(a, b particles.ID) bool {
	if _, ok := s.LocalLocal[OrderedKey(a, b)]; ok {
		return true
	}
	if _, ok := s.LocalGhost[PairKey{One: a, Two: b}]; ok {
		return true
	}
	_, ok := s.LocalGhost[PairKey{One: b, Two: a}]
	return ok
}

// Handover returns copies of the pair records of a particle leaving this
// subdomain, each oriented with the particle as IDOne. The records stay in
// place; the next localization decides what remains of them here.
func (s *Store) Handover(id particles.ID) []*PairRecord {
	var recs []*PairRecord
	for _, r := range SortedPairs(s.LocalLocal) {
		if r.IDOne == id || r.IDTwo == id {
			recs = append(recs, r.orientedTo(id))
		}
	}
	for _, r := range SortedPairs(s.LocalGhost) {
		if r.IDOne == id {
			recs = append(recs, r.orientedTo(id))
		}
	}
	return recs
}

// Adopt files the records of a particle that joined this subdomain as
// local-ghost records keyed (IDOne, IDTwo). Pairs this store already tracks
// keep their own record. It returns the number of records adopted.
func (s *Store) Adopt(recs []*PairRecord) int {
	n := 0
	for _, r := range recs {
		if s.HasPair(r.IDOne, r.IDTwo) {
			continue
		}
		c := *r
		s.LocalGhost[c.Key()] = &c
		n++
	}
	return n
}

// SortedPairs returns the records of a pair container in key order
func SortedPairs(m map[PairKey]*PairRecord) []*PairRecord {
	recs := make([]*PairRecord, 0, len(m))
	for _, r := range m {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].IDOne != recs[j].IDOne {
			return recs[i].IDOne < recs[j].IDOne
		}
		return recs[i].IDTwo < recs[j].IDTwo
	})
	return recs
}

// SortedWalls returns the records of a wall container in key order
func SortedWalls(m map[WallKey]*WallRecord) []*WallRecord {
	recs := make([]*WallRecord, 0, len(m))
	for _, r := range m {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Particle != recs[j].Particle {
			return recs[i].Particle < recs[j].Particle
		}
		return recs[i].Wall < recs[j].Wall
	})
	return recs
}

// SortedFeatures returns the feature records in key order
func SortedFeatures(m map[FeatureKey]*FeatureRecord) []*FeatureRecord {
	recs := make([]*FeatureRecord, 0, len(m))
	for _, r := range m {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Particle != recs[j].Particle {
			return recs[i].Particle < recs[j].Particle
		}
		return recs[i].Feature < recs[j].Feature
	})
	return recs
}
