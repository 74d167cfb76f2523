package contact

import (
	"math"
	"sort"

	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// Candidates maps a particle id to the set of its candidate partners for one
// step. A pair is stored once, under the id that generated it.
type Candidates map[particles.ID]map[particles.ID]struct{}

// Add records the candidate pair (a, b) under a
func (c Candidates) Add(a, b particles.ID) {
	set, ok := c[a]
	if !ok {
		set = make(map[particles.ID]struct{})
		c[a] = set
	}
	set[b] = struct{}{}
}

// Contains returns true if b is listed under a
func (c Candidates) Contains(a, b particles.ID) bool {
	_, ok := c[a][b]
	return ok
}

// Remove deletes b from the list of a
func (c Candidates) Remove(a, b particles.ID) {
	set, ok := c[a]
	if !ok {
		return
	}
	delete(set, b)
	if len(set) == 0 {
		delete(c, a)
	}
}

// Len returns the number of stored pairs
func (c Candidates) Len() int {
	n := 0
	for _, set := range c {
		n += len(set)
	}
	return n
}

// Pairs returns the stored pairs ordered by (key, partner)
func (c Candidates) Pairs() []PairKey {
	pairs := make([]PairKey, 0, c.Len())
	for a, set := range c {
		for b := range set {
			pairs = append(pairs, PairKey{One: a, Two: b})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].One != pairs[j].One {
			return pairs[i].One < pairs[j].One
		}
		return pairs[i].Two < pairs[j].Two
	})
	return pairs
}

// Plane is the geometry of a wall seen by one particle. A bounded plane
// only reaches particles whose projection falls inside its box.
type Plane struct {
	Point   r3.Vec
	Normal  r3.Vec // Outward unit normal
	Lo, Hi  r3.Vec
	Bounded bool
}

// Covers returns true if the projection of x onto the plane lies inside the
// plane's bounding box
func (p Plane) Covers(x r3.Vec) bool {
	if !p.Bounded {
		return true
	}
	q := r3.Add(x, r3.Scale(r3.Dot(r3.Sub(p.Point, x), p.Normal), p.Normal))
	span := r3.Sub(p.Hi, p.Lo)
	tol := 1e-9 * (1 + math.Max(span.X, math.Max(span.Y, span.Z)))
	return q.X >= p.Lo.X-tol && q.X <= p.Hi.X+tol &&
		q.Y >= p.Lo.Y-tol && q.Y <= p.Hi.Y+tol &&
		q.Z >= p.Lo.Z-tol && q.Z <= p.Hi.Z+tol
}

// WallCandidates maps a particle id to the walls it may touch
type WallCandidates map[particles.ID]map[int]Plane

func (c WallCandidates) Add(id particles.ID, wall int, p Plane) {
	set, ok := c[id]
	if !ok {
		set = make(map[int]Plane)
		c[id] = set
	}
	set[wall] = p
}

func (c WallCandidates) Contains(id particles.ID, wall int) bool {
	_, ok := c[id][wall]
	return ok
}

func (c WallCandidates) Remove(id particles.ID, wall int) {
	set, ok := c[id]
	if !ok {
		return
	}
	delete(set, wall)
	if len(set) == 0 {
		delete(c, id)
	}
}

func (c WallCandidates) Len() int {
	n := 0
	for _, set := range c {
		n += len(set)
	}
	return n
}

// Keys returns the stored (particle, wall) pairs in order
func (c WallCandidates) Keys() []WallKey {
	keys := make([]WallKey, 0, c.Len())
	for id, set := range c {
		for w := range set {
			keys = append(keys, WallKey{Particle: id, Wall: w})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Particle != keys[j].Particle {
			return keys[i].Particle < keys[j].Particle
		}
		return keys[i].Wall < keys[j].Wall
	})
	return keys
}

// FeatureCandidates maps a particle id to the reentrant boundary features it
// may touch
type FeatureCandidates map[particles.ID]map[int]struct{}

func (c FeatureCandidates) Add(id particles.ID, feature int) {
	set, ok := c[id]
	if !ok {
		set = make(map[int]struct{})
		c[id] = set
	}
	set[feature] = struct{}{}
}

func (c FeatureCandidates) Contains(id particles.ID, feature int) bool {
	_, ok := c[id][feature]
	return ok
}

func (c FeatureCandidates) Len() int {
	n := 0
	for _, set := range c {
		n += len(set)
	}
	return n
}

// Keys returns the stored (particle, feature) pairs in order
func (c FeatureCandidates) Keys() []FeatureKey {
	keys := make([]FeatureKey, 0, c.Len())
	for id, set := range c {
		for f := range set {
			keys = append(keys, FeatureKey{Particle: id, Feature: f})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Particle != keys[j].Particle {
			return keys[i].Particle < keys[j].Particle
		}
		return keys[i].Feature < keys[j].Feature
	})
	return keys
}

// StepCandidates is the output of one broad search cycle
type StepCandidates struct {
	LocalLocal   Candidates
	LocalGhost   Candidates
	Wall         WallCandidates
	FloatingWall WallCandidates
	Feature      FeatureCandidates

	// Candidates consumed by Localize
	matchedLocal    map[PairKey]struct{}
	matchedGhost    map[PairKey]struct{}
	matchedWall     map[WallKey]struct{}
	matchedFloating map[WallKey]struct{}
}

func (sc *StepCandidates) initMatched() {
	if sc.matchedLocal != nil {
		return
	}
	sc.matchedLocal = make(map[PairKey]struct{})
	sc.matchedGhost = make(map[PairKey]struct{})
	sc.matchedWall = make(map[WallKey]struct{})
	sc.matchedFloating = make(map[WallKey]struct{})
}

func NewStepCandidates() *StepCandidates {
	return &StepCandidates{
		LocalLocal:   make(Candidates),
		LocalGhost:   make(Candidates),
		Wall:         make(WallCandidates),
		FloatingWall: make(WallCandidates),
		Feature:      make(FeatureCandidates),
	}
}
