package contact

import (
	"testing"

	"github.com/notargets/DEMKernel/particles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func pair(a, b particles.ID, xi float64) *PairRecord {
	return &PairRecord{IDOne: a, IDTwo: b, TangentialDisplacement: r3.Vec{X: xi}}
}

func wall(id particles.ID, w int) *WallRecord {
	return &WallRecord{Particle: id, Wall: w, RollingDisplacement: r3.Vec{Y: 1}}
}

func TestLocalize_KeepAndErase(t *testing.T) {
	s := NewStore()
	s.LocalLocal[PairKey{1, 2}] = pair(1, 2, 0.1) // listed under 1
	s.LocalLocal[PairKey{3, 4}] = pair(3, 4, 0.2) // listed under 4
	s.LocalLocal[PairKey{5, 6}] = pair(5, 6, 0.3) // no longer a candidate
	s.Wall[WallKey{1, 0}] = wall(1, 0)
	s.Wall[WallKey{1, 3}] = wall(1, 3)
	s.FloatingWall[WallKey{2, 0}] = wall(2, 0)

	c := NewStepCandidates()
	c.LocalLocal.Add(1, 2)
	c.LocalLocal.Add(1, 7)
	c.LocalLocal.Add(4, 3)
	c.Wall.Add(1, 0, Plane{})
	c.Wall.Add(2, 5, Plane{})

	stats := s.Localize(c)
	assert.Equal(t, LocalizeStats{Kept: 3, Erased: 3}, stats)

	assert.Contains(t, s.LocalLocal, PairKey{1, 2})
	assert.Contains(t, s.LocalLocal, PairKey{3, 4})
	assert.NotContains(t, s.LocalLocal, PairKey{5, 6})
	assert.Contains(t, s.Wall, WallKey{1, 0})
	assert.NotContains(t, s.Wall, WallKey{1, 3})
	assert.Empty(t, s.FloatingWall)

	// Kept pairs were consumed; new pairs remain for fine search
	assert.Equal(t, []PairKey{{1, 7}}, c.LocalLocal.Pairs())
	assert.Equal(t, []WallKey{{2, 5}}, c.Wall.Keys())

	// History of kept records is untouched
	assert.Equal(t, 0.1, s.LocalLocal[PairKey{1, 2}].TangentialDisplacement.X)
	assert.Equal(t, 1.0, s.Wall[WallKey{1, 0}].RollingDisplacement.Y)
}

func TestLocalize_Idempotent(t *testing.T) {
	s := NewStore()
	s.LocalLocal[PairKey{1, 2}] = pair(1, 2, 0.5)
	s.LocalLocal[PairKey{2, 3}] = pair(2, 3, 0.7)
	s.LocalGhost[PairKey{1, 9}] = pair(1, 9, 0.9)
	s.Wall[WallKey{3, 1}] = wall(3, 1)

	c := NewStepCandidates()
	c.LocalLocal.Add(1, 2)
	c.LocalGhost.Add(1, 9)
	c.Wall.Add(3, 1, Plane{})

	first := s.Localize(c)
	require.Equal(t, 1, first.Erased)
	assert.Zero(t, c.LocalLocal.Len()+c.LocalGhost.Len()+c.Wall.Len())

	before := make(map[PairKey]PairRecord)
	for k, r := range s.LocalLocal {
		before[k] = *r
	}
	for k, r := range s.LocalGhost {
		before[k] = *r
	}

	second := s.Localize(c)
	assert.Equal(t, 0, second.Erased)
	assert.Equal(t, first.Kept, second.Kept)
	assert.Equal(t, 3, s.Len())
	for k, r := range s.LocalLocal {
		assert.Equal(t, before[k], *r)
	}
	for k, r := range s.LocalGhost {
		assert.Equal(t, before[k], *r)
	}
}

func TestLocalize_GhostAsymmetry(t *testing.T) {
	s := NewStore()
	s.LocalGhost[PairKey{1, 9}] = pair(1, 9, 0.5)
	s.LocalGhost[PairKey{2, 8}] = pair(2, 8, 0.5)

	c := NewStepCandidates()
	c.LocalGhost.Add(1, 9)
	c.LocalGhost.Add(8, 2) // only listed under the ghost id

	s.Localize(c)
	assert.Contains(t, s.LocalGhost, PairKey{1, 9})
	assert.NotContains(t, s.LocalGhost, PairKey{2, 8})
	// The ghost-side entry is left for fine search
	assert.True(t, c.LocalGhost.Contains(8, 2))
}

// A local-local pair whose partner moved to another subdomain keeps its
// history in the local-ghost container, oriented (local, ghost)
func TestLocalize_PartnerBecameGhost(t *testing.T) {
	s := NewStore()
	s.LocalLocal[PairKey{1, 2}] = &PairRecord{IDOne: 1, IDTwo: 2,
		Normal: r3.Vec{Y: 1}, TangentialDisplacement: r3.Vec{X: 0.4}, RollingDisplacement: r3.Vec{Z: 0.1}}
	s.LocalLocal[PairKey{3, 4}] = &PairRecord{IDOne: 3, IDTwo: 4,
		Normal: r3.Vec{X: 1}, TangentialDisplacement: r3.Vec{Y: 0.2}}

	c := NewStepCandidates()
	c.LocalGhost.Add(1, 2) // 2 left, 1 is still local
	c.LocalGhost.Add(4, 3) // 3 left, 4 is still local

	stats := s.Localize(c)
	assert.Equal(t, LocalizeStats{Kept: 2, Moved: 2}, stats)
	assert.Empty(t, s.LocalLocal)
	assert.Zero(t, c.LocalGhost.Len())

	same := s.LocalGhost[PairKey{1, 2}]
	require.NotNil(t, same)
	assert.Equal(t, r3.Vec{Y: 1}, same.Normal)
	assert.Equal(t, r3.Vec{X: 0.4}, same.TangentialDisplacement)

	flipped := s.LocalGhost[PairKey{4, 3}]
	require.NotNil(t, flipped)
	assert.Equal(t, particles.ID(4), flipped.IDOne)
	assert.Equal(t, r3.Vec{X: -1}, flipped.Normal)
	assert.Equal(t, r3.Vec{Y: -0.2}, flipped.TangentialDisplacement)

	// Nothing is left for fine search, and a second pass keeps everything
	again := s.Localize(c)
	assert.Equal(t, 0, again.Erased)
	assert.Len(t, s.LocalGhost, 2)
}

// A ghost that became local moves its local-ghost record under the ordered
// local-local key
func TestLocalize_GhostBecameLocal(t *testing.T) {
	s := NewStore()
	s.LocalGhost[PairKey{5, 2}] = &PairRecord{IDOne: 5, IDTwo: 2,
		Normal: r3.Vec{X: -1}, TangentialDisplacement: r3.Vec{Z: 0.3}}

	c := NewStepCandidates()
	c.LocalLocal.Add(2, 5)

	stats := s.Localize(c)
	assert.Equal(t, LocalizeStats{Kept: 1, Moved: 1}, stats)
	assert.Empty(t, s.LocalGhost)
	rec := s.LocalLocal[PairKey{2, 5}]
	require.NotNil(t, rec)
	assert.Equal(t, r3.Vec{X: 1}, rec.Normal)
	assert.Equal(t, r3.Vec{Z: -0.3}, rec.TangentialDisplacement)
	assert.Zero(t, c.LocalLocal.Len())
}

func TestHandoverAdopt(t *testing.T) {
	src := NewStore()
	src.LocalLocal[PairKey{1, 2}] = &PairRecord{IDOne: 1, IDTwo: 2,
		Normal: r3.Vec{X: 1}, TangentialDisplacement: r3.Vec{Y: 0.5}}
	src.LocalLocal[PairKey{2, 7}] = pair(2, 7, 0.1)
	src.LocalGhost[PairKey{2, 9}] = pair(2, 9, 0.2)
	src.LocalGhost[PairKey{3, 2}] = pair(3, 2, 0.3) // 2 is the ghost here

	recs := src.Handover(2)
	require.Len(t, recs, 3)
	for _, r := range recs {
		assert.Equal(t, particles.ID(2), r.IDOne)
	}
	assert.Equal(t, r3.Vec{X: -1}, recs[0].Normal)
	assert.Equal(t, r3.Vec{Y: -0.5}, recs[0].TangentialDisplacement)
	// The source keeps its records for its own localization
	assert.Equal(t, 4, src.Len())

	dst := NewStore()
	dst.LocalGhost[PairKey{9, 2}] = pair(9, 2, -0.2) // already tracked from the other side
	assert.Equal(t, 2, dst.Adopt(recs))
	assert.Contains(t, dst.LocalGhost, PairKey{2, 1})
	assert.Contains(t, dst.LocalGhost, PairKey{2, 7})
	assert.NotContains(t, dst.LocalGhost, PairKey{2, 9})
	assert.Equal(t, -0.2, dst.LocalGhost[PairKey{9, 2}].TangentialDisplacement.X)

	// Adopted records are copies
	recs[0].TangentialDisplacement.Y = 7
	assert.Equal(t, -0.5, dst.LocalGhost[PairKey{2, 1}].TangentialDisplacement.Y)
}

func TestCandidates(t *testing.T) {
	c := make(Candidates)
	c.Add(3, 1)
	c.Add(3, 2)
	c.Add(1, 2)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []PairKey{{1, 2}, {3, 1}, {3, 2}}, c.Pairs())

	c.Remove(1, 2)
	c.Remove(1, 5)
	c.Remove(7, 1)
	assert.NotContains(t, c, particles.ID(1))
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, PairKey{2, 5}, OrderedKey(5, 2))
	assert.Equal(t, PairKey{2, 5}, OrderedKey(2, 5))
}

func TestSortedPairs(t *testing.T) {
	m := map[PairKey]*PairRecord{
		{2, 3}: pair(2, 3, 0),
		{1, 4}: pair(1, 4, 0),
		{1, 2}: pair(1, 2, 0),
	}
	var keys []PairKey
	for _, r := range SortedPairs(m) {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []PairKey{{1, 2}, {1, 4}, {2, 3}}, keys)
}
