package particles

import (
	"errors"
	"math"
	"testing"

	"github.com/notargets/DEMKernel/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewSphere(t *testing.T) {
	p := NewSphere(7, 1, 0.2, 1000, r3.Vec{X: 1})
	assert.Equal(t, 0.1, p.Radius)
	assert.InDelta(t, 4./3.*math.Pi*1e-3*1000, p.Mass, 1e-12)
	assert.InDelta(t, 0.4*p.Mass*0.01, p.Inertia, 1e-15)
	assert.Equal(t, -1, p.Cell)
	assert.InDelta(t, 0.2, p.Diameter(), 1e-15)
}

func TestStore_InsertGetRemove(t *testing.T) {
	s := NewStore()
	for id := ID(1); id <= 4; id++ {
		require.NoError(t, s.Insert(Particle{ID: id, Radius: float64(id)}))
	}
	err := s.Insert(Particle{ID: 2})
	assert.True(t, errors.Is(err, ErrDuplicateParticle))

	removed, err := s.Remove(2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, removed.Radius)
	assert.Equal(t, 3, s.Len())

	// The slot of the removed particle was refilled; lookups still resolve
	for _, id := range []ID{1, 3, 4} {
		p, err := s.Get(id)
		require.NoError(t, err)
		assert.Equal(t, float64(id), p.Radius)
	}
	_, err = s.Get(2)
	assert.True(t, errors.Is(err, ErrUnknownParticle))
	_, err = s.Remove(2)
	assert.True(t, errors.Is(err, ErrUnknownParticle))
}

func TestStore_GetIsLive(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(Particle{ID: 1}))
	p, err := s.Get(1)
	require.NoError(t, err)
	p.Velocity = r3.Vec{Z: -1}

	q, _ := s.Get(1)
	assert.Equal(t, -1.0, q.Velocity.Z)
}

func TestStore_ReplaceGhosts(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(Particle{ID: 5}))
	require.NoError(t, s.Insert(Particle{ID: 9, Ghost: true}))
	require.NoError(t, s.ReplaceGhosts([]Particle{{ID: 3}, {ID: 8}}))

	assert.Equal(t, []ID{5}, s.Local())
	assert.Equal(t, []ID{3, 8}, s.Ghost())
	assert.False(t, s.Has(9))

	// A ghost may not shadow a local particle
	err := s.ReplaceGhosts([]Particle{{ID: 5}})
	assert.True(t, errors.Is(err, ErrDuplicateParticle))
}

func TestStore_LocateAndOccupancy(t *testing.T) {
	m := mesh.HyperCube(2, 0, 1, 1) // 2x2 quads
	s := NewStore()
	require.NoError(t, s.Insert(Particle{ID: 4, Position: r3.Vec{X: 0.75, Y: 0.25}}))
	require.NoError(t, s.Insert(Particle{ID: 2, Position: r3.Vec{X: 0.6, Y: 0.1}}))
	require.NoError(t, s.Insert(Particle{ID: 1, Position: r3.Vec{X: 0.1, Y: 0.9}}))
	require.NoError(t, s.Locate(m))

	occ := s.Occupancy()
	assert.Equal(t, []ID{2, 4}, occ[1])
	assert.Equal(t, []ID{1}, occ[2])
	assert.NotContains(t, occ, 0)

	require.NoError(t, s.Insert(Particle{ID: 6, Position: r3.Vec{X: 2}}))
	err := s.Locate(m)
	assert.True(t, errors.Is(err, ErrOutsideMesh))
}

func TestAccumulators(t *testing.T) {
	a := NewAccumulators()
	a.AddForce(1, r3.Vec{X: 1})
	a.AddForce(1, r3.Vec{X: 2, Y: 1})
	a.AddTorque(2, r3.Vec{Z: 3})
	assert.Equal(t, r3.Vec{X: 3, Y: 1}, a.Force[1])
	assert.Equal(t, r3.Vec{Z: 3}, a.Torque[2])

	a.Reset()
	assert.Empty(t, a.Force)
	assert.Empty(t, a.Torque)
	assert.Equal(t, r3.Vec{}, a.Force[1])
}
