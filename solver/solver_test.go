package solver

import (
	"bytes"
	"errors"
	"log"
	"math"
	"testing"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/force"
	"github.com/notargets/DEMKernel/integrator"
	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/neighbors"
	"github.com/notargets/DEMKernel/particles"
	"github.com/notargets/DEMKernel/partitions"
	"github.com/notargets/DEMKernel/properties"
	"github.com/notargets/DEMKernel/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

var glass = properties.Material{
	YoungsModulus: 1e7,
	PoissonRatio:  0.3,
	Restitution:   0.9,
	Friction:      0.5,
	Density:       2500,
}

const (
	diameter = 0.005
	dt       = 1e-5
)

func options(m *mesh.Mesh, idx *neighbors.Index, rank int) Options {
	return Options{
		Rank:      rank,
		Mesh:      m,
		Index:     idx,
		Materials: []properties.Material{glass},
		Wall:      glass,
		Normal:    force.Linear,
		Rolling:   force.NoRolling,
		Scheme:    integrator.VelocityVerlet,
		TimeStep:  dt,
	}
}

func sphere(id particles.ID, pos, vel r3.Vec) particles.Particle {
	p := particles.NewSphere(id, 0, diameter, glass.Density, pos)
	p.Velocity = vel
	return p
}

// collisionParticles are two spheres closing head on with a gap of 0.001,
// straddling y = 0, plus a lone sphere that crosses y = 0 at t = 2e-3
func collisionParticles() []particles.Particle {
	return []particles.Particle{
		sphere(1, r3.Vec{X: 0.01, Y: -0.003}, r3.Vec{Y: 0.4}),
		sphere(2, r3.Vec{X: 0.01, Y: 0.003}, r3.Vec{Y: -0.4}),
		sphere(3, r3.Vec{X: -0.03, Y: -0.001}, r3.Vec{Y: 0.5}),
	}
}

// newDriver splits the 4x4 box [-0.05,0.05]^2 into numPartitions blocks and
// hands every particle to rank 0; the first exchange distributes them
func newDriver(t *testing.T, numPartitions int, ps []particles.Particle) *Driver {
	t.Helper()
	m := mesh.HyperCube(2, -0.05, 0.05, 2)
	pb := &partitions.PartitionBuilder{Mesh: m, NumPartitions: numPartitions}
	layout, err := pb.BuildPartitions()
	require.NoError(t, err)

	d := &Driver{}
	for r := 0; r < numPartitions; r++ {
		idx, err := neighbors.New(m, layout.EToP, r)
		require.NoError(t, err)
		s, err := New(options(m, idx, r))
		require.NoError(t, err)
		d.Solvers = append(d.Solvers, s)
	}
	for _, p := range ps {
		require.NoError(t, d.Solvers[0].Particles.Insert(p))
	}
	if numPartitions > 1 {
		d.Exchanger = NewLocalExchanger(layout)
	}
	return d
}

func owned(t *testing.T, d *Driver, id particles.ID) *particles.Particle {
	t.Helper()
	p, err := d.Particle(id)
	require.NoError(t, err)
	return p
}

func TestCollision_ConservesMomentumAndRebounds(t *testing.T) {
	d := newDriver(t, 1, collisionParticles())
	require.NoError(t, d.Run(400))

	p1, p2 := owned(t, d, 1), owned(t, d, 2)
	if !scalar.EqualWithinAbs(p1.Velocity.Y, -p2.Velocity.Y, 1e-12) {
		t.Errorf("momentum not conserved: %g + %g", p1.Velocity.Y, p2.Velocity.Y)
	}
	assert.InDelta(t, 0, p1.Velocity.X, 1e-15)
	// Linear spring-dashpot contacts restore e times the impact velocity
	assert.InDelta(t, -0.4*glass.Restitution, p1.Velocity.Y, 0.02)
	assert.Greater(t, p2.Position.Y-p1.Position.Y, diameter)
	assert.InDelta(t, 400*dt, d.Time(), 1e-15)
}

func TestCollision_PartitionedMatchesSingleDomain(t *testing.T) {
	single := newDriver(t, 1, collisionParticles())
	split := newDriver(t, 2, collisionParticles())
	ex := split.Exchanger.(*LocalExchanger)

	require.NoError(t, split.Setup())
	assert.Equal(t, 1, ex.Migrated, "particle 2 starts in the upper partition")
	r0, r1 := split.Solvers[0], split.Solvers[1]
	assert.Equal(t, []particles.ID{1, 3}, r0.Particles.Local())
	assert.Equal(t, []particles.ID{2}, r1.Particles.Local())
	assert.Equal(t, []particles.ID{2}, r0.Particles.Ghost())
	assert.Equal(t, []particles.ID{1, 3}, r1.Particles.Ghost())

	for i := 0; i < 150; i++ {
		require.NoError(t, single.Step())
		require.NoError(t, split.Step())
	}

	// In contact: each side holds its own local-ghost record
	require.Len(t, r0.Contacts.LocalGhost, 1)
	require.Len(t, r1.Contacts.LocalGhost, 1)
	assert.Empty(t, r0.Contacts.LocalLocal)
	assert.Empty(t, r1.Contacts.LocalLocal)
	for _, rec := range r0.Contacts.LocalGhost {
		assert.Equal(t, particles.ID(1), rec.IDOne)
		assert.Equal(t, particles.ID(2), rec.IDTwo)
		assert.InDelta(t, 1, rec.Normal.Y, 1e-12)
		assert.Greater(t, rec.Overlap, 0.)
	}
	for _, rec := range r1.Contacts.LocalGhost {
		assert.Equal(t, particles.ID(2), rec.IDOne)
		assert.Equal(t, particles.ID(1), rec.IDTwo)
		assert.InDelta(t, -1, rec.Normal.Y, 1e-12)
	}
	require.Len(t, single.Solvers[0].Contacts.LocalLocal, 1)

	for i := 150; i < 400; i++ {
		require.NoError(t, single.Step())
		require.NoError(t, split.Step())
	}
	for _, id := range []particles.ID{1, 2, 3} {
		a, b := owned(t, single, id), owned(t, split, id)
		assert.InDelta(t, a.Position.Y, b.Position.Y, 1e-12, "particle %d", id)
		assert.InDelta(t, a.Velocity.Y, b.Velocity.Y, 1e-9, "particle %d", id)
	}

	// Particle 3 migrated to the upper partition
	p3, err := r1.Particles.Get(3)
	require.NoError(t, err)
	assert.False(t, p3.Ghost)
	assert.True(t, mustGet(t, r0, 3).Ghost)
	assert.InDelta(t, 0.001, p3.Position.Y, 1e-12)
}

// pairRecord returns the record of (a, b) held by s, a local
func pairRecord(s *Solver, a, b particles.ID) *contact.PairRecord {
	if rec, ok := s.Contacts.LocalLocal[contact.OrderedKey(a, b)]; ok {
		return rec
	}
	return s.Contacts.LocalGhost[contact.PairKey{One: a, Two: b}]
}

// A sliding contact whose particle 2 crosses into the upper partition keeps
// its tangential spring on both sides of the partition boundary
func TestMigration_KeepsTangentialHistory(t *testing.T) {
	ps := []particles.Particle{
		sphere(1, r3.Vec{X: 0.01, Y: -0.005}, r3.Vec{X: 0.02, Y: 0.5}),
		sphere(2, r3.Vec{X: 0.01, Y: -0.0001}, r3.Vec{Y: 0.5}),
	}
	single := newDriver(t, 1, ps)
	split := newDriver(t, 2, ps)
	ex := split.Exchanger.(*LocalExchanger)
	r0, r1 := split.Solvers[0], split.Solvers[1]

	require.NoError(t, split.Setup())
	require.NotNil(t, r0.Contacts.LocalLocal[contact.PairKey{One: 1, Two: 2}], "both start in the lower partition")

	crossed, handed := false, 0
	for i := 1; i <= 30; i++ {
		require.NoError(t, single.Step())
		require.NoError(t, split.Step())
		handed += ex.Records

		ref := pairRecord(single.Solvers[0], 1, 2)
		require.NotNil(t, ref, "step %d", i)
		if ref.Overlap <= 0 {
			continue
		}
		lower := pairRecord(r0, 1, 2)
		require.NotNil(t, lower, "step %d", i)
		assert.InDelta(t, ref.Overlap, lower.Overlap, 1e-15, "step %d", i)
		assert.InDelta(t, ref.TangentialDisplacement.X, lower.TangentialDisplacement.X, 1e-15, "step %d", i)
		assert.InDelta(t, ref.TangentialDisplacement.Y, lower.TangentialDisplacement.Y, 1e-15, "step %d", i)

		if p2 := mustGet(t, r1, 2); p2.Ghost {
			continue
		}
		crossed = true
		upper := r1.Contacts.LocalGhost[contact.PairKey{One: 2, Two: 1}]
		require.NotNil(t, upper, "step %d", i)
		assert.InDelta(t, -ref.TangentialDisplacement.X, upper.TangentialDisplacement.X, 1e-15, "step %d", i)
		assert.InDelta(t, -ref.Normal.Y, upper.Normal.Y, 1e-12, "step %d", i)
		assert.Empty(t, r0.Contacts.LocalLocal, "step %d", i)
	}
	require.True(t, crossed, "particle 2 must change partition while touching")
	assert.NotZero(t, pairRecord(single.Solvers[0], 1, 2).TangentialDisplacement.X)

	for _, id := range []particles.ID{1, 2} {
		a, b := owned(t, single, id), owned(t, split, id)
		assert.InDelta(t, a.Position.X, b.Position.X, 1e-15, "particle %d", id)
		assert.InDelta(t, a.Velocity.X, b.Velocity.X, 1e-12, "particle %d", id)
	}
	assert.Equal(t, 1, handed, "the pair record travels with particle 2")
}

func mustGet(t *testing.T, s *Solver, id particles.ID) *particles.Particle {
	t.Helper()
	p, err := s.Particles.Get(id)
	require.NoError(t, err)
	return p
}

func TestRestore_ContinuesUninterrupted(t *testing.T) {
	reference := newDriver(t, 2, collisionParticles())
	require.NoError(t, reference.Run(300))

	first := newDriver(t, 2, collisionParticles())
	require.NoError(t, first.Run(150))
	var bufs []*bytes.Buffer
	for _, s := range first.Solvers {
		var buf bytes.Buffer
		require.NoError(t, WriteSnapshot(&buf, s.Snapshot()))
		bufs = append(bufs, &buf)
	}

	restarted := newDriver(t, 2, nil)
	for r, s := range restarted.Solvers {
		snap, err := ReadSnapshot(bufs[r])
		require.NoError(t, err)
		require.NoError(t, s.Restore(snap))
	}
	assert.InDelta(t, 150*dt, restarted.Time(), 1e-15)
	require.Len(t, restarted.Solvers[0].Contacts.LocalGhost, 1)
	require.NoError(t, restarted.Run(150))

	for _, id := range []particles.ID{1, 2, 3} {
		a, b := owned(t, reference, id), owned(t, restarted, id)
		assert.InDelta(t, a.Position.Y, b.Position.Y, 1e-15, "particle %d", id)
		assert.InDelta(t, a.Velocity.Y, b.Velocity.Y, 1e-12, "particle %d", id)
	}

	s := restarted.Solvers[0]
	assert.Error(t, s.Restore(&Snapshot{Rank: 1}))
}

func TestWallBounce_Euler(t *testing.T) {
	m := mesh.HyperCube(2, -0.05, 0.05, 2)
	idx, err := neighbors.New(m, nil, 0)
	require.NoError(t, err)
	opts := options(m, idx, 0)
	opts.Scheme = integrator.ExplicitEuler
	opts.Gravity = r3.Vec{Y: -9.81}
	s, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, s.Particles.Insert(sphere(1, r3.Vec{X: 0.01, Y: -0.045}, r3.Vec{Y: -0.5})))

	minY, touched := math.Inf(1), false
	for i := 0; i < 800; i++ {
		require.NoError(t, s.Step())
		p := mustGet(t, s, 1)
		minY = math.Min(minY, p.Position.Y)
		if len(s.Contacts.Wall) > 0 {
			touched = true
			for _, rec := range s.Contacts.Wall {
				assert.InDelta(t, -1, rec.Normal.Y, 1e-12)
			}
		}
	}
	p := mustGet(t, s, 1)
	rest := -0.05 + 0.5*diameter
	assert.True(t, touched)
	assert.Less(t, minY, rest)
	assert.Greater(t, minY, rest-2e-4)
	assert.Greater(t, p.Velocity.Y, 0.)
	assert.InDelta(t, 0, p.Velocity.X, 1e-15)
}

func TestFloatingWall_ActiveWindow(t *testing.T) {
	run := func(end float64) *particles.Particle {
		m := mesh.HyperCube(2, -0.05, 0.05, 2)
		idx, err := neighbors.New(m, nil, 0)
		require.NoError(t, err)
		opts := options(m, idx, 0)
		opts.FloatingWalls = []search.FloatingWall{
			{ID: 0, Normal: r3.Vec{Y: 1}, Start: 0, End: end},
		}
		s, err := New(opts)
		require.NoError(t, err)
		require.NoError(t, s.Particles.Insert(sphere(1, r3.Vec{X: 0.01, Y: 0.004}, r3.Vec{Y: -0.5})))
		for i := 0; i < 600; i++ {
			require.NoError(t, s.Step())
		}
		return mustGet(t, s, 1)
	}

	stopped := run(1)
	assert.Greater(t, stopped.Velocity.Y, 0.)
	assert.Greater(t, stopped.Position.Y, 0.)

	passed := run(0)
	assert.InDelta(t, -0.5, passed.Velocity.Y, 1e-12)
	assert.InDelta(t, 0.004-600*dt*0.5, passed.Position.Y, 1e-12)
}

func TestSetup_Errors(t *testing.T) {
	m := mesh.HyperCube(2, -0.05, 0.05, 2)
	idx, err := neighbors.New(m, nil, 0)
	require.NoError(t, err)

	s, err := New(options(m, idx, 0))
	require.NoError(t, err)
	p := sphere(1, r3.Vec{}, r3.Vec{})
	p.Type = 2
	require.NoError(t, s.Particles.Insert(p))
	err = s.Setup()
	assert.True(t, errors.Is(err, properties.ErrMissingProperties), "got %v", err)

	s, err = New(options(m, idx, 0))
	require.NoError(t, err)
	require.NoError(t, s.Particles.Insert(sphere(1, r3.Vec{X: 1}, r3.Vec{})))
	assert.True(t, errors.Is(s.Step(), particles.ErrOutsideMesh))

	opts := options(m, idx, 0)
	opts.TimeStep = 0
	_, err = New(opts)
	assert.Error(t, err)
	opts = options(m, idx, 0)
	opts.Materials = nil
	_, err = New(opts)
	assert.True(t, errors.Is(err, properties.ErrMissingProperties))
}

func TestSetup_LogsRayleighFraction(t *testing.T) {
	m := mesh.HyperCube(2, -0.05, 0.05, 2)
	idx, err := neighbors.New(m, nil, 0)
	require.NoError(t, err)
	var buf bytes.Buffer
	opts := options(m, idx, 0)
	opts.Logger = log.New(&buf, "", 0)
	opts.LogEvery = 1
	s, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, s.Particles.Insert(sphere(1, r3.Vec{}, r3.Vec{})))
	require.NoError(t, s.Step())

	out := buf.String()
	assert.Contains(t, out, "Rayleigh time step")
	assert.Contains(t, out, "[rank 0] step 1")
	tr := properties.RayleighTimeStep(glass, 0.5*diameter)
	assert.InDelta(t, tr, s.RayleighTimeStep(), 1e-18)
}

func TestInsert_PositionPreStep(t *testing.T) {
	m := mesh.HyperCube(2, -0.05, 0.05, 2)
	idx, err := neighbors.New(m, nil, 0)
	require.NoError(t, err)
	opts := options(m, idx, 0)
	opts.Scheme = integrator.ExplicitEuler
	opts.Gravity = r3.Vec{Y: -9.81}
	s, err := New(opts)
	require.NoError(t, err)

	require.NoError(t, s.Insert(sphere(1, r3.Vec{X: -0.03}, r3.Vec{X: 0.1})))
	require.NoError(t, s.Setup())
	require.NoError(t, s.Insert(sphere(2, r3.Vec{X: 0.03}, r3.Vec{X: -0.1})))
	assert.False(t, s.Particles.Has(2), "inserted particles wait for the next step")

	assert.True(t, errors.Is(s.Insert(sphere(1, r3.Vec{}, r3.Vec{})), particles.ErrDuplicateParticle))
	assert.True(t, errors.Is(s.Insert(sphere(2, r3.Vec{}, r3.Vec{})), particles.ErrDuplicateParticle))
	bad := sphere(3, r3.Vec{}, r3.Vec{})
	bad.Type = 5
	assert.True(t, errors.Is(s.Insert(bad), properties.ErrMissingProperties))

	require.NoError(t, s.Step())
	g := opts.Gravity.Y

	// A full Euler step for the established particle
	p1 := mustGet(t, s, 1)
	assert.InDelta(t, g*dt, p1.Velocity.Y, 1e-15)
	assert.InDelta(t, g*dt*dt, p1.Position.Y, 1e-18)

	// A half kick and a drift for the newcomer
	p2 := mustGet(t, s, 2)
	assert.False(t, p2.Ghost)
	assert.InDelta(t, 0.5*g*dt, p2.Velocity.Y, 1e-15)
	assert.InDelta(t, 0.5*g*dt*dt, p2.Position.Y, 1e-18)
	assert.InDelta(t, 0.03-0.1*dt, p2.Position.X, 1e-15)
	assert.GreaterOrEqual(t, p2.Cell, 0, "located by the contact pipeline")
}

func TestDriver_ScheduledInsertion(t *testing.T) {
	d := newDriver(t, 2, collisionParticles())
	d.Insertions = []Insertion{{
		Time:      5 * dt,
		Particles: []particles.Particle{sphere(9, r3.Vec{X: -0.03, Y: 0.03}, r3.Vec{})},
	}}
	require.NoError(t, d.Run(5))
	_, err := d.Particle(9)
	assert.True(t, errors.Is(err, particles.ErrUnknownParticle))

	require.NoError(t, d.Run(1))
	p := owned(t, d, 9)
	assert.Equal(t, []particles.ID{2, 9}, d.Solvers[1].Particles.Local(), "handed to the upper partition")
	assert.Equal(t, 0., p.Velocity.Y)

	// Due insertions happen once, and a clash with a live particle fails
	require.NoError(t, d.Run(3))
	assert.Len(t, d.Solvers[1].Particles.Local(), 2)
	assert.True(t, errors.Is(d.Insert(sphere(3, r3.Vec{}, r3.Vec{})), particles.ErrDuplicateParticle))
}

func TestReentrantCorner_Bounce(t *testing.T) {
	// Box [0,0.04]^2 with the quadrant x > 0.02, y < 0.02 solid
	const h = 0.02
	var verts []r3.Vec
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			verts = append(verts, r3.Vec{X: h * float64(i), Y: h * float64(j)})
		}
	}
	quad := func(i, j int) []int { return []int{i + 3*j, i + 1 + 3*j, i + 3*(j+1), i + 1 + 3*(j+1)} }
	m := mesh.NewMesh(2, verts, [][]int{quad(0, 0), quad(0, 1), quad(1, 1)},
		[]mesh.CellType{mesh.Quad, mesh.Quad, mesh.Quad})
	idx, err := neighbors.New(m, nil, 0)
	require.NoError(t, err)
	s, err := New(options(m, idx, 0))
	require.NoError(t, err)
	v0 := r3.Vec{X: 0.3, Y: -0.3}
	require.NoError(t, s.Particles.Insert(sphere(1, r3.Vec{X: 0.0175, Y: 0.0225}, v0)))

	touched := false
	for i := 0; i < 600; i++ {
		require.NoError(t, s.Step())
		assert.Empty(t, s.Contacts.Wall, "step %d", i)
		if len(s.Contacts.Feature) > 0 {
			touched = true
		}
	}
	p := mustGet(t, s, 1)
	assert.True(t, touched)
	assert.Less(t, p.Velocity.X, 0.)
	assert.Greater(t, p.Velocity.Y, 0.)
	assert.InDelta(t, -p.Velocity.X, p.Velocity.Y, 1e-9)
	speed := r3.Norm(p.Velocity)
	assert.Less(t, speed, r3.Norm(v0))
	assert.Greater(t, speed, 0.5*r3.Norm(v0))
	assert.Equal(t, r3.Vec{}, p.Omega)
}
