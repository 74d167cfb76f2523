package solver

import (
	"fmt"
	"log"
	"math"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/force"
	"github.com/notargets/DEMKernel/integrator"
	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/neighbors"
	"github.com/notargets/DEMKernel/particles"
	"github.com/notargets/DEMKernel/properties"
	"github.com/notargets/DEMKernel/search"
	"gonum.org/v1/gonum/spatial/r3"
)

// Options configures one subdomain solver
type Options struct {
	Rank  int
	Mesh  *mesh.Mesh
	Index *neighbors.Index

	// Contact laws
	Materials              []properties.Material // Indexed by particle type
	Wall                   properties.Material
	Normal                 force.NormalModel
	Rolling                force.RollingModel
	CharacteristicVelocity float64

	// Time stepping
	Scheme   integrator.Scheme
	TimeStep float64
	Gravity  r3.Vec

	// Pairs further apart than this are skipped by the fine search, 0 disables
	NeighborhoodThreshold float64

	FloatingWalls []search.FloatingWall

	// Progress output, nil is silent
	Logger   *log.Logger
	LogEvery int
}

// StepStats summarizes the contact bookkeeping of the last step
type StepStats struct {
	Candidates int // Broad search pairs, particle-particle and particle-wall
	Kept       int // Records reconciled by the localizer
	Moved      int // Kept records refiled after a partner changed subdomain
	Erased     int
	Created    int // Records created by the fine search
	Contacts   int // Records after the fine search
}

func (st StepStats) String() string {
	return fmt.Sprintf("candidates %d, kept %d (moved %d), erased %d, created %d, contacts %d",
		st.Candidates, st.Kept, st.Moved, st.Erased, st.Created, st.Contacts)
}

// Solver advances the particles of one subdomain. All of its stages run
// sequentially on the calling goroutine.
type Solver struct {
	Rank      int
	Mesh      *mesh.Mesh
	Index     *neighbors.Index
	Particles *particles.Store
	Contacts  *contact.Store
	Forces    *particles.Accumulators
	Model     *force.Model

	Scheme                integrator.Scheme
	TimeStep              float64
	Gravity               r3.Vec
	NeighborhoodThreshold float64
	FloatingWalls         []search.FloatingWall

	Time      float64
	StepCount int
	Stats     StepStats

	materials []properties.Material
	logger    *log.Logger
	logEvery  int
	ready     bool
	inserted  []particles.Particle // Waiting for the next Advance
}

// New builds a solver with an empty particle store
func New(opts Options) (*Solver, error) {
	if opts.Mesh == nil || opts.Index == nil {
		return nil, fmt.Errorf("rank %d: solver needs a mesh and a neighbor index", opts.Rank)
	}
	if !(opts.TimeStep > 0) {
		return nil, fmt.Errorf("rank %d: time step must be positive, got %g", opts.Rank, opts.TimeStep)
	}
	table, err := properties.NewTable(opts.Materials, opts.Wall)
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", opts.Rank, err)
	}
	model := force.NewModel(opts.Normal, opts.Rolling, table)
	if opts.CharacteristicVelocity > 0 {
		model.CharacteristicVelocity = opts.CharacteristicVelocity
	}
	return &Solver{
		Rank:                  opts.Rank,
		Mesh:                  opts.Mesh,
		Index:                 opts.Index,
		Particles:             particles.NewStore(),
		Contacts:              contact.NewStore(),
		Forces:                particles.NewAccumulators(),
		Model:                 model,
		Scheme:                opts.Scheme,
		TimeStep:              opts.TimeStep,
		Gravity:               opts.Gravity,
		NeighborhoodThreshold: opts.NeighborhoodThreshold,
		FloatingWalls:         opts.FloatingWalls,
		materials:             opts.Materials,
		logger:                opts.Logger,
		logEvery:              opts.LogEvery,
	}, nil
}

func (s *Solver) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf("[rank %d] "+format, append([]interface{}{s.Rank}, args...)...)
	}
}

// Validate checks every particle type has contact properties
func (s *Solver) Validate() error {
	var err error
	s.Particles.Each(func(p *particles.Particle) {
		if err != nil {
			return
		}
		if e := s.Model.Properties.CheckType(p.Type); e != nil {
			err = fmt.Errorf("rank %d, particle %d: %w", s.Rank, p.ID, e)
		}
	})
	return err
}

// RayleighTimeStep returns the smallest Rayleigh time step over the local
// particles, +Inf without particles
func (s *Solver) RayleighTimeStep() float64 {
	tr := math.Inf(1)
	s.Particles.EachLocal(func(p *particles.Particle) {
		if p.Type >= 0 && p.Type < len(s.materials) {
			tr = math.Min(tr, properties.RayleighTimeStep(s.materials[p.Type], p.Radius))
		}
	})
	return tr
}

// Setup validates the particles and computes the initial contact forces. It
// runs once, before the first step; particle ownership must be current.
func (s *Solver) Setup() error {
	if s.ready {
		return nil
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if tr := s.RayleighTimeStep(); !math.IsInf(tr, 1) {
		s.logf("time step %g is %.1f%% of the Rayleigh time step %g", s.TimeStep, 100*s.TimeStep/tr, tr)
	}
	if err := s.interact(); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Insert adds a local particle. Before Setup it joins the store directly;
// afterwards it waits for the next Advance, which gives it its position
// pre-step. Ownership is settled by the next exchange.
func (s *Solver) Insert(p particles.Particle) error {
	if err := s.Model.Properties.CheckType(p.Type); err != nil {
		return fmt.Errorf("rank %d, particle %d: %w", s.Rank, p.ID, err)
	}
	p.Ghost = false
	if !s.ready {
		return s.Particles.Insert(p)
	}
	if s.Particles.Has(p.ID) {
		return fmt.Errorf("rank %d, insert %d: %w", s.Rank, p.ID, particles.ErrDuplicateParticle)
	}
	for _, q := range s.inserted {
		if q.ID == p.ID {
			return fmt.Errorf("rank %d, insert %d: %w", s.Rank, p.ID, particles.ErrDuplicateParticle)
		}
	}
	s.inserted = append(s.inserted, p)
	return nil
}

// Advance moves the local particles with the forces of the previous
// evaluation: a half kick and a drift for velocity Verlet, a full step for
// explicit Euler. Particles inserted since the last step have felt no force
// yet and take a half kick and a drift under the body force alone. Particle
// migration follows.
func (s *Solver) Advance() error {
	switch s.Scheme {
	case integrator.VelocityVerlet:
		integrator.HalfKick(s.Particles, s.Forces, s.Gravity, s.TimeStep)
		integrator.Drift(s.Particles, s.TimeStep)
	default:
		integrator.Integrate(s.Particles, s.Forces, s.Gravity, s.TimeStep)
	}
	if err := s.admit(); err != nil {
		return err
	}
	s.Time += s.TimeStep
	s.StepCount++
	return nil
}

// admit moves the waiting particles into the store after their pre-step
func (s *Solver) admit() error {
	if len(s.inserted) == 0 {
		return nil
	}
	fresh := particles.NewStore()
	for _, p := range s.inserted {
		if err := fresh.Insert(p); err != nil {
			return fmt.Errorf("rank %d: %w", s.Rank, err)
		}
	}
	s.inserted = nil
	integrator.IntegrateHalfStepLocation(fresh, particles.NewAccumulators(), s.Gravity, s.TimeStep)
	var err error
	fresh.EachLocal(func(p *particles.Particle) {
		if err == nil {
			err = s.Particles.Insert(*p)
		}
	})
	if err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	s.logf("inserted %d particles", fresh.Len())
	return nil
}

// Interact runs the contact pipeline at the new positions and, for velocity
// Verlet, completes the step with the second half kick. Particle ownership
// and ghost copies must be current.
func (s *Solver) Interact() error {
	if err := s.interact(); err != nil {
		return err
	}
	if s.Scheme == integrator.VelocityVerlet {
		integrator.HalfKick(s.Particles, s.Forces, s.Gravity, s.TimeStep)
	}
	if s.logEvery > 0 && s.StepCount%s.logEvery == 0 {
		s.logf("step %d, t = %g: %d local, %d ghost particles, %s",
			s.StepCount, s.Time, len(s.Particles.Local()), len(s.Particles.Ghost()), s.Stats)
	}
	return nil
}

// Step advances a solver that exchanges no particles with other subdomains
func (s *Solver) Step() error {
	if err := s.Setup(); err != nil {
		return err
	}
	if err := s.Advance(); err != nil {
		return err
	}
	return s.Interact()
}

// interact locates the particles, searches, localizes and computes forces
func (s *Solver) interact() error {
	if err := s.Particles.Locate(s.Mesh); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	occ := search.Occupancy(s.Particles.Occupancy())

	cand := contact.NewStepCandidates()
	cand.LocalLocal, cand.LocalGhost = search.FindParticleParticleCandidates(s.Index, occ)
	cand.Wall = search.FindParticleWallCandidates(s.Mesh, s.Index, occ)
	cand.FloatingWall = search.FindParticleFloatingWallCandidates(s.Mesh, s.Index, occ,
		s.FloatingWalls, s.Time, s.floatingWallMargin())
	cand.Feature = search.FindParticleFeatureCandidates(s.Mesh, s.Index, occ)

	var stats StepStats
	stats.Candidates = cand.LocalLocal.Len() + cand.LocalGhost.Len() + cand.Wall.Len() +
		cand.FloatingWall.Len() + cand.Feature.Len()
	ls := s.Contacts.Localize(cand)
	stats.Kept, stats.Moved, stats.Erased = ls.Kept, ls.Moved, ls.Erased

	before := s.Contacts.Len()
	if err := search.ParticleParticleFineSearch(cand.LocalLocal, cand.LocalGhost, s.Particles,
		s.Contacts, s.NeighborhoodThreshold, s.Time); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	if err := search.ParticleWallFineSearch(cand.Wall, s.Particles, s.Contacts, s.Time); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	if err := search.ParticleFloatingWallFineSearch(cand.FloatingWall, s.Particles, s.Contacts, s.Time); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	before -= len(s.Contacts.Feature)
	if err := search.ParticleFeatureFineSearch(cand.Feature, s.Mesh.Features, s.Particles, s.Contacts, s.Time); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	stats.Contacts = s.Contacts.Len()
	stats.Created = stats.Contacts - before
	s.Stats = stats

	s.Forces.Reset()
	clock := force.Clock{Time: s.Time, TimeStep: s.TimeStep}
	if err := s.Model.CalculateParticleParticle(s.Contacts, s.Particles, s.Forces, clock); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	if err := s.Model.CalculateParticleWall(s.Contacts, s.Particles, s.Forces, clock); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	if err := s.Model.CalculateParticleFeature(s.Contacts, s.Particles, s.Forces, clock); err != nil {
		return fmt.Errorf("rank %d, step %d: %w", s.Rank, s.StepCount, err)
	}
	return nil
}

// floatingWallMargin is the largest particle diameter present
func (s *Solver) floatingWallMargin() float64 {
	margin := 0.
	s.Particles.Each(func(p *particles.Particle) {
		margin = math.Max(margin, p.Diameter())
	})
	return margin
}
