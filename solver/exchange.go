package solver

import (
	"fmt"

	"github.com/notargets/DEMKernel/particles"
	"github.com/notargets/DEMKernel/partitions"
)

// Exchanger moves particles between subdomains after every position update.
// Migration hands a particle, with its contact records, to the partition
// owning its new cell. The ghost refresh copies every particle lying in a
// halo cell of another partition into that partition's store.
type Exchanger interface {
	Exchange(solvers []*Solver) error
}

// LocalExchanger exchanges particles between solvers of one process
type LocalExchanger struct {
	EToP []int // Cell to owning partition

	// Counters of the last exchange
	Migrated int
	Ghosts   int
	Records  int // Contact records handed over with migrating particles
}

func NewLocalExchanger(layout *partitions.PartitionLayout) *LocalExchanger {
	return &LocalExchanger{EToP: layout.EToP}
}

// Exchange migrates then refreshes the ghosts of every solver. Solver i must
// have rank i.
func (ex *LocalExchanger) Exchange(solvers []*Solver) error {
	for i, s := range solvers {
		if s.Rank != i {
			return fmt.Errorf("solver %d has rank %d", i, s.Rank)
		}
	}
	if err := ex.migrate(solvers); err != nil {
		return err
	}
	return ex.refreshGhosts(solvers)
}

func (ex *LocalExchanger) owner(s *Solver, p *particles.Particle) (int, error) {
	cell, ok := s.Mesh.Locate(p.Position)
	if !ok {
		return -1, fmt.Errorf("rank %d, particle %d at %v: %w", s.Rank, p.ID, p.Position, particles.ErrOutsideMesh)
	}
	p.Cell = cell
	return ex.EToP[cell], nil
}

func (ex *LocalExchanger) migrate(solvers []*Solver) error {
	ex.Migrated, ex.Records = 0, 0
	type move struct {
		from, to int
		id       particles.ID
	}
	var moves []move
	for _, s := range solvers {
		for _, id := range s.Particles.Local() {
			p, err := s.Particles.Get(id)
			if err != nil {
				return err
			}
			to, err := ex.owner(s, p)
			if err != nil {
				return err
			}
			if to != s.Rank {
				moves = append(moves, move{from: s.Rank, to: to, id: id})
			}
		}
	}
	for _, mv := range moves {
		if mv.to < 0 || mv.to >= len(solvers) {
			return fmt.Errorf("particle %d migrates to rank %d, only %d solvers", mv.id, mv.to, len(solvers))
		}
		src := solvers[mv.from]
		p, err := src.Particles.Remove(mv.id)
		if err != nil {
			return err
		}
		ex.Records += solvers[mv.to].Contacts.Adopt(src.Contacts.Handover(mv.id))
		dst := solvers[mv.to].Particles
		if dst.Has(mv.id) {
			// Stale ghost copy of the incoming particle
			if _, err = dst.Remove(mv.id); err != nil {
				return err
			}
		}
		p.Ghost = false
		if err = dst.Insert(p); err != nil {
			return fmt.Errorf("rank %d: %w", mv.to, err)
		}
		ex.Migrated++
	}
	return nil
}

func (ex *LocalExchanger) refreshGhosts(solvers []*Solver) error {
	ex.Ghosts = 0
	halos := make([]map[int]struct{}, len(solvers))
	for r, s := range solvers {
		halos[r] = make(map[int]struct{}, len(s.Index.Halo))
		for _, c := range s.Index.Halo {
			halos[r][c] = struct{}{}
		}
	}
	incoming := make([][]particles.Particle, len(solvers))
	for src, s := range solvers {
		s.Particles.EachLocal(func(p *particles.Particle) {
			for dst := range solvers {
				if dst == src {
					continue
				}
				if _, ok := halos[dst][p.Cell]; ok {
					incoming[dst] = append(incoming[dst], *p)
				}
			}
		})
	}
	for r, s := range solvers {
		if err := s.Particles.ReplaceGhosts(incoming[r]); err != nil {
			return fmt.Errorf("rank %d: %w", r, err)
		}
		ex.Ghosts += len(incoming[r])
	}
	return nil
}

// Insertion schedules particles to enter the simulation at a given time
type Insertion struct {
	Time      float64
	Particles []particles.Particle

	done bool
}

// Driver advances a set of subdomain solvers in lock step
type Driver struct {
	Solvers    []*Solver
	Exchanger  Exchanger
	Insertions []Insertion

	ready bool
}

// Setup exchanges the initial particles and computes the initial forces.
// Insertions due before the current time, as after a restart, are skipped.
func (d *Driver) Setup() error {
	if d.ready {
		return nil
	}
	for i := range d.Insertions {
		if d.Insertions[i].Time <= d.Time()-0.5*d.timeStep() {
			d.Insertions[i].done = true
		}
	}
	if err := d.exchange(); err != nil {
		return err
	}
	for _, s := range d.Solvers {
		if err := s.Setup(); err != nil {
			return err
		}
	}
	d.ready = true
	return nil
}

// Step advances every solver by one time step
func (d *Driver) Step() error {
	if err := d.Setup(); err != nil {
		return err
	}
	if err := d.insertDue(); err != nil {
		return err
	}
	for _, s := range d.Solvers {
		if err := s.Advance(); err != nil {
			return err
		}
	}
	if err := d.exchange(); err != nil {
		return err
	}
	for _, s := range d.Solvers {
		if err := s.Interact(); err != nil {
			return err
		}
	}
	return nil
}

// Run takes n steps
func (d *Driver) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := d.Step(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// Insert hands new particles to rank 0; the exchange following the next
// Advance moves them to their owners
func (d *Driver) Insert(ps ...particles.Particle) error {
	if len(d.Solvers) == 0 {
		return fmt.Errorf("no solvers to insert into")
	}
	for _, p := range ps {
		if _, err := d.Particle(p.ID); err == nil {
			return fmt.Errorf("insert %d: %w", p.ID, particles.ErrDuplicateParticle)
		}
		if err := d.Solvers[0].Insert(p); err != nil {
			return err
		}
	}
	return nil
}

// insertDue inserts the scheduled particles whose time falls in the coming
// step
func (d *Driver) insertDue() error {
	now := d.Time() + 0.5*d.timeStep()
	for i := range d.Insertions {
		ins := &d.Insertions[i]
		if ins.done || ins.Time > now {
			continue
		}
		if err := d.Insert(ins.Particles...); err != nil {
			return fmt.Errorf("insertion at t = %g: %w", ins.Time, err)
		}
		ins.done = true
	}
	return nil
}

func (d *Driver) timeStep() float64 {
	if len(d.Solvers) == 0 {
		return 0
	}
	return d.Solvers[0].TimeStep
}

// Time returns the simulation time of the first solver
func (d *Driver) Time() float64 {
	if len(d.Solvers) == 0 {
		return 0
	}
	return d.Solvers[0].Time
}

// Particle returns the owning copy of a particle
func (d *Driver) Particle(id particles.ID) (*particles.Particle, error) {
	for _, s := range d.Solvers {
		if p, err := s.Particles.Get(id); err == nil && !p.Ghost {
			return p, nil
		}
	}
	return nil, fmt.Errorf("particle %d: %w", id, particles.ErrUnknownParticle)
}

func (d *Driver) exchange() error {
	if d.Exchanger == nil {
		return nil
	}
	if err := d.Exchanger.Exchange(d.Solvers); err != nil {
		return fmt.Errorf("exchange: %w", err)
	}
	return nil
}
