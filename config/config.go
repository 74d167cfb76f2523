package config

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strconv"

	"github.com/notargets/DEMKernel/force"
	"github.com/notargets/DEMKernel/integrator"
	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/neighbors"
	"github.com/notargets/DEMKernel/particles"
	"github.com/notargets/DEMKernel/partitions"
	"github.com/notargets/DEMKernel/properties"
	"github.com/notargets/DEMKernel/search"
	"github.com/notargets/DEMKernel/solver"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/gcfg.v1"
)

type SimulationConfig struct {
	// Required
	TimeStep float64
	Steps    int

	// Optional
	GravityX, GravityY, GravityZ float64
	NeighborhoodThreshold        float64
	OutputFrequency              int // Steps between particle state prints
	LogFrequency                 int // Steps between contact statistics, 0 is silent
}

type ModelConfig struct {
	NormalForce            force.NormalModel
	RollingResistance      force.RollingModel
	Integrator             integrator.Scheme
	CharacteristicVelocity float64
}

type MeshConfig struct {
	Type string // hypercube or file

	// Generated box
	Dim        int
	Lo, Hi     float64
	Refinement int

	File string
}

type PartitionConfig struct {
	Count    int
	Strategy string
}

type ParticleConfig struct {
	// Required
	Diameter float64

	// Optional
	Type       int
	X, Y, Z    float64
	VX, VY, VZ float64
	WX, WY, WZ float64
}

type FloatingWallConfig struct {
	PointX, PointY, PointZ    float64
	NormalX, NormalY, NormalZ float64
	Start, End                float64
}

// LatticeConfig fills the box [Lo, Hi] with spheres on a square lattice.
// A positive InsertTime holds the lattice back until that time.
type LatticeConfig struct {
	// Required
	Diameter, Spacing float64
	LoX, LoY, LoZ     float64
	HiX, HiY, HiZ     float64

	// Optional
	Type       int
	VX, VY, VZ float64
	InsertTime float64
}

type Config struct {
	Simulation   SimulationConfig
	Model        ModelConfig
	Material     map[string]*properties.Material
	Wall         properties.Material
	Mesh         MeshConfig
	Partition    PartitionConfig
	Particle     map[string]*ParticleConfig
	FloatingWall map[string]*FloatingWallConfig
	Lattice      map[string]*LatticeConfig
}

// ReadFile reads and validates a configuration file
func ReadFile(fname string) (*Config, error) {
	c := &Config{}
	if err := gcfg.ReadFileInto(c, fname); err != nil {
		return nil, err
	}
	if err := c.CheckInit(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return c, nil
}

// ReadString reads and validates configuration text
func ReadString(text string) (*Config, error) {
	c := &Config{}
	if err := gcfg.ReadStringInto(c, text); err != nil {
		return nil, err
	}
	if err := c.CheckInit(); err != nil {
		return nil, err
	}
	return c, nil
}

// CheckInit validates the configuration and fills in defaults
func (c *Config) CheckInit() error {
	sim := &c.Simulation
	if !(sim.TimeStep > 0) {
		return fmt.Errorf("Need to specify a positive timeStep in [simulation], got %g.", sim.TimeStep)
	}
	if sim.Steps < 0 {
		return fmt.Errorf("[simulation] steps must be non negative, but is %d.", sim.Steps)
	}
	if sim.NeighborhoodThreshold < 0 {
		return fmt.Errorf("[simulation] neighborhoodThreshold must be non negative, but is %g.",
			sim.NeighborhoodThreshold)
	}
	if sim.OutputFrequency <= 0 {
		sim.OutputFrequency = sim.Steps
	}
	if c.Model.CharacteristicVelocity < 0 {
		return fmt.Errorf("[model] characteristicVelocity must be positive, but is %g.",
			c.Model.CharacteristicVelocity)
	}

	if _, err := c.Materials(); err != nil {
		return err
	}
	if err := c.Wall.Validate(); err != nil {
		return fmt.Errorf("Invalid [wall] material: %w", err)
	}

	switch c.Mesh.Type {
	case "", "hypercube":
		c.Mesh.Type = "hypercube"
		if c.Mesh.Dim != 2 && c.Mesh.Dim != 3 {
			return fmt.Errorf("[mesh] dim must be 2 or 3, but is %d.", c.Mesh.Dim)
		}
		if !(c.Mesh.Hi > c.Mesh.Lo) {
			return fmt.Errorf("[mesh] needs lo < hi, got [%g, %g].", c.Mesh.Lo, c.Mesh.Hi)
		}
		if c.Mesh.Refinement < 0 {
			return fmt.Errorf("[mesh] refinement must be non negative, but is %d.", c.Mesh.Refinement)
		}
	case "file":
		if c.Mesh.File == "" {
			return fmt.Errorf("[mesh] of type file needs a file name.")
		}
	default:
		return fmt.Errorf("Unknown [mesh] type '%s'.", c.Mesh.Type)
	}

	if c.Partition.Count < 0 {
		return fmt.Errorf("[partition] count must be non negative, but is %d.", c.Partition.Count)
	}
	if _, err := partitions.ParseStrategy(c.Partition.Strategy); err != nil {
		return fmt.Errorf("[partition]: %w", err)
	}

	numTypes := len(c.Material)
	for name, p := range c.Particle {
		if _, err := strconv.ParseUint(name, 10, 64); err != nil {
			return fmt.Errorf("Particle '%s' needs a non negative integer id.", name)
		}
		if !(p.Diameter > 0) {
			return fmt.Errorf("Need to specify a positive diameter for Particle '%s'.", name)
		}
		if p.Type < 0 || p.Type >= numTypes {
			return fmt.Errorf("Particle '%s' has type %d, but only %d materials are given.",
				name, p.Type, numTypes)
		}
	}
	for name, l := range c.Lattice {
		if !(l.Diameter > 0) {
			return fmt.Errorf("Need to specify a positive diameter for Lattice '%s'.", name)
		}
		if l.Spacing < l.Diameter {
			return fmt.Errorf("Lattice '%s' spacing %g is smaller than its diameter %g.",
				name, l.Spacing, l.Diameter)
		}
		if l.Type < 0 || l.Type >= numTypes {
			return fmt.Errorf("Lattice '%s' has type %d, but only %d materials are given.",
				name, l.Type, numTypes)
		}
		if l.InsertTime < 0 {
			return fmt.Errorf("Lattice '%s' insertTime must be non negative, but is %g.", name, l.InsertTime)
		}
	}
	for name, w := range c.FloatingWall {
		if _, err := strconv.Atoi(name); err != nil {
			return fmt.Errorf("FloatingWall '%s' needs an integer id.", name)
		}
		if r3.Norm(r3.Vec{X: w.NormalX, Y: w.NormalY, Z: w.NormalZ}) == 0 {
			return fmt.Errorf("Need to specify a nonzero normal for FloatingWall '%s'.", name)
		}
		if w.End < w.Start {
			return fmt.Errorf("FloatingWall '%s' ends at %g before it starts at %g.", name, w.End, w.Start)
		}
	}
	return nil
}

// Gravity returns the body acceleration
func (c *Config) Gravity() r3.Vec {
	return r3.Vec{X: c.Simulation.GravityX, Y: c.Simulation.GravityY, Z: c.Simulation.GravityZ}
}

// Materials returns the particle materials indexed by type. Material
// sections must be named 0, 1, ... without gaps.
func (c *Config) Materials() ([]properties.Material, error) {
	if len(c.Material) == 0 {
		return nil, fmt.Errorf("Need at least one [material \"0\"] section: %w", properties.ErrMissingProperties)
	}
	mats := make([]properties.Material, len(c.Material))
	for name, m := range c.Material {
		typ, err := strconv.Atoi(name)
		if err != nil || typ < 0 || typ >= len(mats) {
			return nil, fmt.Errorf("Material '%s' must be named by a type in [0, %d).", name, len(mats))
		}
		if err = m.Validate(); err != nil {
			return nil, fmt.Errorf("Invalid Material '%s': %w", name, err)
		}
		mats[typ] = *m
	}
	return mats, nil
}

// BuildMesh generates or reads the mesh
func (c *Config) BuildMesh() (*mesh.Mesh, error) {
	if c.Mesh.Type == "file" {
		return mesh.ReadMeshFile(c.Mesh.File)
	}
	return mesh.HyperCube(c.Mesh.Dim, c.Mesh.Lo, c.Mesh.Hi, c.Mesh.Refinement), nil
}

// Layout decomposes the mesh. A partition stored with the mesh is used when
// no partition count is configured.
func (c *Config) Layout(m *mesh.Mesh) (*partitions.PartitionLayout, error) {
	if c.Partition.Count == 0 && m.EToP != nil {
		return partitions.LayoutFromAssignment(m.EToP)
	}
	strategy, err := partitions.ParseStrategy(c.Partition.Strategy)
	if err != nil {
		return nil, err
	}
	pb := &partitions.PartitionBuilder{Mesh: m, NumPartitions: c.Partition.Count, Strategy: strategy}
	return pb.BuildPartitions()
}

// Particles returns the particles present from the start, in id order.
// Lattice particles are numbered after the largest explicit id, lattices in
// name order, held back lattices included.
func (c *Config) Particles() ([]particles.Particle, error) {
	ps, _, err := c.placements()
	return ps, err
}

// Insertions returns the held back lattices in time order
func (c *Config) Insertions() ([]solver.Insertion, error) {
	_, ins, err := c.placements()
	return ins, err
}

func (c *Config) placements() ([]particles.Particle, []solver.Insertion, error) {
	mats, err := c.Materials()
	if err != nil {
		return nil, nil, err
	}
	var (
		ps   []particles.Particle
		ins  []solver.Insertion
		next particles.ID
	)
	for _, name := range sortedNames(c.Particle) {
		id, _ := strconv.ParseUint(name, 10, 64)
		pc := c.Particle[name]
		p := particles.NewSphere(particles.ID(id), pc.Type, pc.Diameter, mats[pc.Type].Density,
			r3.Vec{X: pc.X, Y: pc.Y, Z: pc.Z})
		p.Velocity = r3.Vec{X: pc.VX, Y: pc.VY, Z: pc.VZ}
		p.Omega = r3.Vec{X: pc.WX, Y: pc.WY, Z: pc.WZ}
		ps = append(ps, p)
		if p.ID >= next {
			next = p.ID + 1
		}
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })

	for _, name := range sortedNames(c.Lattice) {
		l := c.Lattice[name]
		count := func(lo, hi float64) int {
			if hi < lo {
				return 1
			}
			return int(math.Floor((hi-lo)/l.Spacing+1e-9)) + 1
		}
		nx, ny, nz := count(l.LoX, l.HiX), count(l.LoY, l.HiY), count(l.LoZ, l.HiZ)
		if c.Mesh.Dim == 2 {
			nz = 1
		}
		var block []particles.Particle
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					pos := r3.Vec{
						X: l.LoX + float64(i)*l.Spacing,
						Y: l.LoY + float64(j)*l.Spacing,
						Z: l.LoZ + float64(k)*l.Spacing,
					}
					p := particles.NewSphere(next, l.Type, l.Diameter, mats[l.Type].Density, pos)
					p.Velocity = r3.Vec{X: l.VX, Y: l.VY, Z: l.VZ}
					block = append(block, p)
					next++
				}
			}
		}
		if l.InsertTime > 0 {
			ins = append(ins, solver.Insertion{Time: l.InsertTime, Particles: block})
		} else {
			ps = append(ps, block...)
		}
	}
	sort.SliceStable(ins, func(i, j int) bool { return ins[i].Time < ins[j].Time })
	return ps, ins, nil
}

// FloatingWalls returns the configured floating walls with unit normals
func (c *Config) FloatingWalls() []search.FloatingWall {
	var walls []search.FloatingWall
	for _, name := range sortedNames(c.FloatingWall) {
		id, _ := strconv.Atoi(name)
		w := c.FloatingWall[name]
		n := r3.Vec{X: w.NormalX, Y: w.NormalY, Z: w.NormalZ}
		walls = append(walls, search.FloatingWall{
			ID:     id,
			Point:  r3.Vec{X: w.PointX, Y: w.PointY, Z: w.PointZ},
			Normal: r3.Unit(n),
			Start:  w.Start,
			End:    w.End,
		})
	}
	return walls
}

// SolverOptions returns the options of the solver of partition rank
func (c *Config) SolverOptions(m *mesh.Mesh, idx *neighbors.Index, logger *log.Logger) (solver.Options, error) {
	mats, err := c.Materials()
	if err != nil {
		return solver.Options{}, err
	}
	return solver.Options{
		Rank:                   idx.Rank,
		Mesh:                   m,
		Index:                  idx,
		Materials:              mats,
		Wall:                   c.Wall,
		Normal:                 c.Model.NormalForce,
		Rolling:                c.Model.RollingResistance,
		CharacteristicVelocity: c.Model.CharacteristicVelocity,
		Scheme:                 c.Model.Integrator,
		TimeStep:               c.Simulation.TimeStep,
		Gravity:                c.Gravity(),
		NeighborhoodThreshold:  c.Simulation.NeighborhoodThreshold,
		FloatingWalls:          c.FloatingWalls(),
		Logger:                 logger,
		LogEvery:               c.Simulation.LogFrequency,
	}, nil
}

// Build creates the mesh, its decomposition and one solver per partition,
// with every configured particle handed to rank 0. The driver's first
// exchange distributes them; held back lattices are scheduled with the
// driver.
func (c *Config) Build(logger *log.Logger) (*solver.Driver, *partitions.PartitionLayout, error) {
	m, err := c.BuildMesh()
	if err != nil {
		return nil, nil, err
	}
	layout, err := c.Layout(m)
	if err != nil {
		return nil, nil, err
	}
	ps, ins, err := c.placements()
	if err != nil {
		return nil, nil, err
	}

	d := &solver.Driver{Exchanger: solver.NewLocalExchanger(layout), Insertions: ins}
	for rank := 0; rank < layout.NumPartitions; rank++ {
		idx, err := neighbors.New(m, layout.EToP, rank)
		if err != nil {
			return nil, nil, fmt.Errorf("partition %d: %w", rank, err)
		}
		opts, err := c.SolverOptions(m, idx, logger)
		if err != nil {
			return nil, nil, err
		}
		s, err := solver.New(opts)
		if err != nil {
			return nil, nil, err
		}
		d.Solvers = append(d.Solvers, s)
	}
	for _, p := range ps {
		if err = d.Solvers[0].Particles.Insert(p); err != nil {
			return nil, nil, err
		}
	}
	return d, layout, nil
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, aerr := strconv.Atoi(names[i])
		b, berr := strconv.Atoi(names[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		return names[i] < names[j]
	})
	return names
}
