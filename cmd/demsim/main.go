package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/notargets/DEMKernel/config"
	"github.com/notargets/DEMKernel/particles"
	"github.com/notargets/DEMKernel/solver"
)

func main() {
	var (
		configFile  = flag.String("config", "", "simulation configuration file (gcfg)")
		steps       = flag.Int("steps", -1, "number of steps, overrides [simulation] steps")
		snapshotDir = flag.String("snapshot", "", "directory receiving one JSON snapshot per partition at the end")
		verbose     = flag.Bool("v", false, "log contact statistics")
	)
	flag.Parse()
	if *configFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.ReadFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}
	if *steps >= 0 {
		cfg.Simulation.Steps = *steps
		if cfg.Simulation.OutputFrequency > *steps || cfg.Simulation.OutputFrequency == 0 {
			cfg.Simulation.OutputFrequency = *steps
		}
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "demsim ", log.Lmicroseconds)
	}

	fmt.Printf("=== DEM particle contact simulation ===\n")
	driver, layout, err := cfg.Build(logger)
	if err != nil {
		log.Fatalf("Failed to build the simulation: %v", err)
	}
	m := driver.Solvers[0].Mesh
	fmt.Printf("Mesh: %d cells, %d boundary faces, %d wall planes\n",
		m.NumElements, len(m.Boundary), len(m.Planes))
	fmt.Printf("Partitions: %s\n", layout.PartitionStatistics())
	fmt.Printf("Model: %s normal force, %s rolling resistance, %s integration, dt = %g\n",
		cfg.Model.NormalForce, cfg.Model.RollingResistance, cfg.Model.Integrator, cfg.Simulation.TimeStep)

	if err = driver.Setup(); err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	printState(driver)

	for step := 1; step <= cfg.Simulation.Steps; step++ {
		if err = driver.Step(); err != nil {
			log.Fatalf("Simulation failed at step %d: %v", step, err)
		}
		if freq := cfg.Simulation.OutputFrequency; freq > 0 && step%freq == 0 {
			printState(driver)
		}
	}

	if *snapshotDir != "" {
		if err = writeSnapshots(driver, *snapshotDir); err != nil {
			log.Fatalf("Failed to write snapshots: %v", err)
		}
		fmt.Printf("Snapshots written to: %s\n", *snapshotDir)
	}
	fmt.Printf("Simulation complete!\n")
}

func printState(d *solver.Driver) {
	type owned struct {
		rank int
		p    *particles.Particle
	}
	var ps []owned
	contacts := 0
	for _, s := range d.Solvers {
		s.Particles.EachLocal(func(p *particles.Particle) {
			ps = append(ps, owned{rank: s.Rank, p: p})
		})
		contacts += s.Contacts.Len()
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].p.ID < ps[j].p.ID })

	fmt.Printf("\nt = %.6e, %d particles, %d contact records\n", d.Time(), len(ps), contacts)
	for _, o := range ps {
		p := o.p
		fmt.Printf("%6d rank %2d  x (%+.6e %+.6e %+.6e)  v (%+.6e %+.6e %+.6e)  w (%+.6e %+.6e %+.6e)\n",
			p.ID, o.rank, p.Position.X, p.Position.Y, p.Position.Z,
			p.Velocity.X, p.Velocity.Y, p.Velocity.Z, p.Omega.X, p.Omega.Y, p.Omega.Z)
	}
}

func writeSnapshots(d *solver.Driver, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, s := range d.Solvers {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("rank-%03d.json", s.Rank)))
		if err != nil {
			return err
		}
		if err = solver.WriteSnapshot(f, s.Snapshot()); err != nil {
			f.Close()
			return err
		}
		if err = f.Close(); err != nil {
			return err
		}
	}
	return nil
}
