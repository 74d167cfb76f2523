package integrator

import (
	"fmt"
	"strings"

	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// Scheme selects the time integration policy
type Scheme int

const (
	ExplicitEuler  Scheme = iota // Single pass, first order
	VelocityVerlet               // Kick-drift-kick, second order
)

func (s Scheme) String() string {
	switch s {
	case ExplicitEuler:
		return "euler"
	case VelocityVerlet:
		return "verlet"
	}
	return fmt.Sprintf("Scheme(%d)", int(s))
}

func (s *Scheme) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "euler", "expliciteuler":
		*s = ExplicitEuler
	case "verlet", "velocityverlet":
		*s = VelocityVerlet
	default:
		return fmt.Errorf("unknown integration scheme %q", text)
	}
	return nil
}

// acceleration returns force/mass plus the body force per unit mass
func acceleration(p *particles.Particle, force, gravity r3.Vec) r3.Vec {
	return r3.Add(r3.Scale(1/p.Mass, force), gravity)
}

// EulerStep advances velocity, then position with the new velocity, then
// angular velocity over dt
func EulerStep(p *particles.Particle, force, torque, gravity r3.Vec, dt float64) {
	p.Velocity = r3.Add(p.Velocity, r3.Scale(dt, acceleration(p, force, gravity)))
	p.Position = r3.Add(p.Position, r3.Scale(dt, p.Velocity))
	p.Omega = r3.Add(p.Omega, r3.Scale(dt/p.Inertia, torque))
}

// HalfStepVelocity advances velocity and angular velocity over dt/2
func HalfStepVelocity(p *particles.Particle, force, torque, gravity r3.Vec, dt float64) {
	h := 0.5 * dt
	p.Velocity = r3.Add(p.Velocity, r3.Scale(h, acceleration(p, force, gravity)))
	p.Omega = r3.Add(p.Omega, r3.Scale(h/p.Inertia, torque))
}

// FullStepPosition advances position over dt with the current velocity
func FullStepPosition(p *particles.Particle, dt float64) {
	p.Position = r3.Add(p.Position, r3.Scale(dt, p.Velocity))
}

// Integrate applies one explicit Euler step to every local particle
func Integrate(store *particles.Store, acc *particles.Accumulators, gravity r3.Vec, dt float64) {
	store.EachLocal(func(p *particles.Particle) {
		EulerStep(p, acc.Force[p.ID], acc.Torque[p.ID], gravity, dt)
	})
}

// HalfKick applies the half velocity update of velocity Verlet to every
// local particle
func HalfKick(store *particles.Store, acc *particles.Accumulators, gravity r3.Vec, dt float64) {
	store.EachLocal(func(p *particles.Particle) {
		HalfStepVelocity(p, acc.Force[p.ID], acc.Torque[p.ID], gravity, dt)
	})
}

// Drift moves every local particle over dt
func Drift(store *particles.Store, dt float64) {
	store.EachLocal(func(p *particles.Particle) {
		FullStepPosition(p, dt)
	})
}

// IntegrateHalfStepLocation gives newly inserted particles their first
// position update: a half kick followed by a drift
func IntegrateHalfStepLocation(store *particles.Store, acc *particles.Accumulators, gravity r3.Vec, dt float64) {
	HalfKick(store, acc, gravity, dt)
	Drift(store, dt)
}
