package force

import (
	"fmt"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// WallForce is the result of one particle-wall evaluation
type WallForce struct {
	Force  r3.Vec // Total contact force on the particle
	Normal r3.Vec // Normal part of Force
	Torque r3.Vec
}

// CalculateParticleWall evaluates the fixed and floating wall records and
// accumulates the loads on the particles. Walls are at rest and do not
// respond.
func (m *Model) CalculateParticleWall(contacts *contact.Store, store *particles.Store,
	acc *particles.Accumulators, clock Clock) error {
	for _, records := range []map[contact.WallKey]*contact.WallRecord{contacts.Wall, contacts.FloatingWall} {
		for _, rec := range contact.SortedWalls(records) {
			p, err := store.Get(rec.Particle)
			if err != nil {
				return fmt.Errorf("wall contact (%d,%d): %w", rec.Particle, rec.Wall, err)
			}
			wf, err := m.ParticleWall(rec, p, clock)
			if err != nil {
				return err
			}
			acc.AddForce(rec.Particle, wf.Force)
			acc.AddTorque(rec.Particle, wf.Torque)
		}
	}
	return nil
}

// ParticleWall updates one wall record from the live particle state. The
// wall behaves as a body of infinite radius and mass.
func (m *Model) ParticleWall(rec *contact.WallRecord, p *particles.Particle, clock Clock) (WallForce, error) {
	if err := m.Properties.CheckType(p.Type); err != nil {
		return WallForce{}, err
	}
	eff, err := m.Properties.Lookup(p.Type, m.Properties.Wall())
	if err != nil {
		return WallForce{}, err
	}
	rec.LastUpdate = clock.Time

	n := rec.Normal
	rec.Overlap = p.Radius - r3.Dot(r3.Sub(rec.Point, p.Position), n)
	if rec.Overlap <= 0 || !rec.Plane().Covers(p.Position) {
		rec.ResetHistory()
		return WallForce{}, nil
	}

	w := r3.Scale(p.Radius, p.Omega)
	k := kinematics{
		normal:   n,
		overlap:  rec.Overlap,
		vRel:     r3.Add(p.Velocity, r3.Cross(w, n)),
		omegaRel: p.Omega,
		vOmega:   r3.Cross(w, n),
		rEff:     p.Radius,
		mEff:     p.Mass,
	}
	resp := m.evaluate(eff, k, &rec.TangentialDisplacement, &rec.RollingDisplacement, clock.TimeStep)

	return WallForce{
		Force:  r3.Scale(-1, r3.Add(resp.normal, resp.tangential)),
		Normal: r3.Scale(-1, resp.normal),
		Torque: r3.Add(r3.Scale(-p.Radius, r3.Cross(n, resp.tangential)), resp.rolling),
	}, nil
}
