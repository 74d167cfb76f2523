package force

import (
	"fmt"
	"math"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// PairForce is the result of one particle-particle evaluation
type PairForce struct {
	Force     r3.Vec // Total contact force on particle two
	Normal    r3.Vec // Normal part of Force
	TorqueOne r3.Vec
	TorqueTwo r3.Vec
}

// CalculateParticleParticle evaluates every particle-particle record and
// accumulates the forces. Local-local pairs act on both particles; for
// local-ghost pairs only the local particle, IDOne, is updated.
func (m *Model) CalculateParticleParticle(contacts *contact.Store, store *particles.Store,
	acc *particles.Accumulators, clock Clock) error {
	for _, rec := range contact.SortedPairs(contacts.LocalLocal) {
		pf, err := m.evaluateRecord(rec, store, clock)
		if err != nil {
			return err
		}
		acc.AddForce(rec.IDOne, r3.Scale(-1, pf.Force))
		acc.AddForce(rec.IDTwo, pf.Force)
		acc.AddTorque(rec.IDOne, pf.TorqueOne)
		acc.AddTorque(rec.IDTwo, pf.TorqueTwo)
	}
	for _, rec := range contact.SortedPairs(contacts.LocalGhost) {
		pf, err := m.evaluateRecord(rec, store, clock)
		if err != nil {
			return err
		}
		acc.AddForce(rec.IDOne, r3.Scale(-1, pf.Force))
		acc.AddTorque(rec.IDOne, pf.TorqueOne)
	}
	return nil
}

func (m *Model) evaluateRecord(rec *contact.PairRecord, store *particles.Store, clock Clock) (PairForce, error) {
	one, err := store.Get(rec.IDOne)
	if err != nil {
		return PairForce{}, fmt.Errorf("contact (%d,%d): %w", rec.IDOne, rec.IDTwo, err)
	}
	two, err := store.Get(rec.IDTwo)
	if err != nil {
		return PairForce{}, fmt.Errorf("contact (%d,%d): %w", rec.IDOne, rec.IDTwo, err)
	}
	return m.ParticleParticle(rec, one, two, clock)
}

// ParticleParticle updates one contact record from the live state of its two
// particles and returns the resulting loads
func (m *Model) ParticleParticle(rec *contact.PairRecord, one, two *particles.Particle, clock Clock) (PairForce, error) {
	for _, typ := range []int{one.Type, two.Type} {
		if err := m.Properties.CheckType(typ); err != nil {
			return PairForce{}, err
		}
	}
	eff, err := m.Properties.Lookup(one.Type, two.Type)
	if err != nil {
		return PairForce{}, err
	}
	rec.LastUpdate = clock.Time

	delta := r3.Sub(two.Position, one.Position)
	d := r3.Norm(delta)
	rec.Overlap = one.Radius + two.Radius - d
	if d == 0 || math.IsNaN(d) {
		// Coincident centers have no contact direction
		rec.Normal = r3.Vec{}
		return PairForce{}, nil
	}
	n := r3.Scale(1/d, delta)
	rec.Normal = n
	if rec.Overlap <= 0 {
		// Separated: the next contact starts a fresh spring
		rec.ResetHistory()
		return PairForce{}, nil
	}

	w1, w2 := r3.Scale(one.Radius, one.Omega), r3.Scale(two.Radius, two.Omega)
	k := kinematics{
		normal:   n,
		overlap:  rec.Overlap,
		vRel:     r3.Add(r3.Sub(one.Velocity, two.Velocity), r3.Cross(r3.Add(w1, w2), n)),
		omegaRel: r3.Sub(one.Omega, two.Omega),
		vOmega:   r3.Cross(r3.Sub(w1, w2), n),
		rEff:     one.Radius * two.Radius / (one.Radius + two.Radius),
		mEff:     one.Mass * two.Mass / (one.Mass + two.Mass),
	}
	resp := m.evaluate(eff, k, &rec.TangentialDisplacement, &rec.RollingDisplacement, clock.TimeStep)

	// Both contact arms give the same sense of torque from the tangential force
	nxft := r3.Cross(n, resp.tangential)
	return PairForce{
		Force:     r3.Add(resp.normal, resp.tangential),
		Normal:    resp.normal,
		TorqueOne: r3.Add(r3.Scale(-one.Radius, nxft), resp.rolling),
		TorqueTwo: r3.Sub(r3.Scale(-two.Radius, nxft), resp.rolling),
	}, nil
}
