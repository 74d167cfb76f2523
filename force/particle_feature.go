package force

import (
	"fmt"

	"github.com/notargets/DEMKernel/contact"
	"github.com/notargets/DEMKernel/particles"
	"gonum.org/v1/gonum/spatial/r3"
)

// CalculateParticleFeature accumulates the loads of the feature contacts on
// the particles
func (m *Model) CalculateParticleFeature(contacts *contact.Store, store *particles.Store,
	acc *particles.Accumulators, clock Clock) error {
	for _, rec := range contact.SortedFeatures(contacts.Feature) {
		p, err := store.Get(rec.Particle)
		if err != nil {
			return fmt.Errorf("feature contact (%d,%d): %w", rec.Particle, rec.Feature, err)
		}
		f, err := m.ParticleFeature(rec, p, clock)
		if err != nil {
			return err
		}
		acc.AddForce(rec.Particle, f)
	}
	return nil
}

// ParticleFeature returns the force of a boundary vertex or edge on a
// particle. The feature acts as wall material with infinite radius and mass.
// Only the normal law applies, along the line through the particle center,
// so the contact exerts no torque.
func (m *Model) ParticleFeature(rec *contact.FeatureRecord, p *particles.Particle, clock Clock) (r3.Vec, error) {
	if err := m.Properties.CheckType(p.Type); err != nil {
		return r3.Vec{}, err
	}
	eff, err := m.Properties.Lookup(p.Type, m.Properties.Wall())
	if err != nil {
		return r3.Vec{}, err
	}
	rec.LastUpdate = clock.Time
	if rec.Overlap <= 0 {
		return r3.Vec{}, nil
	}

	c := m.coefficients(eff, p.Radius, p.Mass, rec.Overlap)
	vn := r3.Dot(p.Velocity, rec.Normal)
	fn := r3.Scale(c.kn*rec.Overlap+c.cn*vn, rec.Normal)
	return r3.Scale(-1, fn), nil
}
