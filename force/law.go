package force

import (
	"github.com/notargets/DEMKernel/properties"
	"github.com/notargets/DEMKernel/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// kinematics describes a contact between body one and body two at one
// instant. Velocities are those of one relative to two.
type kinematics struct {
	normal   r3.Vec // Unit vector from one toward two
	overlap  float64
	vRel     r3.Vec // Relative velocity of the surfaces at the contact point
	omegaRel r3.Vec // Relative angular velocity
	vOmega   r3.Vec // Relative rolling velocity at the contact point
	rEff     float64
	mEff     float64
}

// response is the outcome of one contact evaluation. Forces act on two, one
// receives the opposite; the rolling torque acts on one, two receives the
// opposite.
type response struct {
	normal     r3.Vec
	tangential r3.Vec
	rolling    r3.Vec
}

// evaluate applies the normal, tangential and rolling laws and advances the
// tangential and rolling histories by one step
func (m *Model) evaluate(eff properties.Effective, k kinematics,
	tangential, rolling *r3.Vec, dt float64) response {
	c := m.coefficients(eff, k.rEff, k.mEff, k.overlap)

	vn := r3.Dot(k.vRel, k.normal) // positive while approaching
	vt := r3.Sub(k.vRel, r3.Scale(vn, k.normal))

	fn := r3.Scale(c.kn*k.overlap+c.cn*vn, k.normal)

	// Keep the spring in the current tangent plane, then integrate it
	xi := utils.RotateOntoPlane(*tangential, k.normal)
	xi = r3.Add(xi, r3.Scale(dt, vt))
	ft := r3.Add(r3.Scale(c.kt, xi), r3.Scale(c.ct, vt))

	limit := eff.Friction * r3.Norm(fn)
	if mag := r3.Norm(ft); mag > limit {
		if mag > 0 {
			ft = r3.Scale(limit/mag, ft)
		}
		// Spring plus dashpot reproduce the clipped force
		if c.kt > 0 {
			xi = r3.Scale(1/c.kt, r3.Sub(ft, r3.Scale(c.ct, vt)))
		} else {
			xi = r3.Vec{}
		}
	}
	*tangential = xi

	return response{
		normal:     fn,
		tangential: ft,
		rolling:    m.rollingTorque(eff, k, c.kn, r3.Norm(fn), rolling, dt),
	}
}

// rollingTorque returns the resistance torque on body one
func (m *Model) rollingTorque(eff properties.Effective, k kinematics, kn, fn float64,
	history *r3.Vec, dt float64) r3.Vec {
	mur := eff.RollingFriction
	switch m.Rolling {
	case ConstantRolling:
		w, _ := utils.SafeUnit(k.omegaRel)
		return r3.Scale(-mur*fn*k.rEff, w)

	case ViscousRolling:
		w, _ := utils.SafeUnit(k.omegaRel)
		return r3.Scale(-mur*fn*r3.Norm(k.vOmega), w)

	case SpringLimitedRolling:
		kr := 2.25 * kn * mur * mur * k.rEff * k.rEff
		theta := r3.Add(*history, r3.Scale(dt, k.omegaRel))
		torque := r3.Scale(-kr, theta)
		limit := mur * k.rEff * fn
		if mag := r3.Norm(torque); mag > limit {
			torque = r3.Scale(limit/mag, torque)
			if kr > 0 {
				theta = r3.Scale(-1/kr, torque)
			} else {
				theta = r3.Vec{}
			}
		}
		*history = theta
		return torque
	}
	return r3.Vec{}
}
