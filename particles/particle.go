package particles

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrOutsideMesh       = errors.New("particle located in no known cell")
	ErrUnknownParticle   = errors.New("unknown particle id")
	ErrDuplicateParticle = errors.New("duplicate particle id")
)

// ID is the stable, globally unique particle identifier
type ID uint64

// Particle is a rigid sphere. Ghost particles are read-mostly copies of
// particles owned by another partition.
type Particle struct {
	ID   ID  `json:"id"`
	Type int `json:"type"` // Material type

	Position r3.Vec `json:"position"`
	Velocity r3.Vec `json:"velocity"`
	Omega    r3.Vec `json:"omega"` // Angular velocity

	Radius  float64 `json:"radius"`
	Mass    float64 `json:"mass"`
	Inertia float64 `json:"inertia"` // Moment of inertia about any axis

	Ghost bool `json:"ghost"`
	Cell  int  `json:"cell"` // Containing mesh cell, -1 until located
}

// NewSphere returns a solid sphere of the given diameter and density at rest
func NewSphere(id ID, typ int, diameter, density float64, position r3.Vec) Particle {
	r := 0.5 * diameter
	mass := 4. / 3. * math.Pi * r * r * r * density
	return Particle{
		ID:       id,
		Type:     typ,
		Position: position,
		Radius:   r,
		Mass:     mass,
		Inertia:  0.4 * mass * r * r,
		Cell:     -1,
	}
}

// Diameter returns twice the radius
func (p *Particle) Diameter() float64 {
	return 2 * p.Radius
}
