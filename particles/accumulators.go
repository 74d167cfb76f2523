package particles

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Accumulators collect contact force and torque per particle for one step
type Accumulators struct {
	Force  map[ID]r3.Vec
	Torque map[ID]r3.Vec
}

func NewAccumulators() *Accumulators {
	return &Accumulators{
		Force:  make(map[ID]r3.Vec),
		Torque: make(map[ID]r3.Vec),
	}
}

// Reset zeroes every accumulator
func (a *Accumulators) Reset() {
	clear(a.Force)
	clear(a.Torque)
}

func (a *Accumulators) AddForce(id ID, f r3.Vec) {
	a.Force[id] = r3.Add(a.Force[id], f)
}

func (a *Accumulators) AddTorque(id ID, t r3.Vec) {
	a.Torque[id] = r3.Add(a.Torque[id], t)
}
