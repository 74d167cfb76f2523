package properties

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrMissingProperties = errors.New("no effective properties for material type pair")

// Material holds the constants of one particle (or wall) material type
type Material struct {
	YoungsModulus   float64
	PoissonRatio    float64
	Restitution     float64
	Friction        float64
	RollingFriction float64
	Density         float64
}

// Validate checks the constants can enter the contact laws
func (m Material) Validate() error {
	switch {
	case !(m.YoungsModulus > 0):
		return fmt.Errorf("young's modulus must be positive, got %g", m.YoungsModulus)
	case !(m.PoissonRatio > -1 && m.PoissonRatio < 1):
		return fmt.Errorf("poisson ratio must lie in (-1,1), got %g", m.PoissonRatio)
	case !(m.Restitution > 0 && m.Restitution <= 1):
		return fmt.Errorf("restitution must lie in (0,1], got %g", m.Restitution)
	case !(m.Friction >= 0):
		return fmt.Errorf("friction must be non negative, got %g", m.Friction)
	case !(m.RollingFriction >= 0):
		return fmt.Errorf("rolling friction must be non negative, got %g", m.RollingFriction)
	case !(m.Density > 0):
		return fmt.Errorf("density must be positive, got %g", m.Density)
	}
	return nil
}

// ShearModulus returns E/(2(1+nu))
func (m Material) ShearModulus() float64 {
	return m.YoungsModulus / (2 * (1 + m.PoissonRatio))
}

// Effective are the mixed contact constants of a pair of material types
type Effective struct {
	YoungsModulus   float64
	ShearModulus    float64
	Restitution     float64
	Friction        float64
	RollingFriction float64
}

// Table caches the effective properties of every pair of material types.
// Particle types are 0..NumTypes()-1, the wall uses index Wall(). A Table is
// never modified after NewTable returns.
type Table struct {
	numTypes int

	youngs      *mat.SymDense
	shear       *mat.SymDense
	restitution *mat.SymDense
	friction    *mat.SymDense
	rolling     *mat.SymDense
}

// NewTable mixes the particle materials and the wall material pairwise
func NewTable(materials []Material, wall Material) (*Table, error) {
	if len(materials) == 0 {
		return nil, fmt.Errorf("no particle materials: %w", ErrMissingProperties)
	}
	all := append(append([]Material(nil), materials...), wall)
	for i, m := range all {
		if err := m.Validate(); err != nil {
			if i == len(materials) {
				return nil, fmt.Errorf("wall material: %w", err)
			}
			return nil, fmt.Errorf("material type %d: %w", i, err)
		}
	}

	n := len(all)
	t := &Table{
		numTypes:    len(materials),
		youngs:      mat.NewSymDense(n, nil),
		shear:       mat.NewSymDense(n, nil),
		restitution: mat.NewSymDense(n, nil),
		friction:    mat.NewSymDense(n, nil),
		rolling:     mat.NewSymDense(n, nil),
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			e := Mix(all[i], all[j])
			t.youngs.SetSym(i, j, e.YoungsModulus)
			t.shear.SetSym(i, j, e.ShearModulus)
			t.restitution.SetSym(i, j, e.Restitution)
			t.friction.SetSym(i, j, e.Friction)
			t.rolling.SetSym(i, j, e.RollingFriction)
		}
	}
	return t, nil
}

// Mix applies the contact mechanics mixing rules to two materials
func Mix(a, b Material) Effective {
	ea, eb := a.YoungsModulus, b.YoungsModulus
	na, nb := a.PoissonRatio, b.PoissonRatio
	return Effective{
		YoungsModulus:   ea * eb / ((1-na*na)*eb + (1-nb*nb)*ea),
		ShearModulus:    ea * eb / (2 * (eb*(2-na)*(1+na) + ea*(2-nb)*(1+nb))),
		Restitution:     harmonic(a.Restitution, b.Restitution),
		Friction:        harmonic(a.Friction, b.Friction),
		RollingFriction: harmonic(a.RollingFriction, b.RollingFriction),
	}
}

func harmonic(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}

// NumTypes returns the number of particle material types
func (t *Table) NumTypes() int {
	return t.numTypes
}

// Wall returns the type index used for wall contacts
func (t *Table) Wall() int {
	return t.numTypes
}

// Lookup returns the effective properties of the pair (a, b)
func (t *Table) Lookup(a, b int) (Effective, error) {
	n, _ := t.youngs.Dims()
	if a < 0 || b < 0 || a >= n || b >= n {
		return Effective{}, fmt.Errorf("types (%d,%d): %w", a, b, ErrMissingProperties)
	}
	return Effective{
		YoungsModulus:   t.youngs.At(a, b),
		ShearModulus:    t.shear.At(a, b),
		Restitution:     t.restitution.At(a, b),
		Friction:        t.friction.At(a, b),
		RollingFriction: t.rolling.At(a, b),
	}, nil
}

// CheckType returns an error if a particle type has no table entries
func (t *Table) CheckType(typ int) error {
	if typ < 0 || typ >= t.numTypes {
		return fmt.Errorf("material type %d of %d: %w", typ, t.numTypes, ErrMissingProperties)
	}
	return nil
}

// RayleighTimeStep returns the Rayleigh wave transit time across a particle
// of the given radius, the stability bound for explicit contact integration
func RayleighTimeStep(m Material, radius float64) float64 {
	return math.Pi * radius * math.Sqrt(m.Density/m.ShearModulus()) /
		(0.1631*m.PoissonRatio + 0.8766)
}
