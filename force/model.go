package force

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/DEMKernel/properties"
)

// NormalModel selects the normal contact law
type NormalModel int

const (
	Linear    NormalModel = iota // Spring-dashpot, stiffness from an impact velocity scaling
	NonLinear                    // Hertz-Mindlin
)

func (nm NormalModel) String() string {
	switch nm {
	case Linear:
		return "linear"
	case NonLinear:
		return "nonlinear"
	}
	return fmt.Sprintf("NormalModel(%d)", int(nm))
}

// UnmarshalText parses a configuration keyword
func (nm *NormalModel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "linear":
		*nm = Linear
	case "nonlinear", "hertz", "hertzmindlin":
		*nm = NonLinear
	default:
		return fmt.Errorf("unknown normal force model %q", text)
	}
	return nil
}

// RollingModel selects the rolling resistance law
type RollingModel int

const (
	NoRolling RollingModel = iota
	ConstantRolling
	ViscousRolling
	SpringLimitedRolling
)

func (rm RollingModel) String() string {
	switch rm {
	case NoRolling:
		return "none"
	case ConstantRolling:
		return "constant"
	case ViscousRolling:
		return "viscous"
	case SpringLimitedRolling:
		return "springLimited"
	}
	return fmt.Sprintf("RollingModel(%d)", int(rm))
}

func (rm *RollingModel) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none", "":
		*rm = NoRolling
	case "constant":
		*rm = ConstantRolling
	case "viscous":
		*rm = ViscousRolling
	case "springlimited", "epsd":
		*rm = SpringLimitedRolling
	default:
		return fmt.Errorf("unknown rolling resistance model %q", text)
	}
	return nil
}

// Clock carries the simulation time and step to the force laws
type Clock struct {
	Time     float64
	TimeStep float64
}

// Model computes contact forces. It is configured once; the choice of laws
// never changes during a run.
type Model struct {
	Normal     NormalModel
	Rolling    RollingModel
	Properties *properties.Table

	// Impact velocity the linear stiffness is scaled for
	CharacteristicVelocity float64
}

// NewModel returns a model over an effective property table
func NewModel(normal NormalModel, rolling RollingModel, table *properties.Table) *Model {
	if table == nil {
		panic(fmt.Errorf("force model needs an effective property table"))
	}
	return &Model{
		Normal:                 normal,
		Rolling:                rolling,
		Properties:             table,
		CharacteristicVelocity: 1,
	}
}

// coefficients are the spring and dashpot constants of one evaluation
type coefficients struct {
	kn, kt float64 // Normal and tangential stiffness
	cn, ct float64 // Normal and tangential damping
}

// dampingRatio returns ln e / sqrt(ln^2 e + pi^2), negative for e < 1
func dampingRatio(restitution float64) float64 {
	lne := math.Log(restitution)
	return lne / math.Sqrt(lne*lne+math.Pi*math.Pi)
}

// coefficients evaluates the selected normal law for effective radius rEff,
// effective mass mEff and overlap delta
func (m *Model) coefficients(eff properties.Effective, rEff, mEff, delta float64) coefficients {
	beta := dampingRatio(eff.Restitution)
	switch m.Normal {
	case NonLinear:
		root := math.Sqrt(rEff * delta)
		sn := 2 * eff.YoungsModulus * root
		st := 8 * eff.ShearModulus * root
		return coefficients{
			kn: 4. / 3. * eff.YoungsModulus * root,
			kt: st,
			cn: -2 * math.Sqrt(5./6.) * beta * math.Sqrt(sn*mEff),
			ct: -2 * math.Sqrt(5./6.) * beta * math.Sqrt(st*mEff),
		}
	default:
		kn := LinearStiffness(eff.YoungsModulus, rEff, mEff, m.CharacteristicVelocity)
		kt := 4 * eff.ShearModulus / eff.YoungsModulus * kn
		return coefficients{
			kn: kn,
			kt: kt,
			cn: -2 * beta * math.Sqrt(mEff*kn),
			ct: -2 * beta * math.Sqrt(mEff*kt),
		}
	}
}

// LinearStiffness returns the spring constant that gives the Hertzian
// maximum overlap for an impact at velocity vc
func LinearStiffness(youngs, rEff, mEff, vc float64) float64 {
	sr := math.Sqrt(rEff)
	return 16. / 15. * sr * youngs *
		math.Pow(15*mEff*vc*vc/(16*sr*youngs), 0.2)
}
