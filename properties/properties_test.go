package properties

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var glass = Material{
	YoungsModulus:   5e7,
	PoissonRatio:    0.3,
	Restitution:     0.5,
	Friction:        0.5,
	RollingFriction: 0.1,
	Density:         2500,
}

func TestMix_SameMaterial(t *testing.T) {
	e := Mix(glass, glass)
	assert.InDelta(t, 5e7/(2*(1-0.09)), e.YoungsModulus, 1e-6)
	assert.InDelta(t, 5e7/(4*1.7*1.3), e.ShearModulus, 1e-6)
	assert.InDelta(t, 0.5, e.Restitution, 1e-15)
	assert.InDelta(t, 0.5, e.Friction, 1e-15)
	assert.InDelta(t, 0.1, e.RollingFriction, 1e-15)
}

func TestMix_Symmetric(t *testing.T) {
	steel := Material{YoungsModulus: 2e11, PoissonRatio: 0.28, Restitution: 0.9, Friction: 0.2, Density: 7800}
	ab, ba := Mix(glass, steel), Mix(steel, glass)
	assert.InDelta(t, ab.YoungsModulus, ba.YoungsModulus, 1e-3)
	assert.InDelta(t, ab.ShearModulus, ba.ShearModulus, 1e-3)
	assert.InDelta(t, 2*0.5*0.9/1.4, ab.Restitution, 1e-15)
	// Zero rolling friction on one side gives zero effective rolling friction
	assert.Equal(t, 0.0, ab.RollingFriction)
}

func TestTable_Lookup(t *testing.T) {
	wall := glass
	wall.Friction = 0.3
	table, err := NewTable([]Material{glass, glass}, wall)
	require.NoError(t, err)
	assert.Equal(t, 2, table.NumTypes())
	assert.Equal(t, 2, table.Wall())

	pp, err := table.Lookup(0, 1)
	require.NoError(t, err)
	assert.Equal(t, Mix(glass, glass), pp)

	pw, err := table.Lookup(1, table.Wall())
	require.NoError(t, err)
	assert.InDelta(t, 2*0.5*0.3/0.8, pw.Friction, 1e-15)
	wp, _ := table.Lookup(table.Wall(), 1)
	assert.Equal(t, pw, wp)

	_, err = table.Lookup(0, 3)
	assert.True(t, errors.Is(err, ErrMissingProperties))
	assert.True(t, errors.Is(table.CheckType(2), ErrMissingProperties))
	assert.NoError(t, table.CheckType(1))
}

func TestNewTable_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *Material)
	}{
		{"zero modulus", func(m *Material) { m.YoungsModulus = 0 }},
		{"poisson ratio 1", func(m *Material) { m.PoissonRatio = 1 }},
		{"zero restitution", func(m *Material) { m.Restitution = 0 }},
		{"negative friction", func(m *Material) { m.Friction = -0.1 }},
		{"NaN density", func(m *Material) { m.Density = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := glass
			tt.modify(&bad)
			_, err := NewTable([]Material{glass, bad}, glass)
			assert.Error(t, err)
			_, err = NewTable([]Material{glass}, bad)
			assert.Error(t, err)
		})
	}

	_, err := NewTable(nil, glass)
	assert.True(t, errors.Is(err, ErrMissingProperties))
}

func TestRayleighTimeStep(t *testing.T) {
	r := 0.0025
	g := 5e7 / 2.6
	expected := math.Pi * r * math.Sqrt(2500/g) / (0.1631*0.3 + 0.8766)
	assert.InDelta(t, expected, RayleighTimeStep(glass, r), 1e-15)
	// Stiffer material, shorter bound
	stiff := glass
	stiff.YoungsModulus *= 100
	assert.Less(t, RayleighTimeStep(stiff, r), RayleighTimeStep(glass, r))
}
