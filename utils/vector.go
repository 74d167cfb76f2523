package utils

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Zero is the zero vector
var Zero = r3.Vec{}

// SafeUnit returns the unit vector along v together with the norm of v.
// A zero vector has no direction and yields the zero vector.
func SafeUnit(v r3.Vec) (unit r3.Vec, norm float64) {
	norm = r3.Norm(v)
	if norm == 0 || math.IsNaN(norm) {
		return Zero, 0
	}
	return r3.Scale(1/norm, v), norm
}

// ProjectOnPlane removes the component of v along the unit normal n
func ProjectOnPlane(v, n r3.Vec) r3.Vec {
	return r3.Sub(v, r3.Scale(r3.Dot(v, n), n))
}

// RotateOntoPlane projects v onto the plane with unit normal n and restores
// its original magnitude. History vectors use it to follow a rotating contact.
func RotateOntoPlane(v, n r3.Vec) r3.Vec {
	mag := r3.Norm(v)
	if mag == 0 {
		return Zero
	}
	proj := ProjectOnPlane(v, n)
	pmag := r3.Norm(proj)
	if pmag == 0 {
		return Zero
	}
	return r3.Scale(mag/pmag, proj)
}

// Component returns the d-th coordinate of v
func Component(v r3.Vec, d int) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	panic("component index out of range")
}

// SetComponent sets the d-th coordinate of v
func SetComponent(v *r3.Vec, d int, value float64) {
	switch d {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	case 2:
		v.Z = value
	default:
		panic("component index out of range")
	}
}

// MinMax expands the running bounds lo/hi so that they include p
func MinMax(lo, hi, p r3.Vec) (r3.Vec, r3.Vec) {
	lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
	hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	return lo, hi
}
