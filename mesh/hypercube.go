package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// HyperCube generates the box [lo, hi]^dim refined globally `refinement`
// times, i.e. 2^refinement cells per axis. Boundary faces are colorized:
// 0/1 for the -x/+x faces, 2/3 for -y/+y and 4/5 for -z/+z.
func HyperCube(dim int, lo, hi float64, refinement int) *Mesh {
	if hi <= lo {
		panic(fmt.Errorf("hyper cube bounds must satisfy lo < hi, got [%g, %g]", lo, hi))
	}
	if refinement < 0 {
		panic(fmt.Errorf("negative refinement %d", refinement))
	}
	n := 1 << uint(refinement)
	h := (hi - lo) / float64(n)

	nz := 1
	if dim == 3 {
		nz = n
	}
	vnz := nz + 1
	if dim == 2 {
		vnz = 1
	}
	vIdx := func(i, j, k int) int { return i + (n+1)*(j+(n+1)*k) }

	vertices := make([]r3.Vec, 0, (n+1)*(n+1)*vnz)
	for k := 0; k < vnz; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				v := r3.Vec{X: lo + float64(i)*h, Y: lo + float64(j)*h}
				if dim == 3 {
					v.Z = lo + float64(k)*h
				}
				vertices = append(vertices, v)
			}
		}
	}

	var (
		etov  [][]int
		types []CellType
	)
	for k := 0; k < nz; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				if dim == 2 {
					etov = append(etov, []int{
						vIdx(i, j, 0), vIdx(i+1, j, 0), vIdx(i, j+1, 0), vIdx(i+1, j+1, 0),
					})
					types = append(types, Quad)
					continue
				}
				etov = append(etov, []int{
					vIdx(i, j, k), vIdx(i+1, j, k), vIdx(i, j+1, k), vIdx(i+1, j+1, k),
					vIdx(i, j, k+1), vIdx(i+1, j, k+1), vIdx(i, j+1, k+1), vIdx(i+1, j+1, k+1),
				})
				types = append(types, Hex)
			}
		}
	}

	m := NewMesh(dim, vertices, etov, types)
	// Local face numbering of lexicographic cells matches the box faces
	for i := range m.Boundary {
		m.Boundary[i].BoundaryID = m.Boundary[i].LocalFace
	}
	m.locator = gridLocator{dim: dim, n: n, lo: lo, h: h}
	return m
}

// gridLocator finds cells of a generated box by index arithmetic
type gridLocator struct {
	dim int
	n   int
	lo  float64
	h   float64
}

func (g gridLocator) index(x float64) (int, bool) {
	f := (x - g.lo) / g.h
	i := int(math.Floor(f))
	if i == g.n && f <= float64(g.n)+containTol {
		// Points on the upper face belong to the last cell
		i = g.n - 1
	}
	if i == -1 && f >= -containTol {
		i = 0
	}
	if i < 0 || i >= g.n {
		return -1, false
	}
	return i, true
}

func (g gridLocator) locate(_ *Mesh, p r3.Vec) (int, bool) {
	i, ok := g.index(p.X)
	if !ok {
		return -1, false
	}
	j, ok := g.index(p.Y)
	if !ok {
		return -1, false
	}
	if g.dim == 2 {
		return i + g.n*j, true
	}
	k, ok := g.index(p.Z)
	if !ok {
		return -1, false
	}
	return i + g.n*(j+g.n*k), true
}
