package mesh

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadMeshFile loads an unstructured tetrahedral mesh. Any partition
// assignment stored in the file is kept in EToP.
func ReadMeshFile(meshfile string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(meshfile)
	if err != nil {
		return nil, fmt.Errorf("reading mesh file %s: %w", meshfile, err)
	}

	vertices := make([]r3.Vec, len(msh.Vertices))
	for i, v := range msh.Vertices {
		vertices[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}

	etov := make([][]int, 0, msh.NumElements)
	types := make([]CellType, 0, msh.NumElements)
	for k, verts := range msh.EtoV {
		if len(verts) != verticesPerCell[Tet] {
			return nil, fmt.Errorf("mesh file %s: cell %d has %d vertices, only tetrahedra are supported",
				meshfile, k, len(verts))
		}
		cell := make([]int, len(verts))
		for i, v := range verts {
			cell[i] = int(v)
		}
		etov = append(etov, cell)
		types = append(types, Tet)
	}
	if len(etov) == 0 {
		return nil, fmt.Errorf("mesh file %s does not have any cells", meshfile)
	}

	m := NewMesh(3, vertices, etov, types)
	if len(msh.EToP) == m.NumElements {
		m.EToP = append([]int(nil), msh.EToP...)
	}
	fmt.Printf("Meshfile: %s has %d tets, %d boundary faces\n", meshfile, m.NumElements, len(m.Boundary))
	return m, nil
}
