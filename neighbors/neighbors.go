package neighbors

import (
	"fmt"

	"github.com/notargets/DEMKernel/mesh"
	"github.com/notargets/DEMKernel/utils"
)

// Index lists, for every cell owned by one partition, the cells sharing at
// least one vertex with it. Neighbors owned by the same partition are local,
// the others are ghost cells. The index is static between re-partitions.
type Index struct {
	Rank int

	// Locally owned cells, ascending
	Cells []int

	// Owned cell -> neighbor cells, ascending
	Local map[int][]int
	Ghost map[int][]int

	// Every ghost cell of the partition, ascending
	Halo []int

	owned map[int]struct{}
}

// Build creates the neighbor index of partition rank from a cell connector
// built over the same mesh
func Build(cc *utils.CellConnector, rank int) (*Index, error) {
	if rank < 0 || rank >= cc.NumPartitions {
		return nil, fmt.Errorf("rank %d outside [0,%d)", rank, cc.NumPartitions)
	}
	idx := &Index{
		Rank:  rank,
		Cells: append([]int(nil), cc.LocalToGlobalCell[rank]...),
		Local: make(map[int][]int, cc.CellsPerPartition[rank]),
		Ghost: make(map[int][]int),
		Halo:  cc.GhostCells(rank),
		owned: make(map[int]struct{}, cc.CellsPerPartition[rank]),
	}
	for _, c := range idx.Cells {
		idx.owned[c] = struct{}{}
	}

	for _, c := range idx.Cells {
		local := make([]int, 0, len(cc.Neighbors[c]))
		var ghost []int
		for _, nb := range cc.Neighbors[c] {
			if cc.EToP[nb] == rank {
				local = append(local, nb)
			} else {
				ghost = append(ghost, nb)
			}
		}
		idx.Local[c] = local
		if len(ghost) > 0 {
			idx.Ghost[c] = ghost
		}
	}
	return idx, nil
}

// New builds the index of partition rank from a mesh and its cell to
// partition map. A nil map means a single partition.
func New(m *mesh.Mesh, eToP []int, rank int) (*Index, error) {
	if eToP == nil {
		eToP = make([]int, m.NumElements)
	}
	cc, err := utils.NewCellConnector(m.NumElements, m.VertexNeighbors(), eToP)
	if err != nil {
		return nil, fmt.Errorf("building cell connector: %w", err)
	}
	if err = cc.Verify(); err != nil {
		return nil, fmt.Errorf("cell connector: %w", err)
	}
	return Build(cc, rank)
}

// Owns returns true if cell c is owned by the partition
func (idx *Index) Owns(c int) bool {
	_, ok := idx.owned[c]
	return ok
}

// NumLocalPairs returns the number of unordered local cell pairs
func (idx *Index) NumLocalPairs() int {
	n := 0
	for c, list := range idx.Local {
		for _, nb := range list {
			if nb > c {
				n++
			}
		}
	}
	return n
}
