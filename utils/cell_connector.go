package utils

import (
	"fmt"
	"sort"
)

// CellConnector manages local numbering and ghost halos for a partitioned mesh
type CellConnector struct {
	// Mesh dimensions
	NumPartitions int
	K             int // Total cells

	// Input connectivity
	Neighbors [][]int // Cell → cells sharing at least one vertex
	EToP      []int   // Cell → partition mapping

	// Partition mappings
	CellsPerPartition []int         // Cells per partition
	GlobalToLocalCell []map[int]int // [partition][globalCell] → localCell
	LocalToGlobalCell [][]int       // [partition][localCell] → globalCell

	// Ghost halos per partition
	HaloCells [][]HaloBuffer // [targetPartition][sourcePartition]
}

// HaloBuffer lists the cells of SourcePartition that touch the target
// partition. Particles in those cells are ghosts on the target.
type HaloBuffer struct {
	Cells           []int // Global cell indices, ascending
	SourcePartition int
}

// NewCellConnector creates a cell connector from mesh connectivity
func NewCellConnector(K int, neighbors [][]int, EToP []int) (*CellConnector, error) {
	// Validate inputs
	if K <= 0 {
		return nil, fmt.Errorf("invalid dimensions: K=%d", K)
	}
	if len(neighbors) != K {
		return nil, fmt.Errorf("neighbor list length %d does not match K=%d", len(neighbors), K)
	}
	if len(EToP) != K {
		return nil, fmt.Errorf("EToP length %d does not match K=%d", len(EToP), K)
	}

	// Determine number of partitions
	numPartitions := 0
	for _, p := range EToP {
		if p < 0 {
			return nil, fmt.Errorf("negative partition id %d", p)
		}
		if p+1 > numPartitions {
			numPartitions = p + 1
		}
	}

	cc := &CellConnector{
		NumPartitions: numPartitions,
		K:             K,
		Neighbors:     neighbors,
		EToP:          EToP,
	}

	// Build partition mappings
	cc.buildPartitionMappings()

	// Initialize halo buffers
	cc.initializeBuffers()

	// Build indices
	if err := cc.BuildIndices(); err != nil {
		return nil, err
	}

	return cc, nil
}

// buildPartitionMappings creates bidirectional mappings between global and local cell numbering
func (cc *CellConnector) buildPartitionMappings() {
	// Count cells per partition
	cc.CellsPerPartition = make([]int, cc.NumPartitions)
	for _, p := range cc.EToP {
		cc.CellsPerPartition[p]++
	}

	// Initialize mapping structures
	cc.GlobalToLocalCell = make([]map[int]int, cc.NumPartitions)
	cc.LocalToGlobalCell = make([][]int, cc.NumPartitions)
	for p := 0; p < cc.NumPartitions; p++ {
		cc.GlobalToLocalCell[p] = make(map[int]int)
		cc.LocalToGlobalCell[p] = make([]int, 0, cc.CellsPerPartition[p])
	}

	// Build mappings
	for globalCell := 0; globalCell < cc.K; globalCell++ {
		partition := cc.EToP[globalCell]
		localCell := len(cc.LocalToGlobalCell[partition])

		cc.GlobalToLocalCell[partition][globalCell] = localCell
		cc.LocalToGlobalCell[partition] = append(cc.LocalToGlobalCell[partition], globalCell)
	}
}

// initializeBuffers creates empty halo structures
func (cc *CellConnector) initializeBuffers() {
	cc.HaloCells = make([][]HaloBuffer, cc.NumPartitions)
	for p := 0; p < cc.NumPartitions; p++ {
		cc.HaloCells[p] = make([]HaloBuffer, cc.NumPartitions)
		for q := 0; q < cc.NumPartitions; q++ {
			cc.HaloCells[p][q] = HaloBuffer{
				Cells:           make([]int, 0),
				SourcePartition: q,
			}
		}
	}
}

// BuildIndices collects, for every partition, the foreign cells adjacent to it
func (cc *CellConnector) BuildIndices() error {
	for p := 0; p < cc.NumPartitions; p++ {
		halo := make([]map[int]struct{}, cc.NumPartitions)

		// Process each cell in this partition
		for _, globalCell := range cc.LocalToGlobalCell[p] {
			for _, nb := range cc.Neighbors[globalCell] {
				if nb < 0 || nb >= cc.K {
					return fmt.Errorf("cell %d has out of range neighbor %d", globalCell, nb)
				}
				q := cc.EToP[nb]
				if q == p {
					continue
				}
				if halo[q] == nil {
					halo[q] = make(map[int]struct{})
				}
				halo[q][nb] = struct{}{}
			}
		}

		for q, cells := range halo {
			for c := range cells {
				cc.HaloCells[p][q].Cells = append(cc.HaloCells[p][q].Cells, c)
			}
			sort.Ints(cc.HaloCells[p][q].Cells)
		}
	}

	return nil
}

// GetHaloCells returns the cells of sourcePartition seen as ghosts by targetPartition
func (cc *CellConnector) GetHaloCells(targetPartition, sourcePartition int) []int {
	if targetPartition < 0 || targetPartition >= cc.NumPartitions ||
		sourcePartition < 0 || sourcePartition >= cc.NumPartitions {
		return nil
	}
	return cc.HaloCells[targetPartition][sourcePartition].Cells
}

// GhostCells returns every ghost cell of a partition, ascending
func (cc *CellConnector) GhostCells(partition int) []int {
	if partition < 0 || partition >= cc.NumPartitions {
		return nil
	}
	var cells []int
	for _, hb := range cc.HaloCells[partition] {
		cells = append(cells, hb.Cells...)
	}
	sort.Ints(cells)
	return cells
}

// IsGhost reports whether a cell belongs to the ghost halo of a partition
func (cc *CellConnector) IsGhost(partition, cell int) bool {
	if cell < 0 || cell >= cc.K || cc.EToP[cell] == partition {
		return false
	}
	cells := cc.GetHaloCells(partition, cc.EToP[cell])
	i := sort.SearchInts(cells, cell)
	return i < len(cells) && cells[i] == cell
}

// Verify checks index validity and halo symmetry
func (cc *CellConnector) Verify() error {
	// Verify 1: Ownership - halo cells are owned by their source partition
	for p := 0; p < cc.NumPartitions; p++ {
		for q := 0; q < cc.NumPartitions; q++ {
			if p == q && len(cc.HaloCells[p][q].Cells) > 0 {
				return fmt.Errorf("partition %d lists its own cells as ghosts", p)
			}
			for _, c := range cc.HaloCells[p][q].Cells {
				if c < 0 || c >= cc.K {
					return fmt.Errorf("invalid halo cell %d for partition %d", c, p)
				}
				if cc.EToP[c] != q {
					return fmt.Errorf("halo cell %d of partition %d expected in partition %d, owned by %d",
						c, p, q, cc.EToP[c])
				}
			}
		}
	}

	// Verify 2: Symmetry - if p sees ghosts from q, q sees ghosts from p
	for p := 0; p < cc.NumPartitions; p++ {
		for q := 0; q < cc.NumPartitions; q++ {
			pq := len(cc.HaloCells[p][q].Cells) > 0
			qp := len(cc.HaloCells[q][p].Cells) > 0
			if pq != qp {
				return fmt.Errorf("asymmetric halo: partition %d ghosts from %d = %v, reverse = %v",
					p, q, pq, qp)
			}
		}
	}

	// Verify 3: Conservation - every local cell has a local index
	total := 0
	for p := 0; p < cc.NumPartitions; p++ {
		total += len(cc.LocalToGlobalCell[p])
	}
	if total != cc.K {
		return fmt.Errorf("conservation error: %d cells mapped, K=%d", total, cc.K)
	}

	return nil
}
