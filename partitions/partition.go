package partitions

import (
	"fmt"
	"math"
)

// Partition is the set of mesh cells owned by one subdomain. Each subdomain
// is simulated by its own solver; cells of other partitions adjacent to it
// form its ghost halo.
type Partition struct {
	// Unique identifier for this partition, also the rank of its solver
	ID int

	// Cell membership
	Cells    []int // Global cell indices in this partition, ascending
	NumCells int   // Number of cells owned
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	TotalCells    int // Sum of all cells across partitions
	NumPartitions int // Total number of partitions

	// Cell to partition mapping
	EToP []int // Length TotalCells: cell k belongs to partition EToP[k]
}

// GetPartition returns the partition containing cell k
func (pl *PartitionLayout) GetPartition(cellID int) int {
	if cellID < 0 || cellID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[cellID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.EToP) != pl.TotalCells {
		return fmt.Errorf("EToP length %d != TotalCells %d", len(pl.EToP), pl.TotalCells)
	}
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%d partitions stored, NumPartitions is %d",
			len(pl.Partitions), pl.NumPartitions)
	}

	// Every cell must be listed exactly once, by the partition EToP names
	seen := make([]bool, pl.TotalCells)
	for _, p := range pl.Partitions {
		if p.NumCells != len(p.Cells) {
			return fmt.Errorf("partition %d: NumCells %d != len(Cells) %d",
				p.ID, p.NumCells, len(p.Cells))
		}
		for _, c := range p.Cells {
			if c < 0 || c >= pl.TotalCells {
				return fmt.Errorf("partition %d: cell %d out of range", p.ID, c)
			}
			if seen[c] {
				return fmt.Errorf("cell %d assigned more than once", c)
			}
			seen[c] = true
			if pl.EToP[c] != p.ID {
				return fmt.Errorf("cell %d listed in partition %d but EToP says %d",
					c, p.ID, pl.EToP[c])
			}
		}
	}
	for c, ok := range seen {
		if !ok {
			return fmt.Errorf("cell %d is not assigned to any partition", c)
		}
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinCells:      math.MaxInt32,
		MaxCells:      0,
		AvgCells:      float64(pl.TotalCells) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		if p.NumCells < stats.MinCells {
			stats.MinCells = p.NumCells
		}
		if p.NumCells > stats.MaxCells {
			stats.MaxCells = p.NumCells
		}
	}

	stats.Imbalance = float64(stats.MaxCells) / stats.AvgCells

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinCells      int
	MaxCells      int
	AvgCells      float64
	Imbalance     float64 // MaxCells / AvgCells
}

func (s PartitionStats) String() string {
	return fmt.Sprintf("%d partitions, cells min/avg/max %d/%.1f/%d, imbalance %.3f",
		s.NumPartitions, s.MinCells, s.AvgCells, s.MaxCells, s.Imbalance)
}

// LayoutFromAssignment builds a layout from an existing cell to partition
// map, e.g. one shipped with a partitioned mesh file.
func LayoutFromAssignment(eToP []int) (*PartitionLayout, error) {
	numPartitions := 0
	for c, p := range eToP {
		if p < 0 {
			return nil, fmt.Errorf("cell %d has negative partition %d", c, p)
		}
		if p+1 > numPartitions {
			numPartitions = p + 1
		}
	}
	layout := &PartitionLayout{
		Partitions:    createPartitions(eToP, numPartitions),
		TotalCells:    len(eToP),
		NumPartitions: numPartitions,
		EToP:          append([]int(nil), eToP...),
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// createPartitions builds partition structures from cell assignments
func createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	// Initialize partitions
	for i := range partitions {
		partitions[i] = Partition{
			ID:    i,
			Cells: make([]int, 0),
		}
	}

	// Assign cells to partitions
	for cell, part := range eToP {
		partitions[part].Cells = append(partitions[part].Cells, cell)
		partitions[part].NumCells++
	}

	return partitions
}
