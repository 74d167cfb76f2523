package partitions

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DEMKernel/mesh"
	"gonum.org/v1/gonum/floats"
)

// PartitionBuilder splits the cells of a mesh into subdomains
type PartitionBuilder struct {
	// Mesh to decompose
	Mesh *mesh.Mesh

	// Partitioning parameters
	NumPartitions int
	Strategy      PartitionStrategy
}

// PartitionStrategy defines how cells are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive cells
	RoundRobin                              // Distribute cyclically

	// Geometry-based strategies
	GraphPartition    // METIS k-way over the cell adjacency graph
	SpaceFillingCurve // Morton (z-order) curve over cell centroids
)

// ParseStrategy maps a configuration keyword onto a strategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch name {
	case "block", "":
		return BlockPartition, nil
	case "roundrobin", "roundRobin":
		return RoundRobin, nil
	case "graph", "metis":
		return GraphPartition, nil
	case "zorder", "zOrder", "sfc":
		return SpaceFillingCurve, nil
	}
	return BlockPartition, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout for the mesh
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil || pb.Mesh.NumElements == 0 {
		return nil, fmt.Errorf("cannot partition an empty mesh")
	}
	numPartitions := pb.NumPartitions
	// Ensure at least one partition, and no empty ones
	if numPartitions < 1 {
		numPartitions = 1
	}
	if numPartitions > pb.Mesh.NumElements {
		return nil, fmt.Errorf("%d partitions requested for %d cells",
			numPartitions, pb.Mesh.NumElements)
	}

	// Partition the cells
	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}

	// Create the layout
	layout := &PartitionLayout{
		Partitions:    createPartitions(eToP, numPartitions),
		TotalCells:    pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// partitionElements assigns cells to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	numCells := pb.Mesh.NumElements
	eToP := make([]int, numCells)

	switch pb.Strategy {
	case BlockPartition:
		// Simple block partitioning
		cellsPerPartition := int(math.Ceil(float64(numCells) / float64(numPartitions)))
		for i := 0; i < numCells; i++ {
			eToP[i] = i / cellsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}

	case RoundRobin:
		// Distribute cells cyclically
		for i := 0; i < numCells; i++ {
			eToP[i] = i % numPartitions
		}

	case SpaceFillingCurve:
		order := pb.mortonOrder()
		for rank, cell := range order {
			eToP[cell] = rank * numPartitions / numCells
		}

	case GraphPartition:
		return pb.graphPartition(numPartitions)

	default:
		// Default to block partitioning
		return pb.partitionWithStrategy(BlockPartition, numPartitions)
	}

	return eToP, nil
}

// partitionWithStrategy recursively applies a different strategy
func (pb *PartitionBuilder) partitionWithStrategy(strategy PartitionStrategy, numPartitions int) ([]int, error) {
	oldStrategy := pb.Strategy
	pb.Strategy = strategy
	result, err := pb.partitionElements(numPartitions)
	pb.Strategy = oldStrategy
	return result, err
}

const mortonBits = 21

// mortonOrder returns the cells sorted along the z-order curve of their
// centroids
func (pb *PartitionBuilder) mortonOrder() []int {
	m := pb.Mesh
	coords := make([][]float64, 3)
	for d := range coords {
		coords[d] = make([]float64, m.NumElements)
	}
	for c := 0; c < m.NumElements; c++ {
		ctr := m.Centroid(c)
		coords[0][c], coords[1][c], coords[2][c] = ctr.X, ctr.Y, ctr.Z
	}

	keys := make([]uint64, m.NumElements)
	scale := float64(uint64(1)<<mortonBits - 1)
	for d := 0; d < 3; d++ {
		lo, hi := floats.Min(coords[d]), floats.Max(coords[d])
		span := hi - lo
		for c, x := range coords[d] {
			var q uint64
			if span > 0 {
				q = uint64((x - lo) / span * scale)
			}
			keys[c] |= spreadBits(q) << uint(d)
		}
	}

	order := make([]int, m.NumElements)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] < keys[order[j]]
	})
	return order
}

// spreadBits inserts two zero bits between each of the low 21 bits of x
func spreadBits(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}
