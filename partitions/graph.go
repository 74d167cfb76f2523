package partitions

import (
	"fmt"

	metis "github.com/notargets/go-metis"
)

// ImbalanceFactor bounds the largest graph partition relative to the average
const ImbalanceFactor = 1.05

// buildMetisGraph converts the cell adjacency to METIS compressed rows. Cells
// sharing a vertex are adjacent, matching the halo the solvers exchange.
func (pb *PartitionBuilder) buildMetisGraph() (xadj, adjncy []int32) {
	nbrs := pb.Mesh.VertexNeighbors()
	xadj = make([]int32, len(nbrs)+1)
	adjncy = []int32{}
	for c, list := range nbrs {
		for _, nb := range list {
			adjncy = append(adjncy, int32(nb))
		}
		xadj[c+1] = int32(len(adjncy))
	}
	return xadj, adjncy
}

// graphPartition splits the cell graph with the METIS k-way partitioner,
// minimizing the communication volume between subdomains
func (pb *PartitionBuilder) graphPartition(numPartitions int) ([]int, error) {
	eToP := make([]int, pb.Mesh.NumElements)
	if numPartitions == 1 {
		return eToP, nil
	}
	xadj, adjncy := pb.buildMetisGraph()

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	opts[metis.OptionObjType] = metis.ObjTypeVol
	ubvec := []float32{ImbalanceFactor}

	part, _, err := metis.PartGraphKwayWeighted(xadj, adjncy, nil, nil,
		int32(numPartitions), nil, ubvec, opts)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	for c := range eToP {
		p := int(part[c])
		if p < 0 || p >= numPartitions {
			return nil, fmt.Errorf("METIS assigned cell %d to partition %d of %d", c, p, numPartitions)
		}
		eToP[c] = p
	}
	return eToP, nil
}
