package dag

import "sort"

// Stream is an independent subset of the DAG whose nodes share no
// dependencies with nodes in other streams. A schedule slip in one stream
// can never cascade into another.
type Stream struct {
	// ID is the integer identifier assigned to this stream, starting at 0.
	ID int

	// NodeIDs lists the node IDs in this stream in topological order.
	NodeIDs []string

	// TotalWeight is the sum of Weight over all nodes in the stream.
	TotalWeight int
}

// ComputeStreams partitions the DAG into independent streams using
// Union-Find. Each stream contains nodes that are transitively connected
// through edges in either direction. The method assigns Node.StreamID on
// every node and returns the streams sorted by descending total weight,
// then size, then the creation order of their first node.
func (d *DAG) ComputeStreams() ([]Stream, error) {
	if len(d.nodes) == 0 {
		return nil, nil
	}

	topoOrder, err := d.TopologicalSort()
	if err != nil {
		return nil, err
	}
	topoPos := make(map[string]int, len(topoOrder))
	for i, id := range topoOrder {
		topoPos[id] = i
	}

	uf := NewUnionFind[string]()
	for id := range d.nodes {
		uf.Add(id)
	}
	for from, deps := range d.adjacency {
		for to := range deps {
			uf.Union(from, to)
		}
	}

	components := uf.Components()
	streams := make([]Stream, 0, len(components))
	for _, members := range components {
		sort.Slice(members, func(i, j int) bool {
			return topoPos[members[i]] < topoPos[members[j]]
		})
		total := 0
		for _, id := range members {
			total += d.nodes[id].Weight
		}
		streams = append(streams, Stream{
			NodeIDs:     members,
			TotalWeight: total,
		})
	}

	sort.Slice(streams, func(i, j int) bool {
		if streams[i].TotalWeight != streams[j].TotalWeight {
			return streams[i].TotalWeight > streams[j].TotalWeight
		}
		if len(streams[i].NodeIDs) != len(streams[j].NodeIDs) {
			return len(streams[i].NodeIDs) > len(streams[j].NodeIDs)
		}
		return d.seq(streams[i].NodeIDs[0]) < d.seq(streams[j].NodeIDs[0])
	})

	for i := range streams {
		streams[i].ID = i
		for _, id := range streams[i].NodeIDs {
			d.nodes[id].StreamID = i
		}
	}
	return streams, nil
}
