package dag

// LongestPath returns the path through the DAG with the largest summed node
// Weight, ordered from the first dependency to the last dependent, together
// with that total. When two candidate predecessors or two end nodes tie, the
// one created first wins, so the result is stable for a given graph.
// Returns an error if the graph contains a cycle.
func (d *DAG) LongestPath() ([]string, int, error) {
	order, err := d.TopologicalSort()
	if err != nil {
		return nil, 0, err
	}
	if len(order) == 0 {
		return nil, 0, nil
	}

	// dist[v] = weight of the heaviest path ending at v.
	dist := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))
	for _, v := range order {
		best := 0
		bestPrev := ""
		for _, dep := range d.Dependencies(v) {
			if bestPrev == "" || dist[dep] > best {
				best = dist[dep]
				bestPrev = dep
			}
		}
		dist[v] = d.nodes[v].Weight + best
		if bestPrev != "" {
			prev[v] = bestPrev
		}
	}

	endNode := ""
	for _, id := range d.Nodes() {
		if endNode == "" || dist[id] > dist[endNode] {
			endNode = id
		}
	}

	var path []string
	for cur := endNode; cur != ""; cur = prev[cur] {
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[endNode], nil
}
