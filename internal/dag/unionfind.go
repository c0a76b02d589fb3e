package dag

// UnionFind is a disjoint-set forest with path compression and union by
// rank over any comparable element type.
type UnionFind[K comparable] struct {
	parent map[K]K
	rank   map[K]int
}

// NewUnionFind creates an empty UnionFind.
func NewUnionFind[K comparable]() *UnionFind[K] {
	return &UnionFind[K]{
		parent: make(map[K]K),
		rank:   make(map[K]int),
	}
}

// Add inserts x as its own singleton set. Adding an existing element is a no-op.
func (uf *UnionFind[K]) Add(x K) {
	if _, ok := uf.parent[x]; ok {
		return
	}
	uf.parent[x] = x
}

// Find returns the representative of the set containing x, adding x as a
// singleton first if it is unknown.
func (uf *UnionFind[K]) Find(x K) K {
	root := x
	for {
		p, ok := uf.parent[root]
		if !ok {
			uf.parent[root] = root
			return root
		}
		if p == root {
			break
		}
		root = p
	}
	// Compress the walked path onto the root.
	for x != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

// Union merges the sets containing x and y.
func (uf *UnionFind[K]) Union(x, y K) {
	rx, ry := uf.Find(x), uf.Find(y)
	if rx == ry {
		return
	}
	switch {
	case uf.rank[rx] < uf.rank[ry]:
		uf.parent[rx] = ry
	case uf.rank[rx] > uf.rank[ry]:
		uf.parent[ry] = rx
	default:
		uf.parent[ry] = rx
		uf.rank[rx]++
	}
}

// Components groups every element under its set representative. Member
// order within a group is unspecified.
func (uf *UnionFind[K]) Components() map[K][]K {
	groups := make(map[K][]K)
	for x := range uf.parent {
		root := uf.Find(x)
		groups[root] = append(groups[root], x)
	}
	return groups
}
