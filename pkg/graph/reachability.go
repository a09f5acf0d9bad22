package graph

// AdjacencyView maps a node ID to the IDs it points at. Every node in
// the graph appears as a key, sources of no edges included.
type AdjacencyView map[string][]string

// PathExists reports whether a directed path from -> ... -> to already
// exists. BFS over the adjacency view; used as the cycle guard before
// edge insertion (a new edge a->b closes a cycle iff b already reaches a).
func PathExists(adj AdjacencyView, from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ReachableFrom returns the set of nodes reachable from start, start
// included. Used by the validator's island detection.
func ReachableFrom(adj AdjacencyView, start string) map[string]bool {
	reached := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adj[node] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}
