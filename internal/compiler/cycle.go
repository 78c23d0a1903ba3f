package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/syncframe/internal/ir"
)

// CycleWarning represents a potential cycle in sync rules.
//
// Cycles are warnings, not errors, because they may be intentional:
//   - Retry logic with error-case matching
//   - Recursive workflows with termination conditions
//   - Self-correcting feedback loops
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["sync-a", "sync-b", "sync-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles reports rules that can trigger themselves through their
// then actions.
//
// The algorithm:
//  1. Build a sync -> sync graph: an edge A -> B exists when one of A's
//     then actions is matched by one of B's when patterns
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// Cycles are warnings: the firing ledger and the pass budget stop a cyclic
// rule set at run time, but usually the cycle is a mistake. A DAG returns
// an empty list.
func AnalyzeCycles(syncs []ir.SyncRule) []CycleWarning {
	warnings := []CycleWarning{}
	if len(syncs) == 0 {
		return warnings
	}

	graph, order := buildDependencyGraph(syncs)
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps sync_id -> sync_ids its then actions could trigger.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the graph and returns the node order
// (declaration order) so results are deterministic.
func buildDependencyGraph(syncs []ir.SyncRule) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	order := make([]string, 0, len(syncs))

	// Action ref -> syncs with a when pattern on it, in declaration order.
	actionToSyncs := make(map[string][]string)
	for _, sync := range syncs {
		order = append(order, sync.ID)
		seen := make(map[string]bool)
		for _, p := range sync.When {
			ref := p.ActionRef()
			if !seen[ref] {
				actionToSyncs[ref] = append(actionToSyncs[ref], sync.ID)
				seen[ref] = true
			}
		}
	}

	for _, sync := range syncs {
		// Ensure the node exists even without edges.
		if graph[sync.ID] == nil {
			graph[sync.ID] = []string{}
		}
		added := make(map[string]bool)
		for _, call := range sync.Then {
			for _, target := range actionToSyncs[call.ActionRef()] {
				if !added[target] {
					graph[sync.ID] = append(graph[sync.ID], target)
					added[target] = true
				}
			}
		}
	}

	return graph, order
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of sync IDs.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [sync-id, sync-id].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		syncID := scc[0]
		return CycleWarning{
			Path:    []string{syncID, syncID},
			Message: fmt.Sprintf("sync %s triggers itself", syncID),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("potential cycle: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
