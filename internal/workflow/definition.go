// Package workflow implements the Workflow Engine (C8): the node/edge
// DAG grammar, validation, and sequential/parallel execution. Grounded
// on spec.md sections 4.8 and 4.7's agent contract (internal/agents).
package workflow

import (
	"fmt"

	"github.com/stockassistant/orchestrator/internal/apperrors"
)

// NodeType distinguishes an agent-invoking node from a routing marker.
type NodeType string

const (
	NodeAgent     NodeType = "agent"
	NodeCondition NodeType = "condition"
)

// Node is one step in a workflow definition's DAG.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Agent    string   `json:"agent,omitempty"`
	IsEntry  bool     `json:"is_entry,omitempty"`
	IsFinish bool     `json:"is_finish,omitempty"`
}

// Edge directs execution from one node to another.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Definition is a user-owned, named DAG of agent invocations — the
// grammar spec.md section 4.8 specifies.
type Definition struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Validate checks the structural invariants spec.md section 4.8
// requires: exactly one entry node (inferred from in-degree zero when
// none is explicitly marked), at least one finish node, every edge
// references existing nodes, and no cycles.
func (d Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return apperrors.InvalidInput("a workflow definition must contain at least one node")
	}

	byID := make(map[string]Node, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return apperrors.InvalidInput("every node must have a non-empty id")
		}
		if _, dup := byID[n.ID]; dup {
			return apperrors.InvalidInput(fmt.Sprintf("duplicate node id %q", n.ID))
		}
		byID[n.ID] = n
	}

	inDegree := make(map[string]int, len(d.Nodes))
	outEdges := make(map[string][]string, len(d.Nodes))
	for _, e := range d.Edges {
		if _, ok := byID[e.From]; !ok {
			return apperrors.InvalidInput(fmt.Sprintf("edge references unknown node %q", e.From))
		}
		if _, ok := byID[e.To]; !ok {
			return apperrors.InvalidInput(fmt.Sprintf("edge references unknown node %q", e.To))
		}
		inDegree[e.To]++
		outEdges[e.From] = append(outEdges[e.From], e.To)
	}

	entries := entryNodes(d.Nodes, inDegree)
	if len(entries) != 1 {
		return apperrors.InvalidInput(fmt.Sprintf("a workflow definition must resolve to exactly one entry node, found %d", len(entries)))
	}

	finishCount := 0
	for _, n := range d.Nodes {
		if n.IsFinish {
			finishCount++
		}
	}
	if finishCount == 0 {
		return apperrors.InvalidInput("a workflow definition must contain at least one finish node")
	}

	if cycleExists(d.Nodes, outEdges) {
		return apperrors.InvalidInput("a workflow definition must not contain a cycle")
	}

	return nil
}

// entryNodes returns every node explicitly flagged is_entry, falling
// back to every zero-in-degree node when none is flagged (the engine's
// synthetic-entry inference spec.md section 4.8 allows).
func entryNodes(nodes []Node, inDegree map[string]int) []string {
	var flagged []string
	for _, n := range nodes {
		if n.IsEntry {
			flagged = append(flagged, n.ID)
		}
	}
	if len(flagged) > 0 {
		return flagged
	}
	var zeroDegree []string
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			zeroDegree = append(zeroDegree, n.ID)
		}
	}
	return zeroDegree
}

// cycleExists runs Kahn's algorithm: if not every node can be peeled
// off by repeatedly removing zero-in-degree nodes, a cycle remains.
func cycleExists(nodes []Node, outEdges map[string][]string) bool {
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n.ID] = 0
	}
	for _, targets := range outEdges {
		for _, to := range targets {
			inDegree[to]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, to := range outEdges[id] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return visited != len(nodes)
}

// topoOrder returns node ids in a valid topological order starting
// from the single entry node, for the sequential execution mode.
func topoOrder(d Definition) ([]string, error) {
	byID := make(map[string]Node, len(d.Nodes))
	inDegree := make(map[string]int, len(d.Nodes))
	outEdges := make(map[string][]string, len(d.Nodes))
	for _, n := range d.Nodes {
		byID[n.ID] = n
		inDegree[n.ID] = 0
	}
	for _, e := range d.Edges {
		inDegree[e.To]++
		outEdges[e.From] = append(outEdges[e.From], e.To)
	}

	var queue []string
	for _, n := range d.Nodes {
		if n.IsEntry || inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	var order []string
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
		for _, to := range outEdges[id] {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	if len(order) != len(d.Nodes) {
		return nil, apperrors.InvalidInput("workflow definition is not a valid DAG")
	}
	return order, nil
}
