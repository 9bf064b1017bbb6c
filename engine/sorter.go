package engine

import (
	"fmt"

	"github.com/oarkflow/errors"
)

// ErrCyclicGraph is returned when the node/edge set is not a DAG. It is
// construction-fatal: the pipeline is never executed.
var ErrCyclicGraph = errors.New("pipeline graph contains a cycle")

const (
	markUnvisited = iota
	markTemp
	markDone
)

// topoSort orders node ids so every node appears after all of its
// ancestors. Nodes are visited in the given order, so the result is
// deterministic for a given definition.
func topoSort(ids []string, adjacency map[string][]string) ([]string, error) {
	marks := make(map[string]int, len(ids))
	postorder := make([]string, 0, len(ids))

	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case markDone:
			return nil
		case markTemp:
			return fmt.Errorf("%w: via node %q", ErrCyclicGraph, id)
		}
		marks[id] = markTemp
		for _, child := range adjacency[id] {
			if err := visit(child); err != nil {
				return err
			}
		}
		marks[id] = markDone
		postorder = append(postorder, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}

	// Reverse the post-order to get a topological order.
	sorted := make([]string, len(postorder))
	for i, id := range postorder {
		sorted[len(postorder)-1-i] = id
	}
	return sorted, nil
}
