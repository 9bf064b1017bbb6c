package engine

import (
	"github.com/oarkflow/pipeline/pkg/config"
)

// ExecutableNode is one DAG node plus the ids of its direct children, in
// edge-definition order. Built once per pipeline instance and never
// mutated afterwards.
type ExecutableNode struct {
	id       string
	node     config.Node
	children []string
}

func (n *ExecutableNode) ID() string            { return n.id }
func (n *ExecutableNode) Type() config.NodeType { return n.node.Type }
func (n *ExecutableNode) Children() []string    { return n.children }

// isLeaf reports whether the node has no outgoing edges, i.e. it is a sink.
func (n *ExecutableNode) isLeaf() bool { return len(n.children) == 0 }

func buildNodes(def *config.Pipeline) map[string]*ExecutableNode {
	nodes := make(map[string]*ExecutableNode, len(def.Nodes))
	for _, n := range def.Nodes {
		nodes[n.ID] = &ExecutableNode{id: n.ID, node: n}
	}
	for _, e := range def.Edges {
		nodes[e.Source].children = append(nodes[e.Source].children, e.Target)
	}
	return nodes
}
