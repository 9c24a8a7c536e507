package detector

import (
	"fmt"
	"slices"
	"strings"
)

// Graph is the immutable detector tree produced by one evaluation.
type Graph struct {
	Nodes     map[NodeID]*Node  `json:"nodes"`
	Roots     []NodeID          `json:"roots"`
	NameIndex map[string]NodeID `json:"name_index"`
	Unit      float64           `json:"unit"` // mm per model unit
}

// New creates an empty Graph measured in mm.
func New() *Graph {
	return &Graph{
		Nodes:     make(map[NodeID]*Node),
		NameIndex: make(map[string]NodeID),
		Unit:      1,
	}
}

// AddNode adds a node to the graph. It does not check for duplicates.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	if n.Name != "" {
		g.NameIndex[n.Name] = n.ID
	}
}

// AddRoot registers a node ID as a root of the graph.
func (g *Graph) AddRoot(id NodeID) {
	if slices.Contains(g.Roots, id) {
		return
	}
	g.Roots = append(g.Roots, id)
}

// RemoveRoot drops id from the roots, if present.
func (g *Graph) RemoveRoot(id NodeID) {
	g.Roots = slices.DeleteFunc(g.Roots, func(r NodeID) bool { return r == id })
}

// Lookup returns the node with the given name, or nil.
func (g *Graph) Lookup(name string) *Node {
	id, ok := g.NameIndex[name]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// MustLookup returns the node with the given name, or panics.
func (g *Graph) MustLookup(name string) *Node {
	n := g.Lookup(name)
	if n == nil {
		panic(fmt.Sprintf("detector: no node named %q", name))
	}
	return n
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// Sensors returns all sensor nodes in the graph, sorted by name.
func (g *Graph) Sensors() []*Node {
	var sensors []*Node
	for _, n := range g.Nodes {
		if n.Kind == NodeSensor {
			sensors = append(sensors, n)
		}
	}
	slices.SortFunc(sensors, func(a, b *Node) int { return strings.Compare(a.Name, b.Name) })
	return sensors
}

// Children returns the child nodes of the given node.
func (g *Graph) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := g.Nodes[cid]; c != nil {
			children = append(children, c)
		}
	}
	return children
}

// NodeCount returns the total number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}
