package value

import "sort"

// RootKey holds the root value of a node that also has children in Data output.
const RootKey = "$"

// Node is an evaluated value tree: a root value and named child vectors.
type Node struct {
	Value    *Literal
	Children map[string][]*Node
}

// NewNode returns an empty node.
func NewNode() *Node {
	return &Node{Value: Void(), Children: make(map[string][]*Node)}
}

// Evaluate builds the value tree described by e.
func Evaluate(e Expr) *Node {
	n := NewNode()
	n.assign(e)
	return n
}

func (n *Node) assign(e Expr) {
	switch v := e.(type) {
	case *Literal:
		c := *v
		n.Value = &c
	case *Tree:
		if v.Root != nil {
			c := *v.Root
			n.Value = &c
		}
		for _, a := range v.Assignments {
			n.Walk(a.Path).assign(a.Value)
		}
	}
}

// Walk returns the node at path, creating intermediate nodes.
func (n *Node) Walk(path Path) *Node {
	cur := n
	for _, seg := range path {
		idx := 0
		if seg.HasIndex {
			idx = seg.Index
		}
		vec := cur.Children[seg.Name]
		for len(vec) <= idx {
			vec = append(vec, NewNode())
		}
		cur.Children[seg.Name] = vec
		cur = vec[idx]
	}
	return cur
}

// Data exports the node as plain Go data.
// A leaf becomes its scalar, a vector of one becomes the element itself.
func (n *Node) Data() any {
	if len(n.Children) == 0 {
		return n.Value.Interface()
	}
	out := make(map[string]any, len(n.Children)+1)
	if n.Value.Kind != KindVoid {
		out[RootKey] = n.Value.Interface()
	}
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		vec := n.Children[name]
		if len(vec) == 1 {
			out[name] = vec[0].Data()
			continue
		}
		items := make([]any, len(vec))
		for i, child := range vec {
			items[i] = child.Data()
		}
		out[name] = items
	}
	return out
}
