//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

package flow

// Route picks the next node from a node's outgoing connections.
//
// Connections are evaluated in declaration order and the first whose
// condition holds wins; an unconditioned connection is an unconditional
// match. When every connection is conditioned and none matches, the first
// connection is taken. A nil result means the graph is exhausted at this
// node, which is a normal flow ending, not an error. Connections pointing at
// unknown node ids resolve to nil the same way.
func (g *Graph) Route(node *Node, variables map[string]any, lastUserInput string) *Node {
	if node == nil {
		return nil
	}
	conns := g.bySource[node.ID]
	if len(conns) == 0 {
		return nil
	}
	for _, c := range conns {
		if EvalCondition(c.Condition, variables, lastUserInput) {
			return g.resolve(c.Target)
		}
	}
	return g.resolve(conns[0].Target)
}

// resolve maps a connection target to its node, tolerating dangling ids.
func (g *Graph) resolve(id string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return n
}
