//
// Tencent is pleased to support the open source community by making trpc-botflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-botflow-go is licensed under the Apache License Version 2.0.
//
//

// Package flow provides the immutable conversation flow graph model.
//
// A flow graph is a directed graph of typed nodes connected by optionally
// conditioned edges. Graphs are authored in an external builder and published
// as JSON; they may arrive in an inconsistent state (dangling connection
// targets, missing start node), so every accessor degrades to "no node"
// instead of failing.
package flow

import (
	"encoding/json"
	"fmt"
)

// NodeKind represents the type of a node in the flow graph.
type NodeKind string

// Node kind constants. This is a closed set; unknown kinds coming from a
// published graph are handled as pass-through messages with empty content.
const (
	KindStart          NodeKind = "start"
	KindMessage        NodeKind = "message"
	KindQuestion       NodeKind = "question"
	KindInput          NodeKind = "input"
	KindEmailInput     NodeKind = "email_input"
	KindPhoneInput     NodeKind = "phone_input"
	KindNumberInput    NodeKind = "number_input"
	KindDateInput      NodeKind = "date_input"
	KindTimeInput      NodeKind = "time_input"
	KindRating         NodeKind = "rating"
	KindSurvey         NodeKind = "survey"
	KindLocation       NodeKind = "location"
	KindQRCode         NodeKind = "qr_code"
	KindMedia          NodeKind = "media"
	KindCondition      NodeKind = "condition"
	KindRandom         NodeKind = "random"
	KindVariable       NodeKind = "variable"
	KindAction         NodeKind = "action"
	KindWebhook        NodeKind = "webhook"
	KindAIResponse     NodeKind = "ai_response"
	KindIntent         NodeKind = "intent"
	KindEntity         NodeKind = "entity"
	KindSentiment      NodeKind = "sentiment"
	KindLanguage       NodeKind = "language"
	KindTranslation    NodeKind = "translation"
	KindAnalyticsEvent NodeKind = "analytics_event"
	KindHandoff        NodeKind = "handoff"
)

// String returns the string representation of the node kind.
func (k NodeKind) String() string {
	return string(k)
}

// IsInteractive reports whether a node of this kind renders a prompt and
// suspends flow progression until the next user message arrives.
func (k NodeKind) IsInteractive() bool {
	switch k {
	case KindQuestion, KindInput, KindEmailInput, KindPhoneInput,
		KindNumberInput, KindDateInput, KindTimeInput, KindRating,
		KindSurvey, KindLocation, KindQRCode:
		return true
	default:
		return false
	}
}

// Operator constants for edge and branch conditions.
const (
	OpEquals   = "equals"
	OpContains = "contains"
	OpGreater  = "greater"
	OpLess     = "less"
)

// Condition is a pure predicate evaluated against session variables or the
// last user input.
type Condition struct {
	// Field is the variable name to resolve; falls back to the last user
	// input when the variable is absent.
	Field string `json:"field"`
	// Operator is one of equals, contains, greater, less.
	Operator string `json:"operator"`
	// Value is the comparison operand.
	Value string `json:"value"`
}

// Position is the cosmetic builder-canvas position of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SurveyQuestion is a single step of a survey node.
type SurveyQuestion struct {
	// Name is the variable suffix the answer is stored under.
	Name string `json:"name"`
	// Prompt is the question text.
	Prompt string `json:"prompt"`
	// Options are optional quick-reply choices.
	Options []string `json:"options,omitempty"`
}

// Intent declares a named intent and the phrases that trigger it.
type Intent struct {
	Name    string   `json:"name"`
	Phrases []string `json:"phrases"`
}

// NodeData is the kind-specific payload of a node. Only the fields relevant
// to the node's kind are populated; the rest stay zero.
type NodeData struct {
	// Label is the builder-visible node title.
	Label string `json:"label,omitempty"`
	// Content is the message or prompt text.
	Content string `json:"content,omitempty"`
	// VariableName is the variable an interactive answer is stored under.
	VariableName string `json:"variableName,omitempty"`
	// Options are quick-reply choices rendered with the prompt.
	Options []string `json:"options,omitempty"`
	// MediaURL points at an image, video or file attachment.
	MediaURL string `json:"mediaUrl,omitempty"`

	// Action is the action sub-kind: collect_email, collect_phone, save_lead.
	Action string `json:"action,omitempty"`

	// URL, Method and Headers configure a webhook node.
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// SystemPrompt, Temperature and MaxTokens are node-level overrides for
	// ai_response nodes.
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`

	// Scale is the upper bound of a rating node (default 5).
	Scale int `json:"scale,omitempty"`

	// Questions is the ordered question list of a survey node.
	Questions []SurveyQuestion `json:"questions,omitempty"`

	// Intents configures an intent node.
	Intents []Intent `json:"intents,omitempty"`

	// Set and Clear configure a variable node. Clear is the only sanctioned
	// wholesale removal of session variables.
	Set   map[string]string `json:"set,omitempty"`
	Clear []string          `json:"clear,omitempty"`

	// Languages is the supported language-tag set of a language node.
	Languages []string `json:"languages,omitempty"`
	// TargetLanguage overrides the session language for a translation node.
	TargetLanguage string `json:"targetLanguage,omitempty"`

	// Event is the analytics event name.
	Event string `json:"event,omitempty"`

	// Reason is the handoff reason forwarded to the handoff collaborator.
	Reason string `json:"reason,omitempty"`
}

// Node represents a single step in the flow graph.
type Node struct {
	// ID is the unique identifier of the node.
	ID string `json:"id"`
	// Kind is the behavior of the node.
	Kind NodeKind `json:"kind"`
	// Position is cosmetic and ignored by the engine.
	Position Position `json:"position"`
	// Data is the kind-specific payload.
	Data NodeData `json:"data"`
}

// Connection is a directed edge between two nodes, optionally guarded by a
// condition.
type Connection struct {
	// ID is the unique identifier of the connection.
	ID string `json:"id"`
	// Source is the origin node id.
	Source string `json:"source"`
	// Target is the destination node id.
	Target string `json:"target"`
	// Condition optionally guards the edge. A nil condition matches
	// unconditionally.
	Condition *Condition `json:"condition,omitempty"`
	// Label is the builder-visible edge title.
	Label string `json:"label,omitempty"`
}

// Graph is an immutable flow definition. It is safe for concurrent use by
// any number of sessions.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	bySource map[string][]*Connection
}

// graphJSON is the published wire format of a flow graph.
type graphJSON struct {
	Nodes       []*Node       `json:"nodes"`
	Connections []*Connection `json:"connections"`
}

// Load parses a published flow graph from its JSON wire format. Dangling
// connection endpoints are kept as-is; lookups for them resolve to no node
// rather than failing.
func Load(data []byte) (*Graph, error) {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse flow graph: %w", err)
	}
	return New(raw.Nodes, raw.Connections), nil
}

// New builds a graph from already-decoded nodes and connections. Connection
// declaration order is preserved per source node; this ordering is the
// documented routing tie-break and must not be changed.
func New(nodes []*Node, connections []*Connection) *Graph {
	g := &Graph{
		nodes:    make(map[string]*Node, len(nodes)),
		bySource: make(map[string][]*Connection),
	}
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if _, exists := g.nodes[n.ID]; exists {
			continue
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	for _, c := range connections {
		if c == nil || c.Source == "" {
			continue
		}
		g.bySource[c.Source] = append(g.bySource[c.Source], c)
	}
	return g
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// ConnectionsFrom returns the outgoing connections of a node in declaration
// order.
func (g *Graph) ConnectionsFrom(nodeID string) []*Connection {
	return g.bySource[nodeID]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// StartNode resolves the entry node of the graph: an explicit start node if
// one exists, otherwise the first declared node without inbound connections,
// otherwise the first declared node. Returns nil for an empty graph.
func (g *Graph) StartNode() *Node {
	for _, id := range g.order {
		if g.nodes[id].Kind == KindStart {
			return g.nodes[id]
		}
	}
	inbound := make(map[string]bool)
	for _, conns := range g.bySource {
		for _, c := range conns {
			inbound[c.Target] = true
		}
	}
	for _, id := range g.order {
		if !inbound[id] {
			return g.nodes[id]
		}
	}
	if len(g.order) > 0 {
		return g.nodes[g.order[0]]
	}
	return nil
}
