// Package models defines the core domain models for the workflow execution engine.
package models

import (
	"errors"
	"fmt"
	"time"
)

// NodeType identifies the kind of work a node performs.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeTask      NodeType = "task"
	NodeTypeEmail     NodeType = "email"
	NodeTypeAPICall   NodeType = "api_call"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeApproval  NodeType = "approval"
)

// Node is a unit of work in the template graph.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   NodeType       `json:"type"   validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// Connection is a directed edge between two nodes, optionally guarded by a
// condition expression evaluated against the execution variables.
type Connection struct {
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// Template is an immutable node-graph definition instantiable many times.
type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*Node        `json:"nodes"`
	Connections []*Connection  `json:"connections"`
	Variables   map[string]any `json:"variables"` // Default variables merged with caller overrides at instantiation
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

var (
	ErrNoStartNode        = errors.New("template must have exactly one start node")
	ErrNoEndNode          = errors.New("template must have at least one end node")
	ErrDuplicateNodeID    = errors.New("duplicate node id")
	ErrDanglingConnection = errors.New("connection references unknown node")
)

// Validate checks the structural invariants of the graph: exactly one start
// node, at least one end node, unique node IDs and no dangling connections.
func (t *Template) Validate() error {
	var starts, ends int

	seen := make(map[string]bool, len(t.Nodes))

	for _, node := range t.Nodes {
		if seen[node.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, node.ID)
		}

		seen[node.ID] = true

		switch node.Type {
		case NodeTypeStart:
			starts++
		case NodeTypeEnd:
			ends++
		}
	}

	if starts != 1 {
		return ErrNoStartNode
	}

	if ends == 0 {
		return ErrNoEndNode
	}

	for _, conn := range t.Connections {
		if !seen[conn.Source] || !seen[conn.Target] {
			return fmt.Errorf("%w: %s -> %s", ErrDanglingConnection, conn.Source, conn.Target)
		}
	}

	return nil
}

// StartNode returns the single start node of the graph.
func (t *Template) StartNode() (*Node, bool) {
	for _, node := range t.Nodes {
		if node.Type == NodeTypeStart {
			return node, true
		}
	}

	return nil, false
}

// Node returns the node with the given ID.
func (t *Template) Node(nodeID string) (*Node, bool) {
	for _, node := range t.Nodes {
		if node.ID == nodeID {
			return node, true
		}
	}

	return nil, false
}

// ConnectionsFrom returns every connection whose source is the given node.
func (t *Template) ConnectionsFrom(nodeID string) []*Connection {
	var out []*Connection

	for _, conn := range t.Connections {
		if conn.Source == nodeID {
			out = append(out, conn)
		}
	}

	return out
}
