package payflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// NodeKind distinguishes the structural role of a pipeline node. The engine
// recognizes the suspend and terminal nodes by kind, never by name.
type NodeKind int

const (
	// NodeKindStage is a plain processing stage.
	NodeKindStage NodeKind = iota

	// NodeKindSuspend marks the node whose completion durably suspends the
	// workflow pending an external decision.
	NodeKindSuspend

	// NodeKindTerminal marks the single exit node of the graph.
	NodeKindTerminal
)

// Route is a conditional edge label. Each router node declares the closed
// set of labels it may emit; emitting anything else is a defect.
type Route string

// Handler executes one stage against the current state and returns the
// partial update that stage is responsible for.
type Handler func(ctx context.Context, s *State) (*StageUpdate, error)

// Router is a pure, side-effect-free function choosing among a node's
// declared edge labels.
type Router func(s *State) Route

// Node is one vertex of a pipeline. A non-terminal node has either a single
// unconditional out-edge (Next) or a Router with a declared Routes map,
// never both.
type Node struct {
	Name    string
	Kind    NodeKind
	Handler Handler

	// Outputs declares the overwrite/write-once fields this node's handler
	// may produce. Accumulator slots on StageUpdate are always allowed.
	Outputs []Field

	Next   string
	Router Router
	Routes map[Route]string
}

// PipelineOptions configures a pipeline.
type PipelineOptions struct {
	Name  string
	Entry string
	Nodes []*Node
}

// Pipeline is an immutable directed graph of stage nodes, built once at
// construction time and never mutated afterwards.
type Pipeline struct {
	name     string
	entry    *Node
	terminal *Node
	suspend  *Node
	nodes    map[string]*Node
	order    []string
}

// NewPipeline validates and builds a pipeline. Structural defects (dangling
// edges, cycles, zero or multiple terminals, routers without declared labels)
// fail here, not at traversal time.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("pipeline name required")
	}
	if len(opts.Nodes) == 0 {
		return nil, fmt.Errorf("pipeline nodes required")
	}

	nodes := make(map[string]*Node, len(opts.Nodes))
	order := make([]string, 0, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node.Name == "" {
			return nil, fmt.Errorf("node name required")
		}
		if _, exists := nodes[node.Name]; exists {
			return nil, fmt.Errorf("duplicate node %q", node.Name)
		}
		if node.Handler == nil {
			return nil, fmt.Errorf("node %q: handler required", node.Name)
		}
		nodes[node.Name] = node
		order = append(order, node.Name)
	}

	entry, ok := nodes[opts.Entry]
	if !ok {
		return nil, fmt.Errorf("entry node %q not found", opts.Entry)
	}

	var terminal, suspend *Node
	for _, name := range order {
		node := nodes[name]
		switch node.Kind {
		case NodeKindTerminal:
			if terminal != nil {
				return nil, fmt.Errorf("multiple terminal nodes: %q and %q", terminal.Name, node.Name)
			}
			terminal = node
			if node.Next != "" || node.Router != nil {
				return nil, fmt.Errorf("terminal node %q must not have out-edges", node.Name)
			}
			continue
		case NodeKindSuspend:
			if suspend != nil {
				return nil, fmt.Errorf("multiple suspend nodes: %q and %q", suspend.Name, node.Name)
			}
			suspend = node
		}
		if err := validateEdges(node, nodes); err != nil {
			return nil, err
		}
	}
	if terminal == nil {
		return nil, fmt.Errorf("pipeline has no terminal node")
	}

	p := &Pipeline{
		name:     opts.Name,
		entry:    entry,
		terminal: terminal,
		suspend:  suspend,
		nodes:    nodes,
		order:    order,
	}
	if err := p.checkAcyclic(); err != nil {
		return nil, err
	}
	return p, nil
}

func validateEdges(node *Node, nodes map[string]*Node) error {
	hasNext := node.Next != ""
	hasRouter := node.Router != nil
	if hasNext == hasRouter {
		return fmt.Errorf("node %q must have exactly one of an unconditional edge or a router", node.Name)
	}
	if hasNext {
		if _, ok := nodes[node.Next]; !ok {
			return fmt.Errorf("node %q: edge to unknown node %q", node.Name, node.Next)
		}
		return nil
	}
	if len(node.Routes) == 0 {
		return fmt.Errorf("node %q: router requires a declared route map", node.Name)
	}
	for label, target := range node.Routes {
		if _, ok := nodes[target]; !ok {
			return fmt.Errorf("node %q: route %q targets unknown node %q", node.Name, label, target)
		}
	}
	return nil
}

// checkAcyclic walks from the entry node and rejects any cycle.
func (p *Pipeline) checkAcyclic() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	colors := map[string]int{}

	var visit func(name string) error
	visit = func(name string) error {
		switch colors[name] {
		case visiting:
			return fmt.Errorf("pipeline contains a cycle through %q", name)
		case done:
			return nil
		}
		colors[name] = visiting
		for _, next := range p.successors(name) {
			if err := visit(next); err != nil {
				return err
			}
		}
		colors[name] = done
		return nil
	}
	if err := visit(p.entry.Name); err != nil {
		return err
	}
	for name := range p.nodes {
		if colors[name] != done {
			return fmt.Errorf("node %q is unreachable from entry", name)
		}
	}
	return nil
}

func (p *Pipeline) successors(name string) []string {
	node := p.nodes[name]
	if node.Next != "" {
		return []string{node.Next}
	}
	if node.Router == nil {
		return nil
	}
	targets := make([]string, 0, len(node.Routes))
	for _, target := range node.Routes {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Entry returns the entry node.
func (p *Pipeline) Entry() *Node {
	return p.entry
}

// Terminal returns the single terminal node.
func (p *Pipeline) Terminal() *Node {
	return p.terminal
}

// Suspend returns the suspend node, or nil for a pipeline without one.
func (p *Pipeline) Suspend() *Node {
	return p.suspend
}

// Node returns a node by name.
func (p *Pipeline) Node(name string) (*Node, bool) {
	node, ok := p.nodes[name]
	return node, ok
}

// NodeNames returns all node names in declaration order.
func (p *Pipeline) NodeNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// next resolves the node following n for the given state. A router emitting
// an undeclared label is a defect surfaced as a fatal error.
func (p *Pipeline) next(n *Node, s *State) (*Node, error) {
	if n.Next != "" {
		return p.nodes[n.Next], nil
	}
	label := n.Router(s)
	target, ok := n.Routes[label]
	if !ok {
		return nil, NewFatalError("node %q router returned undeclared label %q", n.Name, label)
	}
	return p.nodes[target], nil
}

// Describe renders a text sketch of the graph for operators.
func (p *Pipeline) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline %s (entry: %s)\n", p.name, p.entry.Name)
	for _, name := range p.order {
		node := p.nodes[name]
		switch {
		case node.Kind == NodeKindTerminal:
			fmt.Fprintf(&b, "  %s [terminal]\n", name)
		case node.Router != nil:
			labels := make([]string, 0, len(node.Routes))
			for label, target := range node.Routes {
				labels = append(labels, fmt.Sprintf("%s -> %s", label, target))
			}
			sort.Strings(labels)
			suffix := ""
			if node.Kind == NodeKindSuspend {
				suffix = " [suspend]"
			}
			fmt.Fprintf(&b, "  %s%s ? %s\n", name, suffix, strings.Join(labels, ", "))
		default:
			suffix := ""
			if node.Kind == NodeKindSuspend {
				suffix = " [suspend]"
			}
			fmt.Fprintf(&b, "  %s%s -> %s\n", name, suffix, node.Next)
		}
	}
	return b.String()
}
