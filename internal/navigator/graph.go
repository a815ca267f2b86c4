package navigator

import (
	"fmt"
	"slices"
)

// branchMode decides how outgoing edges are selected.
type branchMode int

const (
	// firstMatch follows the first edge whose condition holds, else the default.
	firstMatch branchMode = iota
	// allMatches follows every edge whose condition holds, else the default.
	allMatches
	// allEdges follows every edge regardless of conditions.
	allEdges
)

type edge struct {
	ID        string
	To        string
	Condition string
}

type node struct {
	ID          string
	Name        string
	Description string
	Kind        string
	Terminal    bool
	Attached    bool
	Join        bool
	Mode        branchMode
	Default     string
	DependsOn   []string
	Triggers    []Trigger
	Timeouts    []timeoutSpec
	Config      map[string]any
	Out         []edge
	In          []string
}

type timeoutSpec struct {
	Duration string
	Action   string
	Fallback string
}

// graph is the representation-neutral form every navigator compiles to.
type graph struct {
	nodes map[string]*node
	order []string
}

func newGraph() *graph {
	return &graph{nodes: make(map[string]*node)}
}

func (g *graph) add(n *node) error {
	if n.ID == "" {
		return fmt.Errorf("node without id")
	}
	if _, dup := g.nodes[n.ID]; dup {
		return fmt.Errorf("duplicate node %q", n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

func (g *graph) connect(from string, e edge) error {
	src, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("edge %q from unknown node %q", e.ID, from)
	}
	dst, ok := g.nodes[e.To]
	if !ok {
		return fmt.Errorf("edge %q to unknown node %q", e.ID, e.To)
	}
	src.Out = append(src.Out, e)
	if !slices.Contains(dst.In, from) {
		dst.In = append(dst.In, from)
	}
	return nil
}

// starts returns nodes with no incoming edges in declaration order, or the
// first node when every node has a predecessor.
func (g *graph) starts() []string {
	var out []string
	for _, id := range g.order {
		n := g.nodes[id]
		if len(n.In) == 0 && !n.Attached {
			out = append(out, id)
		}
	}
	if len(out) == 0 && len(g.order) > 0 {
		out = append(out, g.order[0])
	}
	return out
}

func (g *graph) next(n *node, vars map[string]any) ([]string, error) {
	var out []string
	if n.Mode == allEdges {
		for _, e := range n.Out {
			out = append(out, e.To)
		}
		return out, nil
	}
	for _, e := range n.Out {
		if e.ID != "" && e.ID == n.Default {
			continue
		}
		ok, err := EvalCondition(e.Condition, vars)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", e.ID, err)
		}
		if !ok {
			continue
		}
		out = append(out, e.To)
		if n.Mode == firstMatch {
			return out, nil
		}
	}
	if len(out) == 0 && n.Default != "" {
		for _, e := range n.Out {
			if e.ID == n.Default {
				out = append(out, e.To)
			}
		}
	}
	return out, nil
}

func (n *node) isEnd() bool {
	return n.Terminal || len(n.Out) == 0
}

func (n *node) isSplit() bool {
	return n.Mode != firstMatch && len(n.Out) > 1
}

func (n *node) isJoin() bool {
	return n.Join || len(n.In) > 1
}

// branch walks from start until a join, a nested split, a decision or an end.
// A nested split is included so callers can recurse into it.
func (g *graph) branch(start string) []string {
	var out []string
	seen := make(map[string]bool)
	cur := start
	for cur != "" && !seen[cur] {
		seen[cur] = true
		n := g.nodes[cur]
		if n == nil || n.isJoin() {
			break
		}
		out = append(out, cur)
		if n.isSplit() || len(n.Out) != 1 {
			break
		}
		cur = n.Out[0].To
	}
	return out
}
