package navigator

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const TypeNative = "native"

// SingleStepNode is the node id given to routines without a graph.
const SingleStepNode = "main"

// Native node kinds.
const (
	KindStart    = "start"
	KindAction   = "action"
	KindDecision = "decision"
	KindParallel = "parallel"
	KindJoin     = "join"
	KindEnd      = "end"
)

type nativeGraph struct {
	Nodes []nativeNode `json:"nodes"`
	Edges []nativeEdge `json:"edges"`
}

type nativeNode struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Terminal    bool            `json:"terminal"`
	DependsOn   []string        `json:"dependsOn"`
	Triggers    []Trigger       `json:"triggers"`
	Timeouts    []nativeTimeout `json:"timeouts"`
	Config      map[string]any  `json:"config"`
}

type nativeTimeout struct {
	Duration         any    `json:"duration"`
	Action           string `json:"action"`
	FallbackLocation string `json:"fallbackLocation"`
}

type nativeEdge struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition"`
}

// NativeNavigator walks plain directed graphs (graph.__type == "native")
// and single-step routines that carry no graph at all.
type NativeNavigator struct {
	*base
}

func NewNativeNavigator() *NativeNavigator {
	return &NativeNavigator{base: newBase(TypeNative, compileNative)}
}

func (n *NativeNavigator) CanNavigate(routine any) bool {
	cfg, ok := asConfig(routine)
	if !ok {
		return false
	}
	t, hasGraph := graphType(cfg)
	return !hasGraph || t == TypeNative
}

func compileNative(cfg map[string]any) (*graph, error) {
	g := newGraph()
	raw, hasGraph := cfg["graph"]
	if !hasGraph || raw == nil {
		n := &node{ID: SingleStepNode, Kind: KindAction, Terminal: true}
		n.Name, _ = cfg["name"].(string)
		n.Description, _ = cfg["description"].(string)
		n.Config, _ = cfg["config"].(map[string]any)
		return g, g.add(n)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	var ng nativeGraph
	if err := json.Unmarshal(data, &ng); err != nil {
		return nil, fmt.Errorf("decode native graph: %w", err)
	}
	if len(ng.Nodes) == 0 {
		return nil, fmt.Errorf("native graph has no nodes")
	}

	for _, nn := range ng.Nodes {
		n := &node{
			ID:          nn.ID,
			Name:        nn.Name,
			Description: nn.Description,
			Kind:        nn.Type,
			Terminal:    nn.Terminal || nn.Type == KindEnd,
			Join:        nn.Type == KindJoin,
			DependsOn:   nn.DependsOn,
			Triggers:    nn.Triggers,
			Config:      nn.Config,
		}
		if n.Kind == "" {
			n.Kind = KindAction
		}
		if nn.Type == KindParallel {
			n.Mode = allMatches
		}
		for _, t := range nn.Timeouts {
			d, err := durationString(t.Duration)
			if err == nil {
				_, err = ParseDuration(d)
			}
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", nn.ID, err)
			}
			n.Timeouts = append(n.Timeouts, timeoutSpec{Duration: d, Action: t.Action, Fallback: t.FallbackLocation})
		}
		if err := g.add(n); err != nil {
			return nil, err
		}
	}
	for i, e := range ng.Edges {
		if e.ID == "" {
			e.ID = "edge_" + strconv.Itoa(i)
		}
		if err := g.connect(e.From, edge{ID: e.ID, To: e.To, Condition: e.Condition}); err != nil {
			return nil, err
		}
	}
	for _, n := range g.nodes {
		for _, t := range n.Timeouts {
			if t.Fallback != "" && g.nodes[t.Fallback] == nil {
				return nil, fmt.Errorf("node %q: timeout fallback to unknown node %q", n.ID, t.Fallback)
			}
		}
	}
	return g, nil
}

// durationString normalizes a JSON/YAML duration; numbers are milliseconds.
func durationString(v any) (string, error) {
	switch d := v.(type) {
	case string:
		return d, nil
	case float64:
		return strconv.FormatInt(int64(d), 10), nil
	case int:
		return strconv.Itoa(d), nil
	case nil:
		return "", fmt.Errorf("timeout without duration")
	}
	return "", fmt.Errorf("unsupported duration %v", v)
}
