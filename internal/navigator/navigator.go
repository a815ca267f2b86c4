// Package navigator traverses routine graphs independently of how they are
// represented. Each Navigator handles one representation; a Registry picks
// the right one by inspecting the routine's shape.
package navigator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// Navigator traverses routines of one graph representation.
type Navigator interface {
	Type() string
	CanNavigate(routine any) bool
	ValidateAndCache(routine any) (string, error)
	GenerateRoutineID(routine any) (string, error)
	CachedConfig(routineID string) (map[string]any, error)
	StartLocation(routine any) (Location, error)
	AllStartLocations(routine any) ([]Location, error)
	NextLocations(current Location, vars map[string]any) ([]Location, error)
	IsEndLocation(loc Location) (bool, error)
	StepInfo(loc Location) (StepInfo, error)
	Dependencies(loc Location) ([]string, error)
	ParallelBranches(loc Location) ([][]Location, error)
	LocationTriggers(loc Location) ([]Trigger, error)
	LocationTimeouts(loc Location) ([]Timeout, error)
	CanTriggerEvent(loc Location, event Event) (bool, error)
}

type cached struct {
	config map[string]any
	graph  *graph
}

// base carries the behaviour shared by every representation: validation,
// the per-instance routine cache and traversal of the compiled graph.
type base struct {
	typ     string
	compile func(cfg map[string]any) (*graph, error)

	mu    sync.RWMutex
	cache map[string]*cached
}

func newBase(typ string, compile func(map[string]any) (*graph, error)) *base {
	return &base{typ: typ, compile: compile, cache: make(map[string]*cached)}
}

func (b *base) Type() string { return b.typ }

func (b *base) configErr(err error) error {
	return &ConfigError{NavigatorType: b.typ, Err: err}
}

// asConfig accepts decoded maps and raw JSON.
func asConfig(routine any) (map[string]any, bool) {
	switch v := routine.(type) {
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		return decodeRaw(v)
	case []byte:
		return decodeRaw(v)
	}
	return nil, false
}

func decodeRaw(data []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func graphType(cfg map[string]any) (string, bool) {
	g, ok := cfg["graph"]
	if !ok || g == nil {
		return "", false
	}
	gm, ok := g.(map[string]any)
	if !ok {
		return "", true
	}
	t, _ := gm["__type"].(string)
	return t, true
}

func (b *base) GenerateRoutineID(routine any) (string, error) {
	cfg, ok := asConfig(routine)
	if !ok {
		return "", b.configErr(ErrInvalidConfiguration)
	}
	return b.routineID(cfg)
}

func (b *base) routineID(cfg map[string]any) (string, error) {
	if id, ok := cfg["id"].(string); ok && id != "" {
		return id, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", b.configErr(fmt.Errorf("%w: %v", ErrInvalidConfiguration, err))
	}
	sum := sha256.Sum256(data)
	return b.typ + "_" + hex.EncodeToString(sum[:8]), nil
}

func (b *base) ValidateAndCache(routine any) (string, error) {
	id, _, err := b.load(routine)
	return id, err
}

func (b *base) load(routine any) (string, *graph, error) {
	cfg, ok := asConfig(routine)
	if !ok {
		return "", nil, b.configErr(ErrInvalidConfiguration)
	}
	if v, _ := cfg["__version"].(string); v == "" {
		return "", nil, b.configErr(ErrMissingVersion)
	}
	id, err := b.routineID(cfg)
	if err != nil {
		return "", nil, err
	}

	b.mu.RLock()
	c, hit := b.cache[id]
	b.mu.RUnlock()
	if hit {
		return id, c.graph, nil
	}

	g, err := b.compile(cfg)
	if err != nil {
		return "", nil, b.configErr(fmt.Errorf("%w: %v", ErrInvalidConfiguration, err))
	}
	b.mu.Lock()
	b.cache[id] = &cached{config: cfg, graph: g}
	b.mu.Unlock()
	return id, g, nil
}

func (b *base) CachedConfig(routineID string) (map[string]any, error) {
	c, err := b.cached(routineID)
	if err != nil {
		return nil, err
	}
	return c.config, nil
}

func (b *base) cached(routineID string) (*cached, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cache[routineID]
	if !ok {
		return nil, fmt.Errorf("%s navigator: %w: %s", b.typ, ErrNotInCache, routineID)
	}
	return c, nil
}

func (b *base) node(loc Location) (*graph, *node, error) {
	c, err := b.cached(loc.RoutineID)
	if err != nil {
		return nil, nil, err
	}
	n, ok := c.graph.nodes[loc.NodeID]
	if !ok {
		return nil, nil, fmt.Errorf("%s navigator: %w: %s", b.typ, ErrUnknownLocation, loc.ID)
	}
	return c.graph, n, nil
}

func locations(routineID string, ids []string) []Location {
	out := make([]Location, 0, len(ids))
	for _, id := range ids {
		out = append(out, NewLocation(routineID, id))
	}
	return out
}

func (b *base) StartLocation(routine any) (Location, error) {
	all, err := b.AllStartLocations(routine)
	if err != nil {
		return Location{}, err
	}
	if len(all) == 0 {
		return Location{}, b.configErr(fmt.Errorf("%w: routine has no nodes", ErrInvalidConfiguration))
	}
	return all[0], nil
}

func (b *base) AllStartLocations(routine any) ([]Location, error) {
	id, g, err := b.load(routine)
	if err != nil {
		return nil, err
	}
	return locations(id, g.starts()), nil
}

func (b *base) NextLocations(current Location, vars map[string]any) ([]Location, error) {
	g, n, err := b.node(current)
	if err != nil {
		return nil, err
	}
	if vars == nil {
		vars = map[string]any{}
	}
	ids, err := g.next(n, vars)
	if err != nil {
		return nil, fmt.Errorf("%s navigator: next from %s: %w", b.typ, current.ID, err)
	}
	return locations(current.RoutineID, ids), nil
}

func (b *base) IsEndLocation(loc Location) (bool, error) {
	_, n, err := b.node(loc)
	if err != nil {
		return false, err
	}
	return n.isEnd(), nil
}

func (b *base) StepInfo(loc Location) (StepInfo, error) {
	_, n, err := b.node(loc)
	if err != nil {
		return StepInfo{}, err
	}
	return StepInfo{
		Location:    loc,
		Name:        n.Name,
		Description: n.Description,
		Type:        n.Kind,
		Config:      n.Config,
	}, nil
}

func (b *base) Dependencies(loc Location) ([]string, error) {
	_, n, err := b.node(loc)
	if err != nil {
		return nil, err
	}
	if len(n.DependsOn) > 0 {
		return append([]string(nil), n.DependsOn...), nil
	}
	return append([]string(nil), n.In...), nil
}

func (b *base) ParallelBranches(loc Location) ([][]Location, error) {
	g, n, err := b.node(loc)
	if err != nil {
		return nil, err
	}
	if !n.isSplit() {
		return nil, nil
	}
	out := make([][]Location, 0, len(n.Out))
	for _, e := range n.Out {
		out = append(out, locations(loc.RoutineID, g.branch(e.To)))
	}
	return out, nil
}

func (b *base) LocationTriggers(loc Location) ([]Trigger, error) {
	_, n, err := b.node(loc)
	if err != nil {
		return nil, err
	}
	return append([]Trigger(nil), n.Triggers...), nil
}

func (b *base) LocationTimeouts(loc Location) ([]Timeout, error) {
	_, n, err := b.node(loc)
	if err != nil {
		return nil, err
	}
	out := make([]Timeout, 0, len(n.Timeouts))
	for _, ts := range n.Timeouts {
		d, err := ParseDuration(ts.Duration)
		if err != nil {
			return nil, fmt.Errorf("%s navigator: timeout on %s: %w", b.typ, loc.ID, err)
		}
		t := Timeout{Duration: d, Action: ts.Action}
		if t.Action == "" {
			t.Action = TimeoutInterrupt
		}
		if ts.Fallback != "" {
			fb := NewLocation(loc.RoutineID, ts.Fallback)
			t.FallbackLocation = &fb
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *base) CanTriggerEvent(loc Location, event Event) (bool, error) {
	triggers, err := b.LocationTriggers(loc)
	if err != nil {
		return false, err
	}
	vars := event.Payload
	if vars == nil {
		vars = map[string]any{}
	}
	for _, t := range triggers {
		if t.Event != event.Name {
			continue
		}
		ok, err := EvalCondition(t.Condition, vars)
		if err != nil {
			return false, fmt.Errorf("%s navigator: trigger %s on %s: %w", b.typ, t.Event, loc.ID, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
