package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mtzanidakis/hive/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Registry selects navigators by routine shape in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []Navigator
	byType map[string]Navigator
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byType: make(map[string]Navigator),
		logger: logger.With("component", "navigator"),
	}
}

// NewDefaultRegistry registers the native and BPMN navigators.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(NewNativeNavigator())
	r.Register(NewBPMNNavigator())
	return r
}

// Register adds nav. Registering a type twice replaces the earlier navigator
// in place.
func (r *Registry) Register(nav Navigator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byType[nav.Type()]; exists {
		for i, n := range r.order {
			if n.Type() == nav.Type() {
				r.order[i] = nav
			}
		}
		r.logger.Warn("navigator replaced", "type", nav.Type())
	} else {
		r.order = append(r.order, nav)
	}
	r.byType[nav.Type()] = nav
}

// Navigator returns the navigator registered for typ.
func (r *Registry) Navigator(typ string) (Navigator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byType[typ]
	return n, ok
}

// SelectNavigator returns the first navigator that accepts routine.
func (r *Registry) SelectNavigator(routine any) (Navigator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.order {
		if n.CanNavigate(routine) {
			return n, nil
		}
	}
	return nil, ErrNoNavigator
}

// RegisteredTypes lists navigator types in registration order.
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, n.Type())
	}
	return out
}

// Prepare selects a navigator for routine, validates and caches it, and
// returns its start locations.
func (r *Registry) Prepare(ctx context.Context, routine any) (nav Navigator, starts []Location, err error) {
	_, span := tracing.Start(ctx, "navigator.Prepare")
	defer func() { tracing.End(span, err) }()

	nav, err = r.SelectNavigator(routine)
	if err != nil {
		return nil, nil, err
	}
	id, err := nav.ValidateAndCache(routine)
	if err != nil {
		return nil, nil, err
	}
	starts, err = nav.AllStartLocations(routine)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("navigator", nav.Type()), attribute.String("routine", id))
	r.logger.Debug("routine prepared", "type", nav.Type(), "routine", id, "starts", len(starts))
	return nav, starts, nil
}

// Advance resolves the next locations from current with the navigator of typ.
func (r *Registry) Advance(ctx context.Context, typ string, current Location, vars map[string]any) (next []Location, err error) {
	_, span := tracing.Start(ctx, "navigator.Advance", "navigator", typ, "location", current.ID)
	defer func() { tracing.End(span, err) }()

	nav, ok := r.Navigator(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoNavigator, typ)
	}
	return nav.NextLocations(current, vars)
}
