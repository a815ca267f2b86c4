package navigator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistrySelection(t *testing.T) {
	r := NewDefaultRegistry(nil)

	types := r.RegisteredTypes()
	if len(types) != 2 || types[0] != TypeNative || types[1] != TypeBPMN {
		t.Fatalf("unexpected registered types %v", types)
	}

	nav, err := r.SelectNavigator(bpmnRoutine())
	if err != nil || nav.Type() != TypeBPMN {
		t.Errorf("expected bpmn navigator, got %v %v", nav, err)
	}
	nav, err = r.SelectNavigator(map[string]any{"__version": "1"})
	if err != nil || nav.Type() != TypeNative {
		t.Errorf("expected native navigator for single step, got %v %v", nav, err)
	}
	_, err = r.SelectNavigator(map[string]any{"graph": map[string]any{"__type": "temporal"}})
	if !errors.Is(err, ErrNoNavigator) {
		t.Errorf("expected no navigator available, got %v", err)
	}
}

func TestRegistryReplaceKeepsOrder(t *testing.T) {
	r := NewDefaultRegistry(nil)
	replacement := NewNativeNavigator()
	r.Register(replacement)

	if types := r.RegisteredTypes(); len(types) != 2 || types[0] != TypeNative {
		t.Fatalf("expected replacement in place, got %v", types)
	}
	nav, _ := r.Navigator(TypeNative)
	if nav != Navigator(replacement) {
		t.Error("expected replacement navigator to be returned")
	}
}

func TestRegistryPrepareAndAdvance(t *testing.T) {
	r := NewDefaultRegistry(nil)
	ctx := context.Background()

	nav, starts, err := r.Prepare(ctx, scenarioRoutine())
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if nav.Type() != TypeNative || len(starts) != 1 {
		t.Fatalf("unexpected prepare result %s %v", nav.Type(), starts)
	}
	next, err := r.Advance(ctx, nav.Type(), starts[0], map[string]any{"status": "success"})
	if err != nil || len(next) != 1 || next[0].NodeID != "process" {
		t.Errorf("expected process, got %v %v", next, err)
	}
	if _, err := r.Advance(ctx, "langchain", starts[0], nil); !errors.Is(err, ErrNoNavigator) {
		t.Errorf("expected no navigator, got %v", err)
	}
}

func TestLoadRoutineFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "routine.yaml")
	yamlDoc := `id: triage
__version: 2
graph:
  __type: native
  nodes:
    - id: intake
    - id: route
      type: decision
  edges:
    - from: intake
      to: route
`
	if err := os.WriteFile(yamlPath, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadRoutineFile(yamlPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg["__version"] != "2" {
		t.Errorf("expected version to be stringified, got %#v", cfg["__version"])
	}
	r := NewDefaultRegistry(nil)
	_, starts, err := r.Prepare(context.Background(), cfg)
	if err != nil || len(starts) != 1 || starts[0].ID != "triage_intake" {
		t.Errorf("expected triage_intake, got %v %v", starts, err)
	}

	bpmnPath := filepath.Join(dir, "order.bpmn")
	if err := os.WriteFile(bpmnPath, []byte(orderProcess), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadRoutineFile(bpmnPath)
	if err != nil {
		t.Fatalf("load bpmn: %v", err)
	}
	nav, err := r.SelectNavigator(cfg)
	if err != nil || nav.Type() != TypeBPMN {
		t.Errorf("expected bpmn navigator, got %v %v", nav, err)
	}

	if _, err := LoadRoutineFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
